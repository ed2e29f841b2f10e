package model

// ConfidenceInterval 校准结果的可信区间档位（按样本量划分）
type ConfidenceInterval string

const (
	IntervalLow    ConfidenceInterval = "low"
	IntervalMedium ConfidenceInterval = "medium"
	IntervalHigh   ConfidenceInterval = "high"
)

// CalibrationResult 单次校准结果
// 按需计算、按类型缓存，不作为一等实体持久化
type CalibrationResult struct {
	AnomalyType            AnomalyType        `json:"anomaly_type"`
	RawConfidence          float64            `json:"raw_confidence"`
	CalibratedConfidence   float64            `json:"calibrated_confidence"`
	CalibrationFactor      float64            `json:"calibration_factor"`
	HistoricalApprovalRate float64            `json:"historical_approval_rate"`
	SampleSize             int                `json:"sample_size"`
	ConfidenceInterval     ConfidenceInterval `json:"confidence_interval"`
}

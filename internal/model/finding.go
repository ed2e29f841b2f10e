package model

import "time"

// AnomalyType 异常类型
type AnomalyType string

const (
	AnomalyLostWarehouse         AnomalyType = "lost_warehouse"
	AnomalyRefundNoReturn        AnomalyType = "refund_no_return"
	AnomalyDamagedInventory      AnomalyType = "damaged_inventory"
	AnomalyInboundLost           AnomalyType = "inbound_lost"
	AnomalyInboundShortfall      AnomalyType = "inbound_shortfall"
	AnomalyRemovalShortfall      AnomalyType = "removal_shortfall"
	AnomalyFraudSignature        AnomalyType = "fraud_signature"
	AnomalyReturnlessRefundAbuse AnomalyType = "returnless_refund_abuse"
)

// Severity 异常严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FindingStatus Finding 状态
type FindingStatus string

const (
	FindingStatusPending   FindingStatus = "pending"
	FindingStatusPromoted  FindingStatus = "promoted"
	FindingStatusDismissed FindingStatus = "dismissed"
)

// Finding 单条异常检出结果
// 由单次算法调用产生，创建后除 Status 外不再修改
type Finding struct {
	ID              int64         `json:"id"`
	SellerID        string        `json:"seller_id"`
	SyncID          string        `json:"sync_id"`
	AnomalyType     AnomalyType   `json:"anomaly_type"`
	Severity        Severity      `json:"severity"`
	EstimatedValue  float64       `json:"estimated_value"`
	Currency        string        `json:"currency"`
	ConfidenceScore float64       `json:"confidence_score"`
	Evidence        Evidence      `json:"evidence"`
	RelatedEventIDs []string      `json:"related_event_ids"`
	Status          FindingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

// SeverityForValue 按可追回金额划定严重程度
func SeverityForValue(value float64) Severity {
	switch {
	case value >= 1000:
		return SeverityCritical
	case value >= 250:
		return SeverityHigh
	case value >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ClampConfidence 置信度收敛到 [0.10, 0.99]
// 追回本质是概率事件，任何环节都不允许输出 0 或 1
func ClampConfidence(v float64) float64 {
	if v < 0.10 {
		return 0.10
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}

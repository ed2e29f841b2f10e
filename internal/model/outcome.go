package model

// ActualOutcome 争议 case 的最终结果
type ActualOutcome string

const (
	OutcomeApproved ActualOutcome = "approved"
	OutcomePartial  ActualOutcome = "partial"
	OutcomeDenied   ActualOutcome = "denied"
	OutcomePending  ActualOutcome = "pending"
	OutcomeExpired  ActualOutcome = "expired"
)

// Resolved 判断结果是否已终态（统计只看终态样本）
func (o ActualOutcome) Resolved() bool {
	switch o {
	case OutcomeApproved, OutcomePartial, OutcomeDenied, OutcomeExpired:
		return true
	}
	return false
}

// Outcome 已解决 case 的回流结果
// 以 DetectionResultID 为键做幂等 upsert，重复同步同一 case 不产生重复记录
type Outcome struct {
	DetectionResultID    string        `json:"detection_result_id"`
	SellerID             string        `json:"seller_id"`
	AnomalyType          AnomalyType   `json:"anomaly_type"`
	PredictedConfidence  float64       `json:"predicted_confidence"`
	EstimatedValue       float64       `json:"estimated_value"`
	ActualOutcome        ActualOutcome `json:"actual_outcome"`
	RecoveryAmount       float64       `json:"recovery_amount"`
	EvidenceCompleteness float64       `json:"evidence_completeness"`
	ClaimAgeDays         int           `json:"claim_age_days"`
	TimeToResolutionDays float64       `json:"time_to_resolution_days"`
	Marketplace          string        `json:"marketplace"`
	DenialReason         string        `json:"denial_reason,omitempty"`
}

// OutcomeFromCaseStatus 外部 case 状态到 Outcome 的映射
// 注意：closed 映射为 expired 而不是 denied——无结论关单与明确拒赔
// 混为一谈会污染校准先验
func OutcomeFromCaseStatus(status string) ActualOutcome {
	switch status {
	case "approved", "reimbursed":
		return OutcomeApproved
	case "partial", "partially_approved":
		return OutcomePartial
	case "denied", "rejected":
		return OutcomeDenied
	case "closed", "expired":
		return OutcomeExpired
	default:
		return OutcomePending
	}
}

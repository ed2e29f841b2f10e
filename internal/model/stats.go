package model

// GroupStats 单个分组的聚合指标
type GroupStats struct {
	Total              int     `json:"total"`
	Approved           int     `json:"approved"`
	Partial            int     `json:"partial"`
	Denied             int     `json:"denied"`
	Expired            int     `json:"expired"`
	ApprovalRate       float64 `json:"approval_rate"`        // (approved + 0.5*partial) / total
	RecoveryRate       float64 `json:"recovery_rate"`        // 追回金额 / 索赔金额
	MeanResolutionDays float64 `json:"mean_resolution_days"` // 仅统计解决时长为正的样本
	TotalClaimed       float64 `json:"total_claimed"`
	TotalRecovered     float64 `json:"total_recovered"`
}

// OutcomeStats 四个维度的结果统计，供校准器与报表消费
type OutcomeStats struct {
	TotalResolved   int                   `json:"total_resolved"`
	ByAnomalyType   map[string]GroupStats `json:"by_anomaly_type"`
	ByMarketplace   map[string]GroupStats `json:"by_marketplace"`
	ByClaimAge      map[string]GroupStats `json:"by_claim_age"`
	ByEvidenceLevel map[string]GroupStats `json:"by_evidence_level"`
	DenialReasons   map[string]int        `json:"denial_reasons"`
}

// TypeStats 单个异常类型的历史通过率统计（校准器输入）
type TypeStats struct {
	AnomalyType  AnomalyType `json:"anomaly_type"`
	Approved     int         `json:"approved"`
	Partial      int         `json:"partial"`
	Resolved     int         `json:"resolved"`
	ApprovalRate float64     `json:"approval_rate"`
}

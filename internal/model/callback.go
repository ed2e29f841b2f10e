package model

// CallbackStatus 回调状态
const (
	CallbackStatusSuccess = "SUCCESS"
	CallbackStatusFailed  = "FAILED"
)

// DetectionCallback 检测完成回调消息
// 投递到 lmstfy 回调队列，供争议管理服务消费
type DetectionCallback struct {
	RequestID      string   `json:"request_id"`
	SellerID       string   `json:"seller_id"`
	SyncID         string   `json:"sync_id"`
	Status         string   `json:"status"` // SUCCESS/FAILED
	FindingCount   int      `json:"finding_count"`
	PromotedCases  []string `json:"promoted_cases,omitempty"`
	Error          string   `json:"error,omitempty"`
	ProcessedAt    int64    `json:"processed_at"`
}

// TriggerEvent 上游同步完成事件（Redis pub/sub 载荷）
type TriggerEvent struct {
	SellerID    string      `json:"seller_id"`
	SyncID      string      `json:"sync_id"`
	TriggerType TriggerType `json:"trigger_type"`
	Priority    Priority    `json:"priority,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

package model

import (
	"fmt"
	"time"
)

// TriggerType 检测触发类型
type TriggerType string

const (
	TriggerFinancial TriggerType = "financial"
	TriggerInventory TriggerType = "inventory"
	TriggerProduct   TriggerType = "product"
	TriggerManual    TriggerType = "manual"
)

// Valid 判断触发类型是否合法
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerFinancial, TriggerInventory, TriggerProduct, TriggerManual:
		return true
	}
	return false
}

// Priority 任务优先级
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Score 优先级分值（critical=4 ... low=1），队列排序依据
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid 判断优先级是否合法
func (p Priority) Valid() bool {
	return p.Score() > 0
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DetectionJob 检测任务
// 身份键为 (seller_id, sync_id, trigger_type)，重复入队不会重复处理
type DetectionJob struct {
	SellerID    string      `json:"seller_id"`
	SyncID      string      `json:"sync_id"`
	TriggerType TriggerType `json:"trigger_type"`
	Priority    Priority    `json:"priority"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"max_attempts"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Key 任务身份键（队列去重与存储主键共用）
func (j *DetectionJob) Key() string {
	return fmt.Sprintf("%s:%s:%s", j.SellerID, j.SyncID, j.TriggerType)
}

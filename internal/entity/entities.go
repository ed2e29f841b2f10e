package entity

import (
	"time"

	"gorm.io/datatypes"
)

// DetectionJob 检测任务实体
// 主键为 seller:sync:trigger 组合键，重复触发 upsert 不产生新行
type DetectionJob struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(192)"`
	SellerID    string    `gorm:"column:seller_id;type:varchar(64);not null;index:idx_seller_status"`
	SyncID      string    `gorm:"column:sync_id;type:varchar(64);not null"`
	TriggerType string    `gorm:"column:trigger_type;type:varchar(16);not null"`
	Priority    string    `gorm:"column:priority;type:varchar(16);not null"`
	Status      string    `gorm:"column:status;type:varchar(16);not null;default:'queued';index:idx_seller_status"`
	Attempts    int       `gorm:"column:attempts;not null;default:0"`
	MaxAttempts int       `gorm:"column:max_attempts;not null;default:3"`
	LastError   string    `gorm:"column:last_error;type:varchar(1024)"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (DetectionJob) TableName() string {
	return "detection_jobs"
}

// Finding 异常检出实体
type Finding struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	SellerID        string         `gorm:"column:seller_id;type:varchar(64);not null;index:idx_seller_sync"`
	SyncID          string         `gorm:"column:sync_id;type:varchar(64);not null;index:idx_seller_sync"`
	AnomalyType     string         `gorm:"column:anomaly_type;type:varchar(32);not null;index:idx_anomaly_type"`
	Severity        string         `gorm:"column:severity;type:varchar(16);not null"`
	EstimatedValue  float64        `gorm:"column:estimated_value;not null"`
	Currency        string         `gorm:"column:currency;type:varchar(8);not null"`
	ConfidenceScore float64        `gorm:"column:confidence_score;not null"`
	Evidence        datatypes.JSON `gorm:"column:evidence;type:json"`
	RelatedEventIDs datatypes.JSON `gorm:"column:related_event_ids;type:json"`
	Status          string         `gorm:"column:status;type:varchar(16);not null;default:'pending'"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (Finding) TableName() string {
	return "findings"
}

// Outcome 回流结果实体（detection_result_id 为主键，重复同步幂等覆盖）
type Outcome struct {
	DetectionResultID    string    `gorm:"column:detection_result_id;primaryKey;type:varchar(64)"`
	SellerID             string    `gorm:"column:seller_id;type:varchar(64);not null;index:idx_outcome_seller"`
	AnomalyType          string    `gorm:"column:anomaly_type;type:varchar(32);not null;index:idx_outcome_type"`
	PredictedConfidence  float64   `gorm:"column:predicted_confidence;not null"`
	EstimatedValue       float64   `gorm:"column:estimated_value;not null"`
	ActualOutcome        string    `gorm:"column:actual_outcome;type:varchar(16);not null"`
	RecoveryAmount       float64   `gorm:"column:recovery_amount;not null;default:0"`
	EvidenceCompleteness float64   `gorm:"column:evidence_completeness;not null;default:0"`
	ClaimAgeDays         int       `gorm:"column:claim_age_days;not null;default:0"`
	TimeToResolutionDays float64   `gorm:"column:time_to_resolution_days;not null;default:0"`
	Marketplace          string    `gorm:"column:marketplace;type:varchar(32)"`
	DenialReason         string    `gorm:"column:denial_reason;type:varchar(64)"`
	CreatedAt            time.Time `gorm:"column:created_at;not null"`
	UpdatedAt            time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (Outcome) TableName() string {
	return "outcomes"
}

// SyncSnapshot 同步数据快照实体
// 数据同步侧每次同步完成写入一份完整快照，检测侧按 (seller, sync) 读取
type SyncSnapshot struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	SellerID  string         `gorm:"column:seller_id;type:varchar(64);not null;uniqueIndex:uk_seller_sync"`
	SyncID    string         `gorm:"column:sync_id;type:varchar(64);not null;uniqueIndex:uk_seller_sync"`
	Payload   datatypes.JSON `gorm:"column:payload;type:json;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (SyncSnapshot) TableName() string {
	return "sync_snapshots"
}

// DisputeCase 争议 case 本地投影实体
// case 本体归争议管理服务所有；本表是检测侧的只读投影，
// 记录升级来源与命令下发后的本地状态
type DisputeCase struct {
	CaseID      string    `gorm:"column:case_id;primaryKey;type:varchar(64)"`
	SellerID    string    `gorm:"column:seller_id;type:varchar(64);not null;index:idx_case_seller"`
	FindingID   int64     `gorm:"column:finding_id;not null;index:idx_case_finding"`
	CaseType    string    `gorm:"column:case_type;type:varchar(32);not null"`
	Marketplace string    `gorm:"column:marketplace;type:varchar(32)"`
	Amount      float64   `gorm:"column:amount;not null"`
	Currency    string    `gorm:"column:currency;type:varchar(8);not null"`
	Status      string    `gorm:"column:status;type:varchar(16);not null;default:'created'"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (DisputeCase) TableName() string {
	return "dispute_cases"
}

// AutomationRule 自动化规则实体
type AutomationRule struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	SellerID    string         `gorm:"column:seller_id;type:varchar(64);not null;index:idx_rule_seller"`
	RuleType    string         `gorm:"column:rule_type;type:varchar(32);not null"`
	Conditions  datatypes.JSON `gorm:"column:conditions;type:json"`
	AutoSubmit  bool           `gorm:"column:auto_submit;not null;default:false"`
	AutoApprove bool           `gorm:"column:auto_approve;not null;default:false"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	Priority    int            `gorm:"column:priority;not null;default:0"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (AutomationRule) TableName() string {
	return "automation_rules"
}

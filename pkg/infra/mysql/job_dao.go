package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drp/internal/entity"
	"drp/internal/model"
)

// JobDAO 检测任务数据访问对象（实现 scheduler.JobStore）
type JobDAO struct {
	db *gorm.DB
}

// NewJobDAO 创建 JobDAO 实例
func NewJobDAO(db *gorm.DB) *JobDAO {
	return &JobDAO{db: db}
}

// Save 保存任务（同键 upsert，重复触发不产生新行）
func (dao *JobDAO) Save(ctx context.Context, job *model.DetectionJob, status model.JobStatus) error {
	now := time.Now()
	po := &entity.DetectionJob{
		ID:          job.Key(),
		SellerID:    job.SellerID,
		SyncID:      job.SyncID,
		TriggerType: string(job.TriggerType),
		Priority:    string(job.Priority),
		Status:      string(status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"priority", "status", "updated_at"}),
		}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("save job failed: %w", err)
	}
	return nil
}

// SetStatus 更新任务状态与重试计数
func (dao *JobDAO) SetStatus(ctx context.Context, key string, status model.JobStatus, attempts int, lastError string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"attempts":   attempts,
		"updated_at": time.Now(),
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}

	result := dao.db.WithContext(ctx).
		Model(&entity.DetectionJob{}).
		Where("id = ?", key).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("set job status failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %s", key)
	}
	return nil
}

// ListFailed 查询永久失败的任务（运维跟进入口）
func (dao *JobDAO) ListFailed(ctx context.Context, sellerID string, limit int) ([]entity.DetectionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []entity.DetectionJob
	query := dao.db.WithContext(ctx).
		Where("status = ?", string(model.JobStatusFailed)).
		Order("updated_at DESC").
		Limit(limit)
	if sellerID != "" {
		query = query.Where("seller_id = ?", sellerID)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list failed jobs failed: %w", err)
	}
	return jobs, nil
}

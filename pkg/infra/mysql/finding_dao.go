package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drp/internal/entity"
	"drp/internal/model"
	"drp/pkg/idgen"
)

// FindingDAO 异常检出数据访问对象
type FindingDAO struct {
	db *gorm.DB
}

// NewFindingDAO 创建 FindingDAO 实例
func NewFindingDAO(db *gorm.DB) *FindingDAO {
	return &FindingDAO{db: db}
}

// SaveAll 批量保存检出结果（无主键时分配雪花 ID）
func (dao *FindingDAO) SaveAll(ctx context.Context, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	now := time.Now()
	pos := make([]entity.Finding, 0, len(findings))
	for i := range findings {
		f := &findings[i]
		if f.ID == 0 {
			f.ID = idgen.GenerateID()
		}

		evidenceJSON, err := json.Marshal(f.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence failed: %w", err)
		}
		relatedJSON, err := json.Marshal(f.RelatedEventIDs)
		if err != nil {
			return fmt.Errorf("marshal related_event_ids failed: %w", err)
		}

		pos = append(pos, entity.Finding{
			ID:              f.ID,
			SellerID:        f.SellerID,
			SyncID:          f.SyncID,
			AnomalyType:     string(f.AnomalyType),
			Severity:        string(f.Severity),
			EstimatedValue:  f.EstimatedValue,
			Currency:        f.Currency,
			ConfidenceScore: f.ConfidenceScore,
			Evidence:        evidenceJSON,
			RelatedEventIDs: relatedJSON,
			Status:          string(f.Status),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	err := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "confidence_score", "updated_at"}),
		}).
		Create(&pos).Error
	if err != nil {
		return fmt.Errorf("save findings failed: %w", err)
	}
	return nil
}

// List 分页查询检出结果（syncID / status 可选过滤）
func (dao *FindingDAO) List(ctx context.Context, sellerID, syncID string, status model.FindingStatus, page, limit int) ([]model.Finding, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := dao.db.WithContext(ctx).Model(&entity.Finding{}).Where("seller_id = ?", sellerID)
	if syncID != "" {
		query = query.Where("sync_id = ?", syncID)
	}
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count findings failed: %w", err)
	}

	var pos []entity.Finding
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list findings failed: %w", err)
	}

	findings := make([]model.Finding, 0, len(pos))
	for i := range pos {
		f, err := dao.toModel(&pos[i])
		if err != nil {
			return nil, 0, err
		}
		findings = append(findings, *f)
	}
	return findings, total, nil
}

// SetStatus 更新单条检出的状态（pending → promoted/dismissed）
func (dao *FindingDAO) SetStatus(ctx context.Context, id int64, status model.FindingStatus) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.Finding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("set finding status failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("finding not found: %d", id)
	}
	return nil
}

// toModel 实体转领域模型
func (dao *FindingDAO) toModel(po *entity.Finding) (*model.Finding, error) {
	var evidence model.Evidence
	if len(po.Evidence) > 0 {
		if err := json.Unmarshal(po.Evidence, &evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence failed: %w", err)
		}
	}
	var related []string
	if len(po.RelatedEventIDs) > 0 {
		if err := json.Unmarshal(po.RelatedEventIDs, &related); err != nil {
			return nil, fmt.Errorf("unmarshal related_event_ids failed: %w", err)
		}
	}

	return &model.Finding{
		ID:              po.ID,
		SellerID:        po.SellerID,
		SyncID:          po.SyncID,
		AnomalyType:     model.AnomalyType(po.AnomalyType),
		Severity:        model.Severity(po.Severity),
		EstimatedValue:  po.EstimatedValue,
		Currency:        po.Currency,
		ConfidenceScore: po.ConfidenceScore,
		Evidence:        evidence,
		RelatedEventIDs: related,
		Status:          model.FindingStatus(po.Status),
		CreatedAt:       po.CreatedAt,
	}, nil
}

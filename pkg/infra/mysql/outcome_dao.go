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

// OutcomeDAO 回流结果数据访问对象（实现 outcome.Store）
type OutcomeDAO struct {
	db *gorm.DB
}

// NewOutcomeDAO 创建 OutcomeDAO 实例
func NewOutcomeDAO(db *gorm.DB) *OutcomeDAO {
	return &OutcomeDAO{db: db}
}

// Upsert 以 detection_result_id 为键幂等写入
// 外部 case 系统重复回流同一 case 时覆盖而不是新增
func (dao *OutcomeDAO) Upsert(ctx context.Context, o *model.Outcome) error {
	now := time.Now()
	po := &entity.Outcome{
		DetectionResultID:    o.DetectionResultID,
		SellerID:             o.SellerID,
		AnomalyType:          string(o.AnomalyType),
		PredictedConfidence:  o.PredictedConfidence,
		EstimatedValue:       o.EstimatedValue,
		ActualOutcome:        string(o.ActualOutcome),
		RecoveryAmount:       o.RecoveryAmount,
		EvidenceCompleteness: o.EvidenceCompleteness,
		ClaimAgeDays:         o.ClaimAgeDays,
		TimeToResolutionDays: o.TimeToResolutionDays,
		Marketplace:          o.Marketplace,
		DenialReason:         o.DenialReason,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "detection_result_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"actual_outcome", "recovery_amount", "evidence_completeness",
				"claim_age_days", "time_to_resolution_days", "denial_reason", "updated_at",
			}),
		}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("upsert outcome failed: %w", err)
	}
	return nil
}

// List 查询指定卖家/时间范围的 Outcome
func (dao *OutcomeDAO) List(ctx context.Context, sellerID string, from, to time.Time) ([]model.Outcome, error) {
	query := dao.db.WithContext(ctx).Model(&entity.Outcome{})
	if sellerID != "" {
		query = query.Where("seller_id = ?", sellerID)
	}
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at <= ?", to)
	}

	var pos []entity.Outcome
	if err := query.Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("list outcomes failed: %w", err)
	}

	outcomes := make([]model.Outcome, 0, len(pos))
	for i := range pos {
		outcomes = append(outcomes, dao.toModel(&pos[i]))
	}
	return outcomes, nil
}

// CountByType 统计指定异常类型的终态样本
func (dao *OutcomeDAO) CountByType(ctx context.Context, anomalyType model.AnomalyType) (approved, partial, resolved int, err error) {
	type row struct {
		ActualOutcome string
		Cnt           int
	}
	var rows []row
	err = dao.db.WithContext(ctx).
		Model(&entity.Outcome{}).
		Select("actual_outcome, COUNT(*) AS cnt").
		Where("anomaly_type = ?", string(anomalyType)).
		Group("actual_outcome").
		Find(&rows).Error
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count outcomes failed: %w", err)
	}

	for _, r := range rows {
		switch model.ActualOutcome(r.ActualOutcome) {
		case model.OutcomeApproved:
			approved += r.Cnt
			resolved += r.Cnt
		case model.OutcomePartial:
			partial += r.Cnt
			resolved += r.Cnt
		case model.OutcomeDenied, model.OutcomeExpired:
			resolved += r.Cnt
		}
	}
	return approved, partial, resolved, nil
}

// toModel 实体转领域模型
func (dao *OutcomeDAO) toModel(po *entity.Outcome) model.Outcome {
	return model.Outcome{
		DetectionResultID:    po.DetectionResultID,
		SellerID:             po.SellerID,
		AnomalyType:          model.AnomalyType(po.AnomalyType),
		PredictedConfidence:  po.PredictedConfidence,
		EstimatedValue:       po.EstimatedValue,
		ActualOutcome:        model.ActualOutcome(po.ActualOutcome),
		RecoveryAmount:       po.RecoveryAmount,
		EvidenceCompleteness: po.EvidenceCompleteness,
		ClaimAgeDays:         po.ClaimAgeDays,
		TimeToResolutionDays: po.TimeToResolutionDays,
		Marketplace:          po.Marketplace,
		DenialReason:         po.DenialReason,
	}
}

package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"drp/internal/entity"
	"drp/internal/model"
	"drp/pkg/idgen"
)

// RuleDAO 自动化规则数据访问对象（实现 automation.RuleStore）
type RuleDAO struct {
	db *gorm.DB
}

// NewRuleDAO 创建 RuleDAO 实例
func NewRuleDAO(db *gorm.DB) *RuleDAO {
	return &RuleDAO{db: db}
}

// Create 保存一条规则
func (dao *RuleDAO) Create(ctx context.Context, rule *model.AutomationRule) error {
	if rule.ID == 0 {
		rule.ID = idgen.GenerateID()
	}

	condJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions failed: %w", err)
	}

	now := time.Now()
	po := &entity.AutomationRule{
		ID:          rule.ID,
		SellerID:    rule.SellerID,
		RuleType:    string(rule.RuleType),
		Conditions:  condJSON,
		AutoSubmit:  rule.Actions.AutoSubmit,
		AutoApprove: rule.Actions.AutoApprove,
		IsActive:    rule.IsActive,
		Priority:    rule.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := dao.db.WithContext(ctx).Create(po).Error; err != nil {
		return fmt.Errorf("create rule failed: %w", err)
	}
	return nil
}

// ListActive 查询指定卖家的有效规则
func (dao *RuleDAO) ListActive(ctx context.Context, sellerID string) ([]model.AutomationRule, error) {
	var pos []entity.AutomationRule
	err := dao.db.WithContext(ctx).
		Where("seller_id = ? AND is_active = ?", sellerID, true).
		Order("priority DESC").
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("list rules failed: %w", err)
	}

	rules := make([]model.AutomationRule, 0, len(pos))
	for i := range pos {
		rule, err := dao.toModel(&pos[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// toModel 实体转领域模型
func (dao *RuleDAO) toModel(po *entity.AutomationRule) (*model.AutomationRule, error) {
	var cond model.RuleConditions
	if len(po.Conditions) > 0 {
		if err := json.Unmarshal(po.Conditions, &cond); err != nil {
			return nil, fmt.Errorf("unmarshal conditions failed: %w", err)
		}
	}

	return &model.AutomationRule{
		ID:         po.ID,
		SellerID:   po.SellerID,
		RuleType:   model.RuleType(po.RuleType),
		Conditions: cond,
		Actions: model.RuleActions{
			AutoSubmit:  po.AutoSubmit,
			AutoApprove: po.AutoApprove,
		},
		IsActive:  po.IsActive,
		Priority:  po.Priority,
		CreatedAt: po.CreatedAt,
	}, nil
}

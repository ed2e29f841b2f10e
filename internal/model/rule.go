package model

import "time"

// RuleType 自动化规则类型
type RuleType string

const (
	RuleAutoSubmit  RuleType = "auto_submit"
	RuleAutoApprove RuleType = "auto_approve"
	RuleAutoDismiss RuleType = "auto_dismiss"
)

// RuleConditions 规则条件（合取，全部满足才命中）
// 未设置的边界视为不约束
type RuleConditions struct {
	CaseType    string   `json:"case_type,omitempty"`
	Marketplace string   `json:"marketplace,omitempty"`
	MinAmount   *float64 `json:"min_amount,omitempty"`
	MaxAmount   *float64 `json:"max_amount,omitempty"`
}

// RuleActions 规则动作
type RuleActions struct {
	AutoSubmit  bool `json:"auto_submit,omitempty"`
	AutoApprove bool `json:"auto_approve,omitempty"`
}

// AutomationRule 卖家自定义的自动化规则
type AutomationRule struct {
	ID         int64          `json:"id"`
	SellerID   string         `json:"seller_id"`
	RuleType   RuleType       `json:"rule_type"`
	Conditions RuleConditions `json:"conditions"`
	Actions    RuleActions    `json:"actions"`
	IsActive   bool           `json:"is_active"`
	Priority   int            `json:"priority"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DisputeCase 争议 case 的只读视图
// case 本体归争议管理服务所有，规则引擎只读取字段、发起动作
type DisputeCase struct {
	CaseID      string  `json:"case_id"`
	SellerID    string  `json:"seller_id"`
	CaseType    string  `json:"case_type"`
	Marketplace string  `json:"marketplace"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
}

package automation

import (
	"context"
	"fmt"
	"sort"

	"drp/internal/model"
	"drp/pkg/logger"
)

// 动作名
const (
	ActionSubmit  = "submit"
	ActionApprove = "approve"
)

// CaseActioner 争议 case 动作接口（争议管理服务实现）
// 动作对调用方幂等：重复提交已提交的 case 由对端报告 no-op，
// 不构成引擎层错误
type CaseActioner interface {
	SubmitCase(ctx context.Context, caseID string) error
	ApproveCase(ctx context.Context, caseID string) error
}

// RuleStore 规则持久化接口
type RuleStore interface {
	Create(ctx context.Context, rule *model.AutomationRule) error
	ListActive(ctx context.Context, sellerID string) ([]model.AutomationRule, error)
}

// ActionResult 单个动作的执行结果
type ActionResult struct {
	Action string `json:"action"`
	Error  string `json:"error,omitempty"`
}

// RuleExecution 单条规则对单个 case 的执行记录（审计用）
type RuleExecution struct {
	RuleID   int64          `json:"rule_id"`
	RuleType model.RuleType `json:"rule_type"`
	Matched  bool           `json:"matched"`
	Actions  []ActionResult `json:"actions,omitempty"`
}

// Engine 自动化规则引擎
// 规则按 priority 降序逐条评估，规则间不短路——同一 case 可命中多条
type Engine struct {
	cases  CaseActioner
	rules  RuleStore
	logger logger.Logger
}

// NewEngine 创建规则引擎
func NewEngine(cases CaseActioner, rules RuleStore, log logger.Logger) *Engine {
	return &Engine{
		cases:  cases,
		rules:  rules,
		logger: log,
	}
}

// CreateRule 校验并保存一条规则
func (e *Engine) CreateRule(ctx context.Context, rule *model.AutomationRule) error {
	if rule == nil {
		return fmt.Errorf("rule is nil")
	}
	if rule.SellerID == "" {
		return fmt.Errorf("seller_id is required")
	}
	switch rule.RuleType {
	case model.RuleAutoSubmit, model.RuleAutoApprove, model.RuleAutoDismiss:
	default:
		return fmt.Errorf("unknown rule_type: %s", rule.RuleType)
	}
	if min, max := rule.Conditions.MinAmount, rule.Conditions.MaxAmount; min != nil && max != nil && *min > *max {
		return fmt.Errorf("min_amount exceeds max_amount")
	}
	return e.rules.Create(ctx, rule)
}

// Evaluate 评估单条规则是否命中（条件合取，全部满足才命中）
// 未设置的边界视为不约束
func Evaluate(rule *model.AutomationRule, c *model.DisputeCase) bool {
	if rule == nil || c == nil || !rule.IsActive {
		return false
	}
	cond := rule.Conditions

	if cond.CaseType != "" && cond.CaseType != c.CaseType {
		return false
	}
	if cond.Marketplace != "" && cond.Marketplace != c.Marketplace {
		return false
	}
	if cond.MinAmount != nil && c.Amount < *cond.MinAmount {
		return false
	}
	if cond.MaxAmount != nil && c.Amount > *cond.MaxAmount {
		return false
	}
	return true
}

// Execute 执行单条已命中规则的动作，每个动作恰好调用一次
func (e *Engine) Execute(ctx context.Context, rule *model.AutomationRule, c *model.DisputeCase) []ActionResult {
	results := make([]ActionResult, 0, 2)

	if rule.Actions.AutoSubmit {
		r := ActionResult{Action: ActionSubmit}
		if err := e.cases.SubmitCase(ctx, c.CaseID); err != nil {
			r.Error = err.Error()
			e.logger.Warnf(ctx, "[RuleEngine] submit failed: case=%s, rule=%d, error=%v", c.CaseID, rule.ID, err)
		} else {
			e.logger.Infof(ctx, "[RuleEngine] case submitted: case=%s, rule=%d", c.CaseID, rule.ID)
		}
		results = append(results, r)
	}

	if rule.Actions.AutoApprove {
		r := ActionResult{Action: ActionApprove}
		if err := e.cases.ApproveCase(ctx, c.CaseID); err != nil {
			r.Error = err.Error()
			e.logger.Warnf(ctx, "[RuleEngine] approve failed: case=%s, rule=%d, error=%v", c.CaseID, rule.ID, err)
		} else {
			e.logger.Infof(ctx, "[RuleEngine] case approved: case=%s, rule=%d", c.CaseID, rule.ID)
		}
		results = append(results, r)
	}

	return results
}

// EvaluateAndExecute 对单个 case 评估并执行该卖家的全部有效规则
func (e *Engine) EvaluateAndExecute(ctx context.Context, c *model.DisputeCase) ([]RuleExecution, error) {
	if c == nil || c.CaseID == "" {
		return nil, fmt.Errorf("case_id is required")
	}

	rules, err := e.rules.ListActive(ctx, c.SellerID)
	if err != nil {
		return nil, fmt.Errorf("list rules failed: %w", err)
	}

	// priority 降序；同优先级按 ID 保证稳定顺序
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	executions := make([]RuleExecution, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		exec := RuleExecution{
			RuleID:   rule.ID,
			RuleType: rule.RuleType,
		}
		if Evaluate(rule, c) {
			exec.Matched = true
			exec.Actions = e.Execute(ctx, rule, c)
		}
		executions = append(executions, exec)
	}

	return executions, nil
}

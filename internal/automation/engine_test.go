package automation_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drp/internal/automation"
	"drp/internal/model"
	"drp/pkg/logger"
)

func ptr(v float64) *float64 { return &v }

// fakeActioner 记录动作调用
type fakeActioner struct {
	submitted []string
	approved  []string
	submitErr error
}

func (f *fakeActioner) SubmitCase(_ context.Context, caseID string) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, caseID)
	return nil
}

func (f *fakeActioner) ApproveCase(_ context.Context, caseID string) error {
	f.approved = append(f.approved, caseID)
	return nil
}

// fakeRuleStore 内存规则存储
type fakeRuleStore struct {
	rules []model.AutomationRule
}

func (f *fakeRuleStore) Create(_ context.Context, rule *model.AutomationRule) error {
	f.rules = append(f.rules, *rule)
	return nil
}

func (f *fakeRuleStore) ListActive(_ context.Context, sellerID string) ([]model.AutomationRule, error) {
	out := make([]model.AutomationRule, 0)
	for _, r := range f.rules {
		if r.SellerID == sellerID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func testCase() *model.DisputeCase {
	return &model.DisputeCase{
		CaseID:      "case-1",
		SellerID:    "seller-1",
		CaseType:    "amazon_fba",
		Marketplace: "US",
		Amount:      100,
		Currency:    "USD",
	}
}

// ---- Evaluate ------------------------------------------------------------

func TestEvaluate_ConjunctionOfConditions(t *testing.T) {
	rule := &model.AutomationRule{
		SellerID: "seller-1",
		RuleType: model.RuleAutoSubmit,
		IsActive: true,
		Conditions: model.RuleConditions{
			CaseType:  "amazon_fba",
			MinAmount: ptr(50),
			MaxAmount: ptr(1000),
		},
	}

	c := testCase()
	assert.True(t, automation.Evaluate(rule, c), "amount 100 within [50, 1000]")

	c.Amount = 10
	assert.False(t, automation.Evaluate(rule, c), "below min_amount")

	c.Amount = 2000
	assert.False(t, automation.Evaluate(rule, c), "above max_amount")

	c.Amount = 100
	c.CaseType = "other"
	assert.False(t, automation.Evaluate(rule, c), "case_type mismatch")
}

func TestEvaluate_UnsetBoundsUnconstrained(t *testing.T) {
	rule := &model.AutomationRule{
		SellerID:   "seller-1",
		RuleType:   model.RuleAutoSubmit,
		IsActive:   true,
		Conditions: model.RuleConditions{},
	}

	c := testCase()
	c.Amount = 0.01
	assert.True(t, automation.Evaluate(rule, c))
}

func TestEvaluate_InactiveRuleNeverMatches(t *testing.T) {
	rule := &model.AutomationRule{
		SellerID: "seller-1",
		RuleType: model.RuleAutoSubmit,
		IsActive: false,
	}
	assert.False(t, automation.Evaluate(rule, testCase()))
}

func TestEvaluate_MarketplaceCondition(t *testing.T) {
	rule := &model.AutomationRule{
		SellerID:   "seller-1",
		RuleType:   model.RuleAutoSubmit,
		IsActive:   true,
		Conditions: model.RuleConditions{Marketplace: "DE"},
	}
	assert.False(t, automation.Evaluate(rule, testCase()))
}

// ---- CreateRule ----------------------------------------------------------

func TestCreateRule_Validation(t *testing.T) {
	store := &fakeRuleStore{}
	e := automation.NewEngine(&fakeActioner{}, store, logger.Nop{})
	ctx := context.Background()

	assert.Error(t, e.CreateRule(ctx, nil))
	assert.Error(t, e.CreateRule(ctx, &model.AutomationRule{RuleType: model.RuleAutoSubmit}))
	assert.Error(t, e.CreateRule(ctx, &model.AutomationRule{SellerID: "seller-1", RuleType: "bogus"}))
	assert.Error(t, e.CreateRule(ctx, &model.AutomationRule{
		SellerID:   "seller-1",
		RuleType:   model.RuleAutoSubmit,
		Conditions: model.RuleConditions{MinAmount: ptr(100), MaxAmount: ptr(50)},
	}))
	assert.Empty(t, store.rules)

	require.NoError(t, e.CreateRule(ctx, &model.AutomationRule{
		SellerID: "seller-1",
		RuleType: model.RuleAutoSubmit,
		IsActive: true,
	}))
	assert.Len(t, store.rules, 1)
}

// ---- EvaluateAndExecute --------------------------------------------------

func TestEvaluateAndExecute_PriorityOrderNoShortCircuit(t *testing.T) {
	actioner := &fakeActioner{}
	store := &fakeRuleStore{rules: []model.AutomationRule{
		{ID: 1, SellerID: "seller-1", RuleType: model.RuleAutoSubmit, IsActive: true, Priority: 5,
			Actions: model.RuleActions{AutoSubmit: true}},
		{ID: 2, SellerID: "seller-1", RuleType: model.RuleAutoApprove, IsActive: true, Priority: 10,
			Actions: model.RuleActions{AutoApprove: true}},
	}}
	e := automation.NewEngine(actioner, store, logger.Nop{})

	execs, err := e.EvaluateAndExecute(context.Background(), testCase())
	require.NoError(t, err)
	require.Len(t, execs, 2)

	// 优先级降序评估，规则间不短路
	assert.Equal(t, int64(2), execs[0].RuleID)
	assert.Equal(t, int64(1), execs[1].RuleID)
	assert.True(t, execs[0].Matched)
	assert.True(t, execs[1].Matched)

	assert.Equal(t, []string{"case-1"}, actioner.approved)
	assert.Equal(t, []string{"case-1"}, actioner.submitted)
}

func TestEvaluateAndExecute_ActionErrorCapturedNotFatal(t *testing.T) {
	actioner := &fakeActioner{submitErr: fmt.Errorf("case service unavailable")}
	store := &fakeRuleStore{rules: []model.AutomationRule{
		{ID: 1, SellerID: "seller-1", RuleType: model.RuleAutoSubmit, IsActive: true,
			Actions: model.RuleActions{AutoSubmit: true, AutoApprove: true}},
	}}
	e := automation.NewEngine(actioner, store, logger.Nop{})

	execs, err := e.EvaluateAndExecute(context.Background(), testCase())
	require.NoError(t, err, "action errors live in the execution record")
	require.Len(t, execs, 1)
	require.Len(t, execs[0].Actions, 2)

	assert.Equal(t, automation.ActionSubmit, execs[0].Actions[0].Action)
	assert.Contains(t, execs[0].Actions[0].Error, "unavailable")

	// submit 失败不阻止 approve 执行
	assert.Equal(t, automation.ActionApprove, execs[0].Actions[1].Action)
	assert.Empty(t, execs[0].Actions[1].Error)
	assert.Equal(t, []string{"case-1"}, actioner.approved)
}

func TestEvaluateAndExecute_RequiresCaseID(t *testing.T) {
	e := automation.NewEngine(&fakeActioner{}, &fakeRuleStore{}, logger.Nop{})
	_, err := e.EvaluateAndExecute(context.Background(), &model.DisputeCase{SellerID: "seller-1"})
	assert.Error(t, err)
}

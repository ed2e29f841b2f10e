package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drp/internal/automation"
	"drp/internal/calibrate"
	"drp/internal/detect"
	"drp/internal/model"
	"drp/internal/outcome"
	"drp/internal/realtime"
	"drp/internal/scheduler"
	"drp/internal/service"
	"drp/pkg/errorutil"
	"drp/pkg/logger"
)

// daysAgo 相对当前时钟取历史时间（ProcessJob 用真实时钟做窗口判断）
func daysAgo(n int) time.Time { return time.Now().AddDate(0, 0, -n) }

// ---- fakes ---------------------------------------------------------------

type fakeProvider struct {
	data *detect.SyncedData
	err  error
}

func (f *fakeProvider) Fetch(_ context.Context, _, _ string) (*detect.SyncedData, error) {
	return f.data, f.err
}

type fakeFindingStore struct {
	mu       sync.Mutex
	saved    []model.Finding
	statuses map[int64]model.FindingStatus
	nextID   int64
}

func newFakeFindingStore() *fakeFindingStore {
	return &fakeFindingStore{statuses: make(map[int64]model.FindingStatus)}
}

func (f *fakeFindingStore) SaveAll(_ context.Context, findings []model.Finding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range findings {
		if findings[i].ID == 0 {
			f.nextID++
			findings[i].ID = f.nextID
		}
	}
	f.saved = append(f.saved, findings...)
	return nil
}

func (f *fakeFindingStore) List(_ context.Context, _, _ string, _ model.FindingStatus, _, _ int) ([]model.Finding, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Finding(nil), f.saved...), int64(len(f.saved)), nil
}

func (f *fakeFindingStore) SetStatus(_ context.Context, id int64, status model.FindingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

type fakeCaseService struct {
	mu        sync.Mutex
	created   []model.DisputeCase
	submitted []string
}

func (f *fakeCaseService) CreateCase(_ context.Context, finding *model.Finding) (*model.DisputeCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := model.DisputeCase{
		CaseID:   fmt.Sprintf("case-%d", len(f.created)+1),
		SellerID: finding.SellerID,
		CaseType: "lost_inventory",
		Amount:   finding.EstimatedValue,
		Currency: finding.Currency,
	}
	f.created = append(f.created, c)
	return &c, nil
}

func (f *fakeCaseService) SubmitCase(_ context.Context, caseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, caseID)
	return nil
}

func (f *fakeCaseService) ApproveCase(_ context.Context, _ string) error { return nil }

func (f *fakeCaseService) GetCase(_ context.Context, caseID string) (*model.DisputeCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.created {
		if c.CaseID == caseID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("case not found: %s", caseID)
}

type fakeOutcomeStore struct {
	outcomes map[string]model.Outcome
}

func (s *fakeOutcomeStore) Upsert(_ context.Context, o *model.Outcome) error {
	s.outcomes[o.DetectionResultID] = *o
	return nil
}

func (s *fakeOutcomeStore) List(_ context.Context, _ string, _, _ time.Time) ([]model.Outcome, error) {
	out := make([]model.Outcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeOutcomeStore) CountByType(_ context.Context, anomalyType model.AnomalyType) (approved, partial, resolved int, err error) {
	for _, o := range s.outcomes {
		if o.AnomalyType != anomalyType || !o.ActualOutcome.Resolved() {
			continue
		}
		resolved++
		switch o.ActualOutcome {
		case model.OutcomeApproved:
			approved++
		case model.OutcomePartial:
			partial++
		}
	}
	return approved, partial, resolved, nil
}

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

type fakeCallback struct {
	mu        sync.Mutex
	callbacks []model.DetectionCallback
}

func (f *fakeCallback) PublishCallback(_ string, cb *model.DetectionCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, *cb)
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	channels map[string]chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{channels: make(map[string]chan string)}
}

func (f *fakeSource) Subscribe(_ context.Context, channel string) (<-chan string, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan string, 4)
	f.channels[channel] = ch
	return ch, func() {}, nil
}

func (f *fakeSource) publish(channel, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channel]; ok {
		ch <- payload
	}
}

type fakeJobStore struct{}

func (fakeJobStore) Save(context.Context, *model.DetectionJob, model.JobStatus) error { return nil }
func (fakeJobStore) SetStatus(context.Context, string, model.JobStatus, int, string) error {
	return nil
}

// ---- fixture -------------------------------------------------------------

type fixture struct {
	svc      *service.DetectionService
	provider *fakeProvider
	findings *fakeFindingStore
	cases    *fakeCaseService
	callback *fakeCallback
	outcomes *fakeOutcomeStore
}

// lostInventoryData 盘亏场景：赤字 20 件 × 单价 10
func lostInventoryData() *detect.SyncedData {
	return &detect.SyncedData{
		Ledger: []detect.LedgerEvent{
			{EventID: "ev-1", SKU: "SKU-A", FulfillmentCenter: "FC1", EventType: detect.EventTypeReceipts,
				Quantity: 70, PostedAt: daysAgo(30)},
		},
		Balances: []detect.BalanceSnapshot{
			{SKU: "SKU-A", FulfillmentCenter: "FC1", Quantity: 50, SnapshotAt: daysAgo(1)},
		},
		UnitValues: map[string]float64{"SKU-A": 10},
		Currency:   "USD",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Nop{}

	provider := &fakeProvider{data: lostInventoryData()}
	findings := newFakeFindingStore()
	cases := &fakeCaseService{}
	callback := &fakeCallback{}
	outcomes := &fakeOutcomeStore{outcomes: make(map[string]model.Outcome)}

	// 历史先验：lost_warehouse 50 个终态样本，通过率 70%
	for i := 0; i < 35; i++ {
		outcomes.outcomes[fmt.Sprintf("a-%d", i)] = model.Outcome{
			DetectionResultID: fmt.Sprintf("a-%d", i),
			AnomalyType:       model.AnomalyLostWarehouse,
			ActualOutcome:     model.OutcomeApproved,
		}
	}
	for i := 0; i < 15; i++ {
		outcomes.outcomes[fmt.Sprintf("d-%d", i)] = model.Outcome{
			DetectionResultID: fmt.Sprintf("d-%d", i),
			AnomalyType:       model.AnomalyLostWarehouse,
			ActualOutcome:     model.OutcomeDenied,
		}
	}

	tracker := outcome.NewTracker(outcomes, nil, log)
	calibrator := calibrate.NewCalibrator(tracker, calibrate.DefaultConfig(), log)

	ruleStore := &fakeRuleStore{rules: []model.AutomationRule{
		{ID: 1, SellerID: "seller-1", RuleType: model.RuleAutoSubmit, IsActive: true,
			Conditions: model.RuleConditions{CaseType: "lost_inventory", MinAmount: func() *float64 { v := 50.0; return &v }()},
			Actions:    model.RuleActions{AutoSubmit: true}},
	}}
	engine := automation.NewEngine(cases, ruleStore, log)

	sched := scheduler.NewScheduler(scheduler.Config{}, scheduler.NewMemoryQueue(), fakeJobStore{}, log)
	composite := detect.NewCompositeDetector(detect.DefaultConfig(), log)

	svc := service.NewDetectionService(service.Config{
		PromotionThreshold: 0.7,
		CallbackQueue:      "cb",
	}, service.Deps{
		Scheduler:  sched,
		Composite:  composite,
		Calibrator: calibrator,
		Tracker:    tracker,
		Engine:     engine,
		Provider:   provider,
		Findings:   findings,
		Cases:      cases,
		Callback:   callback,
	}, log)

	return &fixture{
		svc:      svc,
		provider: provider,
		findings: findings,
		cases:    cases,
		callback: callback,
		outcomes: outcomes,
	}
}

func testJob() *model.DetectionJob {
	return &model.DetectionJob{
		SellerID:    "seller-1",
		SyncID:      "sync-1",
		TriggerType: model.TriggerInventory,
		Priority:    model.PriorityHigh,
		MaxAttempts: 3,
	}
}

// ---- ProcessJob ----------------------------------------------------------

func TestProcessJob_FullPipeline(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.svc.ProcessJob(context.Background(), testJob()))

	// 检出落库，置信度为校准后的混合值：0.85*0.3 + 0.70*0.7
	require.Len(t, fx.findings.saved, 1)
	f := fx.findings.saved[0]
	assert.Equal(t, model.AnomalyLostWarehouse, f.AnomalyType)
	assert.InDelta(t, 0.745, f.ConfidenceScore, 1e-9)
	assert.Equal(t, 200.0, f.EstimatedValue)

	// 超阈值升级开 case 并标记 promoted
	require.Len(t, fx.cases.created, 1)
	assert.Equal(t, model.FindingStatusPromoted, fx.findings.statuses[f.ID])

	// 规则引擎命中 auto_submit
	assert.Equal(t, []string{"case-1"}, fx.cases.submitted)

	// 成功回调
	require.Len(t, fx.callback.callbacks, 1)
	cb := fx.callback.callbacks[0]
	assert.Equal(t, model.CallbackStatusSuccess, cb.Status)
	assert.Equal(t, 1, cb.FindingCount)
	assert.Equal(t, []string{"case-1"}, cb.PromotedCases)
}

func TestProcessJob_BelowThresholdNotPromoted(t *testing.T) {
	fx := newFixture(t)

	// 历史通过率压到 20%：校准后 0.85*0.3 + 0.2*0.7 = 0.395 < 0.7
	for id := range fx.outcomes.outcomes {
		o := fx.outcomes.outcomes[id]
		o.ActualOutcome = model.OutcomeDenied
		fx.outcomes.outcomes[id] = o
	}
	for i := 0; i < 10; i++ {
		fx.outcomes.outcomes[fmt.Sprintf("x-%d", i)] = model.Outcome{
			DetectionResultID: fmt.Sprintf("x-%d", i),
			AnomalyType:       model.AnomalyLostWarehouse,
			ActualOutcome:     model.OutcomeApproved,
		}
	}

	require.NoError(t, fx.svc.ProcessJob(context.Background(), testJob()))

	require.Len(t, fx.findings.saved, 1)
	assert.Less(t, fx.findings.saved[0].ConfidenceScore, 0.7)
	assert.Empty(t, fx.cases.created, "below promotion threshold stays pending")
	assert.Empty(t, fx.cases.submitted)
}

func TestProcessJob_FetchFailureIsRetryable(t *testing.T) {
	fx := newFixture(t)
	fx.provider.err = fmt.Errorf("sync store timeout")
	fx.provider.data = nil

	err := fx.svc.ProcessJob(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, errorutil.IsRetryable(err), "transient fetch failures should be retried")
	assert.Empty(t, fx.callback.callbacks, "no callback before the final attempt resolves")
}

func TestProcessJob_NoFindingsStillSucceeds(t *testing.T) {
	fx := newFixture(t)
	fx.provider.data = &detect.SyncedData{}

	require.NoError(t, fx.svc.ProcessJob(context.Background(), testJob()))

	assert.Empty(t, fx.findings.saved)
	assert.Empty(t, fx.cases.created)
	require.Len(t, fx.callback.callbacks, 1)
	assert.Equal(t, 0, fx.callback.callbacks[0].FindingCount)
}

// ---- 查询与回流 ----------------------------------------------------------

func TestRecordOutcomeAndStats(t *testing.T) {
	fx := newFixture(t)

	ok := fx.svc.RecordOutcome(context.Background(), &model.Outcome{
		DetectionResultID: "r-1",
		SellerID:          "seller-1",
		AnomalyType:       model.AnomalyLostWarehouse,
		ActualOutcome:     model.OutcomeApproved,
		EstimatedValue:    100,
		RecoveryAmount:    100,
	})
	assert.True(t, ok)

	stats, err := fx.svc.GetStats(context.Background(), "seller-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Greater(t, stats.TotalResolved, 0)
}

func TestGetFindings_RequiresSeller(t *testing.T) {
	fx := newFixture(t)
	_, _, err := fx.svc.GetFindings(context.Background(), "", "", "", 1, 10)
	assert.Error(t, err)
}

func TestEnqueueDetection_Delegates(t *testing.T) {
	fx := newFixture(t)

	admitted, err := fx.svc.EnqueueDetection(context.Background(), "seller-1", "sync-1", model.TriggerManual, model.PriorityNormal)
	require.NoError(t, err)
	assert.True(t, admitted)

	// 同键重复触发幂等
	admitted, err = fx.svc.EnqueueDetection(context.Background(), "seller-1", "sync-1", model.TriggerManual, model.PriorityNormal)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestEvaluateRules_ByCaseID(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.svc.ProcessJob(context.Background(), testJob()))
	require.Len(t, fx.cases.created, 1)

	execs, err := fx.svc.EvaluateRules(context.Background(), fx.cases.created[0].CaseID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Matched)
}

// ---- 实时监听 ------------------------------------------------------------

func TestStartRealtime_DeliversEventsToCallback(t *testing.T) {
	log := logger.Nop{}
	src := newFakeSource()

	enqueued := make(chan string, 1)
	enqueue := func(_ context.Context, _, syncID string, _ model.TriggerType, _ model.Priority) (bool, error) {
		enqueued <- syncID
		return true, nil
	}
	listener := realtime.NewListener(src, enqueue, log)
	defer listener.StopAll()

	svc := service.NewDetectionService(service.Config{}, service.Deps{Listener: listener}, log)

	events := make(chan *model.TriggerEvent, 1)
	err := svc.StartRealtime(context.Background(), "seller-1", func(ev *model.TriggerEvent) {
		events <- ev
	})
	require.NoError(t, err)

	src.publish("drp:sync:complete:seller-1", `{"sync_id":"sync-9"}`)

	select {
	case ev := <-events:
		assert.Equal(t, "seller-1", ev.SellerID)
		assert.Equal(t, "sync-9", ev.SyncID)
	case <-time.After(3 * time.Second):
		t.Fatal("trigger event not delivered to callback")
	}
	assert.Equal(t, "sync-9", <-enqueued)

	svc.StopRealtime("seller-1")
}

func TestStartRealtime_WithoutListenerFails(t *testing.T) {
	fx := newFixture(t)
	err := fx.svc.StartRealtime(context.Background(), "seller-1", nil)
	assert.Error(t, err)
}

func TestDismissFinding(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.svc.ProcessJob(context.Background(), testJob()))
	require.Len(t, fx.findings.saved, 1)

	id := fx.findings.saved[0].ID
	require.NoError(t, fx.svc.DismissFinding(context.Background(), id))
	assert.Equal(t, model.FindingStatusDismissed, fx.findings.statuses[id])
}

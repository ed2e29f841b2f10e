package scheduler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drp/internal/model"
	"drp/internal/scheduler"
	"drp/pkg/logger"
)

// fakeJobStore 内存任务状态存储（并发安全）
type fakeJobStore struct {
	mu       sync.Mutex
	statuses map[string]model.JobStatus
	attempts map[string]int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		statuses: make(map[string]model.JobStatus),
		attempts: make(map[string]int),
	}
}

func (s *fakeJobStore) Save(_ context.Context, job *model.DetectionJob, status model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[job.Key()] = status
	return nil
}

func (s *fakeJobStore) SetStatus(_ context.Context, key string, status model.JobStatus, attempts int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[key] = status
	s.attempts[key] = attempts
	return nil
}

func (s *fakeJobStore) status(key string) model.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[key]
}

func job(syncID string, priority model.Priority) *model.DetectionJob {
	return &model.DetectionJob{
		SellerID:    "seller-1",
		SyncID:      syncID,
		TriggerType: model.TriggerInventory,
		Priority:    priority,
		MaxAttempts: 3,
	}
}

// ---- MemoryQueue ---------------------------------------------------------

func TestMemoryQueue_PriorityThenFIFO(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	ctx := context.Background()

	// 乱序入队：low, normal-1, critical, normal-2, high
	for _, j := range []*model.DetectionJob{
		job("s1", model.PriorityLow),
		job("s2", model.PriorityNormal),
		job("s3", model.PriorityCritical),
		job("s4", model.PriorityNormal),
		job("s5", model.PriorityHigh),
	} {
		pushed, err := q.Push(ctx, j)
		require.NoError(t, err)
		require.True(t, pushed)
	}

	var order []string
	for {
		j, err := q.Claim(ctx)
		require.NoError(t, err)
		if j == nil {
			break
		}
		order = append(order, j.SyncID)
	}

	assert.Equal(t, []string{"s3", "s5", "s2", "s4", "s1"}, order,
		"priority descending, FIFO within the same tier")
}

func TestMemoryQueue_DedupAcrossPendingAndClaimed(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	ctx := context.Background()

	j := job("s1", model.PriorityNormal)
	pushed, _ := q.Push(ctx, j)
	require.True(t, pushed)

	pushed, _ = q.Push(ctx, job("s1", model.PriorityNormal))
	assert.False(t, pushed, "same identity key already pending")

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	pushed, _ = q.Push(ctx, job("s1", model.PriorityNormal))
	assert.False(t, pushed, "same identity key still processing")

	require.NoError(t, q.Complete(ctx, claimed.Key()))
	pushed, _ = q.Push(ctx, job("s1", model.PriorityNormal))
	assert.True(t, pushed, "key free again after completion")
}

func TestMemoryQueue_RequeueAndDepth(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	ctx := context.Background()

	_, _ = q.Push(ctx, job("s1", model.PriorityNormal))
	_, _ = q.Push(ctx, job("s2", model.PriorityNormal))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	claimed, _ := q.Claim(ctx)
	depth, _ = q.Depth(ctx)
	assert.Equal(t, int64(2), depth, "claimed jobs still count as in-flight")

	require.NoError(t, q.Requeue(ctx, claimed))
	depth, _ = q.Depth(ctx)
	assert.Equal(t, int64(2), depth)

	// 重试排到档内队尾
	next, _ := q.Claim(ctx)
	assert.Equal(t, "s2", next.SyncID)
}

func TestMemoryQueue_RecoverStale(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	ctx := context.Background()

	_, _ = q.Push(ctx, job("s1", model.PriorityNormal))
	claimed, _ := q.Claim(ctx)
	require.NotNil(t, claimed)

	// ttr=0 视一切认领为超时
	recovered, err := q.RecoverStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	again, _ := q.Claim(ctx)
	require.NotNil(t, again, "stale job claimable again")
	assert.Equal(t, "s1", again.SyncID)
}

// ---- Scheduler -----------------------------------------------------------

func TestEnqueue_Validation(t *testing.T) {
	s := scheduler.NewScheduler(scheduler.Config{}, scheduler.NewMemoryQueue(), newFakeJobStore(), logger.Nop{})
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "", "sync-1", model.TriggerInventory, model.PriorityHigh)
	assert.Error(t, err)

	_, err = s.Enqueue(ctx, "seller-1", "sync-1", "bogus", model.PriorityHigh)
	assert.Error(t, err)

	_, err = s.Enqueue(ctx, "seller-1", "sync-1", model.TriggerInventory, "bogus")
	assert.Error(t, err)
}

func TestEnqueue_DefaultPriorityIsNormal(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	s := scheduler.NewScheduler(scheduler.Config{}, q, newFakeJobStore(), logger.Nop{})

	admitted, err := s.Enqueue(context.Background(), "seller-1", "sync-1", model.TriggerManual, "")
	require.NoError(t, err)
	assert.True(t, admitted)

	j, _ := q.Claim(context.Background())
	require.NotNil(t, j)
	assert.Equal(t, model.PriorityNormal, j.Priority)
}

func TestEnqueue_BackpressureDropsOnlyLowPriority(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	store := newFakeJobStore()
	s := scheduler.NewScheduler(scheduler.Config{BackpressureThreshold: 2}, q, store, logger.Nop{})
	ctx := context.Background()

	// 填满到阈值
	for i, syncID := range []string{"s1", "s2"} {
		admitted, err := s.Enqueue(ctx, "seller-1", syncID, model.TriggerInventory, model.PriorityNormal)
		require.NoError(t, err, "job %d", i)
		require.True(t, admitted)
	}

	// low 被背压丢弃：非错误结果
	admitted, err := s.Enqueue(ctx, "seller-1", "s3", model.TriggerInventory, model.PriorityLow)
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.Equal(t, int64(1), s.DroppedCount())

	// critical 不受背压影响
	admitted, err = s.Enqueue(ctx, "seller-1", "s4", model.TriggerInventory, model.PriorityCritical)
	require.NoError(t, err)
	assert.True(t, admitted)

	depth, _ := q.Depth(ctx)
	assert.Equal(t, int64(3), depth)
}

func TestEnqueue_DuplicateTriggerIdempotent(t *testing.T) {
	q := scheduler.NewMemoryQueue()
	s := scheduler.NewScheduler(scheduler.Config{}, q, newFakeJobStore(), logger.Nop{})
	ctx := context.Background()

	admitted, err := s.Enqueue(ctx, "seller-1", "sync-1", model.TriggerInventory, model.PriorityHigh)
	require.NoError(t, err)
	assert.True(t, admitted)

	admitted, err = s.Enqueue(ctx, "seller-1", "sync-1", model.TriggerInventory, model.PriorityHigh)
	require.NoError(t, err)
	assert.False(t, admitted, "same identity key accepted once")

	depth, _ := q.Depth(ctx)
	assert.Equal(t, int64(1), depth)
}

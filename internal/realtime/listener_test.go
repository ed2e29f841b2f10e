package realtime_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drp/internal/model"
	"drp/internal/realtime"
	"drp/pkg/logger"
)

// fakeSource 进程内订阅源
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
	ch := make(chan string, 8)
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

// enqueueRecorder 记录入队调用
type enqueueRecorder struct {
	mu    sync.Mutex
	calls []model.TriggerEvent
}

func (r *enqueueRecorder) enqueue(_ context.Context, sellerID, syncID string, trigger model.TriggerType, priority model.Priority) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, model.TriggerEvent{
		SellerID:    sellerID,
		SyncID:      syncID,
		TriggerType: trigger,
		Priority:    priority,
	})
	return true, nil
}

func (r *enqueueRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *enqueueRecorder) last() model.TriggerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func waitCount(t *testing.T, rec *enqueueRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rec.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d enqueue calls, got %d", want, rec.count())
}

func TestListener_TriggersDetectionOnSyncComplete(t *testing.T) {
	src := newFakeSource()
	rec := &enqueueRecorder{}
	l := realtime.NewListener(src, rec.enqueue, logger.Nop{})
	defer l.StopAll()

	require.NoError(t, l.Start(context.Background(), "seller-1", nil))
	assert.True(t, l.Active("seller-1"))

	payload, _ := json.Marshal(model.TriggerEvent{
		SellerID:    "seller-1",
		SyncID:      "sync-42",
		TriggerType: model.TriggerFinancial,
		Priority:    model.PriorityCritical,
	})
	src.publish("drp:sync:complete:seller-1", string(payload))

	waitCount(t, rec, 1)
	ev := rec.last()
	assert.Equal(t, "sync-42", ev.SyncID)
	assert.Equal(t, model.TriggerFinancial, ev.TriggerType)
	assert.Equal(t, model.PriorityCritical, ev.Priority)
}

func TestListener_DefaultsForSparseEvent(t *testing.T) {
	src := newFakeSource()
	rec := &enqueueRecorder{}
	l := realtime.NewListener(src, rec.enqueue, logger.Nop{})
	defer l.StopAll()

	require.NoError(t, l.Start(context.Background(), "seller-1", nil))

	// 只带 sync_id 的事件：卖家/类型/优先级取默认
	src.publish("drp:sync:complete:seller-1", `{"sync_id":"sync-7"}`)

	waitCount(t, rec, 1)
	ev := rec.last()
	assert.Equal(t, "seller-1", ev.SellerID)
	assert.Equal(t, model.TriggerInventory, ev.TriggerType)
	assert.Equal(t, model.PriorityHigh, ev.Priority, "realtime triggers default to high")
}

func TestListener_BadPayloadIgnored(t *testing.T) {
	src := newFakeSource()
	rec := &enqueueRecorder{}
	l := realtime.NewListener(src, rec.enqueue, logger.Nop{})
	defer l.StopAll()

	require.NoError(t, l.Start(context.Background(), "seller-1", nil))

	src.publish("drp:sync:complete:seller-1", "not-json")
	src.publish("drp:sync:complete:seller-1", `{"sync_id":"sync-8"}`)

	waitCount(t, rec, 1)
	assert.Equal(t, "sync-8", rec.last().SyncID, "bad payload skipped, stream continues")
}

func TestListener_DuplicateStartRejected(t *testing.T) {
	src := newFakeSource()
	l := realtime.NewListener(src, (&enqueueRecorder{}).enqueue, logger.Nop{})
	defer l.StopAll()

	require.NoError(t, l.Start(context.Background(), "seller-1", nil))
	err := l.Start(context.Background(), "seller-1", nil)
	assert.ErrorIs(t, err, realtime.ErrAlreadyStarted)
}

func TestListener_StopWithoutStartIsSafe(t *testing.T) {
	l := realtime.NewListener(newFakeSource(), (&enqueueRecorder{}).enqueue, logger.Nop{})

	l.Stop("never-started")
	assert.False(t, l.Active("never-started"))
}

func TestListener_StopEndsSubscription(t *testing.T) {
	src := newFakeSource()
	rec := &enqueueRecorder{}
	l := realtime.NewListener(src, rec.enqueue, logger.Nop{})

	require.NoError(t, l.Start(context.Background(), "seller-1", nil))
	l.Stop("seller-1")
	assert.False(t, l.Active("seller-1"))

	// 停止后可再次启动
	require.NoError(t, l.Start(context.Background(), "seller-1", nil))
	l.StopAll()
	assert.False(t, l.Active("seller-1"))
}

func TestListener_CallbackObservesEvent(t *testing.T) {
	src := newFakeSource()
	rec := &enqueueRecorder{}
	l := realtime.NewListener(src, rec.enqueue, logger.Nop{})
	defer l.StopAll()

	var mu sync.Mutex
	var seen []string
	cb := func(ev *model.TriggerEvent) {
		mu.Lock()
		seen = append(seen, ev.SyncID)
		mu.Unlock()
	}

	require.NoError(t, l.Start(context.Background(), "seller-1", cb))
	src.publish("drp:sync:complete:seller-1", `{"sync_id":"sync-9"}`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"sync-9"}, seen)
}

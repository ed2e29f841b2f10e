package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"drp/internal/model"
)

// Queue 优先级队列接口
// 以任务身份键去重；Claim 为原子的弹出并标记 processing，
// 多个 worker 进程协作时同一任务不会被取走两次
type Queue interface {
	// Push 入队；同键任务已在 pending/processing 中时返回 false（幂等触发）
	Push(ctx context.Context, job *model.DetectionJob) (bool, error)

	// Claim 原子弹出最高优先级任务并标记 processing；队列为空返回 nil
	Claim(ctx context.Context) (*model.DetectionJob, error)

	// Complete 结束一个已认领任务（成功或永久失败都要调用）
	Complete(ctx context.Context, key string) error

	// Requeue 重试：将已认领任务按原优先级放回队尾
	Requeue(ctx context.Context, job *model.DetectionJob) error

	// RecoverStale 回收认领超过 ttr 仍未结束的任务，返回回收数量
	RecoverStale(ctx context.Context, ttr time.Duration) (int, error)

	// Depth 当前在途任务数（pending + processing），背压准入依据
	Depth(ctx context.Context) (int64, error)
}

// queueItem 队列元素
// score 为优先级分值，seq 为入队序号：分值降序、序号升序构成全序，
// 同优先级档内严格 FIFO
type queueItem struct {
	job   *model.DetectionJob
	score int
	seq   uint64
}

// itemHeap 最大堆
type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) {
	*h = append(*h, x.(*queueItem))
}
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// claimedItem 已认领任务
type claimedItem struct {
	job       *model.DetectionJob
	claimedAt time.Time
}

// MemoryQueue 进程内优先级队列（测试与单机部署用）
// 与 Redis 实现共用同一接口
type MemoryQueue struct {
	mu      sync.Mutex
	items   itemHeap
	pending map[string]bool
	claimed map[string]*claimedItem
	seq     uint64
}

// NewMemoryQueue 创建进程内队列
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		items:   make(itemHeap, 0, 64),
		pending: make(map[string]bool),
		claimed: make(map[string]*claimedItem),
	}
}

// Push 入队（按键去重）
func (q *MemoryQueue) Push(_ context.Context, job *model.DetectionJob) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := job.Key()
	if q.pending[key] || q.claimed[key] != nil {
		return false, nil
	}

	q.seq++
	heap.Push(&q.items, &queueItem{
		job:   job,
		score: job.Priority.Score(),
		seq:   q.seq,
	})
	q.pending[key] = true
	return true, nil
}

// Claim 原子弹出并标记 processing
func (q *MemoryQueue) Claim(_ context.Context) (*model.DetectionJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil, nil
	}

	item := heap.Pop(&q.items).(*queueItem)
	key := item.job.Key()
	delete(q.pending, key)
	q.claimed[key] = &claimedItem{
		job:       item.job,
		claimedAt: time.Now(),
	}
	return item.job, nil
}

// Complete 移除认领记录
func (q *MemoryQueue) Complete(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, key)
	return nil
}

// Requeue 重试入队（保持原优先级，排到档内队尾）
func (q *MemoryQueue) Requeue(_ context.Context, job *model.DetectionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := job.Key()
	delete(q.claimed, key)
	if q.pending[key] {
		return nil
	}

	q.seq++
	heap.Push(&q.items, &queueItem{
		job:   job,
		score: job.Priority.Score(),
		seq:   q.seq,
	})
	q.pending[key] = true
	return nil
}

// RecoverStale 回收超时未结束的认领任务
func (q *MemoryQueue) RecoverStale(_ context.Context, ttr time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-ttr)
	recovered := 0
	for key, c := range q.claimed {
		if c.claimedAt.After(cutoff) {
			continue
		}
		delete(q.claimed, key)
		if !q.pending[key] {
			q.seq++
			heap.Push(&q.items, &queueItem{
				job:   c.job,
				score: c.job.Priority.Score(),
				seq:   q.seq,
			})
			q.pending[key] = true
		}
		recovered++
	}
	return recovered, nil
}

// Depth 在途任务数
func (q *MemoryQueue) Depth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.items.Len() + len(q.claimed)), nil
}

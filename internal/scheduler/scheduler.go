package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"drp/internal/model"
	"drp/pkg/logger"
)

// Config 调度器配置
type Config struct {
	BackpressureThreshold int64         // low 优先级准入上限（在途任务数）
	MaxAttempts           int           // 最大重试次数
	DequeueTimeout        time.Duration // 拉取超时（兼做维护周期）
	ErrorBackoff          time.Duration // 错误退避时间
	TTR                   time.Duration // Time-To-Run
	SubscriberThreads     int           // 并发拉取数
	ProcessorThreads      int           // 并发处理数
	BufferSize            int           // inputChan 缓冲区大小
}

// JobStore 任务状态持久化接口
// 所有状态变更经由此处，供运维查询（failed 任务永不静默丢弃）
type JobStore interface {
	// Save 保存任务（upsert by key）
	Save(ctx context.Context, job *model.DetectionJob, status model.JobStatus) error

	// SetStatus 更新任务状态与重试计数
	SetStatus(ctx context.Context, key string, status model.JobStatus, attempts int, lastError string) error
}

// Scheduler 检测任务调度器
// 显式构造、依赖注入，每进程一个实例；队列与存储由外部传入
type Scheduler struct {
	cfg     Config
	queue   Queue
	store   JobStore
	logger  logger.Logger
	dropped *atomic.Int64 // 背压丢弃计数（与失败区分开的观测口径）
}

// NewScheduler 创建调度器
func NewScheduler(cfg Config, queue Queue, store JobStore, log logger.Logger) *Scheduler {
	if cfg.BackpressureThreshold <= 0 {
		cfg.BackpressureThreshold = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Scheduler{
		cfg:     cfg,
		queue:   queue,
		store:   store,
		logger:  log,
		dropped: atomic.NewInt64(0),
	}
}

// Enqueue 受理一次检测触发
// 返回 true 表示任务已入队；false 表示被背压丢弃或同键任务已在途。
// 背压只作用于 low 优先级：负载尖峰时保护 worker 不被低价值工作饿死，
// critical/high 永不丢弃
func (s *Scheduler) Enqueue(ctx context.Context, sellerID, syncID string, trigger model.TriggerType, priority model.Priority) (bool, error) {
	if sellerID == "" || syncID == "" {
		return false, fmt.Errorf("seller_id and sync_id are required")
	}
	if !trigger.Valid() {
		return false, fmt.Errorf("invalid trigger_type: %s", trigger)
	}
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return false, fmt.Errorf("invalid priority: %s", priority)
	}

	job := &model.DetectionJob{
		SellerID:    sellerID,
		SyncID:      syncID,
		TriggerType: trigger,
		Priority:    priority,
		Attempts:    0,
		MaxAttempts: s.cfg.MaxAttempts,
		CreatedAt:   time.Now(),
	}

	// low 优先级先过背压准入
	if priority == model.PriorityLow {
		depth, err := s.queue.Depth(ctx)
		if err != nil {
			return false, fmt.Errorf("queue depth check failed: %w", err)
		}
		if depth >= s.cfg.BackpressureThreshold {
			s.dropped.Inc()
			// 刻意的非错误结果，日志口径与失败区分
			s.logger.Warnf(ctx, "[Scheduler] backpressure drop: job=%s, depth=%d, threshold=%d",
				job.Key(), depth, s.cfg.BackpressureThreshold)
			return false, nil
		}
	}

	if err := s.store.Save(ctx, job, model.JobStatusQueued); err != nil {
		return false, fmt.Errorf("save job failed: %w", err)
	}

	pushed, err := s.queue.Push(ctx, job)
	if err != nil {
		return false, fmt.Errorf("queue push failed: %w", err)
	}
	if !pushed {
		// 同键任务已在途，幂等受理
		s.logger.Debugf(ctx, "[Scheduler] duplicate trigger ignored: job=%s", job.Key())
		return false, nil
	}

	s.logger.Infof(ctx, "[Scheduler] job enqueued: job=%s, priority=%s", job.Key(), priority)
	return true, nil
}

// DroppedCount 背压丢弃累计数
func (s *Scheduler) DroppedCount() int64 {
	return s.dropped.Load()
}

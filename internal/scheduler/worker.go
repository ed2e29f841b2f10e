package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"drp/internal/model"
	"drp/pkg/errorutil"
	"drp/pkg/logger"
)

// ProcessFunc 任务处理函数（检测服务注入）
type ProcessFunc func(ctx context.Context, job *model.DetectionJob) error

// Worker 检测任务消费者
// Subscriber 协程负责认领任务并转发，Processor 协程负责处理；
// 单个任务的失败被隔离在处理边界内，永不拖垮循环
type Worker struct {
	cfg     Config
	queue   Queue
	store   JobStore
	process ProcessFunc
	logger  logger.Logger

	inputChan  chan *model.DetectionJob
	shutdownCh chan struct{}
	cancelFunc context.CancelFunc
	closing    *atomic.Bool

	subWg  sync.WaitGroup
	procWg sync.WaitGroup
}

// NewWorker 创建 Worker
func NewWorker(cfg Config, queue Queue, store JobStore, process ProcessFunc, log logger.Logger) *Worker {
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 3 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.TTR <= 0 {
		cfg.TTR = 5 * time.Minute
	}
	if cfg.SubscriberThreads <= 0 {
		cfg.SubscriberThreads = 1
	}
	if cfg.ProcessorThreads <= 0 {
		cfg.ProcessorThreads = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	return &Worker{
		cfg:        cfg,
		queue:      queue,
		store:      store,
		process:    process,
		logger:     log,
		inputChan:  make(chan *model.DetectionJob, cfg.BufferSize),
		shutdownCh: make(chan struct{}),
		closing:    atomic.NewBool(false),
	}
}

// Start 启动订阅与处理协程
// 取消链路只挂在 Subscriber 上：Processor 沿用父 context，
// 退出阶段 Drain 的任务仍在存活的 context 里处理（落库/重试不受影响）
func (w *Worker) Start(parentCtx context.Context) {
	subCtx, cancel := context.WithCancel(parentCtx)
	w.cancelFunc = cancel

	w.logger.Infof(parentCtx, "[Worker] starting: subscribers=%d, processors=%d",
		w.cfg.SubscriberThreads, w.cfg.ProcessorThreads)

	for i := 0; i < w.cfg.ProcessorThreads; i++ {
		workerID := i
		w.procWg.Add(1)
		go w.processorLoop(parentCtx, workerID)
	}

	for i := 0; i < w.cfg.SubscriberThreads; i++ {
		workerID := i
		w.subWg.Add(1)
		go w.subscriberLoop(subCtx, workerID)
	}
}

// Shutdown 优雅退出（4 步链路）
func (w *Worker) Shutdown() {
	if !w.closing.CAS(false, true) {
		return
	}
	ctx := context.Background()
	w.logger.Infof(ctx, "[Worker] began to close")

	// 【第 1 步】停止认领新任务
	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	// 【第 2 步】等待 Subscriber 完全退出
	w.subWg.Wait()

	// 【第 3 步】通知 Processor 进入 Drain 模式
	close(w.shutdownCh)

	// 【第 4 步】等待 Processor 处理完剩余任务
	w.procWg.Wait()

	w.logger.Infof(ctx, "[Worker] shutdown complete")
}

// subscriberLoop 认领循环
// 空拉取时顺带做周期维护（回收超时未结束的 processing 任务）
func (w *Worker) subscriberLoop(ctx context.Context, workerID int) {
	defer w.subWg.Done()
	w.logger.Infof(ctx, "[Subscriber-%d] started", workerID)

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof(ctx, "[Subscriber-%d] context cancelled, exiting", workerID)
			return
		default:
		}

		job, err := w.queue.Claim(ctx)
		if err != nil {
			// 容错：队列抖动不退出，只记录并退避
			w.logger.Warnf(ctx, "[Subscriber-%d] claim error: %v, retrying...", workerID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.ErrorBackoff):
				continue
			}
		}

		// 空队列：等待一个拉取周期并回收僵死任务
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.DequeueTimeout):
			}
			if n, rerr := w.queue.RecoverStale(ctx, w.cfg.TTR); rerr != nil {
				w.logger.Warnf(ctx, "[Subscriber-%d] recover stale failed: %v", workerID, rerr)
			} else if n > 0 {
				w.logger.Warnf(ctx, "[Subscriber-%d] recovered %d stale jobs", workerID, n)
			}
			continue
		}

		// 转发给 Processor（防死锁：关闭时丢回队列而不是卡死）
		select {
		case w.inputChan <- job:
			w.logger.Debugf(ctx, "[Subscriber-%d] job claimed: %s", workerID, job.Key())
		case <-ctx.Done():
			if rerr := w.queue.Requeue(context.Background(), job); rerr != nil {
				w.logger.Errorf(ctx, "[Subscriber-%d] requeue on shutdown failed: %s, %v", workerID, job.Key(), rerr)
			}
			return
		}
	}
}

// processorLoop 处理循环
func (w *Worker) processorLoop(ctx context.Context, workerID int) {
	defer w.procWg.Done()
	w.logger.Infof(ctx, "[Processor-%d] started", workerID)

	for {
		select {
		case job := <-w.inputChan:
			w.handle(ctx, job, workerID)

		case <-w.shutdownCh:
			// Drain 模式：处理完剩余任务再退出
			count := 0
			for {
				select {
				case job := <-w.inputChan:
					w.handle(ctx, job, workerID)
					count++
				default:
					w.logger.Infof(ctx, "[Processor-%d] drained %d jobs, exiting", workerID, count)
					return
				}
			}
		}
	}
}

// handle 处理单个任务（隔离的失败边界）
func (w *Worker) handle(ctx context.Context, job *model.DetectionJob, workerID int) {
	if job == nil {
		return
	}
	key := job.Key()
	startTime := time.Now()

	ctx = context.WithValue(ctx, logger.CtxKeySellerID, job.SellerID)
	ctx = context.WithValue(ctx, logger.CtxKeyJobID, key)
	ctx = context.WithValue(ctx, logger.CtxKeyWorkerID, workerID)

	if err := w.store.SetStatus(ctx, key, model.JobStatusProcessing, job.Attempts, ""); err != nil {
		w.logger.Warnf(ctx, "[Processor-%d] mark processing failed: %v", workerID, err)
	}

	err := w.invoke(ctx, job)

	duration := time.Since(startTime)
	if err == nil {
		if serr := w.store.SetStatus(ctx, key, model.JobStatusCompleted, job.Attempts, ""); serr != nil {
			w.logger.Warnf(ctx, "[Processor-%d] mark completed failed: %v", workerID, serr)
		}
		if qerr := w.queue.Complete(ctx, key); qerr != nil {
			w.logger.Warnf(ctx, "[Processor-%d] queue complete failed: %v", workerID, qerr)
		}
		w.logger.Infof(ctx, "[Processor-%d] job completed: %s, duration=%v", workerID, key, duration)
		return
	}

	job.Attempts++

	// 瞬时错误且未达上限：按原优先级放回，给抖动一次机会又不饿死其他任务
	if errorutil.IsRetryable(err) && job.Attempts < job.MaxAttempts {
		if serr := w.store.SetStatus(ctx, key, model.JobStatusQueued, job.Attempts, err.Error()); serr != nil {
			w.logger.Warnf(ctx, "[Processor-%d] update attempts failed: %v", workerID, serr)
		}
		if qerr := w.queue.Requeue(ctx, job); qerr != nil {
			w.logger.Errorf(ctx, "[Processor-%d] requeue failed: %s, %v", workerID, key, qerr)
		}
		w.logger.Warnf(ctx, "[Processor-%d] job requeued: %s, attempts=%d/%d, error=%v",
			workerID, key, job.Attempts, job.MaxAttempts, err)
		return
	}

	// 永久失败：状态可查，绝不静默丢弃
	if serr := w.store.SetStatus(ctx, key, model.JobStatusFailed, job.Attempts, err.Error()); serr != nil {
		w.logger.Errorf(ctx, "[Processor-%d] mark failed failed: %v", workerID, serr)
	}
	if qerr := w.queue.Complete(ctx, key); qerr != nil {
		w.logger.Warnf(ctx, "[Processor-%d] queue complete failed: %v", workerID, qerr)
	}
	w.logger.Errorf(ctx, "[Processor-%d] job failed permanently: %s, attempts=%d, duration=%v, error=%v",
		workerID, key, job.Attempts, duration, err)
}

// invoke 调用处理函数（捕获 panic）
func (w *Worker) invoke(ctx context.Context, job *model.DetectionJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorutil.NonRetriable(fmt.Sprintf("process panic: %v", r))
		}
	}()
	return w.process(ctx, job)
}

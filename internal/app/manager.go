package app

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"drp/internal/automation"
	"drp/internal/calibrate"
	"drp/internal/detect"
	"drp/internal/model"
	"drp/internal/outcome"
	"drp/internal/realtime"
	"drp/internal/scheduler"
	"drp/internal/service"
	"drp/pkg/caseclient"
	"drp/pkg/config"
	"drp/pkg/infra/mysql"
	"drp/pkg/infra/redis"
	"drp/pkg/lmstfy"
	"drp/pkg/logger"
)

// Manager 接口
type Manager interface {
	Start() error
	Shutdown()
}

// deferredStats 延迟绑定的统计数据源
// Tracker 与 Calibrator 互相引用（统计源/缓存失效），装配期用它断开环
type deferredStats struct {
	tracker *outcome.Tracker
}

func (d *deferredStats) TypeStats(ctx context.Context, anomalyType model.AnomalyType) (*model.TypeStats, error) {
	if d.tracker == nil {
		return nil, nil
	}
	return d.tracker.TypeStats(ctx, anomalyType)
}

// ManagerInstance Manager 实例
// 装配全部基础设施与领域组件，持有进程生命周期
type ManagerInstance struct {
	ctx        context.Context
	cfg        *config.Config
	queue      *redis.PriorityQueue
	pubsub     *redis.PubSub
	worker     *scheduler.Worker
	listener   *realtime.Listener
	svc        *service.DetectionService
	closing    *atomic.Bool
	shutdownCh chan struct{}
	logger     logger.Logger
}

// NewManagerInstance 创建 Manager
func NewManagerInstance(cfg *config.Config, log logger.Logger) (Manager, error) {
	ctx := context.Background()

	// 基础设施
	db, err := mysql.Open(cfg.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	queue, err := redis.NewPriorityQueue(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Scheduler.QueueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create priority queue: %w", err)
	}

	pubsub, err := redis.NewPubSub(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	lmstfyClient, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create lmstfy client: %w", err)
	}

	// 数据访问层
	jobDAO := mysql.NewJobDAO(db)
	findingDAO := mysql.NewFindingDAO(db)
	outcomeDAO := mysql.NewOutcomeDAO(db)
	ruleDAO := mysql.NewRuleDAO(db)
	snapshotDAO := mysql.NewSnapshotDAO(db)

	// 领域组件：Tracker 与 Calibrator 互相引用，经 deferredStats 解环
	stats := &deferredStats{}
	calibrator := calibrate.NewCalibrator(stats, calibrate.Config{
		CacheTTL:         cfg.Calibration.CacheTTL,
		FullTrustSamples: cfg.Calibration.FullTrustSamples,
		MaxHistoryWeight: cfg.Calibration.MaxHistoryWeight,
	}, log)
	tracker := outcome.NewTracker(outcomeDAO, calibrator, log)
	stats.tracker = tracker

	composite := detect.NewCompositeDetector(detect.Config{
		MinLedgerAgeDays:       cfg.Detect.MinLedgerAgeDays,
		RefundReturnWindowDays: cfg.Detect.RefundReturnWindowDays,
		InboundReconcileDays:   cfg.Detect.InboundReconcileDays,
		FraudWindowDays:        cfg.Detect.FraudWindowDays,
		FraudRefundCount:       cfg.Detect.FraudRefundCount,
	}, log)

	cases := caseclient.NewClient(db, lmstfyClient, cfg.Lmstfy.CaseQueue, log)
	engine := automation.NewEngine(cases, ruleDAO, log)

	schedCfg := scheduler.Config{
		BackpressureThreshold: cfg.Scheduler.BackpressureThreshold,
		MaxAttempts:           cfg.Scheduler.MaxAttempts,
		DequeueTimeout:        cfg.Scheduler.DequeueTimeout,
		ErrorBackoff:          cfg.Scheduler.ErrorBackoff,
		TTR:                   cfg.Scheduler.TTR,
		SubscriberThreads:     cfg.Scheduler.SubscriberThreads,
		ProcessorThreads:      cfg.Scheduler.ProcessorThreads,
		BufferSize:            cfg.Scheduler.BufferSize,
	}
	sched := scheduler.NewScheduler(schedCfg, queue, jobDAO, log)

	listener := realtime.NewListener(pubsub, sched.Enqueue, log)

	svc := service.NewDetectionService(service.Config{
		PromotionThreshold: cfg.Service.PromotionThreshold,
		CallbackQueue:      cfg.Lmstfy.CallbackQueue,
	}, service.Deps{
		Scheduler:  sched,
		Composite:  composite,
		Calibrator: calibrator,
		Tracker:    tracker,
		Engine:     engine,
		Listener:   listener,
		Provider:   snapshotDAO,
		Findings:   findingDAO,
		Cases:      cases,
		Callback:   lmstfyClient,
	}, log)

	worker := scheduler.NewWorker(schedCfg, queue, jobDAO, svc.ProcessJob, log)

	log.Infof(ctx, "[Manager] Initialized: queue=%s, callback_queue=%s",
		cfg.Scheduler.QueueKey, cfg.Lmstfy.CallbackQueue)

	return &ManagerInstance{
		ctx:        ctx,
		cfg:        cfg,
		queue:      queue,
		pubsub:     pubsub,
		worker:     worker,
		listener:   listener,
		svc:        svc,
		closing:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}, nil
}

// Service 检测服务入口（运维工具/调试用）
func (m *ManagerInstance) Service() *service.DetectionService {
	return m.svc
}

// Start 启动 Manager
func (m *ManagerInstance) Start() error {
	m.logger.Infof(m.ctx, "[Manager] Starting...")

	m.worker.Start(m.ctx)

	m.logger.Infof(m.ctx, "[Manager] Start success")

	// 阻塞等待退出信号
	<-m.shutdownCh

	return nil
}

// Shutdown 优雅退出
func (m *ManagerInstance) Shutdown() {
	m.logger.Infof(m.ctx, "[Manager] Began to close")

	// 原子操作，保证并发安全
	if m.closing.CAS(false, true) {
		// 1. 停止实时触发监听
		m.listener.StopAll()

		// 2. Worker 安全退出（排空在途任务）
		m.worker.Shutdown()

		// 3. 关闭基础设施连接
		if err := m.queue.Close(); err != nil {
			m.logger.Warnf(m.ctx, "[Manager] close queue failed: %v", err)
		}
		if err := m.pubsub.Close(); err != nil {
			m.logger.Warnf(m.ctx, "[Manager] close pubsub failed: %v", err)
		}

		// 4. 关闭信号通道
		close(m.shutdownCh)

		m.logger.Infof(m.ctx, "[Manager] Shutdown complete")
	}
}

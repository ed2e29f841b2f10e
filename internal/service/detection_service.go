package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"drp/internal/automation"
	"drp/internal/calibrate"
	"drp/internal/detect"
	"drp/internal/model"
	"drp/internal/outcome"
	"drp/internal/realtime"
	"drp/internal/scheduler"
	"drp/pkg/errorutil"
	"drp/pkg/logger"
)

// Config 检测服务配置
type Config struct {
	PromotionThreshold float64 // Finding 升级为 case 的校准后置信度阈值
	CallbackQueue      string  // lmstfy 回调队列名（空表示不发回调）
}

// DetectionService 异常检测服务
// 编排完整检测链路：取数 → 算法 → 校准 → 落库 → 升级开 case →
// 规则引擎 → 回调通知。ProcessJob 即调度器的处理函数
type DetectionService struct {
	cfg        Config
	scheduler  *scheduler.Scheduler
	composite  *detect.CompositeDetector
	calibrator *calibrate.Calibrator
	tracker    *outcome.Tracker
	engine     *automation.Engine
	listener   *realtime.Listener

	provider SyncedDataProvider
	findings FindingStore
	cases    CaseService
	callback CallbackPublisher

	logger logger.Logger
}

// Deps 服务依赖（显式注入，cases/callback 可为 nil）
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Composite  *detect.CompositeDetector
	Calibrator *calibrate.Calibrator
	Tracker    *outcome.Tracker
	Engine     *automation.Engine
	Listener   *realtime.Listener
	Provider   SyncedDataProvider
	Findings   FindingStore
	Cases      CaseService
	Callback   CallbackPublisher
}

// NewDetectionService 创建检测服务
func NewDetectionService(cfg Config, deps Deps, log logger.Logger) *DetectionService {
	if cfg.PromotionThreshold <= 0 {
		cfg.PromotionThreshold = 0.7
	}
	return &DetectionService{
		cfg:        cfg,
		scheduler:  deps.Scheduler,
		composite:  deps.Composite,
		calibrator: deps.Calibrator,
		tracker:    deps.Tracker,
		engine:     deps.Engine,
		listener:   deps.Listener,
		provider:   deps.Provider,
		findings:   deps.Findings,
		cases:      deps.Cases,
		callback:   deps.Callback,
		logger:     log,
	}
}

// EnqueueDetection 受理一次检测触发（手动或上游同步完成）
func (s *DetectionService) EnqueueDetection(ctx context.Context, sellerID, syncID string, trigger model.TriggerType, priority model.Priority) (bool, error) {
	return s.scheduler.Enqueue(ctx, sellerID, syncID, trigger, priority)
}

// ProcessJob 处理单个检测任务（注入调度器的 ProcessFunc）
// 取数/落库失败返回可重试错误；输入非法返回不可重试错误，任务直接失败
func (s *DetectionService) ProcessJob(ctx context.Context, job *model.DetectionJob) error {
	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.CtxKeyTraceID, requestID)

	data, err := s.provider.Fetch(ctx, job.SellerID, job.SyncID)
	if err != nil {
		// 可重试失败不发回调，等最后一次尝试的结果
		return errorutil.RetriableWithDetails("fetch synced data failed", err.Error())
	}

	in := &detect.Input{
		SellerID: job.SellerID,
		SyncID:   job.SyncID,
		Now:      time.Now(),
		Data:     data,
	}
	if err := detect.ValidateInput(in); err != nil {
		s.publishResult(ctx, requestID, job, 0, nil, err)
		return errorutil.NonRetriableWithDetails("invalid detection input", err.Error())
	}

	findings := s.composite.Run(ctx, in)

	// 逐条校准：落库与升级判断都用校准后的置信度
	for i := range findings {
		f := &findings[i]
		result, err := s.calibrator.Calibrate(ctx, f.AnomalyType, f.ConfidenceScore)
		if err != nil {
			// 校准失败退回原始分，不阻断检测
			s.logger.Warnf(ctx, "[Detection] calibrate failed: type=%s, error=%v", f.AnomalyType, err)
			f.ConfidenceScore = model.ClampConfidence(f.ConfidenceScore)
			continue
		}
		f.ConfidenceScore = result.CalibratedConfidence
	}

	if err := s.findings.SaveAll(ctx, findings); err != nil {
		return errorutil.RetriableWithDetails("save findings failed", err.Error())
	}

	promoted := s.promote(ctx, findings)

	s.publishResult(ctx, requestID, job, len(findings), promoted, nil)

	s.logger.Infof(ctx, "[Detection] job done: job=%s, findings=%d, promoted=%d",
		job.Key(), len(findings), len(promoted))
	return nil
}

// promote 将超阈值的 Finding 升级为争议 case 并跑自动化规则
// 单条升级失败只记日志，Finding 留在 pending 状态等人工跟进
func (s *DetectionService) promote(ctx context.Context, findings []model.Finding) []string {
	if s.cases == nil {
		return nil
	}

	promoted := make([]string, 0)
	for i := range findings {
		f := &findings[i]
		if f.ConfidenceScore < s.cfg.PromotionThreshold {
			continue
		}

		c, err := s.cases.CreateCase(ctx, f)
		if err != nil {
			s.logger.Errorf(ctx, "[Detection] create case failed: finding=%d, error=%v", f.ID, err)
			continue
		}

		if err := s.findings.SetStatus(ctx, f.ID, model.FindingStatusPromoted); err != nil {
			s.logger.Warnf(ctx, "[Detection] mark promoted failed: finding=%d, error=%v", f.ID, err)
		}
		promoted = append(promoted, c.CaseID)

		if s.engine != nil {
			if _, err := s.engine.EvaluateAndExecute(ctx, c); err != nil {
				s.logger.Warnf(ctx, "[Detection] rule evaluation failed: case=%s, error=%v", c.CaseID, err)
			}
		}
	}
	return promoted
}

// publishResult 发布检测完成回调（best-effort，失败只记日志）
func (s *DetectionService) publishResult(ctx context.Context, requestID string, job *model.DetectionJob, findingCount int, promoted []string, cause error) {
	if s.callback == nil || s.cfg.CallbackQueue == "" {
		return
	}

	cb := &model.DetectionCallback{
		RequestID:     requestID,
		SellerID:      job.SellerID,
		SyncID:        job.SyncID,
		Status:        model.CallbackStatusSuccess,
		FindingCount:  findingCount,
		PromotedCases: promoted,
		ProcessedAt:   time.Now().Unix(),
	}
	if cause != nil {
		cb.Status = model.CallbackStatusFailed
		cb.Error = cause.Error()
	}

	if err := s.callback.PublishCallback(s.cfg.CallbackQueue, cb); err != nil {
		s.logger.Warnf(ctx, "[Detection] publish callback failed: job=%s, error=%v", job.Key(), err)
	}
}

// GetFindings 分页查询检出结果
func (s *DetectionService) GetFindings(ctx context.Context, sellerID, syncID string, status model.FindingStatus, page, limit int) ([]model.Finding, int64, error) {
	if sellerID == "" {
		return nil, 0, fmt.Errorf("seller_id is required")
	}
	return s.findings.List(ctx, sellerID, syncID, status, page, limit)
}

// DismissFinding 人工驳回一条检出
func (s *DetectionService) DismissFinding(ctx context.Context, id int64) error {
	return s.findings.SetStatus(ctx, id, model.FindingStatusDismissed)
}

// RecordOutcome 回流一条争议 case 的最终结果
func (s *DetectionService) RecordOutcome(ctx context.Context, o *model.Outcome) bool {
	return s.tracker.RecordOutcome(ctx, o)
}

// GetStats 聚合统计（异常类型/marketplace/账龄/证据完整度四个维度）
func (s *DetectionService) GetStats(ctx context.Context, sellerID string, from, to time.Time) (*model.OutcomeStats, error) {
	return s.tracker.GetStats(ctx, sellerID, from, to)
}

// Calibrate 对指定异常类型的原始置信度做一次校准（查询用途）
func (s *DetectionService) Calibrate(ctx context.Context, anomalyType model.AnomalyType, raw float64) (*model.CalibrationResult, error) {
	return s.calibrator.Calibrate(ctx, anomalyType, raw)
}

// CreateRule 创建一条自动化规则
func (s *DetectionService) CreateRule(ctx context.Context, rule *model.AutomationRule) error {
	return s.engine.CreateRule(ctx, rule)
}

// EvaluateRules 对指定 case 评估并执行自动化规则
func (s *DetectionService) EvaluateRules(ctx context.Context, caseID string) ([]automation.RuleExecution, error) {
	if s.cases == nil {
		return nil, fmt.Errorf("case service not configured")
	}
	c, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("get case failed: %w", err)
	}
	return s.engine.EvaluateAndExecute(ctx, c)
}

// StartRealtime 启动指定卖家的实时触发监听
// cb 可选：传入时每个触发事件处理后回调一次（观察用，可为 nil）
func (s *DetectionService) StartRealtime(ctx context.Context, sellerID string, cb realtime.Callback) error {
	if s.listener == nil {
		return fmt.Errorf("realtime listener not configured")
	}
	return s.listener.Start(ctx, sellerID, cb)
}

// StopRealtime 停止指定卖家的实时触发监听
func (s *DetectionService) StopRealtime(sellerID string) {
	if s.listener != nil {
		s.listener.Stop(sellerID)
	}
}

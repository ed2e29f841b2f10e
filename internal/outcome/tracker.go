package outcome

import (
	"context"
	"time"

	"drp/internal/model"
	"drp/pkg/logger"
)

// 索赔账龄分桶
const (
	claimAge0to7   = "0-7d"
	claimAge8to30  = "8-30d"
	claimAge31to60 = "31-60d"
	claimAge60Plus = "60+d"
)

// 证据完整度分桶
const (
	evidenceHigh   = "high"   // >= 0.8
	evidenceMedium = "medium" // >= 0.5
	evidenceLow    = "low"
)

// Store Outcome 持久化接口（MySQL 实现在 pkg/infra/mysql）
type Store interface {
	// Upsert 以 detection_result_id 为键幂等写入
	Upsert(ctx context.Context, o *model.Outcome) error

	// List 查询指定卖家/时间范围的 Outcome；sellerID 为空表示全量
	List(ctx context.Context, sellerID string, from, to time.Time) ([]model.Outcome, error)

	// CountByType 统计指定异常类型的终态样本（approved/partial/resolved）
	CountByType(ctx context.Context, anomalyType model.AnomalyType) (approved, partial, resolved int, err error)
}

// Invalidator 校准缓存失效接口（Calibrator 实现）
type Invalidator interface {
	Invalidate(anomalyType model.AnomalyType)
}

// Tracker 结果追踪器
// 落库已解决 case 的结果并产出聚合统计，供校准器与报表消费
type Tracker struct {
	store       Store
	invalidator Invalidator
	logger      logger.Logger
}

// NewTracker 创建结果追踪器
// invalidator 可为 nil（无校准器场景，如离线报表工具）
func NewTracker(store Store, invalidator Invalidator, log logger.Logger) *Tracker {
	return &Tracker{
		store:       store,
		invalidator: invalidator,
		logger:      log,
	}
}

// RecordOutcome 幂等记录一条 Outcome
// 属于 best-effort 遥测：落库失败只记日志并返回 false，不向调用方抛错，
// 不允许阻塞主检测/自动化链路
func (t *Tracker) RecordOutcome(ctx context.Context, o *model.Outcome) bool {
	if o == nil || o.DetectionResultID == "" {
		t.logger.Warnf(ctx, "[Tracker] drop outcome without detection_result_id")
		return false
	}

	// 拒赔原因先归一化再落库
	if o.ActualOutcome == model.OutcomeDenied && o.DenialReason != "" {
		o.DenialReason = NormalizeDenialReason(o.DenialReason)
	}

	if err := t.store.Upsert(ctx, o); err != nil {
		t.logger.Errorf(ctx, "[Tracker] record outcome failed: id=%s, error=%v", o.DetectionResultID, err)
		return false
	}

	// 新样本落库后立即失效该类型的校准缓存
	if t.invalidator != nil {
		t.invalidator.Invalidate(o.AnomalyType)
	}

	t.logger.Infof(ctx, "[Tracker] outcome recorded: id=%s, type=%s, outcome=%s",
		o.DetectionResultID, o.AnomalyType, o.ActualOutcome)
	return true
}

// TypeStats 指定异常类型的历史通过率统计（实现 calibrate.StatsSource）
func (t *Tracker) TypeStats(ctx context.Context, anomalyType model.AnomalyType) (*model.TypeStats, error) {
	approved, partial, resolved, err := t.store.CountByType(ctx, anomalyType)
	if err != nil {
		return nil, err
	}
	if resolved == 0 {
		return nil, nil
	}
	return &model.TypeStats{
		AnomalyType:  anomalyType,
		Approved:     approved,
		Partial:      partial,
		Resolved:     resolved,
		ApprovalRate: (float64(approved) + 0.5*float64(partial)) / float64(resolved),
	}, nil
}

// GetStats 四个维度的聚合统计：异常类型、marketplace、索赔账龄、证据完整度
func (t *Tracker) GetStats(ctx context.Context, sellerID string, from, to time.Time) (*model.OutcomeStats, error) {
	outcomes, err := t.store.List(ctx, sellerID, from, to)
	if err != nil {
		return nil, err
	}

	stats := &model.OutcomeStats{
		ByAnomalyType:   make(map[string]model.GroupStats),
		ByMarketplace:   make(map[string]model.GroupStats),
		ByClaimAge:      make(map[string]model.GroupStats),
		ByEvidenceLevel: make(map[string]model.GroupStats),
		DenialReasons:   make(map[string]int),
	}

	type acc struct {
		total, approved, partial, denied, expired int
		claimed, recovered                        float64
		resolutionSum                             float64
		resolutionCount                           int
	}
	accumulate := func(m map[string]*acc, key string, o *model.Outcome) {
		a, ok := m[key]
		if !ok {
			a = &acc{}
			m[key] = a
		}
		a.total++
		switch o.ActualOutcome {
		case model.OutcomeApproved:
			a.approved++
		case model.OutcomePartial:
			a.partial++
		case model.OutcomeDenied:
			a.denied++
		case model.OutcomeExpired:
			a.expired++
		}
		a.claimed += o.EstimatedValue
		a.recovered += o.RecoveryAmount
		// 解决时长只统计正值样本
		if o.TimeToResolutionDays > 0 {
			a.resolutionSum += o.TimeToResolutionDays
			a.resolutionCount++
		}
	}

	byType := make(map[string]*acc)
	byMarketplace := make(map[string]*acc)
	byClaimAge := make(map[string]*acc)
	byEvidence := make(map[string]*acc)

	for i := range outcomes {
		o := &outcomes[i]
		if !o.ActualOutcome.Resolved() {
			continue
		}
		stats.TotalResolved++

		accumulate(byType, string(o.AnomalyType), o)
		accumulate(byMarketplace, o.Marketplace, o)
		accumulate(byClaimAge, claimAgeBucket(o.ClaimAgeDays), o)
		accumulate(byEvidence, evidenceBucket(o.EvidenceCompleteness), o)

		if o.ActualOutcome == model.OutcomeDenied {
			stats.DenialReasons[NormalizeDenialReason(o.DenialReason)]++
		}
	}

	finalize := func(src map[string]*acc, dst map[string]model.GroupStats) {
		for key, a := range src {
			g := model.GroupStats{
				Total:          a.total,
				Approved:       a.approved,
				Partial:        a.partial,
				Denied:         a.denied,
				Expired:        a.expired,
				TotalClaimed:   a.claimed,
				TotalRecovered: a.recovered,
			}
			if a.total > 0 {
				g.ApprovalRate = (float64(a.approved) + 0.5*float64(a.partial)) / float64(a.total)
			}
			if a.claimed > 0 {
				g.RecoveryRate = a.recovered / a.claimed
			}
			if a.resolutionCount > 0 {
				g.MeanResolutionDays = a.resolutionSum / float64(a.resolutionCount)
			}
			dst[key] = g
		}
	}

	finalize(byType, stats.ByAnomalyType)
	finalize(byMarketplace, stats.ByMarketplace)
	finalize(byClaimAge, stats.ByClaimAge)
	finalize(byEvidence, stats.ByEvidenceLevel)

	return stats, nil
}

// claimAgeBucket 索赔账龄分桶
func claimAgeBucket(days int) string {
	switch {
	case days <= 7:
		return claimAge0to7
	case days <= 30:
		return claimAge8to30
	case days <= 60:
		return claimAge31to60
	default:
		return claimAge60Plus
	}
}

// evidenceBucket 证据完整度分桶
func evidenceBucket(completeness float64) string {
	switch {
	case completeness >= 0.8:
		return evidenceHigh
	case completeness >= 0.5:
		return evidenceMedium
	default:
		return evidenceLow
	}
}

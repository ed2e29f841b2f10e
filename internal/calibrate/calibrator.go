package calibrate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"drp/internal/model"
	"drp/pkg/logger"
)

// 置信度上下界：追回是概率事件，永不输出 0 或 1
const (
	confidenceFloor = 0.10
	confidenceCeil  = 0.99
)

// 可信区间样本量档位
const (
	intervalMediumSamples = 10
	intervalHighSamples   = 30
)

// StatsSource 历史统计数据源（Outcome Tracker 实现）
type StatsSource interface {
	// TypeStats 返回指定异常类型的历史通过率统计；无样本返回 nil
	TypeStats(ctx context.Context, anomalyType model.AnomalyType) (*model.TypeStats, error)
}

// Config 校准配置
type Config struct {
	CacheTTL         time.Duration // 统计缓存 TTL
	FullTrustSamples int           // 历史权重达到上限所需样本数
	MaxHistoryWeight float64       // 历史通过率的最大混合权重
}

// DefaultConfig 默认校准配置
func DefaultConfig() Config {
	return Config{
		CacheTTL:         15 * time.Minute,
		FullTrustSamples: 50,
		MaxHistoryWeight: 0.7,
	}
}

// cacheEntry 按类型缓存的统计条目
type cacheEntry struct {
	stats     *model.TypeStats // nil 表示该类型确认无历史样本
	expiresAt time.Time
}

// Calibrator 置信度校准器
// 原始分与历史通过率按样本量加权混合；统计按类型缓存（带 TTL），
// 新 Outcome 落库时显式失效——陈旧校准是正确性问题，不是优化取舍
type Calibrator struct {
	source StatsSource
	cfg    Config
	logger logger.Logger

	mu    sync.Mutex
	cache map[model.AnomalyType]cacheEntry

	hits   *atomic.Int64
	misses *atomic.Int64
}

// NewCalibrator 创建校准器
func NewCalibrator(source StatsSource, cfg Config, log logger.Logger) *Calibrator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.FullTrustSamples <= 0 {
		cfg.FullTrustSamples = DefaultConfig().FullTrustSamples
	}
	if cfg.MaxHistoryWeight <= 0 || cfg.MaxHistoryWeight >= 1 {
		cfg.MaxHistoryWeight = DefaultConfig().MaxHistoryWeight
	}
	return &Calibrator{
		source: source,
		cfg:    cfg,
		logger: log,
		cache:  make(map[model.AnomalyType]cacheEntry),
		hits:   atomic.NewInt64(0),
		misses: atomic.NewInt64(0),
	}
}

// Calibrate 校准一个原始置信度
// 无历史样本时原样返回（factor=1.0，区间 low）：没有数据就不该做任何调整
func (c *Calibrator) Calibrate(ctx context.Context, anomalyType model.AnomalyType, raw float64) (*model.CalibrationResult, error) {
	// 输入先收敛到 [0,1]
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}

	stats, err := c.typeStats(ctx, anomalyType)
	if err != nil {
		return nil, err
	}

	if stats == nil || stats.Resolved == 0 {
		// 无历史样本：不做调整，只保证输出落在允许区间
		return &model.CalibrationResult{
			AnomalyType:          anomalyType,
			RawConfidence:        raw,
			CalibratedConfidence: clamp(raw),
			CalibrationFactor:    1.0,
			SampleSize:           0,
			ConfidenceInterval:   model.IntervalLow,
		}, nil
	}

	rate := stats.ApprovalRate

	// 历史权重随样本量增长：样本越多越信经验通过率，越少越信原始分
	weight := float64(stats.Resolved) / float64(c.cfg.FullTrustSamples)
	if weight > c.cfg.MaxHistoryWeight {
		weight = c.cfg.MaxHistoryWeight
	}

	calibrated := raw*(1-weight) + rate*weight
	calibrated = clamp(calibrated)

	factor := 1.0
	if raw > 0 {
		factor = calibrated / raw
	}

	return &model.CalibrationResult{
		AnomalyType:            anomalyType,
		RawConfidence:          raw,
		CalibratedConfidence:   calibrated,
		CalibrationFactor:      factor,
		HistoricalApprovalRate: rate,
		SampleSize:             stats.Resolved,
		ConfidenceInterval:     intervalForSamples(stats.Resolved),
	}, nil
}

// Invalidate 失效指定类型的缓存条目（新 Outcome 落库后调用）
func (c *Calibrator) Invalidate(anomalyType model.AnomalyType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, anomalyType)
}

// CacheCounters 缓存命中计数（运维观测用）
func (c *Calibrator) CacheCounters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// typeStats 读取类型统计，优先走缓存
func (c *Calibrator) typeStats(ctx context.Context, anomalyType model.AnomalyType) (*model.TypeStats, error) {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.cache[anomalyType]
	c.mu.Unlock()

	if ok && now.Before(entry.expiresAt) {
		c.hits.Inc()
		return entry.stats, nil
	}
	c.misses.Inc()

	stats, err := c.source.TypeStats(ctx, anomalyType)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[anomalyType] = cacheEntry{
		stats:     stats,
		expiresAt: now.Add(c.cfg.CacheTTL),
	}
	c.mu.Unlock()

	return stats, nil
}

// intervalForSamples 样本量到可信区间档位
func intervalForSamples(n int) model.ConfidenceInterval {
	switch {
	case n >= intervalHighSamples:
		return model.IntervalHigh
	case n >= intervalMediumSamples:
		return model.IntervalMedium
	default:
		return model.IntervalLow
	}
}

// clamp 收敛到 [0.10, 0.99]
func clamp(v float64) float64 {
	if v < confidenceFloor {
		return confidenceFloor
	}
	if v > confidenceCeil {
		return confidenceCeil
	}
	return v
}

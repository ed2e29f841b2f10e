package calibrate_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drp/internal/calibrate"
	"drp/internal/model"
	"drp/pkg/logger"
)

// fakeStats 固定返回的统计数据源，记录查询次数
type fakeStats struct {
	stats *model.TypeStats
	err   error
	calls int
}

func (f *fakeStats) TypeStats(_ context.Context, _ model.AnomalyType) (*model.TypeStats, error) {
	f.calls++
	return f.stats, f.err
}

func statsWith(rate float64, resolved int) *model.TypeStats {
	return &model.TypeStats{
		AnomalyType:  model.AnomalyLostWarehouse,
		Resolved:     resolved,
		ApprovalRate: rate,
	}
}

func TestCalibrate_NoHistoryPassesThrough(t *testing.T) {
	c := calibrate.NewCalibrator(&fakeStats{stats: nil}, calibrate.DefaultConfig(), logger.Nop{})

	res, err := c.Calibrate(context.Background(), model.AnomalyLostWarehouse, 0.85)
	require.NoError(t, err)

	assert.Equal(t, 0.85, res.CalibratedConfidence)
	assert.Equal(t, 1.0, res.CalibrationFactor)
	assert.Equal(t, 0, res.SampleSize)
	assert.Equal(t, model.IntervalLow, res.ConfidenceInterval)
}

func TestCalibrate_BlendsTowardHistoricalRate(t *testing.T) {
	// 50 个样本达到满权重上限 0.7：calibrated = 0.85*0.3 + 0.70*0.7
	src := &fakeStats{stats: statsWith(0.70, 50)}
	c := calibrate.NewCalibrator(src, calibrate.DefaultConfig(), logger.Nop{})

	res, err := c.Calibrate(context.Background(), model.AnomalyLostWarehouse, 0.85)
	require.NoError(t, err)

	assert.InDelta(t, 0.745, res.CalibratedConfidence, 1e-9)
	assert.Greater(t, res.CalibratedConfidence, 0.70, "stays above the historical rate")
	assert.Less(t, res.CalibratedConfidence, 0.85, "pulled below the raw score")
	assert.InDelta(t, 0.745/0.85, res.CalibrationFactor, 1e-9)
	assert.Equal(t, 50, res.SampleSize)
	assert.Equal(t, model.IntervalHigh, res.ConfidenceInterval)
}

func TestCalibrate_PartialWeightForFewSamples(t *testing.T) {
	// 10 个样本：权重 10/50 = 0.2
	src := &fakeStats{stats: statsWith(0.50, 10)}
	c := calibrate.NewCalibrator(src, calibrate.DefaultConfig(), logger.Nop{})

	res, err := c.Calibrate(context.Background(), model.AnomalyLostWarehouse, 0.80)
	require.NoError(t, err)

	assert.InDelta(t, 0.80*0.8+0.50*0.2, res.CalibratedConfidence, 1e-9)
	assert.Equal(t, model.IntervalMedium, res.ConfidenceInterval)
}

func TestCalibrate_ClampsToAllowedRange(t *testing.T) {
	ceilSrc := &fakeStats{stats: statsWith(1.0, 100)}
	c := calibrate.NewCalibrator(ceilSrc, calibrate.DefaultConfig(), logger.Nop{})

	res, err := c.Calibrate(context.Background(), model.AnomalyLostWarehouse, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 0.99, res.CalibratedConfidence, "never emits 1.0")

	floorSrc := &fakeStats{stats: statsWith(0.0, 100)}
	c = calibrate.NewCalibrator(floorSrc, calibrate.DefaultConfig(), logger.Nop{})

	res, err = c.Calibrate(context.Background(), model.AnomalyLostWarehouse, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 0.10, res.CalibratedConfidence, "never emits 0")
}

func TestCalibrate_CachesStatsUntilInvalidated(t *testing.T) {
	src := &fakeStats{stats: statsWith(0.60, 40)}
	c := calibrate.NewCalibrator(src, calibrate.DefaultConfig(), logger.Nop{})

	ctx := context.Background()
	_, err := c.Calibrate(ctx, model.AnomalyLostWarehouse, 0.85)
	require.NoError(t, err)
	_, err = c.Calibrate(ctx, model.AnomalyLostWarehouse, 0.85)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second call served from cache")

	hits, misses := c.CacheCounters()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	c.Invalidate(model.AnomalyLostWarehouse)
	_, err = c.Calibrate(ctx, model.AnomalyLostWarehouse, 0.85)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "invalidation forces a reload")
}

func TestCalibrate_CachesTypesIndependently(t *testing.T) {
	src := &fakeStats{stats: statsWith(0.60, 40)}
	c := calibrate.NewCalibrator(src, calibrate.DefaultConfig(), logger.Nop{})

	ctx := context.Background()
	_, _ = c.Calibrate(ctx, model.AnomalyLostWarehouse, 0.85)
	_, _ = c.Calibrate(ctx, model.AnomalyDamagedInventory, 0.95)
	assert.Equal(t, 2, src.calls, "each type loads its own stats")

	// 只失效一个类型，另一个仍走缓存
	c.Invalidate(model.AnomalyLostWarehouse)
	_, _ = c.Calibrate(ctx, model.AnomalyDamagedInventory, 0.95)
	assert.Equal(t, 2, src.calls)
}

func TestCalibrate_SourceErrorPropagates(t *testing.T) {
	src := &fakeStats{err: fmt.Errorf("db down")}
	c := calibrate.NewCalibrator(src, calibrate.DefaultConfig(), logger.Nop{})

	_, err := c.Calibrate(context.Background(), model.AnomalyLostWarehouse, 0.85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

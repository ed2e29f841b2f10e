package detect

import (
	"context"
	"fmt"
	"sync"

	"drp/internal/model"
	"drp/pkg/logger"
)

// CompositeDetector 复合检测器（组装全部算法）
// 各算法只读同一份输入、各写各的输出列表，可以安全并发执行；
// 单个算法 panic 不影响其余算法的结果
type CompositeDetector struct {
	detectors []Detector
	logger    logger.Logger
}

// NewCompositeDetector 创建复合检测器（挂载全部六个算法）
func NewCompositeDetector(cfg Config, log logger.Logger) *CompositeDetector {
	return &CompositeDetector{
		detectors: []Detector{
			NewLostInventoryDetector(cfg),
			NewRefundNoReturnDetector(cfg),
			NewDamagedInventoryDetector(cfg),
			NewInboundShipmentDetector(cfg),
			NewRemovalOrderDetector(cfg),
			NewFraudDetector(cfg),
		},
		logger: log,
	}
}

// Run 并发执行全部检测算法，按算法挂载顺序拼接结果
func (c *CompositeDetector) Run(ctx context.Context, in *Input) []model.Finding {
	results := make([][]model.Finding, len(c.detectors))

	var wg sync.WaitGroup
	for i, det := range c.detectors {
		i, det := i, det
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Errorf(ctx, "[CompositeDetector] detector %s panic: %v", det.Name(), r)
					results[i] = nil
				}
			}()
			results[i] = det.Detect(ctx, in)
		}()
	}
	wg.Wait()

	findings := make([]model.Finding, 0)
	for _, r := range results {
		findings = append(findings, r...)
	}

	c.logger.Infof(ctx, "[CompositeDetector] seller=%s sync=%s findings=%d",
		in.SellerID, in.SyncID, len(findings))

	return findings
}

// Names 已挂载算法名称（日志/自检用）
func (c *CompositeDetector) Names() []string {
	names := make([]string, 0, len(c.detectors))
	for _, d := range c.detectors {
		names = append(names, d.Name())
	}
	return names
}

// ValidateInput 输入自检：算法对坏数据容忍，但 seller/sync 必须有
func ValidateInput(in *Input) error {
	if in == nil {
		return fmt.Errorf("input is nil")
	}
	if in.SellerID == "" {
		return fmt.Errorf("seller_id is required")
	}
	if in.SyncID == "" {
		return fmt.Errorf("sync_id is required")
	}
	return nil
}

package detect

import (
	"context"

	"drp/internal/model"
)

// 移除短缺置信度
const removalShortfallConfidence = 0.80

// RemovalOrderDetector 移除订单短缺检测器
// 退回型订单比较 shipped_quantity，销毁型订单比较 disposed_quantity，
// 实际数量低于请求数量即产出 removal_shortfall
type RemovalOrderDetector struct {
	cfg Config
}

// NewRemovalOrderDetector 创建移除短缺检测器
func NewRemovalOrderDetector(cfg Config) *RemovalOrderDetector {
	return &RemovalOrderDetector{cfg: cfg}
}

func (d *RemovalOrderDetector) Name() string {
	return "removal_order"
}

// Detect 执行移除短缺检测
func (d *RemovalOrderDetector) Detect(_ context.Context, in *Input) []model.Finding {
	findings := make([]model.Finding, 0)
	if in == nil || in.Data == nil {
		return findings
	}
	data := in.Data

	for _, ro := range data.Removals {
		if ro.RequestedQuantity <= 0 {
			continue
		}

		var actual int
		switch ro.OrderType {
		case RemovalTypeReturn:
			actual = ro.ShippedQuantity
		case RemovalTypeDisposal:
			actual = ro.DisposedQuantity
		default:
			continue
		}

		shortfall := ro.RequestedQuantity - actual
		if shortfall <= 0 {
			continue
		}

		unitValue := ro.UnitValue
		if unitValue == 0 {
			unitValue = data.unitValue(ro.SKU)
		}
		estimated := float64(shortfall) * unitValue

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     model.AnomalyRemovalShortfall,
			Severity:        model.SeverityForValue(estimated),
			EstimatedValue:  estimated,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(removalShortfallConfidence),
			Evidence: model.Evidence{
				Type: model.AnomalyRemovalShortfall,
				RemovalShortfall: &model.RemovalShortfallEvidence{
					RemovalOrderID:    ro.RemovalOrderID,
					OrderType:         ro.OrderType,
					SKU:               ro.SKU,
					RequestedQuantity: ro.RequestedQuantity,
					ActualQuantity:    actual,
					ShortfallUnits:    shortfall,
				},
			},
			RelatedEventIDs: []string{ro.RemovalOrderID},
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

package detect

import (
	"context"

	"drp/internal/model"
)

// 入库短缺置信度：全失更确凿
const (
	inboundLostConfidence      = 0.90
	inboundShortfallConfidence = 0.75
)

// InboundShipmentDetector 入库货件短缺检测器
// 关单超过对账窗口（90 天）的货件，发货数与收货数不一致时产出：
// received=0 为 inbound_lost（critical），部分短缺为 inbound_shortfall
type InboundShipmentDetector struct {
	cfg Config
}

// NewInboundShipmentDetector 创建入库短缺检测器
func NewInboundShipmentDetector(cfg Config) *InboundShipmentDetector {
	return &InboundShipmentDetector{cfg: cfg}
}

func (d *InboundShipmentDetector) Name() string {
	return "inbound_shipment"
}

// Detect 执行入库短缺检测
func (d *InboundShipmentDetector) Detect(_ context.Context, in *Input) []model.Finding {
	findings := make([]model.Finding, 0)
	if in == nil || in.Data == nil {
		return findings
	}
	data := in.Data

	for _, sh := range data.Shipments {
		if sh.Status != ShipmentStatusClosed {
			continue
		}
		ageDays := daysBetween(sh.ClosedAt, in.Now)
		if ageDays < d.cfg.InboundReconcileDays {
			// 窗口内承运商/仓库仍在正常对账，不视为短缺
			continue
		}

		shortfall := sh.QuantityShipped - sh.QuantityReceived
		if shortfall <= 0 || sh.QuantityShipped <= 0 {
			continue
		}

		anomalyType := model.AnomalyInboundShortfall
		confidence := inboundShortfallConfidence
		fullLoss := sh.QuantityReceived == 0

		estimated := float64(shortfall) * sh.UnitValue
		severity := model.SeverityForValue(estimated)
		if fullLoss {
			// 整票未收货与部分短缺是不同的异常类型
			anomalyType = model.AnomalyInboundLost
			confidence = inboundLostConfidence
			severity = model.SeverityCritical
		}

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     anomalyType,
			Severity:        severity,
			EstimatedValue:  estimated,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(confidence),
			Evidence: model.Evidence{
				Type: anomalyType,
				InboundShortfall: &model.InboundShortfallEvidence{
					ShipmentID:       sh.ShipmentID,
					SKU:              sh.SKU,
					QuantityShipped:  sh.QuantityShipped,
					QuantityReceived: sh.QuantityReceived,
					ShortfallUnits:   shortfall,
					AgeDays:          ageDays,
				},
			},
			RelatedEventIDs: []string{sh.ShipmentID},
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

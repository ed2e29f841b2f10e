package detect

import (
	"context"

	"drp/internal/model"
)

// 事故码归因是权威证据，置信度固定高值
const damagedInventoryConfidence = 0.95

// 平台责任事故码允许清单（仓库/承运商致损）
// 非平台责任码即使损坏数量显著也不产出
var marketplaceFaultCodes = map[string]bool{
	"E": true, // 仓内作业损坏
	"H": true, // 承运商运输损坏
	"K": true, // 仓间调拨损坏
	"U": true, // 不可归还损坏
}

// DamagedInventoryDetector 仓损检测器
// 只看 disposition=DAMAGED 且事故码在允许清单内的 Adjustment 台账事件
type DamagedInventoryDetector struct {
	cfg Config
}

// NewDamagedInventoryDetector 创建仓损检测器
func NewDamagedInventoryDetector(cfg Config) *DamagedInventoryDetector {
	return &DamagedInventoryDetector{cfg: cfg}
}

func (d *DamagedInventoryDetector) Name() string {
	return "damaged_inventory"
}

// Detect 执行仓损检测
func (d *DamagedInventoryDetector) Detect(_ context.Context, in *Input) []model.Finding {
	findings := make([]model.Finding, 0)
	if in == nil || in.Data == nil {
		return findings
	}
	data := in.Data

	for _, ev := range data.Ledger {
		if ev.EventType != EventTypeAdjustments || ev.Disposition != DispositionDamaged {
			continue
		}
		if !marketplaceFaultCodes[ev.ReasonCode] {
			continue
		}

		qty := ev.Quantity
		if qty < 0 {
			qty = -qty
		}
		if qty == 0 {
			continue
		}

		unitValue := data.unitValue(ev.SKU)
		estimated := float64(qty) * unitValue

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     model.AnomalyDamagedInventory,
			Severity:        model.SeverityForValue(estimated),
			EstimatedValue:  estimated,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(damagedInventoryConfidence),
			Evidence: model.Evidence{
				Type: model.AnomalyDamagedInventory,
				DamagedInventory: &model.DamagedInventoryEvidence{
					SKU:               ev.SKU,
					FulfillmentCenter: ev.FulfillmentCenter,
					Quantity:          qty,
					ReasonCode:        ev.ReasonCode,
					UnitValue:         unitValue,
				},
			},
			RelatedEventIDs: []string{ev.EventID},
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

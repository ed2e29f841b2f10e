package detect

import (
	"context"

	"drp/internal/model"
)

// 盘亏检出的基础置信度
const lostInventoryConfidence = 0.85

// LostInventoryDetector 仓内盘亏检测器
// 按 (SKU, 履约中心) 对账：台账推导的期望库存与最新余额快照比较，
// 赤字为正且无已有赔付覆盖时产出 lost_warehouse
type LostInventoryDetector struct {
	cfg Config
}

// NewLostInventoryDetector 创建盘亏检测器
func NewLostInventoryDetector(cfg Config) *LostInventoryDetector {
	return &LostInventoryDetector{cfg: cfg}
}

func (d *LostInventoryDetector) Name() string {
	return "lost_inventory"
}

// skuFCKey (SKU, 履约中心) 分组键
type skuFCKey struct {
	sku string
	fc  string
}

// ledgerAgg 单个分组的台账聚合
type ledgerAgg struct {
	receipts    int
	shipments   int
	adjustments int
	eventIDs    []string
}

// Detect 执行盘亏检测
func (d *LostInventoryDetector) Detect(_ context.Context, in *Input) []model.Finding {
	findings := make([]model.Finding, 0)
	if in == nil || in.Data == nil {
		return findings
	}
	data := in.Data

	// 只统计账龄达标的台账活动，避免把在途库存当作盘亏
	cutoff := in.Now.AddDate(0, 0, -d.cfg.MinLedgerAgeDays)

	aggs := make(map[skuFCKey]*ledgerAgg)
	for _, ev := range data.Ledger {
		if ev.SKU == "" || ev.PostedAt.After(cutoff) {
			continue
		}
		key := skuFCKey{sku: ev.SKU, fc: ev.FulfillmentCenter}
		agg, ok := aggs[key]
		if !ok {
			agg = &ledgerAgg{}
			aggs[key] = agg
		}
		switch ev.EventType {
		case EventTypeReceipts:
			agg.receipts += ev.Quantity
		case EventTypeShipments:
			agg.shipments += ev.Quantity
		case EventTypeAdjustments:
			agg.adjustments += ev.Quantity
		default:
			continue
		}
		agg.eventIDs = append(agg.eventIDs, ev.EventID)
	}

	// 每个分组取最新快照
	snapshots := make(map[skuFCKey]BalanceSnapshot)
	for _, snap := range data.Balances {
		key := skuFCKey{sku: snap.SKU, fc: snap.FulfillmentCenter}
		if prev, ok := snapshots[key]; !ok || snap.SnapshotAt.After(prev.SnapshotAt) {
			snapshots[key] = snap
		}
	}

	// 已有赔付按 SKU 累计数量
	reimbursed := make(map[string]int)
	for _, r := range data.Reimbursements {
		reimbursed[r.SKU] += r.Quantity
	}

	for key, agg := range aggs {
		// 无快照说明余额报表尚未同步到该分组，跳过而不是按 0 对账
		snap, ok := snapshots[key]
		if !ok {
			continue
		}

		expected := agg.receipts - agg.shipments - agg.adjustments
		deficit := expected - snap.Quantity
		if deficit <= 0 {
			continue
		}

		// 赔付已覆盖该 SKU 的赤字数量则不再索赔
		if reimbursed[key.sku] >= deficit {
			continue
		}

		unitValue := data.unitValue(key.sku)
		estimated := float64(deficit) * unitValue

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     model.AnomalyLostWarehouse,
			Severity:        model.SeverityForValue(estimated),
			EstimatedValue:  estimated,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(lostInventoryConfidence),
			Evidence: model.Evidence{
				Type: model.AnomalyLostWarehouse,
				LostWarehouse: &model.LostWarehouseEvidence{
					SKU:               key.sku,
					FulfillmentCenter: key.fc,
					ExpectedQuantity:  expected,
					SnapshotQuantity:  snap.Quantity,
					DeficitQuantity:   deficit,
					UnitValue:         unitValue,
				},
			},
			RelatedEventIDs: append([]string(nil), agg.eventIDs...),
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

package detect

import (
	"context"
	"sort"

	"drp/internal/model"
)

// 欺诈检出置信度
const (
	fraudSignatureConfidence = 0.90
	refundAbuseConfidence    = 0.85
)

// FraudDetector 欺诈检测器
// 两条路径：单事件高置信签名（调包/错件退货）按 critical 产出；
// 同一买家在滚动窗口内的无退货退款达到阈值时聚合为单条
// returnless_refund_abuse，引用全部贡献退款
type FraudDetector struct {
	cfg Config
}

// NewFraudDetector 创建欺诈检测器
func NewFraudDetector(cfg Config) *FraudDetector {
	return &FraudDetector{cfg: cfg}
}

func (d *FraudDetector) Name() string {
	return "fraud"
}

// Detect 执行欺诈检测
func (d *FraudDetector) Detect(_ context.Context, in *Input) []model.Finding {
	findings := make([]model.Finding, 0)
	if in == nil || in.Data == nil {
		return findings
	}

	findings = append(findings, d.detectSignatures(in)...)
	findings = append(findings, d.detectRefundAbuse(in)...)
	return findings
}

// detectSignatures 单事件欺诈签名
func (d *FraudDetector) detectSignatures(in *Input) []model.Finding {
	data := in.Data
	findings := make([]model.Finding, 0)

	// 退款金额按 (订单, SKU) 索引，用于估算损失
	refundAmounts := make(map[orderSKUKey]float64)
	for _, refund := range data.Refunds {
		refundAmounts[orderSKUKey{orderID: refund.OrderID, sku: refund.SKU}] += refund.Amount
	}

	for _, ret := range data.Returns {
		switch ret.DetailedDisposition {
		case ReturnDispositionSwitcheroo, ReturnDispositionWrongItem:
		default:
			continue
		}

		estimated := refundAmounts[orderSKUKey{orderID: ret.OrderID, sku: ret.SKU}]
		if estimated == 0 {
			estimated = float64(ret.Quantity) * data.unitValue(ret.SKU)
		}

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     model.AnomalyFraudSignature,
			Severity:        model.SeverityCritical,
			EstimatedValue:  estimated,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(fraudSignatureConfidence),
			Evidence: model.Evidence{
				Type: model.AnomalyFraudSignature,
				FraudSignature: &model.FraudSignatureEvidence{
					OrderID:             ret.OrderID,
					SKU:                 ret.SKU,
					DetailedDisposition: ret.DetailedDisposition,
					CustomerID:          ret.CustomerID,
				},
			},
			RelatedEventIDs: []string{ret.ReturnID},
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

// detectRefundAbuse 无退货退款滥用（窗口聚合）
// 窗口在退款时间轴上滑动，不锚定检测时刻：同步前就已结束的
// 密集退款簇同样要被识别
func (d *FraudDetector) detectRefundAbuse(in *Input) []model.Finding {
	data := in.Data
	findings := make([]model.Finding, 0)

	returned := returnedSet(data.Returns)

	// 按买家归集无退货退款
	byCustomer := make(map[string][]Refund)
	for _, refund := range data.Refunds {
		if refund.CustomerID == "" {
			continue
		}
		if returned[orderSKUKey{orderID: refund.OrderID, sku: refund.SKU}] {
			continue
		}
		byCustomer[refund.CustomerID] = append(byCustomer[refund.CustomerID], refund)
	}

	// 遍历顺序确定性：按买家 ID 排序
	customers := make([]string, 0, len(byCustomer))
	for c := range byCustomer {
		customers = append(customers, c)
	}
	sort.Strings(customers)

	for _, customer := range customers {
		refunds := byCustomer[customer]
		if len(refunds) < d.cfg.FraudRefundCount {
			continue
		}

		sort.Slice(refunds, func(i, j int) bool {
			return refunds[i].RefundedAt.Before(refunds[j].RefundedAt)
		})

		// 双指针滑动窗口：任一窗口内退款数达到阈值即计入，
		// 贡献集合取全部达标窗口的并集
		contributing := make([]bool, len(refunds))
		qualified := false
		j := 0
		for i := range refunds {
			limit := refunds[i].RefundedAt.AddDate(0, 0, d.cfg.FraudWindowDays)
			for j < len(refunds) && !refunds[j].RefundedAt.After(limit) {
				j++
			}
			if j-i >= d.cfg.FraudRefundCount {
				qualified = true
				for k := i; k < j; k++ {
					contributing[k] = true
				}
			}
		}
		if !qualified {
			continue
		}

		refundIDs := make([]string, 0, len(refunds))
		total := 0.0
		for k, r := range refunds {
			if !contributing[k] {
				continue
			}
			refundIDs = append(refundIDs, r.RefundID)
			total += r.Amount
		}

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     model.AnomalyReturnlessRefundAbuse,
			Severity:        model.SeverityHigh,
			EstimatedValue:  total,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(refundAbuseConfidence),
			Evidence: model.Evidence{
				Type: model.AnomalyReturnlessRefundAbuse,
				RefundAbuse: &model.RefundAbuseEvidence{
					CustomerID:  customer,
					WindowDays:  d.cfg.FraudWindowDays,
					RefundCount: len(refundIDs),
					RefundIDs:   refundIDs,
					TotalAmount: total,
				},
			},
			RelatedEventIDs: refundIDs,
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

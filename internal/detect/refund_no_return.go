package detect

import (
	"context"

	"drp/internal/model"
)

// 退款无退货的基础置信度
const refundNoReturnConfidence = 0.80

// RefundNoReturnDetector 退款无退货检测器
// 退款满 45 天（退货窗口）仍无同订单同 SKU 的退货记录时产出
// refund_no_return；窗口内的退款尚不可申诉，刻意跳过
type RefundNoReturnDetector struct {
	cfg Config
}

// NewRefundNoReturnDetector 创建退款无退货检测器
func NewRefundNoReturnDetector(cfg Config) *RefundNoReturnDetector {
	return &RefundNoReturnDetector{cfg: cfg}
}

func (d *RefundNoReturnDetector) Name() string {
	return "refund_no_return"
}

// orderSKUKey 订单+SKU 匹配键
type orderSKUKey struct {
	orderID string
	sku     string
}

// returnedSet 构建已退货 (订单, SKU) 集合
func returnedSet(returns []ReturnEvent) map[orderSKUKey]bool {
	set := make(map[orderSKUKey]bool, len(returns))
	for _, r := range returns {
		set[orderSKUKey{orderID: r.OrderID, sku: r.SKU}] = true
	}
	return set
}

// Detect 执行退款无退货检测
func (d *RefundNoReturnDetector) Detect(_ context.Context, in *Input) []model.Finding {
	findings := make([]model.Finding, 0)
	if in == nil || in.Data == nil {
		return findings
	}
	data := in.Data

	returned := returnedSet(data.Returns)

	for _, refund := range data.Refunds {
		ageDays := daysBetween(refund.RefundedAt, in.Now)
		if ageDays < d.cfg.RefundReturnWindowDays {
			// 退货窗口未过，买家仍可能退货
			continue
		}
		if returned[orderSKUKey{orderID: refund.OrderID, sku: refund.SKU}] {
			continue
		}

		findings = append(findings, model.Finding{
			SellerID:        in.SellerID,
			SyncID:          in.SyncID,
			AnomalyType:     model.AnomalyRefundNoReturn,
			Severity:        model.SeverityForValue(refund.Amount),
			EstimatedValue:  refund.Amount,
			Currency:        data.currencyOrDefault(),
			ConfidenceScore: model.ClampConfidence(refundNoReturnConfidence),
			Evidence: model.Evidence{
				Type: model.AnomalyRefundNoReturn,
				RefundNoReturn: &model.RefundNoReturnEvidence{
					OrderID:      refund.OrderID,
					SKU:          refund.SKU,
					RefundAmount: refund.Amount,
					RefundAgeDay: ageDays,
				},
			},
			RelatedEventIDs: []string{refund.RefundID},
			Status:          model.FindingStatusPending,
			CreatedAt:       in.Now,
		})
	}

	return findings
}

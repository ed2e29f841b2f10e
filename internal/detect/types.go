package detect

import (
	"context"
	"time"

	"drp/internal/model"
)

// Config 检测算法阈值配置（时间窗口、聚合阈值）
type Config struct {
	MinLedgerAgeDays       int // 台账最小账龄，更年轻的视为在途
	RefundReturnWindowDays int // 退款-退货匹配窗口（Amazon 退货期 45 天）
	InboundReconcileDays   int // 入库货件对账窗口（90 天内仓库仍在正常对账）
	FraudWindowDays        int // 欺诈聚合滚动窗口
	FraudRefundCount       int // 无退货退款次数阈值
}

// DefaultConfig 默认阈值
func DefaultConfig() Config {
	return Config{
		MinLedgerAgeDays:       14,
		RefundReturnWindowDays: 45,
		InboundReconcileDays:   90,
		FraudWindowDays:        90,
		FraudRefundCount:       3,
	}
}

// Input 单次检测输入
// Now 由调用方传入，算法本身不读时钟，保证可复现
type Input struct {
	SellerID string
	SyncID   string
	Now      time.Time
	Data     *SyncedData
}

// Detector 检测算法接口
// 纯函数语义：无 I/O、无共享状态，空输入返回空列表，坏数据不 panic
type Detector interface {
	Name() string
	Detect(ctx context.Context, in *Input) []model.Finding
}

// 台账事件类型
const (
	EventTypeReceipts    = "Receipts"
	EventTypeShipments   = "Shipments"
	EventTypeAdjustments = "Adjustments"
)

// 库存处置状态
const (
	DispositionSellable = "SELLABLE"
	DispositionDamaged  = "DAMAGED"
)

// 货件状态
const (
	ShipmentStatusClosed = "CLOSED"
)

// 移除订单类型
const (
	RemovalTypeReturn   = "Return"
	RemovalTypeDisposal = "Disposal"
)

// 退货明细处置（欺诈签名）
const (
	ReturnDispositionSwitcheroo = "SWITCHEROO"
	ReturnDispositionWrongItem  = "WRONG_ITEM"
)

// LedgerEvent 库存台账事件
type LedgerEvent struct {
	EventID           string    `json:"event_id"`
	SKU               string    `json:"sku"`
	FulfillmentCenter string    `json:"fulfillment_center"`
	EventType         string    `json:"event_type"`
	Quantity          int       `json:"quantity"`
	Disposition       string    `json:"disposition,omitempty"`
	ReasonCode        string    `json:"reason_code,omitempty"`
	PostedAt          time.Time `json:"posted_at"`
}

// BalanceSnapshot 库存余额快照
type BalanceSnapshot struct {
	SKU               string    `json:"sku"`
	FulfillmentCenter string    `json:"fulfillment_center"`
	Quantity          int       `json:"quantity"`
	SnapshotAt        time.Time `json:"snapshot_at"`
}

// Reimbursement 已有赔付记录
type Reimbursement struct {
	ReimbursementID string    `json:"reimbursement_id"`
	SKU             string    `json:"sku"`
	Quantity        int       `json:"quantity"`
	Amount          float64   `json:"amount"`
	ReimbursedAt    time.Time `json:"reimbursed_at"`
}

// Refund 退款事件
type Refund struct {
	RefundID   string    `json:"refund_id"`
	OrderID    string    `json:"order_id"`
	SKU        string    `json:"sku"`
	CustomerID string    `json:"customer_id,omitempty"`
	Quantity   int       `json:"quantity"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	RefundedAt time.Time `json:"refunded_at"`
}

// ReturnEvent 退货事件
type ReturnEvent struct {
	ReturnID            string    `json:"return_id"`
	OrderID             string    `json:"order_id"`
	SKU                 string    `json:"sku"`
	CustomerID          string    `json:"customer_id,omitempty"`
	Quantity            int       `json:"quantity"`
	DetailedDisposition string    `json:"detailed_disposition,omitempty"`
	ReturnedAt          time.Time `json:"returned_at"`
}

// Shipment 入库货件
type Shipment struct {
	ShipmentID       string    `json:"shipment_id"`
	SKU              string    `json:"sku"`
	Status           string    `json:"status"`
	QuantityShipped  int       `json:"quantity_shipped"`
	QuantityReceived int       `json:"quantity_received"`
	UnitValue        float64   `json:"unit_value"`
	ClosedAt         time.Time `json:"closed_at"`
}

// RemovalOrder 移除订单
type RemovalOrder struct {
	RemovalOrderID    string    `json:"removal_order_id"`
	OrderType         string    `json:"order_type"` // Return/Disposal
	SKU               string    `json:"sku"`
	RequestedQuantity int       `json:"requested_quantity"`
	ShippedQuantity   int       `json:"shipped_quantity"`
	DisposedQuantity  int       `json:"disposed_quantity"`
	UnitValue         float64   `json:"unit_value"`
	RequestedAt       time.Time `json:"requested_at"`
}

// SyncedData 单个卖家单次同步的全部记录集
type SyncedData struct {
	Ledger         []LedgerEvent      `json:"ledger"`
	Balances       []BalanceSnapshot  `json:"balances"`
	Reimbursements []Reimbursement    `json:"reimbursements"`
	Refunds        []Refund           `json:"refunds"`
	Returns        []ReturnEvent      `json:"returns"`
	Shipments      []Shipment         `json:"shipments"`
	Removals       []RemovalOrder     `json:"removals"`
	UnitValues     map[string]float64 `json:"unit_values"` // SKU → 单件价值，缺失按 0 处理
	Currency       string             `json:"currency"`
}

// unitValue 查询 SKU 单件价值，缺失按 0
func (d *SyncedData) unitValue(sku string) float64 {
	if d == nil || d.UnitValues == nil {
		return 0
	}
	return d.UnitValues[sku]
}

// currencyOrDefault 币种缺省 USD
func (d *SyncedData) currencyOrDefault() string {
	if d == nil || d.Currency == "" {
		return "USD"
	}
	return d.Currency
}

// daysBetween 整天差（向下取整）
func daysBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

package model

// Evidence 证据载荷（按异常类型区分的 tagged union）
// Type 为标签，对应的变体指针恰好一个非 nil；JSON 序列化后落入
// findings 表的 evidence 字段
type Evidence struct {
	Type AnomalyType `json:"type"`

	LostWarehouse    *LostWarehouseEvidence    `json:"lost_warehouse,omitempty"`
	RefundNoReturn   *RefundNoReturnEvidence   `json:"refund_no_return,omitempty"`
	DamagedInventory *DamagedInventoryEvidence `json:"damaged_inventory,omitempty"`
	InboundShortfall *InboundShortfallEvidence `json:"inbound_shortfall,omitempty"`
	RemovalShortfall *RemovalShortfallEvidence `json:"removal_shortfall,omitempty"`
	FraudSignature   *FraudSignatureEvidence   `json:"fraud_signature,omitempty"`
	RefundAbuse      *RefundAbuseEvidence      `json:"refund_abuse,omitempty"`
}

// LostWarehouseEvidence 仓内盘亏证据（台账对账明细）
type LostWarehouseEvidence struct {
	SKU               string  `json:"sku"`
	FulfillmentCenter string  `json:"fulfillment_center"`
	ExpectedQuantity  int     `json:"expected_quantity"`
	SnapshotQuantity  int     `json:"snapshot_quantity"`
	DeficitQuantity   int     `json:"deficit_quantity"`
	UnitValue         float64 `json:"unit_value"`
}

// RefundNoReturnEvidence 退款无退货证据
type RefundNoReturnEvidence struct {
	OrderID      string  `json:"order_id"`
	SKU          string  `json:"sku"`
	RefundAmount float64 `json:"refund_amount"`
	RefundAgeDay int     `json:"refund_age_days"`
}

// DamagedInventoryEvidence 仓损证据（事故码归因）
type DamagedInventoryEvidence struct {
	SKU               string  `json:"sku"`
	FulfillmentCenter string  `json:"fulfillment_center"`
	Quantity          int     `json:"quantity"`
	ReasonCode        string  `json:"reason_code"`
	UnitValue         float64 `json:"unit_value"`
}

// InboundShortfallEvidence 入库货件短缺证据
type InboundShortfallEvidence struct {
	ShipmentID       string `json:"shipment_id"`
	SKU              string `json:"sku"`
	QuantityShipped  int    `json:"quantity_shipped"`
	QuantityReceived int    `json:"quantity_received"`
	ShortfallUnits   int    `json:"shortfall_units"`
	AgeDays          int    `json:"age_days"`
}

// RemovalShortfallEvidence 移除订单短缺证据
type RemovalShortfallEvidence struct {
	RemovalOrderID    string `json:"removal_order_id"`
	OrderType         string `json:"order_type"`
	SKU               string `json:"sku"`
	RequestedQuantity int    `json:"requested_quantity"`
	ActualQuantity    int    `json:"actual_quantity"`
	ShortfallUnits    int    `json:"shortfall_units"`
}

// FraudSignatureEvidence 欺诈签名证据（单事件高置信）
type FraudSignatureEvidence struct {
	OrderID             string `json:"order_id"`
	SKU                 string `json:"sku"`
	DetailedDisposition string `json:"detailed_disposition"`
	CustomerID          string `json:"customer_id,omitempty"`
}

// RefundAbuseEvidence 无退货退款滥用证据（窗口聚合）
type RefundAbuseEvidence struct {
	CustomerID  string   `json:"customer_id"`
	WindowDays  int      `json:"window_days"`
	RefundCount int      `json:"refund_count"`
	RefundIDs   []string `json:"refund_ids"`
	TotalAmount float64  `json:"total_amount"`
}

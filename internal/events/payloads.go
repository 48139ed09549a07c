package events

// OrderCompletedData 订单完成事件
type OrderCompletedData struct {
	OrderID      uint            `json:"order_id"`
	OrderNo      string          `json:"order_no"`
	UserID       string          `json:"user_id"`
	Total        int64           `json:"total"`
	BalanceAfter int64           `json:"balance_after"`
	Lines        []OrderLineData `json:"lines"`
}

// OrderLineData 订单行摘要（不含卡密内容）
type OrderLineData struct {
	ItemID   uint  `json:"item_id"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"unit_price"`
}

// ChargeAppliedData 充值入账事件
type ChargeAppliedData struct {
	UserID        string `json:"user_id"`
	ExternalRef   string `json:"external_ref"`
	Amount        int64  `json:"amount"`
	BalanceAfter  int64  `json:"balance_after"`
	TransactionID uint   `json:"transaction_id"`
}

// BalanceAdjustedData 管理员调整余额事件
type BalanceAdjustedData struct {
	UserID        string `json:"user_id"`
	Delta         int64  `json:"delta"`
	BalanceAfter  int64  `json:"balance_after"`
	Actor         string `json:"actor"`
	TransactionID uint   `json:"transaction_id"`
}

// StockReleasedData 预占释放事件
type StockReleasedData struct {
	Released int64  `json:"released"`
	ItemIDs  []uint `json:"item_ids"`
	Reason   string `json:"reason"`
}

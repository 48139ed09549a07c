package repository

import "time"

// ItemListFilter 查询商品列表的过滤条件
type ItemListFilter struct {
	Page       int
	PageSize   int
	Category   string
	Search     string
	OnlyActive bool
}

// ItemHistoryFilter 查询商品变更历史的过滤条件
type ItemHistoryFilter struct {
	Page     int
	PageSize int
	ItemID   uint
}

// CredentialListFilter 查询卡密列表的过滤条件
type CredentialListFilter struct {
	Page     int
	PageSize int
	ItemID   uint
	Status   string
}

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	UserID      string
	ItemID      uint
	Status      string
	OrderNo     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// BalanceTransactionListFilter 查询余额流水的过滤条件
type BalanceTransactionListFilter struct {
	Page        int
	PageSize    int
	UserID      string
	OrderID     uint
	Type        string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ProfileListFilter 查询用户余额列表的过滤条件
type ProfileListFilter struct {
	Page     int
	PageSize int
	Search   string
}

// ChargeListFilter 查询充值记录的过滤条件
type ChargeListFilter struct {
	Page     int
	PageSize int
	UserID   string
}

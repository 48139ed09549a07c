package constants

// 订单状态常量
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// 卡密（凭证）状态常量
const (
	CredentialStatusAvailable = "available"
	CredentialStatusReserved  = "reserved"
	CredentialStatusConsumed  = "consumed"
)

// 余额流水类型常量
const (
	BalanceTxnTypeCharge          = "charge"
	BalanceTxnTypePurchase        = "purchase"
	BalanceTxnTypeRefund          = "refund"
	BalanceTxnTypeAdminAdjustment = "admin_adjustment"
)

// 余额流水业务引用前缀
const (
	BalanceRefPrefixCharge = "charge:"
	BalanceRefPrefixOrder  = "order:"
	BalanceRefPrefixRefund = "refund:"
	BalanceRefPrefixAdjust = "adjust:"
)

// 充值记录常量
const (
	ChargeStatusCompleted = "completed"
	ChargeSourceLink      = "link"
	ChargeSourceCallback  = "callback"
	ChargeSourceQueue     = "queue"
	ChargeSourceAdmin     = "admin"
)

// 商品变更历史类型
const (
	ItemChangeCreate   = "create"
	ItemChangeUpdate   = "update"
	ItemChangeDelete   = "delete"
	ItemChangeStockAdd = "stock_add"
)

// 管理员角色
const (
	AdminRoleAdmin  = "admin"
	AdminRoleEditor = "editor"
)

// 系统操作者标识
const (
	ActorSystem    = "system"
	ActorReconcile = "reconcile"
)

// 队列与任务名称
const (
	QueueDefault               = "default"
	QueueCritical              = "critical"
	TaskChargeApply            = "charge:apply"
	TaskCredentialReleaseStale = "credential:release_stale"
	TaskItemStockSync          = "item:stock_sync"
)

// 领域事件主题
const (
	EventOrderCompleted  = "order.completed"
	EventChargeApplied   = "charge.applied"
	EventBalanceAdjusted = "balance.adjusted"
	EventStockReleased   = "credential.released"
)

// 验证码
const (
	CaptchaProviderNone    = "none"
	CaptchaProviderImage   = "image"
	CaptchaSceneAdminLogin = "admin_login"
)

package models

import "time"

// BalanceTransaction 余额流水（只追加）
type BalanceTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                     // 主键
	UserID        string    `gorm:"type:varchar(64);index;not null" json:"user_id"`           // 用户ID
	Amount        int64     `gorm:"not null" json:"amount"`                                   // 变动金额（带符号）
	Type          string    `gorm:"type:varchar(32);index;not null" json:"type"`              // charge/purchase/refund/admin_adjustment
	OrderID       *uint     `gorm:"index" json:"order_id,omitempty"`                          // 关联订单
	Reference     *string   `gorm:"type:varchar(191);uniqueIndex" json:"reference,omitempty"` // 幂等引用
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                           // 变动前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                            // 变动后余额
	Actor         string    `gorm:"type:varchar(100)" json:"actor,omitempty"`                 // 操作者
	Remark        string    `gorm:"type:varchar(255)" json:"remark,omitempty"`                // 备注
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                  // 创建时间
}

// TableName 指定表名
func (BalanceTransaction) TableName() string {
	return "balance_transactions"
}

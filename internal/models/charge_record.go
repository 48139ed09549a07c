package models

import "time"

// ChargeRecord 外部支付充值记录
type ChargeRecord struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                       // 主键
	ExternalRef   string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"external_ref"` // 外部支付引用（幂等键）
	UserID        string    `gorm:"type:varchar(64);index;not null" json:"user_id"`             // 用户ID
	Amount        int64     `gorm:"not null" json:"amount"`                                     // 充值金额
	Status        string    `gorm:"type:varchar(20);not null" json:"status"`                    // 状态
	Source        string    `gorm:"type:varchar(20)" json:"source"`                             // 来源 link/callback/queue
	PaymentURL    string    `gorm:"type:varchar(512)" json:"payment_url,omitempty"`             // 支付链接
	TransactionID uint      `gorm:"index" json:"transaction_id"`                                // 对应余额流水
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                    // 创建时间
}

// TableName 指定表名
func (ChargeRecord) TableName() string {
	return "charge_records"
}

package models

import (
	"time"
)

// Credential 卡密表（单次售卖的账号凭证）
type Credential struct {
	ID         uint       `gorm:"primarykey" json:"id"`                                                                // 主键
	ItemID     uint       `gorm:"index:idx_credential_item_status,priority:1;not null" json:"item_id"`                 // 商品ID
	Payload    string     `gorm:"type:text;not null" json:"payload"`                                                   // 凭证内容
	Status     string     `gorm:"type:varchar(20);index:idx_credential_item_status,priority:2;not null" json:"status"` // available/reserved/consumed
	ClaimToken string     `gorm:"type:varchar(64);index" json:"-"`                                                     // 预占批次标识
	OrderID    *uint      `gorm:"index" json:"order_id,omitempty"`                                                     // 关联订单
	BatchNo    string     `gorm:"type:varchar(64);index" json:"batch_no"`                                              // 导入批次号
	ClaimedAt  *time.Time `gorm:"index" json:"claimed_at,omitempty"`                                                   // 预占时间
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`                                                               // 售出时间
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`                                                             // 创建时间
	UpdatedAt  time.Time  `json:"updated_at"`                                                                          // 更新时间
}

// TableName 指定表名
func (Credential) TableName() string {
	return "credentials"
}

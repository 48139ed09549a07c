package models

import "time"

// ItemHistory 商品变更历史表（只追加）
type ItemHistory struct {
	ID         uint      `gorm:"primarykey" json:"id"`                               // 主键
	ItemID     uint      `gorm:"index;not null" json:"item_id"`                      // 商品ID
	ChangeType string    `gorm:"type:varchar(20);index;not null" json:"change_type"` // create/update/delete/stock_add
	OldData    JSON      `gorm:"type:json" json:"old_data,omitempty"`                // 变更前快照
	NewData    JSON      `gorm:"type:json" json:"new_data,omitempty"`                // 变更后快照
	Actor      string    `gorm:"type:varchar(100)" json:"actor"`                     // 操作者
	ChangedAt  time.Time `gorm:"index;not null" json:"changed_at"`                   // 变更时间
}

// TableName 指定表名
func (ItemHistory) TableName() string {
	return "item_histories"
}

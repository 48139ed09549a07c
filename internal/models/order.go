package models

import (
	"time"
)

// Order 订单表
type Order struct {
	ID          uint         `gorm:"primarykey" json:"id"`                                  // 主键
	OrderNo     string       `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_no"` // 订单号
	UserID      string       `gorm:"type:varchar(64);index;not null" json:"user_id"`        // 用户ID
	Total       int64        `gorm:"not null;default:0" json:"total"`                       // 订单总额
	Status      string       `gorm:"type:varchar(20);index;not null" json:"status"`         // pending/completed/cancelled
	CreatedAt   time.Time    `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt   time.Time    `json:"updated_at"`                                            // 更新时间
	Lines       []OrderLine  `gorm:"foreignKey:OrderID" json:"lines,omitempty"`             // 订单行
	Credentials []Credential `gorm:"foreignKey:OrderID" json:"-"`                           // 已售凭证
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// OrderLine 订单行
type OrderLine struct {
	ID        uint      `gorm:"primarykey" json:"id"`                // 主键
	OrderID   uint      `gorm:"index;not null" json:"order_id"`      // 订单ID
	ItemID    uint      `gorm:"index;not null" json:"item_id"`       // 商品ID
	ItemTitle string    `gorm:"type:varchar(255)" json:"item_title"` // 商品标题快照
	Quantity  int       `gorm:"not null" json:"quantity"`            // 数量
	UnitPrice int64     `gorm:"not null" json:"unit_price"`          // 成交单价
	LineTotal int64     `gorm:"not null" json:"line_total"`          // 小计
	CreatedAt time.Time `json:"created_at"`                          // 创建时间
}

// TableName 指定表名
func (OrderLine) TableName() string {
	return "order_lines"
}

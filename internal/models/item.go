package models

import (
	"time"

	"gorm.io/gorm"
)

// Item 商品表
type Item struct {
	ID          uint           `gorm:"primarykey" json:"id"`                         // 主键
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`      // 标题
	Price       int64          `gorm:"not null;default:0" json:"price"`              // 单价（最小货币单位）
	Description string         `gorm:"type:text;not null" json:"description"`        // 描述
	ImageURL    string         `gorm:"type:varchar(512)" json:"image_url"`           // 图片地址
	Rating      float64        `gorm:"not null;default:0" json:"rating"`             // 评分
	Category    string         `gorm:"type:varchar(64);index" json:"category"`       // 分类
	Stock       int64          `gorm:"not null;default:0" json:"stock"`              // 可用库存（由卡密数量派生的缓存值）
	IsActive    bool           `gorm:"not null;default:true;index" json:"is_active"` // 是否上架
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                      // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                      // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                               // 软删除时间
}

// TableName 指定表名
func (Item) TableName() string {
	return "items"
}

// Snapshot 生成用于变更历史的快照
func (i Item) Snapshot() JSON {
	return JSON{
		"id":          i.ID,
		"title":       i.Title,
		"price":       i.Price,
		"description": i.Description,
		"image_url":   i.ImageURL,
		"rating":      i.Rating,
		"category":    i.Category,
		"stock":       i.Stock,
		"is_active":   i.IsActive,
	}
}

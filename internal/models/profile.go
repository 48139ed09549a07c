package models

import "time"

// Profile 用户资料与余额
type Profile struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                 // 主键
	UserID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // 用户ID（来自认证服务）
	Email         string    `gorm:"type:varchar(255)" json:"email"`                       // 邮箱
	CreditBalance int64     `gorm:"not null;default:0" json:"credit_balance"`             // 站内余额
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                              // 创建时间
	UpdatedAt     time.Time `json:"updated_at"`                                           // 更新时间
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}

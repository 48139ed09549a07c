package models

import (
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

const defaultAdminPassword = "admin123"

// InitDefaultAdmin 初始化默认管理员账号，已有管理员时跳过
func InitDefaultAdmin(username, password string) (*Admin, error) {
	var count int64
	if err := DB.Model(&Admin{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = defaultAdminPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	admin := &Admin{
		Username:     username,
		PasswordHash: string(hash),
		Role:         constants.AdminRoleAdmin,
	}
	if err := DB.Create(admin).Error; err != nil {
		return nil, err
	}

	if password == defaultAdminPassword {
		logger.Warnw("default_admin_created_with_default_password", "username", username)
	} else {
		logger.Infow("default_admin_created", "username", username)
	}
	return admin, nil
}

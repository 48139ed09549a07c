package repository

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

func isPostgres(db *gorm.DB) bool {
	switch dbDialectName(db) {
	case "postgres", "postgresql":
		return true
	default:
		return false
	}
}

// lockForUpdate 行级写锁；sqlite 不支持 FOR UPDATE，写事务本身串行化。
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if !isPostgres(db) {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockSkipLocked 抢占式选择：跳过其他事务已锁定的行，减少热点商品上的锁等待。
func lockSkipLocked(db *gorm.DB) *gorm.DB {
	if !isPostgres(db) {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}

// likeOperator 按方言返回大小写不敏感的 LIKE 操作符。
func likeOperator(db *gorm.DB) string {
	if isPostgres(db) {
		return "ILIKE"
	}
	return "LIKE"
}

package repository

import (
	"context"

	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
)

// ItemHistoryRepository 商品变更历史数据访问接口
type ItemHistoryRepository interface {
	Create(entry *models.ItemHistory) error
	List(filter ItemHistoryFilter) ([]models.ItemHistory, int64, error)
	WithTx(tx *gorm.DB) *GormItemHistoryRepository
	WithContext(ctx context.Context) *GormItemHistoryRepository
}

// GormItemHistoryRepository GORM 实现
type GormItemHistoryRepository struct {
	db *gorm.DB
}

// NewItemHistoryRepository 创建商品历史仓库
func NewItemHistoryRepository(db *gorm.DB) *GormItemHistoryRepository {
	return &GormItemHistoryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormItemHistoryRepository) WithTx(tx *gorm.DB) *GormItemHistoryRepository {
	if tx == nil {
		return r
	}
	return &GormItemHistoryRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormItemHistoryRepository) WithContext(ctx context.Context) *GormItemHistoryRepository {
	if ctx == nil {
		return r
	}
	return &GormItemHistoryRepository{db: r.db.WithContext(ctx)}
}

// Create 追加一条历史
func (r *GormItemHistoryRepository) Create(entry *models.ItemHistory) error {
	return r.db.Create(entry).Error
}

// List 按时间倒序查询历史
func (r *GormItemHistoryRepository) List(filter ItemHistoryFilter) ([]models.ItemHistory, int64, error) {
	query := r.db.Model(&models.ItemHistory{})
	if filter.ItemID != 0 {
		query = query.Where("item_id = ?", filter.ItemID)
	}

	return listPage[models.ItemHistory](query, filter.Page, filter.PageSize, "changed_at DESC, id DESC")
}

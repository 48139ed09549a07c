package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
)

// ItemRepository 商品数据访问接口
type ItemRepository interface {
	List(filter ItemListFilter) ([]models.Item, int64, error)
	GetByID(id uint) (*models.Item, error)
	GetByIDForUpdate(id uint) (*models.Item, error)
	ListByIDs(ids []uint) ([]models.Item, error)
	Create(item *models.Item) error
	Update(item *models.Item) error
	Delete(id uint) error
	SyncStock(itemID uint) error
	SyncStockByIDs(itemIDs []uint) error
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormItemRepository
	WithContext(ctx context.Context) *GormItemRepository
}

// GormItemRepository GORM 实现
type GormItemRepository struct {
	db *gorm.DB
}

// NewItemRepository 创建商品仓库
func NewItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

// WithTx 绑定事务
func (r *GormItemRepository) WithTx(tx *gorm.DB) *GormItemRepository {
	if tx == nil {
		return r
	}
	return &GormItemRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormItemRepository) WithContext(ctx context.Context) *GormItemRepository {
	if ctx == nil {
		return r
	}
	return &GormItemRepository{db: r.db.WithContext(ctx)}
}

// Transaction 执行事务
func (r *GormItemRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// List 商品列表
func (r *GormItemRepository) List(filter ItemListFilter) ([]models.Item, int64, error) {
	query := r.db.Model(&models.Item{})
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		op := likeOperator(r.db)
		pattern := "%" + search + "%"
		query = query.Where("(title "+op+" ? OR description "+op+" ?)", pattern, pattern)
	}

	return listPage[models.Item](query, filter.Page, filter.PageSize, "created_at DESC, id DESC")
}

// GetByID 根据 ID 获取商品
func (r *GormItemRepository) GetByID(id uint) (*models.Item, error) {
	if id == 0 {
		return nil, nil
	}
	var item models.Item
	if err := r.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// GetByIDForUpdate 加锁获取商品
func (r *GormItemRepository) GetByIDForUpdate(id uint) (*models.Item, error) {
	if id == 0 {
		return nil, nil
	}
	var item models.Item
	if err := lockForUpdate(r.db).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ListByIDs 批量获取商品（不含已删除）
func (r *GormItemRepository) ListByIDs(ids []uint) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}
	var items []models.Item
	if err := r.db.Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Create 创建商品
func (r *GormItemRepository) Create(item *models.Item) error {
	active := item.IsActive
	if err := r.db.Create(item).Error; err != nil {
		return err
	}
	// is_active 带默认值，零值在插入时会被忽略
	if !active {
		item.IsActive = false
		return r.db.Model(&models.Item{}).Where("id = ?", item.ID).Update("is_active", false).Error
	}
	return nil
}

// Update 更新商品元数据，库存列只由 SyncStock 回写
func (r *GormItemRepository) Update(item *models.Item) error {
	item.UpdatedAt = time.Now()
	return r.db.Model(&models.Item{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"title":       item.Title,
		"price":       item.Price,
		"description": item.Description,
		"image_url":   item.ImageURL,
		"rating":      item.Rating,
		"category":    item.Category,
		"is_active":   item.IsActive,
		"updated_at":  item.UpdatedAt,
	}).Error
}

// Delete 删除商品（软删除）
func (r *GormItemRepository) Delete(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Delete(&models.Item{}, id).Error
}

// SyncStock 按可用卡密数量回写商品库存
func (r *GormItemRepository) SyncStock(itemID uint) error {
	if itemID == 0 {
		return nil
	}
	return r.SyncStockByIDs([]uint{itemID})
}

// SyncStockByIDs 批量回写商品库存
func (r *GormItemRepository) SyncStockByIDs(itemIDs []uint) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return r.db.Exec(
		"UPDATE items SET stock = (SELECT COUNT(*) FROM credentials WHERE credentials.item_id = items.id AND credentials.status = ?) WHERE id IN ?",
		constants.CredentialStatusAvailable,
		itemIDs,
	).Error
}

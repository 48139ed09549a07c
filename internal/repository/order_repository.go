package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order, lines []models.OrderLine) error
	GetByID(id uint) (*models.Order, error)
	GetByIDAndUser(id uint, userID string) (*models.Order, error)
	GetByOrderNo(orderNo string) (*models.Order, error)
	ListByUser(filter OrderListFilter) ([]models.Order, int64, error)
	ListAdmin(filter OrderListFilter) ([]models.Order, int64, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
	WithContext(ctx context.Context) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormOrderRepository) WithContext(ctx context.Context) *GormOrderRepository {
	if ctx == nil {
		return r
	}
	return &GormOrderRepository{db: r.db.WithContext(ctx)}
}

func (r *GormOrderRepository) withDetail(query *gorm.DB) *gorm.DB {
	return query.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	}).Preload("Credentials", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	})
}

// Create 创建订单与订单行
func (r *GormOrderRepository) Create(order *models.Order, lines []models.OrderLine) error {
	if err := r.db.Omit("Lines", "Credentials").Create(order).Error; err != nil {
		return err
	}
	for i := range lines {
		lines[i].OrderID = order.ID
	}
	if len(lines) > 0 {
		if err := r.db.Create(&lines).Error; err != nil {
			return err
		}
	}
	order.Lines = lines
	return nil
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	if id == 0 {
		return nil, nil
	}
	var order models.Order
	if err := r.withDetail(r.db).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByIDAndUser 获取用户自己的订单
func (r *GormOrderRepository) GetByIDAndUser(id uint, userID string) (*models.Order, error) {
	if id == 0 || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.withDetail(r.db).Where("id = ? AND user_id = ?", id, userID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderNo 根据订单号获取订单
func (r *GormOrderRepository) GetByOrderNo(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.withDetail(r.db).Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListByUser 获取用户订单列表
func (r *GormOrderRepository) ListByUser(filter OrderListFilter) ([]models.Order, int64, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return []models.Order{}, 0, nil
	}
	return r.list(filter, true)
}

// ListAdmin 管理端订单列表
func (r *GormOrderRepository) ListAdmin(filter OrderListFilter) ([]models.Order, int64, error) {
	return r.list(filter, false)
}

func (r *GormOrderRepository) list(filter OrderListFilter, withCredentials bool) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OrderNo != "" {
		query = query.Where("order_no = ?", filter.OrderNo)
	}
	if filter.ItemID != 0 {
		query = query.Where("id IN (?)", r.db.Model(&models.OrderLine{}).Select("order_id").Where("item_id = ?", filter.ItemID))
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	prepare := r.withDetail
	if !withCredentials {
		prepare = func(db *gorm.DB) *gorm.DB {
			return db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
				return db.Order("id asc")
			})
		}
	}
	return listPage[models.Order](query, filter.Page, filter.PageSize, "id desc", prepare)
}

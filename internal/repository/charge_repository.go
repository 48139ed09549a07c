package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
)

// ChargeRepository 充值记录数据访问接口
type ChargeRepository interface {
	GetByExternalRef(ref string) (*models.ChargeRecord, error)
	Create(record *models.ChargeRecord) error
	List(filter ChargeListFilter) ([]models.ChargeRecord, int64, error)
	WithTx(tx *gorm.DB) *GormChargeRepository
	WithContext(ctx context.Context) *GormChargeRepository
}

// GormChargeRepository GORM 实现
type GormChargeRepository struct {
	db *gorm.DB
}

// NewChargeRepository 创建充值记录仓储
func NewChargeRepository(db *gorm.DB) *GormChargeRepository {
	return &GormChargeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormChargeRepository) WithTx(tx *gorm.DB) *GormChargeRepository {
	if tx == nil {
		return r
	}
	return &GormChargeRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormChargeRepository) WithContext(ctx context.Context) *GormChargeRepository {
	if ctx == nil {
		return r
	}
	return &GormChargeRepository{db: r.db.WithContext(ctx)}
}

// GetByExternalRef 按外部支付引用获取记录
func (r *GormChargeRepository) GetByExternalRef(ref string) (*models.ChargeRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	var record models.ChargeRecord
	if err := r.db.Where("external_ref = ?", ref).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Create 创建充值记录
func (r *GormChargeRepository) Create(record *models.ChargeRecord) error {
	return r.db.Create(record).Error
}

// List 分页查询充值记录
func (r *GormChargeRepository) List(filter ChargeListFilter) ([]models.ChargeRecord, int64, error) {
	query := r.db.Model(&models.ChargeRecord{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	return listPage[models.ChargeRecord](query, filter.Page, filter.PageSize, "id desc")
}

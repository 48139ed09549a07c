package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
)

// CredentialRepository 卡密库存数据访问接口
type CredentialRepository interface {
	CreateBatch(items []models.Credential) error
	GetByID(id uint) (*models.Credential, error)
	List(filter CredentialListFilter) ([]models.Credential, int64, error)
	ListByOrderIDs(orderIDs []uint) ([]models.Credential, error)
	ListByClaimToken(token string) ([]models.Credential, error)
	ListByIDs(ids []uint) ([]models.Credential, error)
	FindAvailableIDs(itemID uint, limit int) ([]uint, error)
	CountAvailable(itemID uint) (int64, error)
	CountByStatus(itemID uint) (map[string]int64, error)
	Reserve(ids []uint, token string, at time.Time) (int64, error)
	ReleaseByToken(token string) (int64, error)
	ReleaseByID(id uint) (int64, error)
	ConsumeByToken(token string, orderID uint, at time.Time) (int64, error)
	ListStaleItemIDs(cutoff time.Time) ([]uint, error)
	ReleaseStale(cutoff time.Time) (int64, error)
	DeleteAvailable(id uint) (int64, error)
	WithTx(tx *gorm.DB) *GormCredentialRepository
	WithContext(ctx context.Context) *GormCredentialRepository
}

// GormCredentialRepository GORM 实现
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository 创建卡密仓库
func NewCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCredentialRepository) WithTx(tx *gorm.DB) *GormCredentialRepository {
	if tx == nil {
		return r
	}
	return &GormCredentialRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormCredentialRepository) WithContext(ctx context.Context) *GormCredentialRepository {
	if ctx == nil {
		return r
	}
	return &GormCredentialRepository{db: r.db.WithContext(ctx)}
}

// CreateBatch 批量创建卡密
func (r *GormCredentialRepository) CreateBatch(items []models.Credential) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.CreateInBatches(&items, 200).Error
}

// GetByID 获取卡密
func (r *GormCredentialRepository) GetByID(id uint) (*models.Credential, error) {
	var credential models.Credential
	if err := r.db.First(&credential, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &credential, nil
}

// List 卡密列表（新的在前）
func (r *GormCredentialRepository) List(filter CredentialListFilter) ([]models.Credential, int64, error) {
	query := r.db.Model(&models.Credential{})
	if filter.ItemID != 0 {
		query = query.Where("item_id = ?", filter.ItemID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	return listPage[models.Credential](query, filter.Page, filter.PageSize, "id desc")
}

// ListByOrderIDs 按订单获取已售卡密
func (r *GormCredentialRepository) ListByOrderIDs(orderIDs []uint) ([]models.Credential, error) {
	if len(orderIDs) == 0 {
		return []models.Credential{}, nil
	}
	var items []models.Credential
	if err := r.db.Where("order_id IN ? AND status = ?", orderIDs, constants.CredentialStatusConsumed).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListByClaimToken 获取某次下单预占的卡密
func (r *GormCredentialRepository) ListByClaimToken(token string) ([]models.Credential, error) {
	if token == "" {
		return []models.Credential{}, nil
	}
	var items []models.Credential
	if err := r.db.Where("claim_token = ?", token).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListByIDs 按 ID 批量获取卡密
func (r *GormCredentialRepository) ListByIDs(ids []uint) ([]models.Credential, error) {
	if len(ids) == 0 {
		return []models.Credential{}, nil
	}
	var items []models.Credential
	if err := r.db.Where("id IN ?", ids).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindAvailableIDs 按入库顺序选取可用卡密
func (r *GormCredentialRepository) FindAvailableIDs(itemID uint, limit int) ([]uint, error) {
	if itemID == 0 || limit <= 0 {
		return []uint{}, nil
	}
	var ids []uint
	if err := lockSkipLocked(r.db.Model(&models.Credential{})).
		Where("item_id = ? AND status = ?", itemID, constants.CredentialStatusAvailable).
		Order("id asc").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountAvailable 统计可用库存
func (r *GormCredentialRepository) CountAvailable(itemID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&models.Credential{}).
		Where("item_id = ? AND status = ?", itemID, constants.CredentialStatusAvailable).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus 按状态统计卡密数量
func (r *GormCredentialRepository) CountByStatus(itemID uint) (map[string]int64, error) {
	type countRow struct {
		Status string
		Total  int64
	}
	var rows []countRow
	if err := r.db.Model(&models.Credential{}).
		Select("status, COUNT(*) as total").
		Where("item_id = ?", itemID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := map[string]int64{
		constants.CredentialStatusAvailable: 0,
		constants.CredentialStatusReserved:  0,
		constants.CredentialStatusConsumed:  0,
	}
	for _, row := range rows {
		result[row.Status] = row.Total
	}
	return result, nil
}

// Reserve 条件更新预占卡密，仅 available 状态会被更新
func (r *GormCredentialRepository) Reserve(ids []uint, token string, at time.Time) (int64, error) {
	if len(ids) == 0 || token == "" {
		return 0, nil
	}
	result := r.db.Model(&models.Credential{}).
		Where("id IN ? AND status = ?", ids, constants.CredentialStatusAvailable).
		Updates(map[string]interface{}{
			"status":      constants.CredentialStatusReserved,
			"claim_token": token,
			"claimed_at":  at,
			"updated_at":  at,
		})
	return result.RowsAffected, result.Error
}

// ReleaseByToken 释放某次下单尚未落单的预占
func (r *GormCredentialRepository) ReleaseByToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	result := r.db.Model(&models.Credential{}).
		Where("claim_token = ? AND status = ? AND order_id IS NULL", token, constants.CredentialStatusReserved).
		Updates(releaseColumns(time.Now()))
	return result.RowsAffected, result.Error
}

// ReleaseByID 释放单条预占
func (r *GormCredentialRepository) ReleaseByID(id uint) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Credential{}).
		Where("id = ? AND status = ? AND order_id IS NULL", id, constants.CredentialStatusReserved).
		Updates(releaseColumns(time.Now()))
	return result.RowsAffected, result.Error
}

// ConsumeByToken 将预占卡密标记为售出并关联订单
func (r *GormCredentialRepository) ConsumeByToken(token string, orderID uint, at time.Time) (int64, error) {
	if token == "" || orderID == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Credential{}).
		Where("claim_token = ? AND status = ? AND order_id IS NULL", token, constants.CredentialStatusReserved).
		Updates(map[string]interface{}{
			"status":      constants.CredentialStatusConsumed,
			"order_id":    orderID,
			"consumed_at": at,
			"updated_at":  at,
		})
	return result.RowsAffected, result.Error
}

// ListStaleItemIDs 查询存在超时预占的商品
func (r *GormCredentialRepository) ListStaleItemIDs(cutoff time.Time) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.Credential{}).
		Where("status = ? AND order_id IS NULL AND claimed_at < ?", constants.CredentialStatusReserved, cutoff).
		Distinct("item_id").
		Pluck("item_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ReleaseStale 释放超时未落单的预占
func (r *GormCredentialRepository) ReleaseStale(cutoff time.Time) (int64, error) {
	result := r.db.Model(&models.Credential{}).
		Where("status = ? AND order_id IS NULL AND claimed_at < ?", constants.CredentialStatusReserved, cutoff).
		Updates(releaseColumns(time.Now()))
	return result.RowsAffected, result.Error
}

// DeleteAvailable 删除未售出的卡密
func (r *GormCredentialRepository) DeleteAvailable(id uint) (int64, error) {
	result := r.db.Where("id = ? AND status = ?", id, constants.CredentialStatusAvailable).
		Delete(&models.Credential{})
	return result.RowsAffected, result.Error
}

func releaseColumns(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":      constants.CredentialStatusAvailable,
		"claim_token": "",
		"claimed_at":  nil,
		"updated_at":  now,
	}
}

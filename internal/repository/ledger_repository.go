package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository 余额账户与流水数据访问接口
type LedgerRepository interface {
	GetProfile(userID string) (*models.Profile, error)
	GetProfileForUpdate(userID string) (*models.Profile, error)
	EnsureProfile(userID string) (*models.Profile, error)
	ApplyDelta(userID string, delta int64) (int64, error)
	ListProfiles(filter ProfileListFilter) ([]models.Profile, int64, error)
	CreateTransaction(txn *models.BalanceTransaction) error
	GetTransactionByReference(reference string) (*models.BalanceTransaction, error)
	ListTransactions(filter BalanceTransactionListFilter) ([]models.BalanceTransaction, int64, error)
	SumTransactions(userID string) (int64, int64, error)
	LastTransaction(userID string) (*models.BalanceTransaction, error)
	WithTx(tx *gorm.DB) *GormLedgerRepository
	WithContext(ctx context.Context) *GormLedgerRepository
}

// GormLedgerRepository GORM 实现
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建余额仓储
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) *GormLedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// WithContext 绑定上下文
func (r *GormLedgerRepository) WithContext(ctx context.Context) *GormLedgerRepository {
	if ctx == nil {
		return r
	}
	return &GormLedgerRepository{db: r.db.WithContext(ctx)}
}

// GetProfile 按用户ID获取余额账户
func (r *GormLedgerRepository) GetProfile(userID string) (*models.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var profile models.Profile
	if err := r.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// GetProfileForUpdate 按用户ID加锁获取余额账户
func (r *GormLedgerRepository) GetProfileForUpdate(userID string) (*models.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var profile models.Profile
	if err := lockForUpdate(r.db).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// EnsureProfile 获取余额账户，不存在时以零余额创建
func (r *GormLedgerRepository) EnsureProfile(userID string) (*models.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	profile, err := r.GetProfile(userID)
	if err != nil || profile != nil {
		return profile, err
	}
	created := &models.Profile{UserID: userID, CreditBalance: 0}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(created).Error; err != nil {
		return nil, err
	}
	return r.GetProfile(userID)
}

// ApplyDelta 条件更新余额，结果为负时不更新
func (r *GormLedgerRepository) ApplyDelta(userID string, delta int64) (int64, error) {
	result := r.db.Model(&models.Profile{}).
		Where("user_id = ? AND credit_balance + ? >= 0", userID, delta).
		Updates(map[string]interface{}{
			"credit_balance": gorm.Expr("credit_balance + ?", delta),
			"updated_at":     time.Now(),
		})
	return result.RowsAffected, result.Error
}

// ListProfiles 分页查询余额账户
func (r *GormLedgerRepository) ListProfiles(filter ProfileListFilter) ([]models.Profile, int64, error) {
	query := r.db.Model(&models.Profile{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		op := likeOperator(r.db)
		pattern := "%" + search + "%"
		query = query.Where("(user_id "+op+" ? OR email "+op+" ?)", pattern, pattern)
	}

	return listPage[models.Profile](query, filter.Page, filter.PageSize, "id desc")
}

// CreateTransaction 写入余额流水
func (r *GormLedgerRepository) CreateTransaction(txn *models.BalanceTransaction) error {
	return r.db.Create(txn).Error
}

// GetTransactionByReference 按幂等引用获取流水
func (r *GormLedgerRepository) GetTransactionByReference(reference string) (*models.BalanceTransaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var txn models.BalanceTransaction
	if err := r.db.Where("reference = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// ListTransactions 分页查询余额流水
func (r *GormLedgerRepository) ListTransactions(filter BalanceTransactionListFilter) ([]models.BalanceTransaction, int64, error) {
	query := r.db.Model(&models.BalanceTransaction{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	return listPage[models.BalanceTransaction](query, filter.Page, filter.PageSize, "id desc")
}

// SumTransactions 汇总用户流水金额与条数
func (r *GormLedgerRepository) SumTransactions(userID string) (int64, int64, error) {
	type sumRow struct {
		Total int64
		Count int64
	}
	var row sumRow
	if err := r.db.Model(&models.BalanceTransaction{}).
		Select("COALESCE(SUM(amount), 0) as total, COUNT(*) as count").
		Where("user_id = ?", userID).
		Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

// LastTransaction 获取用户最新一条流水
func (r *GormLedgerRepository) LastTransaction(userID string) (*models.BalanceTransaction, error) {
	var txn models.BalanceTransaction
	if err := r.db.Where("user_id = ?", userID).Order("id desc").First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

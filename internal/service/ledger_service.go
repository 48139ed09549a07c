package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/metrics"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerService 余额账本服务
type LedgerService struct {
	ledgerRepo repository.LedgerRepository
	publisher  events.Publisher
}

// CreditInput 入账输入
type CreditInput struct {
	UserID    string
	Amount    int64
	Type      string
	Reference string
	OrderID   *uint
	Actor     string
	Remark    string
}

// DebitInput 扣款输入
type DebitInput struct {
	UserID    string
	Amount    int64
	Type      string
	Reference string
	OrderID   *uint
	Actor     string
	Remark    string
}

// ReplayReport 余额回放核对结果
type ReplayReport struct {
	UserID           string `json:"user_id"`
	ProfileBalance   int64  `json:"profile_balance"`
	SumOfEntries     int64  `json:"sum_of_entries"`
	LastBalanceAfter int64  `json:"last_balance_after"`
	EntryCount       int64  `json:"entry_count"`
	Consistent       bool   `json:"consistent"`
}

// NewLedgerService 创建余额账本服务
func NewLedgerService(ledgerRepo repository.LedgerRepository, publisher events.Publisher) *LedgerService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &LedgerService{
		ledgerRepo: ledgerRepo,
		publisher:  publisher,
	}
}

// GetBalance 获取余额，账户不存在时按 0 创建
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.CreditBalance, nil
}

// GetProfile 获取余额账户（不存在时自动创建）
func (s *LedgerService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrProfileNotFound
	}
	profile, err := s.ledgerRepo.WithContext(ctx).EnsureProfile(userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// Credit 增加余额；相同引用的入账只会生效一次
func (s *LedgerService) Credit(ctx context.Context, input CreditInput) (*models.BalanceTransaction, error) {
	var txn *models.BalanceTransaction
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.CreditInTx(tx, input)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			existing, lookupErr := s.ledgerRepo.WithContext(ctx).GetTransactionByReference(input.Reference)
			if lookupErr == nil && existing != nil {
				return existing, ErrDuplicateReference
			}
		}
		return nil, err
	}
	return txn, nil
}

// CreditInTx 在外部事务内入账
func (s *LedgerService) CreditInTx(tx *gorm.DB, input CreditInput) (*models.BalanceTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	txnType := strings.TrimSpace(input.Type)
	if txnType == "" {
		txnType = constants.BalanceTxnTypeCharge
	}
	return s.applyInTx(tx, input.UserID, input.Amount, txnType, input.Reference, input.OrderID, input.Actor, input.Remark)
}

// Debit 扣减余额，余额不足时不做任何修改
func (s *LedgerService) Debit(ctx context.Context, input DebitInput) (*models.BalanceTransaction, error) {
	var txn *models.BalanceTransaction
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.DebitInTx(tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// DebitInTx 在外部事务内扣款
func (s *LedgerService) DebitInTx(tx *gorm.DB, input DebitInput) (*models.BalanceTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	txnType := strings.TrimSpace(input.Type)
	if txnType == "" {
		txnType = constants.BalanceTxnTypePurchase
	}
	return s.applyInTx(tx, input.UserID, -input.Amount, txnType, input.Reference, input.OrderID, input.Actor, input.Remark)
}

// Adjust 管理员将余额直接设置为 newBalance，差额记为一条调整流水
func (s *LedgerService) Adjust(ctx context.Context, userID string, newBalance int64, actor, remark string) (*models.BalanceTransaction, error) {
	if newBalance < 0 {
		return nil, ErrInvalidAmount
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrProfileNotFound
	}
	reference := constants.BalanceRefPrefixAdjust + uuid.NewString()
	actor = normalizeActor(actor)

	var txn *models.BalanceTransaction
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.ledgerRepo.WithTx(tx)
		profile, err := s.lockProfile(repo, userID)
		if err != nil {
			return err
		}
		delta := newBalance - profile.CreditBalance
		if delta != 0 {
			affected, err := repo.ApplyDelta(userID, delta)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrBalanceUpdateFailed
			}
		}
		ref := reference
		txn = &models.BalanceTransaction{
			UserID:        userID,
			Amount:        delta,
			Type:          constants.BalanceTxnTypeAdminAdjustment,
			Reference:     &ref,
			BalanceBefore: profile.CreditBalance,
			BalanceAfter:  newBalance,
			Actor:         actor,
			Remark:        cleanLedgerRemark(remark, "admin balance adjustment"),
			CreatedAt:     time.Now(),
		}
		return repo.CreateTransaction(txn)
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerEntriesTotal.WithLabelValues(txn.Type).Inc()
	logger.Infow("balance_adjusted", "user_id", userID, "delta", txn.Amount, "balance_after", newBalance, "actor", actor)
	if err := s.publisher.Publish(ctx, constants.EventBalanceAdjusted, events.UserKey(userID), events.BalanceAdjustedData{
		UserID:        userID,
		Delta:         txn.Amount,
		BalanceAfter:  txn.BalanceAfter,
		Actor:         actor,
		TransactionID: txn.ID,
	}); err != nil {
		logger.Warnw("balance_adjusted_event_publish_failed", "user_id", userID, "error", err)
	}
	return txn, nil
}

// Refund 订单退款到余额，同一订单只能退一次
func (s *LedgerService) Refund(ctx context.Context, userID string, orderID uint, amount int64, actor string) (*models.BalanceTransaction, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	return s.Credit(ctx, CreditInput{
		UserID:    userID,
		Amount:    amount,
		Type:      constants.BalanceTxnTypeRefund,
		Reference: fmt.Sprintf("%s%d", constants.BalanceRefPrefixRefund, orderID),
		OrderID:   &orderID,
		Actor:     actor,
		Remark:    "order refund",
	})
}

// ListTransactions 查询余额流水
func (s *LedgerService) ListTransactions(ctx context.Context, filter repository.BalanceTransactionListFilter) ([]models.BalanceTransaction, int64, error) {
	return s.ledgerRepo.WithContext(ctx).ListTransactions(filter)
}

// ListProfiles 管理端余额账户列表
func (s *LedgerService) ListProfiles(ctx context.Context, filter repository.ProfileListFilter) ([]models.Profile, int64, error) {
	return s.ledgerRepo.WithContext(ctx).ListProfiles(filter)
}

// VerifyReplay 通过回放流水核对账户余额
func (s *LedgerService) VerifyReplay(ctx context.Context, userID string) (*ReplayReport, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	repo := s.ledgerRepo.WithContext(ctx)
	sum, count, err := repo.SumTransactions(profile.UserID)
	if err != nil {
		return nil, err
	}
	report := &ReplayReport{
		UserID:         profile.UserID,
		ProfileBalance: profile.CreditBalance,
		SumOfEntries:   sum,
		EntryCount:     count,
	}
	last, err := repo.LastTransaction(profile.UserID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		report.LastBalanceAfter = last.BalanceAfter
	}
	report.Consistent = report.SumOfEntries == report.ProfileBalance && report.LastBalanceAfter == report.ProfileBalance
	if !report.Consistent {
		logger.Errorw("balance_replay_mismatch",
			"user_id", profile.UserID,
			"profile_balance", report.ProfileBalance,
			"sum_of_entries", report.SumOfEntries,
			"last_balance_after", report.LastBalanceAfter,
		)
	}
	return report, nil
}

func (s *LedgerService) applyInTx(tx *gorm.DB, userID string, delta int64, txnType, reference string, orderID *uint, actor, remark string) (*models.BalanceTransaction, error) {
	if tx == nil {
		return nil, ErrBalanceUpdateFailed
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrProfileNotFound
	}
	repo := s.ledgerRepo.WithTx(tx)
	reference = strings.TrimSpace(reference)
	if reference != "" {
		existing, err := repo.GetTransactionByReference(reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrDuplicateReference
		}
	}

	profile, err := s.lockProfile(repo, userID)
	if err != nil {
		return nil, err
	}
	before := profile.CreditBalance
	after := before + delta
	if after < 0 {
		return nil, &InsufficientBalanceError{Balance: before, Required: -delta}
	}
	affected, err := repo.ApplyDelta(userID, delta)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &InsufficientBalanceError{Balance: before, Required: -delta}
	}

	txn := &models.BalanceTransaction{
		UserID:        userID,
		Amount:        delta,
		Type:          txnType,
		OrderID:       orderID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Actor:         normalizeActor(actor),
		Remark:        strings.TrimSpace(remark),
		CreatedAt:     time.Now(),
	}
	if reference != "" {
		txn.Reference = &reference
	}
	if err := repo.CreateTransaction(txn); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}
	metrics.LedgerEntriesTotal.WithLabelValues(txnType).Inc()
	return txn, nil
}

func (s *LedgerService) lockProfile(repo *repository.GormLedgerRepository, userID string) (*models.Profile, error) {
	profile, err := repo.GetProfileForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}
	if _, err := repo.EnsureProfile(userID); err != nil {
		return nil, err
	}
	profile, err = repo.GetProfileForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

const maxLedgerRemarkRunes = 255

func cleanLedgerRemark(remark, fallback string) string {
	remark = strings.TrimSpace(remark)
	if remark == "" {
		return fallback
	}
	if utf8.RuneCountInString(remark) > maxLedgerRemarkRunes {
		return string([]rune(remark)[:maxLedgerRemarkRunes])
	}
	return remark
}

// isUniqueViolation 兼容 sqlite 与 postgres 的唯一约束冲突判断
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

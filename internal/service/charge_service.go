package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/metrics"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"gorm.io/gorm"
)

// ChargeService 外部支付充值入账
type ChargeService struct {
	chargeRepo repository.ChargeRepository
	ledger     *LedgerService
	publisher  events.Publisher
	cfg        config.ChargeConfig
}

// ApplyChargeInput 充值入账输入
type ApplyChargeInput struct {
	UserID      string
	ExternalRef string
	Amount      int64
	PaymentURL  string
	Source      string
}

// ChargeResult 充值结果
type ChargeResult struct {
	ChargeID      uint  `json:"charge_id"`
	TransactionID uint  `json:"transaction_id"`
	Amount        int64 `json:"amount"`
	Balance       int64 `json:"balance"`
}

// NewChargeService 创建充值服务
func NewChargeService(chargeRepo repository.ChargeRepository, ledger *LedgerService, publisher events.Publisher, cfg config.ChargeConfig) *ChargeService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ChargeService{
		chargeRepo: chargeRepo,
		ledger:     ledger,
		publisher:  publisher,
		cfg:        cfg,
	}
}

// ApplyCharge 将一笔已验证的外部支付记入余额；同一外部引用只入账一次
func (s *ChargeService) ApplyCharge(ctx context.Context, input ApplyChargeInput) (*ChargeResult, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.ExternalRef = strings.TrimSpace(input.ExternalRef)
	if input.UserID == "" {
		return nil, newValidationError("user_id", "required")
	}
	if input.ExternalRef == "" {
		return nil, newValidationError("external_ref", "required")
	}
	if input.Amount <= 0 {
		metrics.ChargesAppliedTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, ErrInvalidAmount
	}
	if s.cfg.MaxAmount > 0 && input.Amount > s.cfg.MaxAmount {
		metrics.ChargesAppliedTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, newValidationError("amount", "exceeds maximum charge amount")
	}
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = constants.ChargeSourceCallback
	}

	var record *models.ChargeRecord
	var txn *models.BalanceTransaction
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.chargeRepo.WithTx(tx)
		existing, err := repo.GetByExternalRef(input.ExternalRef)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateCharge
		}
		txn, err = s.ledger.CreditInTx(tx, CreditInput{
			UserID:    input.UserID,
			Amount:    input.Amount,
			Type:      constants.BalanceTxnTypeCharge,
			Reference: constants.BalanceRefPrefixCharge + input.ExternalRef,
			Actor:     constants.ActorSystem,
			Remark:    "charge via " + source,
		})
		if err != nil {
			if errors.Is(err, ErrDuplicateReference) {
				return ErrDuplicateCharge
			}
			return err
		}
		record = &models.ChargeRecord{
			ExternalRef:   input.ExternalRef,
			UserID:        input.UserID,
			Amount:        input.Amount,
			Status:        constants.ChargeStatusCompleted,
			Source:        source,
			PaymentURL:    strings.TrimSpace(input.PaymentURL),
			TransactionID: txn.ID,
			CreatedAt:     time.Now(),
		}
		if err := repo.Create(record); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateCharge
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCharge) {
			metrics.ChargesAppliedTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
			logger.Infow("charge_duplicate_ignored", "user_id", input.UserID, "external_ref", input.ExternalRef, "source", source)
			return nil, ErrDuplicateCharge
		}
		metrics.ChargesAppliedTotal.WithLabelValues(metrics.ResultError).Inc()
		logger.Errorw("charge_apply_failed", "user_id", input.UserID, "external_ref", input.ExternalRef, "error", err)
		return nil, err
	}

	metrics.ChargesAppliedTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.Infow("charge_applied",
		"user_id", input.UserID,
		"external_ref", input.ExternalRef,
		"amount", input.Amount,
		"balance_after", txn.BalanceAfter,
		"source", source,
	)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), constants.EventChargeApplied, events.UserKey(input.UserID), events.ChargeAppliedData{
		UserID:        input.UserID,
		ExternalRef:   input.ExternalRef,
		Amount:        input.Amount,
		BalanceAfter:  txn.BalanceAfter,
		TransactionID: txn.ID,
	}); err != nil {
		logger.Warnw("charge_event_publish_failed", "external_ref", input.ExternalRef, "error", err)
	}
	return &ChargeResult{
		ChargeID:      record.ID,
		TransactionID: txn.ID,
		Amount:        input.Amount,
		Balance:       txn.BalanceAfter,
	}, nil
}

// IsReceivableStatus 判断外部支付状态是否可入账
func (s *ChargeService) IsReceivableStatus(status string) bool {
	status = strings.TrimSpace(status)
	if status == "" {
		return false
	}
	statuses := s.cfg.ReceivableStatuses
	if len(statuses) == 0 {
		statuses = []string{"COMPLETED"}
	}
	for _, allowed := range statuses {
		if strings.EqualFold(strings.TrimSpace(allowed), status) {
			return true
		}
	}
	return false
}

// VerifyCallbackToken 校验回调共享密钥；未配置时拒绝所有回调
func (s *ChargeService) VerifyCallbackToken(token string) bool {
	expected := strings.TrimSpace(s.cfg.CallbackToken)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

// ListCharges 查询充值记录
func (s *ChargeService) ListCharges(ctx context.Context, filter repository.ChargeListFilter) ([]models.ChargeRecord, int64, error) {
	return s.chargeRepo.WithContext(ctx).List(filter)
}

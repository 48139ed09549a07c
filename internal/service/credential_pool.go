package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/cache"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/metrics"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"gorm.io/gorm"
)

const defaultClaimRetries = 3

// errClaimConflict 条件更新命中行数不足，说明有并发买家抢先预占
var errClaimConflict = errors.New("credential claim conflict")

// CredentialPool 卡密库存池
type CredentialPool struct {
	credentialRepo repository.CredentialRepository
	itemRepo       repository.ItemRepository
	historyRepo    repository.ItemHistoryRepository
	publisher      events.Publisher
	claimRetries   int
}

// CredentialStats 卡密状态统计
type CredentialStats struct {
	ItemID    uint  `json:"item_id"`
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Consumed  int64 `json:"consumed"`
}

// NewCredentialPool 创建卡密库存池
func NewCredentialPool(
	credentialRepo repository.CredentialRepository,
	itemRepo repository.ItemRepository,
	historyRepo repository.ItemHistoryRepository,
	publisher events.Publisher,
	claimRetries int,
) *CredentialPool {
	if claimRetries <= 0 {
		claimRetries = defaultClaimRetries
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &CredentialPool{
		credentialRepo: credentialRepo,
		itemRepo:       itemRepo,
		historyRepo:    historyRepo,
		publisher:      publisher,
		claimRetries:   claimRetries,
	}
}

// AddCredentials 批量入库卡密，返回实际入库数量
func (s *CredentialPool) AddCredentials(ctx context.Context, itemID uint, payloads []string, actor string) (int, error) {
	if itemID == 0 {
		return 0, ErrItemNotFound
	}
	normalized := normalizePayloads(payloads)
	if len(normalized) == 0 {
		return 0, newValidationError("credentials", "no usable credential payloads")
	}

	batchNo := generateBatchNo()
	now := time.Now()
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		itemRepo := s.itemRepo.WithTx(tx)
		item, err := itemRepo.GetByIDForUpdate(itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}
		before := item.Stock

		rows := make([]models.Credential, 0, len(normalized))
		for _, payload := range normalized {
			rows = append(rows, models.Credential{
				ItemID:    itemID,
				Payload:   payload,
				Status:    constants.CredentialStatusAvailable,
				BatchNo:   batchNo,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err := s.credentialRepo.WithTx(tx).CreateBatch(rows); err != nil {
			return err
		}
		if err := itemRepo.SyncStock(itemID); err != nil {
			return err
		}
		updated, err := itemRepo.GetByID(itemID)
		if err != nil {
			return err
		}
		return s.historyRepo.WithTx(tx).Create(&models.ItemHistory{
			ItemID:     itemID,
			ChangeType: constants.ItemChangeStockAdd,
			OldData:    models.JSON{"stock": before},
			NewData:    models.JSON{"stock": updated.Stock, "added": len(rows), "batch_no": batchNo},
			Actor:      normalizeActor(actor),
			ChangedAt:  now,
		})
	})
	if err != nil {
		return 0, err
	}
	invalidateItemListCache(ctx)
	logger.Infow("credentials_added", "item_id", itemID, "count", len(normalized), "batch_no", batchNo, "actor", actor)
	return len(normalized), nil
}

// ClaimOne 预占一条卡密
func (s *CredentialPool) ClaimOne(ctx context.Context, itemID uint, token string) (*models.Credential, error) {
	rows, err := s.ClaimMany(ctx, itemID, 1, token)
	if err != nil {
		return nil, err
	}
	return &rows[0], nil
}

// ClaimMany 全有或全无地预占 n 条卡密；并发冲突时有限次重试
func (s *CredentialPool) ClaimMany(ctx context.Context, itemID uint, n int, token string) ([]models.Credential, error) {
	if n <= 0 {
		return nil, newValidationError("quantity", "must be at least 1")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrClaimTokenRequired
	}

	var lastErr error
	for attempt := 1; attempt <= s.claimRetries; attempt++ {
		claimed, err := s.claimOnce(ctx, itemID, n, token)
		if err == nil {
			metrics.CredentialsClaimedTotal.Add(float64(len(claimed)))
			return claimed, nil
		}
		if !errors.Is(err, errClaimConflict) {
			return nil, err
		}
		metrics.CredentialClaimConflictsTotal.Inc()
		logger.Debugw("credential_claim_conflict", "item_id", itemID, "quantity", n, "attempt", attempt)
		lastErr = err
	}

	available, err := s.credentialRepo.WithContext(ctx).CountAvailable(itemID)
	if err != nil {
		return nil, fmt.Errorf("count available after conflict: %w", err)
	}
	logger.Warnw("credential_claim_retries_exhausted", "item_id", itemID, "quantity", n, "available", available, "error", lastErr)
	return nil, &OutOfStockError{ItemID: itemID, Requested: n, Available: available}
}

func (s *CredentialPool) claimOnce(ctx context.Context, itemID uint, n int, token string) ([]models.Credential, error) {
	var claimed []models.Credential
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.credentialRepo.WithTx(tx)
		ids, err := repo.FindAvailableIDs(itemID, n)
		if err != nil {
			return err
		}
		if len(ids) < n {
			return &OutOfStockError{ItemID: itemID, Requested: n, Available: int64(len(ids))}
		}
		affected, err := repo.Reserve(ids, token, time.Now())
		if err != nil {
			return err
		}
		if affected != int64(n) {
			return errClaimConflict
		}
		claimed, err = repo.ListByIDs(ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseCredential 将单条预占卡密退回库存
func (s *CredentialPool) ReleaseCredential(ctx context.Context, id uint) error {
	repo := s.credentialRepo.WithContext(ctx)
	row, err := repo.GetByID(id)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrCredentialNotFound
	}
	affected, err := repo.ReleaseByID(id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialNotReserved
	}
	s.syncStock(ctx, []uint{row.ItemID})
	metrics.CredentialsReleasedTotal.WithLabelValues(metrics.ReleaseReasonManual).Add(float64(affected))
	logger.Infow("credential_released", "credential_id", id, "item_id", row.ItemID)
	return nil
}

// ReleaseByToken 释放某次下单持有的全部预占
func (s *CredentialPool) ReleaseByToken(ctx context.Context, token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	var released int64
	var itemIDs []uint
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.credentialRepo.WithTx(tx)
		rows, err := repo.ListByClaimToken(token)
		if err != nil {
			return err
		}
		itemIDs = uniqueItemIDs(rows)
		released, err = repo.ReleaseByToken(token)
		if err != nil {
			return err
		}
		return s.itemRepo.WithTx(tx).SyncStockByIDs(itemIDs)
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		metrics.CredentialsReleasedTotal.WithLabelValues(metrics.ReleaseReasonRollback).Add(float64(released))
		invalidateItemListCache(ctx)
	}
	return released, nil
}

// DeleteCredential 删除未售出的卡密
func (s *CredentialPool) DeleteCredential(ctx context.Context, id uint) error {
	repo := s.credentialRepo.WithContext(ctx)
	row, err := repo.GetByID(id)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrCredentialNotFound
	}
	switch row.Status {
	case constants.CredentialStatusConsumed:
		return ErrCredentialConsumed
	case constants.CredentialStatusReserved:
		return ErrCredentialReserved
	}
	affected, err := repo.DeleteAvailable(id)
	if err != nil {
		return err
	}
	if affected == 0 {
		// 读取后被并发预占或售出
		current, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if current != nil && current.Status == constants.CredentialStatusConsumed {
			return ErrCredentialConsumed
		}
		return ErrCredentialReserved
	}
	s.syncStock(ctx, []uint{row.ItemID})
	logger.Infow("credential_deleted", "credential_id", id, "item_id", row.ItemID)
	return nil
}

// ReleaseStale 释放超过 olderThan 仍未落单的预占，返回释放数量
func (s *CredentialPool) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, newValidationError("older_than", "must be positive")
	}
	cutoff := time.Now().Add(-olderThan)
	var released int64
	var itemIDs []uint
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.credentialRepo.WithTx(tx)
		var err error
		itemIDs, err = repo.ListStaleItemIDs(cutoff)
		if err != nil {
			return err
		}
		if len(itemIDs) == 0 {
			return nil
		}
		released, err = repo.ReleaseStale(cutoff)
		if err != nil {
			return err
		}
		return s.itemRepo.WithTx(tx).SyncStockByIDs(itemIDs)
	})
	if err != nil {
		return 0, err
	}
	if released == 0 {
		return 0, nil
	}
	metrics.CredentialsReleasedTotal.WithLabelValues(metrics.ReleaseReasonSweep).Add(float64(released))
	invalidateItemListCache(ctx)
	logger.Warnw("stale_reservations_released", "released", released, "item_ids", itemIDs, "cutoff", cutoff)
	if err := s.publisher.Publish(ctx, constants.EventStockReleased, "sweep", events.StockReleasedData{
		Released: released,
		ItemIDs:  itemIDs,
		Reason:   metrics.ReleaseReasonSweep,
	}); err != nil {
		logger.Warnw("stock_released_event_publish_failed", "error", err)
	}
	return released, nil
}

// Stats 统计某商品卡密状态
func (s *CredentialPool) Stats(ctx context.Context, itemID uint) (*CredentialStats, error) {
	counts, err := s.credentialRepo.WithContext(ctx).CountByStatus(itemID)
	if err != nil {
		return nil, err
	}
	return &CredentialStats{
		ItemID:    itemID,
		Available: counts[constants.CredentialStatusAvailable],
		Reserved:  counts[constants.CredentialStatusReserved],
		Consumed:  counts[constants.CredentialStatusConsumed],
	}, nil
}

// List 管理端卡密列表
func (s *CredentialPool) List(ctx context.Context, filter repository.CredentialListFilter) ([]models.Credential, int64, error) {
	return s.credentialRepo.WithContext(ctx).List(filter)
}

func (s *CredentialPool) syncStock(ctx context.Context, itemIDs []uint) {
	if err := s.itemRepo.WithContext(ctx).SyncStockByIDs(itemIDs); err != nil {
		logger.Warnw("item_stock_sync_failed", "item_ids", itemIDs, "error", err)
		return
	}
	invalidateItemListCache(ctx)
}

// normalizePayloads 每条载荷对应一条卡密，仅去除首尾空白并丢弃空载荷
func normalizePayloads(values []string) []string {
	result := make([]string, 0, len(values))
	for _, val := range values {
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func uniqueItemIDs(rows []models.Credential) []uint {
	seen := make(map[uint]struct{}, len(rows))
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.ItemID]; ok {
			continue
		}
		seen[row.ItemID] = struct{}{}
		ids = append(ids, row.ItemID)
	}
	return ids
}

func generateBatchNo() string {
	now := time.Now().Format("20060102150405")
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("BATCH-%s-%04d", now, rng.Intn(10000))
}

func normalizeActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return constants.ActorSystem
	}
	return actor
}

func invalidateItemListCache(ctx context.Context) {
	if err := cache.InvalidateItemList(context.WithoutCancel(ctx)); err != nil {
		logger.Warnw("item_list_cache_invalidate_failed", "error", err)
	}
}

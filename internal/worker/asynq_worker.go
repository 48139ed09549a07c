package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/provider"
	"github.com/Kosei0128/Plane-SNS/internal/queue"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskChargeApply, c.handleChargeApply)
	mux.HandleFunc(queue.TaskCredentialReleaseStale, c.handleReleaseStale)
	mux.HandleFunc(queue.TaskItemStockSync, c.handleItemStockSync)
}

func (c *Consumer) handleChargeApply(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.ChargeService == nil {
		logger.Debugw("worker_charge_apply_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ChargeApplyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_charge_apply_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if !c.ChargeService.IsReceivableStatus(payload.Status) {
		logger.Infow("worker_charge_apply_skip_not_receivable", "external_ref", payload.ExternalRef, "status", payload.Status)
		return nil
	}
	_, err := c.ChargeService.ApplyCharge(ctx, service.ApplyChargeInput{
		UserID:      payload.UserID,
		ExternalRef: payload.ExternalRef,
		Amount:      payload.Amount,
		PaymentURL:  payload.PaymentURL,
		Source:      constants.ChargeSourceQueue,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateCharge):
			logger.Debugw("worker_charge_apply_skip_duplicate", "external_ref", payload.ExternalRef)
			return nil
		case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidAmount):
			logger.Warnw("worker_charge_apply_invalid_payload", "external_ref", payload.ExternalRef, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			logger.Warnw("worker_charge_apply_failed", "external_ref", payload.ExternalRef, "error", err)
			return err
		}
	}
	return nil
}

func (c *Consumer) handleReleaseStale(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.CredentialPool == nil {
		logger.Debugw("worker_release_stale_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReleaseStalePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_release_stale_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	olderThan := time.Duration(payload.OlderThanSeconds) * time.Second
	if olderThan <= 0 {
		olderThan = reservationTimeout(c.Config)
	}
	if _, err := c.CredentialPool.ReleaseStale(ctx, olderThan); err != nil {
		logger.Warnw("worker_release_stale_failed", "older_than", olderThan, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleItemStockSync(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.ItemService == nil {
		logger.Debugw("worker_item_stock_sync_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ItemStockSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_item_stock_sync_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if len(payload.ItemIDs) == 0 {
		return nil
	}
	if err := c.ItemService.SyncStock(ctx, payload.ItemIDs); err != nil {
		logger.Warnw("worker_item_stock_sync_failed", "item_ids", payload.ItemIDs, "error", err)
		return err
	}
	return nil
}

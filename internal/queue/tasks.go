package queue

import (
	"encoding/json"

	"github.com/Kosei0128/Plane-SNS/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskChargeApply 外部支付核验后的充值入账任务
	TaskChargeApply = constants.TaskChargeApply
	// TaskCredentialReleaseStale 超时预占清理任务
	TaskCredentialReleaseStale = constants.TaskCredentialReleaseStale
	// TaskItemStockSync 商品库存重算任务
	TaskItemStockSync = constants.TaskItemStockSync
)

// ChargeApplyPayload 充值入账任务载荷，与回调接口请求体一致
type ChargeApplyPayload struct {
	UserID      string `json:"user_id"`
	ExternalRef string `json:"external_ref"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	PaymentURL  string `json:"payment_url,omitempty"`
}

// ReleaseStalePayload 超时预占清理任务载荷
type ReleaseStalePayload struct {
	OlderThanSeconds int `json:"older_than_seconds"`
}

// ItemStockSyncPayload 库存重算任务载荷
type ItemStockSyncPayload struct {
	ItemIDs []uint `json:"item_ids"`
}

// NewChargeApplyTask 创建充值入账任务
func NewChargeApplyTask(payload ChargeApplyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskChargeApply, body), nil
}

// NewReleaseStaleTask 创建超时预占清理任务
func NewReleaseStaleTask(payload ReleaseStalePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCredentialReleaseStale, body), nil
}

// NewItemStockSyncTask 创建库存重算任务
func NewItemStockSyncTask(payload ItemStockSyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskItemStockSync, body), nil
}

package public

import (
	"errors"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/queue"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// ChargeTokenHeader 支付核验方回调使用的共享密钥请求头
const ChargeTokenHeader = "X-Charge-Token"

// ConfirmChargeRequest 外部支付核验回调
type ConfirmChargeRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	ExternalRef string `json:"external_ref" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
	Status      string `json:"status" binding:"required"`
	PaymentURL  string `json:"payment_url"`
}

// ConfirmCharge 接收已核验的外部支付并入账
func (h *Handler) ConfirmCharge(c *gin.Context) {
	if !h.ChargeService.VerifyCallbackToken(c.GetHeader(ChargeTokenHeader)) {
		shared.RequestLog(c).Warnw("charge_callback_token_rejected", "client_ip", c.ClientIP())
		shared.RespondMappedError(c, service.ErrChargeTokenInvalid)
		return
	}
	var req ConfirmChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	if !h.ChargeService.IsReceivableStatus(req.Status) {
		shared.RequestLog(c).Infow("charge_status_not_receivable",
			"external_ref", req.ExternalRef,
			"status", req.Status,
		)
		shared.RespondMappedError(c, service.ErrChargeNotReceivable)
		return
	}
	result, err := h.ChargeService.ApplyCharge(c.Request.Context(), service.ApplyChargeInput{
		UserID:      req.UserID,
		ExternalRef: req.ExternalRef,
		Amount:      req.Amount,
		PaymentURL:  req.PaymentURL,
		Source:      constants.ChargeSourceCallback,
	})
	if err != nil {
		if !shared.IsMappedError(err) && h.deferCharge(c, req, err) {
			return
		}
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, result)
}

// deferCharge 同步入账遇到基础设施故障时转交队列重试；入队成功即视为已受理
func (h *Handler) deferCharge(c *gin.Context, req ConfirmChargeRequest, cause error) bool {
	if !h.QueueClient.Enabled() {
		return false
	}
	err := h.QueueClient.EnqueueChargeApply(queue.ChargeApplyPayload{
		UserID:      req.UserID,
		ExternalRef: req.ExternalRef,
		Amount:      req.Amount,
		Status:      req.Status,
		PaymentURL:  req.PaymentURL,
	})
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		shared.RequestLog(c).Errorw("charge_defer_enqueue_failed",
			"external_ref", req.ExternalRef,
			"cause", cause,
			"error", err,
		)
		return false
	}
	shared.RequestLog(c).Warnw("charge_apply_deferred",
		"external_ref", req.ExternalRef,
		"user_id", req.UserID,
		"cause", cause,
	)
	response.Success(c, gin.H{"queued": true, "external_ref": req.ExternalRef})
	return true
}

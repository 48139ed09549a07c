package admin

import (
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"github.com/gin-gonic/gin"
)

// AdjustBalanceRequest 管理员设定用户余额
type AdjustBalanceRequest struct {
	Balance *int64 `json:"balance" binding:"required"`
	Remark  string `json:"remark"`
}

// ListUsers 用户余额列表
func (h *Handler) ListUsers(c *gin.Context) {
	page, pageSize := shared.ParsePagination(c)
	profiles, total, err := h.LedgerService.ListProfiles(c.Request.Context(), repository.ProfileListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load users", err)
		return
	}
	response.SuccessWithPage(c, profiles, response.BuildPagination(page, pageSize, total))
}

// AdjustBalance 将用户余额设为指定值，差额写入流水
func (h *Handler) AdjustBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		shared.RespondError(c, response.CodeBadRequest, "invalid user id", nil)
		return
	}
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	txn, err := h.LedgerService.Adjust(c.Request.Context(), userID, *req.Balance, actorFromContext(c), req.Remark)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	balance, err := h.LedgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "balance": balance, "transaction": txn})
}

// ListUserTransactions 用户余额流水
func (h *Handler) ListUserTransactions(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		shared.RespondError(c, response.CodeBadRequest, "invalid user id", nil)
		return
	}
	page, pageSize := shared.ParsePagination(c)
	filter := repository.BalanceTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Type:     strings.TrimSpace(c.Query("type")),
	}
	var ok bool
	if filter.CreatedFrom, ok = parseTimeQuery(c, "created_from"); !ok {
		return
	}
	if filter.CreatedTo, ok = parseTimeQuery(c, "created_to"); !ok {
		return
	}
	txns, total, err := h.LedgerService.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load transactions", err)
		return
	}
	response.SuccessWithPage(c, txns, response.BuildPagination(page, pageSize, total))
}

// ListUserCharges 用户充值记录
func (h *Handler) ListUserCharges(c *gin.Context) {
	page, pageSize := shared.ParsePagination(c)
	rows, total, err := h.ChargeService.ListCharges(c.Request.Context(), repository.ChargeListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   strings.TrimSpace(c.Param("user_id")),
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load charges", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

package public

import (
	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetBalance 获取当前用户余额
func (h *Handler) GetBalance(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	balance, err := h.LedgerService.GetBalance(c.Request.Context(), uid)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": uid, "balance": balance})
}

// ListTransactions 获取当前用户余额流水
func (h *Handler) ListTransactions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := shared.ParsePagination(c)
	txns, total, err := h.LedgerService.ListTransactions(c.Request.Context(), repository.BalanceTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uid,
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load transactions", err)
		return
	}
	response.SuccessWithPage(c, txns, response.BuildPagination(page, pageSize, total))
}

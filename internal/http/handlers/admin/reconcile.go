package admin

import (
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ReleaseStaleRequest 手动清理预占超时卡密
type ReleaseStaleRequest struct {
	OlderThanSeconds int `json:"older_than_seconds"`
}

// VerifyUserBalance 回放流水核对余额
func (h *Handler) VerifyUserBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		shared.RespondError(c, response.CodeBadRequest, "invalid user id", nil)
		return
	}
	report, err := h.LedgerService.VerifyReplay(c.Request.Context(), userID)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	if !report.Consistent {
		shared.RequestLog(c).Warnw("balance_replay_inconsistent",
			"user_id", userID,
			"profile_balance", report.ProfileBalance,
			"sum_of_entries", report.SumOfEntries,
		)
	}
	response.Success(c, report)
}

// ReleaseStaleCredentials 立即执行一次预占超时清理
func (h *Handler) ReleaseStaleCredentials(c *gin.Context) {
	var req ReleaseStaleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
			return
		}
	}
	olderThan := h.staleAfter
	if req.OlderThanSeconds > 0 {
		olderThan = time.Duration(req.OlderThanSeconds) * time.Second
	}
	seconds := int(olderThan / time.Second)
	released, err := h.CredentialPool.ReleaseStale(c.Request.Context(), olderThan)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "release stale credentials failed", err)
		return
	}
	shared.RequestLog(c).Infow("credential_release_stale_manual",
		"released", released,
		"older_than_seconds", seconds,
		"actor", actorFromContext(c),
	)
	response.Success(c, gin.H{"released": released, "older_than_seconds": seconds})
}

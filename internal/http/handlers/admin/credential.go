package admin

import (
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"github.com/gin-gonic/gin"
)

// AddCredentialsRequest 卡密入库请求，content 按行拆分
type AddCredentialsRequest struct {
	Credentials []string `json:"credentials"`
	Content     string   `json:"content"`
}

// ListItemCredentials 获取商品卡密列表与库存统计
func (h *Handler) ListItemCredentials(c *gin.Context) {
	itemID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid item id", nil)
		return
	}
	page, pageSize := shared.ParsePagination(c)
	ctx := c.Request.Context()
	rows, total, err := h.CredentialPool.List(ctx, repository.CredentialListFilter{
		Page:     page,
		PageSize: pageSize,
		ItemID:   itemID,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load credentials", err)
		return
	}
	stats, err := h.CredentialPool.Stats(ctx, itemID)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load credential stats", err)
		return
	}
	response.SuccessWithPage(c, gin.H{"credentials": rows, "stats": stats}, response.BuildPagination(page, pageSize, total))
}

// AddCredentials 批量入库卡密
func (h *Handler) AddCredentials(c *gin.Context) {
	itemID, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid item id", nil)
		return
	}
	var req AddCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	payloads := append([]string{}, req.Credentials...)
	if req.Content != "" {
		payloads = append(payloads, strings.Split(req.Content, "\n")...)
	}
	added, err := h.CredentialPool.AddCredentials(c.Request.Context(), itemID, payloads, actorFromContext(c))
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{"item_id": itemID, "added": added})
}

// DeleteCredential 删除未售出的卡密
func (h *Handler) DeleteCredential(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid credential id", nil)
		return
	}
	if err := h.CredentialPool.DeleteCredential(c.Request.Context(), id); err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// ReleaseCredential 手动释放预占中的卡密
func (h *Handler) ReleaseCredential(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid credential id", nil)
		return
	}
	if err := h.CredentialPool.ReleaseCredential(c.Request.Context(), id); err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{"released": true})
}

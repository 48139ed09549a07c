package public

import (
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListItems 获取在售商品列表
func (h *Handler) ListItems(c *gin.Context) {
	page, pageSize := shared.ParsePagination(c)
	items, total, err := h.ItemService.ListPublic(c.Request.Context(), repository.ItemListFilter{
		Page:       page,
		PageSize:   pageSize,
		Category:   strings.TrimSpace(c.Query("category")),
		Search:     strings.TrimSpace(c.Query("search")),
		OnlyActive: true,
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load items", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// GetItem 获取商品详情
func (h *Handler) GetItem(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid item id", nil)
		return
	}
	item, err := h.ItemService.Get(c.Request.Context(), id, true)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, item)
}

package admin

import (
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/repository"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateItemRequest 创建商品请求
type CreateItemRequest struct {
	Title       string  `json:"title" binding:"required"`
	Price       int64   `json:"price"`
	Description string  `json:"description" binding:"required"`
	ImageURL    string  `json:"image_url"`
	Rating      float64 `json:"rating"`
	Category    string  `json:"category"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateItemRequest 更新商品请求，缺省字段保持不变
type UpdateItemRequest struct {
	Title       *string  `json:"title"`
	Price       *int64   `json:"price"`
	Description *string  `json:"description"`
	ImageURL    *string  `json:"image_url"`
	Rating      *float64 `json:"rating"`
	Category    *string  `json:"category"`
	IsActive    *bool    `json:"is_active"`
}

// ListItems 获取商品列表 (Admin)
func (h *Handler) ListItems(c *gin.Context) {
	page, pageSize := shared.ParsePagination(c)
	items, total, err := h.ItemService.ListAdmin(c.Request.Context(), repository.ItemListFilter{
		Page:     page,
		PageSize: pageSize,
		Category: strings.TrimSpace(c.Query("category")),
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load items", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// GetItem 获取商品详情 (Admin)
func (h *Handler) GetItem(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid item id", nil)
		return
	}
	item, err := h.ItemService.Get(c.Request.Context(), id, false)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, item)
}

// CreateItem 创建商品
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	item, err := h.ItemService.Create(c.Request.Context(), service.CreateItemInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Rating:      req.Rating,
		Category:    req.Category,
		IsActive:    req.IsActive,
	}, actorFromContext(c))
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, item)
}

// UpdateItem 更新商品
func (h *Handler) UpdateItem(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid item id", nil)
		return
	}
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	item, err := h.ItemService.Update(c.Request.Context(), id, service.UpdateItemInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Rating:      req.Rating,
		Category:    req.Category,
		IsActive:    req.IsActive,
	}, actorFromContext(c))
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, item)
}

// DeleteItem 删除商品（软删除）
func (h *Handler) DeleteItem(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid item id", nil)
		return
	}
	if err := h.ItemService.Delete(c.Request.Context(), id, actorFromContext(c)); err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// ListHistory 商品变更历史，可按 item_id 过滤
func (h *Handler) ListHistory(c *gin.Context) {
	page, pageSize := shared.ParsePagination(c)
	filter := repository.ItemHistoryFilter{Page: page, PageSize: pageSize}
	if raw := strings.TrimSpace(c.Query("item_id")); raw != "" {
		itemID, ok := parseUint(raw)
		if !ok {
			shared.RespondError(c, response.CodeBadRequest, "invalid item_id", nil)
			return
		}
		filter.ItemID = itemID
	}
	rows, total, err := h.ItemService.ListHistory(c.Request.Context(), filter)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load history", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

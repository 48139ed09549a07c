package public

import (
	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/gin-gonic/gin"
)

// PlaceOrderRequest 下单请求
type PlaceOrderRequest struct {
	Lines         []service.CartLine `json:"lines" binding:"required"`
	ExpectedTotal int64              `json:"expected_total"`
}

// PlaceOrder 使用余额购买购物车中的商品
func (h *Handler) PlaceOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	result, err := h.OrderService.PlaceOrder(c.Request.Context(), service.PlaceOrderInput{
		UserID:        uid,
		Lines:         req.Lines,
		ExpectedTotal: req.ExpectedTotal,
	})
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, result)
}

// ListOrders 获取当前用户订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := shared.ParsePagination(c)
	orders, total, err := h.OrderService.ListUserOrders(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// GetOrder 获取订单详情（含卡密）
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid order id", nil)
		return
	}
	view, err := h.OrderService.GetOrder(c.Request.Context(), uid, id)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, view)
}

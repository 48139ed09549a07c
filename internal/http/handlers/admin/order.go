package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/repository"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/gin-gonic/gin"
)

// RefundOrderRequest 订单退款请求，amount 缺省为订单全额
type RefundOrderRequest struct {
	Amount int64 `json:"amount"`
}

// ListOrders 获取订单列表 (Admin)
func (h *Handler) ListOrders(c *gin.Context) {
	page, pageSize := shared.ParsePagination(c)
	filter := repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   strings.TrimSpace(c.Query("user_id")),
		Status:   strings.TrimSpace(c.Query("status")),
		OrderNo:  strings.TrimSpace(c.Query("order_no")),
	}
	if raw := strings.TrimSpace(c.Query("item_id")); raw != "" {
		itemID, ok := parseUint(raw)
		if !ok {
			shared.RespondError(c, response.CodeBadRequest, "invalid item_id", nil)
			return
		}
		filter.ItemID = itemID
	}
	var ok bool
	if filter.CreatedFrom, ok = parseTimeQuery(c, "created_from"); !ok {
		return
	}
	if filter.CreatedTo, ok = parseTimeQuery(c, "created_to"); !ok {
		return
	}

	orders, total, err := h.OrderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load orders", err)
		return
	}
	response.SuccessWithPage(c, orders, response.BuildPagination(page, pageSize, total))
}

// RefundOrder 订单金额退回用户余额，每个订单只能退一次
func (h *Handler) RefundOrder(c *gin.Context) {
	id, ok := shared.ParseUintParam(c, "id")
	if !ok {
		shared.RespondError(c, response.CodeBadRequest, "invalid order id", nil)
		return
	}
	var req RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	ctx := c.Request.Context()
	order, err := h.OrderRepo.WithContext(ctx).GetByID(id)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "failed to load order", err)
		return
	}
	if order == nil {
		shared.RespondMappedError(c, service.ErrOrderNotFound)
		return
	}
	amount := req.Amount
	if amount == 0 {
		amount = order.Total
	}
	if amount < 0 || amount > order.Total {
		shared.RespondMappedError(c, service.ErrInvalidAmount)
		return
	}
	txn, err := h.LedgerService.Refund(ctx, order.UserID, order.ID, amount, actorFromContext(c))
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, txn)
}

func parseUint(raw string) (uint, bool) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

// parseTimeQuery 解析 RFC3339 时间参数，空值返回 nil
func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid "+key, nil)
		return nil, false
	}
	return &parsed, true
}

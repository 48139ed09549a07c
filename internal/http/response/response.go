package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构；业务错误同样返回 HTTP 200，由 status_code 区分
type Response struct {
	StatusCode int         `json:"status_code"`
	Msg        string      `json:"msg"`
	Data       interface{} `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{StatusCode: CodeOK, Msg: "success", Data: data})
}

// SuccessWithPage 列表成功响应
func SuccessWithPage(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, Response{
		StatusCode: CodeOK,
		Msg:        "success",
		Data:       data,
		Pagination: &pagination,
	})
}

// Error 错误响应，data 只携带 request_id
func Error(c *gin.Context, statusCode int, msg string) {
	ErrorWithData(c, statusCode, msg, nil)
}

// ErrorWithData 错误响应；data 为 gin.H 或 errorPayload 时并入 request_id
func ErrorWithData(c *gin.Context, statusCode int, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		StatusCode: statusCode,
		Msg:        msg,
		Data:       attachRequestID(c, data),
	})
}

// OutOfStock 库存不足，返回缺货商品与剩余数量
func OutOfStock(c *gin.Context, msg string, data OutOfStockData) {
	ErrorWithData(c, CodeOutOfStock, msg, &data)
}

// InsufficientBalance 余额不足，返回当前余额与差额
func InsufficientBalance(c *gin.Context, msg string, data InsufficientBalanceData) {
	if data.Shortfall == 0 && data.Required > data.Balance {
		data.Shortfall = data.Required - data.Balance
	}
	ErrorWithData(c, CodeInsufficientBalance, msg, &data)
}

// Unauthorized 401响应
func Unauthorized(c *gin.Context, msg string) {
	Error(c, CodeUnauthorized, msg)
}

// Forbidden 403响应
func Forbidden(c *gin.Context, msg string) {
	Error(c, CodeForbidden, msg)
}

func requestIDFrom(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if value, ok := c.Get("request_id"); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

func attachRequestID(c *gin.Context, data interface{}) interface{} {
	requestID := requestIDFrom(c)
	if requestID == "" {
		return data
	}
	switch v := data.(type) {
	case nil:
		return gin.H{"request_id": requestID}
	case errorPayload:
		v.setRequestID(requestID)
		return v
	case gin.H:
		if _, ok := v["request_id"]; !ok {
			v["request_id"] = requestID
		}
		return v
	default:
		return gin.H{"request_id": requestID, "data": data}
	}
}

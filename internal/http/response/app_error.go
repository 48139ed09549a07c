package response

import "github.com/gin-gonic/gin"

// AppError 接口层错误：业务码、对外消息、可选数据与原始错误
type AppError struct {
	Code    int
	Message string
	Data    interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppError 构造不含原始错误的业务错误
func NewAppError(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// WithData 附加返回给客户端的数据
func (e *AppError) WithData(data interface{}) *AppError {
	e.Data = data
	return e
}

// Fail 按 AppError 写出错误响应；原始错误只进日志，不出现在响应中
func Fail(c *gin.Context, appErr *AppError) {
	if appErr == nil {
		Error(c, CodeInternal, "internal server error")
		return
	}
	switch data := appErr.Data.(type) {
	case OutOfStockData:
		OutOfStock(c, appErr.Message, data)
	case InsufficientBalanceData:
		InsufficientBalance(c, appErr.Message, data)
	case FieldErrorData:
		ErrorWithData(c, appErr.Code, appErr.Message, &data)
	case nil:
		Error(c, appErr.Code, appErr.Message)
	default:
		ErrorWithData(c, appErr.Code, appErr.Message, data)
	}
}

package shared

import (
	"errors"

	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 定义业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Msg    string
}

// CommonErrorRules 各接口共用的错误映射，按顺序匹配。
var CommonErrorRules = []MappedError{
	{Target: service.ErrOutOfStock, Code: response.CodeOutOfStock, Msg: "out of stock"},
	{Target: service.ErrInsufficientBalance, Code: response.CodeInsufficientBalance, Msg: "insufficient balance"},
	{Target: service.ErrPriceMismatch, Code: response.CodePriceMismatch, Msg: "price changed, please refresh the cart"},
	{Target: service.ErrDuplicateCharge, Code: response.CodeDuplicateCharge, Msg: "charge already applied"},
	{Target: service.ErrChargeNotReceivable, Code: response.CodeChargeNotReceivable, Msg: "payment is not completed"},
	{Target: service.ErrDuplicateReference, Code: response.CodeConflict, Msg: "duplicate request"},
	{Target: service.ErrCredentialConsumed, Code: response.CodeCredentialState, Msg: "credential already sold"},
	{Target: service.ErrCredentialReserved, Code: response.CodeCredentialState, Msg: "credential is reserved"},
	{Target: service.ErrCredentialNotReserved, Code: response.CodeCredentialState, Msg: "credential is not reserved"},
	{Target: service.ErrEmptyCart, Code: response.CodeBadRequest, Msg: "cart is empty"},
	{Target: service.ErrTooManyLines, Code: response.CodeBadRequest, Msg: "too many cart lines"},
	{Target: service.ErrItemInactive, Code: response.CodeBadRequest, Msg: "item is not on sale"},
	{Target: service.ErrInvalidAmount, Code: response.CodeBadRequest, Msg: "invalid amount"},
	{Target: service.ErrInvalidInput, Code: response.CodeBadRequest, Msg: "invalid request"},
	{Target: service.ErrItemNotFound, Code: response.CodeNotFound, Msg: "item not found"},
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Msg: "order not found"},
	{Target: service.ErrCredentialNotFound, Code: response.CodeNotFound, Msg: "credential not found"},
	{Target: service.ErrProfileNotFound, Code: response.CodeNotFound, Msg: "user not found"},
	{Target: service.ErrAdminNotFound, Code: response.CodeNotFound, Msg: "admin not found"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Msg: "not found"},
	{Target: service.ErrInvalidCredentials, Code: response.CodeUnauthorized, Msg: "invalid username or password"},
	{Target: service.ErrChargeTokenInvalid, Code: response.CodeUnauthorized, Msg: "invalid callback token"},
	{Target: service.ErrUnauthorized, Code: response.CodeUnauthorized, Msg: "unauthorized"},
	{Target: service.ErrForbidden, Code: response.CodeForbidden, Msg: "forbidden"},
	{Target: service.ErrCaptchaRequired, Code: response.CodeBadRequest, Msg: "captcha required"},
	{Target: service.ErrCaptchaInvalid, Code: response.CodeBadRequest, Msg: "captcha invalid"},
	{Target: service.ErrCaptchaConfigInvalid, Code: response.CodeBadRequest, Msg: "captcha unavailable"},
}

// IsMappedError 判断错误是否命中业务映射；未命中的视为基础设施故障
func IsMappedError(err error, rules ...MappedError) bool {
	if err == nil {
		return false
	}
	if len(rules) == 0 {
		rules = CommonErrorRules
	}
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			return true
		}
	}
	return false
}

// RespondMappedError 按规则映射业务错误；未命中时返回通用 500 并记录原始错误。
func RespondMappedError(c *gin.Context, err error, rules ...MappedError) {
	if len(rules) == 0 {
		rules = CommonErrorRules
	}
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RequestLog(c).Infow("handler_business_error", "code", rule.Code, "error", err)
			appErr := response.NewAppError(rule.Code, messageFor(err, rule.Msg))
			if data := errorData(err); data != nil {
				appErr.WithData(data)
			}
			RespondAppError(c, appErr)
			return
		}
	}
	RespondError(c, response.CodeInternal, "internal server error", err)
}

// errorData 从带上下文的业务错误中提取响应数据
func errorData(err error) interface{} {
	var oos *service.OutOfStockError
	if errors.As(err, &oos) {
		return response.OutOfStockData{ItemID: oos.ItemID, Requested: oos.Requested, Available: oos.Available}
	}
	var insufficient *service.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return response.InsufficientBalanceData{Balance: insufficient.Balance, Required: insufficient.Required}
	}
	var validation *service.ValidationError
	if errors.As(err, &validation) && validation.Field != "" {
		return response.FieldErrorData{Field: validation.Field}
	}
	return nil
}

func messageFor(err error, fallback string) string {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		return validation.Error()
	}
	return fallback
}

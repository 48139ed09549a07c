package service

import (
	"errors"
	"fmt"
)

// 通用错误
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidAmount = errors.New("invalid amount")
)

// 商品与库存
var (
	ErrItemNotFound          = errors.New("item not found")
	ErrItemInactive          = errors.New("item inactive")
	ErrOutOfStock            = errors.New("out of stock")
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrCredentialConsumed    = errors.New("credential already consumed")
	ErrCredentialReserved    = errors.New("credential reserved by an order in progress")
	ErrCredentialNotReserved = errors.New("credential not reserved")
	ErrClaimTokenRequired    = errors.New("claim token required")
)

// 订单
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPriceMismatch       = errors.New("price mismatch")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderCommitFailed   = errors.New("order commit failed")
	ErrTooManyLines        = errors.New("too many order lines")
	ErrReservationMismatch = errors.New("reserved credentials changed before commit")
)

// 余额
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("duplicate ledger reference")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrBalanceUpdateFailed = errors.New("balance update failed")
)

// 充值
var (
	ErrDuplicateCharge     = errors.New("duplicate charge")
	ErrChargeNotReceivable = errors.New("charge status not receivable")
	ErrChargeTokenInvalid  = errors.New("charge callback token invalid")
)

// 管理员
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAdminNotFound      = errors.New("admin not found")
)

// 验证码
var (
	ErrCaptchaRequired      = errors.New("captcha required")
	ErrCaptchaInvalid       = errors.New("captcha invalid")
	ErrCaptchaConfigInvalid = errors.New("captcha config invalid")
)

// OutOfStockError 库存不足，携带商品与可用数量
type OutOfStockError struct {
	ItemID    uint
	Requested int
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: item %d requested %d available %d", e.ItemID, e.Requested, e.Available)
}

// Is 使 errors.Is(err, ErrOutOfStock) 成立
func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// InsufficientBalanceError 余额不足，携带当前余额与所需金额
type InsufficientBalanceError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d need %d", e.Balance, e.Required)
}

// Is 使 errors.Is(err, ErrInsufficientBalance) 成立
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// ValidationError 字段校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "invalid " + e.Field
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is 使 errors.Is(err, ErrInvalidInput) 成立
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

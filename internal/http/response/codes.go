package response

const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429
	CodeInternal        = 500
)

// 业务冲突码，HTTP 状态仍为 200，由 status_code 区分
const (
	CodeOutOfStock          = 40901
	CodeInsufficientBalance = 40902
	CodePriceMismatch       = 40903
	CodeDuplicateCharge     = 40904
	CodeChargeNotReceivable = 40905
	CodeCredentialState     = 40906
)

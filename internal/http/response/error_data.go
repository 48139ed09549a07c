package response

// errorPayload 类型化的错误数据，自行承载 request_id
type errorPayload interface {
	setRequestID(id string)
}

// OutOfStockData 库存不足时返回给客户端的数据
type OutOfStockData struct {
	ItemID    uint   `json:"item_id"`
	Requested int    `json:"requested"`
	Available int64  `json:"available"`
	RequestID string `json:"request_id,omitempty"`
}

func (d *OutOfStockData) setRequestID(id string) {
	if d.RequestID == "" {
		d.RequestID = id
	}
}

// InsufficientBalanceData 余额不足时返回给客户端的数据
type InsufficientBalanceData struct {
	Balance   int64  `json:"balance"`
	Required  int64  `json:"required"`
	Shortfall int64  `json:"shortfall"`
	RequestID string `json:"request_id,omitempty"`
}

func (d *InsufficientBalanceData) setRequestID(id string) {
	if d.RequestID == "" {
		d.RequestID = id
	}
}

// FieldErrorData 参数校验失败的字段
type FieldErrorData struct {
	Field     string `json:"field"`
	RequestID string `json:"request_id,omitempty"`
}

func (d *FieldErrorData) setRequestID(id string) {
	if d.RequestID == "" {
		d.RequestID = id
	}
}

package queue

import "errors"

var (
	// ErrQueueDisabled 队列未启用，调用方应改为同步执行
	ErrQueueDisabled = errors.New("queue disabled")
	// ErrMissingExternalRef 充值任务必须携带外部引用用于去重
	ErrMissingExternalRef = errors.New("charge task requires external ref")
)

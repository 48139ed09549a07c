package public

import "github.com/Kosei0128/Plane-SNS/internal/provider"

// Handler 前台接口处理器入口
// 说明：用户身份由 UserJWT 中间件写入上下文 user_id。
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

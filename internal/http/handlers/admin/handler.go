package admin

import (
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/provider"
)

const defaultReservationTimeout = 5 * time.Minute

// Handler 后台管理接口；手动清理预占时默认沿用对账任务的超时配置
type Handler struct {
	*provider.Container
	staleAfter time.Duration
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	staleAfter := defaultReservationTimeout
	if c != nil && c.Config != nil && c.Config.Reconcile.ReservationTimeoutSeconds > 0 {
		staleAfter = time.Duration(c.Config.Reconcile.ReservationTimeoutSeconds) * time.Second
	}
	return &Handler{Container: c, staleAfter: staleAfter}
}

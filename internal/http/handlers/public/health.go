package public

import (
	"context"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/cache"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/models"

	"github.com/gin-gonic/gin"
)

// HealthCheck 检查数据库与缓存连通性
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "redis": "disabled"}
	healthy := true
	if sqlDB, err := models.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		healthy = false
	}
	if cache.Enabled() {
		status["redis"] = "ok"
		if err := cache.Ping(ctx); err != nil {
			status["redis"] = "unavailable"
			healthy = false
		}
	}
	if !healthy {
		response.ErrorWithData(c, response.CodeInternal, "unhealthy", status)
		return
	}
	response.Success(c, status)
}

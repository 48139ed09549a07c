package admin

import (
	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return shared.GetContextUint(c, "admin_id")
}

// actorFromContext 生成审计用操作者标识 admin:<username>
func actorFromContext(c *gin.Context) string {
	if username := c.GetString("username"); username != "" {
		return "admin:" + username
	}
	return "admin"
}

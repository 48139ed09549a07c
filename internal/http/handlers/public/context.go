package public

import (
	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getUserID(c *gin.Context) (string, bool) {
	return shared.GetContextString(c, "user_id")
}

package admin

import (
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/http/handlers/shared"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username       string                `json:"username" binding:"required"`
	Password       string                `json:"password" binding:"required"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// CaptchaPayloadRequest 登录时提交的图片验证码
type CaptchaPayloadRequest struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

func (r CaptchaPayloadRequest) toServicePayload() service.CaptchaVerifyPayload {
	return service.CaptchaVerifyPayload{
		CaptchaID:   strings.TrimSpace(r.CaptchaID),
		CaptchaCode: strings.TrimSpace(r.CaptchaCode),
	}
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	User      map[string]interface{} `json:"user"`
	ExpiresAt string                 `json:"expires_at"`
}

// AdminLogin 管理员登录
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	if err := h.CaptchaService.Verify(constants.CaptchaSceneAdminLogin, req.CaptchaPayload.toServicePayload()); err != nil {
		shared.RequestLog(c).Infow("admin_login_captcha_rejected", "username", req.Username, "error", err)
		shared.RespondMappedError(c, err)
		return
	}

	admin, token, expiresAt, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}

	response.Success(c, LoginResponse{
		Token: token,
		User: map[string]interface{}{
			"id":       admin.ID,
			"username": admin.Username,
			"role":     admin.Role,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// GetCaptcha 获取后台登录图片验证码
func (h *Handler) GetCaptcha(c *gin.Context) {
	if !h.CaptchaService.SceneEnabled(constants.CaptchaSceneAdminLogin) {
		response.Success(c, gin.H{"enabled": false})
		return
	}
	challenge, err := h.CaptchaService.GenerateImageChallenge()
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	response.Success(c, gin.H{
		"enabled":      true,
		"captcha_id":   challenge.CaptchaID,
		"image_base64": challenge.ImageBase64,
	})
}

// GetMe 获取当前登录管理员及其角色已授予的权限
func (h *Handler) GetMe(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	admin, err := h.AuthService.GetAdmin(adminID)
	if err != nil {
		shared.RespondMappedError(c, err)
		return
	}
	permissions, err := h.AuthzService.RolePolicies(admin.Role)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "load permissions failed", err)
		return
	}
	response.Success(c, gin.H{"admin": admin, "permissions": permissions})
}

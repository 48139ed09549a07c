package service

import (
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"

	"github.com/mojocn/base64Captcha"
)

const captchaSource = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"

// CaptchaVerifyPayload 验证码校验请求载荷
type CaptchaVerifyPayload struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

// CaptchaImageChallenge 图片验证码挑战
type CaptchaImageChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaService 图片验证码；答案保存在进程内存，多实例部署需会话粘滞
type CaptchaService struct {
	cfg   config.CaptchaConfig
	store base64Captcha.Store
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	cfg = normalizeCaptchaConfig(cfg)
	return &CaptchaService{
		cfg:   cfg,
		store: base64Captcha.NewMemoryStore(cfg.Image.MaxStore, time.Duration(cfg.Image.ExpireSeconds)*time.Second),
	}
}

func normalizeCaptchaConfig(cfg config.CaptchaConfig) config.CaptchaConfig {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = constants.CaptchaProviderNone
	}
	img := &cfg.Image
	if img.Length < 4 || img.Length > 8 {
		img.Length = 5
	}
	if img.Width <= 0 {
		img.Width = 240
	}
	if img.Height <= 0 {
		img.Height = 80
	}
	if img.NoiseCount < 0 {
		img.NoiseCount = 0
	}
	if img.ExpireSeconds <= 0 {
		img.ExpireSeconds = 300
	}
	if img.MaxStore <= 0 {
		img.MaxStore = 10240
	}
	return cfg
}

// SceneEnabled 场景是否要求验证码
func (s *CaptchaService) SceneEnabled(scene string) bool {
	if s == nil || s.cfg.Provider == constants.CaptchaProviderNone {
		return false
	}
	switch scene {
	case constants.CaptchaSceneAdminLogin:
		return s.cfg.Scenes.AdminLogin
	default:
		return false
	}
}

// GenerateImageChallenge 生成图片验证码
func (s *CaptchaService) GenerateImageChallenge() (*CaptchaImageChallenge, error) {
	if s == nil || s.cfg.Provider != constants.CaptchaProviderImage {
		return nil, ErrCaptchaConfigInvalid
	}
	img := s.cfg.Image
	driver := base64Captcha.NewDriverString(
		img.Height,
		img.Width,
		img.NoiseCount,
		img.ShowLine,
		img.Length,
		captchaSource,
		nil,
		base64Captcha.DefaultEmbeddedFonts,
		nil,
	)
	id, b64s, _, err := base64Captcha.NewCaptcha(driver, s.store).Generate()
	if err != nil {
		return nil, err
	}
	return &CaptchaImageChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 按场景校验验证码；答案一次性，校验后即失效
func (s *CaptchaService) Verify(scene string, payload CaptchaVerifyPayload) error {
	if !s.SceneEnabled(scene) {
		return nil
	}
	if s.cfg.Provider != constants.CaptchaProviderImage {
		return ErrCaptchaConfigInvalid
	}
	captchaID := strings.TrimSpace(payload.CaptchaID)
	captchaCode := strings.TrimSpace(payload.CaptchaCode)
	if captchaID == "" || captchaCode == "" {
		return ErrCaptchaRequired
	}
	// 不区分大小写，取出即删除
	answer := s.store.Get(captchaID, true)
	if answer == "" || !strings.EqualFold(answer, captchaCode) {
		return ErrCaptchaInvalid
	}
	return nil
}

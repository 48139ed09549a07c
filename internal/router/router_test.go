package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

type routerTestEnv struct {
	engine    *gin.Engine
	container *provider.Container
	db        *gorm.DB
}

func setupRouterTest(t *testing.T) *routerTestEnv {
	t.Helper()
	return setupRouterTestWith(t, nil)
}

func setupRouterTestWith(t *testing.T, configure func(cfg *config.Config)) *routerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.L = zap.NewNop()

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.MigrateDB(db))
	models.DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	cfg := &config.Config{
		JWT:     config.JWTConfig{SecretKey: "admin-secret", ExpireHours: 1},
		UserJWT: config.JWTConfig{SecretKey: "user-secret", ExpireHours: 1},
		Order:   config.OrderConfig{MaxLines: 10, MaxQuantity: 50, CommitTimeoutSeconds: 5},
		Charge: config.ChargeConfig{
			CallbackToken:      "cb-secret",
			ReceivableStatuses: []string{"COMPLETED"},
			MaxAmount:          1_000_000,
		},
		Reconcile: config.ReconcileConfig{ReservationTimeoutSeconds: 300},
		Metrics:   config.MetricsConfig{Enabled: true},
	}
	if configure != nil {
		configure(cfg)
	}
	container := provider.NewContainer(cfg)
	return &routerTestEnv{
		engine:    SetupRouter(cfg, container),
		container: container,
		db:        db,
	}
}

func (e *routerTestEnv) createAdmin(t *testing.T, username, password, role string) {
	t.Helper()
	hash, err := e.container.AuthService.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, e.db.Create(&models.Admin{Username: username, PasswordHash: hash, Role: role}).Error)
}

func (e *routerTestEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/admin/login", "", gin.H{"username": username, "password": password}, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func (e *routerTestEnv) userToken(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.container.AuthService.GenerateUserToken(userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func (e *routerTestEnv) do(t *testing.T, method, path, token string, body interface{}, headers map[string]string) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (e *routerTestEnv) createStockedItem(t *testing.T, adminToken string, price int64, secrets ...string) uint {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/admin/items", adminToken, gin.H{
		"title":       "Streaming account",
		"price":       price,
		"description": "30 day access",
	}, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var item models.Item
	require.NoError(t, json.Unmarshal(resp.Data, &item))
	require.NotZero(t, item.ID)

	if len(secrets) > 0 {
		resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/items/%d/credentials", item.ID), adminToken, gin.H{
			"content": strings.Join(secrets, "\n"),
		}, nil)
		require.Equal(t, 0, resp.StatusCode, resp.Msg)
	}
	return item.ID
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	env := setupRouterTest(t)
	env.createAdmin(t, "root", "root-pass", constants.AdminRoleAdmin)
	adminToken := env.login(t, "root", "root-pass")
	itemID := env.createStockedItem(t, adminToken, 100, "acc-1", "acc-2", "acc-3")

	resp := env.do(t, http.MethodPut, "/api/v1/admin/users/u-100/balance", adminToken, gin.H{"balance": 500}, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)

	buyer := env.userToken(t, "u-100")
	resp = env.do(t, http.MethodPost, "/api/v1/orders", buyer, gin.H{
		"lines":          []gin.H{{"item_id": itemID, "quantity": 2, "unit_price": 100}},
		"expected_total": 200,
	}, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var placed struct {
		OrderID uint  `json:"order_id"`
		Total   int64 `json:"total"`
		Balance int64 `json:"balance"`
		Lines   []struct {
			Secrets []string `json:"secrets"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &placed))
	assert.Equal(t, int64(200), placed.Total)
	assert.Equal(t, int64(300), placed.Balance)
	require.Len(t, placed.Lines, 1)
	assert.Len(t, placed.Lines[0].Secrets, 2)

	resp = env.do(t, http.MethodGet, "/api/v1/balance", buyer, nil, nil)
	require.Equal(t, 0, resp.StatusCode)
	assert.Contains(t, string(resp.Data), `"balance":300`)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", placed.OrderID), buyer, nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.Contains(t, string(resp.Data), placed.Lines[0].Secrets[0])

	// 其他用户看不到该订单
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", placed.OrderID), env.userToken(t, "u-200"), nil, nil)
	assert.Equal(t, 404, resp.StatusCode)

	// 仅剩 1 条库存
	resp = env.do(t, http.MethodPost, "/api/v1/orders", buyer, gin.H{
		"lines":          []gin.H{{"item_id": itemID, "quantity": 2, "unit_price": 100}},
		"expected_total": 200,
	}, nil)
	require.Equal(t, 40901, resp.StatusCode, resp.Msg)
	var oos map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &oos))
	assert.Equal(t, float64(itemID), oos["item_id"])
	assert.Equal(t, float64(1), oos["available"])
	assert.NotEmpty(t, oos["request_id"])

	resp = env.do(t, http.MethodGet, "/api/v1/admin/users/u-100/reconcile", adminToken, nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.Contains(t, string(resp.Data), `"consistent":true`)
}

func TestInsufficientBalanceOverHTTP(t *testing.T) {
	env := setupRouterTest(t)
	env.createAdmin(t, "root", "root-pass", constants.AdminRoleAdmin)
	adminToken := env.login(t, "root", "root-pass")
	itemID := env.createStockedItem(t, adminToken, 100, "acc-1")

	resp := env.do(t, http.MethodPost, "/api/v1/orders", env.userToken(t, "poor"), gin.H{
		"lines":          []gin.H{{"item_id": itemID, "quantity": 1, "unit_price": 100}},
		"expected_total": 100,
	}, nil)
	require.Equal(t, 40902, resp.StatusCode, resp.Msg)
	assert.Contains(t, string(resp.Data), `"required":100`)

	// 预占已释放
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/items/%d/credentials", itemID), adminToken, nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.Contains(t, string(resp.Data), `"available":1`)
}

func TestUserRoutesRequireToken(t *testing.T) {
	env := setupRouterTest(t)

	resp := env.do(t, http.MethodGet, "/api/v1/balance", "", nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	// 管理员 token 不能当作用户 token 使用
	env.createAdmin(t, "root", "root-pass", constants.AdminRoleAdmin)
	adminToken := env.login(t, "root", "root-pass")
	resp = env.do(t, http.MethodGet, "/api/v1/balance", adminToken, nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/items", env.userToken(t, "u-1"), nil, nil)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestEditorCannotAdjustBalance(t *testing.T) {
	env := setupRouterTest(t)
	env.createAdmin(t, "editor", "editor-pass", constants.AdminRoleEditor)
	token := env.login(t, "editor", "editor-pass")

	resp := env.do(t, http.MethodGet, "/api/v1/admin/items", token, nil, nil)
	assert.Equal(t, 0, resp.StatusCode, resp.Msg)

	resp = env.do(t, http.MethodPut, "/api/v1/admin/users/u-1/balance", token, gin.H{"balance": 1000}, nil)
	assert.Equal(t, 403, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/reconcile/credentials", token, nil, nil)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	env := setupRouterTest(t)
	env.createAdmin(t, "root", "root-pass", constants.AdminRoleAdmin)

	resp := env.do(t, http.MethodPost, "/api/v1/admin/login", "", gin.H{"username": "root", "password": "nope"}, nil)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestChargeConfirmOverHTTP(t *testing.T) {
	env := setupRouterTest(t)
	body := gin.H{"user_id": "u-7", "external_ref": "cs_live_1", "amount": 1500, "status": "completed"}
	auth := map[string]string{"X-Charge-Token": "cb-secret"}

	resp := env.do(t, http.MethodPost, "/api/v1/charges/confirm", "", body, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/charges/confirm", "", body, auth)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.Contains(t, string(resp.Data), `"balance":1500`)

	resp = env.do(t, http.MethodPost, "/api/v1/charges/confirm", "", body, auth)
	assert.Equal(t, 40904, resp.StatusCode)

	pending := gin.H{"user_id": "u-7", "external_ref": "cs_live_2", "amount": 900, "status": "PENDING"}
	resp = env.do(t, http.MethodPost, "/api/v1/charges/confirm", "", pending, auth)
	assert.Equal(t, 40905, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/balance", env.userToken(t, "u-7"), nil, nil)
	require.Equal(t, 0, resp.StatusCode)
	assert.Contains(t, string(resp.Data), `"balance":1500`)
}

func TestChargeConfirmStorageFailureWithoutQueue(t *testing.T) {
	env := setupRouterTest(t)
	require.NoError(t, env.db.Migrator().DropTable(&models.ChargeRecord{}))
	body := gin.H{"user_id": "u-8", "external_ref": "cs_live_9", "amount": 700, "status": "completed"}

	resp := env.do(t, http.MethodPost, "/api/v1/charges/confirm", "", body, map[string]string{"X-Charge-Token": "cb-secret"})
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "internal server error", resp.Msg)
	assert.NotContains(t, string(resp.Data), "queued")
}

func TestAdminCredentialLifecycle(t *testing.T) {
	env := setupRouterTest(t)
	env.createAdmin(t, "root", "root-pass", constants.AdminRoleAdmin)
	adminToken := env.login(t, "root", "root-pass")
	itemID := env.createStockedItem(t, adminToken, 50, "only-one")

	var row models.Credential
	require.NoError(t, env.db.Where("item_id = ?", itemID).First(&row).Error)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/credentials/%d/release", row.ID), adminToken, nil, nil)
	assert.Equal(t, 40906, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/credentials/%d", row.ID), adminToken, nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/credentials/%d", row.ID), adminToken, nil, nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/history?item_id=%d", itemID), adminToken, nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var history []models.ItemHistory
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.GreaterOrEqual(t, len(history), 2)
}

func TestPermissionCatalogListsAdminRoutes(t *testing.T) {
	env := setupRouterTest(t)
	items := buildAdminPermissionCatalog(env.engine)

	seen := map[string]string{}
	for _, item := range items {
		seen[item.Permission] = item.Module
	}
	assert.Equal(t, "items", seen["DELETE:/admin/credentials/:id"])
	assert.Equal(t, "users", seen["PUT:/admin/users/:user_id/balance"])
	_, hasLogin := seen["POST:/admin/login"]
	assert.False(t, hasLogin)
}

func TestAdminLoginRequiresCaptchaWhenEnabled(t *testing.T) {
	env := setupRouterTestWith(t, func(cfg *config.Config) {
		cfg.Captcha = config.CaptchaConfig{
			Provider: constants.CaptchaProviderImage,
			Scenes:   config.CaptchaSceneConfig{AdminLogin: true},
		}
	})
	env.createAdmin(t, "root", "root-pass", constants.AdminRoleAdmin)

	resp := env.do(t, http.MethodPost, "/api/v1/admin/login", "", gin.H{"username": "root", "password": "root-pass"}, nil)
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "captcha required", resp.Msg)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/captcha", "", nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var challenge struct {
		Enabled     bool   `json:"enabled"`
		CaptchaID   string `json:"captcha_id"`
		ImageBase64 string `json:"image_base64"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &challenge))
	require.True(t, challenge.Enabled)
	require.NotEmpty(t, challenge.CaptchaID)
	assert.NotEmpty(t, challenge.ImageBase64)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/login", "", gin.H{
		"username":        "root",
		"password":        "root-pass",
		"captcha_payload": gin.H{"captcha_id": challenge.CaptchaID, "captcha_code": "0000000"},
	}, nil)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "captcha invalid", resp.Msg)
}

func TestAdminCaptchaDisabledByDefault(t *testing.T) {
	env := setupRouterTest(t)

	resp := env.do(t, http.MethodGet, "/api/v1/admin/captcha", "", nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.JSONEq(t, `{"enabled":false}`, string(resp.Data))

	listed := false
	for _, item := range buildAdminPermissionCatalog(env.engine) {
		if item.Permission == "GET:/admin/captcha" {
			listed = true
		}
	}
	assert.False(t, listed)
}

func TestAdminMeListsRolePermissions(t *testing.T) {
	env := setupRouterTest(t)
	env.createAdmin(t, "ed", "ed-pass", constants.AdminRoleEditor)
	token := env.login(t, "ed", "ed-pass")

	resp := env.do(t, http.MethodGet, "/api/v1/admin/me", token, nil, nil)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var me struct {
		Admin struct {
			Username string `json:"username"`
		} `json:"admin"`
		Permissions []struct {
			Object string `json:"object"`
			Action string `json:"action"`
		} `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "ed", me.Admin.Username)
	require.NotEmpty(t, me.Permissions)
	for _, p := range me.Permissions {
		assert.NotContains(t, p.Object, "/admin/users", "editor must not see balance routes")
	}
}

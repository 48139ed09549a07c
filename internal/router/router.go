package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kosei0128/Plane-SNS/internal/authz"
	"github.com/Kosei0128/Plane-SNS/internal/cache"
	"github.com/Kosei0128/Plane-SNS/internal/config"
	adminhandlers "github.com/Kosei0128/Plane-SNS/internal/http/handlers/admin"
	publichandlers "github.com/Kosei0128/Plane-SNS/internal/http/handlers/public"
	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sf"
	}
	redisClient := cache.Client()
	defaultRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:api", redisPrefix),
		WindowSeconds: cfg.RateLimit.Default.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Default.MaxRequests,
	}
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.RateLimit.Auth.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Auth.MaxRequests,
	}
	paymentRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment", redisPrefix),
		WindowSeconds: cfg.RateLimit.Payment.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Payment.MaxRequests,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(TracingMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware())
		metricsPath := strings.TrimSpace(cfg.Metrics.Path)
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/healthz", publicHandler.HealthCheck)
		apiV1.GET("/items", RateLimitMiddleware(redisClient, defaultRule, KeyByIP), publicHandler.ListItems)
		apiV1.GET("/items/:id", RateLimitMiddleware(redisClient, defaultRule, KeyByIP), publicHandler.GetItem)

		// 外部支付核验回调
		apiV1.POST("/charges/confirm", RateLimitMiddleware(redisClient, paymentRule, KeyByIP), publicHandler.ConfirmCharge)

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(c.AuthService), RateLimitMiddleware(redisClient, defaultRule, KeyByUser))
		{
			user.GET("/balance", publicHandler.GetBalance)
			user.GET("/balance/transactions", publicHandler.ListTransactions)
			user.POST("/orders", publicHandler.PlaceOrder)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			admin.GET("/captcha", adminHandler.GetCaptcha)
			admin.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey), AdminRBACMiddleware(c.AuthzService))
			{
				authorized.GET("/me", adminHandler.GetMe)
				authorized.GET("/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})

				// 商品与库存
				authorized.GET("/items", adminHandler.ListItems)
				authorized.POST("/items", adminHandler.CreateItem)
				authorized.GET("/items/:id", adminHandler.GetItem)
				authorized.PUT("/items/:id", adminHandler.UpdateItem)
				authorized.DELETE("/items/:id", adminHandler.DeleteItem)
				authorized.GET("/items/:id/credentials", adminHandler.ListItemCredentials)
				authorized.POST("/items/:id/credentials", adminHandler.AddCredentials)
				authorized.DELETE("/credentials/:id", adminHandler.DeleteCredential)
				authorized.POST("/credentials/:id/release", adminHandler.ReleaseCredential)
				authorized.GET("/history", adminHandler.ListHistory)

				// 订单
				authorized.GET("/orders", adminHandler.ListOrders)
				authorized.POST("/orders/:id/refund", adminHandler.RefundOrder)

				// 用户余额
				authorized.GET("/users", adminHandler.ListUsers)
				authorized.PUT("/users/:user_id/balance", adminHandler.AdjustBalance)
				authorized.GET("/users/:user_id/transactions", adminHandler.ListUserTransactions)
				authorized.GET("/users/:user_id/charges", adminHandler.ListUserCharges)
				authorized.GET("/users/:user_id/reconcile", adminHandler.VerifyUserBalance)

				// 对账
				authorized.POST("/reconcile/credentials", adminHandler.ReleaseStaleCredentials)
			}
		}
	}

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

// buildAdminPermissionCatalog 由已注册路由生成权限目录
func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))
	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") || item.Path == "/api/v1/admin/login" || item.Path == "/api/v1/admin/captcha" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})
	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 || segments[0] != "admin" {
		return segments[0]
	}
	switch segments[1] {
	case "credentials":
		return "items"
	default:
		return segments[1]
	}
}

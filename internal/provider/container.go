package provider

import (
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/authz"
	"github.com/Kosei0128/Plane-SNS/internal/cache"
	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/queue"
	"github.com/Kosei0128/Plane-SNS/internal/repository"
	"github.com/Kosei0128/Plane-SNS/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Publisher   events.Publisher

	// Repositories
	AdminRepo       repository.AdminRepository
	ItemRepo        repository.ItemRepository
	ItemHistoryRepo repository.ItemHistoryRepository
	CredentialRepo  repository.CredentialRepository
	LedgerRepo      repository.LedgerRepository
	OrderRepo       repository.OrderRepository
	ChargeRepo      repository.ChargeRepository

	// Services
	AuthzService   *authz.Service
	AuthService    *service.AuthService
	ItemService    *service.ItemService
	CredentialPool *service.CredentialPool
	LedgerService  *service.LedgerService
	OrderService   *service.OrderService
	ChargeService  *service.ChargeService
	CaptchaService *service.CaptchaService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Publisher:   events.NewPublisher(cfg.Kafka),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

// Close 释放容器持有的外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			logger.Warnw("provider_close_publisher_failed", "error", err)
		}
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.ItemRepo = repository.NewItemRepository(db)
	c.ItemHistoryRepo = repository.NewItemHistoryRepository(db)
	c.CredentialRepo = repository.NewCredentialRepository(db)
	c.LedgerRepo = repository.NewLedgerRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ChargeRepo = repository.NewChargeRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	listTTL := time.Duration(c.Config.Cache.ItemListTTLSeconds) * time.Second
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.ItemService = service.NewItemService(c.ItemRepo, c.ItemHistoryRepo, listTTL)
	c.CredentialPool = service.NewCredentialPool(c.CredentialRepo, c.ItemRepo, c.ItemHistoryRepo, c.Publisher, c.Config.Order.ClaimRetries)
	c.LedgerService = service.NewLedgerService(c.LedgerRepo, c.Publisher)
	c.OrderService = service.NewOrderService(c.OrderRepo, c.ItemRepo, c.CredentialRepo, c.CredentialPool, c.LedgerService, c.Publisher, c.Config.Order)
	c.OrderService.SetQueueClient(c.QueueClient)
	c.ChargeService = service.NewChargeService(c.ChargeRepo, c.LedgerService, c.Publisher, c.Config.Charge)
}

package queue

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 库存与预占维护任务
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 资金相关任务
	CriticalQueue = constants.QueueCritical
)

// 充值任务按外部引用去重；保留期内同一笔支付重复入队会被 asynq 拒绝
const (
	chargeApplyMaxRetry  = 10
	chargeApplyRetention = 24 * time.Hour
	chargeTaskIDPrefix   = "charge:"
)

// Client 入队客户端；未启用时所有 Enqueue 返回 ErrQueueDisabled
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(buildRedisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func (c *Client) enqueue(build func() (*asynq.Task, error), opts ...asynq.Option) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := build()
	if err != nil {
		return err
	}
	_, err = c.client.Enqueue(task, opts...)
	return err
}

// EnqueueChargeApply 推送充值入账任务，回调同步入账失败时由 worker 重试
func (c *Client) EnqueueChargeApply(payload ChargeApplyPayload) error {
	ref := strings.TrimSpace(payload.ExternalRef)
	if ref == "" {
		return ErrMissingExternalRef
	}
	return c.enqueue(func() (*asynq.Task, error) { return NewChargeApplyTask(payload) },
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(chargeApplyMaxRetry),
		asynq.TaskID(chargeTaskIDPrefix+ref),
		asynq.Retention(chargeApplyRetention),
	)
}

// EnqueueReleaseStale 推送超时预占清理任务，失败不重试，下个周期会再次触发。
// uniqueFor 内重复入队返回 asynq.ErrDuplicateTask，多实例同时调度时只执行一次。
func (c *Client) EnqueueReleaseStale(payload ReleaseStalePayload, uniqueFor time.Duration) error {
	opts := []asynq.Option{asynq.Queue(DefaultQueue), asynq.MaxRetry(0)}
	if uniqueFor > 0 {
		opts = append(opts, asynq.Unique(uniqueFor))
	}
	return c.enqueue(func() (*asynq.Task, error) { return NewReleaseStaleTask(payload) }, opts...)
}

// EnqueueItemStockSync 延迟推送库存重算任务
func (c *Client) EnqueueItemStockSync(payload ItemStockSyncPayload, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return c.enqueue(func() (*asynq.Task, error) { return NewItemStockSyncTask(payload) },
		asynq.Queue(DefaultQueue),
		asynq.ProcessIn(delay),
	)
}

// BuildServerConfig 生成 worker 的 Redis 连接与并发配置；资金队列权重更高
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	serverCfg := asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{CriticalQueue: 6, DefaultQueue: 3},
	}
	if cfg != nil && cfg.Concurrency > 0 {
		serverCfg.Concurrency = cfg.Concurrency
	}
	if cfg != nil && len(cfg.Queues) > 0 {
		serverCfg.Queues = cfg.Queues
	}
	return buildRedisOpt(cfg), serverCfg
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}

package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultReconcileInterval  = time.Minute
	defaultReservationTimeout = 5 * time.Minute
)

// Service 异步队列与对账清理服务
// 队列未启用时只运行清理循环，直接调用库存池
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	done     chan struct{}
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	svc := &Service{
		name:     "worker",
		consumer: consumer,
		done:     make(chan struct{}),
	}
	if cfg.Queue.Enabled {
		opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
		svc.server = asynq.NewServer(opt, serverCfg)
		svc.mux = asynq.NewServeMux()
		consumer.Register(svc.mux)
	} else if !cfg.Reconcile.Enabled {
		return nil, errors.New("queue and reconcile are both disabled")
	}
	return svc, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer.Config != nil && s.consumer.Config.Reconcile.Enabled {
		go s.runReconcileLoop(ctx)
	}
	if s.server == nil {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		return nil
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_ = ctx
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.server != nil {
		s.server.Shutdown()
	}
	return nil
}

func (s *Service) runReconcileLoop(ctx context.Context) {
	interval := reconcileInterval(s.consumer.Config)
	s.reconcileOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.reconcileOnce(ctx)
		}
	}
}

// reconcileOnce 优先投递清理任务，队列不可用时同步执行
func (s *Service) reconcileOnce(ctx context.Context) {
	timeout := reservationTimeout(s.consumer.Config)
	if s.consumer.QueueClient.Enabled() {
		err := s.consumer.QueueClient.EnqueueReleaseStale(
			queue.ReleaseStalePayload{OlderThanSeconds: int(timeout / time.Second)},
			reconcileInterval(s.consumer.Config),
		)
		if err == nil || errors.Is(err, asynq.ErrDuplicateTask) {
			return
		}
		logger.Warnw("worker_reconcile_enqueue_failed", "error", err)
	}
	if s.consumer.CredentialPool == nil {
		return
	}
	if _, err := s.consumer.CredentialPool.ReleaseStale(ctx, timeout); err != nil {
		logger.Warnw("worker_reconcile_release_stale_failed", "error", err)
	}
}

func reconcileInterval(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Reconcile.IntervalSeconds <= 0 {
		return defaultReconcileInterval
	}
	return time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second
}

func reservationTimeout(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Reconcile.ReservationTimeoutSeconds <= 0 {
		return defaultReservationTimeout
	}
	return time.Duration(cfg.Reconcile.ReservationTimeoutSeconds) * time.Second
}

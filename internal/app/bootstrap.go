package app

import (
	"context"
	"errors"
	"os/signal"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/logger"
	"github.com/Kosei0128/Plane-SNS/internal/provider"
	"github.com/Kosei0128/Plane-SNS/internal/router"
	"github.com/Kosei0128/Plane-SNS/internal/worker"
)

// BuildRunner 按运行模式组装服务：HTTP 接口在前，队列消费与对账在后
func BuildRunner(cfg *config.Config, mode Mode) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	container := provider.NewContainer(cfg)
	var services []Service

	if mode.servesHTTP() {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	if mode.runsWorker() {
		workerService, err := worker.NewService(cfg, worker.NewConsumer(container))
		switch {
		case err == nil:
			services = append(services, workerService)
		case mode == ModeWorker || len(services) == 0:
			container.Close()
			return nil, err
		default:
			// all 模式下队列与对账都未启用时只跑 HTTP
			logger.Infow("worker_skipped", "mode", mode, "reason", err)
		}
	}

	if len(services) == 0 {
		container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.OnStop(container.Close)
	return runner, nil
}

// Run 应用启动入口：组装服务并运行到收到停机信号
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), opts.Signals...)
	defer stop()

	opts.Logger.Infow("app_start",
		"addr", opts.Config.Server.Addr(),
		"mode", opts.Mode,
		"shutdown_timeout", opts.ShutdownTimeout,
	)
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

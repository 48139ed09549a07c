package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service 由 Runner 托管的长期运行组件（HTTP 接口、队列消费者）
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 托管服务生命周期：任一服务退出即整体停机
type Runner struct {
	services []Service
	cleanups []func()
}

type serviceExit struct {
	name string
	err  error
}

// NewRunner 创建服务运行器，停机时按传入顺序停止服务
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// OnStop 注册停机清理函数；全部服务退出后按注册逆序执行
func (r *Runner) OnStop(fn func()) {
	if r == nil || fn == nil {
		return
	}
	r.cleanups = append(r.cleanups, fn)
}

// Run 启动全部服务，阻塞到 ctx 结束或任一服务退出
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	for _, svc := range r.services {
		if svc == nil {
			return errors.New("service is nil")
		}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan serviceExit, len(r.services))
	var running sync.WaitGroup
	for _, svc := range r.services {
		running.Add(1)
		go func(svc Service) {
			defer running.Done()
			log.Infow("service_start", "service", svc.Name())
			exits <- serviceExit{name: svc.Name(), err: svc.Start(runCtx)}
		}(svc)
	}

	var runErr error
	select {
	case <-runCtx.Done():
		runErr = ctx.Err()
		log.Infow("runner_shutdown_requested", "reason", runErr)
	case exit := <-exits:
		runErr = exit.err
		if exit.err != nil {
			log.Errorw("service_failed", "service", exit.name, "error", exit.err)
		} else {
			log.Infow("service_exit", "service", exit.name)
		}
	}
	cancel()
	r.shutdown(stopTimeout, log, &running)

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// shutdown 先停 HTTP 入口再停消费者，等待服务协程退出（进行中的下单提交完成）后再释放依赖
func (r *Runner) shutdown(timeout time.Duration, log *zap.SugaredLogger, running *sync.WaitGroup) {
	if timeout <= 0 {
		timeout = minShutdownTimeout
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()

	for _, svc := range r.services {
		if err := svc.Stop(stopCtx); err != nil {
			log.Errorw("service_stop_failed", "service", svc.Name(), "error", err)
		}
	}

	drained := make(chan struct{})
	go func() {
		running.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-stopCtx.Done():
		log.Warnw("service_drain_timeout", "timeout", timeout)
	}

	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

package app

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/logger"

	"go.uber.org/zap"
)

// Mode 进程运行模式
type Mode string

const (
	ModeAll    Mode = "all"    // HTTP 接口 + 队列消费 + 对账清理
	ModeAPI    Mode = "api"    // 仅 HTTP 接口
	ModeWorker Mode = "worker" // 仅队列消费与对账清理
)

const (
	minShutdownTimeout = 10 * time.Second
	// 停机时在下单提交超时之外额外预留的时间
	shutdownCommitMargin = 5 * time.Second
)

// ParseMode 解析 -mode 参数，空值视为 all
func ParseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeAll, nil
	case ModeAll, ModeAPI, ModeWorker:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode: %q", raw)
	}
}

func (m Mode) servesHTTP() bool {
	return m == ModeAll || m == ModeAPI
}

func (m Mode) runsWorker() bool {
	return m == ModeAll || m == ModeWorker
}

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            Mode
}

// normalizeOptions 补齐默认参数；停机超时至少覆盖一次下单提交
func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = shutdownTimeoutFor(opts.Config)
	}
	return opts
}

func shutdownTimeoutFor(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Order.CommitTimeoutSeconds <= 0 {
		return minShutdownTimeout
	}
	timeout := time.Duration(cfg.Order.CommitTimeoutSeconds)*time.Second + shutdownCommitMargin
	if timeout < minShutdownTimeout {
		return minShutdownTimeout
	}
	return timeout
}

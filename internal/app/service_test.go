package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
)

type fakeService struct {
	name     string
	startErr error
	block    bool

	mu      sync.Mutex
	stopped bool
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeService) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestRunnerStopsAllServicesWhenOneFails(t *testing.T) {
	failing := &fakeService{name: "http", startErr: errors.New("bind failed")}
	blocking := &fakeService{name: "worker", block: true}
	runner := NewRunner(failing, blocking)

	var order []string
	runner.OnStop(func() { order = append(order, "first") })
	runner.OnStop(func() { order = append(order, "second") })

	err := runner.Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "bind failed" {
		t.Fatalf("expected start error to surface, got %v", err)
	}
	if !failing.isStopped() || !blocking.isStopped() {
		t.Fatalf("all services should be stopped")
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("cleanup should run in reverse order, got %v", order)
	}
}

func TestRunnerReturnsNilOnCancel(t *testing.T) {
	svc := &fakeService{name: "worker", block: true}
	runner := NewRunner(svc)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancel should be a clean shutdown, got %v", err)
	}
	if !svc.isStopped() {
		t.Fatalf("service should be stopped after cancel")
	}
}

func TestBuildRunnerRejectsUnknownMode(t *testing.T) {
	if _, err := BuildRunner(&config.Config{}, "cron"); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
	if _, err := BuildRunner(nil, ModeAll); err == nil {
		t.Fatalf("nil config should be rejected")
	}
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Mode != ModeAll {
		t.Fatalf("default mode want %s got %s", ModeAll, opts.Mode)
	}
	if opts.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %s", opts.ShutdownTimeout)
	}
	if opts.Logger == nil {
		t.Fatalf("logger should default to global sugared logger")
	}
}

type slowDrainService struct {
	fakeService
	finished int32
}

func (s *slowDrainService) Start(ctx context.Context) error {
	<-ctx.Done()
	time.Sleep(30 * time.Millisecond)
	atomic.StoreInt32(&s.finished, 1)
	return nil
}

func TestRunnerWaitsForServicesBeforeCleanup(t *testing.T) {
	svc := &slowDrainService{fakeService: fakeService{name: "http"}}
	runner := NewRunner(svc)
	var drainedBeforeCleanup bool
	runner.OnStop(func() { drainedBeforeCleanup = atomic.LoadInt32(&svc.finished) == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if !drainedBeforeCleanup {
		t.Fatalf("cleanup must run after in-flight work finished")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeAll, "all": ModeAll, " API ": ModeAPI, "worker": ModeWorker}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
}

func TestShutdownTimeoutCoversOrderCommit(t *testing.T) {
	cfg := &config.Config{}
	cfg.Order.CommitTimeoutSeconds = 15
	opts := normalizeOptions(Options{Config: cfg})
	if opts.ShutdownTimeout != 20*time.Second {
		t.Fatalf("expected commit timeout plus margin, got %s", opts.ShutdownTimeout)
	}
	if len(opts.Signals) != 2 {
		t.Fatalf("expected default stop signals, got %v", opts.Signals)
	}
}

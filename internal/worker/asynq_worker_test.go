package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/provider"
	"github.com/Kosei0128/Plane-SNS/internal/queue"
	"github.com/Kosei0128/Plane-SNS/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupWorkerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.MigrateDB(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	cfg := &config.Config{
		Charge: config.ChargeConfig{ReceivableStatuses: []string{"COMPLETED"}},
		Reconcile: config.ReconcileConfig{
			Enabled:                   true,
			IntervalSeconds:           60,
			ReservationTimeoutSeconds: 300,
		},
	}
	return NewConsumer(provider.NewContainer(cfg)), db
}

func chargeTask(t *testing.T, payload queue.ChargeApplyPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewChargeApplyTask(payload)
	if err != nil {
		t.Fatalf("build charge task failed: %v", err)
	}
	return task
}

func TestHandleChargeApplyAcknowledgesDuplicates(t *testing.T) {
	consumer, db := setupWorkerTest(t)
	ctx := context.Background()
	task := chargeTask(t, queue.ChargeApplyPayload{UserID: "u1", ExternalRef: "cs_q_1", Amount: 700, Status: "completed"})

	if err := consumer.handleChargeApply(ctx, task); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := consumer.handleChargeApply(ctx, task); err != nil {
		t.Fatalf("duplicate delivery must be acknowledged, got %v", err)
	}

	balance, err := consumer.LedgerService.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance != 700 {
		t.Fatalf("expected balance 700, got %d", balance)
	}
	var record models.ChargeRecord
	if err := db.Where("external_ref = ?", "cs_q_1").First(&record).Error; err != nil {
		t.Fatalf("load charge record failed: %v", err)
	}
	if record.Source != constants.ChargeSourceQueue {
		t.Fatalf("unexpected charge source: %s", record.Source)
	}
}

func TestHandleChargeApplySkipsPendingAndInvalid(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	ctx := context.Background()

	pending := chargeTask(t, queue.ChargeApplyPayload{UserID: "u2", ExternalRef: "cs_q_2", Amount: 100, Status: "PENDING"})
	if err := consumer.handleChargeApply(ctx, pending); err != nil {
		t.Fatalf("pending payment should be acknowledged, got %v", err)
	}
	balance, _ := consumer.LedgerService.GetBalance(ctx, "u2")
	if balance != 0 {
		t.Fatalf("pending payment must not credit, got %d", balance)
	}

	invalid := chargeTask(t, queue.ChargeApplyPayload{UserID: "u2", ExternalRef: "cs_q_3", Amount: 0, Status: "COMPLETED"})
	err := consumer.handleChargeApply(ctx, invalid)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("invalid payload should skip retry, got %v", err)
	}

	broken := asynq.NewTask(queue.TaskChargeApply, []byte("{"))
	if err := consumer.handleChargeApply(ctx, broken); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload should skip retry, got %v", err)
	}
}

func TestReconcileOnceReleasesStaleReservations(t *testing.T) {
	consumer, db := setupWorkerTest(t)
	ctx := context.Background()

	item, err := consumer.ItemService.Create(ctx, service.CreateItemInput{Title: "Stale", Price: 10, Description: "d"}, "test")
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if _, err := consumer.CredentialPool.AddCredentials(ctx, item.ID, []string{"a", "b"}, "test"); err != nil {
		t.Fatalf("add credentials failed: %v", err)
	}
	if _, err := consumer.CredentialPool.ClaimMany(ctx, item.ID, 2, "lost-order"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	db.Model(&models.Credential{}).Where("item_id = ?", item.ID).Update("claimed_at", time.Now().Add(-time.Hour))

	svc, err := NewService(consumer.Config, consumer)
	if err != nil {
		t.Fatalf("new worker service failed: %v", err)
	}
	svc.reconcileOnce(ctx)

	stats, err := consumer.CredentialPool.Stats(ctx, item.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Available != 2 || stats.Reserved != 0 {
		t.Fatalf("stale reservations should be released, got %+v", stats)
	}
}

func TestHandleReleaseStaleKeepsFreshReservations(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	ctx := context.Background()

	item, err := consumer.ItemService.Create(ctx, service.CreateItemInput{Title: "Fresh", Price: 10, Description: "d"}, "test")
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if _, err := consumer.CredentialPool.AddCredentials(ctx, item.ID, []string{"a"}, "test"); err != nil {
		t.Fatalf("add credentials failed: %v", err)
	}
	if _, err := consumer.CredentialPool.ClaimOne(ctx, item.ID, "in-flight"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	task, err := queue.NewReleaseStaleTask(queue.ReleaseStalePayload{OlderThanSeconds: 600})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleReleaseStale(ctx, task); err != nil {
		t.Fatalf("release stale failed: %v", err)
	}
	stats, _ := consumer.CredentialPool.Stats(ctx, item.ID)
	if stats.Reserved != 1 {
		t.Fatalf("fresh reservation must survive the sweep, got %+v", stats)
	}
}

func TestNewServiceRequiresQueueOrReconcile(t *testing.T) {
	consumer := &Consumer{}
	if _, err := NewService(&config.Config{}, consumer); err == nil {
		t.Fatalf("expected error when both queue and reconcile are disabled")
	}
	if _, err := NewService(nil, consumer); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/events"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type serviceTestEnv struct {
	db     *gorm.DB
	pool   *CredentialPool
	ledger *LedgerService
	orders *OrderService
	charge *ChargeService
	items  *ItemService
}

func setupServiceTest(t *testing.T) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	itemRepo := repository.NewItemRepository(db)
	historyRepo := repository.NewItemHistoryRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	chargeRepo := repository.NewChargeRepository(db)
	publisher := events.NoopPublisher{}

	pool := NewCredentialPool(credentialRepo, itemRepo, historyRepo, publisher, 3)
	ledger := NewLedgerService(ledgerRepo, publisher)
	return &serviceTestEnv{
		db:     db,
		pool:   pool,
		ledger: ledger,
		orders: NewOrderService(orderRepo, itemRepo, credentialRepo, pool, ledger, publisher, config.OrderConfig{
			MaxLines:             10,
			MaxQuantity:          50,
			CommitTimeoutSeconds: 5,
		}),
		charge: NewChargeService(chargeRepo, ledger, publisher, config.ChargeConfig{
			CallbackToken:      "cb-secret",
			ReceivableStatuses: []string{"COMPLETED"},
			MaxAmount:          1_000_000,
		}),
		items: NewItemService(itemRepo, historyRepo, time.Minute),
	}
}

func (env *serviceTestEnv) createItem(t *testing.T, title string, price int64, payloads ...string) *models.Item {
	t.Helper()
	item, err := env.items.Create(context.Background(), CreateItemInput{
		Title:       title,
		Price:       price,
		Description: title + " account",
	}, "tester")
	if err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if len(payloads) > 0 {
		if _, err := env.pool.AddCredentials(context.Background(), item.ID, payloads, "tester"); err != nil {
			t.Fatalf("add credentials failed: %v", err)
		}
	}
	return item
}

func (env *serviceTestEnv) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	if amount <= 0 {
		return
	}
	ref := fmt.Sprintf("seed:%s:%d", userID, time.Now().UnixNano())
	if _, err := env.ledger.Credit(context.Background(), CreditInput{
		UserID:    userID,
		Amount:    amount,
		Type:      constants.BalanceTxnTypeCharge,
		Reference: ref,
	}); err != nil {
		t.Fatalf("fund user failed: %v", err)
	}
}

func (env *serviceTestEnv) countCredentials(t *testing.T, itemID uint, status string) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&models.Credential{}).Where("item_id = ? AND status = ?", itemID, status).Count(&count).Error; err != nil {
		t.Fatalf("count credentials failed: %v", err)
	}
	return count
}

func (env *serviceTestEnv) countLedgerEntries(t *testing.T, userID string) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&models.BalanceTransaction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count ledger entries failed: %v", err)
	}
	return count
}

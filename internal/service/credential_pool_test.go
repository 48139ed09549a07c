package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/metrics"
	"github.com/Kosei0128/Plane-SNS/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestAddCredentialsKeepsOneCredentialPerPayload(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "Spotify", 300)

	payloads := []string{" login: bob\npassword: x ", "dup", "dup", "   "}
	added, err := env.pool.AddCredentials(context.Background(), item.ID, payloads, "admin")
	if err != nil {
		t.Fatalf("add credentials failed: %v", err)
	}
	if added != 3 {
		t.Fatalf("expected 3 credentials, got %d", added)
	}
	got, _ := env.items.Get(context.Background(), item.ID, false)
	if got.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", got.Stock)
	}
	var stored []models.Credential
	env.db.Where("item_id = ?", item.ID).Order("id ASC").Find(&stored)
	if len(stored) != 3 || stored[0].Payload != "login: bob\npassword: x" || stored[1].Payload != "dup" || stored[2].Payload != "dup" {
		t.Fatalf("payloads must be stored verbatim, got %+v", stored)
	}

	var history []models.ItemHistory
	env.db.Where("item_id = ? AND change_type = ?", item.ID, constants.ItemChangeStockAdd).Find(&history)
	if len(history) != 1 || history[0].Actor != "admin" {
		t.Fatalf("expected one stock_add history entry, got %+v", history)
	}

	if _, err := env.pool.AddCredentials(context.Background(), item.ID, []string{"  \n "}, "admin"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank payloads, got %v", err)
	}
	if _, err := env.pool.AddCredentials(context.Background(), 9999, []string{"x"}, "admin"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestClaimManyIsAllOrNothing(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "Netflix", 100, "a", "b")

	_, err := env.pool.ClaimMany(context.Background(), item.ID, 3, "tok-1")
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("expected OutOfStockError, got %v", err)
	}
	if oos.ItemID != item.ID || oos.Requested != 3 || oos.Available != 2 {
		t.Fatalf("unexpected out of stock detail: %+v", oos)
	}
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("OutOfStockError must match ErrOutOfStock")
	}
	if reserved := env.countCredentials(t, item.ID, constants.CredentialStatusReserved); reserved != 0 {
		t.Fatalf("failed claim must not reserve anything, got %d", reserved)
	}

	rows, err := env.pool.ClaimMany(context.Background(), item.ID, 2, "tok-2")
	if err != nil {
		t.Fatalf("claim two failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Payload != "a" || rows[1].Payload != "b" {
		t.Fatalf("expected FIFO claim of a,b got %+v", rows)
	}
	if _, err := env.pool.ClaimOne(context.Background(), item.ID, "tok-3"); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected out of stock on empty pool, got %v", err)
	}
}

func TestClaimManyConcurrentNoDoubleSale(t *testing.T) {
	env := setupServiceTest(t)
	payloads := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		payloads = append(payloads, fmt.Sprintf("secret-%d", i))
	}
	item := env.createItem(t, "Disney", 50, payloads...)

	const buyers = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		seen    = make(map[uint]string)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			token := fmt.Sprintf("buyer-%d", n)
			row, err := env.pool.ClaimOne(context.Background(), item.ID, token)
			if err != nil {
				if !errors.Is(err, ErrOutOfStock) {
					t.Errorf("unexpected claim error: %v", err)
				}
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, ok := seen[row.ID]; ok {
				t.Errorf("credential %d claimed twice (%s and %s)", row.ID, prev, token)
			}
			seen[row.ID] = token
			winners++
		}(i)
	}
	wg.Wait()

	if winners != 10 {
		t.Fatalf("expected exactly 10 successful claims, got %d", winners)
	}
	if available := env.countCredentials(t, item.ID, constants.CredentialStatusAvailable); available != 0 {
		t.Fatalf("expected empty pool, got %d available", available)
	}
}

func TestReleaseAndDeleteCredential(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "Hulu", 80, "a", "b", "c")
	ctx := context.Background()

	row, err := env.pool.ClaimOne(ctx, item.ID, "tok")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := env.pool.DeleteCredential(ctx, row.ID); !errors.Is(err, ErrCredentialReserved) {
		t.Fatalf("expected reserved error, got %v", err)
	}
	if err := env.pool.ReleaseCredential(ctx, row.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := env.pool.ReleaseCredential(ctx, row.ID); !errors.Is(err, ErrCredentialNotReserved) {
		t.Fatalf("expected not reserved on second release, got %v", err)
	}
	if err := env.pool.DeleteCredential(ctx, row.ID); err != nil {
		t.Fatalf("delete available failed: %v", err)
	}
	if err := env.pool.DeleteCredential(ctx, row.ID); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	stats, err := env.pool.Stats(ctx, item.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Available != 2 || stats.Reserved != 0 || stats.Consumed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	got, _ := env.items.Get(ctx, item.ID, false)
	if got.Stock != 2 {
		t.Fatalf("expected synced stock 2, got %d", got.Stock)
	}
}

func TestDeleteConsumedCredentialRefused(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "Prime", 10, "only")
	env.fund(t, "u1", 10)
	result, err := env.orders.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:        "u1",
		Lines:         []CartLine{{ItemID: item.ID, Quantity: 1}},
		ExpectedTotal: 10,
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	var row models.Credential
	env.db.Where("order_id = ?", result.OrderID).First(&row)
	if err := env.pool.DeleteCredential(context.Background(), row.ID); !errors.Is(err, ErrCredentialConsumed) {
		t.Fatalf("expected consumed error, got %v", err)
	}
}

func TestReleaseStaleSweepsAbandonedReservations(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "HBO", 20, "a", "b")
	ctx := context.Background()

	rows, err := env.pool.ClaimMany(ctx, item.ID, 2, "crashed-order")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	// 模拟进程在提交前崩溃：预占时间推到很久以前
	old := time.Now().Add(-time.Hour)
	env.db.Model(&models.Credential{}).Where("id = ?", rows[0].ID).Update("claimed_at", old)

	released, err := env.pool.ReleaseStale(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("release stale failed: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected one stale reservation released, got %d", released)
	}
	if reserved := env.countCredentials(t, item.ID, constants.CredentialStatusReserved); reserved != 1 {
		t.Fatalf("fresh reservation must be kept, got %d reserved", reserved)
	}
	got, _ := env.items.Get(ctx, item.ID, false)
	if got.Stock != 1 {
		t.Fatalf("expected stock 1 after sweep, got %d", got.Stock)
	}

	if _, err := env.pool.ReleaseStale(ctx, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected validation error for zero cutoff, got %v", err)
	}
}

// registerRivalClaim 在预占更新执行前抢先占走最早的一条可用卡密，模拟另一买家赢得竞争
func registerRivalClaim(t *testing.T, db *gorm.DB, itemID uint, times int32) *int32 {
	t.Helper()
	var fired int32
	err := db.Callback().Update().Before("gorm:update").Register("test:rival_claim", func(tx *gorm.DB) {
		if tx.Statement.Table != "credentials" {
			return
		}
		values, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok || values["status"] != constants.CredentialStatusReserved {
			return
		}
		if atomic.AddInt32(&fired, 1) > times {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"UPDATE credentials SET status = ?, claim_token = ? WHERE id = (SELECT MIN(id) FROM credentials WHERE item_id = ? AND status = ?)",
			constants.CredentialStatusReserved, "rival", itemID, constants.CredentialStatusAvailable,
		)
	})
	if err != nil {
		t.Fatalf("register callback failed: %v", err)
	}
	return &fired
}

func TestClaimManyRetriesAfterLosingRace(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "Raced", 100, "r-1", "r-2", "r-3")
	fired := registerRivalClaim(t, env.db, item.ID, 1)
	before := testutil.ToFloat64(metrics.CredentialClaimConflictsTotal)

	rows, err := env.pool.ClaimMany(context.Background(), item.ID, 2, "tok-race")
	if err != nil {
		t.Fatalf("claim after lost race failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 claimed rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Status != constants.CredentialStatusReserved || row.ClaimToken != "tok-race" {
			t.Fatalf("unexpected claimed row: %+v", row)
		}
	}
	if got := atomic.LoadInt32(fired); got != 2 {
		t.Fatalf("expected two reserve attempts, got %d", got)
	}
	if delta := testutil.ToFloat64(metrics.CredentialClaimConflictsTotal) - before; delta != 1 {
		t.Fatalf("expected one recorded conflict, got %v", delta)
	}
	if reserved := env.countCredentials(t, item.ID, constants.CredentialStatusReserved); reserved != 2 {
		t.Fatalf("expected 2 reserved credentials, got %d", reserved)
	}
}

func TestClaimManyPersistentLostRacesReportOutOfStock(t *testing.T) {
	env := setupServiceTest(t)
	item := env.createItem(t, "Contended", 100, "c-1", "c-2", "c-3")
	registerRivalClaim(t, env.db, item.ID, 100)

	_, err := env.pool.ClaimMany(context.Background(), item.ID, 2, "tok-lost")
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected out of stock after exhausted retries, got %v", err)
	}
	if reserved := env.countCredentials(t, item.ID, constants.CredentialStatusReserved); reserved != 0 {
		t.Fatalf("lost claims must not leave reservations, got %d", reserved)
	}
}

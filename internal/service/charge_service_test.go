package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/models"
	"github.com/Kosei0128/Plane-SNS/internal/repository"
)

func TestApplyChargeCreditsBalanceOnce(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	result, err := env.charge.ApplyCharge(ctx, ApplyChargeInput{
		UserID:      "u-charge",
		ExternalRef: "cs_test_001",
		Amount:      1500,
		PaymentURL:  "https://pay.example.com/cs_test_001",
	})
	if err != nil {
		t.Fatalf("apply charge failed: %v", err)
	}
	if result.Balance != 1500 || result.Amount != 1500 || result.TransactionID == 0 {
		t.Fatalf("unexpected charge result: %+v", result)
	}

	_, err = env.charge.ApplyCharge(ctx, ApplyChargeInput{UserID: "u-charge", ExternalRef: "cs_test_001", Amount: 1500})
	if !errors.Is(err, ErrDuplicateCharge) {
		t.Fatalf("expected duplicate charge, got %v", err)
	}
	balance, _ := env.ledger.GetBalance(ctx, "u-charge")
	if balance != 1500 {
		t.Fatalf("duplicate charge must not change balance, got %d", balance)
	}

	var record models.ChargeRecord
	if err := env.db.Where("external_ref = ?", "cs_test_001").First(&record).Error; err != nil {
		t.Fatalf("load charge record failed: %v", err)
	}
	if record.Source != constants.ChargeSourceCallback || record.TransactionID != result.TransactionID {
		t.Fatalf("unexpected charge record: %+v", record)
	}
}

func TestApplyChargeConcurrentDuplicates(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	var (
		wg         sync.WaitGroup
		applied    int32
		duplicates int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.charge.ApplyCharge(ctx, ApplyChargeInput{UserID: "u-race", ExternalRef: "cs_race", Amount: 300})
			switch {
			case err == nil:
				atomic.AddInt32(&applied, 1)
			case errors.Is(err, ErrDuplicateCharge):
				atomic.AddInt32(&duplicates, 1)
			default:
				t.Errorf("unexpected charge error: %v", err)
			}
		}()
	}
	wg.Wait()

	if applied != 1 || duplicates != 9 {
		t.Fatalf("expected 1 applied and 9 duplicates, got %d and %d", applied, duplicates)
	}
	balance, _ := env.ledger.GetBalance(ctx, "u-race")
	if balance != 300 {
		t.Fatalf("expected balance 300, got %d", balance)
	}
}

func TestApplyChargeValidation(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	cases := []struct {
		input ApplyChargeInput
		want  error
	}{
		{ApplyChargeInput{ExternalRef: "x", Amount: 10}, ErrInvalidInput},
		{ApplyChargeInput{UserID: "u", Amount: 10}, ErrInvalidInput},
		{ApplyChargeInput{UserID: "u", ExternalRef: "x", Amount: 0}, ErrInvalidAmount},
		{ApplyChargeInput{UserID: "u", ExternalRef: "x", Amount: -10}, ErrInvalidAmount},
		{ApplyChargeInput{UserID: "u", ExternalRef: "x", Amount: 1_000_001}, ErrInvalidInput},
	}
	for i, tc := range cases {
		if _, err := env.charge.ApplyCharge(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}
	if count := env.countLedgerEntries(t, "u"); count != 0 {
		t.Fatalf("rejected charges must not write entries, got %d", count)
	}
}

func TestChargeReceivableStatusAndToken(t *testing.T) {
	env := setupServiceTest(t)

	if !env.charge.IsReceivableStatus("completed") {
		t.Fatalf("status match should be case-insensitive")
	}
	if env.charge.IsReceivableStatus("PENDING") || env.charge.IsReceivableStatus("") {
		t.Fatalf("pending or empty status must not be receivable")
	}
	if !env.charge.VerifyCallbackToken("cb-secret") {
		t.Fatalf("configured token should verify")
	}
	if env.charge.VerifyCallbackToken("wrong") {
		t.Fatalf("wrong token must be rejected")
	}

	unconfigured := NewChargeService(repository.NewChargeRepository(env.db), env.ledger, nil, env.charge.cfg)
	unconfigured.cfg.CallbackToken = ""
	if unconfigured.VerifyCallbackToken("") {
		t.Fatalf("empty configured token must reject every callback")
	}
}

func TestListChargesByUser(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := env.charge.ApplyCharge(ctx, ApplyChargeInput{UserID: "u-list", ExternalRef: fmt.Sprintf("ref-%d", i), Amount: 10}); err != nil {
			t.Fatalf("apply charge failed: %v", err)
		}
	}
	if _, err := env.charge.ApplyCharge(ctx, ApplyChargeInput{UserID: "u-other", ExternalRef: "ref-other", Amount: 10}); err != nil {
		t.Fatalf("apply charge failed: %v", err)
	}

	rows, total, err := env.charge.ListCharges(ctx, repository.ChargeListFilter{UserID: "u-list", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list charges failed: %v", err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("expected 3 charges, got total=%d len=%d", total, len(rows))
	}
}

func TestApplyChargeRefCannotCollideWithOrderKeys(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	item := env.createItem(t, "Collide", 100, "c-1", "c-2")

	result, err := env.charge.ApplyCharge(ctx, ApplyChargeInput{UserID: "u-collide", ExternalRef: "order:1", Amount: 500})
	if err != nil {
		t.Fatalf("apply charge failed: %v", err)
	}
	var txn models.BalanceTransaction
	if err := env.db.First(&txn, result.TransactionID).Error; err != nil {
		t.Fatalf("load charge entry failed: %v", err)
	}
	if txn.Reference == nil || *txn.Reference != constants.BalanceRefPrefixCharge+"order:1" {
		t.Fatalf("charge entry must use a namespaced reference, got %v", txn.Reference)
	}

	for i := 0; i < 2; i++ {
		placed, err := env.orders.PlaceOrder(ctx, PlaceOrderInput{
			UserID:        "u-collide",
			Lines:         []CartLine{{ItemID: item.ID, Quantity: 1}},
			ExpectedTotal: 100,
		})
		if err != nil {
			t.Fatalf("order %d after colliding charge ref failed: %v", i+1, err)
		}
		if i == 0 && placed.OrderID != 1 {
			t.Fatalf("expected first order id 1, got %d", placed.OrderID)
		}
	}

	if _, err := env.charge.ApplyCharge(ctx, ApplyChargeInput{UserID: "u-collide", ExternalRef: "refund:1", Amount: 10}); err != nil {
		t.Fatalf("apply charge with refund-like ref failed: %v", err)
	}
	if _, err := env.ledger.Refund(ctx, "u-collide", 1, 100, "admin"); err != nil {
		t.Fatalf("refund slot must stay free for order 1, got %v", err)
	}
	balance, _ := env.ledger.GetBalance(ctx, "u-collide")
	if balance != 500-200+10+100 {
		t.Fatalf("unexpected balance: %d", balance)
	}
}

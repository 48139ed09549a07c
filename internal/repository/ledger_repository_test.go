package repository

import (
	"testing"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/models"
)

func TestLedgerRepositoryEnsureProfileIsIdempotent(t *testing.T) {
	db := openRepositoryTestDB(t, "ledger_profile_test")
	repo := NewLedgerRepository(db)

	first, err := repo.EnsureProfile("user-1")
	if err != nil || first == nil {
		t.Fatalf("ensure profile failed: %v", err)
	}
	second, err := repo.EnsureProfile("user-1")
	if err != nil || second == nil {
		t.Fatalf("ensure profile again failed: %v", err)
	}
	if first.ID != second.ID || second.CreditBalance != 0 {
		t.Fatalf("expected same zero-balance profile, got %+v vs %+v", first, second)
	}
	var count int64
	db.Model(&models.Profile{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one profile row, got %d", count)
	}
}

func TestLedgerRepositoryApplyDeltaRejectsOverdraft(t *testing.T) {
	db := openRepositoryTestDB(t, "ledger_delta_test")
	repo := NewLedgerRepository(db)
	if _, err := repo.EnsureProfile("user-1"); err != nil {
		t.Fatalf("ensure profile failed: %v", err)
	}

	if affected, err := repo.ApplyDelta("user-1", 300); err != nil || affected != 1 {
		t.Fatalf("credit failed: affected=%d err=%v", affected, err)
	}
	if affected, err := repo.ApplyDelta("user-1", -500); err != nil || affected != 0 {
		t.Fatalf("overdraft must not apply: affected=%d err=%v", affected, err)
	}
	if affected, err := repo.ApplyDelta("user-1", -300); err != nil || affected != 1 {
		t.Fatalf("exact debit failed: affected=%d err=%v", affected, err)
	}
	profile, _ := repo.GetProfile("user-1")
	if profile.CreditBalance != 0 {
		t.Fatalf("expected zero balance, got %d", profile.CreditBalance)
	}
}

func TestLedgerRepositoryReferenceIsUnique(t *testing.T) {
	db := openRepositoryTestDB(t, "ledger_reference_test")
	repo := NewLedgerRepository(db)
	ref := "pi_123"

	first := &models.BalanceTransaction{UserID: "user-1", Amount: 100, Type: constants.BalanceTxnTypeCharge, Reference: &ref, BalanceAfter: 100}
	if err := repo.CreateTransaction(first); err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	dup := &models.BalanceTransaction{UserID: "user-1", Amount: 100, Type: constants.BalanceTxnTypeCharge, Reference: &ref, BalanceBefore: 100, BalanceAfter: 200}
	if err := repo.CreateTransaction(dup); err == nil {
		t.Fatalf("expected unique violation for duplicate reference")
	}
	// 无引用的流水可以重复
	for i := 0; i < 2; i++ {
		if err := repo.CreateTransaction(&models.BalanceTransaction{UserID: "user-1", Amount: -10, Type: constants.BalanceTxnTypeAdminAdjustment}); err != nil {
			t.Fatalf("create unreferenced transaction failed: %v", err)
		}
	}

	got, err := repo.GetTransactionByReference(ref)
	if err != nil || got == nil || got.ID != first.ID {
		t.Fatalf("lookup by reference failed: %+v err=%v", got, err)
	}
	sum, count, err := repo.SumTransactions("user-1")
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if sum != 80 || count != 3 {
		t.Fatalf("expected sum 80 over 3 rows, got %d over %d", sum, count)
	}
	last, _ := repo.LastTransaction("user-1")
	if last == nil || last.Amount != -10 {
		t.Fatalf("unexpected last transaction: %+v", last)
	}
}

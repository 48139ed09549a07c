package repository

import (
	"testing"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/constants"
	"github.com/Kosei0128/Plane-SNS/internal/models"

	"gorm.io/gorm"
)

func seedCredentialItem(t *testing.T, db *gorm.DB, payloads ...string) models.Item {
	t.Helper()
	item := models.Item{Title: "Netflix 1M", Price: 500, Description: "shared account", IsActive: true}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	rows := make([]models.Credential, 0, len(payloads))
	for _, payload := range payloads {
		rows = append(rows, models.Credential{
			ItemID:  item.ID,
			Payload: payload,
			Status:  constants.CredentialStatusAvailable,
			BatchNo: "B1",
		})
	}
	if err := NewCredentialRepository(db).CreateBatch(rows); err != nil {
		t.Fatalf("create credentials failed: %v", err)
	}
	return item
}

func TestCredentialRepositoryReserveIsConditional(t *testing.T) {
	db := openRepositoryTestDB(t, "credential_reserve_test")
	repo := NewCredentialRepository(db)
	item := seedCredentialItem(t, db, "a:1", "b:2", "c:3")

	ids, err := repo.FindAvailableIDs(item.ID, 2)
	if err != nil {
		t.Fatalf("find available failed: %v", err)
	}
	if len(ids) != 2 || ids[0] >= ids[1] {
		t.Fatalf("expected two oldest ids in order, got %v", ids)
	}

	now := time.Now()
	affected, err := repo.Reserve(ids, "token-1", now)
	if err != nil || affected != 2 {
		t.Fatalf("reserve failed: affected=%d err=%v", affected, err)
	}
	// 已预占的行不能被第二个令牌再次预占
	affected, err = repo.Reserve(ids, "token-2", now)
	if err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected no rows for second reserve, got %d", affected)
	}

	available, err := repo.CountAvailable(item.ID)
	if err != nil || available != 1 {
		t.Fatalf("expected one available, got %d err=%v", available, err)
	}

	claimed, err := repo.ListByClaimToken("token-1")
	if err != nil || len(claimed) != 2 {
		t.Fatalf("expected two claimed rows, got %d err=%v", len(claimed), err)
	}
}

func TestCredentialRepositoryReleaseAndConsume(t *testing.T) {
	db := openRepositoryTestDB(t, "credential_release_test")
	repo := NewCredentialRepository(db)
	item := seedCredentialItem(t, db, "a:1", "b:2")

	ids, _ := repo.FindAvailableIDs(item.ID, 2)
	if _, err := repo.Reserve(ids[:1], "keep", time.Now()); err != nil {
		t.Fatalf("reserve keep failed: %v", err)
	}
	if _, err := repo.Reserve(ids[1:], "drop", time.Now()); err != nil {
		t.Fatalf("reserve drop failed: %v", err)
	}

	released, err := repo.ReleaseByToken("drop")
	if err != nil || released != 1 {
		t.Fatalf("release failed: released=%d err=%v", released, err)
	}
	row, _ := repo.GetByID(ids[1])
	if row.Status != constants.CredentialStatusAvailable || row.ClaimToken != "" || row.ClaimedAt != nil {
		t.Fatalf("released credential not reset: %+v", row)
	}

	consumed, err := repo.ConsumeByToken("keep", 99, time.Now())
	if err != nil || consumed != 1 {
		t.Fatalf("consume failed: consumed=%d err=%v", consumed, err)
	}
	// 已售出的卡密不会再被释放
	released, err = repo.ReleaseByToken("keep")
	if err != nil || released != 0 {
		t.Fatalf("consumed credential must not be released: released=%d err=%v", released, err)
	}
	sold, err := repo.ListByOrderIDs([]uint{99})
	if err != nil || len(sold) != 1 || sold[0].ID != ids[0] {
		t.Fatalf("unexpected sold credentials: %+v err=%v", sold, err)
	}

	counts, err := repo.CountByStatus(item.ID)
	if err != nil {
		t.Fatalf("count by status failed: %v", err)
	}
	if counts[constants.CredentialStatusAvailable] != 1 || counts[constants.CredentialStatusConsumed] != 1 || counts[constants.CredentialStatusReserved] != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCredentialRepositoryReleaseStale(t *testing.T) {
	db := openRepositoryTestDB(t, "credential_stale_test")
	repo := NewCredentialRepository(db)
	item := seedCredentialItem(t, db, "a:1", "b:2")

	ids, _ := repo.FindAvailableIDs(item.ID, 2)
	old := time.Now().Add(-time.Hour)
	if _, err := repo.Reserve(ids[:1], "old", old); err != nil {
		t.Fatalf("reserve old failed: %v", err)
	}
	if _, err := repo.Reserve(ids[1:], "fresh", time.Now()); err != nil {
		t.Fatalf("reserve fresh failed: %v", err)
	}

	cutoff := time.Now().Add(-5 * time.Minute)
	itemIDs, err := repo.ListStaleItemIDs(cutoff)
	if err != nil || len(itemIDs) != 1 || itemIDs[0] != item.ID {
		t.Fatalf("unexpected stale items: %v err=%v", itemIDs, err)
	}
	released, err := repo.ReleaseStale(cutoff)
	if err != nil || released != 1 {
		t.Fatalf("release stale failed: released=%d err=%v", released, err)
	}
	fresh, _ := repo.GetByID(ids[1])
	if fresh.Status != constants.CredentialStatusReserved {
		t.Fatalf("fresh reservation must survive sweep, got %s", fresh.Status)
	}
}

func TestCredentialRepositoryDeleteAvailableOnly(t *testing.T) {
	db := openRepositoryTestDB(t, "credential_delete_test")
	repo := NewCredentialRepository(db)
	item := seedCredentialItem(t, db, "a:1", "b:2")
	ids, _ := repo.FindAvailableIDs(item.ID, 2)
	if _, err := repo.Reserve(ids[1:], "t", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	deleted, err := repo.DeleteAvailable(ids[0])
	if err != nil || deleted != 1 {
		t.Fatalf("delete available failed: deleted=%d err=%v", deleted, err)
	}
	deleted, err = repo.DeleteAvailable(ids[1])
	if err != nil || deleted != 0 {
		t.Fatalf("reserved credential must not be deleted: deleted=%d err=%v", deleted, err)
	}
}

func TestItemRepositorySyncStock(t *testing.T) {
	db := openRepositoryTestDB(t, "item_sync_stock_test")
	item := seedCredentialItem(t, db, "a:1", "b:2", "c:3")
	credRepo := NewCredentialRepository(db)
	itemRepo := NewItemRepository(db)

	ids, _ := credRepo.FindAvailableIDs(item.ID, 1)
	if _, err := credRepo.Reserve(ids, "t", time.Now()); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := itemRepo.SyncStock(item.ID); err != nil {
		t.Fatalf("sync stock failed: %v", err)
	}
	got, err := itemRepo.GetByID(item.ID)
	if err != nil || got == nil {
		t.Fatalf("get item failed: %v", err)
	}
	if got.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", got.Stock)
	}
}

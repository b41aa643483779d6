package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/greenloop/recyclemart/internal/domain/listing"
)

func seedItem(t *testing.T, repo *ListingRepository, id, sourceID string) *domain.Item {
	t.Helper()
	item := &domain.Item{
		ID:              id,
		SourceRequestID: sourceID,
		OwnerID:         "seller-1",
		MaterialType:    "aluminum",
		Quantity:        10,
		Unit:            "kg",
		PricePerUnit:    decimal.NewFromInt(5),
		IsAvailable:     true,
		Version:         1,
		PublishedAt:     time.Now().UTC(),
	}
	if err := repo.Insert(context.Background(), item); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	return item
}

func TestListingInsertRejectsDuplicateSource(t *testing.T) {
	repo := NewListingRepository()
	seedItem(t, repo, "item-1", "req-1")

	dup := &domain.Item{ID: "item-2", SourceRequestID: "req-1", Version: 1}
	if err := repo.Insert(context.Background(), dup); !errors.Is(err, domain.ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
}

func TestListingUpdateVersionConflict(t *testing.T) {
	repo := NewListingRepository()
	seedItem(t, repo, "item-1", "req-1")

	first, _ := repo.Get(context.Background(), "item-1")
	second, _ := repo.Get(context.Background(), "item-1")

	first.Quantity = 6
	if err := repo.Update(context.Background(), first); err != nil {
		t.Fatalf("first Update error: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("caller snapshot must advance with the store, got version %d", first.Version)
	}

	second.Quantity = 8
	if err := repo.Update(context.Background(), second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale snapshot, got %v", err)
	}

	stored, _ := repo.Get(context.Background(), "item-1")
	if stored.Quantity != 6 || stored.Version != 2 {
		t.Fatalf("stale write must not land, got %+v", stored)
	}
}

func TestListingGetReturnsClone(t *testing.T) {
	repo := NewListingRepository()
	seedItem(t, repo, "item-1", "req-1")

	got, _ := repo.Get(context.Background(), "item-1")
	got.Quantity = 0

	again, _ := repo.Get(context.Background(), "item-1")
	if again.Quantity != 10 {
		t.Fatalf("repository must hand out clones, got %d", again.Quantity)
	}
}

func TestListingDeleteClearsSourceIndex(t *testing.T) {
	repo := NewListingRepository()
	seedItem(t, repo, "item-1", "req-1")

	if err := repo.Delete(context.Background(), "item-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.GetBySourceRequest(context.Background(), "req-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Insert(context.Background(), &domain.Item{ID: "item-2", SourceRequestID: "req-1", Version: 1}); err != nil {
		t.Fatalf("source must be reusable after delete: %v", err)
	}
}

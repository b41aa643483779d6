package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domlisting "github.com/greenloop/recyclemart/internal/domain/listing"
	domnotif "github.com/greenloop/recyclemart/internal/domain/notification"
	dompickup "github.com/greenloop/recyclemart/internal/domain/pickup"
	dompurchase "github.com/greenloop/recyclemart/internal/domain/purchase"
	domsaga "github.com/greenloop/recyclemart/internal/domain/saga"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema error: %v", err)
	}
	return store
}

func seedRequest(t *testing.T, store *Store, id string) *dompickup.Request {
	t.Helper()
	request, err := dompickup.New(id, "seller-1", "aluminum", "kg", 10, decimal.NewFromInt(5), "clean cans", []string{"a.jpg"})
	if err != nil {
		t.Fatalf("pickup.New error: %v", err)
	}
	if err := NewPickupRepository(store).Insert(context.Background(), request); err != nil {
		t.Fatalf("insert request: %v", err)
	}
	return request
}

func seedListing(t *testing.T, store *Store, itemID, requestID string) *domlisting.Item {
	t.Helper()
	request := seedRequest(t, store, requestID)
	item, err := domlisting.NewFromRequest(itemID, request)
	if err != nil {
		t.Fatalf("NewFromRequest error: %v", err)
	}
	if err := NewListingRepository(store).Insert(context.Background(), item); err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	return item
}

func TestPickupRoundTrip(t *testing.T) {
	store := newTestStore(t)
	repo := NewPickupRepository(store)
	request := seedRequest(t, store, "req-1")

	got, err := repo.Get(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.RequesterID != request.RequesterID || got.Quantity != 10 ||
		!got.ProposedPricePerUnit.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Status != dompickup.StatusPending || len(got.Images) != 1 {
		t.Fatalf("status/images mismatch: %+v", got)
	}

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, dompickup.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPickupUpdateStatusGuard(t *testing.T) {
	store := newTestStore(t)
	repo := NewPickupRepository(store)
	request := seedRequest(t, store, "req-1")

	if err := request.Approve("admin-1", "ok"); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if err := repo.Update(context.Background(), request, dompickup.StatusPending); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, _ := repo.Get(context.Background(), "req-1")
	if got.Status != dompickup.StatusApproved || got.AdminID != "admin-1" || got.ApprovedAt == nil {
		t.Fatalf("approved write not persisted: %+v", got)
	}

	// The row is approved now, so a pending-guarded write must conflict.
	if err := repo.Update(context.Background(), request, dompickup.StatusPending); !errors.Is(err, dompickup.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	request.ID = "missing"
	if err := repo.Update(context.Background(), request, dompickup.StatusApproved); !errors.Is(err, dompickup.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListingInsertRejectsDuplicateSource(t *testing.T) {
	store := newTestStore(t)
	repo := NewListingRepository(store)
	seedListing(t, store, "item-1", "req-1")

	dup := &domlisting.Item{
		ID: "item-2", SourceRequestID: "req-1", OwnerID: "seller-1",
		MaterialType: "aluminum", Quantity: 10, Unit: "kg",
		PricePerUnit: decimal.NewFromInt(5), IsAvailable: true, Version: 1,
		PublishedAt: time.Now().UTC(),
	}
	if err := repo.Insert(context.Background(), dup); !errors.Is(err, domlisting.ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
}

func TestListingUpdateVersionConflict(t *testing.T) {
	store := newTestStore(t)
	repo := NewListingRepository(store)
	seedListing(t, store, "item-1", "req-1")

	first, err := repo.Get(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	second, _ := repo.Get(context.Background(), "item-1")

	first.Quantity = 6
	if err := repo.Update(context.Background(), first); err != nil {
		t.Fatalf("first Update error: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("caller snapshot must advance with the store, got version %d", first.Version)
	}

	second.Quantity = 8
	if err := repo.Update(context.Background(), second); !errors.Is(err, domlisting.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale snapshot, got %v", err)
	}

	stored, _ := repo.Get(context.Background(), "item-1")
	if stored.Quantity != 6 || stored.Version != 2 {
		t.Fatalf("stale write must not land, got %+v", stored)
	}
}

func TestListingDeleteFreesSource(t *testing.T) {
	store := newTestStore(t)
	repo := NewListingRepository(store)
	seedListing(t, store, "item-1", "req-1")

	if err := repo.Delete(context.Background(), "item-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.GetBySourceRequest(context.Background(), "req-1"); !errors.Is(err, domlisting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(context.Background(), "item-1"); !errors.Is(err, domlisting.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPurchaseSuccessivePurchasesOfOneItem(t *testing.T) {
	store := newTestStore(t)
	repo := NewPurchaseRepository(store)
	item := seedListing(t, store, "item-1", "req-1")

	first, err := dompurchase.New("p-1", item.ID, "buyer-1", 4, item.PricePerUnit)
	if err != nil {
		t.Fatalf("purchase.New error: %v", err)
	}
	if err := repo.Insert(context.Background(), first); err != nil {
		t.Fatalf("insert first purchase: %v", err)
	}

	second, err := dompurchase.New("p-2", item.ID, "buyer-2", 6, item.PricePerUnit)
	if err != nil {
		t.Fatalf("purchase.New error: %v", err)
	}
	if err := repo.Insert(context.Background(), second); err != nil {
		t.Fatalf("second purchase of the same item must be storable: %v", err)
	}

	got, err := repo.Get(context.Background(), "p-2")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ItemID != item.ID || got.Quantity != 6 || !got.TotalAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPurchaseUpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	repo := NewPurchaseRepository(store)
	item := seedListing(t, store, "item-1", "req-1")

	p, err := dompurchase.New("p-1", item.ID, "buyer-1", 4, item.PricePerUnit)
	if err != nil {
		t.Fatalf("purchase.New error: %v", err)
	}
	if err := repo.Insert(context.Background(), p); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	if err := p.MarkCompleted("txn-1"); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if err := repo.Update(context.Background(), p); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	got, _ := repo.Get(context.Background(), "p-1")
	if got.PaymentStatus != dompurchase.PaymentCompleted || got.Reference != "txn-1" {
		t.Fatalf("completed write not persisted: %+v", got)
	}

	if err := repo.Delete(context.Background(), "p-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.Get(context.Background(), "p-1"); !errors.Is(err, dompurchase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(context.Background(), "p-1"); !errors.Is(err, dompurchase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSagaLogUnresolved(t *testing.T) {
	store := newTestStore(t)
	log := NewSagaLog(store)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []domsaga.Entry{
		{ID: "s-1", Kind: domsaga.KindApproval, EntityID: "req-1", State: domsaga.StateIntent, At: now},
		{ID: "s-1", Kind: domsaga.KindApproval, EntityID: "req-1", State: domsaga.StateResolved, Reference: "txn-1", At: now},
		{ID: "s-2", Kind: domsaga.KindPurchase, EntityID: "p-1", State: domsaga.StateIntent, At: now},
		{ID: "s-2", Kind: domsaga.KindPurchase, EntityID: "p-1", State: domsaga.StateCompensated, Detail: "declined", At: now},
		{ID: "s-3", Kind: domsaga.KindPurchase, EntityID: "p-2", State: domsaga.StateIntent, At: now},
	}
	for _, e := range entries {
		if err := log.Append(ctx, e); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	open, err := log.Unresolved(ctx)
	if err != nil {
		t.Fatalf("Unresolved error: %v", err)
	}
	if len(open) != 1 || open[0].ID != "s-3" || open[0].State != domsaga.StateIntent {
		t.Fatalf("expected only s-3 unresolved, got %+v", open)
	}
}

func TestNotificationListAndMarkRead(t *testing.T) {
	store := newTestStore(t)
	repo := NewNotificationRepository(store)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, n := range []*domnotif.Notification{
		{ID: "n-1", RecipientID: "seller-1", Title: "Payment received", Message: "50 paid out", Type: domnotif.TypePaymentReceived},
		{ID: "n-2", RecipientID: "seller-1", Title: "Listing is live", Type: domnotif.TypeListingPublished},
		{ID: "n-3", RecipientID: "buyer-1", Title: "Purchase confirmed", Type: domnotif.TypePurchaseCompleted},
	} {
		n.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Insert(ctx, n); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	got, err := repo.ListByRecipient(ctx, "seller-1")
	if err != nil {
		t.Fatalf("ListByRecipient error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "n-1" || got[1].ID != "n-2" {
		t.Fatalf("unexpected listing order: %+v", got)
	}

	if err := repo.MarkRead(ctx, "n-1"); err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}
	got, _ = repo.ListByRecipient(ctx, "seller-1")
	if !got[0].IsRead || got[1].IsRead {
		t.Fatalf("read flag not persisted: %+v", got)
	}

	if err := repo.MarkRead(ctx, "missing"); !errors.Is(err, domnotif.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

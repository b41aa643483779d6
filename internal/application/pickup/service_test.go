package pickup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domlisting "github.com/greenloop/recyclemart/internal/domain/listing"
	domoutbox "github.com/greenloop/recyclemart/internal/domain/outbox"
	dompay "github.com/greenloop/recyclemart/internal/domain/payment"
	domain "github.com/greenloop/recyclemart/internal/domain/pickup"
	domsaga "github.com/greenloop/recyclemart/internal/domain/saga"
	"github.com/greenloop/recyclemart/internal/infrastructure/memory"
)

// --- fakes ---

type fakeGateway struct {
	payForPickup func(ctx context.Context, requestID string, amount decimal.Decimal) (dompay.Result, error)
	calls        int
}

func (g *fakeGateway) PayForPickup(ctx context.Context, requestID string, amount decimal.Decimal) (dompay.Result, error) {
	g.calls++
	return g.payForPickup(ctx, requestID, amount)
}

func (g *fakeGateway) PayForPurchase(context.Context, string, string) (dompay.Result, error) {
	return dompay.Result{}, errors.New("not under test")
}

type seqIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	service   *Service
	requests  *memory.PickupRepository
	listings  *memory.ListingRepository
	sagaLog   *memory.SagaLog
	publisher *capturingPublisher
	gateway   *fakeGateway
}

func newFixture(t *testing.T, gateway *fakeGateway) *fixture {
	t.Helper()
	f := &fixture{
		requests:  memory.NewPickupRepository(),
		listings:  memory.NewListingRepository(),
		sagaLog:   memory.NewSagaLog(),
		publisher: &capturingPublisher{},
		gateway:   gateway,
	}
	f.service = NewService(f.requests, f.listings, gateway, f.sagaLog, f.publisher,
		&seqIDGenerator{}, time.Second, nil)
	return f
}

func (f *fixture) submit(t *testing.T) *domain.Request {
	t.Helper()
	request, err := f.service.Submit(context.Background(), SubmitInput{
		RequesterID:  "seller-1",
		MaterialType: "aluminum",
		Quantity:     10,
		Unit:         "kg",
		PricePerUnit: decimal.NewFromInt(5),
		Description:  "clean cans",
		Images:       []string{"a.jpg"},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	return request
}

// --- tests ---

func TestApproveSuccessPublishesListing(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(_ context.Context, _ string, amount decimal.Decimal) (dompay.Result, error) {
		if !amount.Equal(decimal.NewFromInt(50)) {
			return dompay.Result{}, fmt.Errorf("unexpected amount %s", amount)
		}
		return dompay.Result{OK: true, Reference: "pay-ref-1"}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	result, err := f.service.Approve(context.Background(), ApproveInput{
		RequestID: request.ID, AdminID: "admin-1", Notes: "ok",
	})
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if result.Status != domain.StatusPublished {
		t.Fatalf("expected published, got %s", result.Status)
	}

	item, err := f.listings.GetBySourceRequest(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("listing not created: %v", err)
	}
	if item.Quantity != 10 || !item.PricePerUnit.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("listing snapshot mismatch: %+v", item)
	}
	if item.OwnerID != "seller-1" || !item.IsAvailable {
		t.Fatalf("listing ownership/availability mismatch: %+v", item)
	}

	stored, err := f.requests.Get(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Status != domain.StatusPublished || stored.AdminID != "admin-1" {
		t.Fatalf("persisted request mismatch: %+v", stored)
	}
}

func TestApproveGatewayDeclineRollsBack(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{Message: "card declined"}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	_, err := f.service.Approve(context.Background(), ApproveInput{
		RequestID: request.ID, AdminID: "admin-1", Notes: "ok",
	})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	assertRolledBack(t, f, request.ID)
}

func TestApproveGatewayErrorRollsBack(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{}, errors.New("connection reset")
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	_, err := f.service.Approve(context.Background(), ApproveInput{
		RequestID: request.ID, AdminID: "admin-1",
	})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	assertRolledBack(t, f, request.ID)
}

func TestApproveGatewayPanicRollsBack(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		panic("gateway exploded")
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	_, err := f.service.Approve(context.Background(), ApproveInput{
		RequestID: request.ID, AdminID: "admin-1",
	})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	assertRolledBack(t, f, request.ID)
}

// assertRolledBack checks the rollback-completeness post-condition: the
// request is pending with admin fields cleared and no listing exists.
func assertRolledBack(t *testing.T, f *fixture, requestID string) {
	t.Helper()
	stored, err := f.requests.Get(context.Background(), requestID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected pending after rollback, got %s", stored.Status)
	}
	if stored.AdminID != "" || stored.AdminNotes != "" || stored.ApprovedAt != nil {
		t.Fatalf("admin fields not cleared after rollback: %+v", stored)
	}
	if _, err := f.listings.GetBySourceRequest(context.Background(), requestID); !errors.Is(err, domlisting.ErrNotFound) {
		t.Fatalf("no listing may exist after rollback, got %v", err)
	}

	entries := f.sagaLog.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected intent+compensated entries, got %d", len(entries))
	}
	if entries[0].State != domsaga.StateIntent || entries[1].State != domsaga.StateCompensated {
		t.Fatalf("unexpected saga states: %+v", entries)
	}
}

// publishWriteFailer passes the approve write through but fails the confirming
// approved->published write.
type publishWriteFailer struct {
	domain.Repository
}

func (r *publishWriteFailer) Update(ctx context.Context, request *domain.Request, expectedStatus domain.Status) error {
	if request.Status == domain.StatusPublished {
		return errors.New("disk full")
	}
	return r.Repository.Update(ctx, request, expectedStatus)
}

func TestApprovePublishWriteFailureRollsBack(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{OK: true, Reference: "pay-ref"}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)
	f.service = NewService(&publishWriteFailer{Repository: f.requests}, f.listings, gw,
		f.sagaLog, f.publisher, &seqIDGenerator{n: 1}, time.Second, nil)

	_, err := f.service.Approve(context.Background(), ApproveInput{
		RequestID: request.ID, AdminID: "admin-1",
	})
	if err == nil {
		t.Fatalf("expected error from failed publish write")
	}
	assertRolledBack(t, f, request.ID)
}

func TestApproveRetryAfterRollbackSucceeds(t *testing.T) {
	attempts := 0
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		attempts++
		if attempts == 1 {
			return dompay.Result{Message: "declined"}, nil
		}
		return dompay.Result{OK: true, Reference: "pay-ref-2"}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	if _, err := f.service.Approve(context.Background(), ApproveInput{RequestID: request.ID, AdminID: "admin-1"}); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	result, err := f.service.Approve(context.Background(), ApproveInput{RequestID: request.ID, AdminID: "admin-1"})
	if err != nil {
		t.Fatalf("second Approve error: %v", err)
	}
	if result.Status != domain.StatusPublished {
		t.Fatalf("expected published, got %s", result.Status)
	}
}

func TestApproveNonPendingFails(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{OK: true, Reference: "pay-ref"}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	if _, err := f.service.Approve(context.Background(), ApproveInput{RequestID: request.ID, AdminID: "admin-1"}); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if _, err := f.service.Approve(context.Background(), ApproveInput{RequestID: request.ID, AdminID: "admin-2"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("second approval must not reach the gateway, calls=%d", gw.calls)
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{OK: true}, nil
	}}
	f := newFixture(t, gw)

	if _, err := f.service.Approve(context.Background(), ApproveInput{RequestID: "missing", AdminID: "admin-1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("unknown request must not reach the gateway")
	}
}

func TestRejectIsSingleWrite(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{OK: true}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	result, err := f.service.Reject(context.Background(), RejectInput{
		RequestID: request.ID, AdminID: "admin-1", Notes: "contaminated",
	})
	if err != nil {
		t.Fatalf("Reject error: %v", err)
	}
	if result.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", result.Status)
	}
	if gw.calls != 0 {
		t.Fatalf("reject must not call the gateway")
	}
	if len(f.sagaLog.Entries()) != 0 {
		t.Fatalf("reject needs no saga entries")
	}
}

func TestApproveSuccessEmitsNotificationEvents(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{OK: true, Reference: "pay-ref"}, nil
	}}
	f := newFixture(t, gw)
	request := f.submit(t)

	if _, err := f.service.Approve(context.Background(), ApproveInput{RequestID: request.ID, AdminID: "admin-1"}); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	names := f.publisher.names()
	if len(names) != 2 || names[0] != "pickup.approved" || names[1] != "pickup.published" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestPublishFailureNeverChangesOutcome(t *testing.T) {
	gw := &fakeGateway{payForPickup: func(context.Context, string, decimal.Decimal) (dompay.Result, error) {
		return dompay.Result{OK: true, Reference: "pay-ref"}, nil
	}}
	f := newFixture(t, gw)
	f.publisher.err = errors.New("bus unavailable")
	request := f.submit(t)

	result, err := f.service.Approve(context.Background(), ApproveInput{RequestID: request.ID, AdminID: "admin-1"})
	if err != nil {
		t.Fatalf("notification failure must not surface: %v", err)
	}
	if result.Status != domain.StatusPublished {
		t.Fatalf("expected published, got %s", result.Status)
	}
}

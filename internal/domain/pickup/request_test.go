package pickup

import (
	"testing"

	"github.com/shopspring/decimal"
)

func newTestRequest(t *testing.T) *Request {
	t.Helper()
	r, err := New("req-1", "user-1", "aluminum", "kg", 10, decimal.NewFromInt(5), "cans", []string{"a.jpg"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return r
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "user-1", "aluminum", "kg", 10, decimal.NewFromInt(5), "", nil); err != ErrMissingField {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := New("req-1", "user-1", "aluminum", "kg", 0, decimal.NewFromInt(5), "", nil); err != ErrInvalidQuantity {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := New("req-1", "user-1", "aluminum", "kg", 10, decimal.Zero, "", nil); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestTotal(t *testing.T) {
	r := newTestRequest(t)
	if got := r.Total(); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total 50, got %s", got)
	}
}

func TestApproveTransition(t *testing.T) {
	r := newTestRequest(t)
	if err := r.Approve("admin-1", "looks good"); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if r.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", r.Status)
	}
	if r.AdminID != "admin-1" || r.AdminNotes != "looks good" || r.ApprovedAt == nil {
		t.Fatalf("admin fields not recorded: %+v", r)
	}

	// approved request cannot be approved or rejected again
	if err := r.Approve("admin-2", ""); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := r.Reject("admin-2", ""); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestPublishOnlyFromApproved(t *testing.T) {
	r := newTestRequest(t)
	if err := r.Publish(); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState publishing pending request, got %v", err)
	}
	if err := r.Approve("admin-1", ""); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if err := r.Publish(); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if r.Status != StatusPublished {
		t.Fatalf("expected published, got %s", r.Status)
	}
	// published is terminal
	if err := r.RevertApproval(); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState reverting published request, got %v", err)
	}
}

func TestRejectTransition(t *testing.T) {
	r := newTestRequest(t)
	if err := r.Reject("admin-1", "contaminated"); err != nil {
		t.Fatalf("Reject error: %v", err)
	}
	if r.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", r.Status)
	}
	if err := r.Publish(); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRevertApprovalClearsAdminFields(t *testing.T) {
	r := newTestRequest(t)
	if err := r.Approve("admin-1", "notes"); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if err := r.RevertApproval(); err != nil {
		t.Fatalf("RevertApproval error: %v", err)
	}
	if r.Status != StatusPending {
		t.Fatalf("expected pending, got %s", r.Status)
	}
	if r.AdminID != "" || r.AdminNotes != "" || r.ApprovedAt != nil {
		t.Fatalf("admin fields not cleared: %+v", r)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := newTestRequest(t)
	clone := r.Clone()
	clone.Images[0] = "b.jpg"
	clone.Status = StatusRejected
	if r.Images[0] != "a.jpg" || r.Status != StatusPending {
		t.Fatalf("clone mutation leaked into original: %+v", r)
	}
}

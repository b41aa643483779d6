package saga

import (
	"context"
	"time"
)

type Kind string

const (
	KindApproval Kind = "pickup_approval"
	KindPurchase Kind = "item_purchase"
)

type State string

const (
	// StateIntent is written immediately before the external payment call.
	StateIntent State = "intent"
	// StateResolved is written after the confirming write lands.
	StateResolved State = "resolved"
	// StateCompensated is written after a rollback write or compensating delete.
	StateCompensated State = "compensated"
)

// Entry records one step of a saga. A crash between the payment call and the
// confirming write leaves a dangling intent entry, which the startup scan
// surfaces for reconciliation against the gateway.
type Entry struct {
	ID        string
	Kind      Kind
	EntityID  string
	State     State
	Reference string
	Detail    string
	At        time.Time
}

type Log interface {
	Append(ctx context.Context, e Entry) error
	// Unresolved returns intent entries with no later resolved or compensated
	// entry for the same saga id.
	Unresolved(ctx context.Context) ([]Entry, error)
}

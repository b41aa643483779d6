package notification

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("notification: not found")

type Type string

const (
	TypePaymentReceived   Type = "payment_received"
	TypeListingPublished  Type = "listing_published"
	TypeRequestRejected   Type = "request_rejected"
	TypePurchaseCompleted Type = "purchase_completed"
	TypeItemSold          Type = "item_sold"
)

// Notification is a derived, non-authoritative side effect of the sagas.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Message     string
	Type        Type
	IsRead      bool
	CreatedAt   time.Time
}

// Dispatcher is the outbound port for best-effort user messaging. Delivery is
// at-least-once with no retry; orchestrators absorb every error.
type Dispatcher interface {
	Notify(ctx context.Context, recipientID, title, message string, kind Type) error
}

type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error
}

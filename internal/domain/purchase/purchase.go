package purchase

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("purchase: not found")
	ErrInvalidQuantity = errors.New("purchase: quantity must be greater than zero")
	ErrInvalidState    = errors.New("purchase: invalid payment status transition")
	ErrMissingField    = errors.New("purchase: required field missing")
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Purchase is a buyer's committed acquisition of a marketplace item. The total
// is always recomputed from quantity and the listing's price at call time;
// caller-supplied totals are never trusted.
type Purchase struct {
	ID            string
	ItemID        string
	BuyerID       string
	Quantity      int
	PricePerUnit  decimal.Decimal
	TotalAmount   decimal.Decimal
	PaymentStatus PaymentStatus
	Reference     string
	PurchasedAt   time.Time
}

func New(id, itemID, buyerID string, quantity int, pricePerUnit decimal.Decimal) (*Purchase, error) {
	if id == "" || itemID == "" || buyerID == "" {
		return nil, ErrMissingField
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Purchase{
		ID:            id,
		ItemID:        itemID,
		BuyerID:       buyerID,
		Quantity:      quantity,
		PricePerUnit:  pricePerUnit,
		TotalAmount:   pricePerUnit.Mul(decimal.NewFromInt(int64(quantity))),
		PaymentStatus: PaymentPending,
		PurchasedAt:   time.Now().UTC(),
	}, nil
}

// MarkCompleted records a cleared payment with the gateway's reference.
func (p *Purchase) MarkCompleted(reference string) error {
	if p.PaymentStatus != PaymentPending {
		return ErrInvalidState
	}
	p.PaymentStatus = PaymentCompleted
	p.Reference = reference
	return nil
}

func (p *Purchase) MarkFailed() error {
	if p.PaymentStatus != PaymentPending {
		return ErrInvalidState
	}
	p.PaymentStatus = PaymentFailed
	return nil
}

func (p *Purchase) MarkRefunded() error {
	if p.PaymentStatus != PaymentCompleted {
		return ErrInvalidState
	}
	p.PaymentStatus = PaymentRefunded
	return nil
}

func (p *Purchase) Clone() *Purchase {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

package listing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenloop/recyclemart/internal/domain/pickup"
)

var (
	ErrNotFound             = errors.New("listing: item not found")
	ErrConflict             = errors.New("listing: concurrent update conflict")
	ErrNotAvailable         = errors.New("listing: item is not available")
	ErrInvalidQuantity      = errors.New("listing: quantity must be greater than zero")
	ErrInsufficientQuantity = errors.New("listing: requested quantity exceeds stock")
	ErrAlreadyPublished     = errors.New("listing: item already exists for request")
)

// Item is the published, purchasable listing created from an approved pickup
// request. Quantity is the authoritative available stock; only the Ledger may
// mutate Quantity and IsAvailable.
type Item struct {
	ID              string
	SourceRequestID string
	OwnerID         string
	MaterialType    string
	Quantity        int
	Unit            string
	PricePerUnit    decimal.Decimal
	Description     string
	Images          []string
	IsAvailable     bool
	Version         int64
	PublishedAt     time.Time
}

// NewFromRequest snapshots an approved pickup request into a marketplace item.
// Quantity, unit, price, description, and images are copied verbatim.
func NewFromRequest(id string, r *pickup.Request) (*Item, error) {
	if id == "" || r == nil {
		return nil, errors.New("listing: id and source request are required")
	}
	if r.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{
		ID:              id,
		SourceRequestID: r.ID,
		OwnerID:         r.RequesterID,
		MaterialType:    r.MaterialType,
		Quantity:        r.Quantity,
		Unit:            r.Unit,
		PricePerUnit:    r.ProposedPricePerUnit,
		Description:     r.Description,
		Images:          append([]string(nil), r.Images...),
		IsAvailable:     true,
		Version:         1,
		PublishedAt:     time.Now().UTC(),
	}, nil
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Images = append([]string(nil), i.Images...)
	return &clone
}

package pickup

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("pickup: request not found")
	ErrConflict        = errors.New("pickup: concurrent update conflict")
	ErrInvalidState    = errors.New("pickup: invalid status transition")
	ErrInvalidQuantity = errors.New("pickup: quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("pickup: price per unit must be greater than zero")
	ErrMissingField    = errors.New("pickup: required field missing")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPickedUp  Status = "picked_up"
	StatusPublished Status = "published"
)

// Request is a submission of recyclable material awaiting administrative approval.
// Only the lifecycle orchestrator mutates it after creation.
type Request struct {
	ID                   string
	RequesterID          string
	MaterialType         string
	Quantity             int
	Unit                 string
	ProposedPricePerUnit decimal.Decimal
	Description          string
	Images               []string
	Status               Status
	AdminID              string
	AdminNotes           string
	RequestedAt          time.Time
	ApprovedAt           *time.Time
}

func New(id, requesterID, materialType, unit string, quantity int, pricePerUnit decimal.Decimal, description string, images []string) (*Request, error) {
	if id == "" || requesterID == "" || materialType == "" || unit == "" {
		return nil, ErrMissingField
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if pricePerUnit.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidPrice
	}

	return &Request{
		ID:                   id,
		RequesterID:          requesterID,
		MaterialType:         materialType,
		Quantity:             quantity,
		Unit:                 unit,
		ProposedPricePerUnit: pricePerUnit,
		Description:          description,
		Images:               append([]string(nil), images...),
		Status:               StatusPending,
		RequestedAt:          time.Now().UTC(),
	}, nil
}

// Total is the amount the gateway is charged on approval.
func (r *Request) Total() decimal.Decimal {
	return r.ProposedPricePerUnit.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// Approve moves a pending request to approved, recording the acting admin.
func (r *Request) Approve(adminID, notes string) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	now := time.Now().UTC()
	r.Status = StatusApproved
	r.AdminID = adminID
	r.AdminNotes = notes
	r.ApprovedAt = &now
	return nil
}

// Reject moves a pending request to its terminal rejected state.
func (r *Request) Reject(adminID, notes string) error {
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	r.Status = StatusRejected
	r.AdminID = adminID
	r.AdminNotes = notes
	return nil
}

// Publish is the only transition out of approved and is irreversible.
func (r *Request) Publish() error {
	if r.Status != StatusApproved {
		return ErrInvalidState
	}
	r.Status = StatusPublished
	return nil
}

// RevertApproval compensates a failed approval saga: the request returns to
// pending and all admin-supplied fields are cleared.
func (r *Request) RevertApproval() error {
	if r.Status != StatusApproved {
		return ErrInvalidState
	}
	r.Status = StatusPending
	r.AdminID = ""
	r.AdminNotes = ""
	r.ApprovedAt = nil
	return nil
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Images = append([]string(nil), r.Images...)
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		clone.ApprovedAt = &at
	}
	return &clone
}

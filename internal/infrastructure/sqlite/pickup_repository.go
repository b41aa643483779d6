package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/greenloop/recyclemart/internal/domain/pickup"
)

type PickupRepository struct {
	db *sql.DB
}

func NewPickupRepository(store *Store) *PickupRepository {
	return &PickupRepository{db: store.DB}
}

func (r *PickupRepository) Insert(ctx context.Context, request *domain.Request) error {
	if request == nil || request.ID == "" {
		return fmt.Errorf("pickup repository: id is required")
	}
	images, err := json.Marshal(request.Images)
	if err != nil {
		return fmt.Errorf("pickup repository: encode images: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pickup_requests
			(id, requester_id, material_type, quantity, unit, proposed_price_per_unit,
			 description, images, status, admin_id, admin_notes, requested_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID, request.RequesterID, request.MaterialType, request.Quantity,
		request.Unit, request.ProposedPricePerUnit.String(), request.Description,
		string(images), string(request.Status), request.AdminID, request.AdminNotes,
		request.RequestedAt, request.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("pickup repository: insert: %w", err)
	}
	return nil
}

func (r *PickupRepository) Get(ctx context.Context, id string) (*domain.Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, requester_id, material_type, quantity, unit, proposed_price_per_unit,
		       description, images, status, admin_id, admin_notes, requested_at, approved_at
		FROM pickup_requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (r *PickupRepository) Update(ctx context.Context, request *domain.Request, expectedStatus domain.Status) error {
	if request == nil || request.ID == "" {
		return fmt.Errorf("pickup repository: id is required")
	}
	images, err := json.Marshal(request.Images)
	if err != nil {
		return fmt.Errorf("pickup repository: encode images: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE pickup_requests
		SET status = ?, admin_id = ?, admin_notes = ?, approved_at = ?,
		    quantity = ?, proposed_price_per_unit = ?, description = ?, images = ?
		WHERE id = ? AND status = ?`,
		string(request.Status), request.AdminID, request.AdminNotes, request.ApprovedAt,
		request.Quantity, request.ProposedPricePerUnit.String(), request.Description,
		string(images), request.ID, string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("pickup repository: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pickup repository: rows affected: %w", err)
	}
	if n == 0 {
		// Either the row is gone or its status moved under us.
		if _, getErr := r.Get(ctx, request.ID); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.Request, error) {
	var (
		req        domain.Request
		price      string
		images     sql.NullString
		status     string
		adminID    sql.NullString
		adminNotes sql.NullString
		approvedAt sql.NullTime
	)
	err := row.Scan(&req.ID, &req.RequesterID, &req.MaterialType, &req.Quantity,
		&req.Unit, &price, &req.Description, &images, &status, &adminID,
		&adminNotes, &req.RequestedAt, &approvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pickup repository: scan: %w", err)
	}

	req.ProposedPricePerUnit, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("pickup repository: decode price: %w", err)
	}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &req.Images); err != nil {
			return nil, fmt.Errorf("pickup repository: decode images: %w", err)
		}
	}
	req.Status = domain.Status(status)
	req.AdminID = adminID.String
	req.AdminNotes = adminNotes.String
	if approvedAt.Valid {
		at := approvedAt.Time.UTC()
		req.ApprovedAt = &at
	}
	req.RequestedAt = req.RequestedAt.UTC()
	return &req, nil
}

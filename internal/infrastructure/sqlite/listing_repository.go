package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/greenloop/recyclemart/internal/domain/listing"
)

type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(store *Store) *ListingRepository {
	return &ListingRepository{db: store.DB}
}

func (r *ListingRepository) Insert(ctx context.Context, item *domain.Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("listing repository: id is required")
	}
	images, err := json.Marshal(item.Images)
	if err != nil {
		return fmt.Errorf("listing repository: encode images: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO marketplace_items
			(id, source_request_id, owner_id, material_type, quantity, unit,
			 price_per_unit, description, images, is_available, version, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SourceRequestID, item.OwnerID, item.MaterialType,
		item.Quantity, item.Unit, item.PricePerUnit.String(), item.Description,
		string(images), boolToInt(item.IsAvailable), item.Version, item.PublishedAt,
	)
	if err != nil {
		// The unique index on source_request_id enforces one item per request.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: marketplace_items.source_request_id") {
			return domain.ErrAlreadyPublished
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrConflict
		}
		return fmt.Errorf("listing repository: insert: %w", err)
	}
	return nil
}

func (r *ListingRepository) Get(ctx context.Context, id string) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, selectItem+` WHERE id = ?`, id)
	return scanItem(row)
}

func (r *ListingRepository) GetBySourceRequest(ctx context.Context, requestID string) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, selectItem+` WHERE source_request_id = ?`, requestID)
	return scanItem(row)
}

func (r *ListingRepository) Update(ctx context.Context, item *domain.Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("listing repository: id is required")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE marketplace_items
		SET quantity = ?, is_available = ?, price_per_unit = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		item.Quantity, boolToInt(item.IsAvailable), item.PricePerUnit.String(),
		item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("listing repository: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("listing repository: rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, item.ID); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	item.Version++
	return nil
}

func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM marketplace_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("listing repository: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("listing repository: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const selectItem = `
	SELECT id, source_request_id, owner_id, material_type, quantity, unit,
	       price_per_unit, description, images, is_available, version, published_at
	FROM marketplace_items`

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item      domain.Item
		price     string
		images    sql.NullString
		available int
	)
	err := row.Scan(&item.ID, &item.SourceRequestID, &item.OwnerID,
		&item.MaterialType, &item.Quantity, &item.Unit, &price,
		&item.Description, &images, &available, &item.Version, &item.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("listing repository: scan: %w", err)
	}

	item.PricePerUnit, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("listing repository: decode price: %w", err)
	}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &item.Images); err != nil {
			return nil, fmt.Errorf("listing repository: decode images: %w", err)
		}
	}
	item.IsAvailable = available != 0
	item.PublishedAt = item.PublishedAt.UTC()
	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

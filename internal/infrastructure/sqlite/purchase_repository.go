package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/greenloop/recyclemart/internal/domain/purchase"
)

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(store *Store) *PurchaseRepository {
	return &PurchaseRepository{db: store.DB}
}

func (r *PurchaseRepository) Insert(ctx context.Context, p *domain.Purchase) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("purchase repository: id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchases
			(id, item_id, buyer_id, quantity, price_per_unit, total_amount,
			 payment_status, reference, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ItemID, p.BuyerID, p.Quantity, p.PricePerUnit.String(),
		p.TotalAmount.String(), string(p.PaymentStatus), p.Reference, p.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("purchase repository: insert: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) Get(ctx context.Context, id string) (*domain.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, item_id, buyer_id, quantity, price_per_unit, total_amount,
		       payment_status, reference, purchased_at
		FROM purchases WHERE id = ?`, id)

	var (
		p         domain.Purchase
		price     string
		total     string
		status    string
		reference sql.NullString
	)
	err := row.Scan(&p.ID, &p.ItemID, &p.BuyerID, &p.Quantity, &price, &total,
		&status, &reference, &p.PurchasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("purchase repository: scan: %w", err)
	}

	if p.PricePerUnit, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("purchase repository: decode price: %w", err)
	}
	if p.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("purchase repository: decode total: %w", err)
	}
	p.PaymentStatus = domain.PaymentStatus(status)
	p.Reference = reference.String
	p.PurchasedAt = p.PurchasedAt.UTC()
	return &p, nil
}

func (r *PurchaseRepository) Update(ctx context.Context, p *domain.Purchase) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("purchase repository: id is required")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET payment_status = ?, reference = ? WHERE id = ?`,
		string(p.PaymentStatus), p.Reference, p.ID,
	)
	if err != nil {
		return fmt.Errorf("purchase repository: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("purchase repository: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PurchaseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("purchase repository: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("purchase repository: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

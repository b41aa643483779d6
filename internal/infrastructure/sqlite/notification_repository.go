package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/greenloop/recyclemart/internal/domain/notification"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(store *Store) *NotificationRepository {
	return &NotificationRepository{db: store.DB}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("notification repository: id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, title, message, type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.Title, n.Message, string(n.Type), boolToInt(n.IsRead), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("notification repository: insert: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, title, message, type, is_read, created_at
		FROM notifications WHERE recipient_id = ? ORDER BY created_at`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("notification repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var (
			n       domain.Notification
			kind    string
			isRead  int
			message sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &message, &kind, &isRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notification repository: scan: %w", err)
		}
		n.Message = message.String
		n.Type = domain.Type(kind)
		n.IsRead = isRead != 0
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("notification repository: mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notification repository: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

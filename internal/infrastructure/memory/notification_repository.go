package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/greenloop/recyclemart/internal/domain/notification"
)

type NotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		notifications: make(map[string]*domain.Notification),
	}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	_ = ctx
	if n == nil || n.ID == "" {
		return fmt.Errorf("notification repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *n
	r.notifications[n.ID] = &clone
	return nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Notification
	for _, n := range r.notifications {
		if n.RecipientID == recipientID {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.IsRead = true
	return nil
}

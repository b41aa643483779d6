package notifier

import (
	"context"
	"fmt"
	"time"

	domain "github.com/greenloop/recyclemart/internal/domain/notification"
	"github.com/greenloop/recyclemart/internal/observability"
)

type IDGenerator interface {
	NewID() string
}

// Dispatcher persists each message as a notification row and logs it. Delivery
// is best-effort; callers must not let a failure here affect saga outcomes.
type Dispatcher struct {
	repo  domain.Repository
	idGen IDGenerator
	log   observability.Logger
}

func New(repo domain.Repository, idGen IDGenerator, logger observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Dispatcher{
		repo:  repo,
		idGen: idGen,
		log:   logger.With(observability.F("component", "notifier")),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, recipientID, title, message string, kind domain.Type) error {
	if recipientID == "" {
		return fmt.Errorf("notifier: recipient is required")
	}
	n := &domain.Notification{
		ID:          d.idGen.NewID(),
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Type:        kind,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.repo.Insert(ctx, n); err != nil {
		return fmt.Errorf("notifier: persist: %w", err)
	}
	d.log.Info("notification_sent",
		observability.F("recipient_id", recipientID),
		observability.F("type", string(kind)),
	)
	return nil
}

package memory

import (
	"context"
	"sync"

	domain "github.com/greenloop/recyclemart/internal/domain/saga"
)

type SagaLog struct {
	mu      sync.RWMutex
	entries []domain.Entry
}

func NewSagaLog() *SagaLog {
	return &SagaLog{}
}

func (l *SagaLog) Append(ctx context.Context, e domain.Entry) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	return nil
}

func (l *SagaLog) Unresolved(ctx context.Context) ([]domain.Entry, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	settled := make(map[string]bool)
	for _, e := range l.entries {
		if e.State == domain.StateResolved || e.State == domain.StateCompensated {
			settled[e.ID] = true
		}
	}

	var out []domain.Entry
	for _, e := range l.entries {
		if e.State == domain.StateIntent && !settled[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a snapshot of every recorded entry in append order.
func (l *SagaLog) Entries() []domain.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Entry(nil), l.entries...)
}

package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/greenloop/recyclemart/internal/domain/pickup"
)

type PickupRepository struct {
	mu       sync.RWMutex
	requests map[string]*domain.Request
}

func NewPickupRepository() *PickupRepository {
	return &PickupRepository{
		requests: make(map[string]*domain.Request),
	}
}

func (r *PickupRepository) Insert(ctx context.Context, request *domain.Request) error {
	_ = ctx
	if request == nil || request.ID == "" {
		return fmt.Errorf("pickup repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[request.ID]; exists {
		return domain.ErrConflict
	}
	r.requests[request.ID] = request.Clone()
	return nil
}

func (r *PickupRepository) Get(ctx context.Context, id string) (*domain.Request, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return request.Clone(), nil
}

func (r *PickupRepository) Update(ctx context.Context, request *domain.Request, expectedStatus domain.Status) error {
	_ = ctx
	if request == nil || request.ID == "" {
		return fmt.Errorf("pickup repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.requests[request.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Status != expectedStatus {
		return domain.ErrConflict
	}
	r.requests[request.ID] = request.Clone()
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/greenloop/recyclemart/internal/domain/listing"
)

type ListingRepository struct {
	mu       sync.RWMutex
	items    map[string]*domain.Item
	bySource map[string]string
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items:    make(map[string]*domain.Item),
		bySource: make(map[string]string),
	}
}

func (r *ListingRepository) Insert(ctx context.Context, item *domain.Item) error {
	_ = ctx
	if item == nil || item.ID == "" {
		return fmt.Errorf("listing repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return domain.ErrConflict
	}
	if item.SourceRequestID != "" {
		if _, exists := r.bySource[item.SourceRequestID]; exists {
			return domain.ErrAlreadyPublished
		}
	}

	r.items[item.ID] = item.Clone()
	if item.SourceRequestID != "" {
		r.bySource[item.SourceRequestID] = item.ID
	}
	return nil
}

func (r *ListingRepository) Get(ctx context.Context, id string) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *ListingRepository) GetBySourceRequest(ctx context.Context, requestID string) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	itemID, ok := r.bySource[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	item, found := r.items[itemID]
	if !found {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

// Update applies the optimistic version check: the stored version must match
// the caller's snapshot, and the stored row advances to version+1.
func (r *ListingRepository) Update(ctx context.Context, item *domain.Item) error {
	_ = ctx
	if item == nil || item.ID == "" {
		return fmt.Errorf("listing repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.items[item.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Version != item.Version {
		return domain.ErrConflict
	}

	next := item.Clone()
	next.Version = item.Version + 1
	r.items[item.ID] = next
	item.Version = next.Version
	return nil
}

func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	if item.SourceRequestID != "" {
		delete(r.bySource, item.SourceRequestID)
	}
	return nil
}

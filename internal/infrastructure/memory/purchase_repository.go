package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/greenloop/recyclemart/internal/domain/purchase"
)

type PurchaseRepository struct {
	mu        sync.RWMutex
	purchases map[string]*domain.Purchase
}

func NewPurchaseRepository() *PurchaseRepository {
	return &PurchaseRepository{
		purchases: make(map[string]*domain.Purchase),
	}
}

func (r *PurchaseRepository) Insert(ctx context.Context, p *domain.Purchase) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("purchase repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.purchases[p.ID]; exists {
		return fmt.Errorf("purchase repository: duplicate id %s", p.ID)
	}
	r.purchases[p.ID] = p.Clone()
	return nil
}

func (r *PurchaseRepository) Get(ctx context.Context, id string) (*domain.Purchase, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.purchases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PurchaseRepository) Update(ctx context.Context, p *domain.Purchase) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("purchase repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.purchases[p.ID]; !exists {
		return domain.ErrNotFound
	}
	r.purchases[p.ID] = p.Clone()
	return nil
}

func (r *PurchaseRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.purchases[id]; !exists {
		return domain.ErrNotFound
	}
	delete(r.purchases, id)
	return nil
}

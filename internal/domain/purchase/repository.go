package purchase

import "context"

type Repository interface {
	Insert(ctx context.Context, p *Purchase) error
	Get(ctx context.Context, id string) (*Purchase, error)
	Update(ctx context.Context, p *Purchase) error
	// Delete removes a purchase row entirely; it is the compensating action
	// when the payment for a just-created purchase fails.
	Delete(ctx context.Context, id string) error
}

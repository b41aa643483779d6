package listing

import "context"

type Repository interface {
	// Insert fails with ErrAlreadyPublished when an item already exists for the
	// same source pickup request.
	Insert(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	GetBySourceRequest(ctx context.Context, requestID string) (*Item, error)
	// Update persists the item only when the stored version matches the item's
	// version, then bumps it. A mismatch returns ErrConflict; callers re-read
	// and retry. This is the optimistic check that prevents overselling under
	// concurrent purchases of the same item.
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id string) error
}

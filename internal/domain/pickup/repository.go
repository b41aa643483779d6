package pickup

import "context"

type Repository interface {
	Insert(ctx context.Context, request *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	// Update persists the request only when the stored row still carries
	// expectedStatus, returning ErrConflict otherwise. This guards against a
	// second concurrent approval interleaving with the first one's rollback.
	Update(ctx context.Context, request *Request, expectedStatus Status) error
}

package order

import "context"

// Store is the order persistence the payment flow depends on. MarkPaid and
// MarkFailed must be atomic per order: concurrent callers serialize, and a
// caller that finds the order already terminal gets Previous == Current.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	// MarkPaid moves a non-terminal order to completed and reduces stock
	// for its items exactly once.
	MarkPaid(ctx context.Context, id string) (Transition, error)
	// MarkFailed moves a non-terminal order to failed and records reason.
	MarkFailed(ctx context.Context, id, reason string) (Transition, error)
	AddNote(ctx context.Context, id, note string) error
}

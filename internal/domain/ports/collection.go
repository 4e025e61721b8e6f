package ports

import "context"

// CollectionManager handles the lifecycle of the fact index collection.
// Kept apart from FactIndex so the no-op index need not implement it.
type CollectionManager interface {
	// EnsureCollection creates the collection if it doesn't exist.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// DeleteCollection removes the collection and all its data.
	DeleteCollection(ctx context.Context) error

	// Count returns the number of indexed points.
	Count(ctx context.Context) (uint64, error)
}

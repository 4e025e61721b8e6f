package ports

import "context"

// Embedder turns fact descriptions and recall queries into vectors for the
// FactIndex. All vectors from one Embedder share a dimension.
type Embedder interface {
	// Embed returns the vector for a single recall query.
	Embed(ctx context.Context, query string) ([]float32, error)

	// EmbedBatch returns one vector per description, in input order.
	// An empty input returns an empty result without a remote call.
	EmbedBatch(ctx context.Context, descriptions []string) ([][]float32, error)
}

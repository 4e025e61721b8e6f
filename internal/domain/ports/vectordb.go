package ports

import (
	"context"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// FactHit is one semantic search result.
type FactHit struct {
	FactID      string  `json:"fact_id"`
	Cycle       int     `json:"cycle"`
	Description string  `json:"description"`
	Importance  int     `json:"importance"`
	Score       float32 `json:"score"`
}

// FactIndex stores fact embeddings for semantic recall. It mirrors the facts
// table and is never the source of truth.
type FactIndex interface {
	// IndexFacts stores facts with their embeddings, in the same order.
	IndexFacts(ctx context.Context, facts []*entities.Fact, embeddings [][]float32) error

	// SearchFacts returns the facts of a game closest to embedding.
	SearchFacts(ctx context.Context, gameID string, embedding []float32, limit int) ([]FactHit, error)

	// DeleteFactsAfter removes indexed facts of a game with cycle > cycle.
	DeleteFactsAfter(ctx context.Context, gameID string, cycle int) error
}

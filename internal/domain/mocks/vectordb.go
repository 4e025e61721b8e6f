package mocks

import (
	"context"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
)

// FactIndex is an in-memory implementation of ports.FactIndex.
type FactIndex struct {
	Facts []*entities.Fact
	Hits  []ports.FactHit
	Err   error

	// Call tracking
	IndexCallCount       int
	SearchCallCount      int
	DeleteAfterCallCount int
	LastDeleteCycle      int
}

// IndexFacts appends the facts to the index.
func (m *FactIndex) IndexFacts(ctx context.Context, facts []*entities.Fact, embeddings [][]float32) error {
	m.IndexCallCount++
	if m.Err != nil {
		return m.Err
	}
	m.Facts = append(m.Facts, facts...)
	return nil
}

// SearchFacts returns the configured hits, capped at limit.
func (m *FactIndex) SearchFacts(ctx context.Context, gameID string, embedding []float32, limit int) ([]ports.FactHit, error) {
	m.SearchCallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && limit < len(m.Hits) {
		return m.Hits[:limit], nil
	}
	return m.Hits, nil
}

// DeleteFactsAfter drops indexed facts of the game past cycle.
func (m *FactIndex) DeleteFactsAfter(ctx context.Context, gameID string, cycle int) error {
	m.DeleteAfterCallCount++
	m.LastDeleteCycle = cycle
	if m.Err != nil {
		return m.Err
	}
	kept := m.Facts[:0]
	for _, f := range m.Facts {
		if f.GameID != gameID || f.Cycle <= cycle {
			kept = append(kept, f)
		}
	}
	m.Facts = kept
	return nil
}

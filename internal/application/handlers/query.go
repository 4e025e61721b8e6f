package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// QueryHandler handles semantic fact queries.
type QueryHandler struct {
	reader *services.Reader
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(reader *services.Reader) *QueryHandler {
	return &QueryHandler{
		reader: reader,
	}
}

// QueryResult contains the result of a query.
type QueryResult struct {
	Query string          `json:"query"`
	Hits  []ports.FactHit `json:"hits"`
}

// Handle searches the facts of a game closest to query.
func (h *QueryHandler) Handle(ctx context.Context, gameID, query string, limit int) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}

	hits, err := h.reader.SearchFacts(ctx, gameID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching facts: %w", err)
	}

	return &QueryResult{
		Query: query,
		Hits:  hits,
	}, nil
}

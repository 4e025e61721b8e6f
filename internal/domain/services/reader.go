package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
)

// DefaultSearchLimit is the default number of results to return.
const DefaultSearchLimit = 10

// Reader answers history and recall queries over the world state.
type Reader struct {
	store    ports.GraphReader
	index    ports.FactIndex
	embedder ports.Embedder
	floor    float64
}

// NewReader creates a new Reader. index and embedder may be nil, which
// disables SearchFacts.
func NewReader(store ports.GraphReader, index ports.FactIndex, embedder ports.Embedder) *Reader {
	if index == nil {
		index = NopFactIndex{}
	}
	return &Reader{
		store:    store,
		index:    index,
		embedder: embedder,
		floor:    DefaultSimilarityFloor,
	}
}

// Game returns a game, or ErrGameNotFound.
func (r *Reader) Game(ctx context.Context, gameID string) (*entities.Game, error) {
	game, err := r.store.FindGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("finding game: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrGameNotFound, gameID)
	}
	return game, nil
}

// Games lists every game.
func (r *Reader) Games(ctx context.Context) ([]*entities.Game, error) {
	games, err := r.store.ListGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	return games, nil
}

// Entities lists the entities of a game, optionally of one type.
func (r *Reader) Entities(ctx context.Context, gameID string, filter ports.EntityFilter) ([]*entities.Entity, error) {
	list, err := r.store.ListEntities(ctx, gameID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	return list, nil
}

// Changes returns the latest changelog entries of a game.
func (r *Reader) Changes(ctx context.Context, gameID string, limit int) ([]*entities.ChangeEntry, error) {
	changes, err := r.store.ListChanges(ctx, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing changes: %w", err)
	}
	return changes, nil
}

// Messages returns the latest messages of a game, oldest first.
func (r *Reader) Messages(ctx context.Context, gameID string, limit int) ([]*entities.Message, error) {
	msgs, err := r.store.RecentMessages(ctx, gameID, false, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// CreditLedger returns the protagonist's credit transactions in order.
func (r *Reader) CreditLedger(ctx context.Context, gameID string) ([]*entities.CreditTransaction, error) {
	txs, err := r.store.ListCreditTransactions(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing credit transactions: %w", err)
	}
	return txs, nil
}

// KnownEntityNames returns the names of every active entity of a game.
func (r *Reader) KnownEntityNames(ctx context.Context, gameID string) ([]string, error) {
	names, err := r.store.EntityNames(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing entity names: %w", err)
	}
	return names, nil
}

// FindEntity resolves a name, alias or ID to an active entity.
func (r *Reader) FindEntity(ctx context.Context, gameID, ref string) (*entities.Entity, error) {
	reg, err := LoadRegistry(ctx, r.store, gameID, r.floor)
	if err != nil {
		return nil, err
	}
	res := reg.Resolve(strings.TrimSpace(ref), "")
	if res.Status != Resolved {
		return nil, res.Err(ref)
	}
	return res.Entity, nil
}

// Entity returns an entity by ID, removed or not.
func (r *Reader) Entity(ctx context.Context, entityID string) (*entities.Entity, error) {
	entity, err := r.store.FindEntityByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrEntityNotFound, entityID)
	}
	return entity, nil
}

// Details returns the type-specific details of an entity. Entities created
// without details yield an empty value.
func (r *Reader) Details(ctx context.Context, entityID string) (*entities.EntityDetails, error) {
	details, err := r.store.FindDetails(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("finding details: %w", err)
	}
	if details == nil {
		return &entities.EntityDetails{EntityID: entityID}, nil
	}
	return details, nil
}

// GetAttributes returns the active attributes of an entity.
func (r *Reader) GetAttributes(ctx context.Context, entityID string) ([]*entities.Attribute, error) {
	attrs, err := r.store.ActiveAttributes(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("reading attributes: %w", err)
	}
	return attrs, nil
}

// GetAttributesAt returns the attributes of an entity as they were at cycle.
func (r *Reader) GetAttributesAt(ctx context.Context, entityID string, cycle int) ([]*entities.Attribute, error) {
	if cycle < 1 {
		return nil, fmt.Errorf("%w: %d", entities.ErrInvalidCycle, cycle)
	}
	attrs, err := r.store.AttributesAt(ctx, entityID, cycle)
	if err != nil {
		return nil, fmt.Errorf("reading attributes at cycle %d: %w", cycle, err)
	}
	return attrs, nil
}

// AttributeHistory returns every version of one attribute, oldest first.
func (r *Reader) AttributeHistory(ctx context.Context, entityID, key string) ([]*entities.Attribute, error) {
	history, err := r.store.AttributeHistory(ctx, entityID, entities.AttributeKey(strings.ToLower(strings.TrimSpace(key))))
	if err != nil {
		return nil, fmt.Errorf("reading %s history: %w", key, err)
	}
	return history, nil
}

// RelationsAt returns the relations of an entity valid at cycle, or the
// active ones when cycle is 0.
func (r *Reader) RelationsAt(ctx context.Context, entityID string, cycle int) ([]*entities.Relationship, error) {
	filter := ports.RelationFilter{EntityID: entityID}
	if cycle > 0 {
		filter.AtCycle = &cycle
	}
	rels, err := r.store.ListRelations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	return rels, nil
}

// SearchFacts finds the facts of a game semantically closest to query.
func (r *Reader) SearchFacts(ctx context.Context, gameID, query string, limit int) ([]ports.FactHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if r.embedder == nil {
		return nil, errors.New("semantic search is not configured")
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}

	hits, err := r.index.SearchFacts(ctx, gameID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("searching facts: %w", err)
	}
	return hits, nil
}

// NopFactIndex is the fact index used when no vector store is configured.
type NopFactIndex struct{}

func (NopFactIndex) IndexFacts(context.Context, []*entities.Fact, [][]float32) error { return nil }

func (NopFactIndex) SearchFacts(context.Context, string, []float32, int) ([]ports.FactHit, error) {
	return nil, nil
}

func (NopFactIndex) DeleteFactsAfter(context.Context, string, int) error { return nil }

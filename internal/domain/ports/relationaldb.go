package ports

import (
	"context"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// GraphStore is the temporal world-state store. Reads may happen anywhere;
// writes only happen inside WithTx, through the GraphTx handed to fn.
type GraphStore interface {
	GraphReader

	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// WithTx runs fn in a transaction. Any error returned by fn rolls the
	// whole transaction back.
	WithTx(ctx context.Context, fn func(tx GraphTx) error) error
}

// GraphTx is the store bound to a transaction.
type GraphTx interface {
	GraphReader
	GraphWriter
	Reverter
}

// EntityFilter narrows ListEntities.
type EntityFilter struct {
	Type           entities.EntityType
	IncludeRemoved bool
	Limit          int
	Offset         int
}

// RelationFilter narrows ListRelations. Zero fields do not filter.
// EntityID matches either side of the relation.
type RelationFilter struct {
	GameID   string
	EntityID string
	SourceID string
	TargetID string
	Types    []entities.RelationType
	// AtCycle selects the versions valid at that cycle instead of the active ones.
	AtCycle *int
	// AllVersions returns closed versions too. Ignored when AtCycle is set.
	AllVersions bool
}

// FactFilter narrows ListFacts. Results are ordered by importance desc then
// cycle desc.
type FactFilter struct {
	GameID         string
	MinCycle       int
	MaxCycle       int // 0 means no upper bound
	MinImportance  int
	LocationID     string
	ParticipantIDs []string
	Limit          int
}

// EventFilter narrows ListEvents. Results are ordered by planned cycle.
type EventFilter struct {
	GameID    string
	Status    entities.EventStatus
	FromCycle int
	Limit     int
}

// RelatedEntity is an entity reached through a relation.
type RelatedEntity struct {
	Entity   *entities.Entity
	Relation *entities.Relationship
}

// GraphReader holds the side-effect-free queries over the store.
// Find methods return (nil, nil) when nothing matches.
type GraphReader interface {
	// Games

	FindGame(ctx context.Context, gameID string) (*entities.Game, error)
	ListGames(ctx context.Context) ([]*entities.Game, error)

	// Entities

	FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error)

	// FindEntityByName finds an active entity by its normalized name.
	FindEntityByName(ctx context.Context, gameID, name string) (*entities.Entity, error)

	ListEntities(ctx context.Context, gameID string, filter EntityFilter) ([]*entities.Entity, error)
	FindProtagonist(ctx context.Context, gameID string) (*entities.Entity, error)
	FindDetails(ctx context.Context, entityID string) (*entities.EntityDetails, error)

	// EntityNames returns the names of all active entities, sorted.
	EntityNames(ctx context.Context, gameID string) ([]string, error)

	// Attributes

	ActiveAttribute(ctx context.Context, entityID string, key entities.AttributeKey) (*entities.Attribute, error)
	ActiveAttributes(ctx context.Context, entityID string) ([]*entities.Attribute, error)

	// AttributesAt returns, per key, the version valid at cycle.
	AttributesAt(ctx context.Context, entityID string, cycle int) ([]*entities.Attribute, error)

	// AttributeHistory returns every version of a key, oldest first.
	AttributeHistory(ctx context.Context, entityID string, key entities.AttributeKey) ([]*entities.Attribute, error)

	// Relations

	ActiveRelation(ctx context.Context, sourceID, targetID string, relType entities.RelationType) (*entities.Relationship, error)
	ListRelations(ctx context.Context, filter RelationFilter) ([]*entities.Relationship, error)

	// ConnectedLocations returns active locations sharing the sector of
	// locationID or linked to it by located_in/connected_to, by name.
	ConnectedLocations(ctx context.Context, locationID string, limit int) ([]*entities.Entity, error)

	// LinkedSources returns active entities of sourceType holding an active
	// relation of one of relTypes towards targetID, by name.
	LinkedSources(ctx context.Context, targetID string, sourceType entities.EntityType, relTypes []entities.RelationType, limit int) ([]*entities.Entity, error)

	// RelatedByLevel returns active entities of otherType related to entityID
	// in either direction by one of relTypes, highest social level first,
	// unleveled last. An entity appears once, with its best relation.
	RelatedByLevel(ctx context.Context, entityID string, otherType entities.EntityType, relTypes []entities.RelationType, limit int) ([]RelatedEntity, error)

	// Facts

	FindFactByKey(ctx context.Context, gameID string, cycle int, semanticKey string) (*entities.Fact, error)
	ListFacts(ctx context.Context, filter FactFilter) ([]*entities.Fact, error)

	// Commitments and events

	// ListCommitments returns commitments by type priority, then deadline
	// (none last), then creation.
	ListCommitments(ctx context.Context, gameID string, unresolvedOnly bool, limit int) ([]*entities.Commitment, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*entities.ScheduledEvent, error)
	FindEvent(ctx context.Context, eventID string) (*entities.ScheduledEvent, error)

	// Messages and summaries

	FindMessage(ctx context.Context, gameID, messageID string) (*entities.Message, error)

	// RecentMessages returns the latest limit messages, oldest first.
	RecentMessages(ctx context.Context, gameID string, withSummaryOnly bool, limit int) ([]*entities.Message, error)

	// CycleSummaries returns the latest limit summaries before cycle, oldest first.
	CycleSummaries(ctx context.Context, gameID string, beforeCycle, limit int) ([]*entities.CycleSummary, error)

	ListCreditTransactions(ctx context.Context, gameID string) ([]*entities.CreditTransaction, error)
	ListChanges(ctx context.Context, gameID string, limit int) ([]*entities.ChangeEntry, error)
}

// GraphWriter holds the row-level write primitives. They do not enforce the
// versioning invariants on their own; the populator composes them inside a
// transaction.
type GraphWriter interface {
	InsertGame(ctx context.Context, game *entities.Game) error
	UpdateGameCycle(ctx context.Context, gameID string, cycle int) error

	// InsertEntity stores the entity row and its aliases.
	InsertEntity(ctx context.Context, entity *entities.Entity) error
	InsertDetails(ctx context.Context, entityID string, entityType entities.EntityType, details entities.EntityDetails) error
	MarkEntityRemoved(ctx context.Context, entityID string, cycle int) error

	InsertAttribute(ctx context.Context, attr *entities.Attribute) error
	CloseAttribute(ctx context.Context, attrID string, endCycle, closedCycle int, supersededBy string) error

	// InsertRelation stores the relation row and its category extension row.
	InsertRelation(ctx context.Context, rel *entities.Relationship) error
	CloseRelation(ctx context.Context, relID string, endCycle, closedCycle int, supersededBy string) error

	// InsertFact stores the fact unless (game, cycle, semantic key) exists.
	// It reports whether a row was inserted.
	InsertFact(ctx context.Context, fact *entities.Fact) (bool, error)

	InsertCommitment(ctx context.Context, c *entities.Commitment) error
	ResolveCommitment(ctx context.Context, commitmentID string, cycle int, resolution string) error

	InsertEvent(ctx context.Context, e *entities.ScheduledEvent) error
	CloseEvent(ctx context.Context, eventID string, status entities.EventStatus, cycle int) error

	// InsertMessage stores the message and assigns its Seq.
	InsertMessage(ctx context.Context, m *entities.Message) error
	UpsertCycleSummary(ctx context.Context, s *entities.CycleSummary) error
	InsertCreditTransaction(ctx context.Context, t *entities.CreditTransaction) error

	LogChange(ctx context.Context, entry *entities.ChangeEntry) error
}

// Reverter undoes write primitives past a cycle boundary. Each method is the
// inverse of one GraphWriter method and returns the number of rows touched.
type Reverter interface {
	DeleteAttributesStartedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	ReopenAttributesClosedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteRelationsStartedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	ReopenRelationsClosedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteEntitiesCreatedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	RestoreEntitiesRemovedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteFactsAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteCommitmentsCreatedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	ReopenCommitmentsResolvedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteEventsCreatedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	ReopenEventsClosedAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteCreditTransactionsAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteCycleSummariesAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	DeleteChangesAfter(ctx context.Context, gameID string, cycle int) (int64, error)
	// DeleteMessagesFrom deletes messages with seq >= fromSeq.
	DeleteMessagesFrom(ctx context.Context, gameID string, fromSeq int64) (int64, error)
}

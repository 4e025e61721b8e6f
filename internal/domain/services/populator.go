package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultStartingCredits is the protagonist's balance at world creation.
const DefaultStartingCredits = 1400

// PopulatorOptions holds the write policies of the populator.
type PopulatorOptions struct {
	// AllowNegativeCredits lets a credit transaction overdraw the balance.
	AllowNegativeCredits bool
	// SimilarityFloor is the minimum fuzzy score for reference resolution.
	SimilarityFloor float64
	StartingCredits int
}

// DefaultPopulatorOptions returns the default write policies.
func DefaultPopulatorOptions() PopulatorOptions {
	return PopulatorOptions{
		AllowNegativeCredits: true,
		SimilarityFloor:      DefaultSimilarityFloor,
		StartingCredits:      DefaultStartingCredits,
	}
}

// Populator is the only writer of the world state. Every multi-row write runs
// in one store transaction and is recorded in the change log.
type Populator struct {
	store    ports.GraphStore
	index    ports.FactIndex
	embedder ports.Embedder
	opts     PopulatorOptions
	logger   *zap.Logger
}

// NewPopulator creates a new Populator. index and embedder may be nil, in
// which case stored facts are not indexed for semantic recall.
func NewPopulator(store ports.GraphStore, index ports.FactIndex, embedder ports.Embedder, opts PopulatorOptions, logger *zap.Logger) *Populator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SimilarityFloor <= 0 {
		opts.SimilarityFloor = DefaultSimilarityFloor
	}
	if index == nil || embedder == nil {
		index = NopFactIndex{}
	}
	return &Populator{
		store:    store,
		index:    index,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

func newID() string {
	return uuid.New().String()
}

// closeEnd is the end cycle of a version closed by a write at cycle.
func closeEnd(startCycle, cycle int) int {
	return max(cycle-1, startCycle)
}

// txWriter composes the store primitives inside one transaction.
type txWriter struct {
	tx     ports.GraphTx
	gameID string
	opts   PopulatorOptions
	logger *zap.Logger
	reg    *Registry
	stats  *ApplyStats
	writes int
	facts  []*entities.Fact

	protagonist *entities.Entity
}

func (p *Populator) newWriter(tx ports.GraphTx, gameID string) *txWriter {
	return &txWriter{
		tx:     tx,
		gameID: gameID,
		opts:   p.opts,
		logger: p.logger,
		stats:  &ApplyStats{},
	}
}

func (w *txWriter) logChange(ctx context.Context, cycle int, action entities.ChangeAction, targetID string, details map[string]any) error {
	w.writes++
	err := w.tx.LogChange(ctx, &entities.ChangeEntry{
		GameID:   w.gameID,
		Cycle:    cycle,
		Action:   action,
		TargetID: targetID,
		Details:  details,
	})
	if err != nil {
		return fmt.Errorf("logging %s: %w", action, err)
	}
	return nil
}

func (w *txWriter) requireProtagonist(ctx context.Context) (*entities.Entity, error) {
	if w.protagonist != nil {
		return w.protagonist, nil
	}
	pro, err := w.tx.FindProtagonist(ctx, w.gameID)
	if err != nil {
		return nil, fmt.Errorf("finding protagonist: %w", err)
	}
	if pro == nil {
		return nil, fmt.Errorf("%w: game %s has no protagonist", entities.ErrEntityNotFound, w.gameID)
	}
	w.protagonist = pro
	return pro, nil
}

// resolve resolves ref through the batch registry, or the store when the
// writer has none.
func (w *txWriter) resolve(ctx context.Context, ref string, expectedType entities.EntityType) (*entities.Entity, error) {
	if w.reg == nil {
		reg, err := LoadRegistry(ctx, w.tx, w.gameID, w.opts.SimilarityFloor)
		if err != nil {
			return nil, err
		}
		w.reg = reg
	}
	res := w.reg.Resolve(ref, expectedType)
	if res.Status != Resolved {
		return nil, res.Err(ref)
	}
	return res.Entity, nil
}

type normalizedAttr struct {
	key   entities.AttributeKey
	value entities.Value
}

// normalizeAttributes validates every key against t before anything is
// written, in key order.
func normalizeAttributes(t entities.EntityType, attrs map[string]entities.Value) ([]normalizedAttr, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]normalizedAttr, 0, len(keys))
	for _, k := range keys {
		key, v, err := entities.NormalizeAttribute(t, k, attrs[k])
		if err != nil {
			return nil, err
		}
		out = append(out, normalizedAttr{key: key, value: v})
	}
	return out, nil
}

// createEntity inserts an entity, its details row and its initial attributes.
func (w *txWriter) createEntity(ctx context.Context, in entities.EntityCreated, cycle int) (*entities.Entity, error) {
	t, err := entities.ParseEntityType(in.EntityType)
	if err != nil {
		return nil, err
	}
	name := strings.Join(strings.Fields(in.Name), " ")
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is empty", entities.ErrInvalidValue)
	}
	details, err := entities.DecodeDetails(t, in.Data.Details)
	if err != nil {
		return nil, err
	}
	attrs, err := normalizeAttributes(t, in.Data.Attributes)
	if err != nil {
		return nil, err
	}

	existing, err := w.tx.FindEntityByName(ctx, w.gameID, name)
	if err != nil {
		return nil, fmt.Errorf("checking entity name: %w", err)
	}
	if existing != nil {
		return existing, fmt.Errorf("%w: %s", entities.ErrDuplicateName, name)
	}
	if t == entities.EntityProtagonist {
		pro, err := w.tx.FindProtagonist(ctx, w.gameID)
		if err != nil {
			return nil, fmt.Errorf("finding protagonist: %w", err)
		}
		if pro != nil {
			return nil, fmt.Errorf("%w: game already has protagonist %s", entities.ErrDuplicateName, pro.Name)
		}
	}

	known := true
	if in.Data.Known != nil {
		known = *in.Data.Known
	}
	entity := &entities.Entity{
		ID:           newID(),
		GameID:       w.gameID,
		Type:         t,
		Name:         name,
		Aliases:      in.Data.Aliases,
		Known:        known,
		UnknownAlias: in.Data.UnknownAlias,
		CreatedCycle: cycle,
	}

	w.writes++
	if err := w.tx.InsertEntity(ctx, entity); err != nil {
		return nil, err
	}
	if err := w.tx.InsertDetails(ctx, entity.ID, t, details); err != nil {
		return nil, err
	}
	if err := w.logChange(ctx, cycle, entities.ActionEntityCreated, entity.ID, map[string]any{
		"name": entity.Name,
		"type": string(t),
	}); err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if _, err := w.setAttribute(ctx, entity, a.key, a.value, cycle); err != nil {
			return nil, err
		}
	}

	if t == entities.EntityProtagonist {
		w.protagonist = entity
	}
	if w.reg != nil {
		w.reg.Add(entity)
	}
	w.stats.EntitiesCreated++
	return entity, nil
}

// setAttribute closes the active version of key, if any, and inserts the new
// one. Identical values still produce a new version.
func (w *txWriter) setAttribute(ctx context.Context, entity *entities.Entity, key entities.AttributeKey, value entities.Value, cycle int) (*entities.Attribute, error) {
	active, err := w.tx.ActiveAttribute(ctx, entity.ID, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if active != nil && cycle < active.StartCycle {
		return nil, fmt.Errorf("%w: %s changed at cycle %d before its version from cycle %d", entities.ErrInvalidCycle, key, cycle, active.StartCycle)
	}

	attr := &entities.Attribute{
		ID:         newID(),
		EntityID:   entity.ID,
		Key:        key,
		Value:      value,
		StartCycle: cycle,
	}
	details := map[string]any{"key": string(key), "value": value.String()}
	if active != nil {
		w.writes++
		if err := w.tx.CloseAttribute(ctx, active.ID, closeEnd(active.StartCycle, cycle), cycle, attr.ID); err != nil {
			return nil, err
		}
		details["previous"] = active.Value.String()
	}
	w.writes++
	if err := w.tx.InsertAttribute(ctx, attr); err != nil {
		return nil, err
	}
	if err := w.logChange(ctx, cycle, entities.ActionAttributeSet, entity.ID, details); err != nil {
		return nil, err
	}
	w.stats.AttributesSet++
	return attr, nil
}

// numberAttribute returns the active numeric value of key, or fallback.
func (w *txWriter) numberAttribute(ctx context.Context, entityID string, key entities.AttributeKey, fallback float64) (float64, error) {
	active, err := w.tx.ActiveAttribute(ctx, entityID, key)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	if active == nil || active.Value.Kind != entities.KindNumber {
		return fallback, nil
	}
	return active.Value.Num, nil
}

func (w *txWriter) removeEntity(ctx context.Context, entity *entities.Entity, cycle int) error {
	w.writes++
	if err := w.tx.MarkEntityRemoved(ctx, entity.ID, cycle); err != nil {
		return err
	}
	return w.logChange(ctx, cycle, entities.ActionEntityRemoved, entity.ID, map[string]any{"name": entity.Name})
}

// createRelation inserts a relation and its category row. An active relation
// with the same triple is a duplicate.
func (w *txWriter) createRelation(ctx context.Context, rel *entities.Relationship) (*entities.Relationship, error) {
	category := rel.Type.Category()
	if category == "" {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidRelationType, rel.Type)
	}
	if rel.SourceEntityID == rel.TargetEntityID {
		return nil, fmt.Errorf("%w: %s relation from an entity to itself", entities.ErrInvalidValue, rel.Type)
	}
	attrs, err := rel.Attributes.ForCategory(category)
	if err != nil {
		return nil, err
	}
	active, err := w.tx.ActiveRelation(ctx, rel.SourceEntityID, rel.TargetEntityID, rel.Type)
	if err != nil {
		return nil, fmt.Errorf("checking relation: %w", err)
	}
	if active != nil {
		return active, fmt.Errorf("%w: %s", entities.ErrDuplicateRelation, rel.Type)
	}

	rel.ID = newID()
	rel.GameID = w.gameID
	rel.Attributes = attrs
	rel.EndCycle, rel.ClosedCycle, rel.SupersededBy = nil, nil, ""

	w.writes++
	if err := w.tx.InsertRelation(ctx, rel); err != nil {
		return nil, err
	}
	if err := w.logChange(ctx, rel.StartCycle, entities.ActionRelationCreated, rel.ID, map[string]any{
		"source": rel.SourceEntityID,
		"target": rel.TargetEntityID,
		"type":   string(rel.Type),
	}); err != nil {
		return nil, err
	}
	w.stats.RelationsCreated++
	return rel, nil
}

// supersedeRelation closes active and inserts a copy carrying attrs.
func (w *txWriter) supersedeRelation(ctx context.Context, active *entities.Relationship, attrs entities.RelationAttributes, cycle int) (*entities.Relationship, error) {
	if cycle < active.StartCycle {
		return nil, fmt.Errorf("%w: %s changed at cycle %d before its version from cycle %d", entities.ErrInvalidCycle, active.Type, cycle, active.StartCycle)
	}
	attrs, err := attrs.ForCategory(active.Type.Category())
	if err != nil {
		return nil, err
	}
	next := &entities.Relationship{
		ID:                 newID(),
		GameID:             w.gameID,
		SourceEntityID:     active.SourceEntityID,
		TargetEntityID:     active.TargetEntityID,
		Type:               active.Type,
		KnownByProtagonist: active.KnownByProtagonist,
		StartCycle:         cycle,
		Attributes:         attrs,
	}

	w.writes++
	if err := w.tx.CloseRelation(ctx, active.ID, closeEnd(active.StartCycle, cycle), cycle, next.ID); err != nil {
		return nil, err
	}
	w.writes++
	if err := w.tx.InsertRelation(ctx, next); err != nil {
		return nil, err
	}
	details := map[string]any{"type": string(next.Type), "previous": active.ID}
	if level := attrs.Level(); level != nil {
		details["level"] = *level
	}
	if err := w.logChange(ctx, cycle, entities.ActionRelationUpdated, next.ID, details); err != nil {
		return nil, err
	}
	w.stats.RelationsUpdated++
	return next, nil
}

func (w *txWriter) endRelation(ctx context.Context, active *entities.Relationship, cycle int) error {
	if cycle < active.StartCycle {
		return fmt.Errorf("%w: %s ended at cycle %d before it started at %d", entities.ErrInvalidCycle, active.Type, cycle, active.StartCycle)
	}
	w.writes++
	if err := w.tx.CloseRelation(ctx, active.ID, closeEnd(active.StartCycle, cycle), cycle, ""); err != nil {
		return err
	}
	if err := w.logChange(ctx, cycle, entities.ActionRelationEnded, active.ID, map[string]any{"type": string(active.Type)}); err != nil {
		return err
	}
	w.stats.RelationsEnded++
	return nil
}

// createFact stores a fact unless its (cycle, semantic key) already exists.
func (w *txWriter) createFact(ctx context.Context, fact *entities.Fact) (bool, error) {
	fact.GameID = w.gameID
	if fact.ID == "" {
		fact.ID = newID()
	}
	if fact.SemanticKey == "" {
		fact.SemanticKey = entities.SemanticKey(fact.Type, fact.Description)
	}
	if err := fact.Validate(); err != nil {
		return false, err
	}
	w.writes++
	inserted, err := w.tx.InsertFact(ctx, fact)
	if err != nil {
		return false, err
	}
	if !inserted {
		w.stats.FactsDeduplicated++
		return false, nil
	}
	if err := w.logChange(ctx, fact.Cycle, entities.ActionFactCreated, fact.ID, map[string]any{
		"type":       string(fact.Type),
		"importance": fact.Importance,
	}); err != nil {
		return false, err
	}
	w.facts = append(w.facts, fact)
	w.stats.FactsCreated++
	return true, nil
}

// creditTransaction appends a ledger row and writes the new balance as a new
// credits version of the protagonist.
func (w *txWriter) creditTransaction(ctx context.Context, amount, cycle int, description string) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: amount is zero", entities.ErrInvalidValue)
	}
	pro, err := w.requireProtagonist(ctx)
	if err != nil {
		return 0, err
	}
	current, err := w.numberAttribute(ctx, pro.ID, entities.AttrCredits, 0)
	if err != nil {
		return 0, err
	}
	balance := int(current) + amount
	if balance < 0 && !w.opts.AllowNegativeCredits {
		return int(current), fmt.Errorf("%w: balance %d, amount %d", entities.ErrInsufficientFunds, int(current), amount)
	}

	ledger := &entities.CreditTransaction{
		GameID:       w.gameID,
		Cycle:        cycle,
		Amount:       amount,
		Description:  description,
		BalanceAfter: balance,
	}
	w.writes++
	if err := w.tx.InsertCreditTransaction(ctx, ledger); err != nil {
		return 0, err
	}
	if _, err := w.setAttribute(ctx, pro, entities.AttrCredits, entities.NumberValue(float64(balance)), cycle); err != nil {
		return 0, err
	}
	if err := w.logChange(ctx, cycle, entities.ActionCreditTransaction, ledger.ID, map[string]any{
		"amount":      amount,
		"balance":     balance,
		"description": description,
	}); err != nil {
		return 0, err
	}
	w.stats.CreditTransactions++
	return balance, nil
}

// applyGauge adds delta to a protagonist gauge, clamped to its bounds.
func (w *txWriter) applyGauge(ctx context.Context, gauge entities.Gauge, delta float64, cycle int) (float64, error) {
	pro, err := w.requireProtagonist(ctx)
	if err != nil {
		return 0, err
	}
	key := entities.AttributeKey(gauge)
	current, err := w.numberAttribute(ctx, pro.ID, key, entities.GaugeMax)
	if err != nil {
		return 0, err
	}
	next := entities.ClampGauge(current + delta)
	if _, err := w.setAttribute(ctx, pro, key, entities.NumberValue(next), cycle); err != nil {
		return 0, err
	}
	w.stats.GaugeChanges++
	return next, nil
}

func (w *txWriter) createCommitment(ctx context.Context, in entities.CommitmentCreated, cycle int) (*entities.Commitment, error) {
	t, err := entities.ParseCommitmentType(in.CommitmentType)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: commitment description is empty", entities.ErrInvalidValue)
	}
	c := &entities.Commitment{
		ID:            newID(),
		GameID:        w.gameID,
		Type:          t,
		Description:   description,
		CreatedCycle:  cycle,
		DeadlineCycle: in.DeadlineCycle,
	}
	w.writes++
	if err := w.tx.InsertCommitment(ctx, c); err != nil {
		return nil, err
	}
	if err := w.logChange(ctx, cycle, entities.ActionCommitmentCreated, c.ID, map[string]any{"type": string(t)}); err != nil {
		return nil, err
	}
	w.stats.CommitmentsCreated++
	return c, nil
}

// resolveCommitment resolves the first unresolved commitment whose
// description contains text, or is contained in it, ignoring case. It
// returns nil when nothing matches.
func (w *txWriter) resolveCommitment(ctx context.Context, text, resolution string, cycle int) (*entities.Commitment, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, fmt.Errorf("%w: commitment description is empty", entities.ErrInvalidValue)
	}
	open, err := w.tx.ListCommitments(ctx, w.gameID, true, 0)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	for _, c := range open {
		desc := strings.ToLower(c.Description)
		if !strings.Contains(desc, needle) && !strings.Contains(needle, desc) {
			continue
		}
		w.writes++
		if err := w.tx.ResolveCommitment(ctx, c.ID, cycle, resolution); err != nil {
			return nil, err
		}
		if err := w.logChange(ctx, cycle, entities.ActionCommitmentResolved, c.ID, map[string]any{"resolution": resolution}); err != nil {
			return nil, err
		}
		c.Resolved = true
		c.ResolvedCycle = &cycle
		c.Resolution = resolution
		w.stats.CommitmentsResolved++
		return c, nil
	}
	return nil, nil
}

func (w *txWriter) scheduleEvent(ctx context.Context, e *entities.ScheduledEvent) error {
	e.ID = newID()
	e.GameID = w.gameID
	e.Status = entities.EventPending
	w.writes++
	if err := w.tx.InsertEvent(ctx, e); err != nil {
		return err
	}
	if err := w.logChange(ctx, e.CreatedCycle, entities.ActionEventScheduled, e.ID, map[string]any{
		"title":         e.Title,
		"planned_cycle": e.PlannedCycle,
	}); err != nil {
		return err
	}
	w.stats.EventsScheduled++
	return nil
}

// run executes fn in a transaction with a fresh writer.
func (p *Populator) run(ctx context.Context, gameID string, fn func(w *txWriter) error) (*txWriter, error) {
	var writer *txWriter
	err := p.store.WithTx(ctx, func(tx ports.GraphTx) error {
		writer = p.newWriter(tx, gameID)
		return fn(writer)
	})
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// CreateGame creates a new game at cycle 1.
func (p *Populator) CreateGame(ctx context.Context, name string) (*entities.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("game name is required")
	}
	game := &entities.Game{ID: newID(), Name: name, CurrentCycle: 1}
	_, err := p.run(ctx, game.ID, func(w *txWriter) error {
		if err := w.tx.InsertGame(ctx, game); err != nil {
			return err
		}
		return w.logChange(ctx, 1, entities.ActionGameCreated, game.ID, map[string]any{"name": name})
	})
	if err != nil {
		return nil, fmt.Errorf("creating game: %w", err)
	}
	p.logger.Info("game created", zap.String("game_id", game.ID), zap.String("name", name))
	return game, nil
}

// EntityInput describes an entity to create.
type EntityInput struct {
	Type       entities.EntityType
	Name       string
	Aliases    []string
	Attributes map[string]entities.Value
}

// CreateEntity creates an entity with its initial attributes. It fails with
// ErrDuplicateName when an active entity has the same name and with
// ErrInvalidAttributeForType when a key is not allowed for the type.
func (p *Populator) CreateEntity(ctx context.Context, gameID string, in EntityInput, cycle int) (*entities.Entity, error) {
	var created *entities.Entity
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		e, err := w.createEntity(ctx, entities.EntityCreated{
			EntityType: string(in.Type),
			Name:       in.Name,
			Data:       entities.EntityData{Aliases: in.Aliases, Attributes: in.Attributes},
		}, cycle)
		created = e
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetAttribute writes a new version of an attribute.
func (p *Populator) SetAttribute(ctx context.Context, entityID, key string, value entities.Value, cycle int) (*entities.Attribute, error) {
	var attr *entities.Attribute
	_, err := p.runOnEntity(ctx, entityID, func(w *txWriter, entity *entities.Entity) error {
		k, v, err := entities.NormalizeAttribute(entity.Type, key, value)
		if err != nil {
			return err
		}
		attr, err = w.setAttribute(ctx, entity, k, v, cycle)
		return err
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// RemoveEntity soft-deletes an entity at cycle.
func (p *Populator) RemoveEntity(ctx context.Context, entityID string, cycle int) error {
	_, err := p.runOnEntity(ctx, entityID, func(w *txWriter, entity *entities.Entity) error {
		return w.removeEntity(ctx, entity, cycle)
	})
	return err
}

func (p *Populator) runOnEntity(ctx context.Context, entityID string, fn func(w *txWriter, entity *entities.Entity) error) (*txWriter, error) {
	entity, err := p.store.FindEntityByID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	if entity == nil || !entity.Active() {
		return nil, fmt.Errorf("%w: %s", entities.ErrEntityNotFound, entityID)
	}
	return p.run(ctx, entity.GameID, func(w *txWriter) error {
		return fn(w, entity)
	})
}

// RelationInput describes a relation to create.
type RelationInput struct {
	SourceID           string
	TargetID           string
	Type               entities.RelationType
	KnownByProtagonist bool
	Attributes         entities.RelationAttributes
}

// CreateRelation creates a relation and its category row atomically. It
// fails with ErrDuplicateRelation when the triple is already active.
func (p *Populator) CreateRelation(ctx context.Context, gameID string, in RelationInput, cycle int) (*entities.Relationship, error) {
	var created *entities.Relationship
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		for _, id := range []string{in.SourceID, in.TargetID} {
			e, err := w.tx.FindEntityByID(ctx, id)
			if err != nil {
				return fmt.Errorf("finding entity: %w", err)
			}
			if e == nil || !e.Active() || e.GameID != gameID {
				return fmt.Errorf("%w: %s", entities.ErrEntityNotFound, id)
			}
		}
		rel, err := w.createRelation(ctx, &entities.Relationship{
			SourceEntityID:     in.SourceID,
			TargetEntityID:     in.TargetID,
			Type:               in.Type,
			KnownByProtagonist: in.KnownByProtagonist,
			StartCycle:         cycle,
			Attributes:         in.Attributes,
		})
		created = rel
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EndRelation closes the active relation of the triple. It returns false,
// not an error, when none is active.
func (p *Populator) EndRelation(ctx context.Context, gameID, sourceID, targetID string, relType entities.RelationType, cycle int) (bool, error) {
	ended := false
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		active, err := w.tx.ActiveRelation(ctx, sourceID, targetID, relType)
		if err != nil {
			return fmt.Errorf("finding relation: %w", err)
		}
		if active == nil {
			return nil
		}
		ended = true
		return w.endRelation(ctx, active, cycle)
	})
	if err != nil {
		return false, err
	}
	return ended, nil
}

// UpdateRelationLevel supersedes an active social relation with a new level.
func (p *Populator) UpdateRelationLevel(ctx context.Context, gameID, sourceID, targetID string, relType entities.RelationType, level, cycle int) (*entities.Relationship, error) {
	var updated *entities.Relationship
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		active, err := w.tx.ActiveRelation(ctx, sourceID, targetID, relType)
		if err != nil {
			return fmt.Errorf("finding relation: %w", err)
		}
		if active == nil {
			return fmt.Errorf("%w: no active %s relation", entities.ErrEntityNotFound, relType)
		}
		updated, err = w.supersedeRelation(ctx, active, withLevel(active.Attributes, level), cycle)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func withLevel(attrs entities.RelationAttributes, level int) entities.RelationAttributes {
	social := entities.SocialAttrs{}
	if attrs.Social != nil {
		social = *attrs.Social
	}
	social.Level = &level
	return entities.RelationAttributes{Social: &social}
}

// ResolveEntityRef resolves a name or alias among the active entities of a game.
func (p *Populator) ResolveEntityRef(ctx context.Context, gameID, ref string, expectedType entities.EntityType) (Resolution, error) {
	reg, err := LoadRegistry(ctx, p.store, gameID, p.opts.SimilarityFloor)
	if err != nil {
		return Resolution{}, err
	}
	return reg.Resolve(ref, expectedType), nil
}

// CreateFact stores a fact. It returns false when a fact with the same
// semantic key already exists for the cycle.
func (p *Populator) CreateFact(ctx context.Context, fact *entities.Fact) (bool, error) {
	inserted := false
	w, err := p.run(ctx, fact.GameID, func(w *txWriter) error {
		var err error
		inserted, err = w.createFact(ctx, fact)
		return err
	})
	if err != nil {
		return false, err
	}
	p.indexFacts(ctx, w.facts)
	return inserted, nil
}

// CreditResult is the outcome of a credit transaction.
type CreditResult struct {
	OK      bool
	Balance int
}

// CreditTransaction moves credits in or out of the protagonist's balance.
// When overdraft is disallowed and the balance would go negative, it returns
// OK=false, the unchanged balance and ErrInsufficientFunds.
func (p *Populator) CreditTransaction(ctx context.Context, gameID string, amount, cycle int, reason string) (CreditResult, error) {
	balance := 0
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		var err error
		balance, err = w.creditTransaction(ctx, amount, cycle, reason)
		return err
	})
	if err != nil {
		return CreditResult{OK: false, Balance: balance}, err
	}
	return CreditResult{OK: true, Balance: balance}, nil
}

// ApplyGauge adds delta to one of the protagonist's gauges.
func (p *Populator) ApplyGauge(ctx context.Context, gameID string, gauge entities.Gauge, delta float64, cycle int) (float64, error) {
	var value float64
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		var err error
		value, err = w.applyGauge(ctx, gauge, delta, cycle)
		return err
	})
	return value, err
}

// CreateCommitment opens a narrative promise.
func (p *Populator) CreateCommitment(ctx context.Context, gameID string, in entities.CommitmentCreated, cycle int) (*entities.Commitment, error) {
	var c *entities.Commitment
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		var err error
		c, err = w.createCommitment(ctx, in, cycle)
		return err
	})
	return c, err
}

// CommitmentResolution is the outcome of ResolveCommitment. Resolved is
// false when no unresolved commitment matched.
type CommitmentResolution struct {
	Resolved   bool
	Commitment *entities.Commitment
}

// ResolveCommitment resolves the unresolved commitment matching text.
// Resolving an already resolved commitment is a no-op.
func (p *Populator) ResolveCommitment(ctx context.Context, gameID, text, resolution string, cycle int) (CommitmentResolution, error) {
	var c *entities.Commitment
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		var err error
		c, err = w.resolveCommitment(ctx, text, resolution, cycle)
		return err
	})
	if err != nil {
		return CommitmentResolution{}, err
	}
	if c == nil {
		p.logger.Debug("no open commitment matched", zap.String("game_id", gameID), zap.String("text", text))
	}
	return CommitmentResolution{Resolved: c != nil, Commitment: c}, nil
}

// CloseEvent completes or cancels a pending event.
func (p *Populator) CloseEvent(ctx context.Context, gameID, eventID string, status entities.EventStatus, cycle int) error {
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		w.writes++
		if err := w.tx.CloseEvent(ctx, eventID, status, cycle); err != nil {
			return err
		}
		return w.logChange(ctx, cycle, entities.ActionEventClosed, eventID, map[string]any{"status": string(status)})
	})
	return err
}

// RecordMessage appends a message to the game's conversation.
func (p *Populator) RecordMessage(ctx context.Context, m *entities.Message) error {
	_, err := p.run(ctx, m.GameID, func(w *txWriter) error {
		return w.tx.InsertMessage(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("recording message: %w", err)
	}
	return nil
}

// AdvanceCycle moves the game's current cycle forward. Earlier cycles are
// ignored.
func (p *Populator) AdvanceCycle(ctx context.Context, gameID string, cycle int) error {
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		return w.advanceCycle(ctx, cycle)
	})
	return err
}

func (w *txWriter) advanceCycle(ctx context.Context, cycle int) error {
	game, err := w.tx.FindGame(ctx, w.gameID)
	if err != nil {
		return fmt.Errorf("finding game: %w", err)
	}
	if game == nil {
		return fmt.Errorf("%w: %s", entities.ErrGameNotFound, w.gameID)
	}
	if cycle <= game.CurrentCycle {
		return nil
	}
	return w.tx.UpdateGameCycle(ctx, w.gameID, cycle)
}

// SaveCycleSummary stores the summary of a cycle.
func (p *Populator) SaveCycleSummary(ctx context.Context, gameID string, cycle int, summary string) error {
	_, err := p.run(ctx, gameID, func(w *txWriter) error {
		return w.tx.UpsertCycleSummary(ctx, &entities.CycleSummary{GameID: gameID, Cycle: cycle, Summary: summary})
	})
	return err
}

// indexFacts embeds and indexes newly stored facts. Failures are logged; the
// index is a recall aid, not the source of truth.
func (p *Populator) indexFacts(ctx context.Context, facts []*entities.Fact) {
	if len(facts) == 0 || p.embedder == nil {
		return
	}
	if _, ok := p.index.(NopFactIndex); ok {
		return
	}
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Description
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.logger.Warn("embedding facts failed", zap.Int("facts", len(facts)), zap.Error(err))
		return
	}
	if err := p.index.IndexFacts(ctx, facts, embeddings); err != nil {
		p.logger.Warn("indexing facts failed", zap.Int("facts", len(facts)), zap.Error(err))
	}
}

// ReindexFacts embeds and indexes every stored fact of a game again, for
// rebuilding a lost or reset fact index. It returns the number of facts
// indexed.
func (p *Populator) ReindexFacts(ctx context.Context, gameID string) (int, error) {
	if p.embedder == nil {
		return 0, errors.New("reindexing requires an embedder")
	}
	facts, err := p.store.ListFacts(ctx, ports.FactFilter{GameID: gameID})
	if err != nil {
		return 0, fmt.Errorf("listing facts: %w", err)
	}
	if len(facts) == 0 {
		return 0, nil
	}

	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Description
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding facts: %w", err)
	}
	if err := p.index.IndexFacts(ctx, facts, embeddings); err != nil {
		return 0, fmt.Errorf("indexing facts: %w", err)
	}

	p.logger.Info("facts reindexed", zap.String("game_id", gameID), zap.Int("facts", len(facts)))
	return len(facts), nil
}

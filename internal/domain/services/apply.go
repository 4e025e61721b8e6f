package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"go.uber.org/zap"
)

// ApplyStats counts what an extraction batch changed.
type ApplyStats struct {
	EntitiesCreated     int `json:"entities_created"`
	EntitiesUpdated     int `json:"entities_updated"`
	AttributesSet       int `json:"attributes_set"`
	RelationsCreated    int `json:"relations_created"`
	RelationsUpdated    int `json:"relations_updated"`
	RelationsEnded      int `json:"relations_ended"`
	FactsCreated        int `json:"facts_created"`
	FactsDeduplicated   int `json:"facts_deduplicated"`
	GaugeChanges        int `json:"gauge_changes"`
	CreditTransactions  int `json:"credit_transactions"`
	InventoryChanges    int `json:"inventory_changes"`
	CommitmentsCreated  int `json:"commitments_created"`
	CommitmentsResolved int `json:"commitments_resolved"`
	EventsScheduled     int `json:"events_scheduled"`
	// Skipped counts items that were already true of the world, such as a
	// duplicate entity or relation.
	Skipped int `json:"skipped"`
}

// Add accumulates o into s.
func (s *ApplyStats) Add(o *ApplyStats) {
	s.EntitiesCreated += o.EntitiesCreated
	s.EntitiesUpdated += o.EntitiesUpdated
	s.AttributesSet += o.AttributesSet
	s.RelationsCreated += o.RelationsCreated
	s.RelationsUpdated += o.RelationsUpdated
	s.RelationsEnded += o.RelationsEnded
	s.FactsCreated += o.FactsCreated
	s.FactsDeduplicated += o.FactsDeduplicated
	s.GaugeChanges += o.GaugeChanges
	s.CreditTransactions += o.CreditTransactions
	s.InventoryChanges += o.InventoryChanges
	s.CommitmentsCreated += o.CommitmentsCreated
	s.CommitmentsResolved += o.CommitmentsResolved
	s.EventsScheduled += o.EventsScheduled
	s.Skipped += o.Skipped
}

// ApplyResult is the outcome of applying one extraction payload.
type ApplyResult struct {
	GameID string     `json:"game_id"`
	Cycle  int        `json:"cycle"`
	Stats  ApplyStats `json:"stats"`
	// Errors lists every item that was not applied.
	Errors []*entities.ItemError `json:"errors,omitempty"`
	// Degraded is set when the batch was applied item by item.
	Degraded bool `json:"degraded"`
}

// applyStep is one payload item bound to its writer code.
type applyStep struct {
	field string
	index int
	run   func(ctx context.Context, w *txWriter) error
}

// errStepAborted marks a step that failed after writing, which poisons the
// enclosing transaction.
var errStepAborted = errors.New("step failed after writing")

// ApplyExtraction applies a payload to a game. A valid payload is applied in
// one transaction. An invalid one, or one whose transaction fails midway, is
// applied item by item with each item in its own transaction; failing items
// are reported in the result instead of failing the batch.
func (p *Populator) ApplyExtraction(ctx context.Context, gameID string, payload *entities.ExtractionPayload) (*ApplyResult, error) {
	game, err := p.store.FindGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("finding game: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrGameNotFound, gameID)
	}

	payload.StampCycle(payload.Cycle)
	result := &ApplyResult{GameID: gameID, Cycle: payload.Cycle}

	invalid := map[string]map[int]bool{}
	if err := payload.Validate(); err != nil {
		var verr *entities.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		for _, item := range verr.Items {
			if item.Field == entities.FieldCycle {
				return nil, fmt.Errorf("applying extraction: %w", item)
			}
			if invalid[item.Field] == nil {
				invalid[item.Field] = map[int]bool{}
			}
			invalid[item.Field][item.Index] = true
		}
		result.Errors = append(result.Errors, verr.Items...)
		result.Degraded = true
		p.logger.Warn("extraction payload invalid, applying item by item",
			zap.String("game_id", gameID),
			zap.Int("cycle", payload.Cycle),
			zap.Int("invalid_items", len(verr.Items)))
	}

	steps := newApplier(payload).steps(invalid)

	reg, err := LoadRegistry(ctx, p.store, gameID, p.opts.SimilarityFloor)
	if err != nil {
		return nil, err
	}

	var facts []*entities.Fact
	if !result.Degraded {
		stats, itemErrs, created, err := p.applyAtomic(ctx, gameID, reg, steps)
		switch {
		case err == nil:
			result.Stats = *stats
			result.Errors = append(result.Errors, itemErrs...)
			facts = created
		case errors.Is(err, errStepAborted):
			p.logger.Warn("extraction transaction aborted, applying item by item",
				zap.String("game_id", gameID),
				zap.Int("cycle", payload.Cycle),
				zap.Error(err))
			result.Degraded = true
			if reg, err = LoadRegistry(ctx, p.store, gameID, p.opts.SimilarityFloor); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("applying extraction: %w", err)
		}
	}
	if result.Degraded {
		var itemErrs []*entities.ItemError
		itemErrs, facts = p.applyEach(ctx, gameID, reg, steps, &result.Stats)
		result.Errors = append(result.Errors, itemErrs...)
	}

	p.indexFacts(ctx, facts)

	p.logger.Info("extraction applied",
		zap.String("game_id", gameID),
		zap.Int("cycle", payload.Cycle),
		zap.Int("facts", result.Stats.FactsCreated),
		zap.Int("entities", result.Stats.EntitiesCreated),
		zap.Int("relations", result.Stats.RelationsCreated),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("degraded", result.Degraded))
	return result, nil
}

// applyAtomic runs every step in one transaction. A step that fails before
// writing anything is reported and skipped; one that fails after writing
// aborts the transaction with errStepAborted.
func (p *Populator) applyAtomic(ctx context.Context, gameID string, reg *Registry, steps []applyStep) (*ApplyStats, []*entities.ItemError, []*entities.Fact, error) {
	var (
		itemErrs []*entities.ItemError
		w        *txWriter
	)
	err := p.store.WithTx(ctx, func(tx ports.GraphTx) error {
		w = p.newWriter(tx, gameID)
		w.reg = reg
		for _, step := range steps {
			before := w.writes
			err := step.run(ctx, w)
			if err == nil {
				continue
			}
			if w.writes != before {
				return fmt.Errorf("%w: %s[%d]: %w", errStepAborted, step.field, step.index, err)
			}
			itemErrs = append(itemErrs, p.itemError(gameID, step, err))
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return w.stats, itemErrs, w.facts, nil
}

// applyEach runs each step in its own transaction.
func (p *Populator) applyEach(ctx context.Context, gameID string, reg *Registry, steps []applyStep, stats *ApplyStats) ([]*entities.ItemError, []*entities.Fact) {
	var (
		itemErrs []*entities.ItemError
		facts    []*entities.Fact
	)
	for _, step := range steps {
		mark := reg.Mark()
		var w *txWriter
		err := p.store.WithTx(ctx, func(tx ports.GraphTx) error {
			w = p.newWriter(tx, gameID)
			w.reg = reg
			return step.run(ctx, w)
		})
		if err != nil {
			reg.Forget(mark)
			itemErrs = append(itemErrs, p.itemError(gameID, step, err))
			continue
		}
		stats.Add(w.stats)
		facts = append(facts, w.facts...)
	}
	return itemErrs, facts
}

func (p *Populator) itemError(gameID string, step applyStep, err error) *entities.ItemError {
	p.logger.Debug("extraction item not applied",
		zap.String("game_id", gameID),
		zap.String("field", step.field),
		zap.Int("index", step.index),
		zap.Error(err))
	return &entities.ItemError{Field: step.field, Index: step.index, Err: err}
}

// applier turns a payload into ordered steps: entities first so that every
// later item can reference them, the summary and cycle advance last.
type applier struct {
	payload *entities.ExtractionPayload
}

func newApplier(payload *entities.ExtractionPayload) *applier {
	return &applier{payload: payload}
}

func (a *applier) steps(invalid map[string]map[int]bool) []applyStep {
	pl := a.payload
	cycle := pl.Cycle
	var steps []applyStep
	add := func(field string, index int, run func(ctx context.Context, w *txWriter) error) {
		if invalid[field][index] {
			return
		}
		steps = append(steps, applyStep{field: field, index: index, run: run})
	}

	for i, e := range pl.EntitiesCreated {
		add(entities.FieldEntitiesCreated, i, func(ctx context.Context, w *txWriter) error {
			return a.entityCreated(ctx, w, e, cycle)
		})
	}
	for i, e := range pl.EntitiesUpdated {
		add(entities.FieldEntitiesUpdated, i, func(ctx context.Context, w *txWriter) error {
			return a.entityUpdated(ctx, w, e, cycle)
		})
	}
	for i, r := range pl.RelationsCreated {
		add(entities.FieldRelationsCreated, i, func(ctx context.Context, w *txWriter) error {
			return w.createRelationFromSpec(ctx, r.Relation, *r.Cycle)
		})
	}
	for i, r := range pl.RelationsUpdated {
		add(entities.FieldRelationsUpdated, i, func(ctx context.Context, w *txWriter) error {
			return a.relationUpdated(ctx, w, r, cycle)
		})
	}
	for i, g := range pl.GaugeChanges {
		add(entities.FieldGaugeChanges, i, func(ctx context.Context, w *txWriter) error {
			gauge, err := entities.ParseGauge(g.Gauge)
			if err != nil {
				return err
			}
			_, err = w.applyGauge(ctx, gauge, g.Delta, cycle)
			return err
		})
	}
	for i, c := range pl.CreditTransactions {
		add(entities.FieldCreditTransactions, i, func(ctx context.Context, w *txWriter) error {
			_, err := w.creditTransaction(ctx, c.Amount, cycle, c.Description)
			return err
		})
	}
	for i, c := range pl.InventoryChanges {
		add(entities.FieldInventoryChanges, i, func(ctx context.Context, w *txWriter) error {
			return a.inventoryChange(ctx, w, c, cycle)
		})
	}
	if strings.TrimSpace(pl.CurrentLocationRef) != "" {
		add(entities.FieldCurrentLocation, -1, func(ctx context.Context, w *txWriter) error {
			return a.moveProtagonist(ctx, w, pl.CurrentLocationRef, cycle)
		})
	}
	for i, f := range pl.Facts {
		add(entities.FieldFacts, i, func(ctx context.Context, w *txWriter) error {
			return a.factRecord(ctx, w, f)
		})
	}
	for i, c := range pl.CommitmentsCreated {
		add(entities.FieldCommitmentsCreated, i, func(ctx context.Context, w *txWriter) error {
			_, err := w.createCommitment(ctx, c, cycle)
			return err
		})
	}
	for i, c := range pl.CommitmentsResolved {
		add(entities.FieldCommitmentsResolved, i, func(ctx context.Context, w *txWriter) error {
			resolved, err := w.resolveCommitment(ctx, c.Description, c.Resolution, cycle)
			if err == nil && resolved == nil {
				w.logger.Debug("no open commitment matched", zap.String("text", c.Description))
			}
			return err
		})
	}
	for i, e := range pl.EventsScheduled {
		add(entities.FieldEventsScheduled, i, func(ctx context.Context, w *txWriter) error {
			return a.eventScheduled(ctx, w, e, cycle)
		})
	}
	add(entities.FieldSegmentSummary, -1, func(ctx context.Context, w *txWriter) error {
		w.writes++
		return w.tx.UpsertCycleSummary(ctx, &entities.CycleSummary{
			GameID:  w.gameID,
			Cycle:   cycle,
			Summary: strings.TrimSpace(pl.SegmentSummary),
		})
	})
	add(entities.FieldCycle, -1, func(ctx context.Context, w *txWriter) error {
		return w.advanceCycle(ctx, cycle)
	})
	return steps
}

func (a *applier) entityCreated(ctx context.Context, w *txWriter, in entities.EntityCreated, cycle int) error {
	_, err := w.createEntity(ctx, in, cycle)
	if errors.Is(err, entities.ErrDuplicateName) {
		w.stats.Skipped++
		w.logger.Debug("entity already exists", zap.String("name", in.Name))
		return nil
	}
	return err
}

func (a *applier) entityUpdated(ctx context.Context, w *txWriter, in entities.EntityUpdated, cycle int) error {
	entity, err := w.resolve(ctx, in.EntityRef, "")
	if err != nil {
		return err
	}
	changes := make([]normalizedAttr, 0, len(in.AttributesChanged))
	for _, c := range in.AttributesChanged {
		key, v, err := entities.NormalizeAttribute(entity.Type, c.Key, c.Value)
		if err != nil {
			return err
		}
		changes = append(changes, normalizedAttr{key: key, value: v})
	}
	for _, c := range changes {
		if _, err := w.setAttribute(ctx, entity, c.key, c.value, cycle); err != nil {
			return err
		}
	}
	w.stats.EntitiesUpdated++
	return nil
}

// createRelationFromSpec resolves both ends of spec and creates the
// relation. A relation that is already active counts as skipped.
func (w *txWriter) createRelationFromSpec(ctx context.Context, spec entities.RelationSpec, cycle int) error {
	relType, err := entities.ParseRelationType(spec.RelationType)
	if err != nil {
		return err
	}
	source, err := w.resolve(ctx, spec.SourceRef, "")
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	target, err := w.resolve(ctx, spec.TargetRef, "")
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	known := true
	if spec.KnownByProtagonist != nil {
		known = *spec.KnownByProtagonist
	}
	_, err = w.createRelation(ctx, &entities.Relationship{
		SourceEntityID:     source.ID,
		TargetEntityID:     target.ID,
		Type:               relType,
		KnownByProtagonist: known,
		StartCycle:         cycle,
		Attributes:         spec.Attributes(),
	})
	if errors.Is(err, entities.ErrDuplicateRelation) {
		w.stats.Skipped++
		return nil
	}
	return err
}

// relationUpdated supersedes the active relation with the new level, or
// creates it when the two entities were not related that way yet.
func (a *applier) relationUpdated(ctx context.Context, w *txWriter, in entities.RelationUpdated, cycle int) error {
	relType, err := entities.ParseRelationType(in.RelationType)
	if err != nil {
		return err
	}
	source, err := w.resolve(ctx, in.SourceRef, "")
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	target, err := w.resolve(ctx, in.TargetRef, "")
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	active, err := w.tx.ActiveRelation(ctx, source.ID, target.ID, relType)
	if err != nil {
		return fmt.Errorf("finding relation: %w", err)
	}
	if active == nil {
		level := *in.NewLevel
		_, err = w.createRelation(ctx, &entities.Relationship{
			SourceEntityID:     source.ID,
			TargetEntityID:     target.ID,
			Type:               relType,
			KnownByProtagonist: true,
			StartCycle:         cycle,
			Attributes:         entities.RelationAttributes{Social: &entities.SocialAttrs{Level: &level}},
		})
		return err
	}
	_, err = w.supersedeRelation(ctx, active, withLevel(active.Attributes, *in.NewLevel), cycle)
	return err
}

func (a *applier) inventoryChange(ctx context.Context, w *txWriter, in entities.InventoryChange, cycle int) error {
	pro, err := w.requireProtagonist(ctx)
	if err != nil {
		return err
	}

	var object *entities.Entity
	action := entities.InventoryAction(entities.NormalizeName(in.Action))
	spec, hasNew := in.NewObjectSpec()
	if action == entities.InventoryAcquire && hasNew {
		object, err = w.createEntity(ctx, spec, cycle)
		if err != nil && (object == nil || !errors.Is(err, entities.ErrDuplicateName)) {
			return err
		}
	} else {
		object, err = w.resolve(ctx, in.ObjectRef, entities.EntityObject)
		if err != nil {
			return err
		}
	}

	owns, err := w.tx.ActiveRelation(ctx, pro.ID, object.ID, entities.RelationOwns)
	if err != nil {
		return fmt.Errorf("finding ownership: %w", err)
	}
	quantity := func() int {
		if owns == nil || owns.Attributes.Ownership == nil {
			return 0
		}
		return owns.Attributes.Ownership.Quantity
	}

	switch action {
	case entities.InventoryAcquire:
		delta := max(in.QuantityDelta, 1)
		if owns == nil {
			_, err = w.createRelation(ctx, &entities.Relationship{
				SourceEntityID:     pro.ID,
				TargetEntityID:     object.ID,
				Type:               entities.RelationOwns,
				KnownByProtagonist: true,
				StartCycle:         cycle,
				Attributes: entities.RelationAttributes{Ownership: &entities.OwnershipAttrs{
					Quantity:    delta,
					Acquisition: in.Reason,
				}},
			})
		} else {
			attrs := *owns.Attributes.Ownership
			attrs.Quantity += delta
			_, err = w.supersedeRelation(ctx, owns, entities.RelationAttributes{Ownership: &attrs}, cycle)
		}
	case entities.InventoryLose:
		if owns == nil {
			w.stats.Skipped++
			return nil
		}
		err = w.endRelation(ctx, owns, cycle)
	case entities.InventoryUse:
		if owns == nil {
			return fmt.Errorf("%w: %s is not in the inventory", entities.ErrEntityNotFound, object.Name)
		}
		used := in.QuantityDelta
		if used < 0 {
			used = -used
		}
		remaining := quantity() - max(used, 1)
		if remaining <= 0 {
			err = w.endRelation(ctx, owns, cycle)
			break
		}
		attrs := *owns.Attributes.Ownership
		attrs.Quantity = remaining
		_, err = w.supersedeRelation(ctx, owns, entities.RelationAttributes{Ownership: &attrs}, cycle)
	default:
		return fmt.Errorf("%w: inventory action %q", entities.ErrInvalidValue, in.Action)
	}
	if err != nil {
		return err
	}
	w.stats.InventoryChanges++
	return nil
}

// moveProtagonist replaces the protagonist's located_in relation.
func (a *applier) moveProtagonist(ctx context.Context, w *txWriter, ref string, cycle int) error {
	pro, err := w.requireProtagonist(ctx)
	if err != nil {
		return err
	}
	location, err := w.resolve(ctx, ref, entities.EntityLocation)
	if err != nil {
		return err
	}
	current, err := w.tx.ListRelations(ctx, ports.RelationFilter{
		SourceID: pro.ID,
		Types:    []entities.RelationType{entities.RelationLocatedIn},
	})
	if err != nil {
		return fmt.Errorf("finding current location: %w", err)
	}
	for _, rel := range current {
		if rel.TargetEntityID == location.ID {
			return nil
		}
	}
	for _, rel := range current {
		if err := w.endRelation(ctx, rel, cycle); err != nil {
			return err
		}
	}
	_, err = w.createRelation(ctx, &entities.Relationship{
		SourceEntityID:     pro.ID,
		TargetEntityID:     location.ID,
		Type:               entities.RelationLocatedIn,
		KnownByProtagonist: true,
		StartCycle:         cycle,
	})
	return err
}

func (a *applier) factRecord(ctx context.Context, w *txWriter, in entities.FactRecord) error {
	fact := &entities.Fact{
		Cycle:       *in.Cycle,
		Type:        entities.FactType(in.FactType),
		Domain:      entities.FactDomain(in.Domain),
		Description: strings.TrimSpace(in.Description),
		Importance:  *in.Importance,
		SemanticKey: in.SemanticKey,
	}
	seen := map[string]bool{}
	for _, ref := range in.Participants {
		e, err := w.resolve(ctx, ref.EntityRef, "")
		if err != nil {
			return fmt.Errorf("participant: %w", err)
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		fact.Participants = append(fact.Participants, entities.FactParticipant{EntityID: e.ID, Role: ref.Role})
	}
	if in.LocationRef != "" {
		loc, err := w.resolve(ctx, in.LocationRef, entities.EntityLocation)
		if err == nil {
			fact.LocationID = loc.ID
		} else {
			w.logger.Debug("fact location dropped", zap.String("ref", in.LocationRef), zap.Error(err))
		}
	}
	_, err := w.createFact(ctx, fact)
	return err
}

func (a *applier) eventScheduled(ctx context.Context, w *txWriter, in entities.EventScheduled, cycle int) error {
	event := &entities.ScheduledEvent{
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		PlannedCycle: in.PlannedCycle,
		PlannedTime:  in.PlannedTime,
		CreatedCycle: cycle,
	}
	for _, ref := range in.ParticipantRefs {
		e, err := w.resolve(ctx, ref, "")
		if err != nil {
			return fmt.Errorf("participant: %w", err)
		}
		event.ParticipantIDs = append(event.ParticipantIDs, e.ID)
	}
	if in.LocationRef != "" {
		loc, err := w.resolve(ctx, in.LocationRef, entities.EntityLocation)
		if err == nil {
			event.LocationID = loc.ID
		} else {
			w.logger.Debug("event location dropped", zap.String("ref", in.LocationRef), zap.Error(err))
		}
	}
	return w.scheduleEvent(ctx, event)
}

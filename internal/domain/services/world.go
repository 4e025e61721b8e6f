package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"go.uber.org/zap"
)

// worldCycle is the cycle a generated world starts at.
const worldCycle = 1

// PopulateWorld builds a complete world from a seed at cycle 1. The whole
// world is written in one transaction: a seed that fails anywhere leaves the
// game untouched.
func (p *Populator) PopulateWorld(ctx context.Context, gameID string, seed *entities.WorldSeed) (*ApplyStats, error) {
	game, err := p.store.FindGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("finding game: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrGameNotFound, gameID)
	}
	if seed.Protagonist.EntityType == "" {
		seed.Protagonist.EntityType = string(entities.EntityProtagonist)
	}
	if t, err := entities.ParseEntityType(seed.Protagonist.EntityType); err != nil || t != entities.EntityProtagonist {
		return nil, fmt.Errorf("%w: seed protagonist has type %q", entities.ErrInvalidEntityType, seed.Protagonist.EntityType)
	}

	w, err := p.run(ctx, gameID, func(w *txWriter) error {
		reg, err := LoadRegistry(ctx, w.tx, gameID, p.opts.SimilarityFloor)
		if err != nil {
			return err
		}
		w.reg = reg
		return p.buildWorld(ctx, w, seed)
	})
	if err != nil {
		return nil, fmt.Errorf("populating world: %w", err)
	}
	p.indexFacts(ctx, w.facts)

	p.logger.Info("world populated",
		zap.String("game_id", gameID),
		zap.Int("entities", w.stats.EntitiesCreated),
		zap.Int("relations", w.stats.RelationsCreated),
		zap.Int("commitments", w.stats.CommitmentsCreated))
	return w.stats, nil
}

func (p *Populator) buildWorld(ctx context.Context, w *txWriter, seed *entities.WorldSeed) error {
	for _, spec := range seed.Entities() {
		entity, err := w.createEntity(ctx, spec, worldCycle)
		if err != nil {
			return fmt.Errorf("creating %s %q: %w", spec.EntityType, spec.Name, err)
		}
		if entity.Type == entities.EntityProtagonist {
			if err := p.seedProtagonist(ctx, w, entity, spec); err != nil {
				return err
			}
		}
	}

	for i, spec := range seed.Relations {
		if err := w.createRelationFromSpec(ctx, spec, worldCycle); err != nil {
			return fmt.Errorf("relation %d: %w", i, err)
		}
	}

	if ref := strings.TrimSpace(seed.StartLocation); ref != "" {
		location, err := w.resolve(ctx, ref, entities.EntityLocation)
		if err != nil {
			return fmt.Errorf("start location: %w", err)
		}
		_, err = w.createRelation(ctx, &entities.Relationship{
			SourceEntityID:     w.protagonist.ID,
			TargetEntityID:     location.ID,
			Type:               entities.RelationLocatedIn,
			KnownByProtagonist: true,
			StartCycle:         worldCycle,
		})
		if err != nil && !errors.Is(err, entities.ErrDuplicateRelation) {
			return fmt.Errorf("start location: %w", err)
		}
	}

	for i, c := range seed.Commitments {
		if _, err := w.createCommitment(ctx, c, worldCycle); err != nil {
			return fmt.Errorf("commitment %d: %w", i, err)
		}
	}

	a := newApplier(&entities.ExtractionPayload{Cycle: worldCycle})
	for i, e := range seed.Events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if err := a.eventScheduled(ctx, w, e, worldCycle); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}

	if summary := strings.TrimSpace(seed.Summary); summary != "" {
		w.writes++
		if err := w.tx.UpsertCycleSummary(ctx, &entities.CycleSummary{
			GameID:  w.gameID,
			Cycle:   worldCycle,
			Summary: summary,
		}); err != nil {
			return err
		}
	}
	return nil
}

// seedProtagonist fills the gauges and the starting balance the seed left
// unset.
func (p *Populator) seedProtagonist(ctx context.Context, w *txWriter, pro *entities.Entity, spec entities.EntityCreated) error {
	for _, gauge := range []entities.Gauge{entities.GaugeEnergy, entities.GaugeMorale, entities.GaugeHealth} {
		key := entities.AttributeKey(gauge)
		if hasAttribute(spec, key) {
			continue
		}
		if _, err := w.setAttribute(ctx, pro, key, entities.NumberValue(entities.GaugeMax), worldCycle); err != nil {
			return err
		}
	}
	if hasAttribute(spec, entities.AttrCredits) {
		return nil
	}

	credits := p.opts.StartingCredits
	details, err := w.tx.FindDetails(ctx, pro.ID)
	if err != nil {
		return fmt.Errorf("reading protagonist details: %w", err)
	}
	if details != nil && details.Protagonist != nil && details.Protagonist.StartingCredits > 0 {
		credits = details.Protagonist.StartingCredits
	}
	_, err = w.setAttribute(ctx, pro, entities.AttrCredits, entities.NumberValue(float64(credits)), worldCycle)
	return err
}

func hasAttribute(spec entities.EntityCreated, key entities.AttributeKey) bool {
	for k := range spec.Data.Attributes {
		if entities.AttributeKey(strings.ToLower(strings.TrimSpace(k))) == key {
			return true
		}
	}
	return false
}

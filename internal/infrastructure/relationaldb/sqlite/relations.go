package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
)

const relationSelect = `
	SELECT r.id, r.game_id, r.source_entity_id, r.target_entity_id, r.type, r.known_by_protagonist,
		r.start_cycle, r.end_cycle, r.closed_cycle, r.superseded_by,
		s.relation_id IS NOT NULL, s.level, s.context,
		p.relation_id IS NOT NULL, p.position, p.schedule,
		sp.relation_id IS NOT NULL, sp.regularity,
		o.relation_id IS NOT NULL, o.quantity, o.acquisition
	FROM relations r
	LEFT JOIN relation_social s ON s.relation_id = r.id
	LEFT JOIN relation_professional p ON p.relation_id = r.id
	LEFT JOIN relation_spatial sp ON sp.relation_id = r.id
	LEFT JOIN relation_ownership o ON o.relation_id = r.id
`

func scanRelation(s scanner) (*entities.Relationship, error) {
	var rel entities.Relationship
	var relType string
	var known int
	var endCycle, closedCycle sql.NullInt64
	var supersededBy sql.NullString
	var hasSocial, hasProfessional, hasSpatial, hasOwnership bool
	var level, quantity sql.NullInt64
	var socialContext, position, schedule, regularity, acquisition sql.NullString

	if err := s.Scan(
		&rel.ID,
		&rel.GameID,
		&rel.SourceEntityID,
		&rel.TargetEntityID,
		&relType,
		&known,
		&rel.StartCycle,
		&endCycle,
		&closedCycle,
		&supersededBy,
		&hasSocial, &level, &socialContext,
		&hasProfessional, &position, &schedule,
		&hasSpatial, &regularity,
		&hasOwnership, &quantity, &acquisition,
	); err != nil {
		return nil, err
	}

	rel.Type = entities.RelationType(relType)
	rel.KnownByProtagonist = known != 0
	rel.EndCycle = intPtr(endCycle)
	rel.ClosedCycle = intPtr(closedCycle)
	rel.SupersededBy = supersededBy.String

	switch {
	case hasSocial:
		rel.Attributes.Social = &entities.SocialAttrs{Level: intPtr(level), Context: socialContext.String}
	case hasProfessional:
		rel.Attributes.Professional = &entities.ProfessionalAttrs{Position: position.String, Schedule: schedule.String}
	case hasSpatial:
		rel.Attributes.Spatial = &entities.SpatialAttrs{Regularity: regularity.String}
	case hasOwnership:
		rel.Attributes.Ownership = &entities.OwnershipAttrs{Quantity: int(quantity.Int64), Acquisition: acquisition.String}
	}
	return &rel, nil
}

// InsertRelation stores a relation version together with the extension row
// of its category.
func (r *Repository) InsertRelation(ctx context.Context, rel *entities.Relationship) error {
	category := rel.Type.Category()
	if category == "" {
		return fmt.Errorf("%w: %q", entities.ErrInvalidRelationType, rel.Type)
	}
	attrs, err := rel.Attributes.ForCategory(category)
	if err != nil {
		return err
	}
	rel.Attributes = attrs
	if rel.ID == "" {
		rel.ID = generateUUID()
	}

	query := `
		INSERT INTO relations (id, game_id, source_entity_id, target_entity_id, type, category,
			known_by_protagonist, start_cycle, end_cycle, closed_cycle, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.q.ExecContext(ctx, query,
		rel.ID,
		rel.GameID,
		rel.SourceEntityID,
		rel.TargetEntityID,
		string(rel.Type),
		string(category),
		boolInt(rel.KnownByProtagonist),
		rel.StartCycle,
		nullInt(rel.EndCycle),
		nullInt(rel.ClosedCycle),
		nullString(rel.SupersededBy),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", entities.ErrDuplicateRelation, rel.Type)
		}
		return fmt.Errorf("inserting relation: %w", err)
	}

	switch category {
	case entities.CategorySocial:
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO relation_social (relation_id, level, context) VALUES (?, ?, ?)`,
			rel.ID, nullInt(attrs.Social.Level), attrs.Social.Context,
		)
	case entities.CategoryProfessional:
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO relation_professional (relation_id, position, schedule) VALUES (?, ?, ?)`,
			rel.ID, attrs.Professional.Position, attrs.Professional.Schedule,
		)
	case entities.CategorySpatial:
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO relation_spatial (relation_id, regularity) VALUES (?, ?)`,
			rel.ID, attrs.Spatial.Regularity,
		)
	case entities.CategoryOwnership:
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO relation_ownership (relation_id, quantity, acquisition) VALUES (?, ?, ?)`,
			rel.ID, attrs.Ownership.Quantity, attrs.Ownership.Acquisition,
		)
	}
	if err != nil {
		return fmt.Errorf("inserting %s relation details: %w", category, err)
	}
	return nil
}

// CloseRelation ends an active relation version.
func (r *Repository) CloseRelation(ctx context.Context, relID string, endCycle, closedCycle int, supersededBy string) error {
	query := `
		UPDATE relations SET end_cycle = ?, closed_cycle = ?, superseded_by = ?
		WHERE id = ? AND end_cycle IS NULL
	`
	res, err := r.q.ExecContext(ctx, query, endCycle, closedCycle, nullString(supersededBy), relID)
	if err != nil {
		return fmt.Errorf("closing relation: %w", err)
	}
	n, err := rowsAffected(res, "relations")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("relation %s is not active", relID)
	}
	return nil
}

// ActiveRelation returns the active relation for the triple, or nil.
func (r *Repository) ActiveRelation(ctx context.Context, sourceID, targetID string, relType entities.RelationType) (*entities.Relationship, error) {
	query := relationSelect + `
		WHERE r.source_entity_id = ? AND r.target_entity_id = ? AND r.type = ? AND r.end_cycle IS NULL
	`
	rel, err := scanRelation(r.q.QueryRowContext(ctx, query, sourceID, targetID, string(relType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning relation: %w", err)
	}
	return rel, nil
}

// ListRelations lists relations matching filter, oldest first.
func (r *Repository) ListRelations(ctx context.Context, filter ports.RelationFilter) ([]*entities.Relationship, error) {
	if filter.GameID == "" && filter.EntityID == "" && filter.SourceID == "" && filter.TargetID == "" {
		return nil, errors.New("listing relations requires a game or entity")
	}

	var conds []string
	var args []any
	if filter.GameID != "" {
		conds = append(conds, "r.game_id = ?")
		args = append(args, filter.GameID)
	}
	if filter.EntityID != "" {
		conds = append(conds, "(r.source_entity_id = ? OR r.target_entity_id = ?)")
		args = append(args, filter.EntityID, filter.EntityID)
	}
	if filter.SourceID != "" {
		conds = append(conds, "r.source_entity_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.TargetID != "" {
		conds = append(conds, "r.target_entity_id = ?")
		args = append(args, filter.TargetID)
	}
	if len(filter.Types) > 0 {
		marks, typeArgs := placeholders(filter.Types)
		conds = append(conds, "r.type IN ("+marks+")")
		args = append(args, typeArgs...)
	}
	switch {
	case filter.AtCycle != nil:
		conds = append(conds, "r.start_cycle <= ? AND (r.end_cycle IS NULL OR r.end_cycle >= ?)")
		args = append(args, *filter.AtCycle, *filter.AtCycle)
	case !filter.AllVersions:
		conds = append(conds, "r.end_cycle IS NULL")
	}

	query := relationSelect + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY r.start_cycle ASC, r.rowid ASC"
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var rels []*entities.Relationship
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.AtCycle != nil {
		rels = latestPerTriple(rels)
	}
	return rels, nil
}

// latestPerTriple keeps, for each (source, target, type), the version that
// started last. Two versions cover the same cycle only when one was closed
// in the cycle it started.
func latestPerTriple(rels []*entities.Relationship) []*entities.Relationship {
	type triple struct{ source, target, relType string }
	index := make(map[triple]int, len(rels))
	out := make([]*entities.Relationship, 0, len(rels))
	for _, rel := range rels {
		k := triple{rel.SourceEntityID, rel.TargetEntityID, string(rel.Type)}
		if i, ok := index[k]; ok {
			out[i] = rel
			continue
		}
		index[k] = len(out)
		out = append(out, rel)
	}
	return out
}

// ConnectedLocations returns active locations that share the sector of
// locationID or are linked to it by an active located_in or connected_to
// relation in either direction. The location itself is excluded.
func (r *Repository) ConnectedLocations(ctx context.Context, locationID string, limit int) ([]*entities.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities e
		JOIN entities cur ON cur.id = ?
		LEFT JOIN entity_details d ON d.entity_id = e.id
		LEFT JOIN entity_details curd ON curd.entity_id = cur.id
		WHERE e.game_id = cur.game_id
			AND e.type = ?
			AND e.removed_cycle IS NULL
			AND e.id <> cur.id
			AND (
				(COALESCE(curd.sector, '') <> '' AND d.sector = curd.sector)
				OR e.id IN (
					SELECT target_entity_id FROM relations
					WHERE source_entity_id = cur.id AND type IN (?, ?) AND end_cycle IS NULL
					UNION
					SELECT source_entity_id FROM relations
					WHERE target_entity_id = cur.id AND type IN (?, ?) AND end_cycle IS NULL
				)
			)
		ORDER BY e.normalized_name ASC
		LIMIT ?
	`
	spatial := []any{string(entities.RelationLocatedIn), string(entities.RelationConnectedTo)}
	args := []any{locationID, string(entities.EntityLocation)}
	args = append(args, spatial...)
	args = append(args, spatial...)
	args = append(args, limit)
	return r.queryEntities(ctx, query, args...)
}

// LinkedSources returns active entities of sourceType that hold an active
// relation of one of relTypes towards targetID, by name.
func (r *Repository) LinkedSources(ctx context.Context, targetID string, sourceType entities.EntityType, relTypes []entities.RelationType, limit int) ([]*entities.Entity, error) {
	if len(relTypes) == 0 {
		return nil, nil
	}
	marks, typeArgs := placeholders(relTypes)
	query := `
		SELECT ` + entityColumns + `
		FROM entities e
		WHERE e.type = ? AND e.removed_cycle IS NULL
			AND e.id IN (
				SELECT source_entity_id FROM relations
				WHERE target_entity_id = ? AND end_cycle IS NULL AND type IN (` + marks + `)
			)
		ORDER BY e.normalized_name ASC
		LIMIT ?
	`
	args := []any{string(sourceType), targetID}
	args = append(args, typeArgs...)
	args = append(args, limit)
	return r.queryEntities(ctx, query, args...)
}

// RelatedByLevel returns active entities of otherType related to entityID in
// either direction by one of relTypes. Each entity appears once, with its
// highest-level relation; results are ordered by level descending with
// unleveled relations last, then by name.
func (r *Repository) RelatedByLevel(ctx context.Context, entityID string, otherType entities.EntityType, relTypes []entities.RelationType, limit int) ([]ports.RelatedEntity, error) {
	if len(relTypes) == 0 {
		return nil, nil
	}
	marks, typeArgs := placeholders(relTypes)
	query := relationSelect + `
		JOIN entities other ON other.id = CASE WHEN r.source_entity_id = ? THEN r.target_entity_id ELSE r.source_entity_id END
		WHERE (r.source_entity_id = ? OR r.target_entity_id = ?)
			AND r.end_cycle IS NULL
			AND r.type IN (` + marks + `)
			AND other.type = ?
			AND other.removed_cycle IS NULL
		ORDER BY s.level IS NULL ASC, s.level DESC, other.normalized_name ASC, r.rowid ASC
	`
	args := []any{entityID, entityID, entityID}
	args = append(args, typeArgs...)
	args = append(args, string(otherType))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying related entities: %w", err)
	}
	var rels []*entities.Relationship
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rels = append(rels, rel)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rels))
	var result []ports.RelatedEntity
	for _, rel := range rels {
		otherID := rel.TargetEntityID
		if otherID == entityID {
			otherID = rel.SourceEntityID
		}
		if seen[otherID] {
			continue
		}
		seen[otherID] = true
		if limit > 0 && len(result) >= limit {
			break
		}
		other, err := r.FindEntityByID(ctx, otherID)
		if err != nil {
			return nil, err
		}
		if other == nil {
			continue
		}
		result = append(result, ports.RelatedEntity{Entity: other, Relation: rel})
	}
	return result, nil
}

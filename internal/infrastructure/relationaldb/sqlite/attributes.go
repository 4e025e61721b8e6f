package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

const attributeColumns = `id, entity_id, key, value_kind, value, start_cycle, end_cycle, closed_cycle, superseded_by`

func scanAttribute(s scanner) (*entities.Attribute, error) {
	var a entities.Attribute
	var key, kind, value string
	var endCycle, closedCycle sql.NullInt64
	var supersededBy sql.NullString
	if err := s.Scan(
		&a.ID,
		&a.EntityID,
		&key,
		&kind,
		&value,
		&a.StartCycle,
		&endCycle,
		&closedCycle,
		&supersededBy,
	); err != nil {
		return nil, err
	}
	v, err := entities.DecodeValue(entities.ValueKind(kind), value)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.ID, err)
	}
	a.Key = entities.AttributeKey(key)
	a.Value = v
	a.EndCycle = intPtr(endCycle)
	a.ClosedCycle = intPtr(closedCycle)
	a.SupersededBy = supersededBy.String
	return &a, nil
}

// InsertAttribute stores a new attribute version. The game is taken from the
// owning entity.
func (r *Repository) InsertAttribute(ctx context.Context, attr *entities.Attribute) error {
	if attr.ID == "" {
		attr.ID = generateUUID()
	}
	kind, value, err := attr.Value.Encode()
	if err != nil {
		return err
	}
	query := `
		INSERT INTO attributes (id, game_id, entity_id, key, value_kind, value, start_cycle, end_cycle, closed_cycle, superseded_by)
		SELECT ?, game_id, id, ?, ?, ?, ?, ?, ?, ? FROM entities WHERE id = ?
	`
	res, err := r.q.ExecContext(ctx, query,
		attr.ID,
		string(attr.Key),
		string(kind),
		value,
		attr.StartCycle,
		nullInt(attr.EndCycle),
		nullInt(attr.ClosedCycle),
		nullString(attr.SupersededBy),
		attr.EntityID,
	)
	if err != nil {
		return fmt.Errorf("inserting attribute: %w", err)
	}
	n, err := rowsAffected(res, "attributes")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", entities.ErrEntityNotFound, attr.EntityID)
	}
	return nil
}

// CloseAttribute ends an active attribute version.
func (r *Repository) CloseAttribute(ctx context.Context, attrID string, endCycle, closedCycle int, supersededBy string) error {
	query := `
		UPDATE attributes SET end_cycle = ?, closed_cycle = ?, superseded_by = ?
		WHERE id = ? AND end_cycle IS NULL
	`
	res, err := r.q.ExecContext(ctx, query, endCycle, closedCycle, nullString(supersededBy), attrID)
	if err != nil {
		return fmt.Errorf("closing attribute: %w", err)
	}
	n, err := rowsAffected(res, "attributes")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attribute %s is not active", attrID)
	}
	return nil
}

// ActiveAttribute returns the active version of a key, or nil.
func (r *Repository) ActiveAttribute(ctx context.Context, entityID string, key entities.AttributeKey) (*entities.Attribute, error) {
	query := `SELECT ` + attributeColumns + ` FROM attributes WHERE entity_id = ? AND key = ? AND end_cycle IS NULL`
	a, err := scanAttribute(r.q.QueryRowContext(ctx, query, entityID, string(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning attribute: %w", err)
	}
	return a, nil
}

// ActiveAttributes returns the active version of every key of an entity.
func (r *Repository) ActiveAttributes(ctx context.Context, entityID string) ([]*entities.Attribute, error) {
	query := `
		SELECT ` + attributeColumns + ` FROM attributes
		WHERE entity_id = ? AND end_cycle IS NULL
		ORDER BY key ASC
	`
	return r.queryAttributes(ctx, query, entityID)
}

// AttributesAt returns, for every key, the version valid at cycle. When
// several versions cover the cycle the latest started one wins.
func (r *Repository) AttributesAt(ctx context.Context, entityID string, cycle int) ([]*entities.Attribute, error) {
	query := `
		SELECT ` + attributeColumns + ` FROM (
			SELECT a.*, ROW_NUMBER() OVER (
				PARTITION BY a.key ORDER BY a.start_cycle DESC, a.rowid DESC
			) AS rn
			FROM attributes a
			WHERE a.entity_id = ? AND a.start_cycle <= ? AND (a.end_cycle IS NULL OR a.end_cycle >= ?)
		)
		WHERE rn = 1
		ORDER BY key ASC
	`
	return r.queryAttributes(ctx, query, entityID, cycle, cycle)
}

// AttributeHistory returns every version of a key, oldest first.
func (r *Repository) AttributeHistory(ctx context.Context, entityID string, key entities.AttributeKey) ([]*entities.Attribute, error) {
	query := `
		SELECT ` + attributeColumns + ` FROM attributes
		WHERE entity_id = ? AND key = ?
		ORDER BY start_cycle ASC, rowid ASC
	`
	return r.queryAttributes(ctx, query, entityID, string(key))
}

func (r *Repository) queryAttributes(ctx context.Context, query string, args ...any) ([]*entities.Attribute, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attributes: %w", err)
	}
	defer rows.Close()

	var attrs []*entities.Attribute
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attribute: %w", err)
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

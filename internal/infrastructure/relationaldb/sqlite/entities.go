package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
)

const entityColumns = `e.id, e.game_id, e.type, e.name, e.normalized_name, e.known, e.unknown_alias, e.created_cycle, e.removed_cycle, e.created_at`

func scanEntity(s scanner) (*entities.Entity, error) {
	var e entities.Entity
	var entityType string
	var known int
	var removed sql.NullInt64
	if err := s.Scan(
		&e.ID,
		&e.GameID,
		&entityType,
		&e.Name,
		&e.NormalizedName,
		&known,
		&e.UnknownAlias,
		&e.CreatedCycle,
		&removed,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Type = entities.EntityType(entityType)
	e.Known = known != 0
	e.RemovedCycle = intPtr(removed)
	return &e, nil
}

// InsertEntity stores an entity row and its aliases.
func (r *Repository) InsertEntity(ctx context.Context, entity *entities.Entity) error {
	if entity.ID == "" {
		entity.ID = generateUUID()
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = timeNow()
	}
	entity.NormalizedName = entities.NormalizeName(entity.Name)

	query := `
		INSERT INTO entities (id, game_id, type, name, normalized_name, known, unknown_alias, created_cycle, removed_cycle, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		entity.ID,
		entity.GameID,
		string(entity.Type),
		entity.Name,
		entity.NormalizedName,
		boolInt(entity.Known),
		entity.UnknownAlias,
		entity.CreatedCycle,
		nullInt(entity.RemovedCycle),
		entity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", entities.ErrDuplicateName, entity.Name)
		}
		return fmt.Errorf("inserting entity: %w", err)
	}

	for _, alias := range entity.Aliases {
		normalized := entities.NormalizeName(alias)
		if normalized == "" || normalized == entity.NormalizedName {
			continue
		}
		_, err := r.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO entity_aliases (entity_id, alias, normalized_alias) VALUES (?, ?, ?)`,
			entity.ID, alias, normalized,
		)
		if err != nil {
			return fmt.Errorf("inserting alias: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertDetails stores the type-specific row of an entity.
func (r *Repository) InsertDetails(ctx context.Context, entityID string, entityType entities.EntityType, details entities.EntityDetails) error {
	details.EntityID = ""
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshaling details: %w", err)
	}
	query := `INSERT INTO entity_details (entity_id, entity_type, sector, data) VALUES (?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, entityID, string(entityType), details.Sector(), string(data)); err != nil {
		return fmt.Errorf("inserting entity details: %w", err)
	}
	return nil
}

// FindDetails returns the type-specific row of an entity.
func (r *Repository) FindDetails(ctx context.Context, entityID string) (*entities.EntityDetails, error) {
	var data string
	err := r.q.QueryRowContext(ctx, `SELECT data FROM entity_details WHERE entity_id = ?`, entityID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity details: %w", err)
	}
	var details entities.EntityDetails
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("unmarshaling entity details: %w", err)
	}
	details.EntityID = entityID
	return &details, nil
}

// MarkEntityRemoved soft-deletes an entity at cycle.
func (r *Repository) MarkEntityRemoved(ctx context.Context, entityID string, cycle int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE entities SET removed_cycle = ? WHERE id = ? AND removed_cycle IS NULL`,
		cycle, entityID,
	)
	if err != nil {
		return fmt.Errorf("removing entity: %w", err)
	}
	n, err := rowsAffected(res, "entities")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", entities.ErrEntityNotFound, entityID)
	}
	return nil
}

// FindEntityByID finds an entity by its ID, removed or not.
func (r *Repository) FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e WHERE e.id = ?`
	return r.findEntity(ctx, query, entityID)
}

// FindEntityByName finds an active entity by its normalized name (case-insensitive).
func (r *Repository) FindEntityByName(ctx context.Context, gameID, name string) (*entities.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities e
		WHERE e.game_id = ? AND e.normalized_name = ? AND e.removed_cycle IS NULL
	`
	return r.findEntity(ctx, query, gameID, entities.NormalizeName(name))
}

// FindProtagonist finds the active protagonist of a game.
func (r *Repository) FindProtagonist(ctx context.Context, gameID string) (*entities.Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM entities e
		WHERE e.game_id = ? AND e.type = ? AND e.removed_cycle IS NULL
		ORDER BY e.created_cycle ASC, e.rowid ASC
		LIMIT 1
	`
	return r.findEntity(ctx, query, gameID, string(entities.EntityProtagonist))
}

func (r *Repository) findEntity(ctx context.Context, query string, args ...any) (*entities.Entity, error) {
	entity, err := scanEntity(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if err := r.loadAliases(ctx, []*entities.Entity{entity}); err != nil {
		return nil, err
	}
	return entity, nil
}

// ListEntities lists the entities of a game, most recently created first.
func (r *Repository) ListEntities(ctx context.Context, gameID string, filter ports.EntityFilter) ([]*entities.Entity, error) {
	var b strings.Builder
	args := []any{gameID}
	b.WriteString(`SELECT ` + entityColumns + ` FROM entities e WHERE e.game_id = ?`)
	if filter.Type != "" {
		b.WriteString(` AND e.type = ?`)
		args = append(args, string(filter.Type))
	}
	if !filter.IncludeRemoved {
		b.WriteString(` AND e.removed_cycle IS NULL`)
	}
	b.WriteString(` ORDER BY e.created_cycle DESC, e.rowid DESC`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, filter.Limit, filter.Offset)
	}

	result, err := r.queryEntities(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	if err := r.loadAliases(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// EntityNames returns the names of all active entities of a game, sorted.
func (r *Repository) EntityNames(ctx context.Context, gameID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT name FROM entities WHERE game_id = ? AND removed_cycle IS NULL ORDER BY normalized_name ASC`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entity names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning entity name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Repository) queryEntities(ctx context.Context, query string, args ...any) ([]*entities.Entity, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var result []*entities.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		result = append(result, entity)
	}
	return result, rows.Err()
}

// loadAliases fills the Aliases of the given entities in a single query.
func (r *Repository) loadAliases(ctx context.Context, list []*entities.Entity) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*entities.Entity, len(list))
	ids := make([]string, 0, len(list))
	for _, e := range list {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	marks, args := placeholders(ids)
	query := fmt.Sprintf(`
		SELECT entity_id, alias FROM entity_aliases
		WHERE entity_id IN (%s)
		ORDER BY entity_id, rowid
	`, marks)
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityID, alias string
		if err := rows.Scan(&entityID, &alias); err != nil {
			return fmt.Errorf("scanning alias: %w", err)
		}
		if e, ok := byID[entityID]; ok {
			e.Aliases = append(e.Aliases, alias)
		}
	}
	return rows.Err()
}

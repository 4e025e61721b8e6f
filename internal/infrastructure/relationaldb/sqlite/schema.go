package sqlite

import (
	"context"
	"fmt"
)

// The partial unique indexes on attributes and relations allow a single
// active version per slot, so a close-then-insert pair that is not atomic
// fails instead of leaving two active rows.
const schema = `
	-- Games (one narrative run each)
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		current_cycle INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Entities (soft-deleted through removed_cycle)
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		known INTEGER NOT NULL DEFAULT 1,
		unknown_alias TEXT NOT NULL DEFAULT '',
		created_cycle INTEGER NOT NULL,
		removed_cycle INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_active_name
		ON entities(game_id, normalized_name) WHERE removed_cycle IS NULL;
	CREATE INDEX IF NOT EXISTS idx_entities_game_type ON entities(game_id, type);
	CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(game_id, created_cycle);

	CREATE TABLE IF NOT EXISTS entity_aliases (
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		normalized_alias TEXT NOT NULL,
		PRIMARY KEY (entity_id, normalized_alias)
	);
	CREATE INDEX IF NOT EXISTS idx_entity_aliases_alias ON entity_aliases(normalized_alias);

	-- Type-specific entity row (1:1, created with the entity)
	CREATE TABLE IF NOT EXISTS entity_details (
		entity_id TEXT PRIMARY KEY REFERENCES entities(id) ON DELETE CASCADE,
		entity_type TEXT NOT NULL,
		sector TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entity_details_sector ON entity_details(sector);

	-- Attribute versions
	CREATE TABLE IF NOT EXISTS attributes (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value_kind TEXT NOT NULL,
		value TEXT NOT NULL,
		start_cycle INTEGER NOT NULL,
		end_cycle INTEGER,
		closed_cycle INTEGER,
		superseded_by TEXT,
		CHECK (end_cycle IS NULL OR end_cycle >= start_cycle)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attributes_active
		ON attributes(entity_id, key) WHERE end_cycle IS NULL;
	CREATE INDEX IF NOT EXISTS idx_attributes_entity_key ON attributes(entity_id, key, start_cycle);
	CREATE INDEX IF NOT EXISTS idx_attributes_game ON attributes(game_id, start_cycle);

	-- Relation versions
	CREATE TABLE IF NOT EXISTS relations (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		source_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		target_entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		known_by_protagonist INTEGER NOT NULL DEFAULT 1,
		start_cycle INTEGER NOT NULL,
		end_cycle INTEGER,
		closed_cycle INTEGER,
		superseded_by TEXT,
		CHECK (end_cycle IS NULL OR end_cycle >= start_cycle)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_active
		ON relations(source_entity_id, target_entity_id, type) WHERE end_cycle IS NULL;
	CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_entity_id, type);
	CREATE INDEX IF NOT EXISTS idx_relations_game ON relations(game_id, start_cycle);

	CREATE TABLE IF NOT EXISTS relation_social (
		relation_id TEXT PRIMARY KEY REFERENCES relations(id) ON DELETE CASCADE,
		level INTEGER,
		context TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS relation_professional (
		relation_id TEXT PRIMARY KEY REFERENCES relations(id) ON DELETE CASCADE,
		position TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS relation_spatial (
		relation_id TEXT PRIMARY KEY REFERENCES relations(id) ON DELETE CASCADE,
		regularity TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS relation_ownership (
		relation_id TEXT PRIMARY KEY REFERENCES relations(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL DEFAULT 1,
		acquisition TEXT NOT NULL DEFAULT ''
	);

	-- Facts (append-only, deduplicated per cycle)
	CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		cycle INTEGER NOT NULL,
		type TEXT NOT NULL,
		domain TEXT NOT NULL,
		description TEXT NOT NULL,
		importance INTEGER NOT NULL CHECK (importance BETWEEN 1 AND 5),
		location_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
		semantic_key TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(game_id, cycle, semantic_key)
	);
	CREATE INDEX IF NOT EXISTS idx_facts_game_cycle ON facts(game_id, cycle);
	CREATE INDEX IF NOT EXISTS idx_facts_location ON facts(location_id);

	CREATE TABLE IF NOT EXISTS fact_participants (
		fact_id TEXT NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		role TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		PRIMARY KEY (fact_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_fact_participants_entity ON fact_participants(entity_id);

	-- Commitments (narrative promises)
	CREATE TABLE IF NOT EXISTS commitments (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		created_cycle INTEGER NOT NULL,
		deadline_cycle INTEGER,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_cycle INTEGER,
		resolution TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_commitments_game ON commitments(game_id, resolved);

	-- Scheduled events
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		planned_cycle INTEGER NOT NULL,
		planned_time TEXT NOT NULL DEFAULT '',
		location_id TEXT REFERENCES entities(id) ON DELETE SET NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_cycle INTEGER NOT NULL,
		closed_cycle INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_events_game ON events(game_id, status, planned_cycle);

	CREATE TABLE IF NOT EXISTS event_participants (
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		PRIMARY KEY (event_id, entity_id)
	);

	-- Conversation
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		cycle INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(game_id, seq)
	);

	CREATE TABLE IF NOT EXISTS cycle_summaries (
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		cycle INTEGER NOT NULL,
		summary TEXT NOT NULL,
		PRIMARY KEY (game_id, cycle)
	);

	-- Credit ledger
	CREATE TABLE IF NOT EXISTS credit_transactions (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		cycle INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		description TEXT NOT NULL,
		balance_after INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_credit_transactions_game ON credit_transactions(game_id, cycle);

	-- Change log (every populator mutation)
	CREATE TABLE IF NOT EXISTS changelog (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		action TEXT NOT NULL,
		target_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_changelog_game ON changelog(game_id, cycle);
	CREATE INDEX IF NOT EXISTS idx_changelog_action ON changelog(action);
`

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

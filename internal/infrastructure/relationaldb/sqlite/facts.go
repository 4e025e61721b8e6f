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

const factColumns = `f.id, f.game_id, f.cycle, f.type, f.domain, f.description, f.importance, f.location_id, f.semantic_key, f.created_at`

func scanFact(s scanner) (*entities.Fact, error) {
	var f entities.Fact
	var factType, domain string
	var locationID sql.NullString
	if err := s.Scan(
		&f.ID,
		&f.GameID,
		&f.Cycle,
		&factType,
		&domain,
		&f.Description,
		&f.Importance,
		&locationID,
		&f.SemanticKey,
		&f.CreatedAt,
	); err != nil {
		return nil, err
	}
	f.Type = entities.FactType(factType)
	f.Domain = entities.FactDomain(domain)
	f.LocationID = locationID.String
	return &f, nil
}

// InsertFact stores a fact and its participants. A fact whose (game, cycle,
// semantic key) already exists is ignored and false is returned.
func (r *Repository) InsertFact(ctx context.Context, fact *entities.Fact) (bool, error) {
	if err := fact.Validate(); err != nil {
		return false, err
	}
	if fact.ID == "" {
		fact.ID = generateUUID()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = timeNow()
	}
	if fact.SemanticKey == "" {
		fact.SemanticKey = entities.SemanticKey(fact.Type, fact.Description)
	}

	query := `
		INSERT OR IGNORE INTO facts (id, game_id, cycle, type, domain, description, importance, location_id, semantic_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.q.ExecContext(ctx, query,
		fact.ID,
		fact.GameID,
		fact.Cycle,
		string(fact.Type),
		string(fact.Domain),
		fact.Description,
		fact.Importance,
		nullString(fact.LocationID),
		fact.SemanticKey,
		fact.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting fact: %w", err)
	}
	n, err := rowsAffected(res, "facts")
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for i, p := range fact.Participants {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO fact_participants (fact_id, entity_id, role, position) VALUES (?, ?, ?, ?)`,
			fact.ID, p.EntityID, p.Role, i,
		)
		if err != nil {
			return false, fmt.Errorf("inserting fact participant: %w", err)
		}
	}
	return true, nil
}

// FindFactByKey finds the fact of a cycle with the given semantic key.
func (r *Repository) FindFactByKey(ctx context.Context, gameID string, cycle int, semanticKey string) (*entities.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts f WHERE f.game_id = ? AND f.cycle = ? AND f.semantic_key = ?`
	fact, err := scanFact(r.q.QueryRowContext(ctx, query, gameID, cycle, semanticKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning fact: %w", err)
	}
	if err := r.loadFactParticipants(ctx, []*entities.Fact{fact}); err != nil {
		return nil, err
	}
	return fact, nil
}

// ListFacts lists facts matching filter, most important first, then newest.
func (r *Repository) ListFacts(ctx context.Context, filter ports.FactFilter) ([]*entities.Fact, error) {
	if filter.GameID == "" {
		return nil, errors.New("listing facts requires a game")
	}
	conds := []string{"f.game_id = ?"}
	args := []any{filter.GameID}
	if filter.MinCycle > 0 {
		conds = append(conds, "f.cycle >= ?")
		args = append(args, filter.MinCycle)
	}
	if filter.MaxCycle > 0 {
		conds = append(conds, "f.cycle <= ?")
		args = append(args, filter.MaxCycle)
	}
	if filter.MinImportance > 0 {
		conds = append(conds, "f.importance >= ?")
		args = append(args, filter.MinImportance)
	}
	if filter.LocationID != "" {
		conds = append(conds, "f.location_id = ?")
		args = append(args, filter.LocationID)
	}
	if len(filter.ParticipantIDs) > 0 {
		marks, idArgs := placeholders(filter.ParticipantIDs)
		conds = append(conds, "EXISTS (SELECT 1 FROM fact_participants fp WHERE fp.fact_id = f.id AND fp.entity_id IN ("+marks+"))")
		args = append(args, idArgs...)
	}

	query := `SELECT ` + factColumns + ` FROM facts f WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY f.importance DESC, f.cycle DESC, f.rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	var facts []*entities.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, fact)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadFactParticipants(ctx, facts); err != nil {
		return nil, err
	}
	return facts, nil
}

func (r *Repository) loadFactParticipants(ctx context.Context, facts []*entities.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	byID := make(map[string]*entities.Fact, len(facts))
	ids := make([]string, 0, len(facts))
	for _, f := range facts {
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	marks, args := placeholders(ids)
	query := `
		SELECT fact_id, entity_id, role FROM fact_participants
		WHERE fact_id IN (` + marks + `)
		ORDER BY fact_id, position
	`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying fact participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var factID string
		var p entities.FactParticipant
		if err := rows.Scan(&factID, &p.EntityID, &p.Role); err != nil {
			return fmt.Errorf("scanning fact participant: %w", err)
		}
		if f, ok := byID[factID]; ok {
			f.Participants = append(f.Participants, p)
		}
	}
	return rows.Err()
}

// InsertCommitment stores a new unresolved commitment.
func (r *Repository) InsertCommitment(ctx context.Context, c *entities.Commitment) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	query := `
		INSERT INTO commitments (id, game_id, type, description, created_cycle, deadline_cycle, resolved, resolved_cycle, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		c.ID,
		c.GameID,
		string(c.Type),
		c.Description,
		c.CreatedCycle,
		nullInt(c.DeadlineCycle),
		boolInt(c.Resolved),
		nullInt(c.ResolvedCycle),
		c.Resolution,
	)
	if err != nil {
		return fmt.Errorf("inserting commitment: %w", err)
	}
	return nil
}

// ResolveCommitment marks an unresolved commitment as resolved.
func (r *Repository) ResolveCommitment(ctx context.Context, commitmentID string, cycle int, resolution string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE commitments SET resolved = 1, resolved_cycle = ?, resolution = ? WHERE id = ? AND resolved = 0`,
		cycle, resolution, commitmentID,
	)
	if err != nil {
		return fmt.Errorf("resolving commitment: %w", err)
	}
	n, err := rowsAffected(res, "commitments")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("commitment %s is not open", commitmentID)
	}
	return nil
}

// ListCommitments lists commitments by type priority, then deadline with
// open-ended ones last, then creation order.
func (r *Repository) ListCommitments(ctx context.Context, gameID string, unresolvedOnly bool, limit int) ([]*entities.Commitment, error) {
	query := `
		SELECT id, game_id, type, description, created_cycle, deadline_cycle, resolved, resolved_cycle, resolution
		FROM commitments
		WHERE game_id = ? AND (? = 0 OR resolved = 0)
		ORDER BY
			CASE type WHEN ? THEN 0 WHEN ? THEN 1 WHEN ? THEN 2 ELSE 3 END ASC,
			deadline_cycle IS NULL ASC,
			deadline_cycle ASC,
			created_cycle ASC,
			rowid ASC
	`
	args := []any{
		gameID,
		boolInt(unresolvedOnly),
		string(entities.CommitmentArc),
		string(entities.CommitmentSecret),
		string(entities.CommitmentChekhovGun),
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commitments: %w", err)
	}
	defer rows.Close()

	var result []*entities.Commitment
	for rows.Next() {
		var c entities.Commitment
		var commitmentType string
		var resolved int
		var deadline, resolvedCycle sql.NullInt64
		if err := rows.Scan(
			&c.ID,
			&c.GameID,
			&commitmentType,
			&c.Description,
			&c.CreatedCycle,
			&deadline,
			&resolved,
			&resolvedCycle,
			&c.Resolution,
		); err != nil {
			return nil, fmt.Errorf("scanning commitment: %w", err)
		}
		c.Type = entities.CommitmentType(commitmentType)
		c.Resolved = resolved != 0
		c.DeadlineCycle = intPtr(deadline)
		c.ResolvedCycle = intPtr(resolvedCycle)
		result = append(result, &c)
	}
	return result, rows.Err()
}

// InsertEvent stores a scheduled event and its participants.
func (r *Repository) InsertEvent(ctx context.Context, e *entities.ScheduledEvent) error {
	if e.ID == "" {
		e.ID = generateUUID()
	}
	if e.Status == "" {
		e.Status = entities.EventPending
	}
	query := `
		INSERT INTO events (id, game_id, title, description, planned_cycle, planned_time, location_id, status, created_cycle, closed_cycle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		e.ID,
		e.GameID,
		e.Title,
		e.Description,
		e.PlannedCycle,
		e.PlannedTime,
		nullString(e.LocationID),
		string(e.Status),
		e.CreatedCycle,
		nullInt(e.ClosedCycle),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	for i, id := range e.ParticipantIDs {
		_, err := r.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_participants (event_id, entity_id, position) VALUES (?, ?, ?)`,
			e.ID, id, i,
		)
		if err != nil {
			return fmt.Errorf("inserting event participant: %w", err)
		}
	}
	return nil
}

// CloseEvent moves a pending event to a terminal status.
func (r *Repository) CloseEvent(ctx context.Context, eventID string, status entities.EventStatus, cycle int) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: event status %q is not terminal", entities.ErrInvalidValue, status)
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE events SET status = ?, closed_cycle = ? WHERE id = ? AND status = ?`,
		string(status), cycle, eventID, string(entities.EventPending),
	)
	if err != nil {
		return fmt.Errorf("closing event: %w", err)
	}
	n, err := rowsAffected(res, "events")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s is not pending", eventID)
	}
	return nil
}

const eventColumns = `id, game_id, title, description, planned_cycle, planned_time, location_id, status, created_cycle, closed_cycle`

func scanEvent(s scanner) (*entities.ScheduledEvent, error) {
	var e entities.ScheduledEvent
	var status string
	var locationID sql.NullString
	var closedCycle sql.NullInt64
	if err := s.Scan(
		&e.ID,
		&e.GameID,
		&e.Title,
		&e.Description,
		&e.PlannedCycle,
		&e.PlannedTime,
		&locationID,
		&status,
		&e.CreatedCycle,
		&closedCycle,
	); err != nil {
		return nil, err
	}
	e.LocationID = locationID.String
	e.Status = entities.EventStatus(status)
	e.ClosedCycle = intPtr(closedCycle)
	return &e, nil
}

// FindEvent finds an event by ID.
func (r *Repository) FindEvent(ctx context.Context, eventID string) (*entities.ScheduledEvent, error) {
	e, err := scanEvent(r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}
	if err := r.loadEventParticipants(ctx, []*entities.ScheduledEvent{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvents lists events matching filter by planned cycle.
func (r *Repository) ListEvents(ctx context.Context, filter ports.EventFilter) ([]*entities.ScheduledEvent, error) {
	if filter.GameID == "" {
		return nil, errors.New("listing events requires a game")
	}
	conds := []string{"game_id = ?"}
	args := []any{filter.GameID}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.FromCycle > 0 {
		conds = append(conds, "planned_cycle >= ?")
		args = append(args, filter.FromCycle)
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY planned_cycle ASC, planned_time ASC, rowid ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	var events []*entities.ScheduledEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadEventParticipants(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Repository) loadEventParticipants(ctx context.Context, events []*entities.ScheduledEvent) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[string]*entities.ScheduledEvent, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	marks, args := placeholders(ids)
	query := `
		SELECT event_id, entity_id FROM event_participants
		WHERE event_id IN (` + marks + `)
		ORDER BY event_id, position
	`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying event participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, entityID string
		if err := rows.Scan(&eventID, &entityID); err != nil {
			return fmt.Errorf("scanning event participant: %w", err)
		}
		if e, ok := byID[eventID]; ok {
			e.ParticipantIDs = append(e.ParticipantIDs, entityID)
		}
	}
	return rows.Err()
}

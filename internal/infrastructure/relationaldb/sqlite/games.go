package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// InsertGame stores a new game.
func (r *Repository) InsertGame(ctx context.Context, game *entities.Game) error {
	if game.ID == "" {
		game.ID = generateUUID()
	}
	if game.CreatedAt.IsZero() {
		game.CreatedAt = timeNow()
	}
	query := `INSERT INTO games (id, name, current_cycle, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query, game.ID, game.Name, game.CurrentCycle, game.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

// UpdateGameCycle sets the current cycle of a game.
func (r *Repository) UpdateGameCycle(ctx context.Context, gameID string, cycle int) error {
	res, err := r.q.ExecContext(ctx, `UPDATE games SET current_cycle = ? WHERE id = ?`, cycle, gameID)
	if err != nil {
		return fmt.Errorf("updating game cycle: %w", err)
	}
	n, err := rowsAffected(res, "games")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", entities.ErrGameNotFound, gameID)
	}
	return nil
}

// FindGame finds a game by ID.
func (r *Repository) FindGame(ctx context.Context, gameID string) (*entities.Game, error) {
	row := r.q.QueryRowContext(ctx, `SELECT id, name, current_cycle, created_at FROM games WHERE id = ?`, gameID)

	var g entities.Game
	err := row.Scan(&g.ID, &g.Name, &g.CurrentCycle, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning game: %w", err)
	}
	return &g, nil
}

// ListGames lists all games, newest first.
func (r *Repository) ListGames(ctx context.Context) ([]*entities.Game, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, current_cycle, created_at FROM games ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []*entities.Game
	for rows.Next() {
		var g entities.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.CurrentCycle, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}

// InsertMessage stores a message, assigning the next sequence number of its game.
func (r *Repository) InsertMessage(ctx context.Context, m *entities.Message) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = timeNow()
	}
	query := `
		INSERT INTO messages (id, game_id, role, content, summary, cycle, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE game_id = ?), ?)
		RETURNING seq
	`
	err := r.q.QueryRowContext(ctx, query,
		m.ID,
		m.GameID,
		string(m.Role),
		m.Content,
		m.Summary,
		m.Cycle,
		m.GameID,
		m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

const messageColumns = `id, game_id, role, content, summary, cycle, seq, created_at`

func scanMessage(s scanner) (*entities.Message, error) {
	var m entities.Message
	var role string
	if err := s.Scan(&m.ID, &m.GameID, &role, &m.Content, &m.Summary, &m.Cycle, &m.Seq, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = entities.MessageRole(role)
	return &m, nil
}

// FindMessage finds a message of a game by ID.
func (r *Repository) FindMessage(ctx context.Context, gameID, messageID string) (*entities.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE game_id = ? AND id = ?`
	m, err := scanMessage(r.q.QueryRowContext(ctx, query, gameID, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return m, nil
}

// RecentMessages returns the latest messages of a game, oldest first.
func (r *Repository) RecentMessages(ctx context.Context, gameID string, withSummaryOnly bool, limit int) ([]*entities.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + ` FROM messages
			WHERE game_id = ? AND (? = 0 OR summary <> '')
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`
	rows, err := r.q.QueryContext(ctx, query, gameID, boolInt(withSummaryOnly), limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*entities.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpsertCycleSummary stores the summary of a cycle, replacing any previous one.
func (r *Repository) UpsertCycleSummary(ctx context.Context, s *entities.CycleSummary) error {
	query := `
		INSERT INTO cycle_summaries (game_id, cycle, summary) VALUES (?, ?, ?)
		ON CONFLICT(game_id, cycle) DO UPDATE SET summary = excluded.summary
	`
	if _, err := r.q.ExecContext(ctx, query, s.GameID, s.Cycle, s.Summary); err != nil {
		return fmt.Errorf("saving cycle summary: %w", err)
	}
	return nil
}

// CycleSummaries returns the latest summaries before a cycle, oldest first.
func (r *Repository) CycleSummaries(ctx context.Context, gameID string, beforeCycle, limit int) ([]*entities.CycleSummary, error) {
	query := `
		SELECT game_id, cycle, summary FROM (
			SELECT game_id, cycle, summary FROM cycle_summaries
			WHERE game_id = ? AND cycle < ?
			ORDER BY cycle DESC
			LIMIT ?
		) ORDER BY cycle ASC
	`
	rows, err := r.q.QueryContext(ctx, query, gameID, beforeCycle, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cycle summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]*entities.CycleSummary, 0, limit)
	for rows.Next() {
		var s entities.CycleSummary
		if err := rows.Scan(&s.GameID, &s.Cycle, &s.Summary); err != nil {
			return nil, fmt.Errorf("scanning cycle summary: %w", err)
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// InsertCreditTransaction appends a row to the credit ledger.
func (r *Repository) InsertCreditTransaction(ctx context.Context, t *entities.CreditTransaction) error {
	if t.ID == "" {
		t.ID = generateUUID()
	}
	query := `
		INSERT INTO credit_transactions (id, game_id, cycle, amount, description, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query, t.ID, t.GameID, t.Cycle, t.Amount, t.Description, t.BalanceAfter, timeNow())
	if err != nil {
		return fmt.Errorf("inserting credit transaction: %w", err)
	}
	return nil
}

// ListCreditTransactions returns the ledger of a game in order.
func (r *Repository) ListCreditTransactions(ctx context.Context, gameID string) ([]*entities.CreditTransaction, error) {
	query := `
		SELECT id, game_id, cycle, amount, description, balance_after
		FROM credit_transactions
		WHERE game_id = ?
		ORDER BY cycle ASC, rowid ASC
	`
	rows, err := r.q.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying credit transactions: %w", err)
	}
	defer rows.Close()

	var txs []*entities.CreditTransaction
	for rows.Next() {
		var t entities.CreditTransaction
		if err := rows.Scan(&t.ID, &t.GameID, &t.Cycle, &t.Amount, &t.Description, &t.BalanceAfter); err != nil {
			return nil, fmt.Errorf("scanning credit transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// LogChange appends an entry to the change log.
func (r *Repository) LogChange(ctx context.Context, entry *entities.ChangeEntry) error {
	var detailsJSON sql.NullString
	if entry.Details != nil {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = timeNow()
	}

	query := `
		INSERT INTO changelog (game_id, cycle, action, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.q.QueryRowContext(ctx, query,
		entry.GameID,
		entry.Cycle,
		string(entry.Action),
		nullString(entry.TargetID),
		detailsJSON,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("logging change: %w", err)
	}
	return nil
}

// ListChanges returns the latest change log entries of a game, newest first.
func (r *Repository) ListChanges(ctx context.Context, gameID string, limit int) ([]*entities.ChangeEntry, error) {
	query := `
		SELECT id, game_id, cycle, action, target_id, details, created_at
		FROM changelog
		WHERE game_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.q.QueryContext(ctx, query, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying change log: %w", err)
	}
	defer rows.Close()

	entries := make([]*entities.ChangeEntry, 0, limit)
	for rows.Next() {
		var entry entities.ChangeEntry
		var action string
		var targetID, details sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.GameID,
			&entry.Cycle,
			&action,
			&targetID,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning change entry: %w", err)
		}

		entry.Action = entities.ChangeAction(action)
		entry.TargetID = targetID.String

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

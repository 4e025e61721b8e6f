package sqlite

import (
	"context"
	"fmt"
)

// exec runs a single statement and returns the number of rows it touched.
func (r *Repository) exec(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return rowsAffected(res, what)
}

// DeleteAttributesStartedAfter deletes attribute versions started after cycle.
func (r *Repository) DeleteAttributesStartedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting attributes",
		`DELETE FROM attributes WHERE game_id = ? AND start_cycle > ?`, gameID, cycle)
}

// ReopenAttributesClosedAfter reopens attribute versions closed after cycle.
// Must run after DeleteAttributesStartedAfter, or the reopened rows collide
// with their successors on the active index.
func (r *Repository) ReopenAttributesClosedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "reopening attributes", `
		UPDATE attributes SET end_cycle = NULL, closed_cycle = NULL, superseded_by = NULL
		WHERE game_id = ? AND closed_cycle > ?
	`, gameID, cycle)
}

// DeleteRelationsStartedAfter deletes relation versions started after cycle.
func (r *Repository) DeleteRelationsStartedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting relations",
		`DELETE FROM relations WHERE game_id = ? AND start_cycle > ?`, gameID, cycle)
}

// ReopenRelationsClosedAfter reopens relation versions closed after cycle.
func (r *Repository) ReopenRelationsClosedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "reopening relations", `
		UPDATE relations SET end_cycle = NULL, closed_cycle = NULL, superseded_by = NULL
		WHERE game_id = ? AND closed_cycle > ?
	`, gameID, cycle)
}

// DeleteEntitiesCreatedAfter deletes entities created after cycle. Their
// aliases, details, attributes, relations and participations cascade.
func (r *Repository) DeleteEntitiesCreatedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting entities",
		`DELETE FROM entities WHERE game_id = ? AND created_cycle > ?`, gameID, cycle)
}

// RestoreEntitiesRemovedAfter clears removals recorded after cycle.
func (r *Repository) RestoreEntitiesRemovedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "restoring entities",
		`UPDATE entities SET removed_cycle = NULL WHERE game_id = ? AND removed_cycle > ?`, gameID, cycle)
}

// DeleteFactsAfter deletes facts of cycles after cycle.
func (r *Repository) DeleteFactsAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting facts",
		`DELETE FROM facts WHERE game_id = ? AND cycle > ?`, gameID, cycle)
}

// DeleteCommitmentsCreatedAfter deletes commitments created after cycle.
func (r *Repository) DeleteCommitmentsCreatedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting commitments",
		`DELETE FROM commitments WHERE game_id = ? AND created_cycle > ?`, gameID, cycle)
}

// ReopenCommitmentsResolvedAfter clears resolutions recorded after cycle.
func (r *Repository) ReopenCommitmentsResolvedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "reopening commitments", `
		UPDATE commitments SET resolved = 0, resolved_cycle = NULL, resolution = ''
		WHERE game_id = ? AND resolved_cycle > ?
	`, gameID, cycle)
}

// DeleteEventsCreatedAfter deletes events scheduled after cycle.
func (r *Repository) DeleteEventsCreatedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting events",
		`DELETE FROM events WHERE game_id = ? AND created_cycle > ?`, gameID, cycle)
}

// ReopenEventsClosedAfter moves events closed after cycle back to pending.
func (r *Repository) ReopenEventsClosedAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "reopening events",
		`UPDATE events SET status = 'pending', closed_cycle = NULL WHERE game_id = ? AND closed_cycle > ?`,
		gameID, cycle)
}

// DeleteCreditTransactionsAfter deletes ledger rows after cycle.
func (r *Repository) DeleteCreditTransactionsAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting credit transactions",
		`DELETE FROM credit_transactions WHERE game_id = ? AND cycle > ?`, gameID, cycle)
}

// DeleteCycleSummariesAfter deletes cycle summaries after cycle.
func (r *Repository) DeleteCycleSummariesAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting cycle summaries",
		`DELETE FROM cycle_summaries WHERE game_id = ? AND cycle > ?`, gameID, cycle)
}

// DeleteChangesAfter deletes change log entries after cycle.
func (r *Repository) DeleteChangesAfter(ctx context.Context, gameID string, cycle int) (int64, error) {
	return r.exec(ctx, "deleting change log",
		`DELETE FROM changelog WHERE game_id = ? AND cycle > ?`, gameID, cycle)
}

// DeleteMessagesFrom deletes messages with seq >= fromSeq.
func (r *Repository) DeleteMessagesFrom(ctx context.Context, gameID string, fromSeq int64) (int64, error) {
	return r.exec(ctx, "deleting messages",
		`DELETE FROM messages WHERE game_id = ? AND seq >= ?`, gameID, fromSeq)
}

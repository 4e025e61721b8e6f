package services

import (
	"context"
	"fmt"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"go.uber.org/zap"
)

// RollbackStats counts the rows a rollback reverted, per category.
type RollbackStats struct {
	Boundary            int   `json:"boundary"`
	AttributesDeleted   int64 `json:"attributes_deleted"`
	AttributesReopened  int64 `json:"attributes_reopened"`
	RelationsDeleted    int64 `json:"relations_deleted"`
	RelationsReopened   int64 `json:"relations_reopened"`
	EntitiesDeleted     int64 `json:"entities_deleted"`
	EntitiesRestored    int64 `json:"entities_restored"`
	FactsDeleted        int64 `json:"facts_deleted"`
	CommitmentsDeleted  int64 `json:"commitments_deleted"`
	CommitmentsReopened int64 `json:"commitments_reopened"`
	EventsDeleted       int64 `json:"events_deleted"`
	EventsReopened      int64 `json:"events_reopened"`
	CreditsDeleted      int64 `json:"credit_transactions_deleted"`
	SummariesDeleted    int64 `json:"summaries_deleted"`
	ChangesDeleted      int64 `json:"changes_deleted"`
	MessagesDeleted     int64 `json:"messages_deleted"`
}

// Total returns the number of rows touched.
func (s *RollbackStats) Total() int64 {
	return s.AttributesDeleted + s.AttributesReopened + s.RelationsDeleted + s.RelationsReopened +
		s.EntitiesDeleted + s.EntitiesRestored + s.FactsDeleted + s.CommitmentsDeleted +
		s.CommitmentsReopened + s.EventsDeleted + s.EventsReopened + s.CreditsDeleted +
		s.SummariesDeleted + s.ChangesDeleted + s.MessagesDeleted
}

// RollbackToMessage returns the world to the state it had at a message.
//
// With includeMessage false the message is kept and the boundary is its
// cycle. With includeMessage true the message is removed too and the boundary
// is the cycle before it. The boundary never goes below cycle 1, so the
// generated world survives.
//
// Every version started after the boundary is deleted and every version
// closed after it is reopened, in that order, so the reopened rows never
// collide with their successors.
func (p *Populator) RollbackToMessage(ctx context.Context, gameID, messageID string, includeMessage bool) (*RollbackStats, error) {
	target, err := p.store.FindMessage(ctx, gameID, messageID)
	if err != nil {
		return nil, fmt.Errorf("finding message: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrMessageNotFound, messageID)
	}

	boundary := target.Cycle
	fromSeq := target.Seq + 1
	if includeMessage {
		boundary = target.Cycle - 1
		fromSeq = target.Seq
	}
	boundary = max(boundary, worldCycle)

	stats := &RollbackStats{Boundary: boundary}
	_, err = p.run(ctx, gameID, func(w *txWriter) error {
		tx := w.tx
		steps := []struct {
			count *int64
			fn    func(context.Context, string, int) (int64, error)
		}{
			{&stats.AttributesDeleted, tx.DeleteAttributesStartedAfter},
			{&stats.AttributesReopened, tx.ReopenAttributesClosedAfter},
			{&stats.RelationsDeleted, tx.DeleteRelationsStartedAfter},
			{&stats.RelationsReopened, tx.ReopenRelationsClosedAfter},
			{&stats.EntitiesDeleted, tx.DeleteEntitiesCreatedAfter},
			{&stats.EntitiesRestored, tx.RestoreEntitiesRemovedAfter},
			{&stats.FactsDeleted, tx.DeleteFactsAfter},
			{&stats.CommitmentsDeleted, tx.DeleteCommitmentsCreatedAfter},
			{&stats.CommitmentsReopened, tx.ReopenCommitmentsResolvedAfter},
			{&stats.EventsDeleted, tx.DeleteEventsCreatedAfter},
			{&stats.EventsReopened, tx.ReopenEventsClosedAfter},
			{&stats.CreditsDeleted, tx.DeleteCreditTransactionsAfter},
			{&stats.SummariesDeleted, tx.DeleteCycleSummariesAfter},
			{&stats.ChangesDeleted, tx.DeleteChangesAfter},
		}
		for _, step := range steps {
			n, err := step.fn(ctx, gameID, boundary)
			if err != nil {
				return err
			}
			*step.count = n
		}

		n, err := tx.DeleteMessagesFrom(ctx, gameID, fromSeq)
		if err != nil {
			return err
		}
		stats.MessagesDeleted = n

		if err := tx.UpdateGameCycle(ctx, gameID, boundary); err != nil {
			return err
		}
		return w.logChange(ctx, boundary, entities.ActionRollback, messageID, map[string]any{
			"include_message": includeMessage,
			"rows":            stats.Total(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("rolling back: %w", err)
	}

	if err := p.index.DeleteFactsAfter(ctx, gameID, boundary); err != nil {
		p.logger.Warn("removing indexed facts failed", zap.String("game_id", gameID), zap.Error(err))
	}

	p.logger.Info("rolled back",
		zap.String("game_id", gameID),
		zap.String("message_id", messageID),
		zap.Int("boundary", boundary),
		zap.Int64("rows", stats.Total()))
	return stats, nil
}

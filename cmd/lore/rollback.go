package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

type rollbackFlags struct {
	last    bool
	include bool
}

func newRollbackCmd() *cobra.Command {
	var flags rollbackFlags

	cmd := &cobra.Command{
		Use:   "rollback [message-id]",
		Short: "Undo the world changes made since a message",
		Long: `Removes every world change recorded at or after the cycle of a message and
every later message. With --include the message itself is removed too.

Examples:
  lore rollback --game harbor --last
  lore rollback --game harbor 3f2a9c1e-... --include`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.last, "last", false, "Undo the last player turn")
	cmd.Flags().BoolVar(&flags.include, "include", false, "Remove the message itself too")

	return cmd
}

func runRollback(cmd *cobra.Command, args []string, flags rollbackFlags) error {
	ctx := cmd.Context()

	if flags.last == (len(args) == 1) {
		return errors.New("give either a message ID or --last")
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		var (
			stats *services.RollbackStats
			err   error
		)
		if flags.last {
			stats, err = d.Rollback.HandleLastTurn(ctx, game.ID)
		} else {
			stats, err = d.Rollback.Handle(ctx, game.ID, args[0], flags.include)
		}
		if err != nil {
			return fmt.Errorf("rolling back: %w", err)
		}

		fmt.Printf("Rolled back from cycle %d:\n", stats.Boundary)
		fmt.Printf("  attributes: %d deleted, %d reopened\n", stats.AttributesDeleted, stats.AttributesReopened)
		fmt.Printf("  relations:  %d deleted, %d reopened\n", stats.RelationsDeleted, stats.RelationsReopened)
		fmt.Printf("  entities:   %d deleted, %d restored\n", stats.EntitiesDeleted, stats.EntitiesRestored)
		fmt.Printf("  facts:      %d deleted\n", stats.FactsDeleted)
		fmt.Printf("  commitments: %d deleted, %d reopened\n", stats.CommitmentsDeleted, stats.CommitmentsReopened)
		fmt.Printf("  events:     %d deleted, %d reopened\n", stats.EventsDeleted, stats.EventsReopened)
		return nil
	})
}

func newMessagesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List the latest messages of a game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withGame(ctx, func(d *Deps, game *entities.Game) error {
				msgs, err := d.Rollback.HandleMessages(ctx, game.ID, limit)
				if err != nil {
					return err
				}
				if len(msgs) == 0 {
					fmt.Println("No messages yet.")
					return nil
				}
				for _, m := range msgs {
					text := m.Summary
					if text == "" {
						text = m.Content
					}
					fmt.Printf("%s %-9s %s %s\n", shortID(m.ID), m.Role, dim(fmt.Sprintf("c%d", m.Cycle)), firstLine(text))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultMessageLimit, "Maximum number of messages")

	return cmd
}

func firstLine(s string) string {
	const width = 72
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if r := []rune(s); len(r) > width {
		return string(r[:width-3]) + "..."
	}
	return s
}

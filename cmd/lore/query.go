package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

func newQueryCmd() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Search for facts",
		Long:  "Performs semantic search over the game's facts. Requires a Qdrant host.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), limit, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultQueryLimit, "Maximum number of results")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json")

	return cmd
}

func runQuery(cmd *cobra.Command, query string, limit int, format string) error {
	ctx := cmd.Context()

	if err := checkFormat(format); err != nil {
		return err
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		result, err := d.Query.Handle(ctx, game.ID, query, limit)
		if err != nil {
			return fmt.Errorf("querying facts: %w", err)
		}
		if format == "json" {
			return printJSON(result)
		}

		if len(result.Hits) == 0 {
			fmt.Println("No facts found.")
			return nil
		}

		fmt.Printf("Found %d facts:\n\n", len(result.Hits))
		for i, hit := range result.Hits {
			fmt.Printf("%d. %s\n", i+1, hit.Description)
			fmt.Println(dim(fmt.Sprintf("   cycle %d, importance %d, score %.3f", hit.Cycle, hit.Importance, hit.Score)))
		}
		return nil
	})
}

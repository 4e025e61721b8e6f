package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/application/handlers"
	"github.com/ersonp/lore-state/internal/domain/entities"
)

type relationsFlags struct {
	relTypes []string
	atCycle  int
	format   string
}

func newRelationsCmd() *cobra.Command {
	var flags relationsFlags

	cmd := &cobra.Command{
		Use:   "relations <entity>",
		Short: "List relationships for an entity",
		Long: `Shows the relationships connected to an entity in either direction,
with optional filtering by type or cycle.

Examples:
  lore relations --game harbor "Mara Voss"
  lore relations --game harbor "Mara Voss" --type works_at,owes
  lore relations --game harbor "Rust Bar" --at-cycle 3 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelations(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.relTypes, "type", nil, "Filter by relationship type")
	cmd.Flags().IntVar(&flags.atCycle, "at-cycle", 0, "Show the relationships valid at this cycle")
	cmd.Flags().StringVar(&flags.format, "format", "tree", "Output format: tree, list, json")

	return cmd
}

func runRelations(cmd *cobra.Command, ref string, flags relationsFlags) error {
	ctx := cmd.Context()

	switch flags.format {
	case "tree", "list", "json":
	default:
		return fmt.Errorf("invalid format: %s (valid: tree, list, json)", flags.format)
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		result, err := d.Relationships.HandleList(ctx, game.ID, ref, handlers.ListOptions{
			Types:   flags.relTypes,
			AtCycle: flags.atCycle,
		})
		if err != nil {
			return fmt.Errorf("listing relationships: %w", err)
		}

		if flags.format == "json" {
			return printJSON(result)
		}
		if len(result.Relationships) == 0 {
			fmt.Printf("No relationships found for entity: %s\n", result.Entity.Name)
			return nil
		}
		if flags.format == "list" {
			printRelationsList(result)
		} else {
			printRelationsTree(result)
		}
		return nil
	})
}

func printRelationsList(result *handlers.ListResult) {
	fmt.Printf("Relationships for %s:\n", result.Entity.Name)
	fmt.Println(strings.Repeat("-", 60))

	for _, info := range result.Relationships {
		rel := info.Relationship
		fmt.Printf("%s -> [%s] -> %s %s%s\n",
			entityName(info.SourceEntity),
			rel.Type,
			entityName(info.TargetEntity),
			dim(cycleRange(rel.StartCycle, rel.EndCycle)),
			relationNote(rel),
		)
	}
}

func printRelationsTree(result *handlers.ListResult) {
	fmt.Printf("%s\n", heading(result.Entity.Name))

	for i, info := range result.Relationships {
		rel := info.Relationship

		prefix := "+-"
		if i == len(result.Relationships)-1 {
			prefix = "\\-"
		}

		// Incoming relations point back at the root.
		arrow, other := "->", info.TargetEntity
		if rel.TargetEntityID == result.Entity.ID {
			arrow, other = "<-", info.SourceEntity
		}

		fmt.Printf("%s %s %s %s%s\n", prefix, rel.Type, arrow, entityName(other), relationNote(rel))
	}
}

func relationNote(rel *entities.Relationship) string {
	var notes []string
	if lvl := rel.Attributes.Level(); lvl != nil {
		notes = append(notes, fmt.Sprintf("level %d", *lvl))
	}
	if rel.Attributes.Ownership != nil && rel.Attributes.Ownership.Quantity > 1 {
		notes = append(notes, fmt.Sprintf("x%d", rel.Attributes.Ownership.Quantity))
	}
	if !rel.KnownByProtagonist {
		notes = append(notes, "hidden")
	}
	if len(notes) == 0 {
		return ""
	}
	return " " + dim("("+strings.Join(notes, ", ")+")")
}

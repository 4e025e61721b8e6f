package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

type entitiesFlags struct {
	entityType string
	limit      int
	offset     int
	cycle      int
	format     string
}

func newEntitiesCmd() *cobra.Command {
	var flags entitiesFlags

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Inspect the entities of a game",
		Long: `Lists the active entities of a game, or shows one entity's attributes.

Examples:
  lore entities --game harbor
  lore entities --game harbor --type character
  lore entities show --game harbor "Mara Voss" --cycle 4
  lore entities history --game harbor "Mara Voss" mood`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntitiesList(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.format, "format", "text", "Output format: text, json")
	cmd.Flags().StringVarP(&flags.entityType, "type", "t", "", "Filter by entity type ("+typeNames()+")")
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", DefaultListLimit, "Maximum number of entities to return")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "Number of entities to skip")

	show := &cobra.Command{
		Use:   "show <entity>",
		Short: "Show an entity with its attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityShow(cmd, args[0], flags)
		},
	}
	show.Flags().IntVar(&flags.cycle, "cycle", 0, "Show attributes as of this cycle")

	history := &cobra.Command{
		Use:   "history <entity> <key>",
		Short: "Show every version of an attribute",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntityHistory(cmd, args[0], args[1], flags)
		},
	}

	cmd.AddCommand(show, history)

	return cmd
}

func typeNames() string {
	names := make([]string, len(entities.EntityTypes))
	for i, t := range entities.EntityTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func runEntitiesList(cmd *cobra.Command, flags entitiesFlags) error {
	ctx := cmd.Context()

	if err := checkFormat(flags.format); err != nil {
		return err
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		result, err := d.Entities.HandleList(ctx, game.ID, flags.entityType, flags.limit, flags.offset)
		if err != nil {
			return fmt.Errorf("listing entities: %w", err)
		}
		if flags.format == "json" {
			return printJSON(result)
		}

		if len(result.Entities) == 0 {
			fmt.Println("No entities found.")
			return nil
		}

		fmt.Printf("Entities (%d total):\n\n", result.Total)
		for _, e := range result.Entities {
			name := e.Name
			if !e.Known {
				name += dim(" (unknown to protagonist)")
			}
			fmt.Printf("  %-10s %-14s %s\n", shortID(e.ID), e.Type, name)
		}
		return nil
	})
}

func runEntityShow(cmd *cobra.Command, ref string, flags entitiesFlags) error {
	ctx := cmd.Context()

	if err := checkFormat(flags.format); err != nil {
		return err
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		view, err := d.Entities.HandleShow(ctx, game.ID, ref, flags.cycle)
		if err != nil {
			return err
		}
		if flags.format == "json" {
			return printJSON(view)
		}

		e := view.Entity
		fmt.Printf("%s (%s)\n", heading(e.Name), e.Type)
		fmt.Printf("ID:      %s\n", e.ID)
		fmt.Printf("Created: cycle %d\n", e.CreatedCycle)
		if e.RemovedCycle != nil {
			fmt.Printf("Removed: cycle %d\n", *e.RemovedCycle)
		}
		if len(e.Aliases) > 0 {
			fmt.Printf("Aliases: %s\n", strings.Join(e.Aliases, ", "))
		}
		if view.Cycle > 0 {
			fmt.Printf("\nAttributes at cycle %d:\n", view.Cycle)
		} else {
			fmt.Println("\nAttributes:")
		}
		fmt.Println(formatAttributes(view.Attributes))
		return nil
	})
}

func runEntityHistory(cmd *cobra.Command, ref, key string, flags entitiesFlags) error {
	ctx := cmd.Context()

	if err := checkFormat(flags.format); err != nil {
		return err
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		result, err := d.Entities.HandleHistory(ctx, game.ID, ref, key)
		if err != nil {
			return err
		}
		if flags.format == "json" {
			return printJSON(result)
		}

		if len(result.Versions) == 0 {
			fmt.Printf("%s has no %q attribute.\n", result.Entity.Name, result.Key)
			return nil
		}
		fmt.Printf("%s %s:\n", heading(result.Entity.Name), result.Key)
		fmt.Println(formatAttributes(result.Versions))
		return nil
	})
}

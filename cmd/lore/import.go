package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/application/handlers"
	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

type importFlags struct {
	format   string
	dryRun   bool
	generate string
}

func newImportCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import [seed-file]",
		Short: "Populate a game's world from a seed",
		Long: `Creates the protagonist, locations, characters and other entities of a
new game from a JSON or YAML world seed, or asks the LLM to invent one.

Examples:
  lore import --game harbor world.yaml
  lore import --game harbor --generate "a rain-soaked port city run by syndicates"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format: json, yaml, or auto")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Parse and validate without writing")
	cmd.Flags().StringVar(&flags.generate, "generate", "", "Generate the world from this premise instead of a file")

	return cmd
}

func runImport(cmd *cobra.Command, args []string, flags importFlags) error {
	ctx := cmd.Context()

	if (len(args) == 0) == (flags.generate == "") {
		return errors.New("give either a seed file or --generate")
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		var (
			result *handlers.SeedResult
			err    error
		)
		if flags.generate != "" {
			fmt.Println("Generating world...")
			result, err = d.Import.HandleGenerate(ctx, game.ID, flags.generate)
		} else {
			result, err = d.Import.HandleSeed(ctx, game.ID, args[0], handlers.ImportOptions{
				Format: flags.format,
				DryRun: flags.dryRun,
			})
		}
		if err != nil {
			return fmt.Errorf("populating world: %w", err)
		}

		printSeed(result.Seed)
		if flags.dryRun {
			fmt.Println(dim("Dry run: nothing written."))
			return nil
		}
		printStats(result.Stats)
		return nil
	})
}

func printSeed(seed *entities.WorldSeed) {
	fmt.Printf("%s %s\n", heading("Protagonist:"), seed.Protagonist.Name)
	if seed.StartLocation != "" {
		fmt.Printf("%s %s\n", heading("Starts at:"), seed.StartLocation)
	}
	counts := map[string]int{}
	for _, e := range seed.Entities() {
		counts[e.EntityType]++
	}
	parts := make([]string, 0, len(counts))
	for _, t := range entities.EntityTypes {
		if n := counts[string(t)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, t))
		}
	}
	fmt.Printf("%s %s\n", heading("Entities:"), strings.Join(parts, ", "))
}

func printStats(s *services.ApplyStats) {
	if s == nil {
		return
	}
	fmt.Printf("Entities: %d created, %d updated, %d attributes set\n", s.EntitiesCreated, s.EntitiesUpdated, s.AttributesSet)
	fmt.Printf("Relations: %d created, %d updated, %d ended\n", s.RelationsCreated, s.RelationsUpdated, s.RelationsEnded)
	fmt.Printf("Facts: %d created, %d duplicates\n", s.FactsCreated, s.FactsDeduplicated)
	if n := s.CreditTransactions + s.GaugeChanges + s.InventoryChanges; n > 0 {
		fmt.Printf("Protagonist: %d credit, %d gauge, %d inventory changes\n", s.CreditTransactions, s.GaugeChanges, s.InventoryChanges)
	}
	if s.CommitmentsCreated+s.CommitmentsResolved > 0 {
		fmt.Printf("Commitments: %d created, %d resolved\n", s.CommitmentsCreated, s.CommitmentsResolved)
	}
	if s.EventsScheduled > 0 {
		fmt.Printf("Events: %d scheduled\n", s.EventsScheduled)
	}
	if s.Skipped > 0 {
		fmt.Println(dim(fmt.Sprintf("%d item(s) already true of the world", s.Skipped)))
	}
}

type applyFlags struct {
	format string
	dryRun bool
	cycle  int
}

func newApplyCmd() *cobra.Command {
	var flags applyFlags

	cmd := &cobra.Command{
		Use:   "apply <payload-file>",
		Short: "Apply an extraction payload to a game",
		Long: `Applies a hand-written or saved extraction payload (JSON or YAML) in one
transaction. Invalid items are reported and skipped; the rest is applied.

Examples:
  lore apply --game harbor turn-12.yaml
  lore apply --game harbor --cycle 12 --dry-run turn.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format: json, yaml, or auto")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate without writing")
	cmd.Flags().IntVar(&flags.cycle, "cycle", 0, "Cycle to apply at (default: the file's, else the current cycle)")

	return cmd
}

func runApply(cmd *cobra.Command, path string, flags applyFlags) error {
	ctx := cmd.Context()

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		result, err := d.Import.HandlePayload(ctx, game.ID, path, handlers.ImportOptions{
			Format: flags.format,
			DryRun: flags.dryRun,
			Cycle:  flags.cycle,
		})
		if err != nil {
			return fmt.Errorf("applying payload: %w", err)
		}

		fmt.Printf("Cycle %d\n", result.Cycle)
		if !flags.dryRun {
			printStats(&result.Stats)
		}
		printItemErrors(result.Errors)
		if flags.dryRun && len(result.Errors) == 0 {
			fmt.Println("Payload is valid.")
		}
		return nil
	})
}

func printItemErrors(items []*entities.ItemError) {
	if len(items) == 0 {
		return
	}
	fmt.Println(warn(fmt.Sprintf("%d item(s) rejected:", len(items))))
	for _, item := range items {
		fmt.Printf("  %s\n", item.Error())
	}
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

type narrateFlags struct {
	noIngest bool
	hints    []string
	location string
}

func newNarrateCmd() *cobra.Command {
	var flags narrateFlags

	cmd := &cobra.Command{
		Use:   "narrate <player input>",
		Short: "Play one turn",
		Long: `Assembles the context for the current cycle, streams the narrator's reply
and feeds the narration back through the extraction pipeline.

Examples:
  lore narrate --game harbor "I ask Mara about the shipment"
  lore narrate --game harbor --hints all "I pay the fixer 200 credits"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNarrate(cmd, strings.Join(args, " "), flags)
		},
	}

	addTurnFlags(cmd, &flags)

	return cmd
}

func addTurnFlags(cmd *cobra.Command, flags *narrateFlags) {
	cmd.Flags().BoolVar(&flags.noIngest, "no-ingest", false, "Do not extract world changes from the narration")
	cmd.Flags().StringSliceVar(&flags.hints, "hints", nil, "Extraction subtasks to run: entities, relations, state, commitments, events, all")
	cmd.Flags().StringVar(&flags.location, "location", "", "Override the current location")
}

func (f narrateFlags) options() (services.NarrateOptions, error) {
	hints, err := parseHints(f.hints)
	if err != nil {
		return services.NarrateOptions{}, err
	}
	return services.NarrateOptions{
		Turn:   entities.TurnInputs{LocationName: f.location},
		Hints:  hints,
		Ingest: !f.noIngest,
	}, nil
}

func runNarrate(cmd *cobra.Command, input string, flags narrateFlags) error {
	ctx := cmd.Context()

	opts, err := flags.options()
	if err != nil {
		return err
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		return playTurn(ctx, d, game.ID, input, opts)
	})
}

func playTurn(ctx context.Context, d *Deps, gameID, input string, opts services.NarrateOptions) error {
	result, err := d.Narrate.Handle(ctx, gameID, input, opts, func(fragment string) error {
		fmt.Print(fragment)
		return nil
	})
	if err != nil {
		return fmt.Errorf("narrating: %w", err)
	}
	fmt.Println()
	fmt.Println()

	fmt.Println(dim(fmt.Sprintf("cycle %d", result.Cycle)))
	if p := result.Pipeline; p != nil {
		for _, e := range p.Errors {
			fmt.Println(warn(e.Error()))
		}
		if p.Applied != nil {
			printItemErrors(p.Applied.Errors)
		}
	}
	return nil
}

type contextFlags struct {
	cycle    int
	location string
}

func newContextCmd() *cobra.Command {
	var flags contextFlags

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the context the narrator would see",
		Long:  "Prints the ranked world snapshot assembled for a turn as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd, flags)
		},
	}

	cmd.Flags().IntVar(&flags.cycle, "cycle", 0, "Cycle to assemble for (default: current)")
	cmd.Flags().StringVar(&flags.location, "location", "", "Override the current location")

	return cmd
}

func runContext(cmd *cobra.Command, flags contextFlags) error {
	ctx := cmd.Context()

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		snapshot, err := d.Context.Handle(ctx, game.ID, entities.TurnInputs{
			Cycle:        flags.cycle,
			LocationName: flags.location,
		})
		if err != nil {
			return err
		}
		return printJSON(snapshot)
	})
}

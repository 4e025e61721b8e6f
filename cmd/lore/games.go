package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "Manage games",
		RunE:  runGamesList,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all games",
			RunE:  runGamesList,
		},
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create an empty game at cycle 1",
			Args:  cobra.ExactArgs(1),
			RunE:  runGamesCreate,
		},
	)

	return cmd
}

func runGamesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		games, err := d.Games.HandleList(ctx)
		if err != nil {
			return err
		}

		if len(games) == 0 {
			fmt.Println("No games yet.")
			fmt.Println("Use 'lore games create NAME' to create one.")
			return nil
		}

		fmt.Printf("%-38s %-24s %s\n", "ID", "NAME", "CYCLE")
		fmt.Printf("%-38s %-24s %s\n", "--", "----", "-----")
		for _, g := range games {
			fmt.Printf("%-38s %-24s %d\n", g.ID, g.Name, g.CurrentCycle)
		}
		return nil
	})
}

func runGamesCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		game, err := d.Games.HandleCreate(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created game %q (%s)\n", game.Name, game.ID)
		fmt.Printf("Populate it with: lore import --game %q world.yaml\n", game.Name)
		return nil
	})
}

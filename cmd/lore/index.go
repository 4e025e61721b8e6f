package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the Qdrant fact index",
		Long:  "The fact index is derived from the world store and can be rebuilt at any time.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the number of indexed facts",
			Args:  cobra.NoArgs,
			RunE:  runIndexStatus,
		},
		&cobra.Command{
			Use:   "rebuild",
			Short: "Recreate the collection and re-embed every fact",
			Args:  cobra.NoArgs,
			RunE:  runIndexRebuild,
		},
	)

	return cmd
}

var errNoIndex = errors.New("no fact index configured (set qdrant.host or LORE_QDRANT_HOST)")

func runIndexStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		if !d.Config.Qdrant.Enabled() {
			return errNoIndex
		}
		n, err := d.Index.HandleStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Collection %s: %d facts\n", d.Config.Qdrant.Collection, n)
		return nil
	})
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		if !d.Config.Qdrant.Enabled() {
			return errNoIndex
		}
		fmt.Println("Rebuilding fact index...")
		result, err := d.Index.HandleRebuild(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d facts across %d game(s).\n", result.Total, len(result.Facts))
		return nil
	})
}

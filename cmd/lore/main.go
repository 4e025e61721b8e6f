// Package main provides the entry point for the lore CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	globalGame string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "lore",
		Short:         "A temporal world-state store for LLM-narrated games",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalGame, "game", "g", "", "Game to operate on, by ID or name")

	rootCmd.AddCommand(
		newInitCmd(),
		newGamesCmd(),
		newImportCmd(),
		newApplyCmd(),
		newIngestCmd(),
		newNarrateCmd(),
		newPlayCmd(),
		newContextCmd(),
		newEntitiesCmd(),
		newRelationsCmd(),
		newQueryCmd(),
		newRollbackCmd(),
		newMessagesCmd(),
		newIndexCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}

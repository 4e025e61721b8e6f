package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/application/handlers"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new lore workspace",
		Long: `Creates a .lore directory with the default configuration and the SQLite
world store. When a Qdrant host is configured (LORE_QDRANT_HOST), the fact
collection is created too.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	result, err := handlers.NewInitHandler(nil, 0).Handle(ctx, cwd)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\n", result.ConfigPath)

	err = withDeps(ctx, func(d *Deps) error {
		fmt.Printf("Created world store: %s\n", result.DatabasePath)
		if !d.Config.Qdrant.Enabled() {
			return nil
		}
		if _, err := d.Index.HandleRebuild(ctx); err != nil {
			return fmt.Errorf("creating fact collection: %w", err)
		}
		fmt.Printf("Created Qdrant collection: %s\n", d.Config.Qdrant.Collection)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println("Lore initialized successfully!")
	fmt.Println("Next: lore games create NAME")
	return nil
}

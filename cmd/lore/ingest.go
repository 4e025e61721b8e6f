package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/application/handlers"
	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

type ingestFlags struct {
	cycle     int
	advance   bool
	hints     []string
	location  string
	dryRun    bool
	pattern   string
	recursive bool
}

func newIngestCmd() *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file|dir|glob>",
		Short: "Extract world changes from narrative text",
		Long: `Splits narrative text into segments on paragraph boundaries and runs the
extraction pipeline over each one, applying the result to the game.

Without --hints only the segment summary is extracted. Hints enable the
other subtasks: entities, relations, state, commitments, events, or all.

Examples:
  lore ingest --game harbor chapter1.txt
  lore ingest --game harbor --hints all --advance chapters/
  lore ingest --game harbor --hints entities,relations "chapters/*.md"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], flags)
		},
	}

	cmd.Flags().IntVar(&flags.cycle, "cycle", 0, "Cycle of the first segment (default: the current cycle)")
	cmd.Flags().BoolVar(&flags.advance, "advance", false, "Give every segment its own cycle")
	cmd.Flags().StringSliceVar(&flags.hints, "hints", nil, "Extraction subtasks to run: entities, relations, state, commitments, events, all")
	cmd.Flags().StringVar(&flags.location, "location", "", "Location the narrative starts in")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Extract without applying")
	cmd.Flags().StringVarP(&flags.pattern, "pattern", "p", "*.txt", "File pattern when ingesting a directory")
	cmd.Flags().BoolVarP(&flags.recursive, "recursive", "r", false, "Descend into subdirectories")

	return cmd
}

func runIngest(cmd *cobra.Command, target string, flags ingestFlags) error {
	ctx := cmd.Context()

	hints, err := parseHints(flags.hints)
	if err != nil {
		return err
	}
	opts := handlers.IngestOptions{
		Cycle:       flags.cycle,
		Advance:     flags.advance,
		Hints:       hints,
		LocationRef: flags.location,
		DryRun:      flags.dryRun,
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		if d.Ingest == nil {
			return errNoLLM
		}

		dir, pattern, recursive := target, flags.pattern, flags.recursive
		if handlers.IsGlobPattern(target) {
			dir, pattern = filepath.Dir(target), filepath.Base(target)
		} else if !handlers.IsDirectory(target) {
			result, err := d.Ingest.HandleWithOptions(ctx, game.ID, target, opts, func(i int) {
				fmt.Printf("  segment %d...\n", i+1)
			})
			if err != nil {
				return fmt.Errorf("ingesting file: %w", err)
			}
			printIngestResult(result, flags.dryRun)
			return result.Err()
		}

		batch, err := d.Ingest.HandleDirectory(ctx, game.ID, dir, pattern, recursive, opts, func(file string) {
			fmt.Printf("Ingesting %s\n", file)
		})
		if err != nil {
			return fmt.Errorf("ingesting directory: %w", err)
		}
		for _, r := range batch.FileResults {
			printIngestResult(r, flags.dryRun)
		}
		for _, e := range batch.Errors {
			fmt.Println(warn(e.Error()))
		}
		fmt.Printf("\n%d file(s), %d segment(s)\n", batch.TotalFiles, batch.TotalSegments)
		if len(batch.FileResults) == 0 && len(batch.Errors) > 0 {
			return errors.Join(batch.Errors...)
		}
		return nil
	})
}

func printIngestResult(r *handlers.IngestResult, dryRun bool) {
	fmt.Printf("%s: %d segment(s), last cycle %d\n", heading(r.FilePath), len(r.Segments), r.LastCycle)
	for _, s := range r.Segments {
		if s.Err != nil {
			fmt.Printf("  %s segment %d: %v\n", warn("failed"), s.Index+1, s.Err)
			continue
		}
		if dryRun && s.Result != nil {
			p := s.Result.Payload
			fmt.Printf("  segment %d (cycle %d): %s\n", s.Index+1, s.Cycle, p.SegmentSummary)
			fmt.Printf("    %d entities, %d facts, %d relations\n", len(p.EntitiesCreated), len(p.Facts), len(p.RelationsCreated))
		}
	}
	if !dryRun {
		printStats(&r.Stats)
	}
	if r.FailedTasks > 0 {
		fmt.Println(warn(fmt.Sprintf("%d extraction subtask(s) failed", r.FailedTasks)))
	}
	if r.ItemErrors > 0 {
		fmt.Println(warn(fmt.Sprintf("%d item(s) rejected", r.ItemErrors)))
	}
}

// parseHints turns --hints values into pipeline hints.
func parseHints(names []string) (services.Hints, error) {
	var h services.Hints
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "all":
			h = services.AllHints()
		case "entities", "entity":
			h.EntityMentions = true
		case "relations", "relationships":
			h.RelationshipChange = true
		case "state":
			h.StateChange = true
		case "commitments":
			h.CommitmentProgress = true
		case "events":
			h.EventScheduling = true
		default:
			return h, fmt.Errorf("unknown hint %q (valid: entities, relations, state, commitments, events, all)", name)
		}
	}
	return h, nil
}

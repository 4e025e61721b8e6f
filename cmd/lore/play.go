package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

func newPlayCmd() *cobra.Command {
	var flags narrateFlags

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Interactive mode: play turns until you quit",
		Long:  "Enter player input and press Enter on an empty line to play the turn.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, flags)
		},
	}

	addTurnFlags(cmd, &flags)

	return cmd
}

type playState struct {
	deps   *Deps
	gameID string
	opts   services.NarrateOptions
	out    io.Writer
}

func runPlay(cmd *cobra.Command, flags narrateFlags) error {
	ctx := cmd.Context()

	opts, err := flags.options()
	if err != nil {
		return err
	}

	return withGame(ctx, func(d *Deps, game *entities.Game) error {
		s := &playState{deps: d, gameID: game.ID, opts: opts, out: os.Stdout}
		fmt.Fprintf(s.out, "Playing %s (cycle %d). Type 'help' for commands.\n\n", heading(game.Name), game.CurrentCycle)
		return s.runInputLoop(ctx, os.Stdin)
	})
}

func (s *playState) runInputLoop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	var buf strings.Builder

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if buf.Len() == 0 {
			if handled, exit := s.handleCommand(ctx, strings.ToLower(strings.TrimSpace(line))); handled {
				if exit {
					return nil
				}
				continue
			}
		}

		if strings.TrimSpace(line) != "" {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
			continue
		}

		input := strings.TrimSpace(buf.String())
		buf.Reset()
		if input == "" {
			continue
		}
		if err := playTurn(ctx, s.deps, s.gameID, input, s.opts); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

// handleCommand processes loop commands. Returns (handled, shouldExit).
func (s *playState) handleCommand(ctx context.Context, input string) (bool, bool) {
	switch input {
	case "quit", "exit":
		fmt.Fprintln(s.out, "Goodbye!")
		return true, true
	case "undo":
		stats, err := s.deps.Rollback.HandleLastTurn(ctx, s.gameID)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true, false
		}
		fmt.Fprintf(s.out, "Last turn undone; cycle %d onward removed.\n", stats.Boundary)
		return true, false
	case "where":
		snapshot, err := s.deps.Context.Handle(ctx, s.gameID, s.opts.Turn)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true, false
		}
		s.showWhere(snapshot)
		return true, false
	case "help":
		s.showHelp()
		return true, false
	default:
		return false, false
	}
}

func (s *playState) showWhere(snap *entities.ContextSnapshot) {
	p := snap.Protagonist
	fmt.Fprintf(s.out, "Cycle %d, %s\n", snap.Cycle, snap.CurrentLocation.Name)
	fmt.Fprintf(s.out, "%s  energy %.0f  morale %.0f  health %.0f  credits %d\n", p.Name, p.Energy, p.Morale, p.Health, p.Credits)
	if len(snap.NPCsPresent) > 0 {
		names := make([]string, len(snap.NPCsPresent))
		for i, npc := range snap.NPCsPresent {
			names[i] = npc.Name
		}
		fmt.Fprintf(s.out, "Here: %s\n", strings.Join(names, ", "))
	}
	for _, c := range snap.Commitments {
		fmt.Fprintf(s.out, "  [%s] %s\n", c.Type, c.Description)
	}
}

func (s *playState) showHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  where - Show the protagonist's situation")
	fmt.Fprintln(s.out, "  undo  - Roll back the last turn")
	fmt.Fprintln(s.out, "  quit  - Exit interactive mode")
	fmt.Fprintln(s.out, "  help  - Show this help")
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Enter player input and an empty line to play the turn.")
}

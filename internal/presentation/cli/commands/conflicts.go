package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// NewConflictsCmd creates the conflicts command.
func NewConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review conflicts parked for manual resolution",
		Long: `Conflicts whose strategy is manual, or that could not be settled
automatically, are parked until an operator picks a strategy. A released
conflict is settled once with that strategy on the next sync cycle.`,
	}

	cmd.AddCommand(newConflictsListCmd())
	cmd.AddCommand(newConflictsShowCmd())
	cmd.AddCommand(newConflictsResolveCmd())

	return cmd
}

func newConflictsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List parked conflicts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			items, err := container.Orchestrator().ParkedConflicts(cmd.Context())
			if err != nil {
				return err
			}
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(items)
			}
			if len(items) == 0 {
				formatter.Success("No conflicts need attention")
				return nil
			}
			now := time.Now()
			for _, item := range items {
				output.RenderConflict(formatter, item, now)
				formatter.Println("")
			}
			formatter.Info("Run 'wikisync conflicts resolve' to settle them")
			return nil
		},
	}
}

func newConflictsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a parked conflict with a line diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			item, err := findParked(cmd.Context(), container.Orchestrator(), args[0])
			if err != nil {
				return err
			}
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(item)
			}
			output.RenderConflict(formatter, item, time.Now())
			if local, remote, ok := contents(item); ok {
				formatter.Println("")
				output.RenderDiff(formatter, conflict.LineDiff(local, remote))
			}
			return nil
		},
	}
}

func newConflictsResolveCmd() *cobra.Command {
	var strategy string
	var syncAfter bool

	cmd := &cobra.Command{
		Use:   "resolve [id]",
		Short: "Pick a strategy for parked conflicts",
		Long: `Release parked conflicts with a strategy.

With --strategy and an id the conflict is released directly. Otherwise each
parked conflict (or only the one named) is shown and a strategy is asked for:

  r  remote-wins   keep the remote version
  l  local-wins    push the local version
  m  merge         keep whichever side changed last
  d  show the line diff
  s  skip this conflict
  q  stop`,
		Example: `  # Walk through every parked conflict
  wikisync conflicts resolve

  # Keep the local copy of one page and sync right away
  wikisync conflicts resolve guides/rules --strategy local-wins --sync`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			ctx := cmd.Context()
			orch := container.Orchestrator()

			var released []string
			if strategy != "" {
				if len(args) == 0 {
					return fmt.Errorf("--strategy needs a conflict id")
				}
				s, err := conflict.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				id, err := normalizeConflictID(args[0])
				if err != nil {
					return err
				}
				if err := orch.ReleaseConflict(ctx, id, s); err != nil {
					return err
				}
				released = append(released, id)
			} else {
				items, err := orch.ParkedConflicts(ctx)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					item, err := findParked(ctx, orch, args[0])
					if err != nil {
						return err
					}
					items = []conflict.Item{item}
				}
				if len(items) == 0 {
					formatter.Success("No conflicts need attention")
					return nil
				}
				released, err = resolveInteractive(ctx, cmd.InOrStdin(), formatter, orch, items)
				if err != nil {
					return err
				}
			}

			if formatter.Format() == output.FormatJSON && !syncAfter {
				return formatter.JSON(map[string]any{"released": released})
			}
			for _, id := range released {
				formatter.Success("Released %s", id)
			}
			if len(released) == 0 {
				return nil
			}
			if syncAfter {
				return runSync(ctx)
			}
			formatter.Info("The next sync cycle applies the chosen strategies")
			return nil
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "strategy to release the conflict with (remote-wins, local-wins, merge)")
	cmd.Flags().BoolVar(&syncAfter, "sync", false, "run a sync cycle after releasing")

	return cmd
}

// conflictReleaser is the part of the orchestrator the resolve prompt uses.
type conflictReleaser interface {
	ParkedConflicts(ctx context.Context) ([]conflict.Item, error)
	ReleaseConflict(ctx context.Context, id string, strategy conflict.Strategy) error
}

// resolveChoices maps prompt answers to strategies.
var resolveChoices = map[string]conflict.Strategy{
	"r":           conflict.StrategyRemoteWins,
	"remote":      conflict.StrategyRemoteWins,
	"remote-wins": conflict.StrategyRemoteWins,
	"l":           conflict.StrategyLocalWins,
	"local":       conflict.StrategyLocalWins,
	"local-wins":  conflict.StrategyLocalWins,
	"m":           conflict.StrategyMerge,
	"merge":       conflict.StrategyMerge,
}

// resolveInteractive prompts for a strategy per item and returns the ids
// released.
func resolveInteractive(ctx context.Context, in io.Reader, formatter *output.Formatter, orch conflictReleaser, items []conflict.Item) ([]string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 "resolve [r/l/m/d/s/q]> ",
		Stdin:                  io.NopCloser(in),
		Stdout:                 formatter,
		HistoryLimit:           -1,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	var released []string
	now := time.Now()
	for _, item := range items {
		output.RenderConflict(formatter, item, now)

	prompt:
		for {
			line, err := rl.Readline()
			if err == io.EOF || err == readline.ErrInterrupt {
				return released, nil
			}
			if err != nil {
				return released, err
			}

			answer := strings.ToLower(strings.TrimSpace(line))
			switch answer {
			case "":
				continue
			case "q", "quit":
				return released, nil
			case "s", "skip":
				break prompt
			case "d", "diff":
				local, remote, ok := contents(item)
				if !ok {
					formatter.Info("No line diff for %s conflicts with a deleted side", item.Kind)
					continue
				}
				output.RenderDiff(formatter, conflict.LineDiff(local, remote))
				continue
			}

			s, ok := resolveChoices[answer]
			if !ok {
				formatter.Warning("Unknown answer %q", answer)
				continue
			}
			if err := orch.ReleaseConflict(ctx, item.ID, s); err != nil {
				return released, err
			}
			released = append(released, item.ID)
			break prompt
		}
		formatter.Println("")
	}
	return released, nil
}

// findParked returns the parked conflict with the given id.
func findParked(ctx context.Context, orch conflictReleaser, raw string) (conflict.Item, error) {
	id, err := normalizeConflictID(raw)
	if err != nil {
		return conflict.Item{}, err
	}
	items, err := orch.ParkedConflicts(ctx)
	if err != nil {
		return conflict.Item{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return conflict.Item{}, fmt.Errorf("no parked conflict %q", id)
}

// normalizeConflictID accepts page ids in any accepted spelling. Category
// ids and the root marker pass through unchanged.
func normalizeConflictID(raw string) (string, error) {
	if raw == document.RootCategoryID {
		return raw, nil
	}
	id, err := document.NormalizeID(raw)
	if err != nil {
		return strings.TrimSpace(raw), nil
	}
	return id, nil
}

// contents returns both page bodies when both sides exist.
func contents(item conflict.Item) (local, remote string, ok bool) {
	if item.Local.Document == nil || item.Remote.Document == nil {
		return "", "", false
	}
	return item.Local.Document.Content, item.Remote.Document.Content, true
}

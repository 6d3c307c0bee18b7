package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// StrategyInfo is one row of `strategy list`.
type StrategyInfo struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
}

// StrategyList is the JSON form of `strategy list`.
type StrategyList struct {
	Default    string         `json:"default"`
	Overrides  []StrategyInfo `json:"overrides"`
	Strategies []string       `json:"available"`
}

// NewStrategyCmd creates the strategy command.
func NewStrategyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage conflict strategies",
		Long: `Conflict strategies decide which side wins when a page or category
changed both locally and remotely since the last sync:

  remote-wins  keep the remote version (default)
  local-wins   push the local version
  merge        keep whichever side changed last
  manual       park the conflict for 'wikisync conflicts resolve'

Assignments are stored in the config file under sync.strategies.`,
	}

	cmd.AddCommand(newStrategyListCmd())
	cmd.AddCommand(newStrategySetCmd())
	cmd.AddCommand(newStrategyUnsetCmd())

	return cmd
}

func newStrategyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the default strategy and per-page assignments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			registry := container.Strategies()

			list := StrategyList{
				Default:   registry.Fallback().String(),
				Overrides: []StrategyInfo{},
			}
			for _, e := range registry.Entries() {
				list.Overrides = append(list.Overrides, StrategyInfo{ID: e.ID, Strategy: e.Strategy.String()})
			}
			for _, s := range conflict.AllStrategies() {
				list.Strategies = append(list.Strategies, s.String())
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(list)
			}

			formatter.Item("Default", list.Default)
			if len(list.Overrides) == 0 {
				formatter.Info("No per-page strategies")
				return nil
			}
			formatter.Println("")
			rows := make([][]string, 0, len(list.Overrides))
			for _, o := range list.Overrides {
				rows = append(rows, []string{o.ID, o.Strategy})
			}
			return formatter.Table(output.TableData{
				Columns: []output.TableColumn{{Header: "ID"}, {Header: "STRATEGY"}},
				Rows:    rows,
			})
		},
	}
}

func newStrategySetCmd() *cobra.Command {
	var asDefault bool

	cmd := &cobra.Command{
		Use:   "set <id> <strategy> | --default <strategy>",
		Short: "Assign a strategy to a page or category",
		Example: `  # Always keep local edits of the FAQ
  wikisync strategy set faq local-wins

  # Park every conflict for review
  wikisync strategy set --default manual`,
		Args: func(cmd *cobra.Command, args []string) error {
			if asDefault {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			app := GetAppContext()

			s, err := conflict.ParseStrategy(args[len(args)-1])
			if err != nil {
				return err
			}

			cfg := container.Config()
			target := "default"
			if asDefault {
				cfg.Sync.DefaultStrategy = s.String()
			} else {
				id, err := document.NormalizeID(args[0])
				if err != nil {
					return err
				}
				if err := container.Strategies().Set(id, s); err != nil {
					return err
				}
				if cfg.Sync.Strategies == nil {
					cfg.Sync.Strategies = map[string]string{}
				}
				cfg.Sync.Strategies[id] = s.String()
				target = id
			}
			if err := saveConfig(cfg, app.ConfigPath); err != nil {
				return fmt.Errorf("failed to save strategy: %w", err)
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(StrategyInfo{ID: target, Strategy: s.String()})
			}
			formatter.Success("Strategy for %s set to %s", target, s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asDefault, "default", false, "set the fallback strategy instead of a per-page one")

	return cmd
}

func newStrategyUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <id>",
		Short: "Remove a per-page strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			id, err := document.NormalizeID(args[0])
			if err != nil {
				return err
			}
			cfg := container.Config()
			_, inConfig := cfg.Sync.Strategies[id]
			if !container.Strategies().Unset(id) && !inConfig {
				formatter.Warning("No strategy assigned to %s", id)
				return nil
			}
			delete(cfg.Sync.Strategies, id)
			if err := saveConfig(cfg, GetAppContext().ConfigPath); err != nil {
				return fmt.Errorf("failed to save strategy: %w", err)
			}
			formatter.Success("%s now uses the default strategy", id)
			return nil
		},
	}
}

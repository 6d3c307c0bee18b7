package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application/syncengine"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// StatusResult is the JSON form of the status command.
type StatusResult struct {
	*syncengine.Status
	Backend string            `json:"backend"`
	Stale   bool              `json:"stale"`
	History []syncstate.Event `json:"recentHistory,omitempty"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync status and recent history",
		Long: `Display the persisted sync record: state, last and next sync, pending
changes, consecutive errors and conflicts waiting for manual resolution.

The cache counts as stale when the last successful sync is older than
sync.recent_threshold.`,
		Example: `  # Show status
  wikisync status

  # Include the ten most recent history entries
  wikisync status --history 10

  # Get status as JSON for scripting
  wikisync status -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), history)
		},
	}

	cmd.Flags().IntVarP(&history, "history", "n", 5, "number of history entries to show")

	return cmd
}

func runStatus(ctx context.Context, history int) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()

	st, err := container.Orchestrator().GetStatus(ctx)
	if err != nil {
		return err
	}
	recent, err := container.LocalStore().IsRecent(ctx, container.Config().Sync.RecentThreshold)
	if err != nil {
		return err
	}
	var events []syncstate.Event
	if history > 0 {
		if events, err = container.Orchestrator().History(ctx, history); err != nil {
			return err
		}
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(StatusResult{
			Status:  st,
			Backend: container.Transport().Name(),
			Stale:   !recent,
			History: events,
		})
	}

	now := time.Now()
	output.RenderStatus(formatter, st, !recent, now)
	formatter.Item("Backend", container.Transport().Name())
	if len(events) > 0 {
		formatter.Println("")
		formatter.SubHeader("Recent history")
		return output.RenderHistory(formatter, events, now)
	}
	return nil
}

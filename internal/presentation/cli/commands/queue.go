package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// NewQueueCmd creates the queue command.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect local changes waiting to be pushed",
	}

	cmd.AddCommand(newQueueListCmd())

	return cmd
}

func newQueueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pending changes in push order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()

			changes, err := container.Orchestrator().Queue().DrainAll(cmd.Context())
			if err != nil {
				return err
			}
			if formatter.Format() == output.FormatJSON {
				if changes == nil {
					changes = []syncstate.PendingChange{}
				}
				return formatter.JSON(changes)
			}
			if len(changes) == 0 {
				formatter.Info("No pending changes")
				return nil
			}
			return output.RenderQueue(formatter, changes, time.Now())
		},
	}
}

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application"
	"github.com/jbctechsolutions/wikisync/internal/application/syncengine"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// SyncResult is the JSON form of a sync run.
type SyncResult struct {
	Report   *syncengine.Report `json:"report,omitempty"`
	Imported int                `json:"imported,omitempty"`
	Exported int                `json:"exported,omitempty"`
	Skipped  []string           `json:"skipped,omitempty"`
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Long: `Run a single sync cycle against the remote store and wait for it.

The cycle checks access, fetches the table of contents, detects and
resolves conflicts, pulls remote changes and pushes queued local edits.
With the workspace enabled, edits made in the Markdown mirror are imported
first and the mirror is refreshed afterwards.`,
		Example: `  # Sync once
  wikisync sync

  # Sync and print the cycle report as JSON
  wikisync sync -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context())
		},
	}
	return cmd
}

func runSync(ctx context.Context) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	formatter := GetFormatter()
	result := SyncResult{}

	if mirror := container.Mirror(); mirror != nil {
		imported, err := mirror.Scan(ctx)
		if err != nil {
			return fmt.Errorf("failed to import workspace edits: %w", err)
		}
		result.Imported = imported
	}

	var spinner *output.Spinner
	if formatter.Format() != output.FormatJSON {
		spinner = output.NewSpinner("Syncing with "+container.Transport().Name(),
			output.WithSpinnerWriter(os.Stderr),
			output.WithSpinnerColor(output.IsColorSupported()))
		spinner.Start()
	}
	report, cycleErr := container.Orchestrator().RunCycle(ctx)
	if spinner != nil {
		spinner.Stop()
	}
	result.Report = report

	if errors.Is(cycleErr, errors.ErrCycleInProgress) {
		return fmt.Errorf("another sync is already running")
	}
	if report != nil {
		if err := refreshMirror(ctx, container, &result); err != nil {
			return err
		}
	}

	if formatter.Format() == output.FormatJSON {
		if err := formatter.JSON(result); err != nil {
			return err
		}
		return cycleErr
	}

	if result.Imported > 0 {
		formatter.Info("Imported %d workspace edit(s)", result.Imported)
	}
	if report != nil {
		output.RenderReport(formatter, report)
	}
	if result.Exported > 0 {
		formatter.Info("Wrote %d page(s) to the workspace", result.Exported)
	}
	for _, id := range result.Skipped {
		formatter.Warning("Workspace file for %s has edits not yet imported; left as is", id)
	}
	if errors.IsAuth(cycleErr) {
		formatter.Info("Run 'wikisync auth login' to store a valid token")
	}
	return cycleErr
}

// refreshMirror writes the cache back to the workspace after a cycle.
func refreshMirror(ctx context.Context, container *application.Container, result *SyncResult) error {
	mirror := container.Mirror()
	if mirror == nil {
		return nil
	}
	res, err := mirror.Export(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh workspace: %w", err)
	}
	result.Exported = len(res.Written)
	result.Skipped = res.Skipped
	return nil
}

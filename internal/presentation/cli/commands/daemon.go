package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application"
	"github.com/jbctechsolutions/wikisync/internal/application/syncengine"
)

// NewDaemonCmd creates the daemon command.
func NewDaemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync on a schedule until interrupted",
		Long: `Run the sync engine in the foreground.

A cycle runs at startup and then every interval (sync.interval in the
config unless --interval is given). With the workspace enabled, the mirror
directory is watched and a saved edit forces a cycle right away.

The daemon stops on SIGINT or SIGTERM after the cycle in flight finishes.`,
		Example: `  # Use the configured interval
  wikisync daemon

  # Sync every five minutes, logging to the configured file
  wikisync daemon --interval 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "time between scheduled cycles (default: sync.interval)")

	return cmd
}

func runDaemon(ctx context.Context, interval time.Duration) error {
	container, err := requireContainer()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = container.Config().Sync.Interval
	}
	logger := container.Logger()
	orch := container.Orchestrator()
	formatter := GetFormatter()

	if mirror := container.Mirror(); mirror != nil {
		if err := startWorkspace(ctx, container); err != nil {
			return err
		}
		orch.OnCycle(func(ctx context.Context, r *syncengine.Report) {
			if _, err := mirror.Export(ctx); err != nil {
				logger.WarnContext(ctx, "workspace refresh failed", "error", err)
			}
		})
		formatter.Info("Watching workspace %s", mirror.Dir())
	}

	orch.Start(interval)
	logger.Info("sync daemon started", "interval", interval, "backend", container.Transport().Name())
	formatter.Success("Syncing every %s; press Ctrl+C to stop", interval)

	<-ctx.Done()

	formatter.Info("Stopping, waiting for the running cycle...")
	orch.Stop()
	orch.Wait()
	logger.Info("sync daemon stopped")
	return nil
}

// startWorkspace imports edits made while nothing was watching, writes the
// cache to the mirror and starts watching it. The watcher stops with ctx.
func startWorkspace(ctx context.Context, container *application.Container) error {
	mirror := container.Mirror()
	logger := container.Logger()

	if n, err := mirror.Scan(ctx); err != nil {
		return fmt.Errorf("failed to import workspace edits: %w", err)
	} else if n > 0 {
		logger.Info("imported offline workspace edits", "pages", n)
	}
	if _, err := mirror.Export(ctx); err != nil {
		return fmt.Errorf("failed to write workspace: %w", err)
	}

	watcher, err := container.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create workspace watcher: %w", err)
	}
	if err := watcher.Watch(mirror.Dir()); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	orch := container.Orchestrator()
	go func() {
		defer watcher.Close()
		mirror.Run(ctx, watcher, func() {
			if !orch.ForceSync() {
				logger.Debug("workspace edit left for the next cycle, one is running")
			}
		})
	}()
	return nil
}

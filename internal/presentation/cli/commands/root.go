// Package commands implements the CLI commands for wikisync.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/config"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config     *config.Config
	ConfigPath string
	Formatter  *output.Formatter
	Flags      *GlobalFlags
	Container  *application.Container
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// skipInit lists commands that run without the application container.
var skipInit = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"init":       true,
	"token":      true,
	"issue":      true,
	"serve":      true,
}

// NewRootCmd creates the root command for the wikisync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wikisync",
		Short: "wikisync - offline cache and sync for a remote wiki",
		Long: `wikisync keeps a local copy of a remote wiki and synchronizes it.

Pages, the table of contents and referenced assets are cached locally so
the wiki can be read and edited without a connection. Local edits are
queued and pushed on the next sync; concurrent changes on both sides are
settled by per-page conflict strategies.

Key features:
  • Scheduled, forced and manual sync cycles
  • Conflict strategies: remote-wins, local-wins, merge, manual
  • Markdown workspace mirror with live edit import
  • HTTP, PostgreSQL and in-memory remote backends`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}
			return initializeApp(cmd.Context())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.wikisync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())

	// Sync engine
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewDaemonCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewQueueCmd())
	rootCmd.AddCommand(NewConflictsCmd())
	rootCmd.AddCommand(NewStrategyCmd())

	// Local content
	rootCmd.AddCommand(NewPageCmd())
	rootCmd.AddCommand(NewCacheCmd())

	// Remote side
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTokenCmd())
	rootCmd.AddCommand(NewAuthCmd())

	return rootCmd
}

// newFormatter builds the formatter selected by the global flags.
func newFormatter() *output.Formatter {
	format := output.FormatText
	if globalFlags.Output == "json" {
		format = output.FormatJSON
	}
	return output.NewFormatter(
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.IsColorSupported()),
	)
}

// initializeApp initializes the application context.
func initializeApp(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter()

	cfg, path, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		return err
	}

	container, err := application.NewContainer(ctx, cfg, globalFlags.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:     cfg,
		ConfigPath: path,
		Formatter:  formatter,
		Flags:      &globalFlags,
		Container:  container,
	}
	appCtxMu.Unlock()

	return nil
}

// loadConfig loads configuration from the specified file or default location.
// It returns the path later saves should write to.
func loadConfig(configPath string) (*config.Config, string, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create config loader: %w", err)
	}
	if configPath == "" {
		configPath = loader.DefaultConfigPath()
	}
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, configPath, nil
}

// saveConfig writes cfg back to the file it was loaded from.
func saveConfig(cfg *config.Config, path string) error {
	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Save(cfg, path)
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return newFormatter()
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// requireContainer returns the container or an error when the app was not
// initialized.
func requireContainer() (*application.Container, error) {
	container := GetContainer()
	if container == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return container, nil
}

// Shutdown releases the application container.
func Shutdown() {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()

	if appCtx != nil && appCtx.Container != nil {
		_ = appCtx.Container.Close()
	}
	appCtx = nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so long-running commands stop cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	Shutdown()

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		_ = GetFormatter().Error("%s", err.Error())
		os.Exit(1)
	case ctx.Err() != nil:
		os.Exit(130) // Standard exit code for SIGINT
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/adapters/remote"
	"github.com/jbctechsolutions/wikisync/internal/application"
	"github.com/jbctechsolutions/wikisync/internal/remoteserver"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		listen      string
		backend     string
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a remote document store over HTTP",
		Long: `Expose a document store over the HTTP API that the http backend speaks.

The store is either in memory (lost on exit) or a PostgreSQL database. With
server.jwt_secret set, every request needs a bearer token carrying the
docs:read or docs:write scope; see 'wikisync token issue'.`,
		Example: `  # Throwaway in-memory remote on :8080
  wikisync serve --listen :8080

  # Serve a PostgreSQL-backed store
  wikisync serve --backend postgres --database-url postgres://localhost/wiki`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			formatter := GetFormatter()

			cfg, _, err := loadConfig(globalFlags.ConfigFile)
			if err != nil {
				return err
			}

			if backend == "" {
				backend = cfg.Remote.Backend
				if backend == remote.BackendHTTP {
					backend = remote.BackendMemory
				}
			}
			switch backend {
			case remote.BackendMemory, remote.BackendPostgres:
			default:
				return fmt.Errorf("serve supports the memory and postgres backends, not %q", backend)
			}
			cfg.Remote.Backend = backend
			if databaseURL != "" {
				cfg.Remote.DatabaseURL = databaseURL
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			// The server only needs the transport; keep everything else in memory.
			cfg.Remote.Keyring = false
			cfg.Cache.Driver = "memory"
			cfg.Workspace.Enabled = false
			cfg.Sync.Lock = ""

			container, err := application.NewContainer(ctx, cfg, globalFlags.Verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}
			defer container.Close()

			if cfg.Server.JWTSecret == "" {
				formatter.Warning("server.jwt_secret is empty; requests are not authenticated")
			}
			formatter.Info("Serving %s backend on %s", backend, cfg.Server.Listen)

			srv := remoteserver.New(container.Transport(), remoteserver.Config{
				Addr:      cfg.Server.Listen,
				JWTSecret: cfg.Server.JWTSecret,
				RateLimit: remoteserver.RateLimit{
					Rate:  cfg.Server.RateLimit.Rate,
					Burst: cfg.Server.RateLimit.Burst,
				},
			}, remoteserver.WithLogger(container.Logger()))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default: server.listen)")
	cmd.Flags().StringVar(&backend, "backend", "", "store to serve: memory, postgres (default: remote.backend, memory for http)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string (default: remote.database_url)")

	return cmd
}

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// NamespaceInfo describes one namespace of the local cache.
type NamespaceInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// CacheInfo is the JSON form of `cache info`.
type CacheInfo struct {
	Driver     string          `json:"driver"`
	Path       string          `json:"path,omitempty"`
	Schema     int             `json:"schema,omitempty"`
	LastSync   time.Time       `json:"lastSync,omitempty"`
	Fresh      bool            `json:"fresh"`
	TotalBytes int64           `json:"totalBytes"`
	Namespaces []NamespaceInfo `json:"namespaces"`
}

// NewCacheCmd creates the cache command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local document cache",
		Long: `Inspect the local document cache that keeps pages, the table of
contents, assets and the sync queue available offline.`,
	}

	cmd.AddCommand(newCacheInfoCmd())

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "info",
		Aliases: []string{"stats"},
		Short:   "Show cache size and freshness",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			formatter := GetFormatter()
			ctx := cmd.Context()
			cfg := container.Config()
			cache := container.Cache()

			info := CacheInfo{Driver: cfg.Cache.Driver}
			if cfg.Cache.Driver != "memory" {
				info.Path = cfg.Cache.Path
			}
			if v, ok := cache.(interface{ SchemaVersion() (int, error) }); ok {
				if info.Schema, err = v.SchemaVersion(); err != nil {
					return fmt.Errorf("failed to read schema version: %w", err)
				}
			}
			for _, ns := range ports.AllNamespaces() {
				keys, err := cache.List(ctx, ns)
				if err != nil {
					return fmt.Errorf("failed to list %s: %w", ns, err)
				}
				size, err := cache.SizeOf(ctx, ns)
				if err != nil {
					return fmt.Errorf("failed to size %s: %w", ns, err)
				}
				info.Namespaces = append(info.Namespaces, NamespaceInfo{Name: string(ns), Entries: len(keys), Bytes: size})
				info.TotalBytes += size
			}

			summary, err := container.LocalStore().LoadSummary(ctx)
			if err != nil {
				return fmt.Errorf("failed to load summary: %w", err)
			}
			info.LastSync = summary.LastSync
			if info.Fresh, err = container.LocalStore().IsRecent(ctx, cfg.Sync.RecentThreshold); err != nil {
				return err
			}

			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(info)
			}

			formatter.Header("Local Cache")
			formatter.Item("Driver", info.Driver)
			if info.Path != "" {
				formatter.Item("Path", info.Path)
			}
			if info.Schema > 0 {
				formatter.Item("Schema", fmt.Sprintf("v%d", info.Schema))
			}
			formatter.Item("Size", output.FormatBytes(info.TotalBytes))
			formatter.Item("Last sync", output.Ago(info.LastSync, time.Now()))
			if !info.Fresh {
				formatter.Warning("Cache is older than %s", cfg.Sync.RecentThreshold)
			}
			formatter.Println("")

			rows := make([][]string, 0, len(info.Namespaces))
			for _, ns := range info.Namespaces {
				rows = append(rows, []string{ns.Name, fmt.Sprintf("%d", ns.Entries), output.FormatBytes(ns.Bytes)})
			}
			return formatter.Table(output.TableData{
				Columns: []output.TableColumn{
					{Header: "NAMESPACE"},
					{Header: "ENTRIES", Align: output.AlignRight},
					{Header: "SIZE", Align: output.AlignRight},
				},
				Rows: rows,
			})
		},
	}
}

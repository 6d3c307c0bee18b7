package commands

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/adapters/index"
	"github.com/jbctechsolutions/wikisync/internal/adapters/remote"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`

	Backends     []string `json:"backends"`
	IndexFormats []string `json:"index_formats"`
	Strategies   []string `json:"strategies"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version and build details of wikisync along with the remote
backends, index formats and conflict strategies it supports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}

func runVersion(short bool) error {
	formatter := GetFormatter()
	format := formatter.Format()

	if short {
		if format == output.FormatJSON {
			return formatter.JSON(map[string]string{"version": Version})
		}
		formatter.Println("%s", Version)
		return nil
	}

	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,

		Backends:     remote.DefaultRegistry().List(),
		IndexFormats: []string{index.FormatSummary, index.FormatYAML},
	}
	for _, s := range conflict.AllStrategies() {
		info.Strategies = append(info.Strategies, s.String())
	}

	if format == output.FormatJSON {
		return formatter.JSON(info)
	}

	formatter.Println("%s", formatter.Bold("wikisync"))
	formatter.Println("%s", "────────")
	formatter.Println("  %s  %s", formatter.Dim("Version:"), info.Version)
	formatter.Println("  %s  %s", formatter.Dim("Git Commit:"), info.GitCommit)
	formatter.Println("  %s  %s", formatter.Dim("Build Date:"), info.BuildDate)
	formatter.Println("  %s  %s", formatter.Dim("Go Version:"), info.GoVersion)
	formatter.Println("  %s  %s", formatter.Dim("Platform:"), info.Platform)
	formatter.Println("")
	formatter.Println("  %s  %s", formatter.Dim("Backends:"), strings.Join(info.Backends, ", "))
	formatter.Println("  %s  %s", formatter.Dim("Index formats:"), strings.Join(info.IndexFormats, ", "))
	formatter.Println("  %s  %s", formatter.Dim("Strategies:"), strings.Join(info.Strategies, ", "))

	return nil
}

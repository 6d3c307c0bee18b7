package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/adapters/remote"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/config"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigFile  string `json:"config_file"`
	Backend     string `json:"backend"`
	Workspace   string `json:"workspace,omitempty"`
	Initialized bool   `json:"initialized"`
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var force, defaults bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize wikisync configuration",
		Long: `Initialize wikisync configuration interactively.

This command writes ~/.wikisync/config.yaml (or the file named by --config)
after asking for the remote backend, the default conflict strategy and
whether to mirror pages into a Markdown workspace.

JSON output and --defaults skip the prompts and write the defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), force, defaults)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "write the default configuration without prompting")

	return cmd
}

// prompter handles interactive user input.
type prompter struct {
	reader    *bufio.Reader
	formatter *output.Formatter
}

// newPrompter creates a new prompter.
func newPrompter(in io.Reader, formatter *output.Formatter) *prompter {
	return &prompter{
		reader:    bufio.NewReader(in),
		formatter: formatter,
	}
}

// prompt asks a question and returns the answer (or default if empty).
func (p *prompter) prompt(question, defaultValue string) (string, error) {
	if defaultValue != "" {
		p.formatter.Print("%s [%s]: ", question, defaultValue)
	} else {
		p.formatter.Print("%s: ", question)
	}

	answer, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue, nil
	}
	return answer, nil
}

// promptYesNo asks a yes/no question and returns true for yes.
func (p *prompter) promptYesNo(question string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}
	answer, err := p.prompt(question+" ["+defaultStr+"]", "")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	if answer == "" {
		return defaultYes, nil
	}
	return answer == "y" || answer == "yes", nil
}

// promptChoice repeats the question until the answer is one of choices.
func (p *prompter) promptChoice(question, defaultValue string, choices []string) (string, error) {
	for {
		answer, err := p.prompt(fmt.Sprintf("%s (%s)", question, strings.Join(choices, ", ")), defaultValue)
		if err != nil {
			return "", err
		}
		for _, c := range choices {
			if answer == c {
				return answer, nil
			}
		}
		p.formatter.Warning("%q is not one of %s", answer, strings.Join(choices, ", "))
	}
}

func runInit(in io.Reader, force, defaults bool) error {
	formatter := newFormatter()

	configFile := globalFlags.ConfigFile
	if configFile == "" {
		loader, err := config.NewLoader("")
		if err != nil {
			return err
		}
		configFile = loader.DefaultConfigPath()
	}

	if _, err := os.Stat(configFile); err == nil && !force {
		if formatter.Format() == output.FormatJSON {
			return formatter.JSON(InitResult{ConfigFile: configFile, Initialized: false})
		}
		formatter.Warning("Configuration already exists at %s", configFile)
		formatter.Info("Use --force to overwrite existing configuration")
		return nil
	}

	cfg := config.NewDefaultConfig()

	if !defaults && formatter.Format() != output.FormatJSON {
		formatter.Header("wikisync Configuration")
		formatter.Println("")
		if err := promptConfig(newPrompter(in, formatter), formatter, cfg); err != nil {
			return err
		}
		formatter.Println("")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := saveConfig(cfg, configFile); err != nil {
		return err
	}

	result := InitResult{ConfigFile: configFile, Backend: cfg.Remote.Backend, Initialized: true}
	if cfg.Workspace.Enabled {
		result.Workspace = cfg.Workspace.Dir
	}
	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(result)
	}

	formatter.Success("Configuration initialized successfully!")
	formatter.Println("")
	formatter.Item("Config file", result.ConfigFile)
	formatter.Item("Backend", result.Backend)
	if result.Workspace != "" {
		formatter.Item("Workspace", result.Workspace)
	}
	formatter.Println("")
	if cfg.Remote.Backend == remote.BackendHTTP {
		formatter.Info("Run 'wikisync auth login' to store an access token")
	}
	formatter.Info("Run 'wikisync sync' to fill the cache")
	return nil
}

// promptConfig walks through the settings most installs change.
func promptConfig(p *prompter, formatter *output.Formatter, cfg *config.Config) error {
	formatter.SubHeader("Remote")
	backend, err := p.promptChoice("Backend", cfg.Remote.Backend, remote.DefaultRegistry().List())
	if err != nil {
		return err
	}
	cfg.Remote.Backend = backend

	switch backend {
	case remote.BackendHTTP:
		if cfg.Remote.BaseURL, err = p.prompt("Server URL", cfg.Remote.BaseURL); err != nil {
			return err
		}
	case remote.BackendPostgres:
		if cfg.Remote.DatabaseURL, err = p.prompt("Database URL", cfg.Remote.DatabaseURL); err != nil {
			return err
		}
	}

	formatter.Println("")
	formatter.SubHeader("Conflicts")
	names := make([]string, 0, len(conflict.AllStrategies()))
	for _, s := range conflict.AllStrategies() {
		names = append(names, s.String())
	}
	if cfg.Sync.DefaultStrategy, err = p.promptChoice("Default strategy", cfg.Sync.DefaultStrategy, names); err != nil {
		return err
	}

	formatter.Println("")
	formatter.SubHeader("Workspace")
	if cfg.Workspace.Enabled, err = p.promptYesNo("Mirror pages as Markdown files", false); err != nil {
		return err
	}
	if cfg.Workspace.Enabled {
		if cfg.Workspace.Dir, err = p.prompt("Workspace directory", cfg.Workspace.Dir); err != nil {
			return err
		}
	}
	return nil
}

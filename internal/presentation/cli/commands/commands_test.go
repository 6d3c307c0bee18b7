package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/config"
	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
	"github.com/jbctechsolutions/wikisync/internal/remoteserver"
)

// executeCommand executes a cobra command with the given args.
func executeCommand(root *cobra.Command, args ...string) error {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// writeTestConfig writes a config using an in-memory remote and a sqlite
// cache inside a temp dir, and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `sync:
  lock: ""
cache:
  driver: sqlite
  path: ` + filepath.Join(dir, "cache.db") + `
remote:
  backend: memory
  keyring: false
server:
  jwt_secret: test-secret
logging:
  level: error
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// run executes one command against cfgPath and leaves the container open
// for inspection until the test ends.
func run(t *testing.T, cfgPath string, args ...string) error {
	t.Helper()
	Shutdown()
	t.Cleanup(Shutdown)
	return executeCommand(NewRootCmd(), append([]string{"--config", cfgPath}, args...)...)
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd == nil {
		t.Fatal("NewRootCmd returned nil")
	}

	if cmd.Use != "wikisync" {
		t.Errorf("expected Use='wikisync', got %q", cmd.Use)
	}

	wantSubcmds := []string{
		"version", "init", "sync", "daemon", "status", "queue", "conflicts",
		"strategy", "page", "cache", "serve", "token", "auth",
	}
	subcmds := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcmds[sub.Name()] = true
	}

	for _, want := range wantSubcmds {
		if !subcmds[want] {
			t.Errorf("missing subcommand: %s", want)
		}
	}

	wantFlags := []string{"config", "output", "verbose"}
	for _, flag := range wantFlags {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag: %s", flag)
		}
	}
}

func TestFlagShorthandsDoNotShadowGlobalFlags(t *testing.T) {
	root := NewRootCmd()
	global := map[string]string{}
	root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Shorthand != "" {
			global[f.Shorthand] = f.Name
		}
	})

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Shorthand == "" || c == root {
				return
			}
			if name, ok := global[f.Shorthand]; ok && name != f.Name {
				t.Errorf("%s: -%s for --%s collides with global --%s", c.CommandPath(), f.Shorthand, f.Name, name)
			}
		})
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(root)
}

func TestPageCategoryFlag(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if err := run(t, cfgPath, "page", "category", "Guides"); err != nil {
		t.Fatalf("category failed: %v", err)
	}
	if err := run(t, cfgPath, "page", "create", "Faq", "--category", "guides"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := run(t, cfgPath, "page", "list", "--category", "guides"); err != nil {
		t.Fatalf("list --category failed: %v", err)
	}
	// -c still means --config under page
	if err := executeCommand(NewRootCmd(), "-c", cfgPath, "page", "list"); err != nil {
		t.Fatalf("page list with -c failed: %v", err)
	}
	Shutdown()
}

func TestVersionCmd_NoError(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"basic", []string{"version"}, false},
		{"short", []string{"version", "--short"}, false},
		{"json", []string{"version", "-o", "json"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			err := executeCommand(cmd, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitCmd_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := executeCommand(NewRootCmd(), "init", "--defaults", "--config", path); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	// A second run without --force leaves the file alone.
	if err := os.WriteFile(path, []byte("sync:\n  interval: 1m\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := executeCommand(NewRootCmd(), "init", "--defaults", "--config", path); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "1m") {
		t.Error("expected existing config to be kept")
	}

	if err := executeCommand(NewRootCmd(), "init", "--defaults", "--force", "--config", path); err != nil {
		t.Fatalf("forced init failed: %v", err)
	}
	cfg, _, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Interval != config.DefaultSyncInterval {
		t.Errorf("expected default interval after --force, got %v", cfg.Sync.Interval)
	}
}

func TestInitCmd_Prompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	globalFlags.ConfigFile = path
	globalFlags.Output = "text"
	t.Cleanup(func() { globalFlags.ConfigFile = "" })

	// backend, default strategy, workspace
	answers := "memory\nmanual\nn\n"
	if err := runInit(strings.NewReader(answers), false, false); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	cfg, _, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Remote.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Remote.Backend)
	}
	if cfg.Sync.DefaultStrategy != "manual" {
		t.Errorf("expected manual strategy, got %q", cfg.Sync.DefaultStrategy)
	}
	if cfg.Workspace.Enabled {
		t.Error("expected workspace to stay disabled")
	}
}

func TestCommandsRequireValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("remote:\n  backend: ftp\n"), 0600); err != nil {
		t.Fatal(err)
	}
	err := run(t, path, "status")
	if err == nil || !strings.Contains(err.Error(), "backend") {
		t.Errorf("expected backend validation error, got %v", err)
	}
}

func TestPageLifecycle(t *testing.T) {
	cfgPath := writeTestConfig(t)
	ctx := context.Background()

	if err := run(t, cfgPath, "page", "category", "Guides"); err != nil {
		t.Fatalf("category failed: %v", err)
	}

	src := filepath.Join(t.TempDir(), "rules.md")
	if err := os.WriteFile(src, []byte("# Rules\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := run(t, cfgPath, "page", "create", "House Rules", "--category", "guides", "--file", src); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	doc, err := GetContainer().LocalStore().GetPage(ctx, "guides/house-rules")
	if err != nil {
		t.Fatalf("page not cached: %v", err)
	}
	if doc.Content != "# Rules\n" || doc.CategoryID != "guides" {
		t.Errorf("unexpected page %+v", doc)
	}

	for _, args := range [][]string{
		{"page", "list"},
		{"page", "list", "-o", "json"},
		{"page", "tree"},
		{"page", "show", "guides/house-rules"},
		{"queue", "list"},
		{"cache", "info"},
		{"status"},
	} {
		if err := run(t, cfgPath, args...); err != nil {
			t.Errorf("%v failed: %v", args, err)
		}
	}

	edit := filepath.Join(t.TempDir(), "edit.md")
	if err := os.WriteFile(edit, []byte("# Rules\n\nBe kind.\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := run(t, cfgPath, "page", "edit", "guides/house-rules", "--file", edit); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if err := run(t, cfgPath, "page", "rename", "guides/house-rules", "Rules"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if err := run(t, cfgPath, "page", "move", "guides/house-rules", "/"); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	doc, err = GetContainer().LocalStore().GetPage(ctx, "guides/house-rules")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Rules" || doc.CategoryID != "" || !strings.Contains(doc.Content, "Be kind.") {
		t.Errorf("unexpected page after edits %+v", doc)
	}

	// Queued edits are pushed by a sync cycle.
	if err := run(t, cfgPath, "sync"); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	container := GetContainer()
	n, err := container.Orchestrator().Queue().Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected empty queue after sync, got %d", n)
	}
	remote, err := container.Transport().Read(ctx, document.PathForID("guides/house-rules"))
	if err != nil {
		t.Fatalf("page not pushed: %v", err)
	}
	if !strings.Contains(string(remote.Content), "Be kind.") {
		t.Errorf("unexpected remote content %q", remote.Content)
	}

	if err := run(t, cfgPath, "page", "delete", "guides/house-rules"); err == nil {
		t.Error("expected delete without --confirm to fail")
	}
	if err := run(t, cfgPath, "page", "delete", "guides/house-rules", "--confirm"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if exists, _ := GetContainer().LocalStore().PageExists(ctx, "guides/house-rules"); exists {
		t.Error("expected page to be deleted locally")
	}
}

func TestPageCmd_Validation(t *testing.T) {
	cfgPath := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"show missing", []string{"page", "show", "nope"}},
		{"show invalid id", []string{"page", "show", "../etc"}},
		{"create missing category", []string{"page", "create", "Faq", "--category", "missing"}},
		{"move missing page", []string{"page", "move", "nope", "/"}},
		{"edit missing file", []string{"page", "edit", "nope", "--file", "/does/not/exist"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(t, cfgPath, tt.args...); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestStrategyCmd_Persists(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if err := run(t, cfgPath, "strategy", "set", "faq.md", "local-wins"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := run(t, cfgPath, "strategy", "set", "--default", "manual"); err != nil {
		t.Fatalf("set --default failed: %v", err)
	}
	if err := run(t, cfgPath, "strategy", "set", "faq", "sometimes"); err == nil {
		t.Error("expected unknown strategy to fail")
	}

	cfg, _, err := loadConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sync.Strategies["faq"] != "local-wins" {
		t.Errorf("expected faq override, got %v", cfg.Sync.Strategies)
	}
	if cfg.Sync.DefaultStrategy != "manual" {
		t.Errorf("expected manual default, got %q", cfg.Sync.DefaultStrategy)
	}

	// A fresh container picks the assignments up from the file.
	if err := run(t, cfgPath, "strategy", "list"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if got := GetContainer().Strategies().Lookup("faq", conflict.KindPage); got != conflict.StrategyLocalWins {
		t.Errorf("expected local-wins for faq, got %s", got)
	}

	if err := run(t, cfgPath, "strategy", "unset", "faq"); err != nil {
		t.Fatalf("unset failed: %v", err)
	}
	cfg, _, _ = loadConfig(cfgPath)
	if _, ok := cfg.Sync.Strategies["faq"]; ok {
		t.Error("expected faq override to be removed")
	}
}

func TestConflictsCmd_Empty(t *testing.T) {
	cfgPath := writeTestConfig(t)

	for _, args := range [][]string{
		{"conflicts", "list"},
		{"conflicts", "resolve"},
	} {
		if err := run(t, cfgPath, args...); err != nil {
			t.Errorf("%v failed: %v", args, err)
		}
	}
	if err := run(t, cfgPath, "conflicts", "show", "faq"); err == nil {
		t.Error("expected show of unknown conflict to fail")
	}
	if err := run(t, cfgPath, "conflicts", "resolve", "--strategy", "local-wins"); err == nil {
		t.Error("expected --strategy without id to fail")
	}
}

type fakeReleaser struct {
	items    []conflict.Item
	released map[string]conflict.Strategy
}

func (f *fakeReleaser) ParkedConflicts(context.Context) ([]conflict.Item, error) {
	return f.items, nil
}

func (f *fakeReleaser) ReleaseConflict(_ context.Context, id string, s conflict.Strategy) error {
	if f.released == nil {
		f.released = map[string]conflict.Strategy{}
	}
	f.released[id] = s
	return nil
}

func TestResolveInteractive(t *testing.T) {
	now := time.Now()
	page := func(id, content string) *document.Document {
		d, _ := document.New(id, id, content, now)
		return &d
	}
	items := []conflict.Item{
		{ID: "faq", Kind: conflict.KindPage, Type: conflict.TypeContent,
			Local: conflict.Version{Document: page("faq", "local\n")}, Remote: conflict.Version{Document: page("faq", "remote\n")}},
		{ID: "guides/rules", Kind: conflict.KindPage, Type: conflict.TypeContent,
			Local: conflict.Version{Document: page("guides/rules", "a\n")}, Remote: conflict.Version{}},
		{ID: "notes", Kind: conflict.KindPage, Type: conflict.TypeContent,
			Local: conflict.Version{Document: page("notes", "x\n")}, Remote: conflict.Version{Document: page("notes", "y\n")}},
	}
	orch := &fakeReleaser{items: items}

	var buf bytes.Buffer
	formatter := output.NewFormatter(output.WithWriter(&buf), output.WithColor(false))

	// diff then local for faq, an unknown answer then skip for rules, merge for notes
	in := strings.NewReader("d\nl\nwhat\ns\nm\n")
	released, err := resolveInteractive(context.Background(), in, formatter, orch, items)
	if err != nil {
		t.Fatalf("resolveInteractive: %v", err)
	}

	if len(released) != 2 || released[0] != "faq" || released[1] != "notes" {
		t.Errorf("unexpected released ids %v", released)
	}
	if orch.released["faq"] != conflict.StrategyLocalWins {
		t.Errorf("expected local-wins for faq, got %v", orch.released["faq"])
	}
	if orch.released["notes"] != conflict.StrategyMerge {
		t.Errorf("expected merge for notes, got %v", orch.released["notes"])
	}
	if _, ok := orch.released["guides/rules"]; ok {
		t.Error("expected guides/rules to be skipped")
	}

	out := buf.String()
	if !strings.Contains(out, "- remote") || !strings.Contains(out, "+ local") {
		t.Errorf("expected line diff in output, got:\n%s", out)
	}
	if !strings.Contains(out, `Unknown answer "what"`) {
		t.Errorf("expected unknown answer warning, got:\n%s", out)
	}
}

func TestResolveInteractive_Quit(t *testing.T) {
	orch := &fakeReleaser{}
	items := []conflict.Item{{ID: "faq", Kind: conflict.KindPage, Type: conflict.TypeContent}}
	formatter := output.NewFormatter(output.WithWriter(new(bytes.Buffer)), output.WithColor(false))

	released, err := resolveInteractive(context.Background(), strings.NewReader("q\n"), formatter, orch, items)
	if err != nil {
		t.Fatal(err)
	}
	if len(released) != 0 || len(orch.released) != 0 {
		t.Errorf("expected nothing released, got %v", released)
	}
}

func TestNormalizeConflictID(t *testing.T) {
	tests := map[string]string{
		"faq":             "faq",
		"/guides/rules.md": "guides/rules",
		"/":               "/",
	}
	for in, want := range tests {
		got, err := normalizeConflictID(in)
		if err != nil {
			t.Errorf("normalizeConflictID(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("normalizeConflictID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenIssue(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if err := executeCommand(NewRootCmd(), "--config", cfgPath, "token", "issue", "--subject", "ci", "--scope", "docs:read"); err != nil {
		t.Fatalf("token issue failed: %v", err)
	}
	if GetContainer() != nil {
		t.Error("token issue should not initialize the application")
	}
	if err := executeCommand(NewRootCmd(), "--config", cfgPath, "token", "issue", "--scope", "docs:admin"); err == nil {
		t.Error("expected unknown scope to fail")
	}

	empty := filepath.Join(t.TempDir(), "missing.yaml")
	if err := executeCommand(NewRootCmd(), "--config", empty, "token", "issue"); err == nil {
		t.Error("expected missing secret to fail")
	}

	token, err := remoteserver.IssueToken("test-secret", "ci", []string{remoteserver.ScopeRead}, time.Hour, time.Now())
	if err != nil || token == "" {
		t.Errorf("IssueToken: %q, %v", token, err)
	}
}

func TestServeCmd_RejectsHTTPBackend(t *testing.T) {
	cfgPath := writeTestConfig(t)
	err := executeCommand(NewRootCmd(), "--config", cfgPath, "serve", "--backend", "http")
	if err == nil || !strings.Contains(err.Error(), "memory and postgres") {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestAuthCmd_KeychainDisabled(t *testing.T) {
	cfgPath := writeTestConfig(t)
	err := run(t, cfgPath, "auth", "login", "--token", "abc")
	if err == nil || !strings.Contains(err.Error(), "keychain is disabled") {
		t.Errorf("expected keychain error, got %v", err)
	}
}

func TestCategoryArg(t *testing.T) {
	if got := categoryArg("/"); got != "" {
		t.Errorf("expected root marker to map to empty, got %q", got)
	}
	if got := categoryArg(" guides "); got != "guides" {
		t.Errorf("expected trimmed category, got %q", got)
	}
}

func TestPageState(t *testing.T) {
	d, _ := document.New("faq", "FAQ", "x", time.Now())
	if got := pageState(d); got != "new" {
		t.Errorf("expected new, got %q", got)
	}
	d.MarkSynced("r1", time.Now())
	if got := pageState(d); got != "synced" {
		t.Errorf("expected synced, got %q", got)
	}
	d.Content = "y"
	d.Rehash()
	if got := pageState(d); got != "modified" {
		t.Errorf("expected modified, got %q", got)
	}
}

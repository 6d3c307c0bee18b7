// Package terminal launches the user's text editor on page content.
package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Editor runs an external editor command on a temporary file.
type Editor struct {
	command string
	stdin   *os.File
	stdout  *os.File
	stderr  *os.File
}

// NewEditor creates an editor for command. An empty command picks
// $VISUAL, then $EDITOR, then a platform default.
func NewEditor(command string) *Editor {
	if command == "" {
		command = DefaultEditorCommand()
	}
	return &Editor{
		command: command,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// DefaultEditorCommand returns the editor configured in the environment.
func DefaultEditorCommand() string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if runtime.GOOS == "windows" {
		return "notepad"
	}
	return "vi"
}

// Command returns the editor command line.
func (e *Editor) Command() string {
	return e.command
}

// Edit writes content to a temporary file named after name, waits for the
// editor to exit and returns the saved content.
func (e *Editor) Edit(ctx context.Context, name, content string) (string, error) {
	f, err := os.CreateTemp("", "wikisync-*-"+sanitizeName(name)+".md")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	// The command may carry arguments, e.g. "code --wait".
	cmd := exec.CommandContext(ctx, "sh", "-c", e.command+` "$1"`, "editor", path)
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", e.command, path)
	}
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %q failed: %w", e.command, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read edited file: %w", err)
	}
	return string(data), nil
}

// sanitizeName keeps temp file names to safe characters.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "page"
	}
	return b.String()
}

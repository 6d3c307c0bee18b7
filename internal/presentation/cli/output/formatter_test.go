package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestFormatter(color bool) (*Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewFormatter(WithWriter(&buf), WithColor(color)), &buf
}

func TestNewFormatter_Defaults(t *testing.T) {
	f := NewFormatter()
	if f.Format() != FormatText {
		t.Errorf("expected text format, got %s", f.Format())
	}
	if !f.color {
		t.Error("expected color to default to on")
	}

	f = NewFormatter(WithFormat(FormatJSON), WithColor(false))
	if f.Format() != FormatJSON {
		t.Errorf("expected json format, got %s", f.Format())
	}
}

func TestFormatter_Colorize(t *testing.T) {
	plain, _ := newTestFormatter(false)
	if got := plain.Colorize("synced", ColorGreen); got != "synced" {
		t.Errorf("expected plain text without color, got %q", got)
	}

	colored, _ := newTestFormatter(true)
	want := string(ColorGreen) + "synced" + string(ColorReset)
	if got := colored.Colorize("synced", ColorGreen); got != want {
		t.Errorf("Colorize() = %q, want %q", got, want)
	}
	if got := colored.Colorize("", ColorGreen); got != "" {
		t.Errorf("expected empty text to stay empty, got %q", got)
	}
}

func TestFormatter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		print func(f *Formatter) error
		want  string
	}{
		{"success", func(f *Formatter) error { return f.Success("pushed %d page(s)", 2) }, "✓ pushed 2 page(s)\n"},
		{"error", func(f *Formatter) error { return f.Error("cycle failed") }, "✗ cycle failed\n"},
		{"warning", func(f *Formatter) error { return f.Warning("%s parked", "faq") }, "⚠ faq parked\n"},
		{"info", func(f *Formatter) error { return f.Info("up to date") }, "ℹ up to date\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := newTestFormatter(false)
			if err := tt.print(f); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatter_HeaderAndItem(t *testing.T) {
	f, buf := newTestFormatter(false)
	f.Header("Été")
	f.Item("Pending", "3")

	want := "Été\n───\n  Pending: 3\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFormatter_Table(t *testing.T) {
	f, buf := newTestFormatter(false)
	err := f.Table(TableData{
		Columns: []TableColumn{{Header: "ID"}, {Header: "SIZE", Align: AlignRight}},
		Rows: [][]string{
			{"faq", "12"},
			{"café", "3", "ignored"},
			{"short"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		"ID     SIZE",
		"-----  ----",
		"faq      12",
		"café      3",
		"short",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestFormatter_Table_NoColumns(t *testing.T) {
	f, buf := newTestFormatter(false)
	if err := f.Table(TableData{Rows: [][]string{{"x"}}}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestFormatter_JSON(t *testing.T) {
	f, buf := newTestFormatter(true)
	if err := f.JSON(map[string]int{"pulled": 2}); err != nil {
		t.Fatal(err)
	}

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["pulled"] != 2 {
		t.Errorf("unexpected JSON %v", got)
	}
	if strings.Contains(buf.String(), "\033[") {
		t.Error("JSON output must not contain color codes")
	}
}

func TestFormatter_ConcurrentWrites(t *testing.T) {
	f, buf := newTestFormatter(false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Item("cycle", "done")
		}()
	}
	wg.Wait()

	if n := strings.Count(buf.String(), "  cycle: done\n"); n != 20 {
		t.Errorf("expected 20 intact lines, got %d", n)
	}
}

// lockedBuffer lets the spinner goroutine and the test share a buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner(t *testing.T) {
	var out lockedBuffer
	s := NewSpinner("Syncing with memory", WithSpinnerWriter(&out), WithSpinnerColor(false))

	s.Start()
	s.Start()
	time.Sleep(3 * spinnerInterval)
	s.Stop()
	s.Stop()

	got := out.String()
	if !strings.Contains(got, "Syncing with memory") {
		t.Errorf("expected message in spinner output, got %q", got)
	}
	if strings.Contains(got, "\033[") {
		t.Error("expected no color codes with color disabled")
	}
	if !strings.HasSuffix(got, "\r") {
		t.Errorf("expected the line to be cleared on stop, got %q", got)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var out lockedBuffer
	NewSpinner("idle", WithSpinnerWriter(&out)).Stop()
	if out.String() != "" {
		t.Errorf("expected no output, got %q", out.String())
	}
}

// Package output renders wikisync command results as colored text, tables
// or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"
)

// Format selects how commands print their results.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Color is an ANSI escape sequence.
type Color string

const (
	ColorReset   Color = "\033[0m"
	ColorRed     Color = "\033[31m"
	ColorGreen   Color = "\033[32m"
	ColorYellow  Color = "\033[33m"
	ColorBlue    Color = "\033[34m"
	ColorMagenta Color = "\033[35m"
	ColorCyan    Color = "\033[36m"
	ColorWhite   Color = "\033[37m"
	ColorBold    Color = "\033[1m"
	ColorDim     Color = "\033[2m"
)

// Formatter writes command output. It is safe for concurrent use, so the
// daemon can report cycles while a command prints.
type Formatter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	color  bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// NewFormatter returns a text formatter on stdout with color enabled.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{w: os.Stdout, format: FormatText, color: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithWriter sets the destination.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.w = w }
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithColor turns ANSI colors on or off.
func WithColor(enabled bool) Option {
	return func(f *Formatter) { f.color = enabled }
}

// Format returns the output format.
func (f *Formatter) Format() Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

// Print writes formatted output without a newline.
func (f *Formatter) Print(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.w, format, args...)
	return err
}

// Println writes formatted output followed by a newline.
func (f *Formatter) Println(format string, args ...any) error {
	return f.Print(format+"\n", args...)
}

// Colorize wraps text in color when colors are on.
func (f *Formatter) Colorize(text string, color Color) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paint(text, color)
}

// paint is Colorize for callers already holding mu.
func (f *Formatter) paint(text string, color Color) string {
	if !f.color || text == "" {
		return text
	}
	return string(color) + text + string(ColorReset)
}

func (f *Formatter) Bold(text string) string { return f.Colorize(text, ColorBold) }
func (f *Formatter) Dim(text string) string  { return f.Colorize(text, ColorDim) }

func (f *Formatter) status(mark string, color Color, format string, args ...any) error {
	return f.Println("%s", f.Colorize(mark+" "+fmt.Sprintf(format, args...), color))
}

// Success reports a completed action.
func (f *Formatter) Success(format string, args ...any) error {
	return f.status("✓", ColorGreen, format, args...)
}

// Error reports a failed action.
func (f *Formatter) Error(format string, args ...any) error {
	return f.status("✗", ColorRed, format, args...)
}

// Warning reports something the user should look at, such as a parked conflict.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.status("⚠", ColorYellow, format, args...)
}

func (f *Formatter) Info(format string, args ...any) error {
	return f.status("ℹ", ColorBlue, format, args...)
}

// Header prints a bold title underlined to its width.
func (f *Formatter) Header(title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.w, "%s\n%s\n", f.paint(title, ColorBold), strings.Repeat("─", utf8.RuneCountInString(title)))
	return err
}

func (f *Formatter) SubHeader(title string) error {
	return f.Println("%s", f.Colorize(title, ColorCyan))
}

// Item prints an indented "key: value" line.
func (f *Formatter) Item(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.w, "  %s: %s\n", f.paint(key, ColorDim), value)
	return err
}

// Alignment of a table column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableColumn is one column header.
type TableColumn struct {
	Header string
	Align  Alignment
}

// TableData is a table of rows under Columns. Cells beyond the last column
// are ignored.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

// Table prints data with columns padded to their widest cell. Widths are
// counted in runes so page titles with accents stay aligned.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}
	widths := make([]int, len(data.Columns))
	for i, col := range data.Columns {
		widths[i] = utf8.RuneCountInString(col.Header)
	}
	for _, row := range data.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}

	line := func(cells []string) string {
		parts := make([]string, 0, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts = append(parts, pad(cell, w, data.Columns[i].Align))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	headers := make([]string, len(data.Columns))
	rules := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = col.Header
		rules[i] = strings.Repeat("-", widths[i])
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := fmt.Fprintf(f.w, "%s\n%s\n", f.paint(line(headers), ColorBold), line(rules)); err != nil {
		return err
	}
	for _, row := range data.Rows {
		if _, err := fmt.Fprintln(f.w, line(row)); err != nil {
			return err
		}
	}
	return nil
}

func pad(text string, width int, align Alignment) string {
	n := width - utf8.RuneCountInString(text)
	if n <= 0 {
		return text
	}
	if align == AlignRight {
		return strings.Repeat(" ", n) + text
	}
	return text + strings.Repeat(" ", n)
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

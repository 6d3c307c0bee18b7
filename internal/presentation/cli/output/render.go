package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/syncengine"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
)

// RenderReport prints a cycle report in text form.
func RenderReport(f *Formatter, r *syncengine.Report) {
	if r.Error != "" {
		_ = f.Error("Sync cycle %s failed after %s: %s", shortID(r.CycleID), FormatDuration(r.Duration()), r.Error)
	} else {
		_ = f.Success("Sync cycle %s finished in %s", shortID(r.CycleID), FormatDuration(r.Duration()))
	}
	_ = f.Item("Trigger", r.Trigger)
	_ = f.Item("Pulled", fmt.Sprintf("%d", r.Pulled))
	_ = f.Item("Pushed", fmt.Sprintf("%d", r.Pushed))
	_ = f.Item("Conflicts", fmt.Sprintf("%d", r.Conflicts))
	if r.IndexPushed {
		_ = f.Item("Index", "pushed")
	}
	listItems(f, "Resolved", r.Resolved)
	listItems(f, "Parked", r.Parked)
	listItems(f, "Failed", r.Failed)
}

func listItems(f *Formatter, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	_ = f.Item(label, strings.Join(ids, ", "))
}

// RenderStatus prints the engine status.
func RenderStatus(f *Formatter, st *syncengine.Status, stale bool, now time.Time) {
	state := st.State
	status := string(state.Status)
	if status == "" {
		status = string(syncstate.StatusIdle)
	}
	_ = f.Header("Sync Status")
	_ = f.Item("State", f.Colorize(status, StatusColor(state.Status)))
	_ = f.Item("Last sync", Ago(state.LastSync, now))
	if !state.NextSync.IsZero() {
		_ = f.Item("Next sync", Until(state.NextSync, now))
	}
	if state.Interval > 0 {
		_ = f.Item("Interval", state.Interval.String())
	}
	_ = f.Item("Pending changes", fmt.Sprintf("%d", st.QueueLength))
	if state.ErrorCount > 0 {
		_ = f.Item("Errors", fmt.Sprintf("%d consecutive", state.ErrorCount))
	}
	if state.LastError != "" {
		_ = f.Item("Last error", f.Colorize(state.LastError, ColorRed))
	}
	if len(st.Parked) > 0 {
		_ = f.Item("Needs attention", strings.Join(st.Parked, ", "))
	}
	if stale {
		_ = f.Warning("Cache is stale; run `wikisync sync`")
	}
}

// RenderHistory prints history entries as a table, newest first.
func RenderHistory(f *Formatter, events []syncstate.Event, now time.Time) error {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			Ago(e.Timestamp, now),
			f.Colorize(string(e.Type), EventColor(e.Type)),
			e.Message,
		})
	}
	return f.Table(TableData{
		Columns: []TableColumn{{Header: "WHEN"}, {Header: "TYPE"}, {Header: "MESSAGE"}},
		Rows:    rows,
	})
}

// RenderQueue prints pending changes in push order.
func RenderQueue(f *Formatter, changes []syncstate.PendingChange, now time.Time) error {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{
			fmt.Sprintf("%d", c.Seq),
			f.Colorize(string(c.Type), ChangeColor(c.Type)),
			c.TargetID,
			Ago(c.Timestamp, now),
		})
	}
	return f.Table(TableData{
		Columns: []TableColumn{{Header: "SEQ", Align: AlignRight}, {Header: "TYPE"}, {Header: "TARGET"}, {Header: "QUEUED"}},
		Rows:    rows,
	})
}

// RenderConflict prints one conflict with both sides summarized.
func RenderConflict(f *Formatter, item conflict.Item, now time.Time) {
	_ = f.SubHeader(fmt.Sprintf("%s %s (%s)", item.Kind, item.ID, item.Type))
	_ = f.Item("Detected", Ago(item.DetectedAt, now))
	_ = f.Item("Local", describeSide(item.Local))
	_ = f.Item("Remote", describeSide(item.Remote))
	if item.Diff != "" {
		_ = f.Item("Diff", item.Diff)
	}
	if item.Resolution != nil {
		_ = f.Item("Resolution", f.Colorize(string(item.Resolution.Outcome), OutcomeColor(item.Resolution.Outcome)))
		if item.Resolution.Note != "" {
			_ = f.Item("Note", item.Resolution.Note)
		}
	}
}

func describeSide(v conflict.Version) string {
	switch {
	case v.Document != nil:
		d := v.Document
		return fmt.Sprintf("%q, %d bytes, modified %s", d.Title, len(d.Content), d.LastModified.UTC().Format(time.RFC3339))
	case v.Category != nil:
		c := v.Category
		return fmt.Sprintf("%q, %d pages, %d subcategories", c.Title, len(c.Pages), len(c.Children))
	default:
		return "deleted"
	}
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Ago describes a past instant relative to now.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Second {
		return "just now"
	}
	return FormatDuration(d.Truncate(time.Second)) + " ago"
}

// Until describes a future instant relative to now.
func Until(t, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "due"
	}
	return "in " + FormatDuration(d.Truncate(time.Second))
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RenderDiff prints a line diff, local additions in green and remote-only
// lines in red.
func RenderDiff(f *Formatter, lines []conflict.DiffLine) {
	for _, l := range lines {
		text := string(l.Op) + " " + l.Text
		switch l.Op {
		case conflict.DiffInsert:
			text = f.Colorize(text, ColorGreen)
		case conflict.DiffDelete:
			text = f.Colorize(text, ColorRed)
		}
		_ = f.Println("%s", text)
	}
}

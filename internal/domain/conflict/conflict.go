// Package conflict models disagreements between the local cache and the
// remote store, the strategies that settle them, and their detection.
package conflict

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Kind is the entity a conflict concerns.
type Kind string

const (
	KindPage     Kind = "page"
	KindCategory Kind = "category"
)

// Type classifies what differs between the two versions.
type Type string

const (
	TypeContent   Type = "content"   // body differs
	TypeMetadata  Type = "metadata"  // only ordering or title differ
	TypeStructure Type = "structure" // category membership or children differ
)

// Outcome records what a resolution did.
type Outcome string

const (
	OutcomeLocalApplied  Outcome = "local-applied"
	OutcomeRemoteApplied Outcome = "remote-applied"
	OutcomeMerged        Outcome = "merged"
	OutcomeManual        Outcome = "manual"
)

// Version is one side of a conflict. Exactly one field is set for the side
// that exists; both are nil when the side was deleted.
type Version struct {
	Document *document.Document `json:"document,omitempty"`
	Category *document.Category `json:"category,omitempty"`
}

// Exists reports whether the side is present.
func (v Version) Exists() bool {
	return v.Document != nil || v.Category != nil
}

// Resolution is the settled decision for an Item.
type Resolution struct {
	Strategy   Strategy  `json:"strategy"`
	Outcome    Outcome   `json:"outcome"`
	ResolvedAt time.Time `json:"resolvedAt"`
	Note       string    `json:"note,omitempty"`
}

// Item is a detected conflict.
type Item struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	Type       Type        `json:"type"`
	Local      Version     `json:"local"`
	Remote     Version     `json:"remote"`
	Diff       string      `json:"diff,omitempty"`
	DetectedAt time.Time   `json:"detectedAt"`
	Resolution *Resolution `json:"resolution,omitempty"`
}

// Resolved reports whether a resolution has been recorded.
func (i *Item) Resolved() bool {
	return i.Resolution != nil
}

// Resolve records r. The resolution is write-once: repeating the same
// decision is a no-op, a different decision fails.
func (i *Item) Resolve(r Resolution) error {
	if i.Resolution != nil {
		if i.Resolution.Strategy == r.Strategy && i.Resolution.Outcome == r.Outcome {
			return nil
		}
		return errors.WithContext(
			errors.NewError(errors.CodeValidation,
				fmt.Sprintf("conflict %s already resolved as %s", i.ID, i.Resolution.Outcome),
				errors.ErrResolutionAlreadySet),
			"id", i.ID)
	}
	resolved := r
	i.Resolution = &resolved
	return nil
}

// RemoteDeleted reports whether the remote side vanished.
func (i *Item) RemoteDeleted() bool {
	return !i.Remote.Exists()
}

// DiffSummary describes how local differs from remote as insert/delete
// character counts, e.g. "+12 -3".
func DiffSummary(local, remote string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(remote, local, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	inserted, deleted := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			deleted += len([]rune(d.Text))
		}
	}
	return fmt.Sprintf("+%d -%d", inserted, deleted)
}

// DiffOp marks a line of a LineDiff.
type DiffOp rune

const (
	DiffEqual  DiffOp = ' '
	DiffInsert DiffOp = '+' // only in local
	DiffDelete DiffOp = '-' // only in remote
)

// DiffLine is one line of a LineDiff.
type DiffLine struct {
	Op   DiffOp
	Text string
}

// LineDiff compares remote to local line by line.
func LineDiff(local, remote string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(remote, local)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []DiffLine
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		}
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			out = append(out, DiffLine{Op: op, Text: line})
		}
	}
	return out
}

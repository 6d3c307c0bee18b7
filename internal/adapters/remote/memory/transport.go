// Package memory provides an in-process remote transport. It backs tests,
// ephemeral runs and the reference server's default store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Ensure Transport implements ports.Transport.
var _ ports.Transport = (*Transport)(nil)

// Operation names passed to fault hooks.
const (
	OpRead  = "read"
	OpWrite = "write"
	OpList  = "list"
	OpPing  = "ping"
)

// Fault is consulted before every operation. A non-nil error is returned
// to the caller instead of performing the operation.
type Fault func(ctx context.Context, op, path string) error

// Write is an applied write, recorded in order.
type Write struct {
	Path     string
	Revision string
	Message  string
	At       time.Time
}

type file struct {
	content   []byte
	revision  int64
	updatedAt time.Time
}

// Transport stores files in memory. Revisions are per-file counters
// starting at 1.
type Transport struct {
	mu     sync.Mutex
	files  map[string]*file
	writes []Write
	fault  Fault
	now    func() time.Time
}

// Option configures a Transport.
type Option func(*Transport)

// WithClock sets the time source for file timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) {
		t.now = now
	}
}

// WithFault installs a fault hook.
func WithFault(f Fault) Option {
	return func(t *Transport) {
		t.fault = f
	}
}

// New creates an empty transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		files: make(map[string]*file),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the backend name.
func (t *Transport) Name() string { return "memory" }

// SetFault replaces the fault hook. A nil hook disables injection.
func (t *Transport) SetFault(f Fault) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fault = f
}

func (t *Transport) check(ctx context.Context, op, path string) error {
	t.mu.Lock()
	f := t.fault
	t.mu.Unlock()

	if f != nil {
		if err := f(ctx, op, path); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Transient(op+" "+path, err)
	}
	return nil
}

// Read returns a copy of the file at path.
func (t *Transport) Read(ctx context.Context, path string) (*ports.RemoteDocument, error) {
	if err := t.check(ctx, OpRead, path); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[path]
	if !ok {
		return nil, errors.NotFound(path)
	}
	return &ports.RemoteDocument{
		Path:      path,
		Content:   append([]byte(nil), f.content...),
		Revision:  strconv.FormatInt(f.revision, 10),
		UpdatedAt: f.updatedAt,
	}, nil
}

// Write applies req if its expected revision is current.
func (t *Transport) Write(ctx context.Context, req ports.WriteRequest) (string, error) {
	if err := t.check(ctx, OpWrite, req.Path); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, exists := t.files[req.Path]
	switch {
	case req.ExpectedRevision == "" && exists:
		return "", errors.RevisionConflict(req.Path, "")
	case req.ExpectedRevision != "" && !exists:
		return "", errors.RevisionConflict(req.Path, req.ExpectedRevision)
	case exists && strconv.FormatInt(f.revision, 10) != req.ExpectedRevision:
		return "", errors.RevisionConflict(req.Path, req.ExpectedRevision)
	}

	if !exists {
		f = &file{}
		t.files[req.Path] = f
	}
	f.content = append([]byte(nil), req.Content...)
	f.revision++
	f.updatedAt = document.NormalizeTime(t.now())

	rev := strconv.FormatInt(f.revision, 10)
	t.writes = append(t.writes, Write{Path: req.Path, Revision: rev, Message: req.Message, At: f.updatedAt})
	return rev, nil
}

// List enumerates files under prefix in path order.
func (t *Transport) List(ctx context.Context, prefix string) ([]ports.RemoteEntry, error) {
	if err := t.check(ctx, OpList, prefix); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]ports.RemoteEntry, 0, len(t.files))
	for path, f := range t.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		entries = append(entries, ports.RemoteEntry{
			Path:      path,
			Revision:  strconv.FormatInt(f.revision, 10),
			Hash:      document.ContentHash(string(f.content)),
			UpdatedAt: f.updatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Ping succeeds unless a fault is injected.
func (t *Transport) Ping(ctx context.Context) error {
	return t.check(ctx, OpPing, "")
}

// Seed stores content at path as a new revision, bypassing concurrency checks.
func (t *Transport) Seed(path, content string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[path]
	if !ok {
		f = &file{}
		t.files[path] = f
	}
	f.content = []byte(content)
	f.revision++
	f.updatedAt = document.NormalizeTime(t.now())
	return strconv.FormatInt(f.revision, 10)
}

// Content returns the current content and revision of path.
func (t *Transport) Content(path string) (string, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[path]
	if !ok {
		return "", "", false
	}
	return string(f.content), strconv.FormatInt(f.revision, 10), true
}

// Writes returns the applied writes in order.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Write(nil), t.writes...)
}

// FailOn returns a fault that fails op on path (any path when empty) with err.
func FailOn(op, path string, err error) Fault {
	return func(_ context.Context, gotOp, gotPath string) error {
		if gotOp == op && (path == "" || path == gotPath) {
			return err
		}
		return nil
	}
}

// Hang returns a fault that blocks op until the caller's context ends.
func Hang(op string) Fault {
	return func(ctx context.Context, gotOp, path string) error {
		if gotOp != op {
			return nil
		}
		<-ctx.Done()
		return errors.Transient(fmt.Sprintf("%s %s", op, path), ctx.Err())
	}
}

package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
)

// WatchEventType represents the type of file system event.
type WatchEventType string

// Watch event types.
const (
	WatchEventCreate WatchEventType = "create"
	WatchEventWrite  WatchEventType = "write"
	WatchEventRemove WatchEventType = "remove"
	WatchEventRename WatchEventType = "rename"
)

// WatchEvent represents a settled change to a page file.
type WatchEvent struct {
	Path      string
	Type      WatchEventType
	Timestamp time.Time
}

// WatcherConfig holds configuration for the file watcher.
type WatcherConfig struct {
	DebounceDuration time.Duration
	BufferSize       int
}

// DefaultWatcherConfig returns sensible default configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
		BufferSize:       100,
	}
}

// Watcher monitors a mirror directory tree for page file changes. It wraps
// fsnotify with debouncing, follows newly created subdirectories, and only
// reports Markdown files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    WatcherConfig
	events    chan WatchEvent
	errors    chan error

	pending   map[string]pendingEvent
	pendingMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	started bool
	mu      sync.Mutex
}

type pendingEvent struct {
	eventType WatchEventType
	timestamp time.Time
}

// NewWatcher creates a new file watcher with the given configuration.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultWatcherConfig().DebounceDuration
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		events:    make(chan WatchEvent, cfg.BufferSize),
		errors:    make(chan error, cfg.BufferSize),
		pending:   make(map[string]pendingEvent),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Watch starts watching root and every directory below it.
func (w *Watcher) Watch(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.started {
		return nil
	}

	if err := w.addTree(root); err != nil {
		return err
	}

	w.started = true
	w.wg.Add(2)
	go w.processEvents()
	go w.debounceProcessor()
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

// Events returns the channel for receiving watch events.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Errors returns the channel for receiving watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.report(err)
					}
					continue
				}
			}

			if !isPageFile(event.Name) {
				continue
			}
			eventType := convertEventType(event.Op)
			if eventType == "" {
				continue
			}

			w.pendingMu.Lock()
			w.pending[event.Name] = pendingEvent{
				eventType: eventType,
				timestamp: time.Now(),
			}
			w.pendingMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func (w *Watcher) debounceProcessor() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.emitStableEvents()
		}
	}
}

// emitStableEvents emits events whose file has been quiet for the debounce window.
func (w *Watcher) emitStableEvents() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	for path, pending := range w.pending {
		if now.Sub(pending.timestamp) < w.config.DebounceDuration {
			continue
		}
		delete(w.pending, path)

		select {
		case w.events <- WatchEvent{Path: path, Type: pending.eventType, Timestamp: pending.timestamp}:
		default:
			// Drop event if channel is full
		}
	}
}

// isPageFile reports whether path is a visible Markdown file. Editors write
// dotted swap and backup files next to the real one.
func isPageFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), document.Extension)
}

func convertEventType(op fsnotify.Op) WatchEventType {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return WatchEventCreate
	case op&fsnotify.Write == fsnotify.Write:
		return WatchEventWrite
	case op&fsnotify.Remove == fsnotify.Remove:
		return WatchEventRemove
	case op&fsnotify.Rename == fsnotify.Rename:
		return WatchEventRename
	default:
		return ""
	}
}

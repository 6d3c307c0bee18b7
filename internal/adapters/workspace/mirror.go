// Package workspace mirrors cached pages into a directory of Markdown files
// and feeds edits made there back into the local editor.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
)

// Pages is the read side of the page cache.
type Pages interface {
	LoadAllPages(ctx context.Context) (map[string]document.Document, error)
}

// Editor applies content edits to cached pages.
type Editor interface {
	UpdatePage(ctx context.Context, id, content string) (document.Document, error)
}

// ExportResult counts what one export pass did.
type ExportResult struct {
	Written []string
	Removed []string
	Skipped []string // files with edits not yet imported
}

// ManifestFile records, inside the mirror, the hash of every file the mirror
// wrote or imported. It survives restarts so edits made while no daemon was
// running are still recognized.
const ManifestFile = ".wikisync-manifest.json"

// Mirror keeps a directory in step with the page cache. It remembers the
// hash of every file it wrote so its own writes are not read back as edits
// and user edits are never overwritten.
type Mirror struct {
	dir    string
	pages  Pages
	editor Editor
	logger *logging.Logger

	mu      sync.Mutex
	loaded  bool
	written map[string]string // page id -> hash last written or imported
}

// NewMirror creates a mirror rooted at dir.
func NewMirror(dir string, pages Pages, editor Editor, logger *logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.Default()
	}
	return &Mirror{
		dir:     dir,
		pages:   pages,
		editor:  editor,
		logger:  logger,
		written: make(map[string]string),
	}
}

// Dir returns the mirror root.
func (m *Mirror) Dir() string {
	return m.dir
}

// FilePath returns the file a page is mirrored to.
func (m *Mirror) FilePath(id string) string {
	return filepath.Join(m.dir, filepath.FromSlash(document.PathForID(id)))
}

// IDForFile maps a mirrored file back to its page id.
func (m *Mirror) IDForFile(path string) (string, error) {
	rel, err := filepath.Rel(m.dir, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.WithContext(
			errors.NewError(errors.CodeValidation, "file is outside the workspace", errors.ErrInvalidDocumentID),
			"path", path)
	}
	return document.IDFromPath(filepath.ToSlash(rel))
}

// Export writes every cached page to the mirror. A file whose content no
// longer matches what the mirror last wrote holds an edit and is left alone.
// Files of pages that left the cache are removed when unedited.
func (m *Mirror) Export(ctx context.Context) (ExportResult, error) {
	var res ExportResult
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return res, errors.Storage("create workspace", err)
	}
	pages, err := m.pages.LoadAllPages(ctx)
	if err != nil {
		return res, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadManifest(); err != nil {
		return res, err
	}

	ids := make([]string, 0, len(pages))
	for id := range pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		doc := pages[id]
		path := m.FilePath(id)
		onDisk, present := m.readHash(path)
		if present && onDisk == doc.Hash {
			m.written[id] = doc.Hash
			continue
		}
		if present && m.edited(id, onDisk) {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err := writeFile(path, doc.Content); err != nil {
			return res, errors.Storage("write workspace file", err)
		}
		m.written[id] = doc.Hash
		res.Written = append(res.Written, id)
	}

	for id, hash := range m.written {
		if _, ok := pages[id]; ok {
			continue
		}
		path := m.FilePath(id)
		if onDisk, present := m.readHash(path); present && onDisk != hash {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return res, errors.Storage("remove workspace file", err)
		}
		delete(m.written, id)
		res.Removed = append(res.Removed, id)
	}
	sort.Strings(res.Removed)
	sort.Strings(res.Skipped)
	if err := m.saveManifest(); err != nil {
		return res, err
	}

	m.logger.DebugContext(ctx, "workspace exported",
		"dir", m.dir, "written", len(res.Written), "removed", len(res.Removed), "skipped", len(res.Skipped))
	return res, nil
}

// edited reports whether a present file differs from what the mirror last
// wrote. A file the mirror never wrote counts as an edit.
func (m *Mirror) edited(id, onDisk string) bool {
	last, known := m.written[id]
	return !known || last != onDisk
}

// Import reads one mirrored file and applies it as an edit. It reports
// whether the page content changed. Files the mirror wrote itself, and files
// of pages that are not in the cache, are ignored.
func (m *Mirror) Import(ctx context.Context, path string) (bool, error) {
	id, err := m.IDForFile(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Storage("read workspace file", err)
	}
	content := string(data)
	hash := document.ContentHash(content)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadManifest(); err != nil {
		return false, err
	}
	if last, ok := m.written[id]; ok && last == hash {
		return false, nil
	}

	doc, err := m.editor.UpdatePage(ctx, id, content)
	if errors.Is(err, errors.ErrNotFound) {
		m.logger.InfoContext(ctx, "ignoring workspace file for unknown page; use `wikisync page create`", "path", path)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("import %s: %w", id, err)
	}
	m.written[id] = hash
	if err := m.saveManifest(); err != nil {
		return false, err
	}
	return doc.LocallyModified(), nil
}

// Scan imports every page file under the mirror. It picks up edits made
// while nothing was watching and returns how many pages changed.
func (m *Mirror) Scan(ctx context.Context) (int, error) {
	var files []string
	err := filepath.WalkDir(m.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != m.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isPageFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Storage("scan workspace", err)
	}

	changed := 0
	for _, f := range files {
		ok, err := m.Import(ctx, f)
		if err != nil {
			m.logger.WarnContext(ctx, "workspace import failed", "path", f, "error", err)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (m *Mirror) manifestPath() string {
	return filepath.Join(m.dir, ManifestFile)
}

// loadManifest reads the manifest once. Callers hold mu.
func (m *Mirror) loadManifest() error {
	if m.loaded {
		return nil
	}
	data, err := os.ReadFile(m.manifestPath())
	if os.IsNotExist(err) {
		m.loaded = true
		return nil
	}
	if err != nil {
		return errors.Storage("read workspace manifest", err)
	}
	written := make(map[string]string)
	if err := json.Unmarshal(data, &written); err != nil {
		m.logger.Warn("workspace manifest unreadable, starting fresh", "error", err)
		written = make(map[string]string)
	}
	m.written = written
	m.loaded = true
	return nil
}

// saveManifest persists the manifest. Callers hold mu.
func (m *Mirror) saveManifest() error {
	data, err := json.MarshalIndent(m.written, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(m.manifestPath(), string(data)); err != nil {
		return errors.Storage("write workspace manifest", err)
	}
	return nil
}

// Run imports settled file events until ctx ends or the watcher closes.
// onEdit is called after each event batch that changed at least one page.
func (m *Mirror) Run(ctx context.Context, w *Watcher, onEdit func()) {
	ctx = logging.WithCorrelationID(ctx, "workspace")
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			m.logger.WarnContext(ctx, "workspace watcher error", "error", err)
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			changed := m.handle(ctx, ev)
			for drained := false; !drained; {
				select {
				case more, ok := <-w.Events():
					if !ok {
						drained = true
						break
					}
					changed = m.handle(ctx, more) || changed
				default:
					drained = true
				}
			}
			if changed && onEdit != nil {
				onEdit()
			}
		}
	}
}

func (m *Mirror) handle(ctx context.Context, ev WatchEvent) bool {
	switch ev.Type {
	case WatchEventCreate, WatchEventWrite:
		changed, err := m.Import(ctx, ev.Path)
		if err != nil {
			m.logger.WarnContext(ctx, "workspace import failed", "path", ev.Path, "error", err)
			return false
		}
		if changed {
			m.logger.InfoContext(ctx, "workspace edit imported", "path", ev.Path)
		}
		return changed
	default:
		// Deleting a file does not delete the page.
		m.logger.DebugContext(ctx, "workspace file removed", "path", ev.Path)
		return false
	}
}

func (m *Mirror) readHash(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return document.ContentHash(string(data)), true
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".wikisync-tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

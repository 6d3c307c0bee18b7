// Package document defines the wiki page, asset and table-of-contents models
// together with the pure merge functions used during conflict resolution.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Extension is the file extension of page documents on the remote.
const Extension = ".md"

// Document is a single wiki page.
type Document struct {
	ID           string    // Normalized page identifier, e.g. "guides/rules"
	Path         string    // Remote path, e.g. "guides/rules.md"
	Title        string    // Display title from the table of contents
	Content      string    // Raw page body
	Order        int       // Position within its category
	CategoryID   string    // Owning category ("" for root pages)
	LastModified time.Time // Last modification, local or remote
	Hash         string    // SHA-256 of Content
	Revision     string    // Remote revision the local copy is based on
	BaseHash     string    // Hash of the content at Revision
	SyncedAt     time.Time // When the local copy last matched the remote
}

// New builds a document for id with content, deriving path and hash.
func New(id, title, content string, modified time.Time) (Document, error) {
	normalized, err := NormalizeID(id)
	if err != nil {
		return Document{}, err
	}
	d := Document{
		ID:           normalized,
		Path:         PathForID(normalized),
		Title:        title,
		Content:      content,
		LastModified: NormalizeTime(modified),
	}
	d.Rehash()
	return d, nil
}

// Rehash recomputes Hash from Content.
func (d *Document) Rehash() {
	d.Hash = ContentHash(d.Content)
}

// Synced reports whether the document has ever been reconciled with the remote.
func (d Document) Synced() bool {
	return d.Revision != "" && d.BaseHash != ""
}

// LocallyModified reports whether the content changed since the last sync.
func (d Document) LocallyModified() bool {
	return !d.Synced() || d.Hash != d.BaseHash
}

// SameContent reports whether both documents carry byte-identical bodies.
func (d Document) SameContent(other Document) bool {
	return d.Hash == other.Hash
}

// SamePlacement reports whether both documents sit at the same place in the index.
func (d Document) SamePlacement(other Document) bool {
	return d.CategoryID == other.CategoryID
}

// SameMetadata reports whether title and ordering agree.
func (d Document) SameMetadata(other Document) bool {
	return d.Title == other.Title && d.Order == other.Order
}

// MarkSynced records that the local copy now equals the remote at revision.
func (d *Document) MarkSynced(revision string, at time.Time) {
	d.Rehash()
	d.Revision = revision
	d.BaseHash = d.Hash
	d.SyncedAt = NormalizeTime(at)
}

// Asset is a binary file referenced by pages, such as an image.
type Asset struct {
	Path         string
	Blob         []byte
	Type         string
	LastModified time.Time
}

// ContentHash returns the hex SHA-256 digest of content. Used for equality only.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NormalizeTime truncates t to millisecond precision in UTC so timestamps from
// different clocks and serializations compare consistently.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// NormalizeID canonicalizes a page identifier: NFC, forward slashes, no
// surrounding slashes, no extension. Traversal segments are rejected.
func NormalizeID(raw string) (string, error) {
	id := norm.NFC.String(strings.TrimSpace(raw))
	id = strings.ReplaceAll(id, "\\", "/")
	id = strings.TrimSuffix(id, Extension)
	id = strings.Trim(id, "/")
	if id == "" {
		return "", errors.ErrInvalidDocumentID
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", errors.WithContext(
				errors.NewError(errors.CodeValidation, "invalid path segment", errors.ErrInvalidDocumentID),
				"id", raw)
		}
	}
	return id, nil
}

// PathForID returns the remote path of a page.
func PathForID(id string) string {
	return id + Extension
}

// IDFromPath derives the page identifier from a remote path.
func IDFromPath(p string) (string, error) {
	return NormalizeID(path.Clean("/" + strings.ReplaceAll(p, "\\", "/")))
}

// Slugify turns a title into an identifier segment.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFC.String(strings.ToLower(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

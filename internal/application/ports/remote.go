package ports

import (
	"context"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
)

// RemoteDocument is a file read from the remote store.
type RemoteDocument struct {
	Path      string
	Content   []byte
	Revision  string
	UpdatedAt time.Time
}

// RemoteEntry describes a remote file without its content.
type RemoteEntry struct {
	Path      string    `json:"path"`
	Revision  string    `json:"revision"`
	Hash      string    `json:"hash,omitempty"` // SHA-256 of the content when the backend knows it
	UpdatedAt time.Time `json:"updatedAt"`
}

// WriteRequest is a single optimistic write.
type WriteRequest struct {
	Path    string
	Content []byte
	Message string

	// ExpectedRevision must match the current remote revision. Empty means
	// create: the write fails with a revision conflict if the path exists.
	ExpectedRevision string
}

// Transport is the wire-level collaborator behind the remote store.
// Implementations map their native failures onto the domain error codes:
// unauthenticated, forbidden, not found, rate limited, transient and
// revision conflict.
type Transport interface {
	// Name identifies the backend in logs and config.
	Name() string

	// Read fetches a file and its revision.
	Read(ctx context.Context, path string) (*RemoteDocument, error)

	// Write stores a file and returns its new revision.
	Write(ctx context.Context, req WriteRequest) (string, error)

	// List enumerates files whose path starts with prefix.
	List(ctx context.Context, prefix string) ([]RemoteEntry, error)

	// Ping verifies that the caller may read and write.
	Ping(ctx context.Context) error
}

// RemoteDocumentStore is the authoritative document store as seen by the
// sync engine. WriteDocument is its only mutating operation.
type RemoteDocumentStore interface {
	// FetchDocument returns content and revision, or a not-found error.
	FetchDocument(ctx context.Context, path string) (*RemoteDocument, error)

	// WriteDocument writes content with optimistic concurrency and returns the new revision.
	WriteDocument(ctx context.Context, path, content, message, expectedRevision string) (string, error)

	// FetchTableOfContents reads and parses the remote index.
	FetchTableOfContents(ctx context.Context) (*document.TableOfContents, error)

	// WriteTableOfContents serializes toc and writes it to the index path.
	WriteTableOfContents(ctx context.Context, toc *document.TableOfContents, message, expectedRevision string) (string, error)

	// ListDocuments enumerates remote page files.
	ListDocuments(ctx context.Context) ([]RemoteEntry, error)

	// FetchAsset reads a binary file referenced by a page.
	FetchAsset(ctx context.Context, path string) (*document.Asset, error)

	// CheckAccess reports whether the store is reachable with write access.
	CheckAccess(ctx context.Context) (bool, error)
}

// IndexCodec converts the remote index text to and from the in-memory tree.
type IndexCodec interface {
	Name() string
	Parse(data []byte) (*document.TableOfContents, error)
	Serialize(toc *document.TableOfContents) ([]byte, error)
}

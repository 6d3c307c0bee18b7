// Package remote implements the remote document store on top of a wire
// transport and an index codec.
package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/tracing"
)

// Default store settings.
const (
	DefaultIndexPath      = "SUMMARY.md"
	DefaultCallTimeout    = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
)

// Ensure DocumentStore implements RemoteDocumentStore.
var _ ports.RemoteDocumentStore = (*DocumentStore)(nil)

// DocumentStore is the remote document store used by the sync engine.
// Every transport call runs under its own timeout; transient and
// rate-limit failures are retried with exponential backoff.
type DocumentStore struct {
	transport      ports.Transport
	codec          ports.IndexCodec
	indexPath      string
	callTimeout    time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *logging.Logger
	tracer         *tracing.Tracer
}

// Option is a functional option for configuring the DocumentStore.
type Option func(*DocumentStore)

// WithIndexPath sets the remote path of the index file.
func WithIndexPath(p string) Option {
	return func(s *DocumentStore) {
		s.indexPath = p
	}
}

// WithCallTimeout bounds each transport call. Expiry surfaces as a transient error.
func WithCallTimeout(d time.Duration) Option {
	return func(s *DocumentStore) {
		s.callTimeout = d
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(s *DocumentStore) {
		s.maxRetries = n
	}
}

// WithBackoff sets the initial and maximum retry delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *DocumentStore) {
		s.initialBackoff = initial
		s.maxBackoff = max
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(s *DocumentStore) {
		s.logger = l
	}
}

// WithTracer records a span per transport call.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *DocumentStore) {
		s.tracer = t
	}
}

// NewDocumentStore creates a store over transport, parsing the index with codec.
func NewDocumentStore(transport ports.Transport, codec ports.IndexCodec, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		transport:      transport,
		codec:          codec,
		indexPath:      DefaultIndexPath,
		callTimeout:    DefaultCallTimeout,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	return s
}

// Backend returns the transport name.
func (s *DocumentStore) Backend() string {
	return s.transport.Name()
}

// IndexPath returns the remote path of the index file.
func (s *DocumentStore) IndexPath() string {
	return s.indexPath
}

// hintedBackOff lets a rate-limit response dictate the next delay.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if b.hint > 0 && next != backoff.Stop {
		next, b.hint = b.hint, 0
	}
	return next
}

// call runs op with a per-attempt timeout and retries retryable failures.
func call[T any](ctx context.Context, s *DocumentStore, name, target string, op func(context.Context) (T, error)) (T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initialBackoff
	exp.MaxInterval = s.maxBackoff
	b := &hintedBackOff{BackOff: exp}

	attempt := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()

		var span *tracing.RemoteSpan
		if s.tracer != nil {
			callCtx, span = s.tracer.StartRemoteSpan(callCtx, s.transport.Name(), name, target)
		}

		res, err := op(callCtx)
		if err != nil && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = errors.WithContext(
				errors.Transient(fmt.Sprintf("%s %s timed out after %s", name, target, s.callTimeout), err),
				errors.ContextPath, target)
		}
		if span != nil {
			span.EndWithError(err)
		}

		if err == nil {
			return res, nil
		}
		if !errors.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		b.hint = errors.RetryAfter(err)
		return res, err
	}

	notify := func(err error, next time.Duration) {
		s.logger.Warn("remote call failed, retrying",
			"op", name, "target", target, "backend", s.transport.Name(),
			"retry_in", next.String(), "error", err)
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return res, nil
	}

	var perm *backoff.PermanentError
	if stderrors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if errors.CodeOf(err) == "" {
		// Cancellation of the caller's context, or an adapter that ignored the taxonomy.
		err = errors.Transient(fmt.Sprintf("%s %s", name, target), err)
	}
	return res, err
}

// FetchDocument returns a page file and its revision.
func (s *DocumentStore) FetchDocument(ctx context.Context, p string) (*ports.RemoteDocument, error) {
	return call(ctx, s, "read", p, func(ctx context.Context) (*ports.RemoteDocument, error) {
		return s.transport.Read(ctx, p)
	})
}

// WriteDocument writes content with optimistic concurrency.
func (s *DocumentStore) WriteDocument(ctx context.Context, p, content, message, expectedRevision string) (string, error) {
	return call(ctx, s, "write", p, func(ctx context.Context) (string, error) {
		return s.transport.Write(ctx, ports.WriteRequest{
			Path:             p,
			Content:          []byte(content),
			Message:          message,
			ExpectedRevision: expectedRevision,
		})
	})
}

// FetchTableOfContents reads and parses the remote index. When the index
// file does not exist, a flat index is synthesized from the page listing.
func (s *DocumentStore) FetchTableOfContents(ctx context.Context) (*document.TableOfContents, error) {
	doc, err := s.FetchDocument(ctx, s.indexPath)
	if errors.Is(err, errors.ErrNotFound) {
		return s.fallbackIndex(ctx)
	}
	if err != nil {
		return nil, err
	}

	toc, err := s.codec.Parse(doc.Content)
	if err != nil {
		return nil, err
	}
	toc.Revision = doc.Revision
	return toc, nil
}

func (s *DocumentStore) fallbackIndex(ctx context.Context) (*document.TableOfContents, error) {
	entries, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	toc := &document.TableOfContents{}
	for _, e := range entries {
		id, err := document.IDFromPath(e.Path)
		if err != nil {
			continue
		}
		toc.Pages = append(toc.Pages, document.PageRef{
			ID:    id,
			Title: titleFromID(id),
			Path:  e.Path,
			Order: len(toc.Pages),
		})
	}
	s.logger.Info("remote index missing, using page listing", "index_path", s.indexPath, "pages", len(toc.Pages))
	return toc, nil
}

// WriteTableOfContents serializes toc and writes it to the index path.
func (s *DocumentStore) WriteTableOfContents(ctx context.Context, toc *document.TableOfContents, message, expectedRevision string) (string, error) {
	data, err := s.codec.Serialize(toc)
	if err != nil {
		return "", errors.NewError(errors.CodeStructural, "serialize index", err)
	}
	return s.WriteDocument(ctx, s.indexPath, string(data), message, expectedRevision)
}

// ListDocuments enumerates the remote page files, excluding the index.
func (s *DocumentStore) ListDocuments(ctx context.Context) ([]ports.RemoteEntry, error) {
	entries, err := call(ctx, s, "list", "", func(ctx context.Context) ([]ports.RemoteEntry, error) {
		return s.transport.List(ctx, "")
	})
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Path == s.indexPath || !strings.HasSuffix(e.Path, document.Extension) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// FetchAsset reads a binary file.
func (s *DocumentStore) FetchAsset(ctx context.Context, p string) (*document.Asset, error) {
	doc, err := s.FetchDocument(ctx, p)
	if err != nil {
		return nil, err
	}
	return &document.Asset{
		Path:         p,
		Blob:         doc.Content,
		Type:         http.DetectContentType(doc.Content),
		LastModified: doc.UpdatedAt,
	}, nil
}

// CheckAccess reports whether the remote accepts the caller's credentials
// for writing. Authentication failures return false with no error; other
// failures are returned.
func (s *DocumentStore) CheckAccess(ctx context.Context) (bool, error) {
	_, err := call(ctx, s, "ping", "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.transport.Ping(ctx)
	})
	if err == nil {
		return true, nil
	}
	if errors.IsAuth(err) {
		return false, nil
	}
	return false, err
}

// titleFromID derives a display title for a page the index does not list.
func titleFromID(id string) string {
	base := path.Base(id)
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) == 0 {
		return base
	}
	// A Caser keeps state, so one is made per call.
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(words, " "))
}

// Package remoteserver serves a remote transport over the wikisync HTTP
// protocol. It is the reference remote store: `wikisync serve` runs it over
// the in-memory or PostgreSQL transport.
package remoteserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jbctechsolutions/wikisync/internal/adapters/remote/httpapi"
	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
)

// MaxDocumentSize bounds request bodies.
const MaxDocumentSize = 16 << 20

// Config holds server settings.
type Config struct {
	Addr      string
	JWTSecret string // empty disables authentication
	RateLimit RateLimit
}

// Server exposes a Transport over HTTP.
type Server struct {
	transport ports.Transport
	cfg       Config
	logger    *logging.Logger
	limiter   *rateLimiter
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithClock sets the time source used by the rate limiter.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a server over transport.
func New(transport ports.Transport, cfg Config, opts ...Option) *Server {
	s := &Server{
		transport: transport,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if cfg.RateLimit.Rate > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, s.now)
	}
	return s
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware)

		r.With(requireScope(ScopeRead)).Get(httpapi.DocumentsPath, s.listDocuments)
		r.With(requireScope(ScopeRead)).Get(httpapi.DocumentsPath+"/*", s.readDocument)
		r.With(requireScope(ScopeWrite)).Put(httpapi.DocumentsPath+"/*", s.writeDocument)
		r.With(requireScope(ScopeWrite)).Get(httpapi.AccessPath, s.checkAccess)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("remote server listening", "addr", s.cfg.Addr, "backend", s.transport.Name(),
			"auth", s.cfg.JWTSecret != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r),
		)
	})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	entries, err := s.transport.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeTransportError(w, r, err)
		return
	}
	if entries == nil {
		entries = []ports.RemoteEntry{}
	}
	writeJSON(w, http.StatusOK, httpapi.ListResponse{Entries: entries})
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPath(w, r)
	if !ok {
		return
	}
	doc, err := s.transport.Read(r.Context(), p)
	if err != nil {
		s.writeTransportError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType(p, doc.Content))
	w.Header().Set("ETag", httpapi.ETag(doc.Revision))
	if !doc.UpdatedAt.IsZero() {
		w.Header().Set(httpapi.HeaderUpdatedAt, httpapi.FormatTime(doc.UpdatedAt))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := documentPath(w, r)
	if !ok {
		return
	}

	var expected string
	switch {
	case r.Header.Get("If-None-Match") == "*":
	case r.Header.Get("If-Match") != "":
		expected = httpapi.ParseETag(r.Header.Get("If-Match"))
	default:
		writeError(w, http.StatusPreconditionRequired, "precondition_required", "If-Match or If-None-Match: * is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	}

	rev, err := s.transport.Write(r.Context(), ports.WriteRequest{
		Path:             p,
		Content:          body,
		Message:          r.Header.Get(httpapi.HeaderMessage),
		ExpectedRevision: expected,
	})
	if err != nil {
		s.writeTransportError(w, r, err)
		return
	}

	s.logger.Info("document written", "path", p, "revision", rev, "subject", Subject(r.Context()),
		"request_id", requestID(r))
	w.Header().Set("ETag", httpapi.ETag(rev))
	if expected == "" {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	if err := s.transport.Ping(r.Context()); err != nil {
		s.writeTransportError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func contentType(p string, content []byte) string {
	ext := path.Ext(p)
	if ext == ".md" {
		return "text/markdown; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(content)
}

func documentPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_path", "malformed path escape")
			return "", false
		}
		p = unescaped
	}
	if p == "" || path.Clean("/"+p) != "/"+p {
		writeError(w, http.StatusBadRequest, "bad_path", "invalid document path")
		return "", false
	}
	return p, true
}

// writeTransportError maps a transport failure to its HTTP status.
func (s *Server) writeTransportError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case domainerrors.Is(err, domainerrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case domainerrors.Is(err, domainerrors.ErrRevisionConflict):
		status, code = http.StatusPreconditionFailed, "revision_conflict"
	case domainerrors.Is(err, domainerrors.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "unauthenticated"
	case domainerrors.Is(err, domainerrors.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case domainerrors.Is(err, domainerrors.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case domainerrors.Is(err, domainerrors.ErrTransientNetwork):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}
	if status >= 500 {
		s.logger.Error("transport failure", "path", r.URL.Path, "error", err, "request_id", requestID(r))
	}
	writeError(w, status, code, err.Error())
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpapi.ErrorBody{Error: httpapi.ErrorDetail{Code: code, Message: message}})
}

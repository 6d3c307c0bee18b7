// Package postgres implements the remote transport on a PostgreSQL table.
// Each row is one file; the revision column is a per-path counter updated
// with compare-and-set, so concurrent writers get revision conflicts rather
// than lost updates.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Ensure Transport implements ports.Transport.
var _ ports.Transport = (*Transport)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS wiki_documents (
	path         TEXT PRIMARY KEY,
	content      BYTEA NOT NULL,
	content_hash TEXT NOT NULL,
	revision     BIGINT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Transport stores files in the wiki_documents table.
type Transport struct {
	pool *pgxpool.Pool
	now  func() time.Time
	owns bool
}

// New wraps an existing pool. The caller keeps ownership of it.
func New(pool *pgxpool.Pool) *Transport {
	return &Transport{pool: pool, now: time.Now}
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Transport, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, mapError("connect", "", err)
	}
	t := &Transport{pool: pool, now: time.Now, owns: true}
	if err := t.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return t, nil
}

// Migrate creates the documents table if needed.
func (t *Transport) Migrate(ctx context.Context) error {
	if _, err := t.pool.Exec(ctx, schema); err != nil {
		return mapError("migrate", "", err)
	}
	return nil
}

// Close releases the pool when the transport opened it.
func (t *Transport) Close() {
	if t.owns {
		t.pool.Close()
	}
}

// Name returns the backend name.
func (t *Transport) Name() string { return "postgres" }

// Read fetches a file.
func (t *Transport) Read(ctx context.Context, path string) (*ports.RemoteDocument, error) {
	var (
		content   []byte
		revision  int64
		updatedAt time.Time
	)
	err := t.pool.QueryRow(ctx,
		`SELECT content, revision, updated_at FROM wiki_documents WHERE path = $1`, path,
	).Scan(&content, &revision, &updatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound(path)
	}
	if err != nil {
		return nil, mapError("read", path, err)
	}
	return &ports.RemoteDocument{
		Path:      path,
		Content:   content,
		Revision:  strconv.FormatInt(revision, 10),
		UpdatedAt: document.NormalizeTime(updatedAt),
	}, nil
}

// Write inserts or conditionally updates a file.
func (t *Transport) Write(ctx context.Context, req ports.WriteRequest) (string, error) {
	hash := document.ContentHash(string(req.Content))
	now := document.NormalizeTime(t.now())

	var revision int64
	var err error
	if req.ExpectedRevision == "" {
		err = t.pool.QueryRow(ctx,
			`INSERT INTO wiki_documents (path, content, content_hash, revision, message, updated_at)
			 VALUES ($1, $2, $3, 1, $4, $5)
			 ON CONFLICT (path) DO NOTHING
			 RETURNING revision`,
			req.Path, req.Content, hash, req.Message, now,
		).Scan(&revision)
	} else {
		expected, perr := strconv.ParseInt(req.ExpectedRevision, 10, 64)
		if perr != nil {
			return "", errors.RevisionConflict(req.Path, req.ExpectedRevision)
		}
		err = t.pool.QueryRow(ctx,
			`UPDATE wiki_documents
			 SET content = $2, content_hash = $3, revision = revision + 1, message = $4, updated_at = $5
			 WHERE path = $1 AND revision = $6
			 RETURNING revision`,
			req.Path, req.Content, hash, req.Message, now, expected,
		).Scan(&revision)
	}

	if err == pgx.ErrNoRows {
		return "", errors.RevisionConflict(req.Path, req.ExpectedRevision)
	}
	if err != nil {
		return "", mapError("write", req.Path, err)
	}
	return strconv.FormatInt(revision, 10), nil
}

// List enumerates files under prefix in path order.
func (t *Transport) List(ctx context.Context, prefix string) ([]ports.RemoteEntry, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT path, revision, content_hash, updated_at FROM wiki_documents
		 WHERE left(path, length($1)) = $1
		 ORDER BY path`, prefix)
	if err != nil {
		return nil, mapError("list", prefix, err)
	}
	defer rows.Close()

	var entries []ports.RemoteEntry
	for rows.Next() {
		var (
			e        ports.RemoteEntry
			revision int64
		)
		if err := rows.Scan(&e.Path, &revision, &e.Hash, &e.UpdatedAt); err != nil {
			return nil, mapError("list", prefix, err)
		}
		e.Revision = strconv.FormatInt(revision, 10)
		e.UpdatedAt = document.NormalizeTime(e.UpdatedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list", prefix, err)
	}
	return entries, nil
}

// Ping checks connectivity and write privilege on the documents table.
func (t *Transport) Ping(ctx context.Context) error {
	var canWrite bool
	err := t.pool.QueryRow(ctx,
		`SELECT has_table_privilege(current_user, 'wiki_documents', 'INSERT, UPDATE')`,
	).Scan(&canWrite)
	if err != nil {
		return mapError("ping", "", err)
	}
	if !canWrite {
		return errors.NewError(errors.CodeForbidden, "database role cannot write wiki_documents", nil)
	}
	return nil
}

// mapError translates driver failures onto the domain taxonomy.
func mapError(op, path string, err error) error {
	message := op
	if path != "" {
		message = fmt.Sprintf("%s %s", op, path)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		var se *errors.SyncError
		switch {
		case pgErr.Code == "28P01" || pgErr.Code == "28000":
			se = errors.NewError(errors.CodeUnauthenticated, message, err)
		case pgErr.Code == "42501":
			se = errors.NewError(errors.CodeForbidden, message, err)
		case pgErr.Code == "53300":
			se = errors.RateLimited(message, time.Second)
		case pgErr.Code[:2] == "08" || pgErr.Code[:2] == "40" || pgErr.Code[:2] == "57":
			se = errors.Transient(message, err)
		default:
			se = errors.Structural(message, err)
		}
		return errors.WithContext(se, "sqlstate", pgErr.Code)
	}

	// Anything else is a connection-level failure: dial, TLS, timeout, reset.
	return errors.Transient(message, err)
}

package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Ensure Store implements LocalCachePort.
var _ ports.LocalCachePort = (*Store)(nil)

// Store implements ports.LocalCachePort on a single SQLite table. The
// connection is opened lazily on first use.
type Store struct {
	conn *Connection
	now  func() time.Time
}

// NewStore creates a store over conn. The connection need not be open yet.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn, now: time.Now}
}

// Open creates a store for the database at path and opens it immediately.
func Open(path string) (*Store, error) {
	conn, err := NewConnection(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(conn)
	if _, err := s.db(); err != nil {
		return nil, err
	}
	return s, nil
}

// db returns the open database, initializing it on first use. A failed
// initialization is retried once before surfacing as a storage error.
func (s *Store) db() (*sql.DB, error) {
	if db, err := s.conn.DB(); err == nil {
		return db, nil
	}

	err := s.conn.EnsureOpen()
	if err != nil {
		_ = s.conn.Close()
		err = s.conn.EnsureOpen()
	}
	if err != nil {
		return nil, errors.WithContext(errors.Storage("open cache", err), "path", s.conn.Path())
	}
	return s.conn.DB()
}

// Get returns the entry for key.
func (s *Store) Get(ctx context.Context, ns ports.Namespace, key string) (*ports.CacheEntry, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	entry := &ports.CacheEntry{Namespace: ns, Key: key}
	var updated int64
	err = db.QueryRowContext(ctx,
		"SELECT value, hash, updated_at FROM entries WHERE namespace = ? AND key = ?",
		string(ns), key,
	).Scan(&entry.Value, &entry.Hash, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound(fmt.Sprintf("%s/%s", ns, key))
	}
	if err != nil {
		return nil, errors.Storage("get "+string(ns), err)
	}
	entry.UpdatedAt = time.UnixMilli(updated).UTC()
	return entry, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, ns ports.Namespace, key string, value []byte) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	if err := put(ctx, db, ns, key, value, s.now()); err != nil {
		return errors.Storage("put "+string(ns), err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, ns ports.Namespace, key string, value []byte, now time.Time) error {
	if value == nil {
		value = []byte{}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO entries (namespace, key, value, hash, size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			hash = excluded.hash,
			size = excluded.size,
			updated_at = excluded.updated_at`,
		string(ns), key, value, document.ContentHash(string(value)), len(value), now.UnixMilli(),
	)
	return err
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, ns ports.Namespace, key string) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ? AND key = ?", string(ns), key); err != nil {
		return errors.Storage("delete "+string(ns), err)
	}
	return nil
}

// List returns all keys of a namespace in ascending order.
func (s *Store) List(ctx context.Context, ns ports.Namespace) ([]string, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT key FROM entries WHERE namespace = ? ORDER BY key", string(ns))
	if err != nil {
		return nil, errors.Storage("list "+string(ns), err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Storage("list "+string(ns), err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("list "+string(ns), err)
	}
	return keys, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, ns ports.Namespace, key string) (bool, error) {
	db, err := s.db()
	if err != nil {
		return false, err
	}
	var n int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE namespace = ? AND key = ?", string(ns), key,
	).Scan(&n)
	if err != nil {
		return false, errors.Storage("exists "+string(ns), err)
	}
	return n > 0, nil
}

// Update runs fn inside an immediate transaction so the read and the write
// of key cannot interleave with another writer.
func (s *Store) Update(ctx context.Context, ns ports.Namespace, key string, fn ports.UpdateFunc) error {
	db, err := s.db()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("begin update", err)
	}
	defer tx.Rollback()

	var current []byte
	found := true
	err = tx.QueryRowContext(ctx,
		"SELECT value FROM entries WHERE namespace = ? AND key = ?", string(ns), key,
	).Scan(&current)
	if stderrors.Is(err, sql.ErrNoRows) {
		found = false
	} else if err != nil {
		return errors.Storage("read for update", err)
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}

	if next == nil {
		_, err = tx.ExecContext(ctx, "DELETE FROM entries WHERE namespace = ? AND key = ?", string(ns), key)
	} else {
		err = put(ctx, tx, ns, key, next, s.now())
	}
	if err != nil {
		return errors.Storage("write update", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Storage("commit update", err)
	}
	return nil
}

// SizeOf returns the stored bytes of a namespace.
func (s *Store) SizeOf(ctx context.Context, ns ports.Namespace) (int64, error) {
	db, err := s.db()
	if err != nil {
		return 0, err
	}
	var size sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT SUM(size) FROM entries WHERE namespace = ?", string(ns)).Scan(&size); err != nil {
		return 0, errors.Storage("size "+string(ns), err)
	}
	return size.Int64, nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	db, err := s.db()
	if err != nil {
		return 0, err
	}
	return schemaVersion(db)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.conn.Path()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

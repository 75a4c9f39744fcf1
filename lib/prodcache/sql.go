package prodcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"pricescout-backend/lib/chrono"
	"pricescout-backend/lib/textutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	cached_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_entries_cached_at ON cache_entries (cached_at);
`

// OpenDB opens the embedded cache substrate. Plain paths use the in-process
// sqlite driver; libsql:// urls go to a hosted replica.
func OpenDB(url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}

	var db *sql.DB
	var err error
	if strings.HasPrefix(url, "libsql://") || strings.HasPrefix(url, "wss://") ||
		strings.HasPrefix(url, "https://") {
		db, err = sql.Open("libsql", url)
	} else {
		db, err = sql.Open("sqlite", url)
		if err == nil {
			// see https://stackoverflow.com/questions/35804884 for why
			db.SetMaxOpenConns(1)
			_, err = db.Exec("PRAGMA journal_mode=WAL")
		}
	}
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// SQL is the persistent Store implementation over an embedded database.
// Values are stored json-encoded; semantics match Memory.
type SQL[T any] struct {
	db         *sql.DB
	clock      chrono.TimeAPI
	maxEntries int
}

func NewSQL[T any](db *sql.DB, clock chrono.TimeAPI, maxEntries int) *SQL[T] {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &SQL[T]{db: db, clock: clock, maxEntries: maxEntries}
}

func (s *SQL[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	key = textutil.NormalizeKey(key)

	row := s.db.QueryRowContext(ctx,
		"SELECT value, cached_at, ttl_seconds FROM cache_entries WHERE key = ?", key)

	var raw string
	var cachedAt, ttlSeconds int64
	err := row.Scan(&raw, &cachedAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	if s.clock.Now().Unix()-cachedAt > ttlSeconds {
		_, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
		return zero, false, err
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return zero, false, err
	}
	return value, true, nil
}

func (s *SQL[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) error {
	key = textutil.NormalizeKey(key)

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, cached_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			cached_at = excluded.cached_at,
			ttl_seconds = excluded.ttl_seconds`,
		key, string(raw), s.clock.Now().Unix(), int64(ttl.Seconds()))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries
			ORDER BY cached_at DESC
			LIMIT -1 OFFSET ?
		)`, s.maxEntries)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQL[T]) SweepExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE ? - cached_at > ttl_seconds",
		s.clock.Now().Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

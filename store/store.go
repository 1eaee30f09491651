// Package store is the durable half of the preview cache: a single SQLite
// file holding compressed renders keyed by url:width:height, trimmed to the
// most recently accessed rows after every write.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRowLimit is the number of rows kept after each write.
const DefaultRowLimit = 16384

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cache (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	key TEXT NOT NULL,
	value BLOB,
	CONSTRAINT const_key UNIQUE (key)
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_key ON cache (key)`,
	`CREATE INDEX IF NOT EXISTS idx_timestamp ON cache (timestamp)`,
}

const (
	selectValue = `SELECT value FROM cache WHERE key = ?`

	// REPLACE deletes the old row and inserts a new one, so every write or
	// touch takes a fresh id and same-second ties resolve by access order.
	replaceRow = `REPLACE INTO cache (timestamp, key, value) VALUES (?, ?, ?)`

	evictRows = `DELETE FROM cache WHERE id NOT IN
(SELECT id FROM cache ORDER BY timestamp DESC, id DESC LIMIT ?)`
)

// Options configures Open.
type Options struct {
	Driver      Driver
	BusyTimeout time.Duration
	// Now supplies access timestamps; time.Now when nil.
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Stats summarizes the contents of the store.
type Stats struct {
	Rows   int64
	Bytes  int64
	Oldest time.Time
	Newest time.Time
}

// Store is the process-wide cache file. All access goes through one
// connection and one mutex, so an eviction scan can never interleave with
// a concurrent Get.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	now    func() time.Time
	log    zerolog.Logger
	closed bool
}

// Open opens (creating if needed) the cache file at path and makes sure the
// schema exists. Any failure is returned as *OpenError.
func Open(path string, opts Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &OpenError{Path: path, Err: err}
		}
	}

	db, err := openDB(opts.Driver, path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:   db,
		path: path,
		now:  opts.Now,
		log:  zerolog.Nop(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "store").Logger()
	}

	if err := s.init(opts.BusyTimeout); err != nil {
		db.Close()
		return nil, &OpenError{Path: path, Err: err}
	}
	s.log.Debug().Str("path", path).Str("driver", opts.Driver.String()).Msg("cache store opened")
	return s, nil
}

func (s *Store) init(busy time.Duration) error {
	ctx := context.Background()
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = "+strconv.FormatInt(busy.Milliseconds(), 10)); err != nil {
		return err
	}
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode = wal").Scan(&mode); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	s.log.Debug().Str("journal_mode", mode).Msg("schema ready")
	return nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Get looks up key. A hit refreshes the row's timestamp. A row holding NULL
// is reported as found with a nil value.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, &IOError{Op: "get", Key: key, Err: ErrClosed}
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, selectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &IOError{Op: "get", Key: key, Err: err}
	}

	if _, err := s.db.ExecContext(ctx, replaceRow, s.now().Unix(), key, nullable(value)); err != nil {
		// the read itself succeeded; a lost touch only makes the row older
		s.log.Warn().Err(err).Str("key", key).Msg("touch failed")
	}
	return value, true, nil
}

// Put inserts or replaces key and then trims the table to the rowLimit most
// recently accessed rows. rowLimit <= 0 skips the trim. Both steps commit
// together.
func (s *Store) Put(ctx context.Context, key string, value []byte, rowLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &IOError{Op: "put", Key: key, Err: ErrClosed}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &IOError{Op: "put", Key: key, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, replaceRow, s.now().Unix(), key, nullable(value)); err != nil {
		return &IOError{Op: "put", Key: key, Err: err}
	}

	var evicted int64
	if rowLimit > 0 {
		res, err := tx.ExecContext(ctx, evictRows, rowLimit)
		if err != nil {
			return &IOError{Op: "evict", Key: key, Err: err}
		}
		evicted, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return &IOError{Op: "put", Key: key, Err: err}
	}
	if evicted > 0 {
		s.log.Debug().Int64("evicted", evicted).Int("row_limit", rowLimit).Msg("evicted rows")
	}
	return nil
}

// nullable binds a nil slice as SQL NULL.
func nullable(value []byte) any {
	if value == nil {
		return nil
	}
	return value
}

// Prune runs the eviction scan on its own and reports how many rows went.
func (s *Store) Prune(ctx context.Context, rowLimit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &IOError{Op: "prune", Err: ErrClosed}
	}
	if rowLimit < 0 {
		rowLimit = 0
	}
	res, err := s.db.ExecContext(ctx, evictRows, rowLimit)
	if err != nil {
		return 0, &IOError{Op: "prune", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Len returns the number of rows.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &IOError{Op: "len", Err: ErrClosed}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, &IOError{Op: "len", Err: err}
	}
	return n, nil
}

// Keys returns every key, most recently accessed first.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &IOError{Op: "keys", Err: ErrClosed}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, &IOError{Op: "keys", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &IOError{Op: "keys", Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "keys", Err: err}
	}
	return keys, nil
}

// Stats reports row count, payload size and the timestamp range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Stats{}, &IOError{Op: "stats", Err: ErrClosed}
	}
	var st Stats
	var oldest, newest int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0),
COALESCE(MIN(timestamp), 0), COALESCE(MAX(timestamp), 0) FROM cache`).Scan(&st.Rows, &st.Bytes, &oldest, &newest)
	if err != nil {
		return Stats{}, &IOError{Op: "stats", Err: err}
	}
	if st.Rows > 0 {
		st.Oldest = time.Unix(oldest, 0)
		st.Newest = time.Unix(newest, 0)
	}
	return st, nil
}

// Optimize lets SQLite refresh its planner statistics and folds the WAL
// back into the main file.
func (s *Store) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &IOError{Op: "optimize", Err: ErrClosed}
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return &IOError{Op: "optimize", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &IOError{Op: "checkpoint", Err: err}
	}
	return nil
}

// Close closes the underlying connection. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Package sqlite provides a SQLite-backed Store that survives restarts.
// Expiry is a column on each row; expired rows are invisible to readers
// and removed opportunistically.
package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/emberlink/go-identity-broker/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS broker_store (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS broker_store_expires_at ON broker_store (expires_at);
`

// Store persists broker state in a single SQLite table.
type Store struct {
	sqlDB   *sql.DB
	nowTime func() time.Time
}

// StoreOption modifies a Store instance.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens the SQLite store and creates the schema if needed.
func Open(path string, options ...StoreOption) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[sqlite.Open] storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] open db")
	}
	// Single-writer discipline: SQLite serializes writers anyway, one
	// connection avoids SQLITE_BUSY churn under concurrent callers.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "[sqlite.Open] ping db")
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "[sqlite.Open] create schema")
	}

	s := &Store{sqlDB: sqlDB, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := toMillis(s.nowTime().Add(ttl))
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO broker_store (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return errors.Wrap(err, "[sqlite.Put] upsert")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	now := toMillis(s.nowTime())

	var value []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM broker_store WHERE key = ? AND expires_at > ?`,
		key, now).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		s.sweep(ctx, now)
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Get] select")
	}
	return value, nil
}

func (s *Store) Take(ctx context.Context, key string) ([]byte, error) {
	now := toMillis(s.nowTime())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Take] begin")
	}
	defer func() { _ = tx.Rollback() }()

	var value []byte
	var expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM broker_store WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Take] select")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM broker_store WHERE key = ?`, key); err != nil {
		return nil, errors.Wrap(err, "[sqlite.Take] delete")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "[sqlite.Take] commit")
	}

	if expiresAt <= now {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.nowTime()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "[sqlite.Increment] begin")
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	var expiresAt int64
	count := int64(0)
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM broker_store WHERE key = ?`, key).Scan(&raw, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows) || (err == nil && expiresAt <= toMillis(now)):
		expiresAt = toMillis(now.Add(ttl))
	case err != nil:
		return 0, errors.Wrap(err, "[sqlite.Increment] select")
	default:
		count, _ = strconv.ParseInt(string(raw), 10, 64)
	}

	count++
	_, err = tx.ExecContext(ctx,
		`INSERT INTO broker_store (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, []byte(strconv.FormatInt(count, 10)), expiresAt)
	if err != nil {
		return 0, errors.Wrap(err, "[sqlite.Increment] upsert")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "[sqlite.Increment] commit")
	}
	return count, nil
}

// sweep removes expired rows. Called opportunistically on read misses so
// the table does not grow unbounded between restarts.
func (s *Store) sweep(ctx context.Context, now int64) {
	_, _ = s.sqlDB.ExecContext(ctx, `DELETE FROM broker_store WHERE expires_at <= ?`, now)
}

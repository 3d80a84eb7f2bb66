// Package store persists newsletters, dedupe state, and run history in
// a relational database. SQLite is the embedded default; setting a
// DATABASE_URL switches the same schema to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownSetting is returned when a settings write carries a key
	// the engine does not understand.
	ErrUnknownSetting = errors.New("store: unknown setting key")
)

// Store wraps the SQL handle behind typed operations. Queries are
// written with ? placeholders and rebound to $N for PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
}

// New wraps an existing database handle. Open is the usual entry point;
// New exists for tests and callers that manage the handle themselves.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Open connects to the configured database, applies the schema, and
// returns a ready store.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver()
	dsn := cfg.DSN()
	if driver == "sqlite3" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = "file:" + dsn + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1&_loc=UTC"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		// Single writer keeps SQLITE_BUSY out of concurrent runs.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, driver)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// rebind rewrites ? placeholders to $1..$N for the postgres driver.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *Store) queryRow(ctx context.Context, q string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

const (
	writeAttempts  = 3
	writeRetryWait = 100 * time.Millisecond
)

// exec runs a write, retrying transient failures (lock contention,
// serialization) up to three times with a short pause.
func (s *Store) exec(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	bound := s.rebind(q)
	var res sql.Result
	var err error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(writeRetryWait):
			}
		}
		res, err = s.db.ExecContext(ctx, bound, args...)
		if err == nil || !isTransient(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// isTransient reports whether a write failure is worth retrying.
func isTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		// serialization_failure and deadlock_detected
		return pe.Code == "40001" || pe.Code == "40P01"
	}
	return false
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Package sqlite is the shared, multi-process feature store. Every worker
// process opens its own connection to the same database file. Status
// transitions are single guarded UPDATE statements; dependency edits and bulk
// creates run inside BEGIN IMMEDIATE transactions so the snapshot they validate
// against cannot change before they write. busy_timeout makes contenders wait
// for the write lock instead of failing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/store"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// DefaultBusyTimeout is how long a connection waits for the write lock.
const DefaultBusyTimeout = 5 * time.Second

// FileName is the database file created inside a project data directory.
const FileName = "features.db"

// Options configures Open.
type Options struct {
	// Path is the database file. Its directory is created if missing.
	Path            string
	BusyTimeout     time.Duration
	MaxDependencies int
	Logger          logpkg.Logger
}

// Store implements store.Store on SQLite.
type Store struct {
	db      *sql.DB
	path    string
	opts    store.Options
	timeout time.Duration
	logger  logpkg.Logger
}

var _ store.Store = (*Store)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS features (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		priority    INTEGER NOT NULL DEFAULT 0,
		category    TEXT    NOT NULL,
		name        TEXT    NOT NULL,
		description TEXT    NOT NULL,
		steps       TEXT    NOT NULL DEFAULT '[]',
		passes      INTEGER NOT NULL DEFAULT 0,
		in_progress INTEGER NOT NULL DEFAULT 0,
		CHECK (NOT (passes = 1 AND in_progress = 1))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_features_priority ON features (priority, id)`,
	`CREATE TABLE IF NOT EXISTS feature_dependencies (
		feature_id    INTEGER NOT NULL REFERENCES features (id) ON DELETE CASCADE,
		depends_on_id INTEGER NOT NULL REFERENCES features (id) ON DELETE CASCADE,
		PRIMARY KEY (feature_id, depends_on_id),
		CHECK (feature_id <> depends_on_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feature_dependencies_target ON feature_dependencies (depends_on_id)`,
}

// DSN builds the connection string: WAL journal, foreign keys on, a busy
// timeout, and immediate transactions so BeginTx takes the write lock up front.
func DSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at opts.Path and applies the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: Options.Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	db, err := sql.Open("sqlite", DSN(opts.Path, timeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	s := &Store{
		db:      db,
		path:    opts.Path,
		opts:    store.Options{MaxDependencies: opts.MaxDependencies},
		timeout: timeout,
		logger:  logger.With(logpkg.Component("store.sqlite")),
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("opened", logpkg.Str("path", opts.Path))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	return s.withTx(ctx, "migrate", func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: apply schema: %w", err)
			}
		}
		return nil
	})
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Reopen opens an independent handle (its own connection pool) on the same file.
func (s *Store) Reopen(ctx context.Context) (*Store, error) {
	return Open(ctx, Options{
		Path:            s.path,
		BusyTimeout:     s.timeout,
		MaxDependencies: s.opts.MaxDependencies,
		Logger:          s.logger,
	})
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside an immediate transaction. Errors from fn roll back
// and are returned unchanged when they already carry a feature category.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return feature.StoreFailure(op, fmt.Errorf("begin: %w", err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return feature.StoreFailure(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify leaves domain errors alone and marks everything else a store failure.
func classify(op string, err error) error {
	for _, sentinel := range []error{
		feature.ErrNotFound, feature.ErrInvalidRequest, feature.ErrLimitExceeded,
		feature.ErrConflict, feature.ErrStoreFailure,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return feature.StoreFailure(op, err)
}

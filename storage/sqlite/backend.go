package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/notebase/storage"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const driverName = "sqlite"

// connectionParams are applied to every pooled connection. busy_timeout goes
// first so the other pragmas already wait on a locked file. Transactions take
// the write lock at BEGIN, since a deferred one cannot upgrade while another
// writer holds it.
const connectionParams = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"

// Backend wraps a SQLite database handle and provides low-level operations.
type Backend struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option configures a Backend.
type Option func(*backendOptions)

type backendOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger used by the backend and every store built on it.
func WithLogger(logger *slog.Logger) Option {
	return func(o *backendOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// OpenBackend opens the SQLite database file at path, creating its directory if needed.
func OpenBackend(path string, opts ...Option) (*Backend, error) {
	o := backendOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driverName, "file:"+path+"?"+connectionParams)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	logger := o.logger.With("component", "sqlite")
	logger.Debug("opened database", "path", path)
	return &Backend{
		db:     db,
		path:   path,
		logger: logger,
	}, nil
}

// Close closes the database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

// DB exposes the underlying handle.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// Path returns the database file path.
func (b *Backend) Path() string {
	return b.path
}

// WithTx executes fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (b *Backend) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

// mapError translates driver errors into storage sentinels.
// Constraint failures keep the engine's own message.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %s", storage.ErrConstraintViolation, se.Error())
	}
	return err
}

package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/notebase/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
	sql     string
}

// Migrator applies the embedded schema migrations in version order.
// Each migration runs in its own transaction together with its bookkeeping row.
type Migrator struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.Migrator = (*Migrator)(nil)

// NewMigrator creates a Migrator for backend.
func NewMigrator(backend *Backend) *Migrator {
	return &Migrator{
		backend: backend,
		logger:  backend.logger.With("component", "migrate"),
	}
}

// loadMigrations reads and orders the embedded migration files.
// File names must start with a positive version number followed by "_".
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("%w: bad migration file name %q", storage.ErrMigrationFailed, e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("%w: bad migration version in %q", storage.ErrMigrationFailed, e.Name())
		}
		body, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: e.Name(), sql: string(body)})
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

func (m *Migrator) ensureBookkeeping(ctx context.Context) error {
	_, err := m.backend.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	return err
}

// AppliedVersions lists the versions recorded in _migrations, ascending.
func (m *Migrator) AppliedVersions(ctx context.Context) ([]int, error) {
	if err := m.ensureBookkeeping(ctx); err != nil {
		return nil, err
	}
	rows, err := m.backend.db.QueryContext(ctx, `SELECT version FROM _migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CurrentVersion returns the highest applied version, 0 for a fresh database.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	versions, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1], nil
}

// ApplyPending applies every migration not yet recorded, stopping at the first failure.
func (m *Migrator) ApplyPending(ctx context.Context) ([]int, error) {
	all, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	done, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrMigrationFailed, err)
	}

	var applied []int
	for _, mig := range all {
		if slices.Contains(done, mig.version) {
			continue
		}
		err := m.backend.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO _migrations (version, applied_at) VALUES (?, ?)`,
				mig.version, formatTime(time.Now()))
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("%w: %s: %w", storage.ErrMigrationFailed, mig.name, err)
		}
		m.logger.Info("applied migration", "version", mig.version, "name", mig.name)
		applied = append(applied, mig.version)
	}
	return applied, nil
}

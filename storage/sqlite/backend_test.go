package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "notebase.db")
	backend, err := OpenBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	assert.Equal(t, path, backend.Path())
	assert.FileExists(t, path)
}

func TestOpenBackend_EmptyPath(t *testing.T) {
	_, err := OpenBackend("")
	assert.Error(t, err)
}

func TestOpenBackend_Pragmas(t *testing.T) {
	backend, err := OpenBackend(filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	defer backend.Close()

	var fk int
	require.NoError(t, backend.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, backend.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, backend.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpenBackend_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	stores, err := OpenStores(context.Background(), t.TempDir(), WithLogger(logger))
	require.NoError(t, err)
	defer stores.Backend.Close()

	_, err = stores.Repo.Create(context.Background(), core.TableNotebook, core.Record{"name": "logged"})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "component=sqlite")
	assert.Contains(t, out, "applied migration")
	assert.Contains(t, out, "created record")
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()

	err := s.Backend.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO notebook (name, created, updated) VALUES ('x', '', '')`); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, s.Backend.DB().QueryRow(`SELECT COUNT(*) FROM notebook`).Scan(&n))
	assert.Zero(t, n)
}

func TestMapError_Constraints(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()

	// The polymorphic reference table rejects rows with no target.
	_, err := s.Backend.DB().ExecContext(ctx,
		`INSERT INTO chat_session (title, created, updated) VALUES ('c', '', '')`)
	require.NoError(t, err)
	_, err = s.Backend.DB().ExecContext(ctx,
		`INSERT INTO chat_session_reference (chat_session_id, created) VALUES (1, '')`)
	assert.ErrorIs(t, mapError(err), storage.ErrConstraintViolation)

	// Foreign keys are enforced.
	_, err = s.Backend.DB().ExecContext(ctx,
		`INSERT INTO source_notebook (source_id, notebook_id, created) VALUES (41, 42, '')`)
	assert.ErrorIs(t, mapError(err), storage.ErrConstraintViolation)

	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(sql.ErrNoRows), storage.ErrNotFound)
}

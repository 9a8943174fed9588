package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Ordered(t *testing.T) {
	migs, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.version, m.name)
		assert.NotEmpty(t, m.sql)
	}
}

func TestApplyPending_Idempotent(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer backend.Close()

	m := NewMigrator(backend)
	v, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	applied, err := m.ApplyPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, applied)

	applied, err = m.ApplyPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	v, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	versions, err := m.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)
}

func TestApplyPending_CreatesSchema(t *testing.T) {
	s := openTestStores(t)
	for _, table := range []string{"notebook", "source", "source_embedding", "source_fts", "note_fts", "command_queue", "chat_session_reference"} {
		var n int
		err := s.Backend.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

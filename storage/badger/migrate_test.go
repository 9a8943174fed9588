package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notebase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPending(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
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
}

func TestRebuildTextIndex(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	_, err = s.Repo.Create(ctx, core.TableNote, core.Record{"title": "heron", "content": "grey heron"})
	require.NoError(t, err)

	// Wipe the derived keys, then rebuild them from the records.
	err = s.Backend.WithTx(func(tx *badger.Txn) error {
		if err := dropPrefix(tx, s.Backend.keys.prefix(termPrefix, core.TableNote)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	hits, err := s.Index.TextSearch(ctx, "heron", 10, allScope)
	require.NoError(t, err)
	assert.Empty(t, hits)

	m := NewMigrator(s.Backend)
	err = s.Backend.WithTx(func(tx *badger.Txn) error {
		if err := m.rebuildTextIndex(tx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	hits, err = s.Index.TextSearch(ctx, "heron", 10, allScope)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	var st textStats
	err = s.Backend.WithTx(func(tx *badger.Txn) error {
		st, err = loadTextStats(tx, s.Backend.keys, core.TableNote)
		return err
	}, false)
	require.NoError(t, err)
	assert.Equal(t, textStats{Docs: 1, Tokens: 3}, st)
}

func TestRebuildJobQueue(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStores()
	require.NoError(t, err)
	defer s.Backend.Close()

	jobID, err := s.Jobs.Submit(ctx, "ns", "cmd", nil)
	require.NoError(t, err)

	m := NewMigrator(s.Backend)
	err = s.Backend.WithTx(func(tx *badger.Txn) error {
		if err := dropPrefix(tx, s.Backend.keys.prefix(jobQueuePrefix)); err != nil {
			return err
		}
		if err := m.rebuildJobQueue(tx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	job, err := s.Jobs.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.JobID)
}

package sqlite

import (
	"context"
	"testing"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceChildren_ConstraintFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	stores, err := OpenStores(ctx, t.TempDir())
	require.NoError(t, err)
	defer stores.Backend.Close()
	repo := stores.Repo

	src, err := repo.Create(ctx, core.TableSource, core.Record{"title": "S"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, core.TableSourceEmbedding, core.Record{"source": src.ID(), "chunk_order": 0, "content": "old"})
	require.NoError(t, err)

	// The second insert collides on (source_id, chunk_order) after the delete has run.
	err = repo.ReplaceChildren(ctx, core.TableSourceEmbedding, src.ID(), []core.Record{
		{"chunk_order": 0, "content": "new"},
		{"chunk_order": 0, "content": "dup"},
	})
	require.ErrorIs(t, err, storage.ErrConstraintViolation)

	chunks, err := repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{Filters: map[string]any{"source": src.ID()}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "old", chunks[0].String("content"))
}

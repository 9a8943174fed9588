package reembed

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/poiesic/notebase/ai/mock"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viterin/vek/vek32"
)

func TestIntegration_DirectReembed(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	notes := seed(t, repo, core.TableNote, 5)
	sources := seed(t, repo, core.TableSource, 2)
	insights := seed(t, repo, core.TableSourceInsight, 2)

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	direct, err := executor.NewDirect(repo, embedder, executor.WithChunkReuse(false))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.RetryDelay = time.Millisecond

	summary, err := NewReembedder(repo, direct, cfg, io.Discard).Run(ctx)
	require.NoError(t, err)
	// Each seeded insight brings a text-less parent source, which is skipped.
	assert.Equal(t, BatchResult{Embedded: 9, Skipped: 2}, summary.Total())

	assertUnit := func(vec []float32) {
		t.Helper()
		require.Len(t, vec, 16)
		assert.InDelta(t, 1.0, vek32.Norm(vec), 1e-4)
	}
	for _, id := range notes {
		rec, err := repo.Get(ctx, core.TableNote, id)
		require.NoError(t, err)
		assertUnit(rec.Embedding(core.FieldEmbedding))
	}
	for _, id := range insights {
		rec, err := repo.Get(ctx, core.TableSourceInsight, id)
		require.NoError(t, err)
		assertUnit(rec.Embedding(core.FieldEmbedding))
	}
	for _, id := range sources {
		chunks, err := repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{
			Filters: map[string]any{"source": id},
		})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assertUnit(chunks[0].Embedding(core.FieldEmbedding))
	}

	// A second run replaces chunks instead of adding to them.
	calls := embedder.CallCount()
	_, err = NewReembedder(repo, direct, cfg, io.Discard).Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, embedder.CallCount(), calls)

	chunks, err := repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, chunks, len(sources))
}

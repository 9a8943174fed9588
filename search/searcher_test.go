package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/notebase/ai/mock"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	textHits   []core.TextHit
	candidates []storage.EmbeddingCandidate
	err        error
	lastScope  storage.Scope
}

func (f *fakeIndex) TextSearch(_ context.Context, _ string, _ int, scope storage.Scope) ([]core.TextHit, error) {
	f.lastScope = scope
	return f.textHits, f.err
}

func (f *fakeIndex) ScanEmbeddings(ctx context.Context, scope storage.Scope, fn func(storage.EmbeddingCandidate) error) error {
	f.lastScope = scope
	if f.err != nil {
		return f.err
	}
	for _, c := range f.candidates {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

type captureMonitor struct {
	mode     string
	scanned  int
	text     []core.TextHit
	vector   []core.VectorHit
	finished bool
}

func (c *captureMonitor) Start(mode, _ string) { c.mode = mode }
func (c *captureMonitor) AfterScan(n int)      { c.scanned = n }
func (c *captureMonitor) FinishText(hits []core.TextHit) {
	c.text = hits
	c.finished = true
}
func (c *captureMonitor) FinishVector(hits []core.VectorHit) {
	c.vector = hits
	c.finished = true
}

var both = storage.Scope{Sources: true, Notes: true}

func newTestSearcher(t *testing.T, index storage.SearchIndex, opts ...Option) *Searcher {
	t.Helper()
	s, err := NewSearcher(index, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func TestNewSearcher(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{})
		assert.NotNil(t, s)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{}, WithLogger(nil))
		assert.NotNil(t, s.logger)
	})

	t.Run("with custom options", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{}, WithLogger(slog.Default()), WithPoolSize(2), WithBatchSize(3))
		assert.Equal(t, 3, s.batchSize)
		assert.Equal(t, 2, s.pool.Cap())
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewSearcher(nil)
		assert.ErrorIs(t, err, ErrIndexRequired)
	})

	t.Run("invalid batch size", func(t *testing.T) {
		_, err := NewSearcher(&fakeIndex{}, WithBatchSize(0))
		assert.Error(t, err)
	})
}

func TestTextSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("sorts, dedupes and truncates", func(t *testing.T) {
		index := &fakeIndex{textHits: []core.TextHit{
			{ItemID: "source:1", Relevance: 1.5, Kind: core.KindSource},
			{ItemID: "note:1", Relevance: 3.0, Kind: core.KindNote},
			{ItemID: "source:1", Relevance: 4.0, Kind: core.KindSourceChunk},
			{ItemID: "note:2", Relevance: 0.5, Kind: core.KindNote},
		}}
		s := newTestSearcher(t, index)

		hits, err := s.TextSearch(ctx, "query", 2, both)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "source:1", hits[0].ItemID)
		assert.Equal(t, core.KindSourceChunk, hits[0].Kind)
		assert.Equal(t, 4.0, hits[0].Relevance)
		assert.Equal(t, "note:1", hits[1].ItemID)
		assert.Equal(t, both, index.lastScope)
	})

	t.Run("zero limit returns nothing", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{textHits: []core.TextHit{{ItemID: "note:1"}}})
		hits, err := s.TextSearch(ctx, "query", 0, both)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("index error", func(t *testing.T) {
		boom := errors.New("boom")
		s := newTestSearcher(t, &fakeIndex{err: boom})
		_, err := s.TextSearch(ctx, "query", 5, both)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("monitor sees every stage", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{textHits: []core.TextHit{{ItemID: "note:1"}, {ItemID: "note:1"}}})
		m := &captureMonitor{}
		hits, err := s.TextSearchWithMonitor(ctx, "query", 5, both, m)
		require.NoError(t, err)
		assert.Equal(t, "text", m.mode)
		assert.Equal(t, 2, m.scanned)
		assert.True(t, m.finished)
		assert.Equal(t, hits, m.text)
	})
}

func candidate(id, parent string, v ...float32) storage.EmbeddingCandidate {
	return storage.EmbeddingCandidate{ID: id, ParentID: parent, Kind: core.KindSourceEmbedding, Vector: v}
}

func TestVectorSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("ranks by cosine similarity", func(t *testing.T) {
		index := &fakeIndex{candidates: []storage.EmbeddingCandidate{
			candidate("source_embedding:1", "source:a", 0, 1),
			candidate("source_embedding:2", "source:b", 1, 0),
			candidate("source_embedding:3", "source:c", 1, 1),
		}}
		s := newTestSearcher(t, index, WithBatchSize(1))

		hits, err := s.VectorSearch(ctx, []float32{1, 0}, 10, both, 0)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "source:b", hits[0].ParentID)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
		assert.Equal(t, "source:c", hits[1].ParentID)
		assert.InDelta(t, 0.7071, hits[1].Similarity, 1e-3)
		assert.Equal(t, "source:a", hits[2].ParentID)
		assert.InDelta(t, 0.0, hits[2].Similarity, 1e-5)
	})

	t.Run("keeps best hit per parent", func(t *testing.T) {
		index := &fakeIndex{candidates: []storage.EmbeddingCandidate{
			candidate("source_embedding:1", "source:a", 1, 1),
			candidate("source_embedding:2", "source:a", 1, 0),
			candidate("note:1", "note:1", 0, 1),
		}}
		s := newTestSearcher(t, index, WithBatchSize(2))

		hits, err := s.VectorSearch(ctx, []float32{1, 0}, 10, both, 0)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "source_embedding:2", hits[0].ID)
		assert.Equal(t, "note:1", hits[1].ID)
	})

	t.Run("min similarity", func(t *testing.T) {
		index := &fakeIndex{candidates: []storage.EmbeddingCandidate{
			candidate("note:1", "note:1", 1, 0),
			candidate("note:2", "note:2", 1, 1),
			candidate("note:3", "note:3", 0, 1),
		}}
		s := newTestSearcher(t, index)

		tests := []struct {
			name          string
			minSimilarity float32
			want          []string
		}{
			{"negative keeps everything", -1, []string{"note:1", "note:2", "note:3"}},
			{"zero keeps orthogonal hits", 0, []string{"note:1", "note:2", "note:3"}},
			{"drops hits below threshold", 0.5, []string{"note:1", "note:2"}},
			{"exact match meets one", 1, []string{"note:1"}},
			{"above one returns nothing", 1.1, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				hits, err := s.VectorSearch(ctx, []float32{1, 0}, 10, both, tt.minSimilarity)
				require.NoError(t, err)
				var got []string
				for _, h := range hits {
					got = append(got, h.ID)
				}
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("zero vector scores zero", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{candidates: []storage.EmbeddingCandidate{candidate("note:1", "note:1", 0, 0)}})
		hits, err := s.VectorSearch(ctx, []float32{1, 0}, 10, both, 0)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Zero(t, hits[0].Similarity)
	})

	t.Run("truncates to limit", func(t *testing.T) {
		var cands []storage.EmbeddingCandidate
		for _, id := range []string{"note:1", "note:2", "note:3", "note:4"} {
			cands = append(cands, candidate(id, id, 1, 0))
		}
		s := newTestSearcher(t, &fakeIndex{candidates: cands}, WithBatchSize(3))
		hits, err := s.VectorSearch(ctx, []float32{1, 0}, 2, both, 0)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("empty query", func(t *testing.T) {
		s := newTestSearcher(t, &fakeIndex{})
		_, err := s.VectorSearch(ctx, nil, 10, both, 0)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		index := &fakeIndex{candidates: []storage.EmbeddingCandidate{
			candidate("note:1", "note:1", 1, 0),
			candidate("note:2", "note:2", 1, 0, 0),
		}}
		s := newTestSearcher(t, index)
		_, err := s.VectorSearch(ctx, []float32{1, 0}, 10, both, 0)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		s := newTestSearcher(t, &fakeIndex{candidates: []storage.EmbeddingCandidate{candidate("note:1", "note:1", 1, 0)}})
		_, err := s.VectorSearch(cctx, []float32{1, 0}, 10, both, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("monitor counts scanned candidates", func(t *testing.T) {
		index := &fakeIndex{candidates: []storage.EmbeddingCandidate{
			candidate("note:1", "note:1", 1, 0),
			candidate("note:2", "note:2", 0, 1),
		}}
		s := newTestSearcher(t, index)
		m := &captureMonitor{}
		hits, err := s.VectorSearchWithMonitor(ctx, []float32{1, 0}, 10, both, 0.5, m)
		require.NoError(t, err)
		assert.Equal(t, "vector", m.mode)
		assert.Equal(t, 2, m.scanned)
		assert.Equal(t, hits, m.vector)
	})
}

func TestSearchText(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 8

	vec, err := embedder.EmbedText(ctx, "match me")
	require.NoError(t, err)
	other, err := embedder.EmbedText(ctx, "something unrelated")
	require.NoError(t, err)

	index := &fakeIndex{candidates: []storage.EmbeddingCandidate{
		{ID: "note:1", ParentID: "note:1", Kind: core.KindNote, Vector: vec},
		{ID: "note:2", ParentID: "note:2", Kind: core.KindNote, Vector: other},
	}}

	t.Run("embeds then searches", func(t *testing.T) {
		s := newTestSearcher(t, index, WithEmbedder(embedder))
		hits, err := s.SearchText(ctx, "match me", 1, both, 0)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "note:1", hits[0].ID)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
	})

	t.Run("embedder error", func(t *testing.T) {
		failing := mock.NewMockEmbedder()
		failing.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("provider down")
		}
		s := newTestSearcher(t, index, WithEmbedder(failing))
		_, err := s.SearchText(ctx, "match me", 1, both, 0)
		assert.EqualError(t, err, "provider down")
	})

	t.Run("no embedder", func(t *testing.T) {
		s := newTestSearcher(t, index)
		_, err := s.SearchText(ctx, "match me", 1, both, 0)
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})
}

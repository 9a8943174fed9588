package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/notebase/ai"
	"github.com/poiesic/notebase/ai/mock"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/queue"
	"github.com/poiesic/notebase/storage"
	"github.com/poiesic/notebase/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viterin/vek/vek32"
)

const testDim = 8

// Paragraphs short enough that no two fit in one 40 character chunk.
var paragraphs = []string{
	"Badgers dig extensive burrow systems.",
	"Their setts are used for generations.",
	"Honey badgers are not true badgers.",
}

func newStores(t *testing.T) *badger.Stores {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Backend.Close() })
	return stores
}

func newEmbedder() *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.Dimension = testDim
	return e
}

func newTestDirect(t *testing.T, repo storage.Repository, embedder ai.Embedder) *Direct {
	t.Helper()
	d, err := NewDirect(repo, embedder, WithChunking(40, 0), WithRateLimit(1000, 10))
	require.NoError(t, err)
	return d
}

func create(t *testing.T, repo storage.Repository, table string, data core.Record) core.Record {
	t.Helper()
	rec, err := repo.Create(context.Background(), table, data)
	require.NoError(t, err)
	return rec
}

func chunksOf(t *testing.T, repo storage.Repository, sourceID string) []core.Record {
	t.Helper()
	chunks, err := repo.List(context.Background(), core.TableSourceEmbedding, storage.ListQuery{
		Filters: map[string]any{"source": sourceID},
		OrderBy: &storage.OrderBy{Field: "chunk_order"},
	})
	require.NoError(t, err)
	return chunks
}

func TestNewDirect(t *testing.T) {
	stores := newStores(t)

	_, err := NewDirect(nil, newEmbedder())
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewDirect(stores.Repo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewDirect(stores.Repo, newEmbedder(), WithChunking(10, 10))
	assert.Error(t, err)

	d, err := NewDirect(stores.Repo, newEmbedder(), WithLogger(nil), WithRateLimit(0, 0))
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestDirectEmbedNote(t *testing.T) {
	ctx := context.Background()

	t.Run("writes a unit vector", func(t *testing.T) {
		stores := newStores(t)
		d := newTestDirect(t, stores.Repo, newEmbedder())
		note := create(t, stores.Repo, core.TableNote, core.Record{"title": "t", "content": paragraphs[0]})

		outcome, err := d.EmbedNote(ctx, note.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeDirect, outcome)

		got, err := stores.Repo.Get(ctx, core.TableNote, note.ID())
		require.NoError(t, err)
		vec := got.Embedding(core.FieldEmbedding)
		require.Len(t, vec, testDim)
		assert.InDelta(t, 1.0, vek32.Norm(vec), 1e-5)
	})

	t.Run("long content is mean pooled", func(t *testing.T) {
		stores := newStores(t)
		embedder := newEmbedder()
		var batches int
		base := newEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			batches++
			assert.Greater(t, len(texts), 1)
			return base.EmbedTexts(ctx, texts)
		}
		d := newTestDirect(t, stores.Repo, embedder)
		note := create(t, stores.Repo, core.TableNote, core.Record{"content": strings.Join(paragraphs, "\n\n")})

		outcome, err := d.EmbedNote(ctx, note.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeDirect, outcome)
		assert.Equal(t, 1, batches)

		got, err := stores.Repo.Get(ctx, core.TableNote, note.ID())
		require.NoError(t, err)
		assert.InDelta(t, 1.0, vek32.Norm(got.Embedding(core.FieldEmbedding)), 1e-5)
	})

	t.Run("blank content is skipped", func(t *testing.T) {
		stores := newStores(t)
		embedder := newEmbedder()
		d := newTestDirect(t, stores.Repo, embedder)
		note := create(t, stores.Repo, core.TableNote, core.Record{"content": "   "})

		outcome, err := d.EmbedNote(ctx, note.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Zero(t, embedder.CallCount())
	})

	t.Run("provider failure is an outcome", func(t *testing.T) {
		stores := newStores(t)
		embedder := newEmbedder()
		embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("provider down")
		}
		d := newTestDirect(t, stores.Repo, embedder)
		note := create(t, stores.Repo, core.TableNote, core.Record{"content": "hello"})

		outcome, err := d.EmbedNote(ctx, note.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, outcome)

		got, err := stores.Repo.Get(ctx, core.TableNote, note.ID())
		require.NoError(t, err)
		assert.Empty(t, got.Embedding(core.FieldEmbedding))
	})

	t.Run("missing note is an error", func(t *testing.T) {
		stores := newStores(t)
		d := newTestDirect(t, stores.Repo, newEmbedder())
		_, err := d.EmbedNote(ctx, "note:missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// brokenChunkRepo appends an unstorable chunk to every replacement.
type brokenChunkRepo struct {
	storage.Repository
}

func (r brokenChunkRepo) ReplaceChildren(ctx context.Context, table, parentID string, rows []core.Record) error {
	rows = append(rows, core.Record{"chunk_order": len(rows), "content": "x", core.FieldEmbedding: "not a vector"})
	return r.Repository.ReplaceChildren(ctx, table, parentID, rows)
}

func TestDirectEmbedSource(t *testing.T) {
	ctx := context.Background()

	t.Run("contiguous chunk order and reuse", func(t *testing.T) {
		stores := newStores(t)
		var requested []string
		base := newEmbedder()
		embedder := newEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			requested = append(requested, texts...)
			return base.EmbedTexts(ctx, texts)
		}
		d := newTestDirect(t, stores.Repo, embedder)
		source := create(t, stores.Repo, core.TableSource, core.Record{
			"title":     "Badgers",
			"full_text": strings.Join(paragraphs[:2], "\n\n"),
		})

		outcome, err := d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeDirect, outcome)

		chunks := chunksOf(t, stores.Repo, source.ID())
		require.Len(t, chunks, 2)
		for i, c := range chunks {
			assert.Equal(t, int64(i), c.Int("chunk_order"))
			assert.Equal(t, core.ContentHash(c.String("content")), c.String("content_hash"))
			assert.Len(t, c.Embedding(core.FieldEmbedding), testDim)
		}
		assert.Len(t, requested, 2)

		// Append a paragraph: only the new chunk reaches the provider.
		requested = nil
		_, err = stores.Repo.Update(ctx, core.TableSource, source.ID(), core.Record{
			"full_text": strings.Join(paragraphs, "\n\n"),
		})
		require.NoError(t, err)

		outcome, err = d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeDirect, outcome)
		assert.Equal(t, []string{paragraphs[2]}, requested)

		chunks = chunksOf(t, stores.Repo, source.ID())
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, int64(i), c.Int("chunk_order"))
			assert.Equal(t, paragraphs[i], c.String("content"))
		}
	})

	t.Run("reuse disabled embeds every chunk", func(t *testing.T) {
		stores := newStores(t)
		var requested int
		base := newEmbedder()
		embedder := newEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			requested += len(texts)
			return base.EmbedTexts(ctx, texts)
		}
		d, err := NewDirect(stores.Repo, embedder, WithChunking(40, 0), WithChunkReuse(false))
		require.NoError(t, err)
		source := create(t, stores.Repo, core.TableSource, core.Record{"full_text": strings.Join(paragraphs, "\n\n")})

		_, err = d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		_, err = d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		assert.Equal(t, 2*len(paragraphs), requested)
		assert.Len(t, chunksOf(t, stores.Repo, source.ID()), len(paragraphs))
	})

	t.Run("failure keeps existing chunks", func(t *testing.T) {
		stores := newStores(t)
		embedder := newEmbedder()
		d := newTestDirect(t, stores.Repo, embedder)
		source := create(t, stores.Repo, core.TableSource, core.Record{"full_text": paragraphs[0]})

		_, err := d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		require.Len(t, chunksOf(t, stores.Repo, source.ID()), 1)

		embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("rate limited")
		}
		_, err = stores.Repo.Update(ctx, core.TableSource, source.ID(), core.Record{"full_text": paragraphs[1]})
		require.NoError(t, err)

		outcome, err := d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, outcome)

		chunks := chunksOf(t, stores.Repo, source.ID())
		require.Len(t, chunks, 1)
		assert.Equal(t, paragraphs[0], chunks[0].String("content"))
	})

	t.Run("failed chunk write keeps existing chunks", func(t *testing.T) {
		stores := newStores(t)
		source := create(t, stores.Repo, core.TableSource, core.Record{"full_text": paragraphs[0]})
		d := newTestDirect(t, stores.Repo, newEmbedder())
		_, err := d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)

		_, err = stores.Repo.Update(ctx, core.TableSource, source.ID(), core.Record{
			"full_text": strings.Join(paragraphs, "\n\n"),
		})
		require.NoError(t, err)
		d = newTestDirect(t, brokenChunkRepo{stores.Repo}, newEmbedder())

		_, err = d.EmbedSource(ctx, source.ID())
		require.ErrorIs(t, err, core.ErrInvalidRecord)

		chunks := chunksOf(t, stores.Repo, source.ID())
		require.Len(t, chunks, 1)
		assert.Equal(t, paragraphs[0], chunks[0].String("content"))
	})

	t.Run("no text is skipped", func(t *testing.T) {
		stores := newStores(t)
		d := newTestDirect(t, stores.Repo, newEmbedder())
		source := create(t, stores.Repo, core.TableSource, core.Record{"title": "empty"})

		outcome, err := d.EmbedSource(ctx, source.ID())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
	})
}

func TestDirectEmbedInsightContent(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)
	embedder := newEmbedder()
	d := newTestDirect(t, stores.Repo, embedder)

	vec, err := d.EmbedInsightContent(ctx, "a short insight")
	require.NoError(t, err)
	assert.Len(t, vec, testDim)

	vec, err = d.EmbedInsightContent(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, vec)

	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("provider down")
	}
	vec, err = d.EmbedInsightContent(ctx, "a short insight")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestQueued(t *testing.T) {
	ctx := context.Background()
	stores := newStores(t)

	_, err := NewQueued(nil, nil)
	assert.ErrorIs(t, err, ErrJobStoreRequired)

	q, err := NewQueued(stores.Jobs, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		submit  func() (string, error)
		command string
		args    string
	}{
		{"note", func() (string, error) { return q.EmbedNote(ctx, "note:1") }, CommandEmbedNote, `{"note_id":"note:1"}`},
		{"source", func() (string, error) { return q.EmbedSource(ctx, "source:1") }, CommandEmbedSource, `{"source_id":"source:1"}`},
		{"insight", func() (string, error) { return q.EmbedInsight(ctx, "source_insight:1") }, CommandEmbedInsight, `{"insight_id":"source_insight:1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobID, err := tt.submit()
			require.NoError(t, err)

			status, err := stores.Jobs.Status(ctx, jobID)
			require.NoError(t, err)
			assert.Equal(t, core.JobPending, status.State)
			assert.Equal(t, Namespace, status.Namespace)
			assert.Equal(t, tt.command, status.CommandName)

			job, err := stores.Jobs.Claim(ctx)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.JSONEq(t, tt.args, string(job.Args))
		})
	}

	vec, err := q.EmbedInsightContent(ctx, "anything")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestRegisterCommands(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, embedder *mock.MockEmbedder, transformer ai.Transformer) (*badger.Stores, *queue.Worker, *Queued) {
		t.Helper()
		stores := newStores(t)
		d := newTestDirect(t, stores.Repo, embedder)
		q, err := NewQueued(stores.Jobs, nil)
		require.NoError(t, err)
		registry := queue.NewRegistry()
		require.NoError(t, RegisterCommands(registry, d, stores.Repo, transformer, q))
		w, err := queue.NewWorker(stores.Jobs, registry)
		require.NoError(t, err)
		return stores, w, q
	}
	runOne := func(t *testing.T, w *queue.Worker) {
		t.Helper()
		processed, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, processed)
	}

	t.Run("registers every command", func(t *testing.T) {
		stores := newStores(t)
		d := newTestDirect(t, stores.Repo, newEmbedder())
		registry := queue.NewRegistry()
		require.NoError(t, RegisterCommands(registry, d, stores.Repo, mock.NewMockTransformer(), nil))
		assert.Equal(t, []string{
			"open_notebook.embed_insight",
			"open_notebook.embed_note",
			"open_notebook.embed_source",
			"open_notebook.run_transformation",
		}, registry.Commands())

		assert.ErrorIs(t, RegisterCommands(registry, d, stores.Repo, nil, nil), queue.ErrDuplicateHandler)
	})

	t.Run("queued note embedding completes", func(t *testing.T) {
		stores, w, q := setup(t, newEmbedder(), nil)
		note := create(t, stores.Repo, core.TableNote, core.Record{"content": "queued"})

		jobID, err := q.EmbedNote(ctx, note.ID())
		require.NoError(t, err)
		runOne(t, w)

		status, err := stores.Jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobCompleted, status.State)

		var result EmbedResult
		require.NoError(t, json.Unmarshal(status.Result, &result))
		assert.Equal(t, EmbedResult{ID: note.ID(), Outcome: OutcomeDirect}, result)

		got, err := stores.Repo.Get(ctx, core.TableNote, note.ID())
		require.NoError(t, err)
		assert.Len(t, got.Embedding(core.FieldEmbedding), testDim)
	})

	t.Run("failed outcome fails the job", func(t *testing.T) {
		embedder := newEmbedder()
		embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("provider down")
		}
		stores, w, q := setup(t, embedder, nil)
		note := create(t, stores.Repo, core.TableNote, core.Record{"content": "queued"})

		jobID, err := q.EmbedNote(ctx, note.ID())
		require.NoError(t, err)
		runOne(t, w)

		status, err := stores.Jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobFailed, status.State)
		assert.Contains(t, status.ErrorMessage, ErrEmbeddingFailed.Error())
	})

	t.Run("run_transformation creates an insight", func(t *testing.T) {
		transformer := mock.NewMockTransformer()
		stores, w, _ := setup(t, newEmbedder(), transformer)

		source := create(t, stores.Repo, core.TableSource, core.Record{"title": "Badgers", "full_text": paragraphs[0]})
		tf := create(t, stores.Repo, core.TableTransformation, core.Record{
			"name": "summary", "title": "Summary", "prompt": "Summarize",
		})
		_, err := stores.Repo.SingletonUpsert(ctx, "open_notebook:default_prompts", core.Record{
			"transformation_instructions": "Be brief.",
		})
		require.NoError(t, err)

		jobID, err := stores.Jobs.Submit(ctx, Namespace, CommandRunTransformation, map[string]string{
			"source_id": source.ID(), "transformation_id": tf.ID(),
		})
		require.NoError(t, err)
		runOne(t, w)

		status, err := stores.Jobs.Status(ctx, jobID)
		require.NoError(t, err)
		require.Equal(t, core.JobCompleted, status.State, status.ErrorMessage)

		req := transformer.LastRequest()
		require.NotNil(t, req)
		assert.Equal(t, "Summarize", req.Prompt)
		assert.Equal(t, "Be brief.", req.Instructions)
		assert.Equal(t, paragraphs[0], req.Content)

		var result TransformationResult
		require.NoError(t, json.Unmarshal(status.Result, &result))
		insight, err := stores.Repo.Get(ctx, core.TableSourceInsight, result.InsightID)
		require.NoError(t, err)
		assert.Equal(t, "Summary", insight.String("insight_type"))
		assert.Equal(t, "Summarize: "+paragraphs[0], insight.String("content"))
		assert.Equal(t, source.ID(), insight.String("source"))

		// The queued executor hands the insight to its own job.
		embedStatus, err := stores.Jobs.Status(ctx, result.Embedding)
		require.NoError(t, err)
		assert.Equal(t, CommandEmbedInsight, embedStatus.CommandName)
		runOne(t, w)

		insight, err = stores.Repo.Get(ctx, core.TableSourceInsight, result.InsightID)
		require.NoError(t, err)
		assert.Len(t, insight.Embedding(core.FieldEmbedding), testDim)
	})

	t.Run("run_transformation without text fails", func(t *testing.T) {
		stores, w, _ := setup(t, newEmbedder(), mock.NewMockTransformer())
		source := create(t, stores.Repo, core.TableSource, core.Record{"title": "empty"})
		tf := create(t, stores.Repo, core.TableTransformation, core.Record{"name": "summary", "prompt": "Summarize"})

		jobID, err := stores.Jobs.Submit(ctx, Namespace, CommandRunTransformation, map[string]string{
			"source_id": source.ID(), "transformation_id": tf.ID(),
		})
		require.NoError(t, err)
		runOne(t, w)

		status, err := stores.Jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobFailed, status.State)
		assert.Contains(t, status.ErrorMessage, ErrNothingToTransform.Error())
	})
}

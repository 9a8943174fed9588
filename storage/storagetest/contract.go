package storagetest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Engine is one freshly opened store. The opener registers its own cleanup.
type Engine struct {
	Repo  storage.Repository
	Index storage.SearchIndex
	Jobs  storage.JobStore
}

// Opener returns a new, empty, migrated Engine.
type Opener func(t *testing.T) Engine

// Run executes every contract test against engines produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("Repository", func(t *testing.T) { RunRepository(t, open) })
	t.Run("Relations", func(t *testing.T) { RunRelations(t, open) })
	t.Run("Search", func(t *testing.T) { RunSearch(t, open) })
	t.Run("Jobs", func(t *testing.T) { RunJobs(t, open) })
	t.Run("Concurrency", func(t *testing.T) { RunConcurrency(t, open) })
}

func create(t *testing.T, repo storage.Repository, table string, data core.Record) core.Record {
	t.Helper()
	rec, err := repo.Create(context.Background(), table, data)
	require.NoError(t, err)
	return rec
}

func ids(recs []core.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

// RunRepository covers record CRUD, listing and singletons.
func RunRepository(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("CreateGetUpdate", func(t *testing.T) {
		repo := open(t).Repo

		nb := create(t, repo, core.TableNotebook, core.Record{"name": "N1", "description": "first"})
		rid, err := core.ParseIDFor(core.TableNotebook, nb.ID())
		require.NoError(t, err)
		assert.NotEmpty(t, rid.Key)
		assert.Equal(t, "N1", nb.String("name"))
		assert.False(t, nb[core.FieldCreated].(time.Time).IsZero())

		got, err := repo.Get(ctx, core.TableNotebook, nb.ID())
		require.NoError(t, err)
		assert.Equal(t, nb.ID(), got.ID())
		assert.Equal(t, "first", got.String("description"))

		updated, err := repo.Update(ctx, core.TableNotebook, nb.ID(), core.Record{"description": "changed"})
		require.NoError(t, err)
		assert.Equal(t, "N1", updated.String("name"))
		assert.Equal(t, "changed", updated.String("description"))
		created := updated[core.FieldCreated].(time.Time)
		assert.False(t, updated[core.FieldUpdated].(time.Time).Before(created))
	})

	t.Run("CreateIgnoresSuppliedID", func(t *testing.T) {
		repo := open(t).Repo
		nb := create(t, repo, core.TableNotebook, core.Record{"id": "notebook:77", "name": "N"})
		assert.NotEqual(t, "notebook:77", nb.ID())
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := open(t).Repo
		_, err := repo.Get(ctx, core.TableNote, "note:987654")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.Update(ctx, core.TableNote, "note:987654", core.Record{"title": "x"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("MalformedIdentifiers", func(t *testing.T) {
		repo := open(t).Repo
		for _, id := range []string{"note", "note:", ":1", "note:1:2", "source:1"} {
			_, err := repo.Get(ctx, core.TableNote, id)
			assert.ErrorIs(t, err, core.ErrMalformedIdentifier, id)
		}
		assert.ErrorIs(t, repo.Delete(ctx, "nonsense"), core.ErrMalformedIdentifier)
	})

	t.Run("UnknownTableAndField", func(t *testing.T) {
		repo := open(t).Repo
		_, err := repo.Create(ctx, "podcast", core.Record{"name": "x"})
		assert.ErrorIs(t, err, storage.ErrUnknownTable)

		_, err = repo.Create(ctx, core.TableNotebook, core.Record{"colour": "red"})
		assert.ErrorIs(t, err, core.ErrInvalidRecord)

		_, err = repo.Create(ctx, core.TableNote, core.Record{"note_type": "robot"})
		assert.ErrorIs(t, err, core.ErrInvalidNoteType)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		repo := open(t).Repo
		note := create(t, repo, core.TableNote, core.Record{"title": "gone"})

		require.NoError(t, repo.Delete(ctx, note.ID()))
		require.NoError(t, repo.Delete(ctx, note.ID()))
		_, err := repo.Get(ctx, core.TableNote, note.ID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("FieldKindsRoundTrip", func(t *testing.T) {
		repo := open(t).Repo
		vec := []float32{0.25, -1.5, float32(math.Inf(1)), float32(math.NaN())}

		src := create(t, repo, core.TableSource, core.Record{
			"title":   "S",
			"topics":  []string{"go", "storage"},
			"asset":   map[string]any{"url": "https://example.com/a"},
			"command": "command:abc",
		})
		assert.Equal(t, []any{"go", "storage"}, src["topics"])
		assert.Equal(t, map[string]any{"url": "https://example.com/a"}, src["asset"])
		assert.Equal(t, "command:abc", src.String("command"))

		chunk := create(t, repo, core.TableSourceEmbedding, core.Record{
			"source":      src.ID(),
			"chunk_order": 3,
			"content":     "chunk",
			"embedding":   vec,
		})
		assert.Equal(t, src.ID(), chunk.String("source"))
		assert.Equal(t, int64(3), chunk.Int("chunk_order"))

		got, err := repo.Get(ctx, core.TableSourceEmbedding, chunk.ID())
		require.NoError(t, err)
		stored := got.Embedding("embedding")
		require.Len(t, stored, len(vec))
		for i := range vec {
			assert.Equal(t, math.Float32bits(vec[i]), math.Float32bits(stored[i]))
		}

		nb := create(t, repo, core.TableNotebook, core.Record{"name": "A", "archived": true})
		assert.Equal(t, true, nb["archived"])
	})

	t.Run("EmptyEmbeddingRoundTrips", func(t *testing.T) {
		repo := open(t).Repo
		note := create(t, repo, core.TableNote, core.Record{"title": "t", "embedding": []float32{}})
		got, err := repo.Get(ctx, core.TableNote, note.ID())
		require.NoError(t, err)
		assert.Empty(t, got.Embedding("embedding"))
	})

	t.Run("ReferenceMustNameParentTable", func(t *testing.T) {
		repo := open(t).Repo
		_, err := repo.Create(ctx, core.TableSourceInsight, core.Record{"source": "note:1", "content": "x"})
		assert.ErrorIs(t, err, core.ErrMalformedIdentifier)
	})

	t.Run("UniqueNameIsConstraintViolation", func(t *testing.T) {
		repo := open(t).Repo
		create(t, repo, core.TableTransformation, core.Record{"name": "summary", "prompt": "p"})
		_, err := repo.Create(ctx, core.TableTransformation, core.Record{"name": "summary", "prompt": "q"})
		assert.ErrorIs(t, err, storage.ErrConstraintViolation)
	})

	t.Run("Upsert", func(t *testing.T) {
		repo := open(t).Repo
		rec, err := repo.Upsert(ctx, core.TableNote, "note:4242", core.Record{"title": "first", "content": "body"})
		require.NoError(t, err)
		assert.Equal(t, "note:4242", rec.ID())

		rec, err = repo.Upsert(ctx, core.TableNote, "note:4242", core.Record{"title": "second"})
		require.NoError(t, err)
		assert.Equal(t, "second", rec.String("title"))
		assert.Equal(t, "body", rec.String("content"))
	})

	t.Run("ListFilterOrderPage", func(t *testing.T) {
		repo := open(t).Repo
		for _, n := range []string{"charlie", "alpha", "bravo", "delta"} {
			create(t, repo, core.TableNotebook, core.Record{"name": n, "archived": n == "delta"})
		}

		active, err := repo.List(ctx, core.TableNotebook, storage.ListQuery{
			Filters: map[string]any{"archived": false},
			OrderBy: &storage.OrderBy{Field: "name"},
		})
		require.NoError(t, err)
		names := make([]string, len(active))
		for i, r := range active {
			names[i] = r.String("name")
		}
		assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names)

		page, err := repo.List(ctx, core.TableNotebook, storage.ListQuery{
			OrderBy: &storage.OrderBy{Field: "name", Descending: true},
			Limit:   2,
			Offset:  1,
		})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "charlie", page[0].String("name"))
		assert.Equal(t, "bravo", page[1].String("name"))

		none, err := repo.List(ctx, core.TableNotebook, storage.ListQuery{Filters: map[string]any{"name": "zulu"}})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ListRejectsUnknownColumns", func(t *testing.T) {
		repo := open(t).Repo
		_, err := repo.List(ctx, core.TableNotebook, storage.ListQuery{Filters: map[string]any{"colour": "red"}})
		assert.ErrorIs(t, err, storage.ErrInvalidFilter)

		_, err = repo.List(ctx, core.TableNotebook, storage.ListQuery{OrderBy: &storage.OrderBy{Field: "colour"}})
		assert.ErrorIs(t, err, storage.ErrInvalidFilter)
	})

	t.Run("ListByReference", func(t *testing.T) {
		repo := open(t).Repo
		s1 := create(t, repo, core.TableSource, core.Record{"title": "one"})
		s2 := create(t, repo, core.TableSource, core.Record{"title": "two"})
		for i := range 3 {
			create(t, repo, core.TableSourceEmbedding, core.Record{"source": s1.ID(), "chunk_order": i, "content": "c"})
		}
		create(t, repo, core.TableSourceEmbedding, core.Record{"source": s2.ID(), "chunk_order": 0, "content": "c"})

		chunks, err := repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{
			Filters: map[string]any{"source": s1.ID()},
			OrderBy: &storage.OrderBy{Field: "chunk_order"},
		})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, int64(i), c.Int("chunk_order"))
		}
	})

	t.Run("CascadeDeletesOwnedRecords", func(t *testing.T) {
		repo := open(t).Repo
		src := create(t, repo, core.TableSource, core.Record{"title": "S"})
		chunk := create(t, repo, core.TableSourceEmbedding, core.Record{"source": src.ID(), "chunk_order": 0, "content": "c"})
		insight := create(t, repo, core.TableSourceInsight, core.Record{"source": src.ID(), "insight_type": "summary", "content": "i"})
		nb := create(t, repo, core.TableNotebook, core.Record{"name": "N"})
		require.NoError(t, repo.AddRelation(ctx, src.ID(), core.RelationReference, nb.ID()))

		require.NoError(t, repo.Delete(ctx, src.ID()))

		_, err := repo.Get(ctx, core.TableSourceEmbedding, chunk.ID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.Get(ctx, core.TableSourceInsight, insight.ID())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		related, err := repo.GetRelated(ctx, core.TableNotebook, nb.ID(), core.RelationReference, core.TableSource)
		require.NoError(t, err)
		assert.Empty(t, related)
	})

	t.Run("ReplaceChildren", func(t *testing.T) {
		e := open(t)
		repo := e.Repo
		src := create(t, repo, core.TableSource, core.Record{"title": "S"})
		other := create(t, repo, core.TableSource, core.Record{"title": "O"})
		create(t, repo, core.TableSourceEmbedding, core.Record{"source": src.ID(), "chunk_order": 0, "content": "walrus"})
		create(t, repo, core.TableSourceEmbedding, core.Record{"source": src.ID(), "chunk_order": 1, "content": "tusks"})
		kept := create(t, repo, core.TableSourceEmbedding, core.Record{"source": other.ID(), "chunk_order": 0, "content": "seal"})
		insight := create(t, repo, core.TableSourceInsight, core.Record{"source": src.ID(), "insight_type": "summary", "content": "i"})

		err := repo.ReplaceChildren(ctx, core.TableSourceEmbedding, src.ID(), []core.Record{
			{"chunk_order": 0, "content": "narwhal", core.FieldEmbedding: []float32{1, 0}},
		})
		require.NoError(t, err)

		chunks, err := repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{Filters: map[string]any{"source": src.ID()}})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "narwhal", chunks[0].String("content"))
		assert.Equal(t, src.ID(), chunks[0].String("source"))
		assert.Equal(t, []float32{1, 0}, chunks[0].Embedding(core.FieldEmbedding))

		_, err = repo.Get(ctx, core.TableSourceEmbedding, kept.ID())
		assert.NoError(t, err)
		_, err = repo.Get(ctx, core.TableSourceInsight, insight.ID())
		assert.NoError(t, err)

		hits, err := e.Index.TextSearch(ctx, "walrus", 10, storage.Scope{Sources: true})
		require.NoError(t, err)
		assert.Empty(t, hits)

		assert.Error(t, repo.ReplaceChildren(ctx, core.TableNote, src.ID(), nil))
		assert.ErrorIs(t, repo.ReplaceChildren(ctx, core.TableSourceEmbedding, "note:1", nil), core.ErrMalformedIdentifier)
	})

	t.Run("ReplaceChildrenIsAtomic", func(t *testing.T) {
		repo := open(t).Repo
		src := create(t, repo, core.TableSource, core.Record{"title": "S"})
		create(t, repo, core.TableSourceEmbedding, core.Record{"source": src.ID(), "chunk_order": 0, "content": "old"})

		err := repo.ReplaceChildren(ctx, core.TableSourceEmbedding, src.ID(), []core.Record{
			{"chunk_order": 0, "content": "new"},
			{"chunk_order": 1, "content": "broken", core.FieldEmbedding: "not a vector"},
		})
		require.ErrorIs(t, err, core.ErrInvalidRecord)

		chunks, err := repo.List(ctx, core.TableSourceEmbedding, storage.ListQuery{Filters: map[string]any{"source": src.ID()}})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "old", chunks[0].String("content"))
	})

	t.Run("Singletons", func(t *testing.T) {
		repo := open(t).Repo
		const id = "open_notebook:default_models"

		_, err := repo.SingletonGet(ctx, id)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		rec, err := repo.SingletonUpsert(ctx, id, core.Record{"default_chat_model": "model:a", "default_tts_model": "model:t"})
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID())

		rec, err = repo.SingletonUpsert(ctx, id, core.Record{"default_chat_model": "model:b"})
		require.NoError(t, err)
		assert.Equal(t, "model:b", rec.String("default_chat_model"))
		assert.Equal(t, "model:t", rec.String("default_tts_model"))

		got, err := repo.SingletonGet(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID())
		assert.Equal(t, "model:b", got.String("default_chat_model"))

		settings, err := repo.SingletonUpsert(ctx, "open_notebook:content_settings", core.Record{
			"youtube_preferred_languages": []string{"en", "pt"},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"en", "pt"}, settings["youtube_preferred_languages"])

		_, err = repo.SingletonGet(ctx, "open_notebook:notebook")
		assert.ErrorIs(t, err, storage.ErrUnknownTable)
	})
}

// RunRelations covers relationship emulation and count-annotated listing.
func RunRelations(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("AddGetRemove", func(t *testing.T) {
		repo := open(t).Repo
		n1 := create(t, repo, core.TableNotebook, core.Record{"name": "N1"})
		s1 := create(t, repo, core.TableSource, core.Record{"title": "S1", "full_text": "The quick brown fox"})

		require.NoError(t, repo.AddRelation(ctx, s1.ID(), core.RelationReference, n1.ID()))
		related, err := repo.GetRelated(ctx, core.TableNotebook, n1.ID(), core.RelationReference, core.TableSource)
		require.NoError(t, err)
		assert.Equal(t, []string{s1.ID()}, ids(related))

		back, err := repo.GetRelated(ctx, core.TableSource, s1.ID(), core.RelationReference, core.TableNotebook)
		require.NoError(t, err)
		assert.Equal(t, []string{n1.ID()}, ids(back))

		require.NoError(t, repo.RemoveRelation(ctx, s1.ID(), core.RelationReference, n1.ID()))
		related, err = repo.GetRelated(ctx, core.TableNotebook, n1.ID(), core.RelationReference, core.TableSource)
		require.NoError(t, err)
		assert.Empty(t, related)
	})

	t.Run("Idempotent", func(t *testing.T) {
		repo := open(t).Repo
		nb := create(t, repo, core.TableNotebook, core.Record{"name": "N"})
		note := create(t, repo, core.TableNote, core.Record{"title": "n", "note_type": "human"})

		require.NoError(t, repo.AddRelation(ctx, note.ID(), core.RelationArtifact, nb.ID()))
		require.NoError(t, repo.AddRelation(ctx, note.ID(), core.RelationArtifact, nb.ID()))
		related, err := repo.GetRelated(ctx, core.TableNotebook, nb.ID(), core.RelationArtifact, core.TableNote)
		require.NoError(t, err)
		assert.Len(t, related, 1)

		ok, err := repo.CheckRelation(ctx, note.ID(), core.RelationArtifact, nb.ID())
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, repo.RemoveRelation(ctx, note.ID(), core.RelationArtifact, nb.ID()))
		require.NoError(t, repo.RemoveRelation(ctx, note.ID(), core.RelationArtifact, nb.ID()))
		ok, err = repo.CheckRelation(ctx, note.ID(), core.RelationArtifact, nb.ID())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UnknownRelation", func(t *testing.T) {
		repo := open(t).Repo
		nb := create(t, repo, core.TableNotebook, core.Record{"name": "N"})
		src := create(t, repo, core.TableSource, core.Record{"title": "S"})

		assert.ErrorIs(t, repo.AddRelation(ctx, src.ID(), "cites", nb.ID()), storage.ErrRelationUnknown)
		assert.ErrorIs(t, repo.AddRelation(ctx, nb.ID(), core.RelationReference, src.ID()), storage.ErrRelationUnknown)
		_, err := repo.GetRelated(ctx, core.TableNotebook, nb.ID(), core.RelationRefersTo, core.TableSource)
		assert.ErrorIs(t, err, storage.ErrRelationUnknown)
	})

	t.Run("PolymorphicRefersTo", func(t *testing.T) {
		repo := open(t).Repo
		session := create(t, repo, core.TableChatSession, core.Record{"title": "chat"})
		nb := create(t, repo, core.TableNotebook, core.Record{"name": "N"})
		src := create(t, repo, core.TableSource, core.Record{"title": "S"})

		require.NoError(t, repo.AddRelation(ctx, session.ID(), core.RelationRefersTo, nb.ID()))
		require.NoError(t, repo.AddRelation(ctx, session.ID(), core.RelationRefersTo, src.ID()))
		require.NoError(t, repo.AddRelation(ctx, session.ID(), core.RelationRefersTo, src.ID()))

		notebooks, err := repo.GetRelated(ctx, core.TableChatSession, session.ID(), core.RelationRefersTo, core.TableNotebook)
		require.NoError(t, err)
		assert.Equal(t, []string{nb.ID()}, ids(notebooks))

		sources, err := repo.GetRelated(ctx, core.TableChatSession, session.ID(), core.RelationRefersTo, core.TableSource)
		require.NoError(t, err)
		assert.Equal(t, []string{src.ID()}, ids(sources))

		sessions, err := repo.GetRelated(ctx, core.TableSource, src.ID(), core.RelationRefersTo, core.TableChatSession)
		require.NoError(t, err)
		assert.Equal(t, []string{session.ID()}, ids(sessions))
	})

	t.Run("GetRelatedOrdersByUpdated", func(t *testing.T) {
		repo := open(t).Repo
		nb := create(t, repo, core.TableNotebook, core.Record{"name": "N"})
		older := create(t, repo, core.TableSource, core.Record{"title": "older"})
		newer := create(t, repo, core.TableSource, core.Record{"title": "newer"})
		require.NoError(t, repo.AddRelation(ctx, older.ID(), core.RelationReference, nb.ID()))
		require.NoError(t, repo.AddRelation(ctx, newer.ID(), core.RelationReference, nb.ID()))

		_, err := repo.Update(ctx, core.TableSource, older.ID(), core.Record{"title": "touched"})
		require.NoError(t, err)

		related, err := repo.GetRelated(ctx, core.TableNotebook, nb.ID(), core.RelationReference, core.TableSource)
		require.NoError(t, err)
		assert.Equal(t, []string{older.ID(), newer.ID()}, ids(related))
	})

	t.Run("ListWithCounts", func(t *testing.T) {
		repo := open(t).Repo
		busy := create(t, repo, core.TableNotebook, core.Record{"name": "busy"})
		empty := create(t, repo, core.TableNotebook, core.Record{"name": "empty"})
		for range 2 {
			src := create(t, repo, core.TableSource, core.Record{"title": "s"})
			require.NoError(t, repo.AddRelation(ctx, src.ID(), core.RelationReference, busy.ID()))
		}
		note := create(t, repo, core.TableNote, core.Record{"title": "n"})
		require.NoError(t, repo.AddRelation(ctx, note.ID(), core.RelationArtifact, busy.ID()))

		recs, err := repo.ListWithCounts(ctx, core.TableNotebook, []storage.CountSpec{
			{Alias: "source_count", Relation: core.RelationReference},
			{Alias: "note_count", Relation: core.RelationArtifact},
		}, storage.ListQuery{OrderBy: &storage.OrderBy{Field: "name"}})
		require.NoError(t, err)
		require.Len(t, recs, 2)

		assert.Equal(t, busy.ID(), recs[0].ID())
		assert.Equal(t, int64(2), recs[0].Int("source_count"))
		assert.Equal(t, int64(1), recs[0].Int("note_count"))

		assert.Equal(t, empty.ID(), recs[1].ID())
		assert.Contains(t, recs[1], "source_count")
		assert.Equal(t, int64(0), recs[1].Int("source_count"))
		assert.Equal(t, int64(0), recs[1].Int("note_count"))
	})

	t.Run("ListWithCountsRejectsBadSpecs", func(t *testing.T) {
		repo := open(t).Repo
		_, err := repo.ListWithCounts(ctx, core.TableNotebook, []storage.CountSpec{{Alias: "n", Relation: "cites"}}, storage.ListQuery{})
		assert.ErrorIs(t, err, storage.ErrRelationUnknown)

		_, err = repo.ListWithCounts(ctx, core.TableNotebook, []storage.CountSpec{{Alias: "name", Relation: core.RelationReference}}, storage.ListQuery{})
		assert.ErrorIs(t, err, storage.ErrInvalidFilter)
	})
}

// RunSearch covers the engine side of text and vector search.
func RunSearch(t *testing.T, open Opener) {
	ctx := context.Background()
	all := storage.Scope{Sources: true, Notes: true}

	t.Run("TextSearchFindsSource", func(t *testing.T) {
		e := open(t)
		s1 := create(t, e.Repo, core.TableSource, core.Record{"title": "S1", "full_text": "The quick brown fox"})

		hits, err := e.Index.TextSearch(ctx, "brown", 10, all)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, s1.ID(), hits[0].ItemID)
		assert.Equal(t, core.KindSource, hits[0].Kind)
		assert.Greater(t, hits[0].Relevance, 0.0)
		assert.Contains(t, hits[0].Snippet, "brown")

		hits, err = e.Index.TextSearch(ctx, "xyzzy", 10, all)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("TextSearchToleratesPunctuation", func(t *testing.T) {
		e := open(t)
		create(t, e.Repo, core.TableNote, core.Record{"title": "fox", "content": "a fox"})

		for _, q := range []string{`"fox`, `fox AND (`, `fox*`, `NEAR(fox)`, ``, `   `} {
			_, err := e.Index.TextSearch(ctx, q, 10, all)
			assert.NoError(t, err, q)
		}
		hits, err := e.Index.TextSearch(ctx, "", 10, all)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("TextSearchFollowsWrites", func(t *testing.T) {
		e := open(t)
		note := create(t, e.Repo, core.TableNote, core.Record{"title": "pets", "content": "a brown dog"})

		_, err := e.Repo.Update(ctx, core.TableNote, note.ID(), core.Record{"content": "a lazy cat"})
		require.NoError(t, err)

		hits, err := e.Index.TextSearch(ctx, "brown", 10, all)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = e.Index.TextSearch(ctx, "lazy", 10, all)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, note.ID(), hits[0].ItemID)

		require.NoError(t, e.Repo.Delete(ctx, note.ID()))
		hits, err = e.Index.TextSearch(ctx, "lazy", 10, all)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("TextSearchScope", func(t *testing.T) {
		e := open(t)
		create(t, e.Repo, core.TableNote, core.Record{"title": "otter", "content": "river otter"})
		create(t, e.Repo, core.TableSource, core.Record{"title": "otters", "full_text": "sea otter"})

		hits, err := e.Index.TextSearch(ctx, "otter", 10, storage.Scope{Notes: true})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, core.KindNote, hits[0].Kind)

		hits, err = e.Index.TextSearch(ctx, "otter", 10, storage.Scope{})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("ChunkAndInsightHitsPointAtSource", func(t *testing.T) {
		e := open(t)
		src := create(t, e.Repo, core.TableSource, core.Record{"title": "Savanna"})
		create(t, e.Repo, core.TableSourceEmbedding, core.Record{"source": src.ID(), "chunk_order": 0, "content": "zebra stripes"})
		create(t, e.Repo, core.TableSourceInsight, core.Record{"source": src.ID(), "insight_type": "summary", "content": "zebra herds"})

		hits, err := e.Index.TextSearch(ctx, "zebra", 10, all)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		kinds := map[string]core.TextHit{}
		for _, h := range hits {
			assert.Equal(t, src.ID(), h.ItemID)
			kinds[h.Kind] = h
		}
		assert.Contains(t, kinds, core.KindSourceChunk)
		assert.Equal(t, "summary - Savanna", kinds[core.KindSourceInsight].Title)
	})

	t.Run("ScanEmbeddings", func(t *testing.T) {
		e := open(t)
		src := create(t, e.Repo, core.TableSource, core.Record{"title": "S"})
		chunk := create(t, e.Repo, core.TableSourceEmbedding, core.Record{
			"source": src.ID(), "chunk_order": 0, "content": "c", "embedding": []float32{1, 0},
		})
		insight := create(t, e.Repo, core.TableSourceInsight, core.Record{
			"source": src.ID(), "insight_type": "key points", "content": "i", "embedding": []float32{0, 1},
		})
		note := create(t, e.Repo, core.TableNote, core.Record{"title": "n", "content": "x", "embedding": []float32{1, 1}})
		create(t, e.Repo, core.TableNote, core.Record{"title": "no vector"})

		collect := func(scope storage.Scope) map[string]storage.EmbeddingCandidate {
			out := map[string]storage.EmbeddingCandidate{}
			require.NoError(t, e.Index.ScanEmbeddings(ctx, scope, func(c storage.EmbeddingCandidate) error {
				out[c.ID] = c
				return nil
			}))
			return out
		}

		got := collect(all)
		require.Len(t, got, 3)
		assert.Equal(t, src.ID(), got[chunk.ID()].ParentID)
		assert.Equal(t, core.KindSourceEmbedding, got[chunk.ID()].Kind)
		assert.Equal(t, []float32{1, 0}, got[chunk.ID()].Vector)
		assert.Equal(t, src.ID(), got[insight.ID()].ParentID)
		assert.Equal(t, "key points - S", got[insight.ID()].Title)
		assert.Equal(t, note.ID(), got[note.ID()].ParentID)

		assert.Len(t, collect(storage.Scope{Notes: true}), 1)
		assert.Len(t, collect(storage.Scope{Sources: true}), 2)
	})
}

// RunJobs covers the command queue state machine.
func RunJobs(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("Lifecycle", func(t *testing.T) {
		jobs := open(t).Jobs

		jobID, err := jobs.Submit(ctx, "open_notebook", "embed_note", map[string]string{"note_id": "note:1"})
		require.NoError(t, err)
		assert.NotEmpty(t, jobID)

		st, err := jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobPending, st.State)
		assert.Nil(t, st.StartedAt)

		job, err := jobs.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, jobID, job.JobID)
		assert.Equal(t, "embed_note", job.CommandName)
		assert.Equal(t, core.JobProcessing, job.State)
		assert.NotNil(t, job.StartedAt)
		assert.JSONEq(t, `{"note_id":"note:1"}`, string(job.Args))

		again, err := jobs.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, again)

		require.NoError(t, jobs.Complete(ctx, jobID, map[string]string{"outcome": "direct"}))
		st, err = jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobCompleted, st.State)
		assert.JSONEq(t, `{"outcome":"direct"}`, string(st.Result))
		assert.NotNil(t, st.CompletedAt)

		assert.ErrorIs(t, jobs.Fail(ctx, jobID, "late"), core.ErrInvalidJobState)
		assert.ErrorIs(t, jobs.Complete(ctx, jobID, nil), core.ErrInvalidJobState)
	})

	t.Run("Fail", func(t *testing.T) {
		jobs := open(t).Jobs
		jobID, err := jobs.Submit(ctx, "open_notebook", "embed_source", nil)
		require.NoError(t, err)

		assert.ErrorIs(t, jobs.Fail(ctx, jobID, "not claimed"), core.ErrInvalidJobState)

		_, err = jobs.Claim(ctx)
		require.NoError(t, err)
		require.NoError(t, jobs.Fail(ctx, jobID, "boom"))

		st, err := jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobFailed, st.State)
		assert.Equal(t, "boom", st.ErrorMessage)
	})

	t.Run("ClaimsOldestFirst", func(t *testing.T) {
		jobs := open(t).Jobs
		var submitted []string
		for range 3 {
			id, err := jobs.Submit(ctx, "ns", "cmd", nil)
			require.NoError(t, err)
			submitted = append(submitted, id)
		}
		for _, want := range submitted {
			job, err := jobs.Claim(ctx)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, want, job.JobID)
		}
	})

	t.Run("UnknownJob", func(t *testing.T) {
		jobs := open(t).Jobs
		_, err := jobs.Status(ctx, "no-such-job")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("RecoverStuck", func(t *testing.T) {
		jobs := open(t).Jobs
		jobID, err := jobs.Submit(ctx, "ns", "cmd", nil)
		require.NoError(t, err)
		_, err = jobs.Claim(ctx)
		require.NoError(t, err)

		n, err := jobs.RecoverStuck(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = jobs.RecoverStuck(ctx, -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		st, err := jobs.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobPending, st.State)
		assert.Nil(t, st.StartedAt)
	})

	t.Run("Stats", func(t *testing.T) {
		jobs := open(t).Jobs
		stats, err := jobs.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[core.JobState]int{
			core.JobPending: 0, core.JobProcessing: 0, core.JobCompleted: 0, core.JobFailed: 0,
		}, stats)

		for range 3 {
			_, err := jobs.Submit(ctx, "ns", "cmd", nil)
			require.NoError(t, err)
		}
		job, err := jobs.Claim(ctx)
		require.NoError(t, err)
		require.NoError(t, jobs.Complete(ctx, job.JobID, nil))
		_, err = jobs.Claim(ctx)
		require.NoError(t, err)

		stats, err = jobs.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats[core.JobPending])
		assert.Equal(t, 1, stats[core.JobProcessing])
		assert.Equal(t, 1, stats[core.JobCompleted])
		assert.Equal(t, 0, stats[core.JobFailed])
	})
}

// RunConcurrency covers independent writers racing on one store.
func RunConcurrency(t *testing.T, open Opener) {
	ctx := context.Background()
	const writers = 32

	// parallel runs fn once per writer and returns the errors in writer order.
	parallel := func(fn func(i int) error) []error {
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = fn(i)
			}()
		}
		wg.Wait()
		return errs
	}

	t.Run("Creates", func(t *testing.T) {
		repo := open(t).Repo
		errs := parallel(func(i int) error {
			_, err := repo.Create(ctx, core.TableNote, core.Record{
				"title":   fmt.Sprintf("note %d", i),
				"content": fmt.Sprintf("concurrent badger note number %d", i),
			})
			return err
		})
		for i, err := range errs {
			assert.NoError(t, err, "writer %d", i)
		}

		notes, err := repo.List(ctx, core.TableNote, storage.ListQuery{})
		require.NoError(t, err)
		assert.Len(t, notes, writers)
	})

	t.Run("UpdatesWhileCreating", func(t *testing.T) {
		e := open(t)
		target := create(t, e.Repo, core.TableNote, core.Record{"title": "target", "content": "shared"})
		errs := parallel(func(i int) error {
			if i%2 == 0 {
				_, err := e.Repo.Update(ctx, core.TableNote, target.ID(), core.Record{
					core.FieldEmbedding: []float32{float32(i), 1},
				})
				return err
			}
			_, err := e.Repo.Create(ctx, core.TableNote, core.Record{"content": fmt.Sprintf("other %d", i)})
			return err
		})
		for i, err := range errs {
			assert.NoError(t, err, "writer %d", i)
		}

		hits, err := e.Index.TextSearch(ctx, "other", writers, storage.Scope{Notes: true})
		require.NoError(t, err)
		assert.Len(t, hits, writers/2)
	})

	t.Run("Submits", func(t *testing.T) {
		jobs := open(t).Jobs
		errs := parallel(func(i int) error {
			_, err := jobs.Submit(ctx, "test", "noop", map[string]int{"n": i})
			return err
		})
		for i, err := range errs {
			assert.NoError(t, err, "writer %d", i)
		}

		stats, err := jobs.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, writers, stats[core.JobPending])
	})
}

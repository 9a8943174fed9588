package notebase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/poiesic/notebase/ai"
	"github.com/poiesic/notebase/ai/mock"
	"github.com/poiesic/notebase/config"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/poiesic/notebase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "data", "notebase.db")
	return cfg
}

func graphConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Backend = config.BackendGraph
	cfg.Graph.Path = filepath.Join(t.TempDir(), "graph")
	return cfg
}

func newProvider() ai.AIProvider {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	return mock.NewMockProviderWithServices(embedder, mock.NewMockTransformer())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      func(*testing.T) *config.Config
		strategy any
	}{
		{"sqlite", sqliteConfig, &executor.Direct{}},
		{"graph", graphConfig, &executor.Queued{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg(t)
			db, err := Open(ctx, cfg, WithProvider(newProvider()))
			require.NoError(t, err)

			assert.Equal(t, cfg.Backend, db.Backend())
			assert.NotEmpty(t, db.AppliedMigrations())
			assert.NotNil(t, db.Repository())
			assert.NotNil(t, db.SearchIndex())
			assert.NotNil(t, db.Jobs())
			assert.NotNil(t, db.Searcher())
			assert.NotNil(t, db.Worker())
			assert.NotNil(t, db.Direct())
			assert.IsType(t, tt.strategy, db.Executor())
			assert.Contains(t, db.Registry().Commands(), "open_notebook.embed_note")
			require.NoError(t, db.Close())

			// Reopening the same store finds nothing left to migrate.
			db, err = Open(ctx, cfg, WithProvider(newProvider()))
			require.NoError(t, err)
			assert.Empty(t, db.AppliedMigrations())
			version, err := db.Migrator().CurrentVersion(ctx)
			require.NoError(t, err)
			assert.Positive(t, version)
			require.NoError(t, db.Close())
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "postgres"
	_, err := Open(context.Background(), cfg, WithProvider(newProvider()))
	assert.ErrorContains(t, err, "unknown database backend")
}

func TestEmbedAndSearch(t *testing.T) {
	ctx := context.Background()

	for _, cfgFn := range []func(*testing.T) *config.Config{sqliteConfig, graphConfig} {
		cfg := cfgFn(t)
		t.Run(string(cfg.Backend), func(t *testing.T) {
			db, err := Open(ctx, cfg, WithProvider(newProvider()))
			require.NoError(t, err)
			defer db.Close()

			repo := db.Repository()
			note, err := repo.Create(ctx, core.TableNote, core.Record{
				"title": "Burrows", "content": "Badgers dig setts", "note_type": "human",
			})
			require.NoError(t, err)

			handle, err := db.Executor().EmbedNote(ctx, note.ID())
			require.NoError(t, err)
			if cfg.Backend == config.BackendGraph {
				status, err := db.Jobs().Status(ctx, handle)
				require.NoError(t, err)
				assert.Equal(t, core.JobPending, status.State)

				processed, err := db.Worker().ProcessOne(ctx)
				require.NoError(t, err)
				require.True(t, processed)
			} else {
				assert.Equal(t, executor.OutcomeDirect, handle)
			}

			scope := storage.Scope{Notes: true}
			hits, err := db.Searcher().SearchText(ctx, "Badgers dig setts", 5, scope, 0.5)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, note.ID(), hits[0].ParentID)
			assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)

			text, err := db.Searcher().TextSearch(ctx, "setts", 5, scope)
			require.NoError(t, err)
			require.Len(t, text, 1)
			assert.Equal(t, note.ID(), text[0].ItemID)
		})
	}
}

func TestCloseIsSafeAfterPartialOpen(t *testing.T) {
	db := &Database{}
	assert.NoError(t, db.Close())
}

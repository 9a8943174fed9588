// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package notebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/notebase/ai"
	"github.com/poiesic/notebase/ai/openai"
	"github.com/poiesic/notebase/config"
	"github.com/poiesic/notebase/executor"
	"github.com/poiesic/notebase/queue"
	"github.com/poiesic/notebase/search"
	"github.com/poiesic/notebase/storage"
	"github.com/poiesic/notebase/storage/badger"
	"github.com/poiesic/notebase/storage/sqlite"
)

// Database is an opened, migrated store with every component built on it.
type Database struct {
	backend  config.Backend
	repo     storage.Repository
	index    storage.SearchIndex
	jobs     storage.JobStore
	migrator storage.Migrator
	provider ai.AIProvider
	searcher *search.Searcher
	registry *queue.Registry
	worker   *queue.Worker
	direct   *executor.Direct
	executor executor.Executor
	applied  []int
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithProvider supplies the AI provider instead of building one from the configuration.
// The database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type engine struct {
	repo     storage.Repository
	index    storage.SearchIndex
	jobs     storage.JobStore
	migrator storage.Migrator
}

func openEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		backend, err := sqlite.OpenBackend(cfg.SQLite.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &engine{
			repo:     sqlite.NewRepository(backend),
			index:    sqlite.NewSearchIndex(backend),
			jobs:     sqlite.NewJobStore(backend),
			migrator: sqlite.NewMigrator(backend),
		}, nil
	case config.BackendGraph:
		backend, err := badger.OpenBackend(cfg.Graph.Path, cfg.Graph.InMemory,
			badger.WithNamespace(cfg.Graph.Namespace, cfg.Graph.Database),
			badger.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &engine{
			repo:     badger.NewRepository(backend),
			index:    badger.NewSearchIndex(backend),
			jobs:     badger.NewJobStore(backend),
			migrator: badger.NewMigrator(backend),
		}, nil
	}
	return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
}

// Open selects the engine named by cfg, applies pending migrations and builds
// the searcher, command registry, worker and executor. The worker is not started.
// SQLite runs embeddings directly; the graph engine queues them.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger

	eng, err := openEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	db := &Database{
		backend:  cfg.Backend,
		repo:     eng.repo,
		index:    eng.index,
		jobs:     eng.jobs,
		migrator: eng.migrator,
		provider: o.provider,
		logger:   logger.With("component", "database"),
	}

	if db.applied, err = db.migrator.ApplyPending(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if db.provider == nil {
		if db.provider, err = openai.NewProvider(cfg.AIConfig()); err != nil {
			db.Close()
			return nil, err
		}
	}

	searchOpts := []search.Option{
		search.WithLogger(logger),
		search.WithEmbedder(db.provider.Embedder()),
		search.WithBatchSize(cfg.Search.BatchSize),
	}
	if cfg.Search.PoolSize > 0 {
		searchOpts = append(searchOpts, search.WithPoolSize(cfg.Search.PoolSize))
	}
	if db.searcher, err = search.NewSearcher(db.index, searchOpts...); err != nil {
		db.Close()
		return nil, err
	}

	db.direct, err = executor.NewDirect(db.repo, db.provider.Embedder(),
		executor.WithLogger(logger),
		executor.WithChunking(cfg.Embedding.ChunkSize, cfg.Embedding.ChunkOverlap),
		executor.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.Burst))
	if err != nil {
		db.Close()
		return nil, err
	}
	db.executor = db.direct
	if cfg.Backend == config.BackendGraph {
		if db.executor, err = executor.NewQueued(db.jobs, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	db.registry = queue.NewRegistry()
	if err := executor.RegisterCommands(db.registry, db.direct, db.repo, db.provider.Transformer(), db.executor); err != nil {
		db.Close()
		return nil, err
	}
	db.worker, err = queue.NewWorker(db.jobs, db.registry,
		queue.WithLogger(logger),
		queue.WithPollInterval(cfg.Worker.PollInterval),
		queue.WithRecoveryInterval(cfg.Worker.RecoveryInterval),
		queue.WithStuckTimeout(cfg.Worker.StuckTimeout))
	if err != nil {
		db.Close()
		return nil, err
	}

	db.logger.Info("database opened", "backend", cfg.Backend, "migrations_applied", db.applied)
	return db, nil
}

// Close stops the worker and releases everything in reverse order of construction.
func (db *Database) Close() error {
	var errs []error
	if db.worker != nil {
		db.worker.Stop()
	}
	if db.searcher != nil {
		db.searcher.Release()
	}
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if db.repo != nil {
		if err := db.repo.Close(); err != nil {
			db.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backend reports which engine is active.
func (db *Database) Backend() config.Backend {
	return db.backend
}

// AppliedMigrations returns the migration versions Open applied.
func (db *Database) AppliedMigrations() []int {
	return db.applied
}

func (db *Database) Repository() storage.Repository {
	return db.repo
}

func (db *Database) SearchIndex() storage.SearchIndex {
	return db.index
}

func (db *Database) Jobs() storage.JobStore {
	return db.jobs
}

func (db *Database) Migrator() storage.Migrator {
	return db.migrator
}

func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

func (db *Database) Registry() *queue.Registry {
	return db.registry
}

func (db *Database) Worker() *queue.Worker {
	return db.worker
}

// Executor returns the active embedding strategy.
func (db *Database) Executor() executor.Executor {
	return db.executor
}

// Direct returns the synchronous executor, whatever the active strategy.
func (db *Database) Direct() *executor.Direct {
	return db.direct
}

// Provider returns the AI provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

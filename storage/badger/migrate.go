package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

type migration struct {
	version int
	name    string
	apply   func(m *Migrator, tx *badger.Txn) error
}

// migrations are applied in order. Badger has no DDL, so each step builds or
// rebuilds derived keys from the primary records.
var migrations = []migration{
	{1, "schema_catalog", (*Migrator).writeCatalog},
	{2, "text_index", (*Migrator).rebuildTextIndex},
	{3, "job_queue", (*Migrator).rebuildJobQueue},
}

// Migrator tracks the applied version under a meta key.
type Migrator struct {
	backend *Backend
	keys    keyspace
	repo    *Repository
	logger  *slog.Logger
}

var _ storage.Migrator = (*Migrator)(nil)

// NewMigrator creates a Migrator for backend.
func NewMigrator(backend *Backend) *Migrator {
	return &Migrator{
		backend: backend,
		keys:    backend.keys,
		repo:    NewRepository(backend),
		logger:  backend.logger.With("component", "migrate"),
	}
}

func (m *Migrator) currentVersion(tx *badger.Txn) (int, error) {
	var v int
	err := getJSON(tx, m.keys.migrationVersion(), &v)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	return v, err
}

// CurrentVersion returns the highest applied version, 0 for a fresh store.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var v int
	err := m.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		v, err = m.currentVersion(tx)
		return err
	}, false)
	return v, err
}

// ApplyPending runs each migration newer than the stored version in its own
// transaction, together with the version bump.
func (m *Migrator) ApplyPending(ctx context.Context) ([]int, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrMigrationFailed, err)
	}
	var applied []int
	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		err := m.backend.Update(ctx, func(tx *badger.Txn) error {
			if err := mig.apply(m, tx); err != nil {
				return err
			}
			if err := setJSON(tx, m.keys.migrationVersion(), mig.version); err != nil {
				return err
			}
			return tx.Commit()
		})
		if err != nil {
			return applied, fmt.Errorf("%w: %s: %w", storage.ErrMigrationFailed, mig.name, err)
		}
		m.logger.Info("applied migration", "version", mig.version, "name", mig.name)
		applied = append(applied, mig.version)
	}
	return applied, nil
}

// writeCatalog records the table names the keyspace was created with.
func (m *Migrator) writeCatalog(tx *badger.Txn) error {
	return setJSON(tx, m.keys.key(metaPrefix, "tables"), storage.Tables())
}

// dropPrefix deletes every key under prefix.
func dropPrefix(tx *badger.Txn, prefix []byte) error {
	var keys [][]byte
	err := scanPrefix(tx, prefix, true, func(_ []byte, item *badger.Item) error {
		keys = append(keys, item.KeyCopy(nil))
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// rebuildTextIndex drops all postings and re-indexes every text-bearing record.
func (m *Migrator) rebuildTextIndex(tx *badger.Txn) error {
	for _, name := range storage.Tables() {
		def, err := storage.Table(name)
		if err != nil {
			return err
		}
		if len(def.TextFields) == 0 {
			continue
		}
		for _, family := range []string{termPrefix, docLenPrefix} {
			if err := dropPrefix(tx, m.keys.prefix(family, name)); err != nil {
				return err
			}
		}
		if err := tx.Delete(m.keys.textStats(name)); err != nil {
			return err
		}

		var keys []string
		err = scanPrefix(tx, m.keys.prefix(recordPrefix, name), true, func(suffix []byte, _ *badger.Item) error {
			keys = append(keys, string(suffix))
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			rec, err := m.repo.loadRecord(tx, def, key)
			if err != nil {
				return err
			}
			if err := indexText(tx, m.keys, def, key, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// rebuildJobQueue recreates queue keys for every pending job.
func (m *Migrator) rebuildJobQueue(tx *badger.Txn) error {
	if err := dropPrefix(tx, m.keys.prefix(jobQueuePrefix)); err != nil {
		return err
	}
	jobs := NewJobStore(m.backend)
	var pending []*jobRecord
	err := jobs.scanJobs(tx, func(rec *jobRecord) error {
		if rec.State == core.JobPending {
			pending = append(pending, rec)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if err := tx.Set(m.keys.jobQueue(rec.CreatedAt, rec.Seq), []byte(rec.JobID)); err != nil {
			return err
		}
	}
	return nil
}

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// Repository implements storage.Repository for BadgerDB.
//
// Records are JSON documents keyed by table and key. Keys are UUIDv7
// strings, so key order is creation order.
type Repository struct {
	backend *Backend
	keys    keyspace
	codec   storage.EmbeddingCodec
	logger  *slog.Logger
	now     func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new Repository.
func NewRepository(backend *Backend) *Repository {
	return &Repository{
		backend: backend,
		keys:    backend.keys,
		codec:   storage.NativeCodec{},
		logger:  backend.logger.With("component", "repository"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the underlying backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}

func newKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// loadRecord reads a record and its embedding.
func (r *Repository) loadRecord(tx *badger.Txn, def *storage.TableDef, key string) (core.Record, error) {
	id := core.FormatID(def.Name, key)
	item, err := tx.Get(r.keys.record(def.Name, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var vector any
	if def.HasEmbedding() {
		vec, err := loadVector(tx, r.keys.vector(def.Name, key))
		if err != nil {
			return nil, err
		}
		if vec != nil {
			vector = vec
		}
	}
	return decodeDocument(def, id, raw, vector, r.codec)
}

// put writes rec under key and maintains every secondary key: embedding,
// unique values, parent ownership and the text index. old is the previous
// version of the record, nil when it is new.
func (r *Repository) put(tx *badger.Txn, def *storage.TableDef, key string, old, rec core.Record) error {
	doc, vector, hasVector, err := encodeDocument(def, rec, r.codec)
	if err != nil {
		return err
	}
	id := core.FormatID(def.Name, key)

	if def.HasEmbedding() {
		vkey := r.keys.vector(def.Name, key)
		if hasVector {
			if err := tx.Set(vkey, storage.EncodeFloat32s(vector)); err != nil {
				return err
			}
		} else if err := tx.Delete(vkey); err != nil {
			return err
		}
	}

	for _, field := range def.Unique {
		if err := r.putUnique(tx, def, field, key, old, doc); err != nil {
			return err
		}
	}

	if def.Parent != "" {
		if err := r.putParent(tx, def, id, old, doc); err != nil {
			return err
		}
	}

	if len(def.TextFields) > 0 {
		if old != nil {
			if err := unindexText(tx, r.keys, def, key, old); err != nil {
				return err
			}
		}
		if err := indexText(tx, r.keys, def, key, rec); err != nil {
			return err
		}
	}

	return setJSON(tx, r.keys.record(def.Name, key), doc)
}

func (r *Repository) putUnique(tx *badger.Txn, def *storage.TableDef, field, key string, old core.Record, doc document) error {
	value, _ := doc[field].(string)
	if value == "" {
		return fmt.Errorf("%w: NOT NULL constraint failed: %s.%s", storage.ErrConstraintViolation, def.Name, field)
	}
	if old != nil {
		if prev := old.String(field); prev != value {
			if err := tx.Delete(r.keys.unique(def.Name, field, prev)); err != nil {
				return err
			}
		}
	}
	ukey := r.keys.unique(def.Name, field, value)
	var owner string
	err := getJSON(tx, ukey, &owner)
	if err == nil && owner != key {
		return fmt.Errorf("%w: UNIQUE constraint failed: %s.%s", storage.ErrConstraintViolation, def.Name, field)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return setJSON(tx, ukey, key)
}

// putParent checks that the owning record exists and keeps the child index current.
func (r *Repository) putParent(tx *badger.Txn, def *storage.TableDef, id string, old core.Record, doc document) error {
	parent, _ := doc[def.Parent].(string)
	if parent == "" {
		return fmt.Errorf("%w: NOT NULL constraint failed: %s.%s", storage.ErrConstraintViolation, def.Name, def.Parent)
	}
	prev := ""
	if old != nil {
		prev = old.String(def.Parent)
	}
	if prev == parent {
		return nil
	}
	pid, err := core.ParseID(parent)
	if err != nil {
		return err
	}
	ok, err := exists(tx, r.keys.record(pid.Table, pid.Key))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: FOREIGN KEY constraint failed: %s.%s -> %s", storage.ErrConstraintViolation, def.Name, def.Parent, parent)
	}
	if prev != "" {
		if err := tx.Delete(r.keys.child(prev, id)); err != nil {
			return err
		}
	}
	return tx.Set(r.keys.child(parent, id), nil)
}

// deleteRecord removes a record with everything it owns. A missing record is not an error.
func (r *Repository) deleteRecord(tx *badger.Txn, def *storage.TableDef, key string) error {
	rec, err := r.loadRecord(tx, def, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	id := rec.ID()

	var children []string
	err = scanPrefix(tx, r.keys.prefix(childPrefix, id), true, func(suffix []byte, _ *badger.Item) error {
		children = append(children, string(suffix))
		return nil
	})
	if err != nil {
		return err
	}
	for _, childID := range children {
		cid, err := core.ParseID(childID)
		if err != nil {
			return err
		}
		childDef, err := storage.Table(cid.Table)
		if err != nil {
			return err
		}
		if err := r.deleteRecord(tx, childDef, cid.Key); err != nil {
			return err
		}
	}

	if err := r.deleteEdges(tx, def, id); err != nil {
		return err
	}
	for _, field := range def.Unique {
		if v := rec.String(field); v != "" {
			if err := tx.Delete(r.keys.unique(def.Name, field, v)); err != nil {
				return err
			}
		}
	}
	if def.Parent != "" {
		if parent := rec.String(def.Parent); parent != "" {
			if err := tx.Delete(r.keys.child(parent, id)); err != nil {
				return err
			}
		}
	}
	if len(def.TextFields) > 0 {
		if err := unindexText(tx, r.keys, def, key, rec); err != nil {
			return err
		}
	}
	if def.HasEmbedding() {
		if err := tx.Delete(r.keys.vector(def.Name, key)); err != nil {
			return err
		}
	}
	return tx.Delete(r.keys.record(def.Name, key))
}

// resolve parses id for table. Graph keys are opaque, so any non-empty key is accepted.
func resolve(table, id string) (*storage.TableDef, string, error) {
	def, err := storage.Table(table)
	if err != nil {
		return nil, "", err
	}
	rid, err := core.ParseIDFor(table, id)
	if err != nil {
		return nil, "", err
	}
	return def, rid.Key, nil
}

// writable copies data without the id field and checks it against def.
func writable(def *storage.TableDef, data core.Record) (core.Record, error) {
	if data == nil {
		data = core.Record{}
	}
	rec := data.Clone()
	delete(rec, core.FieldID)
	if err := def.CheckRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get retrieves a record by id.
func (r *Repository) Get(ctx context.Context, table, id string) (core.Record, error) {
	def, key, err := resolve(table, id)
	if err != nil {
		return nil, err
	}
	var rec core.Record
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		rec, err = r.loadRecord(tx, def, key)
		return err
	}, false)
	return rec, err
}

// Create stores a new record under a fresh UUIDv7 key.
func (r *Repository) Create(ctx context.Context, table string, data core.Record) (core.Record, error) {
	def, err := storage.Table(table)
	if err != nil {
		return nil, err
	}
	if def.Singleton {
		return nil, fmt.Errorf("%w: %s is a singleton table", core.ErrInvalidRecord, table)
	}
	rec, err := writable(def, data)
	if err != nil {
		return nil, err
	}
	now := r.now()
	rec[core.FieldCreated] = now
	rec[core.FieldUpdated] = now

	key := newKey()
	var created core.Record
	err = r.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := r.put(tx, def, key, nil, rec); err != nil {
			return err
		}
		if created, err = r.loadRecord(tx, def, key); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("created record", "id", created.ID())
	return created, nil
}

// merge applies patch over the stored record, or creates it when missing.
func (r *Repository) merge(ctx context.Context, def *storage.TableDef, key string, patch core.Record, mustExist bool) (core.Record, error) {
	var out core.Record
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		old, err := r.loadRecord(tx, def, key)
		switch {
		case errors.Is(err, storage.ErrNotFound) && !mustExist:
			old = nil
		case err != nil:
			return err
		}

		merged := core.Record{}
		if old != nil {
			merged = old.Clone()
			delete(merged, core.FieldCreated)
			patch = patch.Clone()
			delete(patch, core.FieldCreated)
		}
		for k, v := range patch {
			merged[k] = v
		}
		if old != nil {
			merged[core.FieldCreated] = old[core.FieldCreated]
		}

		if err := r.put(tx, def, key, old, merged); err != nil {
			return err
		}
		if out, err = r.loadRecord(tx, def, key); err != nil {
			return err
		}
		return tx.Commit()
	})
	return out, err
}

// Update merges patch into an existing record.
func (r *Repository) Update(ctx context.Context, table, id string, patch core.Record) (core.Record, error) {
	def, key, err := resolve(table, id)
	if err != nil {
		return nil, err
	}
	rec, err := writable(def, patch)
	if err != nil {
		return nil, err
	}
	delete(rec, core.FieldCreated)
	rec[core.FieldUpdated] = r.now()
	return r.merge(ctx, def, key, rec, true)
}

// Upsert merges data into the record with the given id, creating it if needed.
func (r *Repository) Upsert(ctx context.Context, table, id string, data core.Record) (core.Record, error) {
	def, key, err := resolve(table, id)
	if err != nil {
		return nil, err
	}
	rec, err := writable(def, data)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if !def.Singleton {
		rec[core.FieldCreated] = now
	}
	rec[core.FieldUpdated] = now
	return r.merge(ctx, def, key, rec, false)
}

// Delete removes a record, its owned children and its edges.
func (r *Repository) Delete(ctx context.Context, id string) error {
	rid, err := core.ParseID(id)
	if err != nil {
		return err
	}
	def, err := storage.Table(rid.Table)
	if err != nil {
		return err
	}
	err = r.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := r.deleteRecord(tx, def, rid.Key); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	r.logger.Debug("deleted record", "id", id)
	return nil
}

// ReplaceChildren swaps every table record owned by parentID for rows in one transaction.
func (r *Repository) ReplaceChildren(ctx context.Context, table, parentID string, rows []core.Record) error {
	def, err := storage.Table(table)
	if err != nil {
		return err
	}
	if def.Parent == "" {
		return fmt.Errorf("%w: %s has no owning record", core.ErrInvalidRecord, table)
	}
	parent, _ := def.Field(def.Parent)
	if _, err := core.ParseIDFor(parent.Ref, parentID); err != nil {
		return err
	}

	now := r.now()
	recs := make([]core.Record, len(rows))
	for i, data := range rows {
		rec, err := writable(def, data)
		if err != nil {
			return err
		}
		rec[def.Parent] = parentID
		rec[core.FieldCreated] = now
		rec[core.FieldUpdated] = now
		recs[i] = rec
	}

	err = r.backend.Update(ctx, func(tx *badger.Txn) error {
		var owned []string
		err := scanPrefix(tx, r.keys.prefix(childPrefix, parentID), true, func(suffix []byte, _ *badger.Item) error {
			if cid, err := core.ParseID(string(suffix)); err == nil && cid.Table == def.Name {
				owned = append(owned, cid.Key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range owned {
			if err := r.deleteRecord(tx, def, key); err != nil {
				return err
			}
		}
		for _, rec := range recs {
			if err := r.put(tx, def, newKey(), nil, rec); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	r.logger.Debug("replaced children", "parent", parentID, "table", table, "count", len(rows))
	return nil
}

// SingletonGet reads a singleton stored under its namespaced key.
func (r *Repository) SingletonGet(ctx context.Context, id string) (core.Record, error) {
	def, canonical, err := storage.SingletonTable(id)
	if err != nil {
		return nil, err
	}
	var rec core.Record
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		rec, err = r.loadSingleton(tx, def, canonical)
		return err
	}, false)
	return rec, err
}

func (r *Repository) loadSingleton(tx *badger.Txn, def *storage.TableDef, canonical string) (core.Record, error) {
	item, err := tx.Get(r.keys.singleton(canonical))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, canonical)
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeDocument(def, canonical, raw, nil, r.codec)
}

// SingletonUpsert merges data into a singleton.
func (r *Repository) SingletonUpsert(ctx context.Context, id string, data core.Record) (core.Record, error) {
	def, canonical, err := storage.SingletonTable(id)
	if err != nil {
		return nil, err
	}
	rec, err := writable(def, data)
	if err != nil {
		return nil, err
	}
	rec[core.FieldUpdated] = r.now()

	var out core.Record
	err = r.backend.Update(ctx, func(tx *badger.Txn) error {
		merged := core.Record{}
		old, err := r.loadSingleton(tx, def, canonical)
		switch {
		case err == nil:
			merged = old
			delete(merged, core.FieldID)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
		for k, v := range rec {
			merged[k] = v
		}
		doc, _, _, err := encodeDocument(def, merged, r.codec)
		if err != nil {
			return err
		}
		if err := setJSON(tx, r.keys.singleton(canonical), doc); err != nil {
			return err
		}
		if out, err = r.loadSingleton(tx, def, canonical); err != nil {
			return err
		}
		return tx.Commit()
	})
	return out, err
}

// List returns the records of table matching q.
func (r *Repository) List(ctx context.Context, table string, q storage.ListQuery) ([]core.Record, error) {
	return r.ListWithCounts(ctx, table, nil, q)
}

type keyedRecord struct {
	key string
	rec core.Record
}

// ListWithCounts scans the table, filters and orders in memory, then counts
// edges for each returned record.
func (r *Repository) ListWithCounts(ctx context.Context, table string, counts []storage.CountSpec, q storage.ListQuery) ([]core.Record, error) {
	def, err := storage.ValidateQuery(table, q)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateCounts(def, counts); err != nil {
		return nil, err
	}
	match, err := r.matcher(def, q.Filters)
	if err != nil {
		return nil, err
	}

	out := []core.Record{}
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		var rows []keyedRecord
		err := scanPrefix(tx, r.keys.prefix(recordPrefix, def.Name), true, func(suffix []byte, _ *badger.Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(suffix)
			rec, err := r.loadRecord(tx, def, key)
			if err != nil {
				return err
			}
			if match(rec) {
				rows = append(rows, keyedRecord{key: key, rec: rec})
			}
			return nil
		})
		if err != nil {
			return err
		}

		sortRecords(rows, q.OrderBy)
		rows = page(rows, q.Limit, q.Offset)

		for _, row := range rows {
			for _, c := range counts {
				n, err := r.countEdges(tx, c.Relation, def.Name, row.rec.ID())
				if err != nil {
					return err
				}
				row.rec[c.Alias] = int64(n)
			}
			out = append(out, row.rec)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// matcher compiles equality filters into a predicate.
func (r *Repository) matcher(def *storage.TableDef, filters map[string]any) (func(core.Record) bool, error) {
	type cond struct {
		field string
		want  any
	}
	var conds []cond
	for name, v := range filters {
		if name == core.FieldID {
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: id filter must be an identifier", storage.ErrInvalidFilter)
			}
			if _, _, err := resolve(def.Name, id); err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrInvalidFilter, err)
			}
			conds = append(conds, cond{field: name, want: id})
			continue
		}
		f, _ := def.Field(name)
		want, err := normalizeFilter(f, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrInvalidFilter, err)
		}
		conds = append(conds, cond{field: name, want: want})
	}
	return func(rec core.Record) bool {
		for _, c := range conds {
			if !valuesEqual(rec[c.field], c.want) {
				return false
			}
		}
		return true
	}, nil
}

func sortRecords(rows []keyedRecord, ob *storage.OrderBy) {
	slices.SortStableFunc(rows, func(a, b keyedRecord) int {
		c := 0
		if ob != nil {
			c = compareValues(a.rec[ob.Field], b.rec[ob.Field])
		}
		if c == 0 {
			c = strings.Compare(a.key, b.key)
		}
		if ob != nil && ob.Descending {
			c = -c
		}
		return c
	})
}

func page(rows []keyedRecord, limit, offset int) []keyedRecord {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// singletonKey is the sentinel row id of every singleton table.
const singletonKey = 1

// Repository implements storage.Repository for SQLite.
type Repository struct {
	backend *Backend
	codec   storage.EmbeddingCodec
	logger  *slog.Logger
	now     func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a Repository over backend.
func NewRepository(backend *Backend) *Repository {
	return &Repository{
		backend: backend,
		codec:   storage.BlobCodec{},
		logger:  backend.logger.With("component", "repository"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the underlying backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}

func selectColumns(def *storage.TableDef, alias string) string {
	cols := append([]string{core.FieldID}, columnNames(def)...)
	if alias != "" {
		for i, c := range cols {
			cols[i] = alias + "." + c
		}
	}
	return strings.Join(cols, ", ")
}

// scanRecords decodes rows selected with selectColumns plus extra integer columns.
func (r *Repository) scanRecords(rows *sql.Rows, def *storage.TableDef, extra []string) ([]core.Record, error) {
	defer rows.Close()

	n := len(def.Fields) + 1
	var out []core.Record
	for rows.Next() {
		values := make([]any, n+len(extra))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapError(err)
		}
		rec, err := decodeRow(def, values[:n], r.codec)
		if err != nil {
			return nil, err
		}
		for i, alias := range extra {
			count, err := toInt64(alias, values[n+i])
			if err != nil {
				return nil, err
			}
			rec[alias] = count
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if out == nil {
		out = []core.Record{}
	}
	return out, nil
}

func (r *Repository) getByKey(ctx context.Context, q querier, def *storage.TableDef, key int64) (core.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectColumns(def, ""), def.Name)
	rows, err := q.QueryContext(ctx, query, key)
	if err != nil {
		return nil, mapError(err)
	}
	recs, err := r.scanRecords(rows, def, nil)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, core.FormatIntID(def.Name, key))
	}
	return recs[0], nil
}

// resolve parses id for table and returns the table definition and row key.
func resolve(table, id string) (*storage.TableDef, int64, error) {
	def, err := storage.Table(table)
	if err != nil {
		return nil, 0, err
	}
	rid, err := core.ParseIDFor(table, id)
	if err != nil {
		return nil, 0, err
	}
	key, err := rid.IntKey()
	if err != nil {
		return nil, 0, err
	}
	return def, key, nil
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
	return r.getByKey(ctx, r.backend.db, def, key)
}

// Create inserts a record and lets SQLite allocate its key.
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

	cols, args, err := encodeRecord(def, rec, r.codec)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		def.Name, strings.Join(cols, ", "), placeholders(len(cols)))

	var created core.Record
	err = r.backend.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return mapError(err)
		}
		key, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created, err = r.getByKey(ctx, tx, def, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("created record", "id", created.ID())
	return created, nil
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

	cols, args, err := encodeRecord(def, rec, r.codec)
	if err != nil {
		return nil, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", def.Name, strings.Join(sets, ", "))

	var updated core.Record
	err = r.backend.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, append(args, key)...)
		if err != nil {
			return mapError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		updated, err = r.getByKey(ctx, tx, def, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a record. Foreign keys cascade to owned rows and junction rows.
func (r *Repository) Delete(ctx context.Context, id string) error {
	rid, err := core.ParseID(id)
	if err != nil {
		return err
	}
	def, key, err := resolve(rid.Table, id)
	if err != nil {
		return err
	}
	if _, err := r.backend.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", def.Name), key); err != nil {
		return mapError(err)
	}
	r.logger.Debug("deleted record", "id", id)
	return nil
}

// ReplaceChildren swaps every table row owned by parentID for rows in one transaction.
func (r *Repository) ReplaceChildren(ctx context.Context, table, parentID string, rows []core.Record) error {
	def, err := storage.Table(table)
	if err != nil {
		return err
	}
	if def.Parent == "" {
		return fmt.Errorf("%w: %s has no owning record", core.ErrInvalidRecord, table)
	}
	parent, _ := def.Field(def.Parent)
	parentKey, err := encodeValue(parent, parentID, r.codec)
	if err != nil {
		return err
	}

	now := r.now()
	inserts := make([][]any, len(rows))
	queries := make([]string, len(rows))
	for i, data := range rows {
		rec, err := writable(def, data)
		if err != nil {
			return err
		}
		rec[def.Parent] = parentID
		rec[core.FieldCreated] = now
		rec[core.FieldUpdated] = now
		cols, args, err := encodeRecord(def, rec, r.codec)
		if err != nil {
			return err
		}
		queries[i] = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			def.Name, strings.Join(cols, ", "), placeholders(len(cols)))
		inserts[i] = args
	}

	err = r.backend.WithTx(ctx, func(tx *sql.Tx) error {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", def.Name, columnName(def.Name, def.Parent))
		if _, err := tx.ExecContext(ctx, del, parentKey); err != nil {
			return mapError(err)
		}
		for i, query := range queries {
			if _, err := tx.ExecContext(ctx, query, inserts[i]...); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Debug("replaced children", "parent", parentID, "table", table, "count", len(rows))
	return nil
}

// upsertRow inserts rec under key or merges it into the existing row.
func (r *Repository) upsertRow(ctx context.Context, def *storage.TableDef, key int64, rec core.Record) (core.Record, error) {
	cols, args, err := encodeRecord(def, rec, r.codec)
	if err != nil {
		return nil, err
	}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != core.FieldCreated {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (?, %s) ON CONFLICT(id) DO UPDATE SET %s",
		def.Name, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(sets, ", "))

	var out core.Record
	err = r.backend.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, append([]any{key}, args...)...); err != nil {
			return mapError(err)
		}
		out, err = r.getByKey(ctx, tx, def, key)
		return err
	})
	return out, err
}

// Upsert writes data to the record with the given id, creating it if needed.
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
	return r.upsertRow(ctx, def, key, rec)
}

// SingletonGet reads the sentinel row of a singleton table.
func (r *Repository) SingletonGet(ctx context.Context, id string) (core.Record, error) {
	def, canonical, err := storage.SingletonTable(id)
	if err != nil {
		return nil, err
	}
	rec, err := r.getByKey(ctx, r.backend.db, def, singletonKey)
	if err != nil {
		return nil, err
	}
	rec[core.FieldID] = canonical
	return rec, nil
}

// SingletonUpsert writes the sentinel row of a singleton table.
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
	out, err := r.upsertRow(ctx, def, singletonKey, rec)
	if err != nil {
		return nil, err
	}
	out[core.FieldID] = canonical
	return out, nil
}

// List returns the records of table matching q.
func (r *Repository) List(ctx context.Context, table string, q storage.ListQuery) ([]core.Record, error) {
	return r.ListWithCounts(ctx, table, nil, q)
}

// ListWithCounts lists records with one count column per relation.
// Each count is a LEFT JOIN against the grouped junction table, so records
// without related rows report 0.
func (r *Repository) ListWithCounts(ctx context.Context, table string, counts []storage.CountSpec, q storage.ListQuery) ([]core.Record, error) {
	def, err := storage.ValidateQuery(table, q)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateCounts(def, counts); err != nil {
		return nil, err
	}
	where, args, err := r.buildWhere(def, q.Filters, "t")
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectColumns(def, "t"))
	var joins strings.Builder
	aliases := make([]string, len(counts))
	for i, c := range counts {
		rel, _ := storage.Relation(c.Relation)
		col, _ := rel.ColumnFor(table)
		fmt.Fprintf(&sb, ", COALESCE(c%d.n, 0) AS %s", i, c.Alias)
		fmt.Fprintf(&joins, " LEFT JOIN (SELECT %[1]s AS ref, COUNT(*) AS n FROM %[2]s WHERE %[1]s IS NOT NULL GROUP BY %[1]s) c%[3]d ON c%[3]d.ref = t.id",
			col, rel.Junction, i)
		aliases[i] = c.Alias
	}
	fmt.Fprintf(&sb, " FROM %s t", def.Name)
	sb.WriteString(joins.String())
	sb.WriteString(where)
	sb.WriteString(orderClause(def, q.OrderBy, "t"))
	args = append(args, limitClause(&sb, q)...)

	rows, err := r.backend.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError(err)
	}
	return r.scanRecords(rows, def, aliases)
}

// buildWhere renders equality filters in a stable column order.
func (r *Repository) buildWhere(def *storage.TableDef, filters map[string]any, alias string) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var conds []string
	var args []any
	for _, name := range slices.Sorted(maps.Keys(filters)) {
		v := filters[name]
		col := alias + "." + columnName(def.Name, name)
		if v == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		var enc any
		if name == core.FieldID {
			id, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: id filter must be an identifier", storage.ErrInvalidFilter)
			}
			_, key, err := resolve(def.Name, id)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %w", storage.ErrInvalidFilter, err)
			}
			enc = key
		} else {
			f, _ := def.Field(name)
			var err error
			enc, err = encodeValue(f, v, r.codec)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %w", storage.ErrInvalidFilter, err)
			}
		}
		conds = append(conds, col+" = ?")
		args = append(args, enc)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func orderClause(def *storage.TableDef, ob *storage.OrderBy, alias string) string {
	if ob == nil {
		return " ORDER BY " + alias + ".id"
	}
	dir := "ASC"
	if ob.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s.%s %s, %s.id %s", alias, columnName(def.Name, ob.Field), dir, alias, dir)
}

// limitClause appends LIMIT/OFFSET and returns their arguments.
func limitClause(sb *strings.Builder, q storage.ListQuery) []any {
	switch {
	case q.Limit > 0:
		sb.WriteString(" LIMIT ? OFFSET ?")
		return []any{q.Limit, q.Offset}
	case q.Offset > 0:
		sb.WriteString(" LIMIT -1 OFFSET ?")
		return []any{q.Offset}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

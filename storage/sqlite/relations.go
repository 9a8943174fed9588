package sqlite

import (
	"context"
	"fmt"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// junctionEndpoints resolves both identifiers of a relation to junction columns and keys.
func junctionEndpoints(sourceID, relation, targetID string) (*storage.RelationDef, [2]string, [2]int64, error) {
	var cols [2]string
	var keys [2]int64
	rel, err := storage.Relation(relation)
	if err != nil {
		return nil, cols, keys, err
	}
	src, err := core.ParseID(sourceID)
	if err != nil {
		return nil, cols, keys, err
	}
	dst, err := core.ParseID(targetID)
	if err != nil {
		return nil, cols, keys, err
	}
	if err := rel.CheckEndpoints(src, dst); err != nil {
		return nil, cols, keys, err
	}
	if keys[0], err = src.IntKey(); err != nil {
		return nil, cols, keys, err
	}
	if keys[1], err = dst.IntKey(); err != nil {
		return nil, cols, keys, err
	}
	cols[0] = rel.SourceColumn
	cols[1] = rel.Targets[dst.Table]
	return rel, cols, keys, nil
}

// AddRelation inserts a junction row. An existing row is left alone.
func (r *Repository) AddRelation(ctx context.Context, sourceID, relation, targetID string) error {
	rel, cols, keys, err := junctionEndpoints(sourceID, relation, targetID)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, created) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		rel.Junction, cols[0], cols[1])
	if _, err := r.backend.db.ExecContext(ctx, query, keys[0], keys[1], formatTime(r.now())); err != nil {
		return mapError(err)
	}
	return nil
}

// RemoveRelation deletes a junction row if present.
func (r *Repository) RemoveRelation(ctx context.Context, sourceID, relation, targetID string) error {
	rel, cols, keys, err := junctionEndpoints(sourceID, relation, targetID)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", rel.Junction, cols[0], cols[1])
	if _, err := r.backend.db.ExecContext(ctx, query, keys[0], keys[1]); err != nil {
		return mapError(err)
	}
	return nil
}

// CheckRelation reports whether a junction row exists.
func (r *Repository) CheckRelation(ctx context.Context, sourceID, relation, targetID string) (bool, error) {
	rel, cols, keys, err := junctionEndpoints(sourceID, relation, targetID)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ? AND %s = ?)", rel.Junction, cols[0], cols[1])
	var exists bool
	if err := r.backend.db.QueryRowContext(ctx, query, keys[0], keys[1]).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// GetRelated joins through the relation's junction table from sourceID to
// records of targetTable, most recently updated first.
func (r *Repository) GetRelated(ctx context.Context, sourceTable, sourceID, relation, targetTable string) ([]core.Record, error) {
	rel, err := storage.Relation(relation)
	if err != nil {
		return nil, err
	}
	fromCol, toCol, err := rel.Direction(sourceTable, targetTable)
	if err != nil {
		return nil, err
	}
	_, key, err := resolve(sourceTable, sourceID)
	if err != nil {
		return nil, err
	}
	def, err := storage.Table(targetTable)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s t JOIN %s j ON j.%s = t.id WHERE j.%s = ? ORDER BY t.updated DESC, t.id DESC",
		selectColumns(def, "t"), def.Name, rel.Junction, toCol, fromCol)
	rows, err := r.backend.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, mapError(err)
	}
	return r.scanRecords(rows, def, nil)
}

package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// Edges are stored twice: forward under the source record and reverse under
// the target, so GetRelated and the count columns can walk either way with a
// prefix scan.

func edgeEndpoints(sourceID, relation, targetID string) (*storage.RelationDef, core.RecordID, core.RecordID, error) {
	rel, err := storage.Relation(relation)
	if err != nil {
		return nil, core.RecordID{}, core.RecordID{}, err
	}
	src, err := core.ParseID(sourceID)
	if err != nil {
		return nil, core.RecordID{}, core.RecordID{}, err
	}
	dst, err := core.ParseID(targetID)
	if err != nil {
		return nil, core.RecordID{}, core.RecordID{}, err
	}
	if err := rel.CheckEndpoints(src, dst); err != nil {
		return nil, core.RecordID{}, core.RecordID{}, err
	}
	return rel, src, dst, nil
}

// AddRelation stores the edge pair. Both records must exist.
func (r *Repository) AddRelation(ctx context.Context, sourceID, relation, targetID string) error {
	rel, src, dst, err := edgeEndpoints(sourceID, relation, targetID)
	if err != nil {
		return err
	}
	created := r.now()
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, id := range []core.RecordID{src, dst} {
			ok, err := exists(tx, r.keys.record(id.Table, id.Key))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: FOREIGN KEY constraint failed: %s -> %s", storage.ErrConstraintViolation, rel.Name, id)
			}
		}
		fwd := r.keys.edge(rel.Name, sourceID, targetID)
		ok, err := exists(tx, fwd)
		if err != nil || ok {
			return err
		}
		if err := setJSON(tx, fwd, created); err != nil {
			return err
		}
		if err := setJSON(tx, r.keys.reverseEdge(rel.Name, targetID, sourceID), created); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// RemoveRelation deletes the edge pair if present.
func (r *Repository) RemoveRelation(ctx context.Context, sourceID, relation, targetID string) error {
	rel, _, _, err := edgeEndpoints(sourceID, relation, targetID)
	if err != nil {
		return err
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := tx.Delete(r.keys.edge(rel.Name, sourceID, targetID)); err != nil {
			return err
		}
		if err := tx.Delete(r.keys.reverseEdge(rel.Name, targetID, sourceID)); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// CheckRelation reports whether the forward edge exists.
func (r *Repository) CheckRelation(ctx context.Context, sourceID, relation, targetID string) (bool, error) {
	rel, _, _, err := edgeEndpoints(sourceID, relation, targetID)
	if err != nil {
		return false, err
	}
	var found bool
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		found, err = exists(tx, r.keys.edge(rel.Name, sourceID, targetID))
		return err
	}, false)
	return found, err
}

// GetRelated follows forward edges when sourceTable is the relation's source,
// reverse edges otherwise, and keeps the neighbours of targetTable.
func (r *Repository) GetRelated(ctx context.Context, sourceTable, sourceID, relation, targetTable string) ([]core.Record, error) {
	rel, err := storage.Relation(relation)
	if err != nil {
		return nil, err
	}
	if _, _, err := rel.Direction(sourceTable, targetTable); err != nil {
		return nil, err
	}
	if _, _, err := resolve(sourceTable, sourceID); err != nil {
		return nil, err
	}
	def, err := storage.Table(targetTable)
	if err != nil {
		return nil, err
	}

	family := edgePrefix
	if sourceTable != rel.SourceTable {
		family = reverseEdgePrefix
	}

	out := []core.Record{}
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, r.keys.prefix(family, rel.Name, sourceID), true, func(suffix []byte, _ *badger.Item) error {
			nid, err := core.ParseID(string(suffix))
			if err != nil {
				return err
			}
			if nid.Table != targetTable {
				return nil
			}
			rec, err := r.loadRecord(tx, def, nid.Key)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b core.Record) int {
		if c := compareValues(b[core.FieldUpdated], a[core.FieldUpdated]); c != 0 {
			return c
		}
		return cmp.Compare(b.ID(), a.ID())
	})
	return out, nil
}

// countEdges counts the edges of relation attached to id on table's side.
func (r *Repository) countEdges(tx *badger.Txn, relation, table, id string) (int, error) {
	rel, err := storage.Relation(relation)
	if err != nil {
		return 0, err
	}
	family := edgePrefix
	if table != rel.SourceTable {
		family = reverseEdgePrefix
	}
	n := 0
	err = scanPrefix(tx, r.keys.prefix(family, rel.Name, id), true, func([]byte, *badger.Item) error {
		n++
		return nil
	})
	return n, err
}

// deleteEdges drops every edge touching id in either direction.
func (r *Repository) deleteEdges(tx *badger.Txn, def *storage.TableDef, id string) error {
	for _, rel := range storage.RelationsTouching(def.Name) {
		family, mirror := edgePrefix, reverseEdgePrefix
		if def.Name != rel.SourceTable {
			family, mirror = reverseEdgePrefix, edgePrefix
		}
		var peers []string
		err := scanPrefix(tx, r.keys.prefix(family, rel.Name, id), true, func(suffix []byte, _ *badger.Item) error {
			peers = append(peers, string(suffix))
			return nil
		})
		if err != nil {
			return err
		}
		for _, peer := range peers {
			if err := tx.Delete(r.keys.key(family, rel.Name, id, peer)); err != nil {
				return err
			}
			if err := tx.Delete(r.keys.key(mirror, rel.Name, peer, id)); err != nil {
				return err
			}
		}
	}
	return nil
}

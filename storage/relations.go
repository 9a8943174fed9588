package storage

import (
	"fmt"
	"maps"
	"slices"

	"github.com/poiesic/notebase/core"
)

// RelationDef describes a named directed edge and the junction table backing it.
//
// The source endpoint lives in SourceColumn; each allowed target table maps to
// the junction column holding it.
type RelationDef struct {
	Name         string
	Junction     string
	SourceTable  string
	SourceColumn string
	Targets      map[string]string
}

// ColumnFor returns the junction column that holds records of table.
func (r *RelationDef) ColumnFor(table string) (string, bool) {
	if table == r.SourceTable {
		return r.SourceColumn, true
	}
	col, ok := r.Targets[table]
	return col, ok
}

// TargetTables returns the allowed target tables, sorted.
func (r *RelationDef) TargetTables() []string {
	return slices.Sorted(maps.Keys(r.Targets))
}

// CheckEndpoints verifies that src and dst are legal endpoints of the relation.
func (r *RelationDef) CheckEndpoints(src, dst core.RecordID) error {
	if src.Table != r.SourceTable {
		return fmt.Errorf("%w: %s cannot start at %s", ErrRelationUnknown, r.Name, src.Table)
	}
	if _, ok := r.Targets[dst.Table]; !ok {
		return fmt.Errorf("%w: %s cannot point at %s", ErrRelationUnknown, r.Name, dst.Table)
	}
	return nil
}

var relations = map[string]*RelationDef{
	core.RelationReference: {
		Name:         core.RelationReference,
		Junction:     "source_notebook",
		SourceTable:  core.TableSource,
		SourceColumn: "source_id",
		Targets:      map[string]string{core.TableNotebook: "notebook_id"},
	},
	core.RelationArtifact: {
		Name:         core.RelationArtifact,
		Junction:     "note_notebook",
		SourceTable:  core.TableNote,
		SourceColumn: "note_id",
		Targets:      map[string]string{core.TableNotebook: "notebook_id"},
	},
	core.RelationRefersTo: {
		Name:         core.RelationRefersTo,
		Junction:     "chat_session_reference",
		SourceTable:  core.TableChatSession,
		SourceColumn: "chat_session_id",
		Targets: map[string]string{
			core.TableNotebook: "notebook_id",
			core.TableSource:   "source_id",
		},
	},
}

// Relation returns the definition of a named relation.
func Relation(name string) (*RelationDef, error) {
	def, ok := relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRelationUnknown, name)
	}
	return def, nil
}

// RelationsTouching returns every relation in which table participates, sorted by name.
func RelationsTouching(table string) []*RelationDef {
	var out []*RelationDef
	for _, name := range slices.Sorted(maps.Keys(relations)) {
		def := relations[name]
		if _, ok := def.ColumnFor(table); ok {
			out = append(out, def)
		}
	}
	return out
}

// Direction resolves the junction columns for walking the relation from
// fromTable to toTable. One side must be the relation's source table.
func (r *RelationDef) Direction(fromTable, toTable string) (fromCol, toCol string, err error) {
	if fromTable != r.SourceTable && toTable != r.SourceTable {
		return "", "", fmt.Errorf("%w: %s does not link %s to %s", ErrRelationUnknown, r.Name, fromTable, toTable)
	}
	fromCol, ok := r.ColumnFor(fromTable)
	if !ok {
		return "", "", fmt.Errorf("%w: %s does not involve %s", ErrRelationUnknown, r.Name, fromTable)
	}
	toCol, ok = r.ColumnFor(toTable)
	if !ok || fromCol == toCol {
		return "", "", fmt.Errorf("%w: %s does not involve %s", ErrRelationUnknown, r.Name, toTable)
	}
	return fromCol, toCol, nil
}

package storage

import (
	"fmt"
	"slices"

	"github.com/poiesic/notebase/core"
)

// FieldKind tells engines how to store and restore a field value.
type FieldKind int

const (
	KindText FieldKind = iota
	KindInt
	KindBool
	KindTime
	KindJSON
	KindEmbedding
	KindRef
)

// Field is one domain field of a table.
// Ref names the referenced table for KindRef fields.
type Field struct {
	Name string
	Kind FieldKind
	Ref  string
}

// TableDef is the declarative description of one supported table.
type TableDef struct {
	Name   string
	Fields []Field

	// Parent is the KindRef field pointing at the owning record.
	// Owned records are deleted together with their owner.
	Parent string

	// Singleton tables hold exactly one record.
	Singleton bool

	// TextFields are mirrored into the full-text index, in index column order.
	TextFields []string

	// Unique fields are required and may not repeat across records.
	Unique []string
}

// Field returns the named field definition.
func (t *TableDef) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether name is a column of the table. "id" always is.
func (t *TableDef) HasField(name string) bool {
	if name == core.FieldID {
		return true
	}
	_, ok := t.Field(name)
	return ok
}

// HasEmbedding reports whether the table stores an embedding.
func (t *TableDef) HasEmbedding() bool {
	f, ok := t.Field(core.FieldEmbedding)
	return ok && f.Kind == KindEmbedding
}

func timestamps() []Field {
	return []Field{{Name: core.FieldCreated, Kind: KindTime}, {Name: core.FieldUpdated, Kind: KindTime}}
}

func table(def TableDef) *TableDef {
	if !def.Singleton {
		def.Fields = append(def.Fields, timestamps()...)
	} else {
		def.Fields = append(def.Fields, Field{Name: core.FieldUpdated, Kind: KindTime})
	}
	return &def
}

var schema = map[string]*TableDef{
	core.TableNotebook: table(TableDef{
		Name: core.TableNotebook,
		Fields: []Field{
			{Name: "name", Kind: KindText},
			{Name: "description", Kind: KindText},
			{Name: "archived", Kind: KindBool},
		},
	}),
	core.TableSource: table(TableDef{
		Name: core.TableSource,
		Fields: []Field{
			{Name: "title", Kind: KindText},
			{Name: "topics", Kind: KindJSON},
			{Name: "full_text", Kind: KindText},
			{Name: "asset", Kind: KindJSON},
			{Name: "command", Kind: KindText},
		},
		TextFields: []string{"title", "full_text"},
	}),
	core.TableSourceEmbedding: table(TableDef{
		Name: core.TableSourceEmbedding,
		Fields: []Field{
			{Name: "source", Kind: KindRef, Ref: core.TableSource},
			{Name: "chunk_order", Kind: KindInt},
			{Name: "content", Kind: KindText},
			{Name: "content_hash", Kind: KindText},
			{Name: core.FieldEmbedding, Kind: KindEmbedding},
		},
		Parent:     "source",
		TextFields: []string{"content"},
	}),
	core.TableSourceInsight: table(TableDef{
		Name: core.TableSourceInsight,
		Fields: []Field{
			{Name: "source", Kind: KindRef, Ref: core.TableSource},
			{Name: "insight_type", Kind: KindText},
			{Name: "content", Kind: KindText},
			{Name: core.FieldEmbedding, Kind: KindEmbedding},
		},
		Parent:     "source",
		TextFields: []string{"content"},
	}),
	core.TableNote: table(TableDef{
		Name: core.TableNote,
		Fields: []Field{
			{Name: "title", Kind: KindText},
			{Name: "note_type", Kind: KindText},
			{Name: "content", Kind: KindText},
			{Name: "summary", Kind: KindText},
			{Name: core.FieldEmbedding, Kind: KindEmbedding},
		},
		TextFields: []string{"title", "content"},
	}),
	core.TableChatSession: table(TableDef{
		Name: core.TableChatSession,
		Fields: []Field{
			{Name: "title", Kind: KindText},
			{Name: "model_override", Kind: KindText},
		},
	}),
	core.TableTransformation: table(TableDef{
		Name:   core.TableTransformation,
		Unique: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindText},
			{Name: "title", Kind: KindText},
			{Name: "description", Kind: KindText},
			{Name: "prompt", Kind: KindText},
			{Name: "apply_default", Kind: KindBool},
		},
	}),
	core.TableEpisodeProfile: table(TableDef{
		Name:   core.TableEpisodeProfile,
		Unique: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindText},
			{Name: "description", Kind: KindText},
			{Name: "speaker_config", Kind: KindText},
			{Name: "outline_model", Kind: KindText},
			{Name: "transcript_model", Kind: KindText},
			{Name: "num_segments", Kind: KindInt},
		},
	}),
	core.TableSpeakerProfile: table(TableDef{
		Name:   core.TableSpeakerProfile,
		Unique: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindText},
			{Name: "description", Kind: KindText},
			{Name: "tts_model", Kind: KindText},
			{Name: "speakers", Kind: KindJSON},
		},
	}),
	core.TableEpisode: table(TableDef{
		Name: core.TableEpisode,
		Fields: []Field{
			{Name: "name", Kind: KindText},
			{Name: "episode_profile", Kind: KindJSON},
			{Name: "speaker_profile", Kind: KindJSON},
			{Name: "briefing", Kind: KindText},
			{Name: "content", Kind: KindText},
			{Name: "audio_file", Kind: KindText},
			{Name: "transcript", Kind: KindJSON},
			{Name: "outline", Kind: KindJSON},
			{Name: "command", Kind: KindText},
		},
	}),
	core.TableDefaultModels: table(TableDef{
		Name:      core.TableDefaultModels,
		Singleton: true,
		Fields: []Field{
			{Name: "default_chat_model", Kind: KindText},
			{Name: "default_transformation_model", Kind: KindText},
			{Name: "large_context_model", Kind: KindText},
			{Name: "default_embedding_model", Kind: KindText},
			{Name: "default_tts_model", Kind: KindText},
			{Name: "default_stt_model", Kind: KindText},
		},
	}),
	core.TableContentSettings: table(TableDef{
		Name:      core.TableContentSettings,
		Singleton: true,
		Fields: []Field{
			{Name: "default_content_processing_engine_doc", Kind: KindText},
			{Name: "default_content_processing_engine_url", Kind: KindText},
			{Name: "default_embedding_option", Kind: KindText},
			{Name: "auto_delete_files", Kind: KindText},
			{Name: "youtube_preferred_languages", Kind: KindJSON},
		},
	}),
	core.TableDefaultPrompts: table(TableDef{
		Name:      core.TableDefaultPrompts,
		Singleton: true,
		Fields: []Field{
			{Name: "transformation_instructions", Kind: KindText},
		},
	}),
}

// Table returns the definition of a supported table.
func Table(name string) (*TableDef, error) {
	def, ok := schema[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return def, nil
}

// Tables returns the names of every supported table, sorted.
func Tables() []string {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Children returns the tables whose records are owned by records of table.
func Children(table string) []*TableDef {
	var out []*TableDef
	for _, name := range Tables() {
		def := schema[name]
		if def.Parent == "" {
			continue
		}
		if f, _ := def.Field(def.Parent); f.Ref == table {
			out = append(out, def)
		}
	}
	return out
}

// ValidateQuery checks that every filter and order-by column exists on table.
func ValidateQuery(table string, q ListQuery) (*TableDef, error) {
	def, err := Table(table)
	if err != nil {
		return nil, err
	}
	for name := range q.Filters {
		if !def.HasField(name) {
			return nil, fmt.Errorf("%w: %s has no column %q", ErrInvalidFilter, table, name)
		}
		if f, _ := def.Field(name); f.Kind == KindEmbedding || f.Kind == KindJSON {
			return nil, fmt.Errorf("%w: %s.%s cannot be compared for equality", ErrInvalidFilter, table, name)
		}
	}
	if q.OrderBy != nil && !def.HasField(q.OrderBy.Field) {
		return nil, fmt.Errorf("%w: %s has no column %q to order by", ErrInvalidFilter, table, q.OrderBy.Field)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidFilter)
	}
	return def, nil
}

// ValidateCounts checks that every count refers to a relation touching table
// and that aliases do not shadow a column.
func ValidateCounts(def *TableDef, counts []CountSpec) error {
	for _, c := range counts {
		rel, err := Relation(c.Relation)
		if err != nil {
			return err
		}
		if _, ok := rel.ColumnFor(def.Name); !ok {
			return fmt.Errorf("%w: %s does not involve %s", ErrRelationUnknown, c.Relation, def.Name)
		}
		if c.Alias == "" || def.HasField(c.Alias) || !isIdentifier(c.Alias) {
			return fmt.Errorf("%w: bad count alias %q", ErrInvalidFilter, c.Alias)
		}
	}
	return nil
}

// isIdentifier reports whether s is safe to splice into a query as a column alias.
func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

// SingletonNamespace prefixes the conventional singleton identifiers.
const SingletonNamespace = "open_notebook"

// SingletonTable resolves a singleton identifier such as "open_notebook:default_models"
// to its table definition and canonical identifier. A bare table name is accepted too.
func SingletonTable(id string) (*TableDef, string, error) {
	name := id
	if rid, err := core.ParseID(id); err == nil {
		name = rid.Key
	}
	def, err := Table(name)
	if err != nil {
		return nil, "", err
	}
	if !def.Singleton {
		return nil, "", fmt.Errorf("%w: %q is not a singleton table", ErrUnknownTable, name)
	}
	return def, core.FormatID(SingletonNamespace, name), nil
}

// CheckRecord rejects fields that are not columns of the table.
// The id and timestamp fields are owned by the engine and always allowed.
func (t *TableDef) CheckRecord(rec core.Record) error {
	for name := range rec {
		if !t.HasField(name) {
			return fmt.Errorf("%w: %s has no field %q", core.ErrInvalidRecord, t.Name, name)
		}
	}
	return core.ValidateRecord(t.Name, rec)
}

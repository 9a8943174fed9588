package sqlite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// timeLayout is RFC3339 with a fixed nine-digit fraction, so stored
// timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// columnRenames maps domain field names to their column names, per table.
// Fields not listed are stored under their own name.
var columnRenames = map[string]map[string]string{
	core.TableSource:          {"command": "command_id"},
	core.TableEpisode:         {"command": "command_id"},
	core.TableSourceEmbedding: {"source": "source_id"},
	core.TableSourceInsight:   {"source": "source_id"},
}

// columnName returns the column backing a domain field.
func columnName(table, field string) string {
	if col, ok := columnRenames[table][field]; ok {
		return col
	}
	return field
}

// columnNames returns every column of def except id, in schema order.
func columnNames(def *storage.TableDef) []string {
	cols := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		cols[i] = columnName(def.Name, f.Name)
	}
	return cols
}

// encodeValue converts a domain value into its column representation.
func encodeValue(f storage.Field, v any, codec storage.EmbeddingCodec) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case storage.KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case storage.KindInt:
		return toInt64(f.Name, v)
	case storage.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", core.ErrInvalidRecord, f.Name)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case storage.KindTime:
		switch t := v.(type) {
		case time.Time:
			return formatTime(t), nil
		case string:
			parsed, err := parseTime(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidRecord, f.Name, err)
			}
			return formatTime(parsed), nil
		}
		return nil, fmt.Errorf("%w: %s must be a timestamp", core.ErrInvalidRecord, f.Name)
	case storage.KindJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidRecord, f.Name, err)
		}
		return string(data), nil
	case storage.KindEmbedding:
		vec, ok := storage.ToFloat32s(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a float vector", core.ErrInvalidRecord, f.Name)
		}
		return codec.Encode(vec)
	case storage.KindRef:
		switch ref := v.(type) {
		case string:
			rid, err := core.ParseIDFor(f.Ref, ref)
			if err != nil {
				return nil, err
			}
			return rid.IntKey()
		case core.RecordID:
			if ref.Table != f.Ref {
				return nil, fmt.Errorf("%w: %q is not a %s identifier", core.ErrMalformedIdentifier, ref, f.Ref)
			}
			return ref.IntKey()
		}
		return nil, fmt.Errorf("%w: %s must be a %s identifier", core.ErrInvalidRecord, f.Name, f.Ref)
	}
	return nil, fmt.Errorf("unsupported field kind %d", f.Kind)
}

// decodeValue converts a scanned column value back into its domain form.
func decodeValue(f storage.Field, v any, codec storage.EmbeddingCodec) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case storage.KindText:
		return asString(v), nil
	case storage.KindInt:
		return toInt64(f.Name, v)
	case storage.KindBool:
		n, err := toInt64(f.Name, v)
		return n != 0, err
	case storage.KindTime:
		return parseTime(asString(v))
	case storage.KindJSON:
		var out any
		if err := json.Unmarshal([]byte(asString(v)), &out); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Name, err)
		}
		return out, nil
	case storage.KindEmbedding:
		return codec.Decode(v)
	case storage.KindRef:
		n, err := toInt64(f.Name, v)
		if err != nil {
			return nil, err
		}
		return core.FormatIntID(f.Ref, n), nil
	}
	return nil, fmt.Errorf("unsupported field kind %d", f.Kind)
}

// encodeRecord converts a domain record into column names and values.
// Fields absent from rec are omitted; the id field is never included.
func encodeRecord(def *storage.TableDef, rec core.Record, codec storage.EmbeddingCodec) ([]string, []any, error) {
	var cols []string
	var args []any
	for _, f := range def.Fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		enc, err := encodeValue(f, v, codec)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, columnName(def.Name, f.Name))
		args = append(args, enc)
	}
	return cols, args, nil
}

// decodeRow turns the values scanned for "id" plus columnNames(def) into a record.
func decodeRow(def *storage.TableDef, values []any, codec storage.EmbeddingCodec) (core.Record, error) {
	rec := make(core.Record, len(values))
	rec[core.FieldID] = values[0]
	for i, f := range def.Fields {
		v, err := decodeValue(f, values[i+1], codec)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
		}
		rec[f.Name] = v
	}
	return core.NormalizeRecord(rec, def.Name), nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func toInt64(field string, v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidRecord, field)
}

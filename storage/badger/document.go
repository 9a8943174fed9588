package badger

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// document is the stored JSON form of a record: every non-nil field except
// the id and the embedding, which lives under its own vector key.
type document map[string]any

// encodeField converts a domain value to its stored JSON form.
func encodeField(f storage.Field, v any) (any, error) {
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
		return b, nil
	case storage.KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidRecord, f.Name, err)
			}
			return parsed.UTC().Format(time.RFC3339Nano), nil
		}
		return nil, fmt.Errorf("%w: %s must be a timestamp", core.ErrInvalidRecord, f.Name)
	case storage.KindJSON:
		return v, nil
	case storage.KindRef:
		var id string
		switch ref := v.(type) {
		case string:
			id = ref
		case core.RecordID:
			id = ref.String()
		default:
			return nil, fmt.Errorf("%w: %s must be a %s identifier", core.ErrInvalidRecord, f.Name, f.Ref)
		}
		if _, err := core.ParseIDFor(f.Ref, id); err != nil {
			return nil, err
		}
		return id, nil
	}
	return nil, fmt.Errorf("unsupported field kind %d", f.Kind)
}

// decodeField restores the domain form of a value read back from JSON.
func decodeField(f storage.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case storage.KindInt:
		return toInt64(f.Name, v)
	case storage.KindTime:
		s, _ := v.(string)
		return time.Parse(time.RFC3339Nano, s)
	}
	return v, nil
}

// encodeDocument builds the stored document and embedding for rec.
// hasVector reports whether rec carries a non-nil embedding.
func encodeDocument(def *storage.TableDef, rec core.Record, codec storage.EmbeddingCodec) (doc document, vector []float32, hasVector bool, err error) {
	doc = document{}
	for _, f := range def.Fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			continue
		}
		if f.Kind == storage.KindEmbedding {
			vec, ok := storage.ToFloat32s(v)
			if !ok {
				return nil, nil, false, fmt.Errorf("%w: %s must be a float vector", core.ErrInvalidRecord, f.Name)
			}
			native, err := codec.Encode(vec)
			if err != nil {
				return nil, nil, false, err
			}
			vector, _ = native.([]float32)
			hasVector = true
			continue
		}
		enc, err := encodeField(f, v)
		if err != nil {
			return nil, nil, false, err
		}
		doc[f.Name] = enc
	}
	return doc, vector, hasVector, nil
}

// decodeDocument turns stored bytes back into a record carrying every field of def.
func decodeDocument(def *storage.TableDef, id string, raw []byte, vector any, codec storage.EmbeddingCodec) (core.Record, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	rec := make(core.Record, len(def.Fields)+1)
	rec[core.FieldID] = id
	for _, f := range def.Fields {
		if f.Kind == storage.KindEmbedding {
			vec, err := codec.Decode(vector)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
			if vec == nil {
				rec[f.Name] = nil
			} else {
				rec[f.Name] = vec
			}
			continue
		}
		v, err := decodeField(f, doc[f.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", id, f.Name, err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// normalizeFilter converts a filter value to the form decodeDocument produces.
func normalizeFilter(f storage.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	enc, err := encodeField(f, v)
	if err != nil {
		return nil, err
	}
	// Round trip through JSON so numbers and strings match stored values.
	data, err := json.Marshal(enc)
	if err != nil {
		return nil, err
	}
	var back any
	if err := json.Unmarshal(data, &back); err != nil {
		return nil, err
	}
	return decodeField(f, back)
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders decoded field values; nil sorts first, as in SQL ascending order.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
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
	}
	return 0, fmt.Errorf("%w: %s must be an integer", core.ErrInvalidRecord, field)
}

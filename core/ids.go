package core

import (
	"fmt"
	"strconv"
	"strings"
)

// IDSeparator splits the table name from the key in a record identifier.
const IDSeparator = ":"

// RecordID is the engine-independent identity of a stored record.
// Its wire form is "<table>:<key>".
type RecordID struct {
	Table string
	Key   string
}

// FormatID composes the wire form of an identifier. It never fails.
func FormatID(table, key string) string {
	return table + IDSeparator + key
}

// FormatIntID composes the wire form of an identifier with an integer key.
func FormatIntID(table string, key int64) string {
	return FormatID(table, strconv.FormatInt(key, 10))
}

// ParseID splits a wire-form identifier into its table and key.
// The string must contain exactly one separator with non-empty parts on both sides.
func ParseID(id string) (RecordID, error) {
	if strings.Count(id, IDSeparator) != 1 {
		return RecordID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	table, key, _ := strings.Cut(id, IDSeparator)
	if table == "" || key == "" {
		return RecordID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	return RecordID{Table: table, Key: key}, nil
}

// ParseIDFor parses id and checks that it names a record of the given table.
func ParseIDFor(table, id string) (RecordID, error) {
	rid, err := ParseID(id)
	if err != nil {
		return RecordID{}, err
	}
	if rid.Table != table {
		return RecordID{}, fmt.Errorf("%w: %q is not a %s identifier", ErrMalformedIdentifier, id, table)
	}
	return rid, nil
}

// String returns the wire form of the identifier.
func (r RecordID) String() string {
	return FormatID(r.Table, r.Key)
}

// IntKey returns the key as a positive integer row id. Only the canonical
// decimal form is accepted, so the key round-trips through FormatIntID.
func (r RecordID) IntKey() (int64, error) {
	n, err := strconv.ParseInt(r.Key, 10, 64)
	if err != nil || n <= 0 || strconv.FormatInt(n, 10) != r.Key {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, r.String())
	}
	return n, nil
}

// NormalizeRecord rewrites the native primary key held in row["id"] into
// wire form for the given table. Values already in wire form are left alone.
// All other fields pass through unchanged.
func NormalizeRecord(row Record, table string) Record {
	if row == nil {
		return nil
	}
	switch v := row["id"].(type) {
	case int64:
		row["id"] = FormatIntID(table, v)
	case int:
		row["id"] = FormatIntID(table, int64(v))
	case string:
		if !strings.Contains(v, IDSeparator) {
			row["id"] = FormatID(table, v)
		}
	}
	return row
}

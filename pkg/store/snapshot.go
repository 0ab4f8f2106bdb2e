package store

import "github.com/goliatone/go-formstate/pkg/model"

// Snapshot is an immutable view of the value tree at one version.
type Snapshot struct {
	schema  *model.Schema
	values  map[string]any
	version uint64
}

// Version returns the store version the snapshot was taken at.
func (s Snapshot) Version() uint64 {
	return s.version
}

// Get reads key; ok is false for undeclared keys and missing rows.
func (s Snapshot) Get(key string) (any, bool) {
	if s.schema == nil {
		return nil, false
	}
	k, _, err := s.schema.Lookup(key)
	if err != nil {
		return nil, false
	}
	value, err := read(s.values, k, key)
	if err != nil {
		return nil, false
	}
	return cloneValue(value), true
}

// Rows returns a copy of the rows of a row group.
func (s Snapshot) Rows(group string) Rows {
	rows, _ := s.values[group].(Rows)
	return rows.Clone()
}

// RowKeys returns the row keys of every row group.
func (s Snapshot) RowKeys() map[string][]string {
	out := make(map[string][]string)
	for id, value := range s.values {
		if rows, ok := value.(Rows); ok {
			out[id] = rows.Keys()
		}
	}
	return out
}

// Values returns a plain deep copy of the tree; row groups become []any of
// objects without their keys.
func (s Snapshot) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for id, value := range s.values {
		out[id] = deepCopy(value)
	}
	return out
}

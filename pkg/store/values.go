package store

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/goliatone/go-formstate/pkg/model"
)

// Row is one record of a row group. Values is treated as immutable once the
// row is stored; writes replace the map.
type Row struct {
	Key    string
	Values map[string]any
}

// Rows is the value of a row group field.
type Rows []Row

// Keys returns the row keys in order.
func (r Rows) Keys() []string {
	if len(r) == 0 {
		return nil
	}
	out := make([]string, len(r))
	for i, row := range r {
		out[i] = row.Key
	}
	return out
}

// Index returns the position of key, or -1.
func (r Rows) Index(key string) int {
	for i, row := range r {
		if row.Key == key {
			return i
		}
	}
	return -1
}

// normalize coerces value into the canonical representation of field's type.
func normalize(schema *model.Schema, key string, field *model.Field, value any, newKey func() string) (any, error) {
	if value == nil {
		return nil, nil
	}
	shapeErr := func(why string) error {
		return &ShapeError{Key: key, Type: field.Type, Value: value, Why: why}
	}

	switch field.Type {
	case model.FieldTypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, shapeErr("")
	case model.FieldTypeNumber, model.FieldTypeInteger:
		if s, ok := value.(string); ok {
			// raw user input; validation coerces it
			return s, nil
		}
		n, ok := toFloat(value)
		if !ok {
			return nil, shapeErr("")
		}
		return n, nil
	case model.FieldTypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, shapeErr("")
	case model.FieldTypeArray:
		return normalizeScalars(value, shapeErr)
	case model.FieldTypeRows:
		return normalizeRows(schema, key, field, value, nil, newKey, shapeErr)
	default:
		return nil, shapeErr("unknown type")
	}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func normalizeScalar(value any) (any, bool) {
	switch v := value.(type) {
	case nil, string, bool:
		return v, true
	default:
		return toFloat(value)
	}
}

func normalizeScalars(value any, shapeErr func(string) error) (any, error) {
	switch items := value.(type) {
	case []any:
		out := make([]any, len(items))
		for i, item := range items {
			scalar, ok := normalizeScalar(item)
			if !ok {
				return nil, shapeErr(fmt.Sprintf("item %d is %T, want a scalar", i, item))
			}
			out[i] = scalar
		}
		return out, nil
	case []string:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, nil
	case []float64:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, nil
	case []int:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = float64(item)
		}
		return out, nil
	case []bool:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, nil
	default:
		return nil, shapeErr("")
	}
}

// normalizeRows coerces value into Rows. A canonical row keeps its Values map
// only when that map is the one stored under the same key; any other map is
// copied so the caller cannot reach into the store through it.
func normalizeRows(schema *model.Schema, key string, field *model.Field, value any, stored Rows, newKey func() string, shapeErr func(string) error) (any, error) {
	var out Rows
	seen := make(map[string]struct{})

	appendRow := func(rowKey string, values map[string]any) error {
		if rowKey == "" {
			rowKey = newKey()
		}
		if _, dup := seen[rowKey]; dup {
			return shapeErr(fmt.Sprintf("duplicate row key %q", rowKey))
		}
		seen[rowKey] = struct{}{}
		row, err := buildRow(schema, field, rowKey, values, newKey)
		if err != nil {
			return err
		}
		out = append(out, row)
		return nil
	}

	switch rows := value.(type) {
	case Rows:
		out = make(Rows, 0, len(rows))
		for _, row := range rows {
			if row.Key != "" && canonical(schema, field, row) {
				if _, dup := seen[row.Key]; dup {
					return nil, shapeErr(fmt.Sprintf("duplicate row key %q", row.Key))
				}
				seen[row.Key] = struct{}{}
				if !stored.holds(row) {
					row = Row{Key: row.Key, Values: cloneCells(row.Values)}
				}
				out = append(out, row)
				continue
			}
			if err := appendRow(row.Key, row.Values); err != nil {
				return nil, err
			}
		}
	case []Row:
		return normalizeRows(schema, key, field, Rows(rows), stored, newKey, shapeErr)
	case []map[string]any:
		out = make(Rows, 0, len(rows))
		for _, values := range rows {
			if err := appendRow("", values); err != nil {
				return nil, err
			}
		}
	case []any:
		out = make(Rows, 0, len(rows))
		for i, item := range rows {
			values, ok := item.(map[string]any)
			if !ok {
				return nil, shapeErr(fmt.Sprintf("row %d is %T, want an object", i, item))
			}
			if err := appendRow("", values); err != nil {
				return nil, err
			}
		}
	default:
		return nil, shapeErr("")
	}
	return out, nil
}

// holds reports whether row carries the exact Values map stored for its key.
func (r Rows) holds(row Row) bool {
	idx := r.Index(row.Key)
	if idx < 0 {
		return false
	}
	return reflect.ValueOf(r[idx].Values).UnsafePointer() == reflect.ValueOf(row.Values).UnsafePointer()
}

// Clone returns a copy of the rows whose Values maps can be modified freely.
func (r Rows) Clone() Rows {
	if r == nil {
		return nil
	}
	out := make(Rows, len(r))
	for i, row := range r {
		out[i] = Row{Key: row.Key, Values: cloneCells(row.Values)}
	}
	return out
}

func cloneCells(cells map[string]any) map[string]any {
	out := make(map[string]any, len(cells))
	for id, v := range cells {
		out[id] = cloneValue(v)
	}
	return out
}

// cloneValue copies the mutable shapes a stored value can take and keeps
// Rows typed.
func cloneValue(value any) any {
	switch typed := value.(type) {
	case Rows:
		return typed.Clone()
	case []any:
		return append([]any(nil), typed...)
	default:
		return typed
	}
}

// canonical reports whether row already holds exactly the declared columns in
// normalised form, so it can be stored as is and keep its identity.
func canonical(schema *model.Schema, group *model.Field, row Row) bool {
	children := schema.Children(group.ID)
	if len(row.Values) != len(children) {
		return false
	}
	for _, child := range children {
		value, ok := row.Values[child.ID]
		if !ok {
			return false
		}
		if !canonicalCell(child, value) {
			return false
		}
	}
	return true
}

func canonicalCell(field *model.Field, value any) bool {
	if value == nil {
		return true
	}
	switch field.Type {
	case model.FieldTypeString:
		_, ok := value.(string)
		return ok
	case model.FieldTypeNumber, model.FieldTypeInteger:
		switch value.(type) {
		case float64, string:
			return true
		}
		return false
	case model.FieldTypeBoolean:
		_, ok := value.(bool)
		return ok
	case model.FieldTypeArray:
		items, ok := value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			switch item.(type) {
			case nil, string, bool, float64:
			default:
				return false
			}
		}
		return true
	default:
		return false
	}
}

// buildRow seeds child defaults and overlays values, normalising each cell.
func buildRow(schema *model.Schema, group *model.Field, rowKey string, values map[string]any, newKey func() string) (Row, error) {
	children := schema.Children(group.ID)
	cells := make(map[string]any, len(children))
	for _, child := range children {
		def, err := normalize(schema, model.CellKey(group.ID, rowKey, child.ID), child, child.Default, newKey)
		if err != nil {
			return Row{}, err
		}
		cells[child.ID] = def
	}
	for id, raw := range values {
		child, ok := schema.Child(group.ID, id)
		if !ok {
			return Row{}, &ShapeError{Key: group.ID, Type: group.Type, Value: values, Why: fmt.Sprintf("undeclared column %q", id)}
		}
		cell, err := normalize(schema, model.CellKey(group.ID, rowKey, id), child, raw, newKey)
		if err != nil {
			return Row{}, err
		}
		cells[id] = cell
	}
	return Row{Key: rowKey, Values: cells}, nil
}

// deepCopy returns a plain copy of value; rows become []any of objects.
func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, v := range typed {
			clone[k] = deepCopy(v)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case Rows:
		clone := make([]any, len(typed))
		for i, row := range typed {
			clone[i] = deepCopy(row.Values)
		}
		return clone
	default:
		return typed
	}
}

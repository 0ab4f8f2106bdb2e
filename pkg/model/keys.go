package model

import (
	"fmt"
	"strings"
)

// Key is a parsed store or effect key. Row is set for cells; Child without Row
// is a column reference.
type Key struct {
	Field string
	Row   string
	Child string
}

// IsCell reports whether the key addresses a row group cell.
func (k Key) IsCell() bool { return k.Row != "" }

// IsColumn reports whether the key is a column reference.
func (k Key) IsColumn() bool { return k.Row == "" && k.Child != "" }

// Column returns the column reference of a cell or column key.
func (k Key) Column() string {
	if k.Child == "" {
		return ""
	}
	return ColumnKey(k.Field, k.Child)
}

func (k Key) String() string {
	switch {
	case k.Row != "":
		return CellKey(k.Field, k.Row, k.Child)
	case k.Child != "":
		return ColumnKey(k.Field, k.Child)
	default:
		return k.Field
	}
}

// CellKey builds the composite key of a row group cell.
func CellKey(group, row, child string) string {
	return group + "[" + row + "]." + child
}

// ColumnKey builds a column reference.
func ColumnKey(group, child string) string {
	return group + "." + child
}

// RowPrefix is the prefix shared by every cell key of one row.
func RowPrefix(group, row string) string {
	return group + "[" + row + "]."
}

// ParseKey splits raw into its components without consulting a schema.
func ParseKey(raw string) (Key, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return Key{}, fmt.Errorf("model: empty key")
	}
	if open := strings.IndexByte(key, '['); open >= 0 {
		end := strings.Index(key, "].")
		if open == 0 || end < open+2 || end+2 >= len(key) {
			return Key{}, fmt.Errorf("model: malformed cell key %q", raw)
		}
		k := Key{Field: key[:open], Row: key[open+1 : end], Child: key[end+2:]}
		if strings.ContainsAny(k.Child, ".[]") || strings.ContainsAny(k.Row, "[]") {
			return Key{}, fmt.Errorf("model: malformed cell key %q", raw)
		}
		return k, nil
	}
	if strings.ContainsRune(key, ']') {
		return Key{}, fmt.Errorf("model: malformed key %q", raw)
	}
	if dot := strings.IndexByte(key, '.'); dot >= 0 {
		if dot == 0 || dot == len(key)-1 || strings.Count(key, ".") > 1 {
			return Key{}, fmt.Errorf("model: malformed column key %q", raw)
		}
		return Key{Field: key[:dot], Child: key[dot+1:]}, nil
	}
	return Key{Field: key}, nil
}

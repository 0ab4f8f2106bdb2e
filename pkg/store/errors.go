package store

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-formstate/pkg/model"
)

// ErrUnknownRow is returned when a cell key names a row that does not exist.
var ErrUnknownRow = errors.New("store: unknown row")

// ShapeError reports a value whose shape does not fit the field's declared
// type. The store is left untouched.
type ShapeError struct {
	Key   string
	Type  model.FieldType
	Value any
	Why   string
}

func (e *ShapeError) Error() string {
	if e.Why != "" {
		return fmt.Sprintf("store: field %q (%s) cannot hold %T: %s", e.Key, e.Type, e.Value, e.Why)
	}
	return fmt.Sprintf("store: field %q (%s) cannot hold %T", e.Key, e.Type, e.Value)
}

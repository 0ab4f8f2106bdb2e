package rowgroup

import (
	"errors"
	"fmt"
)

// ErrNotRowGroup reports an operation on a field that is not a row group.
var ErrNotRowGroup = errors.New("rowgroup: field is not a row group")

// RowNotDeletableError reports a deletion that would drop the group below its
// minRow bound. No mutation was performed.
type RowNotDeletableError struct {
	Group  string
	Row    string
	Rows   int
	MinRow int
}

func (e *RowNotDeletableError) Error() string {
	return fmt.Sprintf("rowgroup: cannot delete row %q of %q: %d rows, minRow %d", e.Row, e.Group, e.Rows, e.MinRow)
}

// RowNotAddableError reports an addition that would exceed the group's maxRow
// bound. No mutation was performed.
type RowNotAddableError struct {
	Group  string
	Rows   int
	MaxRow int
}

func (e *RowNotAddableError) Error() string {
	return fmt.Sprintf("rowgroup: cannot add a row to %q: %d rows, maxRow %d", e.Group, e.Rows, e.MaxRow)
}

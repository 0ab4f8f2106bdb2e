package store

// StoredRows returns the rows held by snap without copying them.
func StoredRows(snap Snapshot, group string) Rows {
	rows, _ := snap.values[group].(Rows)
	return rows
}

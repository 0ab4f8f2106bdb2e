// Package rowgroup manages the rows of repeatable field groups: adding and
// removing rows within their declared bounds, reordering them and resolving
// their column span layout.
package rowgroup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// RowObserver keeps per-row state and drops it when a row is removed.
type RowObserver interface {
	ForgetRow(group, row string)
}

// RowObserverFunc adapts a function to RowObserver.
type RowObserverFunc func(group, row string)

// ForgetRow implements RowObserver.
func (fn RowObserverFunc) ForgetRow(group, row string) { fn(group, row) }

// ChangeHook receives every write the manager applies to a group.
type ChangeHook func(ctx context.Context, change store.Change)

// Option configures a Manager.
type Option func(*Manager)

// WithObservers registers observers notified after a row is deleted.
func WithObservers(observers ...RowObserver) Option {
	return func(m *Manager) {
		for _, obs := range observers {
			if obs != nil {
				m.observers = append(m.observers, obs)
			}
		}
	}
}

// WithChangeHook sets the hook that propagates group writes to validation,
// effects and remote refreshes.
func WithChangeHook(hook ChangeHook) Option {
	return func(m *Manager) {
		m.onChange = hook
	}
}

// WithLogger sets the logger used when no logger travels in the context.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = ctxlog.OrDiscard(logger)
	}
}

// Manager applies row operations to a store. Each operation is a single
// atomic store update, so bounds are checked against the rows it replaces.
type Manager struct {
	schema    *model.Schema
	store     *store.Store
	observers []RowObserver
	onChange  ChangeHook
	logger    *slog.Logger
}

// New returns a manager over st.
func New(st *store.Store, options ...Option) *Manager {
	m := &Manager{
		schema: st.Schema(),
		store:  st,
		logger: ctxlog.Discard(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m
}

func (m *Manager) group(id string) (*model.Field, error) {
	field, ok := m.schema.Field(id)
	if !ok {
		return nil, &model.UnknownFieldError{Key: id}
	}
	if field.Type != model.FieldTypeRows {
		return nil, fmt.Errorf("%w: %s", ErrNotRowGroup, id)
	}
	return field, nil
}

func asRows(value any) store.Rows {
	rows, _ := value.(store.Rows)
	return rows
}

// AddRow appends a row seeded with the column defaults overlaid by initial and
// returns its key. It fails with *RowNotAddableError at the maxRow bound.
func (m *Manager) AddRow(ctx context.Context, group string, initial map[string]any) (string, error) {
	field, err := m.group(group)
	if err != nil {
		return "", err
	}
	key := m.store.NewRowKey()
	change, err := m.store.Update(group, func(current any) (any, error) {
		rows := asRows(current)
		if field.MaxRow > 0 && len(rows) >= field.MaxRow {
			return nil, &RowNotAddableError{Group: group, Rows: len(rows), MaxRow: field.MaxRow}
		}
		next := make(store.Rows, len(rows), len(rows)+1)
		copy(next, rows)
		return append(next, store.Row{Key: key, Values: initial}), nil
	})
	if err != nil {
		return "", err
	}
	ctxlog.FromContextOr(ctx, m.logger).Debug("rowgroup: row added", "group", group, "row", key)
	m.changed(ctx, change)
	return key, nil
}

// DeleteRow removes row from group and drops the per-row state held by the
// observers. It fails with *RowNotDeletableError when the group would fall
// below minRow.
func (m *Manager) DeleteRow(ctx context.Context, group, row string) error {
	field, err := m.group(group)
	if err != nil {
		return err
	}
	change, err := m.store.Update(group, func(current any) (any, error) {
		rows := asRows(current)
		idx := rows.Index(row)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownRow, model.RowPrefix(group, row))
		}
		if len(rows) <= field.MinRow {
			return nil, &RowNotDeletableError{Group: group, Row: row, Rows: len(rows), MinRow: field.MinRow}
		}
		next := make(store.Rows, 0, len(rows)-1)
		next = append(next, rows[:idx]...)
		return append(next, rows[idx+1:]...), nil
	})
	if err != nil {
		return err
	}

	m.store.ForgetRow(group, row)
	for _, obs := range m.observers {
		obs.ForgetRow(group, row)
	}
	ctxlog.FromContextOr(ctx, m.logger).Debug("rowgroup: row deleted", "group", group, "row", row)
	m.changed(ctx, change)
	return nil
}

// MoveRow moves row to index, clamped to the group's bounds. Row keys and
// their values are unchanged.
func (m *Manager) MoveRow(ctx context.Context, group, row string, index int) error {
	if _, err := m.group(group); err != nil {
		return err
	}
	change, err := m.store.Update(group, func(current any) (any, error) {
		rows := asRows(current)
		from := rows.Index(row)
		if from < 0 {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownRow, model.RowPrefix(group, row))
		}
		if index < 0 {
			index = 0
		}
		if index >= len(rows) {
			index = len(rows) - 1
		}
		moved := rows[from]
		next := make(store.Rows, 0, len(rows))
		next = append(next, rows[:from]...)
		next = append(next, rows[from+1:]...)
		next = append(next[:index], append(store.Rows{moved}, next[index:]...)...)
		return next, nil
	})
	if err != nil {
		return err
	}
	m.changed(ctx, change)
	return nil
}

func (m *Manager) changed(ctx context.Context, change store.Change) {
	if m.onChange != nil {
		m.onChange(ctx, change)
	}
}

// Rows returns the current rows of group.
func (m *Manager) Rows(group string) (store.Rows, error) {
	if _, err := m.group(group); err != nil {
		return nil, err
	}
	return m.store.Snapshot().Rows(group), nil
}

// RowIndex returns the position of row in group, or -1.
func (m *Manager) RowIndex(group, row string) int {
	return m.store.Snapshot().Rows(group).Index(row)
}

// CanAdd reports whether a row can be added to group.
func (m *Manager) CanAdd(group string) bool {
	field, err := m.group(group)
	if err != nil {
		return false
	}
	return field.MaxRow == 0 || len(m.store.Snapshot().Rows(group)) < field.MaxRow
}

// CanDelete reports whether a row can be removed from group.
func (m *Manager) CanDelete(group string) bool {
	field, err := m.group(group)
	if err != nil {
		return false
	}
	return len(m.store.Snapshot().Rows(group)) > field.MinRow
}

// ResolveSpan returns the span config for the row at index in group.
func (m *Manager) ResolveSpan(group string, index int) (model.RowSpanConfig, bool) {
	field, err := m.group(group)
	if err != nil {
		return model.RowSpanConfig{}, false
	}
	return ResolveSpan(field.RowSpans, index)
}

// Package store holds a form's value tree. Every mutation goes through Set or
// Update, which swap in a new top-level map (copy-on-write) so unaffected
// fields and rows keep their identity and snapshots never observe a value
// mutated mid-computation. Row group cells are addressed by model.CellKey;
// the store does not know how rows are added or removed, it only accepts a
// new Rows value for the group.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-formstate/pkg/model"
)

// Change describes one applied write.
type Change struct {
	Key      string
	Field    string
	Row      string
	Child    string
	Value    any
	Previous any
	Version  uint64
}

// Listener observes writes. Listeners run synchronously on the writer's
// goroutine after the store lock is released.
type Listener func(Change)

// Option configures a Store.
type Option func(*Store)

// WithInitialValues seeds values over the declared defaults. Row groups accept
// Rows, []map[string]any or []any of objects.
func WithInitialValues(values map[string]any) Option {
	return func(s *Store) {
		s.initial = values
	}
}

// WithRowKeyFunc overrides the row key generator (UUIDs by default).
func WithRowKeyFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// Store is the single writer path for form values. It is safe for concurrent
// use.
type Store struct {
	schema  *model.Schema
	newKey  func() string
	initial map[string]any

	mu       sync.RWMutex
	values   map[string]any
	baseline map[string]any
	dirty    map[string]struct{}
	version  uint64

	subMu   sync.RWMutex
	subs    map[string]map[uint64]Listener
	nextSub uint64
}

// New builds a store for schema, seeding defaults, initial values and
// MinRow rows for row groups without initial rows.
func New(schema *model.Schema, options ...Option) (*Store, error) {
	if schema == nil {
		return nil, fmt.Errorf("store: schema is required")
	}
	s := &Store{
		schema: schema,
		newKey: uuid.NewString,
		dirty:  make(map[string]struct{}),
		subs:   make(map[string]map[uint64]Listener),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}

	for key := range s.initial {
		if _, ok := schema.Field(key); !ok {
			return nil, &model.UnknownFieldError{Key: key}
		}
	}

	values := make(map[string]any, len(schema.Fields()))
	for _, field := range schema.Fields() {
		raw, provided := s.initial[field.ID]
		if !provided {
			raw = field.Default
		}
		if field.Type == model.FieldTypeRows && raw == nil {
			seeded := make(Rows, 0, field.MinRow)
			for i := 0; i < field.MinRow; i++ {
				row, err := buildRow(schema, field, s.newKey(), nil, s.newKey)
				if err != nil {
					return nil, err
				}
				seeded = append(seeded, row)
			}
			values[field.ID] = seeded
			continue
		}
		value, err := normalize(schema, field.ID, field, raw, s.newKey)
		if err != nil {
			return nil, err
		}
		values[field.ID] = value
	}
	s.values = values
	s.baseline = values
	return s, nil
}

// Schema returns the compiled definition the store was built from.
func (s *Store) Schema() *model.Schema {
	return s.schema
}

// NewRowKey returns a fresh row key from the configured generator.
func (s *Store) NewRowKey() string {
	return s.newKey()
}

// Get returns a copy of the current value for key. Undeclared keys fail with
// *model.UnknownFieldError; cells of missing rows with ErrUnknownRow.
func (s *Store) Get(key string) (any, error) {
	k, _, err := s.schema.Lookup(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	values := s.values
	s.mu.RUnlock()
	value, err := read(values, k, key)
	if err != nil {
		return nil, err
	}
	return cloneValue(value), nil
}

func read(values map[string]any, k model.Key, raw string) (any, error) {
	if !k.IsCell() {
		return values[k.Field], nil
	}
	rows, _ := values[k.Field].(Rows)
	idx := rows.Index(k.Row)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRow, raw)
	}
	return rows[idx].Values[k.Child], nil
}

// Set replaces the value at key and notifies subscribers before returning.
func (s *Store) Set(key string, value any) (Change, error) {
	return s.Update(key, func(any) (any, error) { return value, nil })
}

// Update atomically replaces the value at key with fn's result. fn runs under
// the store lock and must not call back into the store.
func (s *Store) Update(key string, fn func(current any) (any, error)) (Change, error) {
	k, field, err := s.schema.Lookup(key)
	if err != nil {
		return Change{}, err
	}

	s.mu.Lock()
	current, err := read(s.values, k, key)
	if err != nil {
		s.mu.Unlock()
		return Change{}, err
	}
	raw, err := fn(current)
	if err != nil {
		s.mu.Unlock()
		return Change{}, err
	}
	value, err := s.normalizeAt(key, field, raw, current)
	if err != nil {
		s.mu.Unlock()
		return Change{}, err
	}

	next := make(map[string]any, len(s.values))
	for id, v := range s.values {
		next[id] = v
	}
	if k.IsCell() {
		rows := next[k.Field].(Rows)
		idx := rows.Index(k.Row)
		updated := make(Rows, len(rows))
		copy(updated, rows)
		cells := make(map[string]any, len(rows[idx].Values)+1)
		for id, v := range rows[idx].Values {
			cells[id] = v
		}
		cells[k.Child] = value
		updated[idx] = Row{Key: k.Row, Values: cells}
		next[k.Field] = updated
		s.dirty[k.Field] = struct{}{}
	} else {
		next[k.Field] = value
	}
	s.values = next
	s.dirty[key] = struct{}{}
	s.version++
	change := Change{
		Key:      key,
		Field:    k.Field,
		Row:      k.Row,
		Child:    k.Child,
		Value:    cloneValue(value),
		Previous: cloneValue(current),
		Version:  s.version,
	}
	s.mu.Unlock()

	s.notify(change)
	return change, nil
}

// normalizeAt normalises a write of raw over current. Row groups reuse the
// stored row maps raw still carries.
func (s *Store) normalizeAt(key string, field *model.Field, raw, current any) (any, error) {
	if field.Type != model.FieldTypeRows || raw == nil {
		return normalize(s.schema, key, field, raw, s.newKey)
	}
	stored, _ := current.(Rows)
	return normalizeRows(s.schema, key, field, raw, stored, s.newKey, func(why string) error {
		return &ShapeError{Key: key, Type: field.Type, Value: raw, Why: why}
	})
}

// Reset restores the values the store was created with, clears dirty marks
// and notifies subscribers of every top-level field.
func (s *Store) Reset() {
	s.mu.Lock()
	previous := s.values
	s.values = s.baseline
	s.dirty = make(map[string]struct{})
	s.version++
	version := s.version
	s.mu.Unlock()

	for _, field := range s.schema.Fields() {
		s.notify(Change{
			Key:      field.ID,
			Field:    field.ID,
			Value:    s.baseline[field.ID],
			Previous: previous[field.ID],
			Version:  version,
		})
	}
}

// Dirty reports whether key was written since construction or the last Reset.
func (s *Store) Dirty(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dirty[key]
	return ok
}

// DirtyKeys returns the written keys in sorted order.
func (s *Store) DirtyKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.dirty))
	for key := range s.dirty {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// ForgetRow drops dirty marks of a removed row.
func (s *Store) ForgetRow(group, row string) {
	prefix := model.RowPrefix(group, row)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.dirty {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.dirty, key)
		}
	}
}

// Version returns the number of applied writes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns an immutable view of the current value tree.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{schema: s.schema, values: s.values, version: s.version}
}

// Subscribe registers listener for writes to key. Subscribers of a row group
// also observe writes to its cells. The returned func unsubscribes and is safe
// to call more than once.
func (s *Store) Subscribe(key string, listener Listener) (func(), error) {
	if listener == nil {
		return nil, fmt.Errorf("store: listener is nil")
	}
	if _, _, err := s.schema.Lookup(key); err != nil {
		return nil, err
	}

	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]Listener)
	}
	s.subs[key][id] = listener
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
		})
	}, nil
}

func (s *Store) notify(change Change) {
	s.subMu.RLock()
	type entry struct {
		id uint64
		fn Listener
	}
	var listeners []entry
	collect := func(key string) {
		for id, fn := range s.subs[key] {
			listeners = append(listeners, entry{id: id, fn: fn})
		}
	}
	collect(change.Key)
	if change.Row != "" {
		collect(change.Field)
	}
	s.subMu.RUnlock()

	sort.Slice(listeners, func(i, j int) bool { return listeners[i].id < listeners[j].id })
	for _, l := range listeners {
		l.fn(change)
	}
}

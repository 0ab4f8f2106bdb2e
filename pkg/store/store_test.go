package store_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

func orderSchema(t *testing.T) *model.Schema {
	t.Helper()
	schema, err := model.Compile(model.Definition{
		ID: "order",
		Fields: []model.Field{
			{ID: "customer", Type: model.FieldTypeString, Default: "anon"},
			{ID: "discount", Type: model.FieldTypeNumber},
			{ID: "gift", Type: model.FieldTypeBoolean},
			{ID: "tags", Type: model.FieldTypeArray},
			{
				ID:     "items",
				Type:   model.FieldTypeRows,
				MinRow: 1,
				Children: []model.Field{
					{ID: "sku", Type: model.FieldTypeString, Default: ""},
					{ID: "qty", Type: model.FieldTypeNumber, Default: 1},
				},
			},
		},
	}, model.CompileOptions{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return schema
}

func sequentialKeys() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("row-%d", n)
	}
}

func newStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{store.WithRowKeyFunc(sequentialKeys())}, opts...)
	s, err := store.New(orderSchema(t), opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStore_DefaultsAndSeededRows(t *testing.T) {
	s := newStore(t)

	got, err := s.Get("customer")
	if err != nil || got != "anon" {
		t.Fatalf("Get(customer) = %v, %v", got, err)
	}

	rows, err := s.Get("items")
	if err != nil {
		t.Fatalf("Get(items): %v", err)
	}
	want := store.Rows{{Key: "row-1", Values: map[string]any{"sku": "", "qty": 1.0}}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("seeded rows mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ReadAfterWrite(t *testing.T) {
	s := newStore(t)

	for key, value := range map[string]any{
		"customer":         "ada",
		"discount":         "12.5",
		"gift":             true,
		"tags":             []string{"a", "b"},
		"items[row-1].qty": 3,
		"items[row-1].sku": "X-1",
	} {
		if _, err := s.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	cases := map[string]any{
		"customer":         "ada",
		"discount":         "12.5",
		"gift":             true,
		"tags":             []any{"a", "b"},
		"items[row-1].qty": 3.0,
		"items[row-1].sku": "X-1",
	}
	for key, want := range cases {
		got, err := s.Get(key)
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Get(%s) mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestStore_RejectsUnknownAndMisshapen(t *testing.T) {
	s := newStore(t)

	if _, err := s.Get("nope"); !model.IsUnknownField(err) {
		t.Fatalf("Get(nope) error = %v", err)
	}
	if _, err := s.Set("items[row-1].colour", "red"); !model.IsUnknownField(err) {
		t.Fatalf("Set undeclared column error = %v", err)
	}
	if _, err := s.Set("items[row-9].qty", 1); !errors.Is(err, store.ErrUnknownRow) {
		t.Fatalf("Set missing row error = %v", err)
	}

	var shapeErr *store.ShapeError
	if _, err := s.Set("gift", "yes"); !errors.As(err, &shapeErr) {
		t.Fatalf("Set(gift, string) error = %v", err)
	}
	if _, err := s.Set("tags", []any{map[string]any{}}); !errors.As(err, &shapeErr) {
		t.Fatalf("Set(tags, object) error = %v", err)
	}
	if got, _ := s.Get("gift"); got != nil {
		t.Fatalf("rejected write must not change the value, got %v", got)
	}
}

func TestStore_CellWritePreservesOtherRows(t *testing.T) {
	s := newStore(t, store.WithInitialValues(map[string]any{
		"items": []map[string]any{{"sku": "A"}, {"sku": "B"}},
	}))

	before := store.StoredRows(s.Snapshot(), "items")
	if _, err := s.Set("items[row-2].qty", 5); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	after := store.StoredRows(s.Snapshot(), "items")

	if reflect.ValueOf(before[0].Values).Pointer() != reflect.ValueOf(after[0].Values).Pointer() {
		t.Fatalf("untouched row lost its identity")
	}
	if reflect.ValueOf(before[1].Values).Pointer() == reflect.ValueOf(after[1].Values).Pointer() {
		t.Fatalf("written row must be replaced, not mutated")
	}
	if before[1].Values["qty"] != 1.0 {
		t.Fatalf("snapshot taken before the write changed: %v", before[1].Values["qty"])
	}
}

func TestStore_SetRowsKeepsCanonicalRows(t *testing.T) {
	s := newStore(t)
	rows := store.StoredRows(s.Snapshot(), "items")

	next := append(store.Rows{}, rows...)
	next = append(next, store.Row{Key: "extra", Values: map[string]any{"sku": "Z"}})
	if _, err := s.Set("items", next); err != nil {
		t.Fatalf("set rows: %v", err)
	}

	stored := store.StoredRows(s.Snapshot(), "items")
	if reflect.ValueOf(stored[0].Values).Pointer() != reflect.ValueOf(rows[0].Values).Pointer() {
		t.Fatalf("canonical row was rebuilt")
	}
	if diff := cmp.Diff(map[string]any{"sku": "Z", "qty": 1.0}, stored[1].Values); diff != "" {
		t.Fatalf("new row not seeded (-want +got):\n%s", diff)
	}

	dup := store.Rows{{Key: "a"}, {Key: "a"}}
	var shapeErr *store.ShapeError
	if _, err := s.Set("items", dup); !errors.As(err, &shapeErr) {
		t.Fatalf("duplicate row keys error = %v", err)
	}
}

func TestStore_CallerMapsDoNotAliasStoredRows(t *testing.T) {
	s := newStore(t)
	cells := map[string]any{"sku": "A", "qty": 2.0}
	if _, err := s.Set("items", store.Rows{{Key: "r1", Values: cells}}); err != nil {
		t.Fatalf("set rows: %v", err)
	}
	cells["sku"] = "mutated"
	if got, _ := s.Get("items[r1].sku"); got != "A" {
		t.Fatalf("caller map leaked into the store, sku = %v", got)
	}

	snap := s.Snapshot()
	rows := snap.Rows("items")
	rows[0].Values["sku"] = "mutated-again"
	if got, _ := s.Get("items[r1].sku"); got != "A" {
		t.Fatalf("rows read from a snapshot leaked into the store, sku = %v", got)
	}
	if got, _ := snap.Get("items[r1].sku"); got != "A" {
		t.Fatalf("snapshot changed after its rows were modified, sku = %v", got)
	}

	got, _ := s.Get("items")
	got.(store.Rows)[0].Values["qty"] = 99.0
	if qty, _ := s.Get("items[r1].qty"); qty != 2.0 {
		t.Fatalf("rows returned by Get leaked into the store, qty = %v", qty)
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := newStore(t)

	var cellChanges, groupChanges []string
	unsubCell, err := s.Subscribe("items[row-1].qty", func(c store.Change) {
		cellChanges = append(cellChanges, c.Key)
	})
	if err != nil {
		t.Fatalf("subscribe cell: %v", err)
	}
	if _, err := s.Subscribe("items", func(c store.Change) {
		groupChanges = append(groupChanges, c.Key)
	}); err != nil {
		t.Fatalf("subscribe group: %v", err)
	}

	mustSet(t, s, "items[row-1].qty", 2)
	mustSet(t, s, "items[row-1].qty", 2)
	unsubCell()
	unsubCell()
	mustSet(t, s, "items[row-1].qty", 4)

	if diff := cmp.Diff([]string{"items[row-1].qty", "items[row-1].qty"}, cellChanges); diff != "" {
		t.Fatalf("cell notifications mismatch (-want +got):\n%s", diff)
	}
	if len(groupChanges) != 3 {
		t.Fatalf("group subscriber expected 3 notifications, got %d", len(groupChanges))
	}

	if _, err := s.Subscribe("missing", func(store.Change) {}); !model.IsUnknownField(err) {
		t.Fatalf("subscribe unknown error = %v", err)
	}
}

func TestStore_ListenerSeesCommittedValue(t *testing.T) {
	s := newStore(t)

	var seen any
	if _, err := s.Subscribe("customer", func(c store.Change) {
		seen, _ = s.Get("customer")
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	mustSet(t, s, "customer", "grace")
	if seen != "grace" {
		t.Fatalf("listener read %v", seen)
	}
}

func TestStore_UpdateDirtyReset(t *testing.T) {
	s := newStore(t)

	change, err := s.Update("discount", func(current any) (any, error) {
		if current != nil {
			t.Fatalf("unexpected current %v", current)
		}
		return 10, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if change.Value != 10.0 || change.Version != 1 {
		t.Fatalf("unexpected change %+v", change)
	}
	mustSet(t, s, "items[row-1].sku", "S")

	if diff := cmp.Diff([]string{"discount", "items", "items[row-1].sku"}, s.DirtyKeys()); diff != "" {
		t.Fatalf("dirty keys mismatch (-want +got):\n%s", diff)
	}

	s.ForgetRow("items", "row-1")
	if s.Dirty("items[row-1].sku") {
		t.Fatalf("ForgetRow must drop cell dirty marks")
	}

	s.Reset()
	if got, _ := s.Get("discount"); got != nil {
		t.Fatalf("reset discount = %v", got)
	}
	if len(s.DirtyKeys()) != 0 {
		t.Fatalf("reset must clear dirty keys")
	}
}

func TestSnapshot_Values(t *testing.T) {
	s := newStore(t)
	mustSet(t, s, "tags", []any{"x"})

	snap := s.Snapshot()
	values := snap.Values()
	values["tags"].([]any)[0] = "mutated"

	again := s.Snapshot().Values()
	if diff := cmp.Diff([]any{"x"}, again["tags"]); diff != "" {
		t.Fatalf("snapshot copy leaked into the store (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{map[string]any{"sku": "", "qty": 1.0}}, again["items"]); diff != "" {
		t.Fatalf("rows export mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"items": {"row-1"}}, snap.RowKeys()); diff != "" {
		t.Fatalf("row keys mismatch (-want +got):\n%s", diff)
	}
}

func mustSet(t *testing.T, s *store.Store, key string, value any) {
	t.Helper()
	if _, err := s.Set(key, value); err != nil {
		t.Fatalf("Set(%s): %v", key, err)
	}
}

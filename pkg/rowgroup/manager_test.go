package rowgroup_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/rowgroup"
	"github.com/goliatone/go-formstate/pkg/store"
)

func newStore(t *testing.T, group model.Field) *store.Store {
	t.Helper()
	schema, err := model.Compile(model.Definition{ID: "rows", Fields: []model.Field{group}}, model.CompileOptions{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	seq := 0
	st, err := store.New(schema, store.WithRowKeyFunc(func() string {
		seq++
		return fmt.Sprintf("r%d", seq)
	}))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return st
}

func linesField(minRow, maxRow int) model.Field {
	return model.Field{
		ID:     "lines",
		Type:   model.FieldTypeRows,
		MinRow: minRow,
		MaxRow: maxRow,
		Children: []model.Field{
			{ID: "sku", Type: model.FieldTypeString},
			{ID: "qty", Type: model.FieldTypeNumber, Default: 1},
		},
	}
}

func TestAddDeleteRoundTrip(t *testing.T) {
	st := newStore(t, linesField(0, 0))
	m := rowgroup.New(st)
	ctx := context.Background()

	if _, err := m.AddRow(ctx, "lines", map[string]any{"sku": "A"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := st.Snapshot().Values()
	beforeKeys := st.Snapshot().RowKeys()

	key, err := m.AddRow(ctx, "lines", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got, _ := st.Get(model.CellKey("lines", key, "qty")); got != float64(1) {
		t.Fatalf("new row qty = %v, want the column default", got)
	}
	if err := m.DeleteRow(ctx, "lines", key); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if diff := cmp.Diff(before, st.Snapshot().Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(beforeKeys, st.Snapshot().RowKeys()); diff != "" {
		t.Fatalf("row keys mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteRespectsMinRow(t *testing.T) {
	st := newStore(t, linesField(1, 0))
	var forgotten []string
	m := rowgroup.New(st, rowgroup.WithObservers(rowgroup.RowObserverFunc(func(group, row string) {
		forgotten = append(forgotten, model.RowPrefix(group, row))
	})))
	ctx := context.Background()

	rows, err := m.Rows("lines")
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows = %v, %v; want one seeded row", rows, err)
	}
	if m.CanDelete("lines") {
		t.Fatalf("CanDelete must be false at minRow")
	}
	err = m.DeleteRow(ctx, "lines", rows[0].Key)
	var notDeletable *rowgroup.RowNotDeletableError
	if !errors.As(err, &notDeletable) || notDeletable.MinRow != 1 {
		t.Fatalf("delete error = %v, want RowNotDeletableError", err)
	}
	if got, _ := m.Rows("lines"); len(got) != 1 {
		t.Fatalf("rejected delete mutated the group: %v", got)
	}

	second, err := m.AddRow(ctx, "lines", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !m.CanDelete("lines") {
		t.Fatalf("CanDelete must be true above minRow")
	}
	if err := m.DeleteRow(ctx, "lines", second); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if diff := cmp.Diff([]string{"lines[" + second + "]"}, forgotten); diff != "" {
		t.Fatalf("observers mismatch (-want +got):\n%s", diff)
	}
	if err := m.DeleteRow(ctx, "lines", second); !errors.Is(err, store.ErrUnknownRow) {
		t.Fatalf("second delete error = %v, want ErrUnknownRow", err)
	}
}

func TestAddRespectsMaxRow(t *testing.T) {
	st := newStore(t, linesField(0, 2))
	m := rowgroup.New(st)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.AddRow(ctx, "lines", nil); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if m.CanAdd("lines") {
		t.Fatalf("CanAdd must be false at maxRow")
	}
	var notAddable *rowgroup.RowNotAddableError
	if _, err := m.AddRow(ctx, "lines", nil); !errors.As(err, &notAddable) || notAddable.MaxRow != 2 {
		t.Fatalf("add error = %v, want RowNotAddableError", err)
	}
}

func TestMoveRowKeepsKeys(t *testing.T) {
	st := newStore(t, linesField(0, 0))
	var changes []string
	m := rowgroup.New(st, rowgroup.WithChangeHook(func(_ context.Context, c store.Change) {
		changes = append(changes, c.Key)
	}))
	ctx := context.Background()

	var keys []string
	for _, sku := range []string{"A", "B", "C"} {
		key, err := m.AddRow(ctx, "lines", map[string]any{"sku": sku})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		keys = append(keys, key)
	}
	if err := m.MoveRow(ctx, "lines", keys[2], 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	rows, _ := m.Rows("lines")
	if diff := cmp.Diff([]string{keys[2], keys[0], keys[1]}, rows.Keys()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if got, _ := st.Get(model.CellKey("lines", keys[2], "sku")); got != "C" {
		t.Fatalf("moved row lost its values: %v", got)
	}
	if m.RowIndex("lines", keys[1]) != 2 {
		t.Fatalf("RowIndex = %d", m.RowIndex("lines", keys[1]))
	}
	if len(changes) != 4 {
		t.Fatalf("change hook calls = %v", changes)
	}
}

func TestRowOperationsRejectPlainFields(t *testing.T) {
	schema, err := model.Compile(model.Definition{ID: "plain", Fields: []model.Field{{ID: "name", Type: model.FieldTypeString}}}, model.CompileOptions{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	st, err := store.New(schema)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	m := rowgroup.New(st)
	if _, err := m.AddRow(context.Background(), "name", nil); !errors.Is(err, rowgroup.ErrNotRowGroup) {
		t.Fatalf("add error = %v", err)
	}
	if _, err := m.AddRow(context.Background(), "ghost", nil); !model.IsUnknownField(err) {
		t.Fatalf("add error = %v", err)
	}
}

func TestResolveSpan(t *testing.T) {
	first := model.RowSpanConfig{RowIndexes: []int{0}, Spans: []model.Span{{Column: 0, Width: 2}}}
	third := model.RowSpanConfig{RowIndexes: []int{2}, Spans: []model.Span{{Column: 1, Width: 2}}}
	rest := model.RowSpanConfig{RestAll: true, Spans: []model.Span{{Column: 0, Width: 3}}}

	cases := []struct {
		name    string
		configs []model.RowSpanConfig
		index   int
		want    model.RowSpanConfig
		ok      bool
	}{
		{name: "explicit", configs: []model.RowSpanConfig{first, third, rest}, index: 2, want: third, ok: true},
		{name: "rest beyond explicit", configs: []model.RowSpanConfig{first, rest, third}, index: 7, want: rest, ok: true},
		{name: "gap falls back to last", configs: []model.RowSpanConfig{first, rest, third}, index: 1, want: third, ok: true},
		{name: "no rest falls back to last", configs: []model.RowSpanConfig{first, third}, index: 9, want: third, ok: true},
		{name: "empty", index: 0},
		{name: "negative", configs: []model.RowSpanConfig{first}, index: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := rowgroup.ResolveSpan(tc.configs, tc.index)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCellSpans(t *testing.T) {
	cfg := model.RowSpanConfig{Spans: []model.Span{{Column: 1, Width: 2}}}
	if diff := cmp.Diff([]int{1, 2, 0, 1}, rowgroup.CellSpans(cfg, 4)); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}
}

package validation_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
	"github.com/goliatone/go-formstate/pkg/validation"
)

func compile(t *testing.T, fields ...model.Field) *model.Schema {
	t.Helper()
	schema, err := model.Compile(model.Definition{ID: "form", Fields: fields}, model.CompileOptions{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return schema
}

func newStore(t *testing.T, schema *model.Schema, initial map[string]any) *store.Store {
	t.Helper()
	n := 0
	s, err := store.New(schema,
		store.WithInitialValues(initial),
		store.WithRowKeyFunc(func() string { n++; return fmt.Sprintf("r%d", n) }),
	)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s
}

func rule(kind string, params ...string) model.ValidationRule {
	r := model.ValidationRule{Kind: kind, Params: map[string]string{}}
	for i := 0; i+1 < len(params); i += 2 {
		r.Params[params[i]] = params[i+1]
	}
	return r
}

func TestValidateField_Rules(t *testing.T) {
	schema := compile(t,
		model.Field{ID: "age", Label: "Age", Type: model.FieldTypeNumber, Rules: []model.ValidationRule{
			rule(model.ValidationRuleMin, "value", "18"),
			rule(model.ValidationRuleMax, "value", "99"),
		}},
		model.Field{ID: "email", Label: "Email", Type: model.FieldTypeString, Required: true, Rules: []model.ValidationRule{
			rule(model.ValidationRulePattern, "pattern", `^[^@]+@[^@]+$`),
		}},
		model.Field{ID: "code", Type: model.FieldTypeString, Rules: []model.ValidationRule{
			rule(model.ValidationRuleMinLength, "value", "3"),
			rule(model.ValidationRulePattern, "pattern", `^[A-Z]+$`),
		}},
		model.Field{ID: "agree", Type: model.FieldTypeBoolean, Rules: []model.ValidationRule{
			rule(model.ValidationRuleRequired),
		}},
	)

	cases := []struct {
		name  string
		key   string
		value any
		want  validation.Result
	}{
		{name: "empty optional skips min", key: "age", value: nil, want: validation.Result{Valid: true}},
		{name: "whitespace is not empty", key: "age", value: "  ", want: validation.Result{Message: "Age must be a number"}},
		{name: "numeric string coerced", key: "age", value: "21", want: validation.Result{Valid: true}},
		{name: "below min", key: "age", value: 12, want: validation.Result{Message: "Age must be at least 18"}},
		{name: "above max", key: "age", value: "120", want: validation.Result{Message: "Age must be at most 99"}},
		{name: "not a number", key: "age", value: "abc", want: validation.Result{Message: "Age must be a number"}},
		{name: "required missing", key: "email", value: "", want: validation.Result{Message: "Email is required"}},
		{name: "required whitespace", key: "email", value: "   ", want: validation.Result{Message: "Email is required"}},
		{name: "pattern mismatch", key: "email", value: "nope", want: validation.Result{Message: "Email has an invalid format"}},
		{name: "pattern match", key: "email", value: "a@b", want: validation.Result{Valid: true}},
		{name: "short circuit on first failure", key: "code", value: "ab", want: validation.Result{Message: "code must have a length of at least 3"}},
		{name: "second rule", key: "code", value: "abcd", want: validation.Result{Message: "code has an invalid format"}},
		{name: "whitespace optional checked by pattern", key: "code", value: "    ", want: validation.Result{Message: "code has an invalid format"}},
		{name: "false is not empty", key: "agree", value: false, want: validation.Result{Valid: true}},
		{name: "nil bool is empty", key: "agree", value: nil, want: validation.Result{Message: "agree is required"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t, schema, nil)
			if _, err := s.Set(tc.key, tc.value); err != nil {
				t.Fatalf("set: %v", err)
			}
			engine := validation.New(schema, s)
			got, err := engine.ValidateField(context.Background(), tc.key)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("result mismatch (-want +got):\n%s", diff)
			}
			msg, recorded := engine.ErrorFor(tc.key)
			if recorded == tc.want.Valid || msg != tc.want.Message {
				t.Fatalf("recorded error = %q (%v)", msg, recorded)
			}
		})
	}
}

func TestValidateField_CustomMessagesAndValidators(t *testing.T) {
	registry := validation.NewRegistry()
	registry.Register("even", func(_ context.Context, check model.Check) error {
		n, _ := check.Value.(float64)
		if int(n)%2 != 0 {
			return errors.New("must be even")
		}
		return nil
	})

	schema := compile(t,
		model.Field{ID: "count", Label: "Count", Type: model.FieldTypeNumber, Rules: []model.ValidationRule{
			{Kind: model.ValidationRuleMin, Params: map[string]string{"value": "10"}, Message: "{{ label }}: {{ actual }} < {{ value }}"},
			{Kind: model.ValidationRuleCustom, Params: map[string]string{"validator": "even"}},
		}},
		model.Field{ID: "confirm", Type: model.FieldTypeString, Rules: []model.ValidationRule{
			{Kind: model.ValidationRuleCustom, Validator: func(_ context.Context, check model.Check) error {
				other, _ := check.Lookup("password")
				if other != check.Value {
					return errors.New("passwords differ")
				}
				return nil
			}},
		}},
		model.Field{ID: "password", Type: model.FieldTypeString},
	)
	s := newStore(t, schema, map[string]any{"count": 3, "password": "x", "confirm": "y"})
	engine := validation.New(schema, s, validation.WithRegistry(registry))
	ctx := context.Background()

	got, _ := engine.ValidateField(ctx, "count")
	if got.Message != "Count: 3 < 10" {
		t.Fatalf("templated message = %q", got.Message)
	}
	if _, err := s.Set("count", 11); err != nil {
		t.Fatal(err)
	}
	if got, _ = engine.ValidateField(ctx, "count"); got.Message != "must be even" {
		t.Fatalf("registered validator message = %q", got.Message)
	}
	if got, _ = engine.ValidateField(ctx, "confirm"); got.Message != "passwords differ" {
		t.Fatalf("cross-field validator message = %q", got.Message)
	}
}

func TestValidateField_Errors(t *testing.T) {
	schema := compile(t, model.Field{ID: "items", Type: model.FieldTypeRows, Children: []model.Field{
		{ID: "qty", Type: model.FieldTypeNumber},
	}})
	engine := validation.New(schema, newStore(t, schema, nil))

	if _, err := engine.ValidateField(context.Background(), "ghost"); !model.IsUnknownField(err) {
		t.Fatalf("unknown field error = %v", err)
	}
	if _, err := engine.ValidateField(context.Background(), "items[nope].qty"); !errors.Is(err, store.ErrUnknownRow) {
		t.Fatalf("missing row error = %v", err)
	}
}

func TestValidateField_StaleRunIsNotRecorded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	schema := compile(t, model.Field{ID: "name", Type: model.FieldTypeString, Rules: []model.ValidationRule{
		{Kind: model.ValidationRuleCustom, Validator: func(_ context.Context, check model.Check) error {
			if calls.Add(1) == 1 {
				<-release
			}
			if check.Value == "taken" {
				return errors.New("name is taken")
			}
			return nil
		}},
	}})
	s := newStore(t, schema, map[string]any{"name": "taken"})
	engine := validation.New(schema, s)
	ctx := context.Background()

	first := make(chan validation.Result)
	go func() {
		res, _ := engine.ValidateField(ctx, "name")
		first <- res
	}()
	waitFor(t, func() bool { return calls.Load() == 1 })

	if _, err := s.Set("name", "free"); err != nil {
		t.Fatal(err)
	}
	if res, _ := engine.ValidateField(ctx, "name"); !res.Valid {
		t.Fatalf("second run should pass, got %+v", res)
	}
	close(release)

	if res := <-first; res.Valid {
		t.Fatalf("first run should report its own failure")
	}
	if errs := engine.Errors(); len(errs) != 0 {
		t.Fatalf("stale failure was recorded: %v", errs)
	}
}

func TestValidateAll_ConcurrentAllSettle(t *testing.T) {
	const fast = 5
	var fastDone atomic.Int32
	slowStarted := make(chan struct{})

	fields := []model.Field{{ID: "slow", Type: model.FieldTypeString, Rules: []model.ValidationRule{
		{Kind: model.ValidationRuleCustom, Validator: func(ctx context.Context, _ model.Check) error {
			close(slowStarted)
			deadline := time.After(2 * time.Second)
			for fastDone.Load() < fast {
				select {
				case <-deadline:
					return errors.New("fast validators were blocked")
				case <-time.After(time.Millisecond):
				}
			}
			return errors.New("slow failure")
		}},
	}}}
	for i := 0; i < fast; i++ {
		fields = append(fields, model.Field{ID: fmt.Sprintf("f%d", i), Type: model.FieldTypeString, Rules: []model.ValidationRule{
			{Kind: model.ValidationRuleCustom, Validator: func(context.Context, model.Check) error {
				<-slowStarted
				defer fastDone.Add(1)
				return errors.New("fast failure")
			}},
		}})
	}
	schema := compile(t, fields...)
	initial := map[string]any{"slow": "x"}
	for i := 0; i < fast; i++ {
		initial[fmt.Sprintf("f%d", i)] = "x"
	}
	engine := validation.New(schema, newStore(t, schema, initial))

	got := engine.ValidateAll(context.Background())

	want := validation.ErrorMap{"slow": "slow failure"}
	for i := 0; i < fast; i++ {
		want[fmt.Sprintf("f%d", i)] = "fast failure"
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("error map mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, engine.Errors()); diff != "" {
		t.Fatalf("recorded errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateAll_RowGroups(t *testing.T) {
	schema := compile(t,
		model.Field{ID: "title", Type: model.FieldTypeString},
		model.Field{
			ID:   "lines",
			Type: model.FieldTypeRows,
			Rules: []model.ValidationRule{
				rule(model.ValidationRuleRequired),
				rule(model.ValidationRuleMaxLength, "value", "2"),
			},
			Children: []model.Field{
				{ID: "sku", Label: "SKU", Type: model.FieldTypeString, Required: true},
			},
		},
	)
	s := newStore(t, schema, map[string]any{
		"lines": []map[string]any{{"sku": "A"}, {"sku": ""}, {"sku": "C"}},
	})
	engine := validation.New(schema, s, validation.WithConcurrency(2))

	got := engine.ValidateAll(context.Background())
	want := validation.ErrorMap{
		"lines":         "lines must have a length of at most 2",
		"lines[r2].sku": "SKU is required",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("error map mismatch (-want +got):\n%s", diff)
	}

	engine.ForgetRow("lines", "r2")
	if _, ok := engine.ErrorFor("lines[r2].sku"); ok {
		t.Fatalf("ForgetRow must drop the row's errors")
	}
	if diff := cmp.Diff([]string{"lines"}, engine.Errors().Keys()); diff != "" {
		t.Fatalf("remaining errors mismatch (-want +got):\n%s", diff)
	}

	empty := newStore(t, schema, map[string]any{"lines": []any{}})
	if got := validation.New(schema, empty).ValidateAll(context.Background()); got["lines"] != "lines is required" {
		t.Fatalf("zero rows must count as empty, got %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

package submit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
	"github.com/goliatone/go-formstate/pkg/submit"
	"github.com/goliatone/go-formstate/pkg/validation"
)

type fixture struct {
	schema    *model.Schema
	store     *store.Store
	validator *validation.Engine
}

func newFixture(t *testing.T, values map[string]any) fixture {
	t.Helper()
	schema, err := model.Compile(model.Definition{
		ID: "signup",
		Fields: []model.Field{
			{ID: "name", Type: model.FieldTypeString, Required: true, Sanitize: true},
			{ID: "bio", Type: model.FieldTypeString},
			{ID: "notes", Type: model.FieldTypeRows, Children: []model.Field{
				{ID: "text", Type: model.FieldTypeString, Sanitize: true},
			}},
		},
	}, model.CompileOptions{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	st, err := store.New(schema, store.WithInitialValues(values))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return fixture{schema: schema, store: st, validator: validation.New(schema, st)}
}

func recordStates(c *submit.Controller) func() []string {
	var mu sync.Mutex
	var states []string
	c.OnStateChange(func(s submit.State) {
		mu.Lock()
		states = append(states, s.String())
		mu.Unlock()
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), states...)
	}
}

func TestSubmit_InvalidFormSkipsHandler(t *testing.T) {
	f := newFixture(t, nil)
	called := false
	c := submit.New(f.store, f.validator, submit.WithHandler(func(context.Context, submit.Snapshot, submit.Handle) error {
		called = true
		return nil
	}))
	states := recordStates(c)

	snap, err := c.Submit(context.Background())
	var invalid *submit.InvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("submit error = %v, want InvalidError", err)
	}
	if diff := cmp.Diff([]string{"name"}, invalid.Errors.Keys()); diff != "" {
		t.Fatalf("error keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(invalid.Errors, snap.Errors); diff != "" {
		t.Fatalf("snapshot errors mismatch (-want +got):\n%s", diff)
	}
	if called {
		t.Fatalf("handler must not run for an invalid form")
	}
	if diff := cmp.Diff([]string{"validating", "idle"}, states()); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_ValidFormReachesHandlerSanitised(t *testing.T) {
	f := newFixture(t, map[string]any{
		"name":  "<b>Ada</b>",
		"bio":   "<i>kept</i>",
		"notes": []any{map[string]any{"text": "<script>x()</script>hello"}},
	})
	var got submit.Snapshot
	c := submit.New(f.store, f.validator,
		submit.WithTransformers(submit.Sanitize(f.schema)),
		submit.WithHandler(func(_ context.Context, snap submit.Snapshot, _ submit.Handle) error {
			got = snap
			return nil
		}),
	)
	states := recordStates(c)

	snap, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := map[string]any{
		"name":  "Ada",
		"bio":   "<i>kept</i>",
		"notes": []any{map[string]any{"text": "hello"}},
	}
	if diff := cmp.Diff(want, got.Values); diff != "" {
		t.Fatalf("handler values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, snap); diff != "" {
		t.Fatalf("returned snapshot mismatch (-want +got):\n%s", diff)
	}
	if v, _ := f.store.Get("name"); v != "<b>Ada</b>" {
		t.Fatalf("sanitising must not touch the store, name = %v", v)
	}
	if len(snap.RowKeys["notes"]) != 1 {
		t.Fatalf("row keys = %v", snap.RowKeys)
	}
	if diff := cmp.Diff([]string{"validating", "submitting", "settled"}, states()); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	if c.State() != submit.Settled {
		t.Fatalf("state = %v", c.State())
	}
}

func TestSubmit_HandlerErrorReturnsToIdle(t *testing.T) {
	f := newFixture(t, map[string]any{"name": "Ada"})
	boom := errors.New("boom")
	c := submit.New(f.store, f.validator, submit.WithHandler(func(context.Context, submit.Snapshot, submit.Handle) error {
		return boom
	}))

	_, err := c.Submit(context.Background())
	var handlerErr *submit.SubmitHandlerError
	if !errors.As(err, &handlerErr) || !errors.Is(err, boom) {
		t.Fatalf("submit error = %v, want SubmitHandlerError wrapping boom", err)
	}
	if c.State() != submit.Idle {
		t.Fatalf("state = %v, want idle", c.State())
	}
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	f := newFixture(t, map[string]any{"name": "Ada"})
	entered := make(chan struct{})
	release := make(chan struct{})
	c := submit.New(f.store, f.validator, submit.WithHandler(func(context.Context, submit.Snapshot, submit.Handle) error {
		close(entered)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-entered

	if _, err := c.Submit(context.Background()); !errors.Is(err, submit.ErrSubmitInProgress) {
		t.Fatalf("concurrent submit error = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("submit from settled: %v", err)
	}
}

func TestSubmit_WaitsForSettler(t *testing.T) {
	f := newFixture(t, nil)
	settler := submit.SettlerFunc(func(context.Context) error {
		_, err := f.store.Set("name", "written by an effect")
		return err
	})
	c := submit.New(f.store, f.validator, submit.WithSettler(settler))

	snap, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.Values["name"] != "written by an effect" {
		t.Fatalf("snapshot taken before settling: %v", snap.Values)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = submit.New(f.store, f.validator, submit.WithSettler(submit.SettlerFunc(func(ctx context.Context) error {
		return ctx.Err()
	})))
	if _, err := c.Submit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled submit error = %v", err)
	}
}

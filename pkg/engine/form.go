// Package engine composes the form state components behind one handle. A
// write goes to the store first and is visible to the next Get before any
// follow-up starts; the change then fans out to on-change validation, the
// effect scheduler and the remote fields that refresh on it. Effect writes and
// remote values re-enter the same path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/internal/settle"
	"github.com/goliatone/go-formstate/pkg/effects"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/remote"
	"github.com/goliatone/go-formstate/pkg/rowgroup"
	"github.com/goliatone/go-formstate/pkg/store"
	"github.com/goliatone/go-formstate/pkg/submit"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// ErrClosed is returned by writes to a closed form.
var ErrClosed = errors.New("engine: form closed")

// Form is one live form instance. It is safe for concurrent use.
type Form struct {
	schema    *model.Schema
	store     *store.Store
	validator *validation.Engine
	effects   *effects.Scheduler
	remote    *remote.Dispatcher
	rows      *rowgroup.Manager
	submitter *submit.Controller

	inflight         *settle.Group
	validateOnChange bool
	logger           *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New compiles def and wires a form for it.
func New(def model.Definition, options ...Option) (*Form, error) {
	cfg := defaultConfig()
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	handlers := effects.NewRegistry()
	for name, fn := range cfg.handlers {
		handlers.Register(name, fn)
	}
	validators := validation.NewRegistry()
	for name, fn := range cfg.validators {
		validators.Register(name, fn)
	}

	schema, err := model.Compile(def, model.CompileOptions{
		HasHandler:   handlers.Has,
		HasValidator: validators.Has,
	})
	if err != nil {
		return nil, err
	}
	for _, cycle := range schema.Cycles() {
		cfg.logger.Warn("engine: effect graph has a cycle; propagation is bounded at runtime", "form", def.ID, "cycle", cycle)
	}

	st, err := store.New(schema, store.WithInitialValues(cfg.initial), store.WithRowKeyFunc(cfg.rowKey))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), cfg.logger.With("form", def.ID)))
	f := &Form{
		schema:           schema,
		store:            st,
		inflight:         &settle.Group{},
		validateOnChange: cfg.validateOnChange,
		logger:           cfg.logger,
		ctx:              ctx,
		cancel:           cancel,
	}

	f.validator = validation.New(schema, st,
		validation.WithRegistry(validators),
		validation.WithMessages(cfg.messages),
		validation.WithConcurrency(cfg.concurrency),
		validation.WithLogger(cfg.logger),
	)

	f.effects, err = effects.New(schema, st, effects.SinkFunc(f.commitEffect),
		effects.WithRegistry(handlers),
		effects.WithMaxDepth(cfg.maxDepth),
		effects.WithErrorHandler(cfg.onError),
		effects.WithSettleGroup(f.inflight),
		effects.WithLogger(cfg.logger),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	fetcher := cfg.fetcher
	if fetcher == nil {
		fetcher = remote.NewHTTPFetcher(cfg.client)
	}
	f.remote, err = remote.New(schema, st, fetcher,
		remote.WithCommit(f.commitRemote),
		remote.WithSettleGroup(f.inflight),
		remote.WithLogger(cfg.logger),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	f.rows = rowgroup.New(st,
		rowgroup.WithObservers(f.validator, f.effects, f.remote),
		rowgroup.WithChangeHook(func(ctx context.Context, change store.Change) {
			f.propagate(ctx, effects.NewPropagation(change.Key), change)
		}),
		rowgroup.WithLogger(cfg.logger),
	)

	transformers := cfg.transformers
	if cfg.sanitize {
		transformers = append([]submit.Transformer{submit.Sanitize(schema)}, transformers...)
	}
	f.submitter = submit.New(st, f.validator,
		submit.WithSettler(submit.SettlerFunc(f.inflight.Wait)),
		submit.WithHandler(cfg.submitHandler),
		submit.WithHandle(f),
		submit.WithTransformers(transformers...),
		submit.WithLogger(cfg.logger),
	)
	return f, nil
}

// Schema returns the compiled definition.
func (f *Form) Schema() *model.Schema {
	return f.schema
}

// Get returns the current value at key.
func (f *Form) Get(key string) (any, error) {
	return f.store.Get(key)
}

// Set writes value at key. The write is visible to Get when Set returns;
// validation, effects and remote refreshes follow asynchronously.
func (f *Form) Set(key string, value any) error {
	if f.closed.Load() {
		return ErrClosed
	}
	change, err := f.store.Set(key, value)
	if err != nil {
		return err
	}
	f.propagate(f.ctx, effects.NewPropagation(key), change)
	return nil
}

func (f *Form) commitEffect(ctx context.Context, prop effects.Propagation, key string, value any) error {
	if f.closed.Load() {
		return ErrClosed
	}
	change, err := f.store.Set(key, value)
	if err != nil {
		return err
	}
	f.propagate(ctx, prop, change)
	return nil
}

// commitRemote writes a fetched value. A refresh started by a change carries
// that change's propagation in ctx, so the write counts one cascade deeper;
// a caller-initiated dispatch starts a new one.
func (f *Form) commitRemote(ctx context.Context, key string, value any, current remote.Guard) error {
	if f.closed.Load() {
		return ErrClosed
	}
	prop, ok := effects.PropagationFromContext(ctx)
	if ok {
		prop = prop.Next()
	} else {
		prop = effects.NewPropagation(key)
	}
	change, err := remote.GuardedUpdate(f.store, key, value, current)
	if err != nil {
		return err
	}
	f.propagate(ctx, prop, change)
	return nil
}

// propagate fans a committed change out to its followers.
func (f *Form) propagate(ctx context.Context, prop effects.Propagation, change store.Change) {
	if f.validateOnChange {
		key := change.Key
		f.inflight.Go(func() {
			if _, err := f.validator.ValidateField(ctx, key); err != nil {
				ctxlog.FromContextOr(ctx, f.logger).Debug("engine: on-change validation skipped", "key", key, "error", err)
			}
		})
	}

	f.effects.OnChange(ctx, prop, change)

	deps := f.remote.Dependents(change.Key)
	if change.Row != "" {
		deps = append(deps, f.remote.Dependents(model.ColumnKey(change.Field, change.Child))...)
		deps = append(deps, f.remote.Dependents(change.Field)...)
	}
	if len(deps) == 0 || f.effects.Exceeded(ctx, prop, change.Key) {
		return
	}
	refreshCtx := effects.ContextWithPropagation(ctx, prop)
	for _, dep := range deps {
		dep := dep
		f.inflight.Go(func() {
			_, _ = f.remote.Refresh(refreshCtx, dep)
		})
	}
}

// Subscribe registers listener for writes to key.
func (f *Form) Subscribe(key string, listener store.Listener) (func(), error) {
	return f.store.Subscribe(key, listener)
}

// Snapshot returns an immutable view of the current values.
func (f *Form) Snapshot() store.Snapshot {
	return f.store.Snapshot()
}

// Dirty reports whether key was written since construction or Reset.
func (f *Form) Dirty(key string) bool {
	return f.store.Dirty(key)
}

// Reset restores the initial values and clears recorded validation errors,
// remote options and failures. Pending effect runs and lookups become stale.
func (f *Form) Reset() {
	f.effects.Reset()
	f.remote.Reset()
	f.store.Reset()
	f.validator.Reset()
}

// Dispatch runs a remote lookup for key and waits for it.
func (f *Form) Dispatch(ctx context.Context, key, query string) (remote.Result, error) {
	return f.remote.Dispatch(ctx, key, query)
}

// Search starts a remote lookup for key without waiting for it.
func (f *Form) Search(key, query string) {
	f.remote.DispatchAsync(f.ctx, key, query)
}

// Options returns the last applied remote options for key.
func (f *Form) Options(key string) []remote.Choice {
	return f.remote.Options(key)
}

// RemoteError returns the recorded remote failure for key, or nil.
func (f *Form) RemoteError(key string) error {
	return f.remote.Err(key)
}

// ValidateField validates key now.
func (f *Form) ValidateField(ctx context.Context, key string) (validation.Result, error) {
	return f.validator.ValidateField(ctx, key)
}

// ValidateAll validates every field and row cell and waits for all of them.
func (f *Form) ValidateAll(ctx context.Context) validation.ErrorMap {
	return f.validator.ValidateAll(ctx)
}

// Errors returns the per-field messages: validation failures first, then
// remote failures of keys that have no validation error.
func (f *Form) Errors() validation.ErrorMap {
	out := f.validator.Errors()
	for _, err := range f.remote.Errors() {
		if _, ok := out[err.Field]; !ok {
			out[err.Field] = err.Error()
		}
	}
	return out
}

// AddRow appends a row to group and returns its key.
func (f *Form) AddRow(group string, initial map[string]any) (string, error) {
	if f.closed.Load() {
		return "", ErrClosed
	}
	return f.rows.AddRow(f.ctx, group, initial)
}

// DeleteRow removes row from group.
func (f *Form) DeleteRow(group, row string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	return f.rows.DeleteRow(f.ctx, group, row)
}

// MoveRow moves row to index within group.
func (f *Form) MoveRow(group, row string, index int) error {
	if f.closed.Load() {
		return ErrClosed
	}
	return f.rows.MoveRow(f.ctx, group, row, index)
}

// Rows returns the rows of group.
func (f *Form) Rows(group string) (store.Rows, error) {
	return f.rows.Rows(group)
}

// CanAdd reports whether group accepts another row.
func (f *Form) CanAdd(group string) bool {
	return f.rows.CanAdd(group)
}

// CanDelete reports whether a row can be removed from group.
func (f *Form) CanDelete(group string) bool {
	return f.rows.CanDelete(group)
}

// ResolveSpan returns the span config for the row at index of group.
func (f *Form) ResolveSpan(group string, index int) (model.RowSpanConfig, bool) {
	return f.rows.ResolveSpan(group, index)
}

// Submit settles pending work, validates the form and invokes the submit
// handler with a snapshot.
func (f *Form) Submit(ctx context.Context) (submit.Snapshot, error) {
	return f.submitter.Submit(ctx)
}

// State returns the submission phase.
func (f *Form) State() submit.State {
	return f.submitter.State()
}

// OnStateChange registers fn for submission phase transitions.
func (f *Form) OnStateChange(fn func(submit.State)) func() {
	return f.submitter.OnStateChange(fn)
}

// Settle waits until effects, on-change validation and remote refreshes have
// drained and returns the structural errors reported since the last Settle.
func (f *Form) Settle(ctx context.Context) error {
	return f.effects.Settle(ctx)
}

// Close cancels in-flight work and rejects further writes.
func (f *Form) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.cancel()
	return nil
}

// Package validation evaluates declarative rule lists against a form's values
// and keeps the resulting per-key error state. ValidateField runs one key and
// records its outcome only if no newer run for the key started meanwhile;
// ValidateAll and ValidateSnapshot evaluate every field and row cell concurrently against one
// snapshot and wait for all of them.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/pkg/generation"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// Result is the outcome of validating one key.
type Result struct {
	Valid   bool
	Message string
}

// ErrorMap maps keys to their failure message. Valid keys are omitted.
type ErrorMap map[string]string

// Keys returns the failing keys in sorted order.
func (m ErrorMap) Keys() []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Reader provides the snapshots validation reads from.
type Reader interface {
	Snapshot() store.Snapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the custom validator registry.
func WithRegistry(registry *Registry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.registry = registry
		}
	}
}

// WithMessages overrides the default message templates per rule kind.
func WithMessages(overrides map[string]string) Option {
	return func(e *Engine) {
		e.messages = NewMessages(overrides)
	}
}

// WithConcurrency bounds how many keys ValidateAll evaluates at once. Zero or
// less means unbounded.
func WithConcurrency(limit int) Option {
	return func(e *Engine) {
		e.limit = limit
	}
}

// WithTracker shares a generation tracker with other components.
func WithTracker(tracker *generation.Tracker) Option {
	return func(e *Engine) {
		if tracker != nil {
			e.tokens = tracker
		}
	}
}

// WithLogger sets the logger used when no logger travels in the context.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = ctxlog.OrDiscard(logger)
	}
}

// Engine validates values read from a Reader. It is safe for concurrent use.
type Engine struct {
	schema   *model.Schema
	reader   Reader
	registry *Registry
	messages *Messages
	tokens   *generation.Tracker
	limit    int
	logger   *slog.Logger

	mu     sync.RWMutex
	errors map[string]string
}

// New returns an engine for schema reading values from reader.
func New(schema *model.Schema, reader Reader, options ...Option) *Engine {
	e := &Engine{
		schema:   schema,
		reader:   reader,
		registry: NewRegistry(),
		messages: NewMessages(nil),
		tokens:   generation.New(),
		logger:   ctxlog.Discard(),
		errors:   make(map[string]string),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// Registry returns the custom validator registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ValidateField evaluates the rules of key against the current value. The
// error state for key is updated only if this run is still the latest one for
// key when it finishes.
func (e *Engine) ValidateField(ctx context.Context, key string) (Result, error) {
	_, field, err := e.schema.Lookup(key)
	if err != nil {
		return Result{}, err
	}
	tok := e.tokens.Next(key)
	snap := e.reader.Snapshot()
	value, ok := snap.Get(key)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", store.ErrUnknownRow, key)
	}

	msg := e.evaluate(ctx, target{key: key, field: field, value: value}, snap.Get)
	if !e.record(key, tok, msg) {
		ctxlog.FromContextOr(ctx, e.logger).Debug("validation: discarded stale result", "key", key)
	}
	return Result{Valid: msg == "", Message: msg}, nil
}

// ValidateAll evaluates every top-level field (row groups included, for their
// group-level rules) and every row cell concurrently against one snapshot. A
// slow or failing validator never stops the others; the call returns once all
// of them settled.
func (e *Engine) ValidateAll(ctx context.Context) ErrorMap {
	return e.ValidateSnapshot(ctx, e.reader.Snapshot())
}

// ValidateSnapshot is ValidateAll against a snapshot the caller already holds,
// so the values it reports on are exactly the ones it checked.
func (e *Engine) ValidateSnapshot(ctx context.Context, snap store.Snapshot) ErrorMap {
	targets := e.targets(snap)

	tokens := make([]generation.Token, len(targets))
	for i, t := range targets {
		tokens[i] = e.tokens.Next(t.key)
	}

	messages := make([]string, len(targets))
	var g errgroup.Group
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			messages[i] = e.evaluate(ctx, t, snap.Get)
			return nil
		})
	}
	_ = g.Wait()

	out := make(ErrorMap)
	for i, t := range targets {
		if messages[i] != "" {
			out[t.key] = messages[i]
		}
		e.record(t.key, tokens[i], messages[i])
	}
	return out
}

func (e *Engine) targets(snap store.Snapshot) []target {
	var out []target
	for _, field := range e.schema.Fields() {
		value, _ := snap.Get(field.ID)
		out = append(out, target{key: field.ID, field: field, value: value})
		if field.Type != model.FieldTypeRows {
			continue
		}
		for _, row := range snap.Rows(field.ID) {
			for _, child := range e.schema.Children(field.ID) {
				out = append(out, target{
					key:   model.CellKey(field.ID, row.Key, child.ID),
					field: child,
					value: row.Values[child.ID],
				})
			}
		}
	}
	return out
}

// record stores msg for key if tok is still current and reports whether it
// did.
func (e *Engine) record(key string, tok generation.Token, msg string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tokens.Current(key, tok) {
		return false
	}
	if msg == "" {
		delete(e.errors, key)
	} else {
		e.errors[key] = msg
	}
	return true
}

// Errors returns a copy of the recorded error state.
func (e *Engine) Errors() ErrorMap {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(ErrorMap, len(e.errors))
	for key, msg := range e.errors {
		out[key] = msg
	}
	return out
}

// ErrorFor returns the recorded message for key.
func (e *Engine) ErrorFor(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	msg, ok := e.errors[key]
	return msg, ok
}

// Clear drops the error for key and makes pending runs for it stale.
func (e *Engine) Clear(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.errors, key)
	e.tokens.Forget(key)
}

// Reset drops every recorded error.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.errors {
		e.tokens.Forget(key)
	}
	e.errors = make(map[string]string)
}

// ForgetRow drops the error state of a removed row so it cannot leak into a
// row that later reuses the position.
func (e *Engine) ForgetRow(group, row string) {
	prefix := model.RowPrefix(group, row)
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.errors {
		if strings.HasPrefix(key, prefix) {
			delete(e.errors, key)
		}
	}
	e.tokens.ForgetPrefix(prefix)
}

// Package submit sequences a form submission: wait for pending effects,
// validate every field, snapshot the values and hand them to the host.
//
// The controller moves through Idle, Validating, Submitting and Settled. An
// invalid form or a failing handler returns it to Idle so the user can retry;
// a successful submission leaves it Settled until the next Submit.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/pkg/store"
	"github.com/goliatone/go-formstate/pkg/validation"
)

// State is a submission phase.
type State int

const (
	Idle State = iota
	Validating
	Submitting
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the immutable result of a submission.
type Snapshot struct {
	Values  map[string]any      `json:"values"`
	RowKeys map[string][]string `json:"rowKeys,omitempty"`
	Errors  validation.ErrorMap `json:"errors,omitempty"`
	Version uint64              `json:"version"`
}

// Handle lets the submit handler read and write the form.
type Handle interface {
	Get(key string) (any, error)
	Set(key string, value any) error
}

// Handler receives a valid, transformed snapshot.
type Handler func(ctx context.Context, snap Snapshot, form Handle) error

// Transformer rewrites a snapshot before the handler sees it.
type Transformer func(ctx context.Context, snap *Snapshot) error

// Source provides the value tree.
type Source interface {
	Snapshot() store.Snapshot
}

// Validator validates every field of snap and reports the failures.
type Validator interface {
	ValidateSnapshot(ctx context.Context, snap store.Snapshot) validation.ErrorMap
}

// Settler waits for pending asynchronous work.
type Settler interface {
	Settle(ctx context.Context) error
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(ctx context.Context) error

// Settle implements Settler.
func (fn SettlerFunc) Settle(ctx context.Context) error { return fn(ctx) }

// Option configures a Controller.
type Option func(*Controller)

// WithHandler sets the host submit handler.
func WithHandler(handler Handler) Option {
	return func(c *Controller) {
		c.handler = handler
	}
}

// WithHandle sets the form handle passed to the handler.
func WithHandle(handle Handle) Option {
	return func(c *Controller) {
		c.handle = handle
	}
}

// WithSettler sets what Submit waits on before validating.
func WithSettler(settler Settler) Option {
	return func(c *Controller) {
		c.settler = settler
	}
}

// WithTransformers appends snapshot transformers, applied in order.
func WithTransformers(transformers ...Transformer) Option {
	return func(c *Controller) {
		for _, t := range transformers {
			if t != nil {
				c.transformers = append(c.transformers, t)
			}
		}
	}
}

// WithLogger sets the logger used when no logger travels in the context.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = ctxlog.OrDiscard(logger)
	}
}

// Controller runs submissions one at a time.
type Controller struct {
	source       Source
	validator    Validator
	settler      Settler
	handler      Handler
	handle       Handle
	transformers []Transformer
	logger       *slog.Logger

	mu        sync.Mutex
	state     State
	observers map[uint64]func(State)
	nextObs   uint64
}

// New returns an Idle controller.
func New(source Source, validator Validator, options ...Option) *Controller {
	c := &Controller{
		source:    source,
		validator: validator,
		logger:    ctxlog.Discard(),
		observers: make(map[uint64]func(State)),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for every transition and returns a func that
// removes it.
func (c *Controller) OnStateChange(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextObs++
	id := c.nextObs
	c.observers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	c.state = to
	observers := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()
	for _, fn := range observers {
		fn(to)
	}
}

// Submit settles pending effects, validates every field and, when the form is
// valid, invokes the handler with a snapshot of the values. The handler gets
// the very values that were validated; writes landing meanwhile are not part
// of this submission. An invalid form
// returns *InvalidError and the handler is not called. A handler failure is
// returned as *SubmitHandlerError. Both leave the controller Idle.
func (c *Controller) Submit(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	busy := c.state == Validating || c.state == Submitting
	if !busy {
		c.state = Validating
	}
	c.mu.Unlock()
	if busy {
		return Snapshot{}, ErrSubmitInProgress
	}
	c.transition(Validating)
	logger := ctxlog.FromContextOr(ctx, c.logger)

	if c.settler != nil {
		if err := c.settler.Settle(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.transition(Idle)
				return Snapshot{}, ctxErr
			}
			logger.Warn("submit: effects settled with errors", "error", err)
		}
	}

	view := c.source.Snapshot()
	errs := c.validator.ValidateSnapshot(ctx, view)
	if len(errs) > 0 {
		logger.Debug("submit: form invalid", "fields", errs.Keys())
		c.transition(Idle)
		return Snapshot{Errors: errs}, &InvalidError{Errors: errs}
	}

	c.transition(Submitting)
	snap := Snapshot{
		Values:  view.Values(),
		RowKeys: view.RowKeys(),
		Errors:  validation.ErrorMap{},
		Version: view.Version(),
	}
	for _, transform := range c.transformers {
		if err := transform(ctx, &snap); err != nil {
			c.transition(Idle)
			return snap, &SubmitHandlerError{Err: fmt.Errorf("transform: %w", err)}
		}
	}

	if c.handler != nil {
		if err := c.handler(ctx, snap, c.handle); err != nil {
			logger.Warn("submit: handler failed", "error", err)
			c.transition(Idle)
			return snap, &SubmitHandlerError{Err: err}
		}
	}
	c.transition(Settled)
	return snap, nil
}

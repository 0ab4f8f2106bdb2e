// Package effects runs declared cross-field reactions. Every store change is
// matched against an index from source keys to descriptors; matching handlers
// run concurrently against the snapshot taken at scheduling time and their
// partial updates are committed in declaration order through a Sink, which
// feeds the writes back into the same pipeline one level deeper. Propagation
// stops at a depth bound. Results of a run superseded by a newer run of the
// same effect for the same row are dropped.
package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/internal/settle"
	"github.com/goliatone/go-formstate/pkg/expr"
	"github.com/goliatone/go-formstate/pkg/generation"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// DefaultMaxDepth bounds how many cascades one origin change may cause.
const DefaultMaxDepth = 8

// Reader provides the snapshots handlers read from.
type Reader interface {
	Snapshot() store.Snapshot
}

// Sink commits effect writes. Implementations route them through the same
// set path callers use, passing prop along so nested changes count towards
// the depth bound.
type Sink interface {
	Commit(ctx context.Context, prop Propagation, key string, value any) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, prop Propagation, key string, value any) error

// Commit delegates to the function.
func (fn SinkFunc) Commit(ctx context.Context, prop Propagation, key string, value any) error {
	return fn(ctx, prop, key, value)
}

type origin struct {
	key  string
	once sync.Once
}

// Propagation identifies one origin change and how deep the cascade it caused
// currently is.
type Propagation struct {
	origin *origin
	depth  int
}

// NewPropagation starts a propagation for a caller-initiated change of key.
func NewPropagation(key string) Propagation {
	return Propagation{origin: &origin{key: key}}
}

// Next returns the propagation one cascade deeper.
func (p Propagation) Next() Propagation {
	if p.origin == nil {
		p.origin = &origin{}
	}
	return Propagation{origin: p.origin, depth: p.depth + 1}
}

type propagationKey struct{}

// ContextWithPropagation returns ctx carrying prop, so work started from a
// change (remote refreshes) commits its writes within the same cascade.
func ContextWithPropagation(ctx context.Context, prop Propagation) context.Context {
	return context.WithValue(ctx, propagationKey{}, prop)
}

// PropagationFromContext returns the propagation carried by ctx.
func PropagationFromContext(ctx context.Context) (Propagation, bool) {
	if ctx == nil {
		return Propagation{}, false
	}
	prop, ok := ctx.Value(propagationKey{}).(Propagation)
	return prop, ok
}

// Depth is the number of cascades between the origin and this change.
func (p Propagation) Depth() int { return p.depth }

// Origin is the key of the caller-initiated change.
func (p Propagation) Origin() string {
	if p.origin == nil {
		return ""
	}
	return p.origin.key
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRegistry sets the handler registry used for descriptors without Run.
func WithRegistry(registry *Registry) Option {
	return func(s *Scheduler) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth. Values below one are ignored.
func WithMaxDepth(depth int) Option {
	return func(s *Scheduler) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithErrorHandler receives structural errors (cycles, undeclared writes,
// handler failures) as they happen.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithTracker shares a generation tracker with other components.
func WithTracker(tracker *generation.Tracker) Option {
	return func(s *Scheduler) {
		if tracker != nil {
			s.tokens = tracker
		}
	}
}

// WithSettleGroup shares the in-flight work counter with other components.
func WithSettleGroup(group *settle.Group) Option {
	return func(s *Scheduler) {
		if group != nil {
			s.inflight = group
		}
	}
}

// WithLogger sets the logger used when no logger travels in the context.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = ctxlog.OrDiscard(logger)
	}
}

type entry struct {
	order    int
	desc     *model.EffectDescriptor
	run      model.EffectFunc
	when     *expr.Expr
	effected map[string]struct{}
}

// Scheduler dispatches effects for store changes. It is safe for concurrent
// use.
type Scheduler struct {
	schema   *model.Schema
	reader   Reader
	sink     Sink
	registry *Registry
	tokens   *generation.Tracker
	inflight *settle.Group
	maxDepth int
	onError  func(error)
	logger   *slog.Logger

	entries []*entry
	index   map[string][]*entry

	mu     sync.Mutex
	errors []error
}

// New builds a scheduler for the effects declared in schema. Descriptors
// naming unknown handlers or carrying malformed When expressions fail here.
func New(schema *model.Schema, reader Reader, sink Sink, options ...Option) (*Scheduler, error) {
	if schema == nil || reader == nil || sink == nil {
		return nil, errors.New("effects: schema, reader and sink are required")
	}
	s := &Scheduler{
		schema:   schema,
		reader:   reader,
		sink:     sink,
		registry: NewRegistry(),
		tokens:   generation.New(),
		inflight: &settle.Group{},
		maxDepth: DefaultMaxDepth,
		logger:   ctxlog.Discard(),
		index:    make(map[string][]*entry),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}

	for i, desc := range schema.Effects() {
		run := desc.Run
		if run == nil {
			fn, ok := s.registry.Lookup(desc.Handler)
			if !ok {
				return nil, fmt.Errorf("%w: effect %q names %q", ErrUnknownHandler, desc.ID, desc.Handler)
			}
			run = fn
		}
		when, err := expr.Compile(desc.When)
		if err != nil {
			return nil, fmt.Errorf("effects: effect %q: %w", desc.ID, err)
		}
		e := &entry{order: i, desc: desc, run: run, when: when, effected: make(map[string]struct{}, len(desc.Effected))}
		for _, ref := range desc.Effected {
			e.effected[ref] = struct{}{}
		}
		for _, src := range desc.Sources {
			s.index[src] = append(s.index[src], e)
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Match returns the descriptors a change of key schedules, in declaration
// order. A cell change matches its exact key, its column reference and its
// row group.
func (s *Scheduler) Match(change store.Change) []*model.EffectDescriptor {
	entries := s.match(change)
	out := make([]*model.EffectDescriptor, len(entries))
	for i, e := range entries {
		out[i] = e.desc
	}
	return out
}

func (s *Scheduler) match(change store.Change) []*entry {
	refs := []string{change.Key}
	if change.Row != "" {
		refs = append(refs, model.ColumnKey(change.Field, change.Child), change.Field)
	}
	seen := make(map[*entry]struct{})
	var out []*entry
	for _, ref := range refs {
		for _, e := range s.index[ref] {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// OnChange schedules the effects matching change. It returns immediately;
// handlers run asynchronously and Settle waits for them. A change at or beyond
// the depth bound aborts its propagation and reports one EffectCycleError per
// origin.
func (s *Scheduler) OnChange(ctx context.Context, prop Propagation, change store.Change) {
	entries := s.match(change)
	if len(entries) == 0 {
		return
	}
	logger := ctxlog.FromContextOr(ctx, s.logger)

	if s.Exceeded(ctx, prop, change.Key) {
		return
	}

	snap := s.reader.Snapshot()
	type scheduled struct {
		entry *entry
		scope string
		tok   generation.Token
		ec    *runContext
	}
	runs := make([]scheduled, 0, len(entries))
	for _, e := range entries {
		ec := &runContext{schema: s.schema, desc: e.desc, change: change, snap: snap, trigger: change.Key}
		ok, err := e.when.Eval(ec.Get)
		if err != nil {
			s.report(&EffectError{Effect: e.desc.ID, Trigger: change.Key, Err: err})
			continue
		}
		if !ok {
			continue
		}
		scope := scopeKey(change, e.desc.ID)
		runs = append(runs, scheduled{entry: e, scope: scope, tok: s.tokens.Next(scope), ec: ec})
	}
	if len(runs) == 0 {
		return
	}

	type outcome struct {
		updates map[string]any
		err     error
	}
	results := make([]chan outcome, len(runs))
	for i, r := range runs {
		i, r := i, r
		results[i] = make(chan outcome, 1)
		s.inflight.Go(func() {
			updates, err := invoke(ctx, r.entry.run, r.ec)
			results[i] <- outcome{updates: updates, err: err}
		})
	}

	s.inflight.Go(func() {
		for i, r := range runs {
			res := <-results[i]
			id := r.entry.desc.ID
			if res.err != nil {
				logger.Error("effects: handler failed", "effect", id, "trigger", change.Key, "error", res.err)
				s.report(&EffectError{Effect: id, Trigger: change.Key, Err: res.err})
				continue
			}
			if !s.tokens.Current(r.scope, r.tok) {
				logger.Debug("effects: discarded stale result", "effect", id, "trigger", change.Key)
				continue
			}
			keys, writes, undeclared := s.resolve(r.entry, change, res.updates)
			if len(undeclared) > 0 {
				err := &UndeclaredWriteError{Effect: id, Keys: undeclared}
				logger.Error("effects: undeclared write rejected", "effect", id, "keys", undeclared)
				s.report(err)
				continue
			}
			for _, key := range keys {
				if err := s.sink.Commit(ctx, prop.Next(), key, writes[key]); err != nil {
					s.report(&EffectError{Effect: id, Trigger: change.Key, Err: err})
				}
			}
		}
	})
}

// Exceeded reports whether a change of key at prop has reached the depth
// bound. The first time an origin reaches it an EffectCycleError is reported.
func (s *Scheduler) Exceeded(ctx context.Context, prop Propagation, key string) bool {
	if prop.depth < s.maxDepth {
		return false
	}
	if prop.origin == nil {
		prop.origin = &origin{key: key}
	}
	prop.origin.once.Do(func() {
		err := &EffectCycleError{Origin: prop.Origin(), Key: key, Depth: prop.depth}
		ctxlog.FromContextOr(ctx, s.logger).Warn("effects: propagation aborted", "origin", err.Origin, "key", err.Key, "depth", err.Depth)
		s.report(err)
	})
	return true
}

func invoke(ctx context.Context, fn model.EffectFunc, ec model.EffectContext) (updates map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, ec)
}

// scopeKey identifies the staleness scope of an effect run: the effect and,
// for cell triggers, the row.
func scopeKey(change store.Change, effect string) string {
	if change.Row != "" {
		return model.RowPrefix(change.Field, change.Row) + "#" + effect
	}
	return "#" + effect
}

// resolve maps update keys to store keys and reports the ones the descriptor
// does not declare. Keys are returned sorted.
func (s *Scheduler) resolve(e *entry, change store.Change, updates map[string]any) ([]string, map[string]any, []string) {
	writes := make(map[string]any, len(updates))
	var undeclared []string
	for raw, value := range updates {
		key, ok := s.declared(e, change, raw)
		if !ok {
			undeclared = append(undeclared, raw)
			continue
		}
		writes[key] = value
	}
	sort.Strings(undeclared)
	keys := make([]string, 0, len(writes))
	for key := range writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, writes, undeclared
}

func (s *Scheduler) declared(e *entry, change store.Change, raw string) (string, bool) {
	k, err := model.ParseKey(raw)
	if err != nil {
		return "", false
	}
	switch {
	case k.IsCell():
		_, ok := e.effected[k.Column()]
		return raw, ok
	case k.IsColumn():
		if _, ok := e.effected[raw]; !ok || change.Row == "" || change.Field != k.Field {
			return "", false
		}
		return model.CellKey(k.Field, change.Row, k.Child), true
	default:
		_, ok := e.effected[raw]
		return raw, ok
	}
}

func (s *Scheduler) report(err error) {
	s.mu.Lock()
	s.errors = append(s.errors, err)
	s.mu.Unlock()
	if s.onError != nil {
		s.onError(err)
	}
}

// Settle waits until all scheduled effect work has drained and returns the
// structural errors reported since the previous Settle, joined.
func (s *Scheduler) Settle(ctx context.Context) error {
	if err := s.inflight.Wait(ctx); err != nil {
		return err
	}
	return s.TakeErrors()
}

// TakeErrors returns and clears the errors reported so far, joined.
func (s *Scheduler) TakeErrors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := errors.Join(s.errors...)
	s.errors = nil
	return err
}

// Reset makes every pending run stale. Reported errors are kept for the next
// Settle.
func (s *Scheduler) Reset() {
	s.tokens.ForgetPrefix("")
}

// ForgetRow makes pending runs triggered from a removed row stale.
func (s *Scheduler) ForgetRow(group, row string) {
	s.tokens.ForgetPrefix(model.RowPrefix(group, row))
}

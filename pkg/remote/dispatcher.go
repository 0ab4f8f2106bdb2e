// Package remote hydrates fields from asynchronous lookups. Every dispatch for
// a key takes a new generation token; a response is applied only if its token
// is still the key's latest, so responses that arrive out of order never
// overwrite newer ones. Failures are recorded per field and never block other
// fields.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formstate/internal/ctxlog"
	"github.com/goliatone/go-formstate/internal/settle"
	"github.com/goliatone/go-formstate/pkg/generation"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// Reader provides the snapshot a fetch reads form values from.
type Reader interface {
	Snapshot() store.Snapshot
}

// Guard reports, at the moment of the write, whether the dispatch that
// produced a value is still the latest for its key.
type Guard func() bool

// CommitFunc writes a fetched value through the engine's set path. It must
// check current atomically with the write and return ErrStaleResponse without
// writing when it reports false.
type CommitFunc func(ctx context.Context, key string, value any, current Guard) error

// Updater is the store's compare-and-write path.
type Updater interface {
	Update(key string, fn func(current any) (any, error)) (store.Change, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCommit sets where SetValue results are written. Without it values are
// written straight to the reader when it is an Updater.
func WithCommit(fn CommitFunc) Option {
	return func(d *Dispatcher) {
		d.commit = fn
	}
}

// WithSettleGroup shares the in-flight work counter with other components.
func WithSettleGroup(group *settle.Group) Option {
	return func(d *Dispatcher) {
		if group != nil {
			d.inflight = group
		}
	}
}

// WithLogger sets the logger used when no logger travels in the context.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = ctxlog.OrDiscard(logger)
	}
}

// Dispatcher runs remote lookups per key. It is safe for concurrent use.
type Dispatcher struct {
	schema   *model.Schema
	reader   Reader
	fetcher  Fetcher
	commit   CommitFunc
	tokens   *generation.Tracker
	inflight *settle.Group
	logger   *slog.Logger

	// dependents maps a field to the remote fields refreshed when it changes.
	dependents map[string][]string

	mu      sync.RWMutex
	options map[string][]Choice
	errs    map[string]*RemoteFetchError
	queries map[string]string
}

// New returns a dispatcher for schema.
func New(schema *model.Schema, reader Reader, fetcher Fetcher, options ...Option) (*Dispatcher, error) {
	if schema == nil || reader == nil || fetcher == nil {
		return nil, fmt.Errorf("remote: schema, reader and fetcher are required")
	}
	d := &Dispatcher{
		schema:     schema,
		reader:     reader,
		fetcher:    fetcher,
		tokens:     generation.New(),
		inflight:   &settle.Group{},
		logger:     ctxlog.Discard(),
		dependents: make(map[string][]string),
		options:    make(map[string][]Choice),
		errs:       make(map[string]*RemoteFetchError),
		queries:    make(map[string]string),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(d)
	}
	if d.commit == nil {
		if updater, ok := reader.(Updater); ok {
			d.commit = func(_ context.Context, key string, value any, current Guard) error {
				_, err := GuardedUpdate(updater, key, value, current)
				return err
			}
		}
	}

	for _, field := range schema.Fields() {
		if field.Remote == nil {
			continue
		}
		for _, dep := range field.Remote.RefreshOn {
			d.dependents[dep] = append(d.dependents[dep], field.ID)
		}
	}
	return d, nil
}

// Dispatch fetches for key with query. If a newer dispatch for key started
// before this one resolved, nothing is applied and ErrStaleResponse is
// returned. A failed fetch is recorded for the key and returned as
// *RemoteFetchError.
func (d *Dispatcher) Dispatch(ctx context.Context, key, query string) (Result, error) {
	_, field, err := d.schema.Lookup(key)
	if err != nil {
		return Result{}, err
	}
	d.inflight.Add()
	defer d.inflight.Done()

	tok := d.tokens.Next(key)
	d.mu.Lock()
	d.queries[key] = query
	d.mu.Unlock()

	logger := ctxlog.FromContextOr(ctx, d.logger)
	res, fetchErr := d.fetcher.Fetch(ctx, Request{
		Key:      key,
		Query:    query,
		Field:    field,
		Config:   field.Remote,
		Snapshot: d.reader.Snapshot(),
	})

	current := func() bool { return d.tokens.Current(key, tok) }

	d.mu.Lock()
	if !current() {
		d.mu.Unlock()
		logger.Debug("remote: discarded stale response", "key", key, "query", query)
		return Result{}, ErrStaleResponse
	}
	if fetchErr != nil {
		ferr := &RemoteFetchError{Field: key, Query: query, Err: fetchErr}
		d.errs[key] = ferr
		d.mu.Unlock()
		logger.Warn("remote: fetch failed", "key", key, "query", query, "error", fetchErr)
		return Result{}, ferr
	}
	delete(d.errs, key)
	d.options[key] = append([]Choice(nil), res.Options...)
	d.mu.Unlock()

	if !res.SetValue {
		return res, nil
	}
	target := key
	if field.Remote != nil && field.Remote.Target != "" {
		target = field.Remote.Target
	}
	if d.commit == nil {
		return res, fmt.Errorf("remote: no commit path for %q", target)
	}
	// No lock is held here: the commit notifies subscribers, which may
	// dispatch again.
	if err := d.commit(ctx, target, res.Value, current); err != nil {
		if errors.Is(err, ErrStaleResponse) {
			logger.Debug("remote: discarded stale value", "key", key, "target", target)
			return Result{}, ErrStaleResponse
		}
		return res, fmt.Errorf("remote: apply %q: %w", target, err)
	}
	return res, nil
}

// GuardedUpdate writes value at key through u unless current reports false
// under the write lock, in which case it returns ErrStaleResponse.
func GuardedUpdate(u Updater, key string, value any, current Guard) (store.Change, error) {
	return u.Update(key, func(any) (any, error) {
		if current != nil && !current() {
			return nil, ErrStaleResponse
		}
		return value, nil
	})
}

// DispatchAsync runs Dispatch in a tracked goroutine. Stale and failed
// outcomes are only logged and recorded.
func (d *Dispatcher) DispatchAsync(ctx context.Context, key, query string) {
	d.inflight.Go(func() {
		_, _ = d.Dispatch(ctx, key, query)
	})
}

// Refresh re-dispatches key with its last query.
func (d *Dispatcher) Refresh(ctx context.Context, key string) (Result, error) {
	query, _ := d.Query(key)
	return d.Dispatch(ctx, key, query)
}

// Dependents lists the remote fields to refresh when field changes.
func (d *Dispatcher) Dependents(field string) []string {
	return append([]string(nil), d.dependents[field]...)
}

// Options returns the last applied option list for key.
func (d *Dispatcher) Options(key string) []Choice {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Choice(nil), d.options[key]...)
}

// Err returns the recorded fetch failure for key, or nil.
func (d *Dispatcher) Err(key string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err, ok := d.errs[key]; ok {
		return err
	}
	return nil
}

// Errors returns the recorded fetch failures keyed by field, sorted by key.
func (d *Dispatcher) Errors() []*RemoteFetchError {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*RemoteFetchError, 0, len(d.errs))
	for _, err := range d.errs {
		out = append(out, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Query returns the last query dispatched for key.
func (d *Dispatcher) Query(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q, ok := d.queries[key]
	return q, ok
}

// Reset drops recorded options, failures and queries and makes pending
// dispatches stale.
func (d *Dispatcher) Reset() {
	d.tokens.ForgetPrefix("")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.options = make(map[string][]Choice)
	d.errs = make(map[string]*RemoteFetchError)
	d.queries = make(map[string]string)
}

// Settle waits for in-flight dispatches.
func (d *Dispatcher) Settle(ctx context.Context) error {
	return d.inflight.Wait(ctx)
}

// ForgetRow drops the state of a removed row and makes its pending
// dispatches stale.
func (d *Dispatcher) ForgetRow(group, row string) {
	prefix := model.RowPrefix(group, row)
	d.tokens.ForgetPrefix(prefix)
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.queries {
		if strings.HasPrefix(key, prefix) {
			delete(d.queries, key)
			delete(d.options, key)
			delete(d.errs, key)
		}
	}
	for key := range d.errs {
		if strings.HasPrefix(key, prefix) {
			delete(d.errs, key)
		}
	}
}

package remote

import (
	"context"

	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// Choice is one selectable option returned by a remote lookup.
type Choice struct {
	Value string         `json:"value"`
	Label string         `json:"label"`
	Data  map[string]any `json:"data,omitempty"`
}

// Result is a fetch outcome. Options become the field's option list; when
// SetValue is true Value is committed to the field (or its remote target).
type Result struct {
	Options  []Choice
	Value    any
	SetValue bool
}

// Request describes one dispatch.
type Request struct {
	Key      string
	Query    string
	Field    *model.Field
	Config   *model.RemoteConfig
	Snapshot store.Snapshot
}

// Fetcher performs the lookup for a request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}

// FetcherFunc adapts a function into a Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (Result, error)

// Fetch delegates to the function.
func (fn FetcherFunc) Fetch(ctx context.Context, req Request) (Result, error) {
	return fn(ctx, req)
}

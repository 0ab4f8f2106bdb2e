// Package formstate is the entry point of the form state engine. It re-exports
// the engine types so simple callers need a single import; the pkg/ packages
// stay available for finer control.
package formstate

import (
	"context"
	"io/fs"

	"github.com/goliatone/go-formstate/pkg/definition"
	"github.com/goliatone/go-formstate/pkg/effects"
	"github.com/goliatone/go-formstate/pkg/engine"
	"github.com/goliatone/go-formstate/pkg/model"
	pkgopenapi "github.com/goliatone/go-formstate/pkg/openapi"
	"github.com/goliatone/go-formstate/pkg/remote"
	"github.com/goliatone/go-formstate/pkg/rowgroup"
	"github.com/goliatone/go-formstate/pkg/store"
	"github.com/goliatone/go-formstate/pkg/submit"
)

// Form is a live form instance.
type Form = engine.Form

// Option configures New.
type Option = engine.Option

// Definition describes a form's fields and effects.
type Definition = model.Definition

// Field declares one form field.
type Field = model.Field

// EffectDescriptor declares a reaction to field changes.
type EffectDescriptor = model.EffectDescriptor

// Snapshot is the frozen payload handed to submit handlers.
type Snapshot = submit.Snapshot

// Change describes a committed value change.
type Change = store.Change

var (
	// ErrClosed is returned by mutations on a closed form.
	ErrClosed = engine.ErrClosed
	// ErrSubmitInProgress is returned when Submit is called while busy.
	ErrSubmitInProgress = submit.ErrSubmitInProgress
	// ErrStaleResponse marks remote responses superseded by newer dispatches.
	ErrStaleResponse = remote.ErrStaleResponse
	// ErrNotRowGroup is returned for row operations on other field types.
	ErrNotRowGroup = rowgroup.ErrNotRowGroup
)

type (
	UnknownFieldError    = model.UnknownFieldError
	DefinitionError      = model.DefinitionError
	EffectCycleError     = effects.EffectCycleError
	RemoteFetchError     = remote.RemoteFetchError
	InvalidError         = submit.InvalidError
	SubmitHandlerError   = submit.SubmitHandlerError
	RowNotDeletableError = rowgroup.RowNotDeletableError
	RowNotAddableError   = rowgroup.RowNotAddableError
)

// New compiles def and returns a live form.
func New(def Definition, options ...Option) (*Form, error) {
	return engine.New(def, options...)
}

// NewFromFS loads the definitions under fsys and returns a live form for id.
func NewFromFS(fsys fs.FS, id string, options ...Option) (*Form, error) {
	defs, err := definition.LoadFS(fsys)
	if err != nil {
		return nil, err
	}
	def, ok := defs.Form(id)
	if !ok {
		return nil, &UnknownFormError{ID: id, Available: defs.IDs()}
	}
	return engine.New(def, options...)
}

// NewFromOpenAPI builds a live form from the request body of operationID in
// the OpenAPI document raw.
func NewFromOpenAPI(ctx context.Context, raw []byte, operationID string, options ...Option) (*Form, error) {
	def, err := pkgopenapi.FromOperation(ctx, raw, operationID)
	if err != nil {
		return nil, err
	}
	return engine.New(def, options...)
}

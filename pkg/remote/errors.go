package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleResponse is returned to the caller of a dispatch whose response
	// arrived after a newer dispatch for the same field started. Nothing was
	// applied.
	ErrStaleResponse = errors.New("remote: stale response")
	// ErrNoEndpoint reports a field without remote configuration.
	ErrNoEndpoint = errors.New("remote: field has no endpoint")
)

// RemoteFetchError is a field-scoped fetch failure. It is recorded for the
// field and never blocks other fields or validation.
type RemoteFetchError struct {
	Field string
	Query string
	Err   error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("remote: fetch %q (query %q): %v", e.Field, e.Query, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

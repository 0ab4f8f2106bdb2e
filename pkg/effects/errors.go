package effects

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownHandler reports a descriptor naming a handler that is not
// registered.
var ErrUnknownHandler = errors.New("effects: unknown handler")

// EffectCycleError reports a propagation aborted at the depth bound. Writes
// applied before the abort are kept.
type EffectCycleError struct {
	Origin string
	Key    string
	Depth  int
}

func (e *EffectCycleError) Error() string {
	return fmt.Sprintf("effects: propagation from %q aborted at %q after %d cascades", e.Origin, e.Key, e.Depth)
}

// UndeclaredWriteError reports a handler result touching keys outside the
// descriptor's Effected list. The whole result is discarded.
type UndeclaredWriteError struct {
	Effect string
	Keys   []string
}

func (e *UndeclaredWriteError) Error() string {
	return fmt.Sprintf("effects: effect %q wrote undeclared keys %s", e.Effect, strings.Join(e.Keys, ", "))
}

// EffectError wraps a handler failure or a rejected commit.
type EffectError struct {
	Effect  string
	Trigger string
	Err     error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("effects: effect %q (trigger %q): %v", e.Effect, e.Trigger, e.Err)
}

func (e *EffectError) Unwrap() error {
	return e.Err
}

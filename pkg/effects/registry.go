package effects

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formstate/pkg/model"
)

// Built-in handler names available to file-defined forms.
const (
	HandlerClear = "clear"
	HandlerCopy  = "copy"
	HandlerSet   = "set"
)

// Registry maps handler names to effect functions. The latest registration
// for a name wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]model.EffectFunc
}

// NewRegistry returns a registry holding the built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]model.EffectFunc)}
	r.Register(HandlerClear, clearHandler)
	r.Register(HandlerCopy, copyHandler)
	r.Register(HandlerSet, setHandler)
	return r
}

// Register adds fn under name. Blank names and nil functions are ignored.
func (r *Registry) Register(name string, fn model.EffectFunc) {
	if r == nil || fn == nil {
		return
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]model.EffectFunc)
	}
	r.handlers[trimmed] = fn
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (model.EffectFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[strings.TrimSpace(name)]
	return fn, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names lists the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// clearHandler resets every effected key to its declared default, or to the
// empty value of its type when none is declared.
func clearHandler(_ context.Context, ec model.EffectContext) (map[string]any, error) {
	out := make(map[string]any, len(ec.Effected()))
	for _, ref := range ec.Effected() {
		field, ok := ec.Field(ref)
		if !ok {
			continue
		}
		out[ref] = emptyValue(field)
	}
	return out, nil
}

func emptyValue(field *model.Field) any {
	if field.Default != nil {
		return field.Default
	}
	switch field.Type {
	case model.FieldTypeString:
		return ""
	case model.FieldTypeArray, model.FieldTypeRows:
		return []any{}
	default:
		return nil
	}
}

// copyHandler writes the trigger value to every effected key.
func copyHandler(_ context.Context, ec model.EffectContext) (map[string]any, error) {
	out := make(map[string]any, len(ec.Effected()))
	for _, ref := range ec.Effected() {
		out[ref] = ec.Value()
	}
	return out, nil
}

// setHandler writes Params["value"] to every effected key, parsed according to
// each field's type.
func setHandler(_ context.Context, ec model.EffectContext) (map[string]any, error) {
	raw, ok := ec.Params()["value"]
	out := make(map[string]any, len(ec.Effected()))
	for _, ref := range ec.Effected() {
		field, found := ec.Field(ref)
		if !found {
			continue
		}
		if !ok {
			out[ref] = nil
			continue
		}
		value, err := parseParam(field.Type, raw)
		if err != nil {
			return nil, err
		}
		out[ref] = value
	}
	return out, nil
}

func parseParam(typ model.FieldType, raw string) (any, error) {
	switch typ {
	case model.FieldTypeBoolean:
		return strconv.ParseBool(strings.TrimSpace(raw))
	case model.FieldTypeNumber, model.FieldTypeInteger:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case model.FieldTypeArray:
		if strings.TrimSpace(raw) == "" {
			return []any{}, nil
		}
		parts := strings.Split(raw, ",")
		out := make([]any, len(parts))
		for i, part := range parts {
			out[i] = strings.TrimSpace(part)
		}
		return out, nil
	default:
		return raw, nil
	}
}

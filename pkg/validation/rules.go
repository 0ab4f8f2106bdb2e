package validation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-formstate/internal/tmpl"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/store"
)

// target is one value to validate against its field's rules.
type target struct {
	key   string
	field *model.Field
	value any
}

// evaluate runs the rules of t in declaration order and returns the first
// failure message, or "" when the value is valid. Field.Required behaves as a
// leading required rule. Empty values skip every rule except required;
// whitespace-only strings fail required but are checked by the other rules.
func (e *Engine) evaluate(ctx context.Context, t target, lookup func(string) (any, bool)) string {
	missing := isBlank(t.value)
	if t.field.Required && missing {
		return e.fail(t, model.ValidationRule{Kind: model.ValidationRuleRequired}, "")
	}

	empty := isEmpty(t.value)
	for _, rule := range t.field.Rules {
		if rule.Kind == model.ValidationRuleRequired {
			if missing {
				return e.fail(t, rule, "")
			}
			continue
		}
		if empty {
			continue
		}
		if msg := e.check(ctx, t, rule, lookup); msg != "" {
			return msg
		}
	}
	return ""
}

func (e *Engine) check(ctx context.Context, t target, rule model.ValidationRule, lookup func(string) (any, bool)) string {
	switch rule.Kind {
	case model.ValidationRuleMin, model.ValidationRuleMax:
		bound, err := strconv.ParseFloat(strings.TrimSpace(rule.Params["value"]), 64)
		if err != nil {
			return e.fail(t, rule, "")
		}
		n, ok := toNumber(t.value)
		if !ok {
			return e.fail(t, model.ValidationRule{Kind: MessageNumber, Params: rule.Params, Message: rule.Message}, "")
		}
		if rule.Kind == model.ValidationRuleMin && n < bound {
			return e.fail(t, rule, "")
		}
		if rule.Kind == model.ValidationRuleMax && n > bound {
			return e.fail(t, rule, "")
		}
	case model.ValidationRuleMinLength, model.ValidationRuleMaxLength:
		limit, err := strconv.Atoi(strings.TrimSpace(rule.Params["value"]))
		if err != nil {
			return e.fail(t, rule, "")
		}
		n, ok := length(t.value)
		if !ok {
			return ""
		}
		if rule.Kind == model.ValidationRuleMinLength && n < limit {
			return e.fail(t, rule, "")
		}
		if rule.Kind == model.ValidationRuleMaxLength && n > limit {
			return e.fail(t, rule, "")
		}
	case model.ValidationRulePattern:
		s, ok := t.value.(string)
		if !ok {
			return ""
		}
		re, ok := e.schema.Pattern(rule.Params["pattern"])
		if !ok {
			return e.fail(t, rule, "")
		}
		if !re.MatchString(s) {
			return e.fail(t, rule, "")
		}
	case model.ValidationRuleCustom:
		fn := rule.Validator
		if fn == nil {
			name := rule.Params["validator"]
			registered, ok := e.registry.Lookup(name)
			if !ok {
				return e.fail(t, rule, fmt.Sprintf("validator %q is not registered", name))
			}
			fn = registered
		}
		err := runValidator(ctx, fn, model.Check{
			Key:    t.key,
			Field:  t.field,
			Value:  t.value,
			Params: rule.Params,
			Lookup: lookup,
		})
		if err != nil {
			return e.fail(t, rule, err.Error())
		}
	}
	return ""
}

// runValidator converts a panicking validator into a failure so one broken
// validator cannot take down ValidateAll.
func runValidator(ctx context.Context, fn model.Validator, check model.Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panic: %v", r)
		}
	}()
	return fn(ctx, check)
}

// fail renders the message for rule. detail replaces the default template
// when the rule declares no Message.
func (e *Engine) fail(t target, rule model.ValidationRule, detail string) string {
	data := tmpl.Context{
		"label":  t.field.DisplayLabel(),
		"key":    t.key,
		"actual": display(t.value),
		"params": rule.Params,
		"value":  ruleValue(rule),
		"error":  detail,
	}
	custom := rule.Message
	if custom == "" && detail != "" {
		return detail
	}
	return e.messages.Render(rule.Kind, custom, data)
}

func display(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case store.Rows:
		return strconv.Itoa(len(v))
	default:
		return fmt.Sprint(v)
	}
}

func ruleValue(rule model.ValidationRule) string {
	if rule.Kind == model.ValidationRulePattern {
		return rule.Params["pattern"]
	}
	return rule.Params["value"]
}

// isBlank reports whether value fails a required rule: it is empty or a
// string of whitespace only.
func isBlank(value any) bool {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return isEmpty(value)
}

// isEmpty reports whether value counts as unset. Booleans and numbers are
// never empty; a row group is empty when it has no rows.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case store.Rows:
		return len(v) == 0
	default:
		return false
	}
}

// toNumber coerces stored numbers and raw numeric strings. NaN never
// coerces.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case int:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// length measures strings in runes, arrays in items and row groups in rows.
func length(value any) (int, bool) {
	switch v := value.(type) {
	case string:
		return utf8.RuneCountInString(v), true
	case []any:
		return len(v), true
	case store.Rows:
		return len(v), true
	default:
		return 0, false
	}
}

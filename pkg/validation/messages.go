package validation

import (
	"github.com/goliatone/go-formstate/internal/tmpl"
	"github.com/goliatone/go-formstate/pkg/model"
)

// MessageNumber is the message key used when a min/max rule meets a value
// that does not coerce to a number.
const MessageNumber = "number"

// DefaultMessages are the pongo2 templates used when a rule has no Message.
// Templates see label, value (the rule threshold or pattern), actual (the
// field value), key and params.
var DefaultMessages = map[string]string{
	model.ValidationRuleRequired:  "{{ label }} is required",
	model.ValidationRuleMin:       "{{ label }} must be at least {{ value }}",
	model.ValidationRuleMax:       "{{ label }} must be at most {{ value }}",
	model.ValidationRuleMinLength: "{{ label }} must have a length of at least {{ value }}",
	model.ValidationRuleMaxLength: "{{ label }} must have a length of at most {{ value }}",
	model.ValidationRulePattern:   "{{ label }} has an invalid format",
	model.ValidationRuleCustom:    "{{ label }} is invalid",
	MessageNumber:                 "{{ label }} must be a number",
}

// Messages renders failure messages from rule templates and defaults.
type Messages struct {
	defaults map[string]string
	cache    *tmpl.Cache
}

// NewMessages returns a renderer whose defaults are DefaultMessages overlaid
// with overrides.
func NewMessages(overrides map[string]string) *Messages {
	defaults := make(map[string]string, len(DefaultMessages)+len(overrides))
	for kind, msg := range DefaultMessages {
		defaults[kind] = msg
	}
	for kind, msg := range overrides {
		if msg != "" {
			defaults[kind] = msg
		}
	}
	return &Messages{defaults: defaults, cache: tmpl.NewCache()}
}

// Render produces the message for a failed rule. custom is the template to
// use instead of the default for kind; a template that fails to render is
// returned verbatim.
func (m *Messages) Render(kind, custom string, data tmpl.Context) string {
	src := custom
	if src == "" {
		src = m.defaults[kind]
	}
	if src == "" {
		src = m.defaults[model.ValidationRuleCustom]
	}
	out, err := m.cache.Render(src, data)
	if err != nil {
		return src
	}
	return out
}

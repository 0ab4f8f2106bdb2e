package model

import "context"

// FieldType is the declared shape of a field's value.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
	FieldTypeRows    FieldType = "rows"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeNumber, FieldTypeBoolean, FieldTypeArray, FieldTypeRows:
		return true
	default:
		return false
	}
}

// Numeric reports whether t holds numbers.
func (t FieldType) Numeric() bool {
	return t == FieldTypeNumber || t == FieldTypeInteger
}

const (
	ValidationRuleRequired  = "required"
	ValidationRuleMin       = "min"
	ValidationRuleMax       = "max"
	ValidationRuleMinLength = "minLength"
	ValidationRuleMaxLength = "maxLength"
	ValidationRulePattern   = "pattern"
	ValidationRuleCustom    = "custom"
)

// ValidationRule represents a single validation constraint applied to a field.
// Numeric bounds and length limits encode their threshold in Params["value"],
// pattern rules keep the expression in Params["pattern"] and custom rules name
// a registered validator in Params["validator"] unless Validator is set.
// Message is a pongo2 template; an empty message selects the kind's default.
type ValidationRule struct {
	Kind      string            `json:"kind" yaml:"kind"`
	Params    map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Message   string            `json:"message,omitempty" yaml:"message,omitempty"`
	Validator Validator         `json:"-" yaml:"-"`
}

// Check is the input handed to a custom validator.
type Check struct {
	Key    string
	Field  *Field
	Value  any
	Params map[string]string
	// Lookup reads other values from the snapshot the validation runs against.
	Lookup func(key string) (any, bool)
}

// Validator is a custom, possibly slow, validation function. A non-nil error
// marks the value invalid; its text is used when the rule has no Message.
type Validator func(ctx context.Context, check Check) error

// Span merges Width columns starting at Column into one visual cell.
type Span struct {
	Column int `json:"column" yaml:"column"`
	Width  int `json:"width" yaml:"width"`
}

// RowSpanConfig declares merged cells for a set of row indexes. RestAll marks
// the catch-all config used for indexes beyond the last explicit one.
type RowSpanConfig struct {
	RowIndexes []int  `json:"rowIndexes,omitempty" yaml:"rowIndexes,omitempty"`
	RestAll    bool   `json:"restAll,omitempty" yaml:"restAll,omitempty"`
	Spans      []Span `json:"spans,omitempty" yaml:"spans,omitempty"`
}

// RemoteConfig mirrors the x-endpoint contract used to hydrate a field from a
// remote lookup. DynamicParams values are templates rendered against the
// current form values; RefreshOn lists fields whose changes re-dispatch.
type RemoteConfig struct {
	URL           string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method        string            `json:"method,omitempty" yaml:"method,omitempty"`
	SearchParam   string            `json:"searchParam,omitempty" yaml:"searchParam,omitempty"`
	ResultsPath   string            `json:"resultsPath,omitempty" yaml:"resultsPath,omitempty"`
	ValueField    string            `json:"valueField,omitempty" yaml:"valueField,omitempty"`
	LabelField    string            `json:"labelField,omitempty" yaml:"labelField,omitempty"`
	Params        map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	DynamicParams map[string]string `json:"dynamicParams,omitempty" yaml:"dynamicParams,omitempty"`
	RefreshOn     []string          `json:"refreshOn,omitempty" yaml:"refreshOn,omitempty"`
	Target        string            `json:"target,omitempty" yaml:"target,omitempty"`
}

// Field models one slot of the value tree. Row groups (FieldTypeRows) carry
// their columns in Children plus row bounds and span configs; MaxRow zero
// means unbounded.
type Field struct {
	ID       string            `json:"id" yaml:"id"`
	Label    string            `json:"label,omitempty" yaml:"label,omitempty"`
	Type     FieldType         `json:"type" yaml:"type"`
	Default  any               `json:"default,omitempty" yaml:"default,omitempty"`
	Required bool              `json:"required,omitempty" yaml:"required,omitempty"`
	Rules    []ValidationRule  `json:"rules,omitempty" yaml:"rules,omitempty"`
	Children []Field           `json:"children,omitempty" yaml:"children,omitempty"`
	MinRow   int               `json:"minRow,omitempty" yaml:"minRow,omitempty"`
	MaxRow   int               `json:"maxRow,omitempty" yaml:"maxRow,omitempty"`
	Columns  int               `json:"columns,omitempty" yaml:"columns,omitempty"`
	RowSpans []RowSpanConfig   `json:"rowSpans,omitempty" yaml:"rowSpans,omitempty"`
	Remote   *RemoteConfig     `json:"remote,omitempty" yaml:"remote,omitempty"`
	Sanitize bool              `json:"sanitize,omitempty" yaml:"sanitize,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DisplayLabel returns the label, falling back to the id.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// EffectContext is the read-only view an effect handler receives.
type EffectContext interface {
	// Trigger is the key whose change scheduled the run.
	Trigger() string
	// Row is the row key when the trigger is a row group cell.
	Row() string
	// Value is the trigger's value at scheduling time.
	Value() any
	// Get reads any key from the snapshot taken when the run was scheduled.
	Get(key string) (any, bool)
	// Values returns a plain copy of the snapshot.
	Values() map[string]any
	// Params returns the descriptor's static parameters.
	Params() map[string]string
	// Effected returns the keys the handler may write.
	Effected() []string
	// Field resolves a top-level id or column reference to its declaration.
	Field(ref string) (*Field, bool)
}

// EffectFunc computes a partial update map {key -> value}. Keys must be
// declared in the descriptor's Effected list.
type EffectFunc func(ctx context.Context, ec EffectContext) (map[string]any, error)

// EffectDescriptor declares a reaction to changes of Sources that may write
// only the keys listed in Effected. Run takes precedence over Handler, which
// names a handler registered with the engine.
type EffectDescriptor struct {
	ID       string            `json:"id" yaml:"id"`
	Sources  []string          `json:"sources" yaml:"sources"`
	Effected []string          `json:"effected" yaml:"effected"`
	Handler  string            `json:"handler,omitempty" yaml:"handler,omitempty"`
	When     string            `json:"when,omitempty" yaml:"when,omitempty"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Run      EffectFunc        `json:"-" yaml:"-"`
}

// Definition is the static configuration of one form.
type Definition struct {
	ID      string             `json:"id" yaml:"id"`
	Title   string             `json:"title,omitempty" yaml:"title,omitempty"`
	Fields  []Field            `json:"fields" yaml:"fields"`
	Effects []EffectDescriptor `json:"effects,omitempty" yaml:"effects,omitempty"`
}

package model

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CompileOptions lets the caller verify registry-backed names while compiling.
// Nil checkers skip the corresponding verification.
type CompileOptions struct {
	HasHandler   func(name string) bool
	HasValidator func(name string) bool
}

// Schema is the compiled, read-only index over a Definition. It is safe for
// concurrent readers.
type Schema struct {
	def        Definition
	fields     map[string]*Field
	order      []string
	children   map[string]map[string]*Field
	childOrder map[string][]string
	effects    []*EffectDescriptor
	patterns   map[string]*regexp.Regexp
}

// Compile validates def and builds its Schema. All problems are collected into
// a single *DefinitionError.
func Compile(def Definition, opts CompileOptions) (*Schema, error) {
	def.Fields = cloneFields(def.Fields)
	def.Effects = append([]EffectDescriptor(nil), def.Effects...)
	s := &Schema{
		def:        def,
		fields:     make(map[string]*Field, len(def.Fields)),
		children:   make(map[string]map[string]*Field),
		childOrder: make(map[string][]string),
		patterns:   make(map[string]*regexp.Regexp),
	}

	var problems []error
	add := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}

	if strings.TrimSpace(def.ID) == "" {
		add(errDefinitionIDMissing)
	}

	for i := range def.Fields {
		field := &def.Fields[i]
		if err := validateFieldID(field.ID); err != nil {
			add(err)
			continue
		}
		if _, exists := s.fields[field.ID]; exists {
			add(fmt.Errorf("model: duplicate field %q", field.ID))
			continue
		}
		s.fields[field.ID] = field
		s.order = append(s.order, field.ID)
		add(s.compileField(field, opts, false))

		if field.Type != FieldTypeRows {
			if len(field.Children) > 0 {
				add(fmt.Errorf("model: field %q declares children but is not a row group", field.ID))
			}
			continue
		}
		s.children[field.ID] = make(map[string]*Field, len(field.Children))
		for j := range field.Children {
			child := &field.Children[j]
			if err := validateFieldID(child.ID); err != nil {
				add(fmt.Errorf("model: row group %q: %w", field.ID, err))
				continue
			}
			if _, exists := s.children[field.ID][child.ID]; exists {
				add(fmt.Errorf("model: row group %q: duplicate child %q", field.ID, child.ID))
				continue
			}
			if child.Type == FieldTypeRows {
				add(fmt.Errorf("model: row group %q: nested row group %q is not supported", field.ID, child.ID))
				continue
			}
			s.children[field.ID][child.ID] = child
			s.childOrder[field.ID] = append(s.childOrder[field.ID], child.ID)
			add(s.compileField(child, opts, true))
		}
		add(compileRowBounds(field))
	}

	for _, field := range s.Fields() {
		if field.Remote == nil {
			continue
		}
		for _, dep := range field.Remote.RefreshOn {
			if _, ok := s.fields[dep]; !ok {
				add(fmt.Errorf("model: field %q: refreshOn references undeclared field %q", field.ID, dep))
			}
		}
		if target := field.Remote.Target; target != "" {
			if _, ok := s.fields[target]; !ok {
				add(fmt.Errorf("model: field %q: remote target %q is not declared", field.ID, target))
			}
		}
	}

	seenEffects := make(map[string]struct{}, len(def.Effects))
	for i := range def.Effects {
		effect := &def.Effects[i]
		if strings.TrimSpace(effect.ID) == "" {
			add(errEffectIDMissing)
			continue
		}
		if _, exists := seenEffects[effect.ID]; exists {
			add(fmt.Errorf("model: duplicate effect %q", effect.ID))
			continue
		}
		seenEffects[effect.ID] = struct{}{}
		add(s.compileEffect(effect, opts))
		s.effects = append(s.effects, effect)
	}

	if len(problems) > 0 {
		return nil, &DefinitionError{Form: def.ID, Problems: problems}
	}
	return s, nil
}

func validateFieldID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errFieldIDMissing
	}
	if strings.ContainsAny(id, ".[] ") {
		return fmt.Errorf("model: field id %q must not contain '.', '[', ']' or spaces", id)
	}
	return nil
}

func (s *Schema) compileField(field *Field, opts CompileOptions, child bool) error {
	if !field.Type.Valid() {
		return fmt.Errorf("model: field %q has unknown type %q", field.ID, field.Type)
	}
	for i, rule := range field.Rules {
		switch rule.Kind {
		case ValidationRuleRequired:
		case ValidationRuleMin, ValidationRuleMax:
			if _, err := strconv.ParseFloat(strings.TrimSpace(rule.Params["value"]), 64); err != nil {
				return fmt.Errorf("model: field %q rule %d (%s): invalid value %q", field.ID, i, rule.Kind, rule.Params["value"])
			}
		case ValidationRuleMinLength, ValidationRuleMaxLength:
			if n, err := strconv.Atoi(strings.TrimSpace(rule.Params["value"])); err != nil || n < 0 {
				return fmt.Errorf("model: field %q rule %d (%s): invalid value %q", field.ID, i, rule.Kind, rule.Params["value"])
			}
		case ValidationRulePattern:
			expr := rule.Params["pattern"]
			if expr == "" {
				return fmt.Errorf("model: field %q rule %d: pattern is empty", field.ID, i)
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return fmt.Errorf("model: field %q rule %d: invalid pattern: %w", field.ID, i, err)
			}
			s.patterns[expr] = re
		case ValidationRuleCustom:
			if rule.Validator != nil {
				continue
			}
			name := rule.Params["validator"]
			if name == "" {
				return fmt.Errorf("model: field %q rule %d: custom rule needs a validator", field.ID, i)
			}
			if opts.HasValidator != nil && !opts.HasValidator(name) {
				return fmt.Errorf("model: field %q rule %d: validator %q is not registered", field.ID, i, name)
			}
		default:
			return fmt.Errorf("model: field %q rule %d: unknown kind %q", field.ID, i, rule.Kind)
		}
	}
	if child && (field.MinRow != 0 || field.MaxRow != 0 || len(field.RowSpans) > 0) {
		return fmt.Errorf("model: child field %q declares row settings", field.ID)
	}
	return nil
}

func compileRowBounds(field *Field) error {
	if field.MinRow < 0 || field.MaxRow < 0 {
		return fmt.Errorf("model: row group %q: row bounds must not be negative", field.ID)
	}
	if field.MaxRow > 0 && field.MinRow > field.MaxRow {
		return fmt.Errorf("model: row group %q: minRow %d exceeds maxRow %d", field.ID, field.MinRow, field.MaxRow)
	}
	if len(field.RowSpans) == 0 {
		return nil
	}
	if err := ValidateRowSpans(field.Columns, field.RowSpans); err != nil {
		return fmt.Errorf("model: row group %q: %w", field.ID, err)
	}
	return nil
}

// ValidateRowSpans checks that spans never overlap within one config and never
// exceed the declared column count.
func ValidateRowSpans(columns int, configs []RowSpanConfig) error {
	if columns <= 0 {
		return fmt.Errorf("row spans require a positive column count")
	}
	for i, cfg := range configs {
		for _, idx := range cfg.RowIndexes {
			if idx < 0 {
				return fmt.Errorf("row span config %d: negative row index %d", i, idx)
			}
		}
		spans := append([]Span(nil), cfg.Spans...)
		sort.Slice(spans, func(a, b int) bool { return spans[a].Column < spans[b].Column })
		end := 0
		for j, span := range spans {
			if span.Column < 0 || span.Width < 1 {
				return fmt.Errorf("row span config %d: invalid span {column:%d width:%d}", i, span.Column, span.Width)
			}
			if span.Column+span.Width > columns {
				return fmt.Errorf("row span config %d: span {column:%d width:%d} exceeds %d columns", i, span.Column, span.Width, columns)
			}
			if j > 0 && span.Column < end {
				return fmt.Errorf("row span config %d: span at column %d overlaps the previous span", i, span.Column)
			}
			end = span.Column + span.Width
		}
	}
	return nil
}

func (s *Schema) compileEffect(effect *EffectDescriptor, opts CompileOptions) error {
	if len(effect.Sources) == 0 {
		return fmt.Errorf("model: effect %q declares no sources", effect.ID)
	}
	if len(effect.Effected) == 0 {
		return fmt.Errorf("model: effect %q declares no effected fields", effect.ID)
	}
	for _, src := range effect.Sources {
		if _, err := s.LookupRef(src); err != nil {
			return fmt.Errorf("model: effect %q source: %w", effect.ID, err)
		}
	}
	for _, dst := range effect.Effected {
		if _, err := s.LookupRef(dst); err != nil {
			return fmt.Errorf("model: effect %q effected: %w", effect.ID, err)
		}
	}
	if effect.Run != nil {
		return nil
	}
	if effect.Handler == "" {
		return fmt.Errorf("model: effect %q has neither Run nor Handler", effect.ID)
	}
	if opts.HasHandler != nil && !opts.HasHandler(effect.Handler) {
		return fmt.Errorf("model: effect %q: handler %q is not registered", effect.ID, effect.Handler)
	}
	return nil
}

// Definition returns the compiled definition.
func (s *Schema) Definition() Definition {
	return s.def
}

// Fields returns the top-level fields in declaration order.
func (s *Schema) Fields() []*Field {
	out := make([]*Field, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.fields[id])
	}
	return out
}

// Field returns the top-level field with the given id.
func (s *Schema) Field(id string) (*Field, bool) {
	f, ok := s.fields[id]
	return f, ok
}

// Children returns the columns of a row group in declaration order.
func (s *Schema) Children(group string) []*Field {
	ids := s.childOrder[group]
	out := make([]*Field, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.children[group][id])
	}
	return out
}

// Child returns one column of a row group.
func (s *Schema) Child(group, child string) (*Field, bool) {
	f, ok := s.children[group][child]
	return f, ok
}

// IsGroup reports whether id names a row group.
func (s *Schema) IsGroup(id string) bool {
	f, ok := s.fields[id]
	return ok && f.Type == FieldTypeRows
}

// Effects returns the effect descriptors in declaration order.
func (s *Schema) Effects() []*EffectDescriptor {
	return append([]*EffectDescriptor(nil), s.effects...)
}

// Pattern returns the compiled expression for a pattern rule.
func (s *Schema) Pattern(expr string) (*regexp.Regexp, bool) {
	re, ok := s.patterns[expr]
	return re, ok
}

// Lookup resolves a store key (top-level id or cell key) to its field. Row
// existence is not checked.
func (s *Schema) Lookup(raw string) (Key, *Field, error) {
	key, err := ParseKey(raw)
	if err != nil {
		return Key{}, nil, &UnknownFieldError{Key: raw}
	}
	if key.IsColumn() {
		return Key{}, nil, &UnknownFieldError{Key: raw}
	}
	if key.IsCell() {
		child, ok := s.Child(key.Field, key.Child)
		if !ok {
			return Key{}, nil, &UnknownFieldError{Key: raw}
		}
		return key, child, nil
	}
	field, ok := s.fields[key.Field]
	if !ok {
		return Key{}, nil, &UnknownFieldError{Key: raw}
	}
	return key, field, nil
}

// LookupRef resolves an effect reference (top-level id or column reference).
func (s *Schema) LookupRef(raw string) (Key, error) {
	key, err := ParseKey(raw)
	if err != nil || key.IsCell() {
		return Key{}, &UnknownFieldError{Key: raw}
	}
	if key.IsColumn() {
		if _, ok := s.Child(key.Field, key.Child); !ok {
			return Key{}, &UnknownFieldError{Key: raw}
		}
		return key, nil
	}
	if _, ok := s.fields[key.Field]; !ok {
		return Key{}, &UnknownFieldError{Key: raw}
	}
	return key, nil
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, field := range fields {
		field.Rules = append([]ValidationRule(nil), field.Rules...)
		field.Children = cloneFields(field.Children)
		field.RowSpans = append([]RowSpanConfig(nil), field.RowSpans...)
		out[i] = field
	}
	return out
}

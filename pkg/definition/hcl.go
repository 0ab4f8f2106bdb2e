package definition

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/goliatone/go-formstate/pkg/model"
)

type hclRoot struct {
	Forms  []*hclForm `hcl:"form,block"`
	Remain hcl.Body   `hcl:",remain"`
}

type hclForm struct {
	ID      string       `hcl:"id,label"`
	Title   string       `hcl:"title,optional"`
	Fields  []*hclField  `hcl:"field,block"`
	Effects []*hclEffect `hcl:"effect,block"`
}

type hclField struct {
	ID       string            `hcl:"id,label"`
	Type     string            `hcl:"type"`
	Label    string            `hcl:"label,optional"`
	Default  *cty.Value        `hcl:"default,optional"`
	Required bool              `hcl:"required,optional"`
	Sanitize bool              `hcl:"sanitize,optional"`
	MinRow   int               `hcl:"min_row,optional"`
	MaxRow   int               `hcl:"max_row,optional"`
	Columns  int               `hcl:"columns,optional"`
	Metadata map[string]string `hcl:"metadata,optional"`
	Rules    []*hclRule        `hcl:"rule,block"`
	Children []*hclField       `hcl:"column,block"`
	RowSpans []*hclRowSpan     `hcl:"row_span,block"`
	Remote   *hclRemote        `hcl:"remote,block"`
}

type hclRule struct {
	Kind      string            `hcl:"kind,label"`
	Value     string            `hcl:"value,optional"`
	Pattern   string            `hcl:"pattern,optional"`
	Validator string            `hcl:"validator,optional"`
	Message   string            `hcl:"message,optional"`
	Params    map[string]string `hcl:"params,optional"`
}

type hclRowSpan struct {
	RowIndexes []int      `hcl:"row_indexes,optional"`
	RestAll    bool       `hcl:"rest_all,optional"`
	Spans      []*hclSpan `hcl:"span,block"`
}

type hclSpan struct {
	Column int `hcl:"column"`
	Width  int `hcl:"width"`
}

type hclRemote struct {
	URL           string            `hcl:"url"`
	Method        string            `hcl:"method,optional"`
	SearchParam   string            `hcl:"search_param,optional"`
	ResultsPath   string            `hcl:"results_path,optional"`
	ValueField    string            `hcl:"value_field,optional"`
	LabelField    string            `hcl:"label_field,optional"`
	Target        string            `hcl:"target,optional"`
	RefreshOn     []string          `hcl:"refresh_on,optional"`
	Params        map[string]string `hcl:"params,optional"`
	DynamicParams map[string]string `hcl:"dynamic_params,optional"`
}

type hclEffect struct {
	ID       string            `hcl:"id,label"`
	Sources  []string          `hcl:"sources"`
	Effected []string          `hcl:"effected"`
	Handler  string            `hcl:"handler,optional"`
	When     string            `hcl:"when,optional"`
	Params   map[string]string `hcl:"params,optional"`
}

func parseHCL(data []byte, name string) ([]model.Definition, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("definition: parse %s: %w", name, diags)
	}
	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("definition: decode %s: %w", name, diags)
	}
	if len(root.Forms) == 0 {
		return nil, fmt.Errorf("definition: file %s declares no forms", name)
	}

	out := make([]model.Definition, 0, len(root.Forms))
	for _, form := range root.Forms {
		def := model.Definition{ID: form.ID, Title: form.Title}
		for _, f := range form.Fields {
			field, err := translateField(f)
			if err != nil {
				return nil, fmt.Errorf("definition: %s: form %q: %w", name, form.ID, err)
			}
			def.Fields = append(def.Fields, field)
		}
		for _, e := range form.Effects {
			def.Effects = append(def.Effects, model.EffectDescriptor{
				ID:       e.ID,
				Sources:  e.Sources,
				Effected: e.Effected,
				Handler:  e.Handler,
				When:     e.When,
				Params:   e.Params,
			})
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func translateField(f *hclField) (model.Field, error) {
	field := model.Field{
		ID:       f.ID,
		Label:    f.Label,
		Type:     model.FieldType(f.Type),
		Required: f.Required,
		Sanitize: f.Sanitize,
		MinRow:   f.MinRow,
		MaxRow:   f.MaxRow,
		Columns:  f.Columns,
		Metadata: f.Metadata,
	}
	if f.Default != nil {
		def, err := ctyToGo(*f.Default)
		if err != nil {
			return model.Field{}, fmt.Errorf("field %q default: %w", f.ID, err)
		}
		field.Default = def
	}
	for _, r := range f.Rules {
		field.Rules = append(field.Rules, translateRule(r))
	}
	for _, c := range f.Children {
		child, err := translateField(c)
		if err != nil {
			return model.Field{}, fmt.Errorf("field %q: %w", f.ID, err)
		}
		field.Children = append(field.Children, child)
	}
	for _, rs := range f.RowSpans {
		cfg := model.RowSpanConfig{RowIndexes: rs.RowIndexes, RestAll: rs.RestAll}
		for _, s := range rs.Spans {
			cfg.Spans = append(cfg.Spans, model.Span{Column: s.Column, Width: s.Width})
		}
		field.RowSpans = append(field.RowSpans, cfg)
	}
	if r := f.Remote; r != nil {
		field.Remote = &model.RemoteConfig{
			URL:           r.URL,
			Method:        r.Method,
			SearchParam:   r.SearchParam,
			ResultsPath:   r.ResultsPath,
			ValueField:    r.ValueField,
			LabelField:    r.LabelField,
			Params:        r.Params,
			DynamicParams: r.DynamicParams,
			RefreshOn:     r.RefreshOn,
			Target:        r.Target,
		}
	}
	return field, nil
}

func translateRule(r *hclRule) model.ValidationRule {
	params := make(map[string]string, len(r.Params)+1)
	for k, v := range r.Params {
		params[k] = v
	}
	for k, v := range map[string]string{"value": r.Value, "pattern": r.Pattern, "validator": r.Validator} {
		if v != "" {
			params[k] = v
		}
	}
	if len(params) == 0 {
		params = nil
	}
	return model.ValidationRule{Kind: r.Kind, Params: params, Message: r.Message}
}

// ctyToGo converts a known cty value into the plain Go shapes the store
// accepts.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			item, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case ty.IsMapType(), ty.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			item, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out[key.AsString()] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}

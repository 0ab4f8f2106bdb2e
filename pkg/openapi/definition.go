package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formstate/pkg/model"
)

const (
	endpointExtensionKey = "x-endpoint"
	sanitizeExtensionKey = "x-formstate-sanitize"
	effectsExtensionKey  = "x-formstate-effects"
	columnsExtensionKey  = "x-formstate-columns"
)

// ErrOperationNotFound reports an operation id missing from the document.
var ErrOperationNotFound = errors.New("openapi: operation not found")

func load(ctx context.Context, raw []byte) (*openapi3.T, error) {
	if len(raw) == 0 {
		return nil, errors.New("openapi: document is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	return doc, nil
}

type operation struct {
	id     string
	method string
	path   string
	op     *openapi3.Operation
}

func operations(doc *openapi3.T) map[string]operation {
	out := make(map[string]operation)
	if doc.Paths == nil {
		return out
	}
	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(method) + ":" + path
			}
			out[id] = operation{id: id, method: method, path: path, op: op}
		}
	}
	return out
}

// Operations lists the operation ids in raw, sorted. Operations without an
// operationId are named "<method>:<path>".
func Operations(ctx context.Context, raw []byte) ([]string, error) {
	doc, err := load(ctx, raw)
	if err != nil {
		return nil, err
	}
	ops := operations(doc)
	out := make([]string, 0, len(ops))
	for id := range ops {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// FromOperation builds the definition of the form that submits the request
// body of operationID. Properties become fields in name order; nested objects
// that are not array items are skipped.
func FromOperation(ctx context.Context, raw []byte, operationID string) (model.Definition, error) {
	doc, err := load(ctx, raw)
	if err != nil {
		return model.Definition{}, err
	}
	op, ok := operations(doc)[operationID]
	if !ok {
		return model.Definition{}, fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
	}
	body := requestSchema(op.op.RequestBody)
	if body == nil || len(body.Properties) == 0 {
		return model.Definition{}, fmt.Errorf("openapi: operation %s has no object request body", operationID)
	}

	def := model.Definition{ID: operationID, Title: op.op.Summary}
	fields, err := convertProperties(body, false)
	if err != nil {
		return model.Definition{}, fmt.Errorf("openapi: operation %s: %w", operationID, err)
	}
	def.Fields = fields
	if rawEffects, ok := body.Extensions[effectsExtensionKey]; ok {
		effects, err := decodeEffects(rawEffects)
		if err != nil {
			return model.Definition{}, fmt.Errorf("openapi: operation %s: %s: %w", operationID, effectsExtensionKey, err)
		}
		def.Effects = effects
	}
	return def, nil
}

func requestSchema(ref *openapi3.RequestBodyRef) *openapi3.Schema {
	if ref == nil || ref.Value == nil {
		return nil
	}
	content := ref.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if mt := content[k]; mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

func convertProperties(schema *openapi3.Schema, child bool) ([]model.Field, error) {
	required := make(map[string]struct{}, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = struct{}{}
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var fields []model.Field
	for _, name := range names {
		ref := schema.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		_, req := required[name]
		field, ok, err := convertField(name, ref.Value, req, child)
		if err != nil {
			return nil, err
		}
		if ok {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

func convertField(name string, s *openapi3.Schema, required, child bool) (model.Field, bool, error) {
	field := model.Field{
		ID:       name,
		Label:    s.Title,
		Required: required,
		Default:  s.Default,
	}
	switch {
	case s.Type.Is(openapi3.TypeString):
		field.Type = model.FieldTypeString
	case s.Type.Is(openapi3.TypeInteger):
		field.Type = model.FieldTypeInteger
	case s.Type.Is(openapi3.TypeNumber):
		field.Type = model.FieldTypeNumber
	case s.Type.Is(openapi3.TypeBoolean):
		field.Type = model.FieldTypeBoolean
	case s.Type.Is(openapi3.TypeArray):
		items := s.Items
		if items != nil && items.Value != nil && items.Value.Type.Is(openapi3.TypeObject) {
			if child {
				return model.Field{}, false, nil
			}
			children, err := convertProperties(items.Value, true)
			if err != nil {
				return model.Field{}, false, fmt.Errorf("field %q: %w", name, err)
			}
			field.Type = model.FieldTypeRows
			field.Children = children
			field.MinRow = int(s.MinItems)
			if s.MaxItems != nil {
				field.MaxRow = int(*s.MaxItems)
			}
			field.Columns = len(children)
			if n, ok := intExtension(s.Extensions, columnsExtensionKey); ok {
				field.Columns = n
			}
		} else {
			field.Type = model.FieldTypeArray
			if s.MinItems > 0 {
				field.Rules = append(field.Rules, rule(model.ValidationRuleMinLength, strconv.FormatUint(s.MinItems, 10)))
			}
			if s.MaxItems != nil {
				field.Rules = append(field.Rules, rule(model.ValidationRuleMaxLength, strconv.FormatUint(*s.MaxItems, 10)))
			}
		}
	default:
		return model.Field{}, false, nil
	}

	if s.Min != nil {
		field.Rules = append(field.Rules, rule(model.ValidationRuleMin, strconv.FormatFloat(*s.Min, 'f', -1, 64)))
	}
	if s.Max != nil {
		field.Rules = append(field.Rules, rule(model.ValidationRuleMax, strconv.FormatFloat(*s.Max, 'f', -1, 64)))
	}
	if s.MinLength > 0 {
		field.Rules = append(field.Rules, rule(model.ValidationRuleMinLength, strconv.FormatUint(s.MinLength, 10)))
	}
	if s.MaxLength != nil {
		field.Rules = append(field.Rules, rule(model.ValidationRuleMaxLength, strconv.FormatUint(*s.MaxLength, 10)))
	}
	if s.Pattern != "" {
		field.Rules = append(field.Rules, model.ValidationRule{Kind: model.ValidationRulePattern, Params: map[string]string{"pattern": s.Pattern}})
	}
	if v, ok := s.Extensions[sanitizeExtensionKey].(bool); ok {
		field.Sanitize = v
	}
	if raw, ok := s.Extensions[endpointExtensionKey].(map[string]any); ok && len(raw) > 0 {
		field.Remote = remoteConfig(raw)
	}
	if len(s.Enum) > 0 {
		values := make([]string, 0, len(s.Enum))
		for _, v := range s.Enum {
			values = append(values, fmt.Sprint(v))
		}
		field.Metadata = map[string]string{"enum": strings.Join(values, ",")}
	}
	return field, true, nil
}

func rule(kind, value string) model.ValidationRule {
	return model.ValidationRule{Kind: kind, Params: map[string]string{"value": value}}
}

func remoteConfig(raw map[string]any) *model.RemoteConfig {
	cfg := &model.RemoteConfig{
		URL:           stringValue(raw["url"]),
		Method:        stringValue(raw["method"]),
		SearchParam:   stringValue(raw["searchParam"]),
		ResultsPath:   stringValue(raw["resultsPath"]),
		ValueField:    stringValue(raw["valueField"]),
		LabelField:    stringValue(raw["labelField"]),
		Target:        stringValue(raw["target"]),
		Params:        stringMap(raw["params"]),
		DynamicParams: stringMap(raw["dynamicParams"]),
	}
	if mapping, ok := raw["mapping"].(map[string]any); ok {
		if cfg.ValueField == "" {
			cfg.ValueField = stringValue(mapping["value"])
		}
		if cfg.LabelField == "" {
			cfg.LabelField = stringValue(mapping["label"])
		}
	}
	switch refs := raw["refreshOn"].(type) {
	case []any:
		for _, ref := range refs {
			if s := stringValue(ref); s != "" {
				cfg.RefreshOn = append(cfg.RefreshOn, s)
			}
		}
	case string:
		for _, ref := range strings.Split(refs, ",") {
			if s := strings.TrimSpace(ref); s != "" {
				cfg.RefreshOn = append(cfg.RefreshOn, s)
			}
		}
	}
	return cfg
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func stringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = stringValue(val)
	}
	return out
}

func intExtension(ext map[string]any, key string) (int, bool) {
	switch v := ext[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func decodeEffects(raw any) ([]model.EffectDescriptor, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var effects []model.EffectDescriptor
	if err := json.Unmarshal(data, &effects); err != nil {
		return nil, err
	}
	return effects, nil
}

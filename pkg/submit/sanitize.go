package submit

import (
	"context"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formstate/pkg/model"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// SanitizeText strips all markup from raw.
func SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(textSanitizer().Sanitize(raw))
}

// Sanitize returns a transformer that strips markup from the string values of
// every field marked Sanitize, row group cells included.
func Sanitize(schema *model.Schema) Transformer {
	return func(_ context.Context, snap *Snapshot) error {
		for _, field := range schema.Fields() {
			if field.Type == model.FieldTypeRows {
				rows, _ := snap.Values[field.ID].([]any)
				for _, item := range rows {
					cells, ok := item.(map[string]any)
					if !ok {
						continue
					}
					for _, child := range schema.Children(field.ID) {
						if child.Sanitize {
							cells[child.ID] = sanitizeValue(cells[child.ID])
						}
					}
				}
				continue
			}
			if field.Sanitize {
				snap.Values[field.ID] = sanitizeValue(snap.Values[field.ID])
			}
		}
		return nil
	}
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return SanitizeText(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}

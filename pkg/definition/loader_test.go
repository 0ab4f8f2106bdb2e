package definition_test

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/definition"
	"github.com/goliatone/go-formstate/pkg/model"
)

const yamlDoc = `
forms:
  signup:
    title: Sign up
    fields:
      - id: email
        type: string
        required: true
        rules:
          - kind: pattern
            params:
              pattern: "^[^@]+@[^@]+$"
      - id: age
        type: integer
        default: 18
`

const jsonDoc = `{
  "forms": {
    "contact": {
      "fields": [
        {"id": "country", "type": "string"},
        {"id": "province", "type": "string"}
      ],
      "effects": [
        {"id": "reset", "sources": ["country"], "effected": ["province"], "handler": "clear"}
      ]
    }
  }
}`

const hclDoc = `
form "order" {
  title = "Order"

  field "customer" {
    type     = "string"
    label    = "Customer"
    required = true
    sanitize = true

    rule "minLength" {
      value   = 3
      message = "{{ label }} is too short"
    }
  }

  field "currency" {
    type    = "string"
    default = "EUR"

    remote {
      url          = "https://api.example.com/currencies"
      search_param = "q"
      refresh_on   = ["customer"]
      dynamic_params = {
        customer = "{{ customer }}"
      }
    }
  }

  field "lines" {
    type    = "rows"
    min_row = 1
    max_row = 10
    columns = 3
    default = [{ sku = "A-1", qty = 2 }]

    column "sku" {
      type = "string"
    }
    column "qty" {
      type    = "number"
      default = 1
    }

    row_span {
      row_indexes = [0]
      span {
        column = 0
        width  = 2
      }
    }
    row_span {
      rest_all = true
    }
  }

  effect "total" {
    sources  = ["lines.qty"]
    effected = ["lines.sku"]
    handler  = "copy"
    when     = "customer != \"\""
  }
}
`

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"forms/signup.yaml":  {Data: []byte(yamlDoc)},
		"forms/contact.json": {Data: []byte(jsonDoc)},
		"forms/order.hcl":    {Data: []byte(hclDoc)},
		"forms/README.md":    {Data: []byte("ignored")},
	}
	store, err := definition.LoadFS(fsys)
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	if diff := cmp.Diff([]string{"contact", "order", "signup"}, store.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if got := store.Source("order"); got != "forms/order.hcl" {
		t.Fatalf("source = %q", got)
	}

	signup, _ := store.Form("signup")
	if signup.ID != "signup" || signup.Title != "Sign up" || len(signup.Fields) != 2 {
		t.Fatalf("signup = %+v", signup)
	}
	if got := signup.Fields[0].Rules[0].Params["pattern"]; got != "^[^@]+@[^@]+$" {
		t.Fatalf("pattern = %q", got)
	}

	contact, _ := store.Form("contact")
	if diff := cmp.Diff([]string{"province"}, contact.Effects[0].Effected); diff != "" {
		t.Fatalf("effected mismatch (-want +got):\n%s", diff)
	}

	order, ok := store.Form("order")
	if !ok {
		t.Fatalf("order form missing")
	}
	want := model.Definition{
		ID:    "order",
		Title: "Order",
		Fields: []model.Field{
			{
				ID: "customer", Label: "Customer", Type: model.FieldTypeString, Required: true, Sanitize: true,
				Rules: []model.ValidationRule{{Kind: "minLength", Params: map[string]string{"value": "3"}, Message: "{{ label }} is too short"}},
			},
			{
				ID: "currency", Type: model.FieldTypeString, Default: "EUR",
				Remote: &model.RemoteConfig{
					URL:           "https://api.example.com/currencies",
					SearchParam:   "q",
					RefreshOn:     []string{"customer"},
					DynamicParams: map[string]string{"customer": "{{ customer }}"},
				},
			},
			{
				ID: "lines", Type: model.FieldTypeRows, MinRow: 1, MaxRow: 10, Columns: 3,
				Default: []any{map[string]any{"sku": "A-1", "qty": float64(2)}},
				Children: []model.Field{
					{ID: "sku", Type: model.FieldTypeString},
					{ID: "qty", Type: model.FieldTypeNumber, Default: float64(1)},
				},
				RowSpans: []model.RowSpanConfig{
					{RowIndexes: []int{0}, Spans: []model.Span{{Column: 0, Width: 2}}},
					{RestAll: true},
				},
			},
		},
		Effects: []model.EffectDescriptor{
			{ID: "total", Sources: []string{"lines.qty"}, Effected: []string{"lines.sku"}, Handler: "copy", When: `customer != ""`},
		},
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if _, err := model.Compile(order, model.CompileOptions{}); err != nil {
		t.Fatalf("loaded definition does not compile: %v", err)
	}
}

func TestLoadFSRejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json": {Data: []byte(jsonDoc)},
		"b.json": {Data: []byte(jsonDoc)},
	}
	_, err := definition.LoadFS(fsys)
	if err == nil || !strings.Contains(err.Error(), `duplicate form "contact"`) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		data string
		name string
		want string
	}{
		"empty":       {data: "  ", name: "x.yaml", want: "is empty"},
		"no forms":    {data: `{"other": 1}`, name: "x.json", want: "declares no forms"},
		"bad hcl":     {data: `form "x" {`, name: "x.hcl", want: "parse x.hcl"},
		"missing hcl": {data: `form "x" { field "a" {} }`, name: "x.hcl", want: "decode x.hcl"},
		"id mismatch": {data: "forms:\n  a:\n    id: b\n", name: "x.yaml", want: `declares id "b"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := definition.Parse([]byte(tc.data), tc.name)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
	if store, err := definition.LoadFS(nil); err != nil || !store.Empty() {
		t.Fatalf("nil fs = %v, %v", store, err)
	}
}

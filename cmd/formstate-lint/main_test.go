package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/effects"
)

const formsYAML = `
forms:
  loop:
    fields:
      - id: a
        type: string
      - id: b
        type: string
    effects:
      - id: ab
        sources: [a]
        effected: [b]
        handler: copy
      - id: ba
        sources: [b]
        effected: [a]
        handler: copy
  broken:
    fields:
      - id: a
        type: nope
    effects:
      - id: x
        sources: [a]
        effected: [a]
        handler: audit
`

func TestLintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.yaml")
	if err := os.WriteFile(path, []byte(formsYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := &linter{handlers: effects.NewRegistry()}
	got, err := l.lintFile(context.Background(), path)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}

	severities := map[string][]string{}
	for _, v := range got {
		severities[v.form] = append(severities[v.form], v.severity)
	}
	want := map[string][]string{
		"broken": {"error", "error"},
		"loop":   {"warning"},
	}
	if diff := cmp.Diff(want, severities); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s\n%+v", diff, got)
	}

	l.handlers.Register("audit", noopHandler)
	got, err = l.lintFile(context.Background(), path)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, v := range got {
		if strings.Contains(v.message, "audit") {
			t.Fatalf("registered handler still reported: %+v", v)
		}
	}
}

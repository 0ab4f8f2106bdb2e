package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goliatone/go-formstate/pkg/definition"
	"github.com/goliatone/go-formstate/pkg/effects"
	"github.com/goliatone/go-formstate/pkg/model"
	pkgopenapi "github.com/goliatone/go-formstate/pkg/openapi"
)

type violation struct {
	file     string
	form     string
	message  string
	severity string
}

type linter struct {
	handlers   *effects.Registry
	validators map[string]struct{}
	openapi    bool
}

func main() {
	handlers := flag.String("handlers", "", "comma separated effect handlers registered by the application")
	validators := flag.String("validators", "", "comma separated custom validators registered by the application (unchecked when empty)")
	openapi := flag.Bool("openapi", false, "treat inputs as OpenAPI documents and lint every operation")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [paths...]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "\nCompile form definitions and report their problems.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	l := &linter{handlers: effects.NewRegistry(), openapi: *openapi}
	for _, name := range splitList(*handlers) {
		l.handlers.Register(name, noopHandler)
	}
	if names := splitList(*validators); len(names) > 0 {
		l.validators = make(map[string]struct{}, len(names))
		for _, name := range names {
			l.validators[name] = struct{}{}
		}
	}

	ctx := context.Background()
	var violations []violation
	for _, path := range paths {
		linted, err := l.lintFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lint %s: %v\n", path, err)
			os.Exit(1)
		}
		violations = append(violations, linted...)
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		if violations[i].form != violations[j].form {
			return violations[i].form < violations[j].form
		}
		return violations[i].message < violations[j].message
	})
	failed := false
	for _, v := range violations {
		fmt.Fprintf(os.Stderr, "%s: %s: %s: %s\n", v.file, v.form, v.severity, v.message)
		if v.severity == "error" {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func (l *linter) lintFile(ctx context.Context, path string) ([]violation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defs, err := l.definitions(ctx, raw, path)
	if err != nil {
		return nil, err
	}

	opts := model.CompileOptions{HasHandler: l.handlers.Has}
	if l.validators != nil {
		opts.HasValidator = func(name string) bool {
			_, ok := l.validators[name]
			return ok
		}
	}

	var out []violation
	for _, def := range defs {
		schema, err := model.Compile(def, opts)
		if err != nil {
			var defErr *model.DefinitionError
			if !errors.As(err, &defErr) {
				return nil, err
			}
			for _, problem := range defErr.Problems {
				out = append(out, violation{file: path, form: def.ID, message: problem.Error(), severity: "error"})
			}
			continue
		}
		for _, cycle := range schema.Cycles() {
			out = append(out, violation{
				file:     path,
				form:     def.ID,
				message:  "effect cycle " + strings.Join(cycle, " -> "),
				severity: "warning",
			})
		}
	}
	return out, nil
}

func (l *linter) definitions(ctx context.Context, raw []byte, path string) ([]model.Definition, error) {
	if !l.openapi {
		return definition.Parse(raw, path)
	}
	ids, err := pkgopenapi.Operations(ctx, raw)
	if err != nil {
		return nil, err
	}
	defs := make([]model.Definition, 0, len(ids))
	for _, id := range ids {
		def, err := pkgopenapi.FromOperation(ctx, raw, id)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", id, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func noopHandler(context.Context, model.EffectContext) (map[string]any, error) {
	return nil, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Command generate-definition converts the request body of an OpenAPI
// operation into a form definition file that pkg/definition can load.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/pkg/model"
	pkgopenapi "github.com/goliatone/go-formstate/pkg/openapi"
)

type document struct {
	Forms map[string]model.Definition `json:"forms" yaml:"forms"`
}

func main() {
	source := flag.String("source", "", "OpenAPI document path")
	operation := flag.String("operation", "", "operation ID to convert")
	output := flag.String("output", "", "output file; the extension selects yaml or json (stdout yaml if empty)")
	flag.Parse()

	if err := run(context.Background(), *source, *operation, *output); err != nil {
		fmt.Fprintf(os.Stderr, "generate-definition: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, source, operation, output string) error {
	if source == "" || operation == "" {
		return fmt.Errorf("-source and -operation are required")
	}
	raw, err := pkgopenapi.Load(ctx, pkgopenapi.SourceFromFile(source))
	if err != nil {
		return err
	}
	def, err := pkgopenapi.FromOperation(ctx, raw, operation)
	if err != nil {
		return err
	}
	if _, err := model.Compile(def, model.CompileOptions{}); err != nil {
		return err
	}

	doc := document{Forms: map[string]model.Definition{def.ID: def}}
	var payload []byte
	if filepath.Ext(output) == ".json" {
		payload, err = json.MarshalIndent(doc, "", "  ")
	} else {
		payload, err = yaml.Marshal(doc)
	}
	if err != nil {
		return err
	}
	if output == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, payload, 0o644)
}

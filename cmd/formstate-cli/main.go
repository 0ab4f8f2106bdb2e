// Command formstate-cli fills a form definition interactively and prints the
// submitted snapshot as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-formstate/pkg/definition"
	"github.com/goliatone/go-formstate/pkg/engine"
	"github.com/goliatone/go-formstate/pkg/model"
	pkgopenapi "github.com/goliatone/go-formstate/pkg/openapi"
	"github.com/goliatone/go-formstate/pkg/prompt"
	"github.com/goliatone/go-formstate/pkg/submit"
)

type options struct {
	definitions string
	formID      string
	source      string
	operation   string
	values      string
	output      string
	post        string
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.definitions, "definitions", "", "directory of JSON, YAML or HCL form definitions")
	flag.StringVar(&opts.formID, "form", "", "form id to fill (from -definitions)")
	flag.StringVar(&opts.source, "source", "", "OpenAPI document path or URL")
	flag.StringVar(&opts.operation, "operation", "", "operation ID to fill (from -source)")
	flag.StringVar(&opts.values, "values", "", "JSON file with initial values")
	flag.StringVar(&opts.output, "output", "", "output file (stdout if empty)")
	flag.StringVar(&opts.post, "post", "", "URL the submitted snapshot is POSTed to")
	flag.BoolVar(&opts.verbose, "v", false, "log engine activity")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(ctx, opts, logger, prompt.NewSurveyDriver(os.Stderr)); err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			os.Exit(130)
		}
		logger.Error("formstate-cli failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger, driver prompt.Driver) error {
	def, err := loadDefinition(ctx, opts)
	if err != nil {
		return err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if opts.values != "" {
		initial, err := readValues(opts.values)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, engine.WithInitialValues(initial))
	}
	if opts.post != "" {
		engineOpts = append(engineOpts, engine.WithSubmitHandler(postHandler(opts.post)))
	}

	form, err := engine.New(def, engineOpts...)
	if err != nil {
		return err
	}
	defer form.Close()

	session, err := prompt.NewSession(form, driver)
	if err != nil {
		return err
	}
	if err := session.Fill(ctx); err != nil {
		return err
	}

	snap, err := submitUntilValid(ctx, form, session)
	if err != nil {
		return err
	}
	return writeSnapshot(snap, opts.output)
}

func submitUntilValid(ctx context.Context, form *engine.Form, session *prompt.Session) (submit.Snapshot, error) {
	for {
		snap, err := form.Submit(ctx)
		var invalid *submit.InvalidError
		if !errors.As(err, &invalid) {
			return snap, err
		}
		if err := session.Fix(ctx, invalid.Errors); err != nil {
			return submit.Snapshot{}, err
		}
	}
}

func loadDefinition(ctx context.Context, opts options) (model.Definition, error) {
	switch {
	case opts.definitions != "":
		store, err := definition.LoadFS(os.DirFS(opts.definitions))
		if err != nil {
			return model.Definition{}, err
		}
		id := opts.formID
		if id == "" {
			ids := store.IDs()
			if len(ids) != 1 {
				return model.Definition{}, fmt.Errorf("-form is required, available: %s", strings.Join(ids, ", "))
			}
			id = ids[0]
		}
		def, ok := store.Form(id)
		if !ok {
			return model.Definition{}, fmt.Errorf("form %q not found in %s", id, opts.definitions)
		}
		return def, nil
	case opts.source != "":
		src, err := parseSource(opts.source)
		if err != nil {
			return model.Definition{}, err
		}
		raw, err := pkgopenapi.Load(ctx, src, pkgopenapi.WithHTTPFallback(10*time.Second))
		if err != nil {
			return model.Definition{}, err
		}
		if opts.operation == "" {
			ids, err := pkgopenapi.Operations(ctx, raw)
			if err != nil {
				return model.Definition{}, err
			}
			return model.Definition{}, fmt.Errorf("-operation is required, available: %s", strings.Join(ids, ", "))
		}
		return pkgopenapi.FromOperation(ctx, raw, opts.operation)
	default:
		return model.Definition{}, errors.New("one of -definitions or -source is required")
	}
}

func parseSource(raw string) (pkgopenapi.Source, error) {
	path := strings.TrimSpace(raw)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return pkgopenapi.SourceFromURL(path)
	}
	return pkgopenapi.SourceFromFile(path), nil
}

func readValues(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return values, nil
}

func postHandler(url string) submit.Handler {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(ctx context.Context, snap submit.Snapshot, _ submit.Handle) error {
		body, err := json.Marshal(snap.Values)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
		}
		return nil
	}
}

func writeSnapshot(snap submit.Snapshot, output string) error {
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if output == "" {
		_, err = fmt.Println(string(payload))
		return err
	}
	if err := os.WriteFile(output, payload, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Snapshot written to %s\n", output)
	return nil
}

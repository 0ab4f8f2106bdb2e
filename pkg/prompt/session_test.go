package prompt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/engine"
	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/prompt"
	"github.com/goliatone/go-formstate/pkg/remote"
	"github.com/goliatone/go-formstate/pkg/validation"
)

type stubDriver struct {
	inputs   []string
	confirms []bool
	selects  []int
	infos    []string
	messages []string
}

func (s *stubDriver) Input(_ context.Context, cfg prompt.InputConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if len(s.inputs) == 0 {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[0]
	s.inputs = s.inputs[1:]
	return val, nil
}

func (s *stubDriver) Password(ctx context.Context, cfg prompt.InputConfig) (string, error) {
	return s.Input(ctx, cfg)
}

func (s *stubDriver) Confirm(_ context.Context, cfg prompt.ConfirmConfig) (bool, error) {
	s.messages = append(s.messages, cfg.Message)
	if len(s.confirms) == 0 {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirms[0]
	s.confirms = s.confirms[1:]
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg prompt.SelectConfig) (int, error) {
	s.messages = append(s.messages, cfg.Message)
	if len(s.selects) == 0 {
		return -1, errors.New("no select scripted")
	}
	val := s.selects[0]
	s.selects = s.selects[1:]
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

func newForm(t *testing.T) *engine.Form {
	t.Helper()
	fetcher := remote.FetcherFunc(func(_ context.Context, req remote.Request) (remote.Result, error) {
		if req.Query == "down" {
			return remote.Result{}, errors.New("service down")
		}
		return remote.Result{Options: []remote.Choice{
			{Value: "LIS", Label: "Lisbon"},
			{Value: "OPO", Label: "Porto"},
		}}, nil
	})
	form, err := engine.New(model.Definition{
		ID: "signup",
		Fields: []model.Field{
			{ID: "name", Label: "Name", Type: model.FieldTypeString, Required: true},
			{ID: "age", Type: model.FieldTypeInteger},
			{ID: "active", Type: model.FieldTypeBoolean},
			{ID: "color", Type: model.FieldTypeString, Metadata: map[string]string{"enum": "red, green, blue"}},
			{ID: "city", Type: model.FieldTypeString, Remote: &model.RemoteConfig{URL: "http://cities"}},
			{ID: "lines", Label: "Lines", Type: model.FieldTypeRows, MinRow: 1, MaxRow: 2, Children: []model.Field{
				{ID: "sku", Type: model.FieldTypeString, Required: true},
			}},
		},
	}, engine.WithFetcher(fetcher))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(func() { _ = form.Close() })
	return form
}

func TestSessionFill(t *testing.T) {
	form := newForm(t)
	driver := &stubDriver{
		inputs:   []string{"", "Ada", "42", "lis", "A1", "B2"},
		confirms: []bool{true, true},
		selects:  []int{1, 0},
	}
	session, err := prompt.NewSession(form, driver)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := session.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}

	got := map[string]any{}
	for _, key := range []string{"name", "age", "active", "color", "city"} {
		got[key], _ = form.Get(key)
	}
	want := map[string]any{
		"name":   "Ada",
		"age":    float64(42),
		"active": true,
		"color":  "green",
		"city":   "LIS",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}

	rows, err := form.Rows("lines")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	skus := make([]any, 0, len(rows))
	for _, row := range rows {
		skus = append(skus, row.Values["sku"])
	}
	if diff := cmp.Diff([]any{"A1", "B2"}, skus); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if len(driver.confirms) != 0 || len(driver.inputs) != 0 || len(driver.selects) != 0 {
		t.Fatalf("unused script: %+v", driver)
	}
	if len(driver.infos) == 0 || driver.infos[0] == "" {
		t.Fatalf("expected the empty name to be reported, infos=%v", driver.infos)
	}
}

func TestSessionRemoteFallsBackToText(t *testing.T) {
	form := newForm(t)
	driver := &stubDriver{inputs: []string{"down", "Faro"}}
	session, err := prompt.NewSession(form, driver)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	if err := session.Fix(context.Background(), validation.ErrorMap{"city": "required"}); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if got, _ := form.Get("city"); got != "Faro" {
		t.Fatalf("city = %v", got)
	}
	if len(driver.infos) != 2 || driver.infos[0] != "city: required" {
		t.Fatalf("infos = %v", driver.infos)
	}
}

func TestNewSessionRequiresDriver(t *testing.T) {
	if _, err := prompt.NewSession(newForm(t), nil); !errors.Is(err, prompt.ErrNoDriver) {
		t.Fatalf("err = %v", err)
	}
}

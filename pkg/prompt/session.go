// Package prompt fills a live form from a terminal. Every answer goes through
// the form's Set path, so effects, remote refreshes and validation run as
// the user types; invalid answers are reported and asked again.
package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formstate/pkg/model"
	"github.com/goliatone/go-formstate/pkg/remote"
	"github.com/goliatone/go-formstate/pkg/store"
	"github.com/goliatone/go-formstate/pkg/validation"
)

const (
	metadataEnum   = "enum"
	metadataSecret = "cli.secret"
	metadataHelp   = "help"
)

// Form is the part of the form engine a session drives.
type Form interface {
	Schema() *model.Schema
	Get(key string) (any, error)
	Set(key string, value any) error
	ValidateField(ctx context.Context, key string) (validation.Result, error)
	Dispatch(ctx context.Context, key, query string) (remote.Result, error)
	AddRow(group string, initial map[string]any) (string, error)
	Rows(group string) (store.Rows, error)
	CanAdd(group string) bool
	Settle(ctx context.Context) error
}

// Session prompts for the fields of one form.
type Session struct {
	form   Form
	driver Driver
}

// NewSession returns a session over form using driver.
func NewSession(form Form, driver Driver) (*Session, error) {
	if form == nil {
		return nil, fmt.Errorf("prompt: form is required")
	}
	if driver == nil {
		return nil, ErrNoDriver
	}
	return &Session{form: form, driver: driver}, nil
}

// Fill prompts for every top level field in declaration order. Row groups
// prompt the cells of their existing rows and then offer to add rows while
// the group allows it.
func (s *Session) Fill(ctx context.Context) error {
	for _, field := range s.form.Schema().Fields() {
		if err := s.fillField(ctx, field); err != nil {
			return err
		}
	}
	return s.form.Settle(ctx)
}

// Fix prompts again for the keys in errs, showing each message first.
func (s *Session) Fix(ctx context.Context, errs validation.ErrorMap) error {
	schema := s.form.Schema()
	for _, key := range errs.Keys() {
		_, field, err := schema.Lookup(key)
		if err != nil {
			continue
		}
		if err := s.driver.Info(ctx, fmt.Sprintf("%s: %s", key, errs[key])); err != nil {
			return err
		}
		if field.Type == model.FieldTypeRows {
			if err := s.fillRows(ctx, field); err != nil {
				return err
			}
			continue
		}
		if err := s.ask(ctx, key, field); err != nil {
			return err
		}
	}
	return s.form.Settle(ctx)
}

func (s *Session) fillField(ctx context.Context, field *model.Field) error {
	if field.Type == model.FieldTypeRows {
		return s.fillRows(ctx, field)
	}
	return s.ask(ctx, field.ID, field)
}

func (s *Session) fillRows(ctx context.Context, group *model.Field) error {
	rows, err := s.form.Rows(group.ID)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if err := s.fillRow(ctx, group, row.Key, i); err != nil {
			return err
		}
	}
	for s.form.CanAdd(group.ID) {
		more, err := s.driver.Confirm(ctx, ConfirmConfig{
			Message: fmt.Sprintf("Add a row to %s?", displayLabel(group)),
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		key, err := s.form.AddRow(group.ID, nil)
		if err != nil {
			return err
		}
		rows, err := s.form.Rows(group.ID)
		if err != nil {
			return err
		}
		if err := s.fillRow(ctx, group, key, len(rows)-1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) fillRow(ctx context.Context, group *model.Field, row string, index int) error {
	if err := s.driver.Info(ctx, fmt.Sprintf("%s #%d", displayLabel(group), index+1)); err != nil {
		return err
	}
	for _, child := range s.form.Schema().Children(group.ID) {
		if err := s.ask(ctx, model.CellKey(group.ID, row, child.ID), child); err != nil {
			return err
		}
	}
	return nil
}

// ask prompts for key until the form accepts the answer and the field
// validates.
func (s *Session) ask(ctx context.Context, key string, field *model.Field) error {
	for {
		value, err := s.answer(ctx, key, field)
		if err != nil {
			return err
		}
		if err := s.form.Set(key, value); err != nil {
			return err
		}
		res, err := s.form.ValidateField(ctx, key)
		if err != nil {
			return err
		}
		if res.Valid {
			return nil
		}
		if err := s.driver.Info(ctx, fmt.Sprintf("Invalid %s: %s", key, res.Message)); err != nil {
			return err
		}
	}
}

func (s *Session) answer(ctx context.Context, key string, field *model.Field) (any, error) {
	current, _ := s.form.Get(key)
	if field.Remote != nil && field.Remote.Target == "" {
		if v, ok, err := s.answerRemote(ctx, key, field, current); err != nil || ok {
			return v, err
		}
	}
	if enum := enumOptions(field); len(enum) > 0 {
		idx, err := s.driver.Select(ctx, SelectConfig{
			Message:      displayLabel(field),
			Options:      enum,
			DefaultIndex: indexOf(enum, stringValue(current)),
			Help:         field.Metadata[metadataHelp],
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(enum) {
			return nil, fmt.Errorf("prompt: invalid selection for %s", key)
		}
		return enum[idx], nil
	}

	switch field.Type {
	case model.FieldTypeBoolean:
		def, _ := current.(bool)
		ok, err := s.driver.Confirm(ctx, ConfirmConfig{
			Message: displayLabel(field),
			Default: def,
			Help:    field.Metadata[metadataHelp],
		})
		if err != nil {
			return nil, err
		}
		return ok, nil
	case model.FieldTypeInteger, model.FieldTypeNumber:
		integer := field.Type == model.FieldTypeInteger
		raw, err := s.driver.Input(ctx, InputConfig{
			Message:   displayLabel(field),
			Default:   stringValue(current),
			Help:      field.Metadata[metadataHelp],
			Validator: numberValidator(integer),
		})
		if err != nil {
			return nil, err
		}
		return parseNumber(raw, integer)
	case model.FieldTypeArray:
		raw, err := s.driver.Input(ctx, InputConfig{
			Message: displayLabel(field) + " (comma separated)",
			Default: joinList(current),
			Help:    field.Metadata[metadataHelp],
		})
		if err != nil {
			return nil, err
		}
		return splitList(raw), nil
	default:
		cfg := InputConfig{
			Message: displayLabel(field),
			Default: stringValue(current),
			Help:    field.Metadata[metadataHelp],
		}
		read := s.driver.Input
		if strings.EqualFold(field.Metadata[metadataSecret], "true") {
			read = s.driver.Password
		}
		text, err := read(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return text, nil
	}
}

// answerRemote asks for a search query, dispatches it and lets the user pick
// one of the returned options. ok is false when the lookup failed or returned
// nothing, so the caller falls back to free text.
func (s *Session) answerRemote(ctx context.Context, key string, field *model.Field, current any) (any, bool, error) {
	query, err := s.driver.Input(ctx, InputConfig{
		Message: fmt.Sprintf("Search %s", displayLabel(field)),
		Help:    field.Metadata[metadataHelp],
	})
	if err != nil {
		return nil, false, err
	}
	res, err := s.form.Dispatch(ctx, key, query)
	if err != nil {
		return nil, false, s.driver.Info(ctx, fmt.Sprintf("Lookup for %s failed: %v", key, err))
	}
	if len(res.Options) == 0 {
		return nil, false, s.driver.Info(ctx, fmt.Sprintf("No matches for %q", query))
	}
	labels := make([]string, len(res.Options))
	defaultIdx := -1
	for i, choice := range res.Options {
		labels[i] = choice.Label
		if choice.Value == stringValue(current) {
			defaultIdx = i
		}
	}
	idx, err := s.driver.Select(ctx, SelectConfig{
		Message:      displayLabel(field),
		Options:      labels,
		DefaultIndex: defaultIdx,
		PageSize:     10,
	})
	if err != nil {
		return nil, false, err
	}
	if idx < 0 || idx >= len(res.Options) {
		return nil, false, fmt.Errorf("prompt: invalid selection for %s", key)
	}
	return res.Options[idx].Value, true, nil
}

func displayLabel(field *model.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.ID
}

func enumOptions(field *model.Field) []string {
	var out []string
	for _, item := range splitList(field.Metadata[metadataEnum]) {
		out = append(out, item.(string))
	}
	return out
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func joinList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, stringValue(item))
	}
	return strings.Join(parts, ", ")
}

func splitList(raw string) []any {
	out := []any{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func numberValidator(integer bool) func(string) error {
	return func(raw string) error {
		_, err := parseNumber(raw, integer)
		return err
	}
}

func parseNumber(raw string, integer bool) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if integer {
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		return i, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", raw)
	}
	return f, nil
}

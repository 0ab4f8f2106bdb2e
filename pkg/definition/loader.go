// Package definition loads form definitions from JSON, YAML and HCL
// documents. JSON and YAML documents hold a `forms` object keyed by form id;
// HCL documents declare one `form "<id>"` block per form.
package definition

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/pkg/model"
)

// Store holds loaded definitions keyed by form id.
type Store struct {
	forms   map[string]model.Definition
	sources map[string]string
}

func newStore() *Store {
	return &Store{forms: make(map[string]model.Definition), sources: make(map[string]string)}
}

// LoadFS walks fsys and parses every .json, .yaml, .yml and .hcl file. When
// fsys is nil or holds no definition files the returned store is empty.
func LoadFS(fsys fs.FS) (*Store, error) {
	store := newStore()
	if fsys == nil {
		return store, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDefinitionFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("definition: read %s: %w", path, err)
		}
		defs, err := Parse(data, path)
		if err != nil {
			return err
		}
		for _, def := range defs {
			if err := store.add(def, path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) add(def model.Definition, source string) error {
	if prev, exists := s.sources[def.ID]; exists {
		return fmt.Errorf("definition: duplicate form %q (files %s and %s)", def.ID, prev, source)
	}
	s.forms[def.ID] = def
	s.sources[def.ID] = source
	return nil
}

// Form returns the definition with id.
func (s *Store) Form(id string) (model.Definition, bool) {
	if s == nil {
		return model.Definition{}, false
	}
	def, ok := s.forms[id]
	return def, ok
}

// Source returns the file a form was loaded from.
func (s *Store) Source(id string) string {
	if s == nil {
		return ""
	}
	return s.sources[id]
}

// IDs returns the loaded form ids in sorted order.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.forms))
	for id := range s.forms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Empty reports whether the store holds any form.
func (s *Store) Empty() bool {
	return s == nil || len(s.forms) == 0
}

type documentFile struct {
	Forms map[string]model.Definition `json:"forms" yaml:"forms"`
}

// Parse decodes the definitions in data. name selects HCL decoding when it
// ends in .hcl; anything else is read as JSON, then YAML. Forms are returned
// sorted by id; a form without an id takes its key.
func Parse(data []byte, name string) ([]model.Definition, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("definition: file %s is empty", name)
	}
	if strings.EqualFold(filepath.Ext(name), ".hcl") {
		return parseHCL(data, name)
	}

	var doc documentFile
	if err := json.Unmarshal(data, &doc); err != nil {
		doc = documentFile{}
		if yerr := yaml.Unmarshal(data, &doc); yerr != nil {
			return nil, fmt.Errorf("definition: parse %s: invalid JSON or YAML: %w", name, yerr)
		}
	}
	if len(doc.Forms) == 0 {
		return nil, fmt.Errorf("definition: file %s declares no forms", name)
	}

	ids := make([]string, 0, len(doc.Forms))
	for id := range doc.Forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Definition, 0, len(ids))
	for _, key := range ids {
		id := strings.TrimSpace(key)
		if id == "" {
			return nil, fmt.Errorf("definition: file %s defines an empty form id", name)
		}
		def := doc.Forms[key]
		if def.ID == "" {
			def.ID = id
		}
		if def.ID != id {
			return nil, fmt.Errorf("definition: file %s: form %q declares id %q", name, id, def.ID)
		}
		out = append(out, def)
	}
	return out, nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".hcl":
		return true
	default:
		return false
	}
}

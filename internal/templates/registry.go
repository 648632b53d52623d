// Package templates is the read-only registry of per-platform extraction
// defaults.
package templates

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is an immutable set of templates keyed by lowercase ID.
type Registry struct {
	byID map[string]Template
}

// NewRegistry validates and indexes templates. Duplicate IDs are an error.
func NewRegistry(ts ...Template) (*Registry, error) {
	r := &Registry{byID: make(map[string]Template, len(ts))}
	for _, t := range ts {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		id := strings.ToLower(t.ID)
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("template %q defined twice", t.ID)
		}
		r.byID[id] = t.Clone()
	}
	return r, nil
}

var builtinRegistry = mustRegistry(builtins...)

func mustRegistry(ts ...Template) *Registry {
	r, err := NewRegistry(ts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Builtin returns the registry of templates compiled into the binary.
func Builtin() *Registry {
	return builtinRegistry
}

// Lookup finds a template by ID (case-insensitive). "auto" resolves to the
// generic template. The returned value is a copy.
func (r *Registry) Lookup(id string) (Template, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == AutoAlias {
		id = GenericID
	}
	t, ok := r.byID[id]
	if !ok {
		return Template{}, false
	}
	return t.Clone(), true
}

// List enumerates templates sorted by ID.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, Info{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the sorted template IDs.
func (r *Registry) IDs() []string {
	infos := r.List()
	out := make([]string, len(infos))
	for i, in := range infos {
		out[i] = in.ID
	}
	return out
}

// Containers returns each template's container selector, ordered by template ID
// and de-duplicated.
func (r *Registry) Containers() []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range r.IDs() {
		c := r.byID[strings.ToLower(id)].Container
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// With returns a new registry containing r's templates plus extra. An extra
// template with an existing ID replaces it. r is left unchanged.
func (r *Registry) With(extra ...Template) (*Registry, error) {
	merged := make(map[string]Template, len(r.byID)+len(extra))
	for id, t := range r.byID {
		merged[id] = t
	}
	seen := map[string]bool{}
	for _, t := range extra {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		id := strings.ToLower(t.ID)
		if seen[id] {
			return nil, fmt.Errorf("template %q defined twice", t.ID)
		}
		seen[id] = true
		merged[id] = t.Clone()
	}
	return &Registry{byID: merged}, nil
}

// File is the on-disk shape of a templates file. JSON files parse too, since
// JSON is valid YAML.
type File struct {
	Templates []Template `yaml:"templates"`
}

// LoadFile reads and validates a YAML or JSON templates file.
func LoadFile(path string) ([]Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse templates file: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("templates file has no templates")
	}
	for _, t := range f.Templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Templates, nil
}

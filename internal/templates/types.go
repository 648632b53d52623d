package templates

import (
	"fmt"
	"maps"
	"strings"

	"chatextract/internal/dom"
	"chatextract/internal/transcript"
)

// Style is the markup pattern a template assumes. It selects which steps of
// the role-classification chain apply.
type Style string

const (
	// StyleAttribute reads the role from an attribute value on the container.
	StyleAttribute Style = "attribute-based"
	// StyleClass decides the role by matching user/model selectors.
	StyleClass Style = "class-based"
	// StyleAlternating assumes strict User/Model alternation.
	StyleAlternating Style = "alternating"
)

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	switch s {
	case StyleAttribute, StyleClass, StyleAlternating:
		return true
	}
	return false
}

// Template describes a platform's expected markup. It is one closed record
// for every style; fields that a style does not use stay empty.
type Template struct {
	ID          string `yaml:"id" jsonschema:"minLength=1"`
	Name        string `yaml:"name,omitempty"`
	Style       Style  `yaml:"style" jsonschema:"enum=attribute-based,enum=class-based,enum=alternating"`
	Container   string `yaml:"container" jsonschema:"minLength=1" jsonschema_description:"CSS selector (or xpath: expression) matching every message container"`
	Description string `yaml:"description,omitempty"`

	// Attribute-based role detection.
	RoleAttribute string                     `yaml:"role_attribute,omitempty"`
	RoleValues    map[string]transcript.Role `yaml:"role_values,omitempty" jsonschema_description:"attribute value to User or Model"`

	// Class-based role detection. Also consulted as a second step for
	// attribute-based templates when both are set.
	UserSelector  string `yaml:"user_selector,omitempty"`
	ModelSelector string `yaml:"model_selector,omitempty"`

	// Content is an optional sub-selector for the message body.
	Content string `yaml:"content,omitempty" jsonschema_description:"sub-selector for the message body inside a container"`
}

// Info is the enumerable public face of a template.
type Info struct {
	ID          string
	Name        string
	Description string
}

// Clone returns a deep copy so callers can never reach registry state.
func (t Template) Clone() Template {
	t.RoleValues = maps.Clone(t.RoleValues)
	return t
}

// Validate checks the template is internally consistent for its style.
func (t Template) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("template: missing id")
	}
	if !t.Style.Valid() {
		return fmt.Errorf("template %q: unknown style %q", t.ID, t.Style)
	}
	if strings.TrimSpace(t.Container) == "" {
		return fmt.Errorf("template %q: missing container selector", t.ID)
	}

	for _, sel := range []string{t.Container, t.UserSelector, t.ModelSelector, t.Content} {
		if sel == "" {
			continue
		}
		if err := dom.ValidateSelector(sel); err != nil {
			return fmt.Errorf("template %q: %w", t.ID, err)
		}
	}

	switch t.Style {
	case StyleAttribute:
		if t.RoleAttribute == "" || len(t.RoleValues) == 0 {
			return fmt.Errorf("template %q: attribute-based style needs role_attribute and role_values", t.ID)
		}
		for v, r := range t.RoleValues {
			if !r.Valid() {
				return fmt.Errorf("template %q: role_values[%q]=%q is not User or Model", t.ID, v, r)
			}
		}
	case StyleClass:
		if t.UserSelector == "" || t.ModelSelector == "" {
			return fmt.Errorf("template %q: class-based style needs user_selector and model_selector", t.ID)
		}
	}
	if t.UserSelector != "" && t.UserSelector == t.ModelSelector {
		return fmt.Errorf("template %q: user_selector and model_selector are identical", t.ID)
	}
	return nil
}

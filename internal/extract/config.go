package extract

import (
	"fmt"
	"regexp"
	"strings"

	"chatextract/internal/dom"
	"chatextract/internal/normalize"
	"chatextract/internal/templates"
	"chatextract/internal/transcript"
)

// DefaultFallbacks are tried in order when the configured container selector
// matches nothing and the user did not pin one explicitly: role attributes
// first, then class-name substrings.
var DefaultFallbacks = []string{
	"[data-message-author-role]",
	"[data-testid^='conversation-turn']",
	"[data-role]",
	"[class*='message']",
	"[class*='turn']",
	"[class*='bubble']",
}

// Overrides are user-supplied selectors. Any non-empty field beats the template.
type Overrides struct {
	Container     string
	UserSelector  string
	ModelSelector string
	Content       string
	RoleAttribute string
	RoleValues    map[string]transcript.Role
}

// Config is the effective configuration for one extraction run.
type Config struct {
	TemplateID string
	Style      templates.Style

	Container     string
	UserSelector  string
	ModelSelector string
	Content       string

	RoleAttribute string
	RoleValues    map[string]transcript.Role

	// ExplicitContainer disables Fallbacks: a pinned selector that matches
	// nothing is reported as such instead of being papered over.
	ExplicitContainer bool
	Fallbacks         []string

	// Normalizer cleans extracted text; nil uses normalize.Normalize.
	Normalizer *normalize.Normalizer
}

var reAttrName = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)

// Resolve builds the effective Config: explicit overrides on top of the named
// template on top of the generic defaults. An empty name or "auto" selects the
// generic template. reg may be nil to use the built-in registry.
func Resolve(ov Overrides, templateName string, reg *templates.Registry) (Config, error) {
	if reg == nil {
		reg = templates.Builtin()
	}

	name := strings.TrimSpace(templateName)
	if name == "" {
		name = templates.GenericID
	}
	tpl, ok := reg.Lookup(name)
	if !ok {
		return Config{}, &ConfigError{
			Field:  "template",
			Reason: fmt.Sprintf("unknown template %q (known: %s)", templateName, strings.Join(reg.IDs(), ", ")),
			Err:    ErrUnknownTemplate,
		}
	}

	cfg := Config{
		TemplateID:    tpl.ID,
		Style:         tpl.Style,
		Container:     tpl.Container,
		UserSelector:  tpl.UserSelector,
		ModelSelector: tpl.ModelSelector,
		Content:       tpl.Content,
		RoleAttribute: tpl.RoleAttribute,
		RoleValues:    lowerKeys(tpl.RoleValues),
		Fallbacks:     append([]string(nil), DefaultFallbacks...),
	}

	if err := validateOverrides(ov); err != nil {
		return Config{}, err
	}

	if ov.Container != "" {
		cfg.Container = ov.Container
		cfg.ExplicitContainer = true
		cfg.Fallbacks = nil
	}
	if ov.Content != "" {
		cfg.Content = ov.Content
	}
	if ov.UserSelector != "" {
		cfg.UserSelector = ov.UserSelector
	}
	if ov.ModelSelector != "" {
		cfg.ModelSelector = ov.ModelSelector
	}
	if (ov.UserSelector != "" || ov.ModelSelector != "") && cfg.Style == templates.StyleAlternating {
		cfg.Style = templates.StyleClass
	}

	if ov.RoleAttribute != "" {
		cfg.RoleAttribute = ov.RoleAttribute
		cfg.Style = templates.StyleAttribute
	}
	if len(ov.RoleValues) > 0 {
		cfg.RoleValues = lowerKeys(ov.RoleValues)
	}
	if cfg.Style == templates.StyleAttribute && len(cfg.RoleValues) == 0 {
		// An explicit attribute on a template without a mapping borrows the
		// generic mapping.
		if g, ok := templates.Builtin().Lookup(templates.GenericID); ok {
			cfg.RoleValues = lowerKeys(g.RoleValues)
		}
	}
	if len(ov.RoleValues) > 0 && cfg.RoleAttribute == "" {
		return Config{}, &ConfigError{Field: "role-values", Reason: "role values given without a role attribute"}
	}
	if cfg.UserSelector != "" && cfg.UserSelector == cfg.ModelSelector {
		return Config{}, &ConfigError{Field: "user-selector", Reason: "user and model selectors are identical"}
	}
	return cfg, nil
}

func validateOverrides(ov Overrides) error {
	fields := []struct{ name, sel string }{
		{"container", ov.Container},
		{"user-selector", ov.UserSelector},
		{"model-selector", ov.ModelSelector},
		{"content-selector", ov.Content},
	}
	for _, f := range fields {
		if f.sel == "" {
			continue
		}
		if err := dom.ValidateSelector(f.sel); err != nil {
			return &ConfigError{Field: f.name, Reason: err.Error()}
		}
	}
	if ov.RoleAttribute != "" && !reAttrName.MatchString(ov.RoleAttribute) {
		return &ConfigError{Field: "role-attr", Reason: fmt.Sprintf("invalid attribute name %q", ov.RoleAttribute)}
	}
	for v, r := range ov.RoleValues {
		if !r.Valid() {
			return &ConfigError{Field: "role-values", Reason: fmt.Sprintf("value %q maps to %q, want User or Model", v, r)}
		}
	}
	return nil
}

func (c Config) normalizeText(s string) string {
	if c.Normalizer != nil {
		return c.Normalizer.Normalize(s)
	}
	return normalize.Normalize(s)
}

func lowerKeys(m map[string]transcript.Role) map[string]transcript.Role {
	if m == nil {
		return nil
	}
	out := make(map[string]transcript.Role, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

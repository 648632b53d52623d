package extract

import (
	"errors"
	"testing"

	"chatextract/internal/templates"
	"chatextract/internal/transcript"
)

func TestResolve_DefaultsToGeneric(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "auto", "  AUTO ", "generic"} {
		cfg, err := Resolve(Overrides{}, name, nil)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if cfg.TemplateID != templates.GenericID || cfg.Style != templates.StyleAttribute {
			t.Fatalf("Resolve(%q) = %s/%s", name, cfg.TemplateID, cfg.Style)
		}
		if cfg.ExplicitContainer || len(cfg.Fallbacks) != len(DefaultFallbacks) {
			t.Fatalf("Resolve(%q): fallbacks should be enabled", name)
		}
	}
}

// TestResolve_UnknownTemplate matches both the specific sentinel and the
// configuration class.
func TestResolve_UnknownTemplate(t *testing.T) {
	t.Parallel()

	_, err := Resolve(Overrides{}, "nope", nil)
	if !errors.Is(err, ErrUnknownTemplate) || !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err=%v, want ErrUnknownTemplate and ErrConfiguration", err)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "template" {
		t.Fatalf("want *ConfigError for template, got %#v", err)
	}
}

func TestResolve_OverridesWin(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(Overrides{
		Container:     ".turn",
		UserSelector:  ".me",
		ModelSelector: ".bot",
		Content:       ".body",
	}, "gemini", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Container != ".turn" || cfg.UserSelector != ".me" || cfg.ModelSelector != ".bot" || cfg.Content != ".body" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !cfg.ExplicitContainer || cfg.Fallbacks != nil {
		t.Fatalf("explicit container must disable fallbacks")
	}
	if cfg.TemplateID != "gemini" || cfg.Style != templates.StyleClass {
		t.Fatalf("template identity lost: %s/%s", cfg.TemplateID, cfg.Style)
	}
}

func TestResolve_StylePromotion(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(Overrides{UserSelector: ".me"}, "alternating", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Style != templates.StyleClass {
		t.Fatalf("selectors on alternating template: style=%s, want class-based", cfg.Style)
	}

	cfg, err = Resolve(Overrides{RoleAttribute: "data-author"}, "gemini", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Style != templates.StyleAttribute || cfg.RoleAttribute != "data-author" {
		t.Fatalf("role attribute override: %s/%s", cfg.Style, cfg.RoleAttribute)
	}
	if cfg.RoleValues["assistant"] != transcript.Model || cfg.RoleValues["user"] != transcript.User {
		t.Fatalf("attribute without mapping should borrow the generic mapping, got %v", cfg.RoleValues)
	}
}

func TestResolve_RoleValueKeysLowercased(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(Overrides{
		RoleAttribute: "data-who",
		RoleValues:    map[string]transcript.Role{" Me ": transcript.User, "BOT": transcript.Model},
	}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RoleValues["me"] != transcript.User || cfg.RoleValues["bot"] != transcript.Model {
		t.Fatalf("keys not normalized: %v", cfg.RoleValues)
	}
}

func TestResolve_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ov    Overrides
		tpl   string
		field string
	}{
		{name: "identical_selectors", ov: Overrides{UserSelector: ".x", ModelSelector: ".x"}, field: "user-selector"},
		{name: "invalid_css", ov: Overrides{Container: "div["}, field: "container"},
		{name: "invalid_xpath", ov: Overrides{Content: "xpath://div[@"}, field: "content-selector"},
		{name: "empty_xpath", ov: Overrides{ModelSelector: "xpath:  "}, field: "model-selector"},
		{name: "bad_attr_name", ov: Overrides{RoleAttribute: "data role"}, field: "role-attr"},
		{
			name:  "values_without_attribute",
			ov:    Overrides{RoleValues: map[string]transcript.Role{"me": transcript.User}},
			tpl:   "gemini",
			field: "role-values",
		},
		{
			name:  "invalid_role",
			ov:    Overrides{RoleAttribute: "data-r", RoleValues: map[string]transcript.Role{"x": "Robot"}},
			field: "role-values",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(tc.ov, tc.tpl, nil)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err=%v, want ErrConfiguration", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) || ce.Field != tc.field {
				t.Fatalf("field: got %#v, want %q", err, tc.field)
			}
		})
	}
}

func TestResolve_CustomRegistry(t *testing.T) {
	t.Parallel()

	reg, err := templates.Builtin().With(templates.Template{
		ID:        "forum",
		Name:      "Forum",
		Style:     templates.StyleAlternating,
		Container: ".post",
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Resolve(Overrides{}, "forum", reg)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Container != ".post" || cfg.Style != templates.StyleAlternating {
		t.Fatalf("custom template not used: %+v", cfg)
	}
	if _, err := Resolve(Overrides{}, "forum", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("builtin registry should not know custom templates")
	}
}

package extract

import (
	"fmt"
	"strings"

	"chatextract/internal/dom"
	"chatextract/internal/templates"
	"chatextract/internal/transcript"
)

// Method names the classification step that decided a role.
type Method string

const (
	MethodAttribute   Method = "attribute"
	MethodClass       Method = "class"
	MethodAlternation Method = "alternation"
)

// Classify returns the speaker of container c. prev is the role of the
// previous turn in the transcript ("" for the first turn).
//
// Steps run in priority order, each only when the previous is inconclusive:
//
//  1. attribute: the configured role attribute on c or its first descendant
//     carrying it, mapped through RoleValues
//  2. class: c (itself or a descendant) matches exactly one of the user and
//     model selectors
//  3. alternation: the opposite of prev, starting with User
//
// Alternation cannot see consecutive turns from the same speaker (a model
// answer split across two containers). With no markup evidence there is
// nothing to correct it with, so such runs come out alternating.
func Classify(c dom.Node, cfg Config, prev transcript.Role) transcript.Role {
	r, _ := classify(c, cfg, prev)
	return r
}

func classify(c dom.Node, cfg Config, prev transcript.Role) (transcript.Role, Method) {
	if cfg.Style == templates.StyleAttribute {
		if r, ok := roleFromAttribute(c, cfg); ok {
			return r, MethodAttribute
		}
	}
	if cfg.Style != templates.StyleAlternating {
		if r, ok := roleFromClass(c, cfg); ok {
			return r, MethodClass
		}
	}
	return prev.Opposite(), MethodAlternation
}

func roleFromAttribute(c dom.Node, cfg Config) (transcript.Role, bool) {
	if cfg.RoleAttribute == "" || len(cfg.RoleValues) == 0 {
		return "", false
	}
	v, ok := c.Attr(cfg.RoleAttribute)
	if !ok {
		d, found := c.SelectOne(fmt.Sprintf("[%s]", cfg.RoleAttribute))
		if !found {
			return "", false
		}
		v, _ = d.Attr(cfg.RoleAttribute)
	}
	r, ok := cfg.RoleValues[strings.ToLower(strings.TrimSpace(v))]
	if !ok || !r.Valid() {
		return "", false
	}
	return r, true
}

func roleFromClass(c dom.Node, cfg Config) (transcript.Role, bool) {
	user := hasMatch(c, cfg.UserSelector)
	model := hasMatch(c, cfg.ModelSelector)
	switch {
	case user && !model:
		return transcript.User, true
	case model && !user:
		return transcript.Model, true
	default:
		return "", false
	}
}

func hasMatch(c dom.Node, selector string) bool {
	if selector == "" {
		return false
	}
	if c.Matches(selector) {
		return true
	}
	_, ok := c.SelectOne(selector)
	return ok
}

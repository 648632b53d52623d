// Package normalize cleans text pulled out of chat markup.
//
// Normalization is idempotent: Normalize(Normalize(s)) == Normalize(s).
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultBoilerplate lists UI strings that chat apps render as text next to a
// message (button labels, icon ligatures, speaker headers). A line consisting
// only of one of these, compared case-insensitively, is removed.
var DefaultBoilerplate = []string{
	"Copy",
	"Copy code",
	"Copied!",
	"Edit",
	"Regenerate",
	"Retry",
	"Share",
	"Like",
	"Dislike",
	"Good response",
	"Bad response",
	"Show drafts",
	"Read aloud",
	"More",
	"You said:",
	"ChatGPT said:",
	"Gemini said:",
	"Claude said:",
	"content_copy",
	"thumb_up",
	"thumb_down",
	"more_vert",
	"volume_up",
	"share",
	"edit",
	"refresh",
	"expand_more",
	"expand_less",
}

// Normalizer holds the boilerplate set. The zero value strips no boilerplate.
type Normalizer struct {
	boilerplate map[string]struct{}
}

// New returns a Normalizer that drops lines equal to any of the given strings.
func New(boilerplate ...string) *Normalizer {
	set := make(map[string]struct{}, len(boilerplate))
	for _, s := range boilerplate {
		s = strings.ToLower(strings.Join(strings.Fields(s), " "))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return &Normalizer{boilerplate: set}
}

var std = New(DefaultBoilerplate...)

// Normalize runs the default normalizer.
func Normalize(s string) string {
	return std.Normalize(s)
}

// IsBoilerplate reports whether line, after whitespace collapsing, is a known UI string.
func (n *Normalizer) IsBoilerplate(line string) bool {
	if n == nil || len(n.boilerplate) == 0 {
		return false
	}
	_, ok := n.boilerplate[strings.ToLower(strings.Join(strings.Fields(line), " "))]
	return ok
}

// Normalize applies, in order:
//   - CR/CRLF to LF
//   - removal of format (zero-width, BOM, soft hyphen) and control characters other than LF
//   - Unicode NFC composition
//   - per-line whitespace collapsing and trimming
//   - removal of boilerplate lines
//   - collapsing runs of blank lines to one, and trimming the result
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	t := transform.Chain(runes.Remove(runes.Predicate(isInvisible)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = true
			continue
		}
		if n.IsBoilerplate(line) {
			continue
		}
		if blank && len(kept) > 0 {
			kept = append(kept, "")
		}
		blank = false
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isInvisible(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	return unicode.Is(unicode.Cf, r) || unicode.IsControl(r)
}

package extract

import (
	"fmt"
	"io"
	"strings"

	"chatextract/internal/dom"
)

// DebugPrintSelector prints either the outer HTML or the visible text of every
// match of selector, separated by blank lines. selector may be CSS or xpath:.
// It backs the command's -selector debug mode.
func DebugPrintSelector(w io.Writer, doc *dom.Document, selector string, textOnly bool) (int, error) {
	if err := dom.ValidateSelector(selector); err != nil {
		return 0, &ConfigError{Field: "selector", Reason: err.Error()}
	}
	matches := doc.Root().SelectAll(selector)
	for _, n := range matches {
		out := dom.OuterHTML(n)
		if textOnly {
			out = strings.TrimSpace(n.Text())
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", out); err != nil {
			return 0, fmt.Errorf("write match: %w", err)
		}
	}
	return len(matches), nil
}

package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockAtoms are elements whose content starts on its own line.
var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Details: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Summary: true, atom.Table: true, atom.Tr: true, atom.Ul: true,
}

// paragraphAtoms are separated from their neighbours by a blank line.
var paragraphAtoms = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
}

// invisibleAtoms never contribute text.
var invisibleAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Template: true, atom.Noscript: true,
	atom.Head: true, atom.Title: true,
}

// textWriter renders text roughly the way a browser's innerText does: source
// whitespace collapses outside <pre>, and block boundaries request line
// breaks that are only emitted before the next visible text.
type textWriter struct {
	b       *strings.Builder
	skip    map[*html.Node]struct{}
	pending int // line breaks requested by block boundaries
	pre     int // <pre> nesting depth
}

func (w *textWriter) atLineStart() bool {
	s := w.b.String()
	return s == "" || s[len(s)-1] == '\n'
}

func (w *textWriter) request(n int) {
	if n > w.pending {
		w.pending = n
	}
}

func (w *textWriter) flush() {
	if w.b.Len() > 0 && w.pending > 0 {
		w.b.WriteString(strings.Repeat("\n", w.pending))
	}
	w.pending = 0
}

func (w *textWriter) text(s string) {
	if w.pre > 0 {
		if s != "" {
			w.flush()
			w.b.WriteString(s)
		}
		return
	}
	lead := s != "" && isSpace(s[0])
	trail := s != "" && isSpace(s[len(s)-1])
	words := strings.Fields(s)
	if len(words) == 0 {
		if lead && w.pending == 0 && !w.atLineStart() {
			w.b.WriteByte(' ')
		}
		return
	}
	w.flush()
	if lead && !w.atLineStart() && !strings.HasSuffix(w.b.String(), " ") {
		w.b.WriteByte(' ')
	}
	w.b.WriteString(strings.Join(words, " "))
	if trail {
		w.b.WriteByte(' ')
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func (w *textWriter) walk(cur *html.Node, isRoot bool) {
	switch cur.Type {
	case html.TextNode:
		w.text(cur.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if !isRoot {
			if _, ok := w.skip[cur]; ok {
				return
			}
		}
		if invisibleAtoms[cur.DataAtom] {
			return
		}
		switch cur.DataAtom {
		case atom.Br:
			w.flush()
			w.b.WriteByte('\n')
			return
		case atom.Td, atom.Th:
			w.text(" ")
		}
		breaks := 0
		if blockAtoms[cur.DataAtom] {
			breaks = 1
		}
		if paragraphAtoms[cur.DataAtom] {
			breaks = 2
		}
		w.request(breaks)
		if cur.DataAtom == atom.Pre {
			w.pre++
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, false)
		}
		if cur.DataAtom == atom.Pre {
			w.pre--
		}
		w.request(breaks)
		return
	}
	for c := cur.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, false)
	}
}

// writeText appends the visible text of n to b. Subtrees rooted at nodes in
// skip are omitted; n itself is never skipped.
func writeText(b *strings.Builder, n *html.Node, skip map[*html.Node]struct{}) {
	if n == nil {
		return
	}
	w := &textWriter{b: b, skip: skip}
	w.walk(n, true)
}

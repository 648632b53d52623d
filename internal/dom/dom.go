// Package dom exposes the small set of read-only document capabilities the
// extraction engine needs: select-one, select-all, attribute and class access,
// and visible text.
//
// The engine depends only on the Node interface. The concrete implementation
// here is backed by goquery (CSS selectors via cascadia) with htmlquery for
// selectors written as "xpath:<expr>".
//
// Nothing in this package mutates the parsed tree.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPathPrefix marks a selector that should be evaluated as XPath instead of CSS.
const XPathPrefix = "xpath:"

// Attribute is one name/value pair in source order.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Node is the capability interface the engine is written against.
type Node interface {
	// Tag returns the lowercase element name ("" for the document root).
	Tag() string

	// Attr returns the value of the named attribute.
	Attr(name string) (string, bool)

	// Attrs returns all attributes in source order.
	Attrs() []Attribute

	// Classes returns the whitespace-split class list.
	Classes() []string

	// Text returns visible text with block elements separated by newlines.
	Text() string

	// TextWithout is Text, skipping every descendant subtree matched by exclude.
	TextWithout(exclude string) string

	// SelectOne returns the first descendant matching selector, in document order.
	SelectOne(selector string) (Node, bool)

	// SelectAll returns all descendants matching selector, in document order.
	SelectAll(selector string) []Node

	// Matches reports whether the node itself matches selector.
	Matches(selector string) bool
}

// Document owns a parsed HTML tree.
type Document struct {
	doc *goquery.Document
}

// Parse reads and parses an HTML document. The HTML5 parser recovers from
// malformed markup, so errors are limited to read failures.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node. Selections against it search the whole tree.
func (d *Document) Root() Node {
	return &Element{sel: d.doc.Selection}
}

// Title returns the trimmed <title> text.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// ValidateSelector reports whether selector compiles, as CSS or as xpath:.
func ValidateSelector(selector string) error {
	if expr, ok := strings.CutPrefix(selector, XPathPrefix); ok {
		if strings.TrimSpace(expr) == "" {
			return fmt.Errorf("empty xpath expression")
		}
		// htmlquery compiles lazily; an empty document is enough to surface syntax errors.
		if _, err := htmlquery.QueryAll(&html.Node{Type: html.DocumentNode}, expr); err != nil {
			return fmt.Errorf("invalid xpath %q: %w", expr, err)
		}
		return nil
	}
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return nil
}

// Element is a goquery-backed Node wrapping exactly one html.Node.
type Element struct {
	sel *goquery.Selection
}

func (e *Element) node() *html.Node {
	if e.sel.Length() == 0 {
		return nil
	}
	return e.sel.Nodes[0]
}

func (e *Element) Tag() string {
	n := e.node()
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *Element) Attrs() []Attribute {
	n := e.node()
	if n == nil {
		return nil
	}
	out := make([]Attribute, 0, len(n.Attr))
	for _, a := range n.Attr {
		out = append(out, Attribute{Name: a.Key, Value: a.Val})
	}
	return out
}

func (e *Element) Classes() []string {
	v, ok := e.sel.Attr("class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

func (e *Element) Text() string {
	var b strings.Builder
	writeText(&b, e.node(), nil)
	return b.String()
}

func (e *Element) TextWithout(exclude string) string {
	skip := make(map[*html.Node]struct{})
	if strings.TrimSpace(exclude) != "" {
		for _, n := range e.findNodes(exclude) {
			skip[n] = struct{}{}
		}
	}
	var b strings.Builder
	writeText(&b, e.node(), skip)
	return b.String()
}

func (e *Element) SelectOne(selector string) (Node, bool) {
	nodes := e.findNodes(selector)
	if len(nodes) == 0 {
		return nil, false
	}
	return wrap(e.sel, nodes[0]), true
}

func (e *Element) SelectAll(selector string) []Node {
	nodes := e.findNodes(selector)
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, wrap(e.sel, n))
	}
	return out
}

func (e *Element) Matches(selector string) bool {
	n := e.node()
	if n == nil {
		return false
	}
	if expr, ok := strings.CutPrefix(selector, XPathPrefix); ok {
		matches, err := htmlquery.QueryAll(top(n), expr)
		if err != nil {
			return false
		}
		for _, m := range matches {
			if m == n {
				return true
			}
		}
		return false
	}
	return e.sel.Is(selector)
}

// findNodes returns descendant element nodes matching selector in document order.
// Invalid selectors match nothing; callers validate up front with ValidateSelector.
func (e *Element) findNodes(selector string) []*html.Node {
	root := e.node()
	if root == nil {
		return nil
	}
	if expr, ok := strings.CutPrefix(selector, XPathPrefix); ok {
		found, err := htmlquery.QueryAll(root, expr)
		if err != nil {
			return nil
		}
		out := found[:0:0]
		for _, n := range found {
			if n != root && n.Type == html.ElementNode {
				out = append(out, n)
			}
		}
		return out
	}
	if ValidateSelector(selector) != nil {
		return nil
	}
	return e.sel.Find(selector).Nodes
}

// wrap builds a single-node selection that shares the document of parent, so
// relative Find and Is keep working.
func wrap(parent *goquery.Selection, n *html.Node) *Element {
	return &Element{sel: parent.FindNodes(n)}
}

func top(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// Outermost drops every node that has an ancestor in the same list, keeping
// document order. Nodes not produced by this package are kept as-is.
func Outermost(nodes []Node) []Node {
	set := make(map[*html.Node]struct{}, len(nodes))
	for _, n := range nodes {
		if el, ok := n.(*Element); ok && el.node() != nil {
			set[el.node()] = struct{}{}
		}
	}
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		el, ok := n.(*Element)
		if !ok || el.node() == nil {
			out = append(out, n)
			continue
		}
		nested := false
		for p := el.node().Parent; p != nil; p = p.Parent {
			if _, in := set[p]; in {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

// OuterHTML renders n including its own tag. Nodes not produced by this
// package render as "".
func OuterHTML(n Node) string {
	el, ok := n.(*Element)
	if !ok || el.node() == nil {
		return ""
	}
	out, err := goquery.OuterHtml(el.sel)
	if err != nil {
		in, _ := el.sel.Html()
		return in
	}
	return out
}

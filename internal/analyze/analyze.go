// Package analyze inspects an unfamiliar chat page and suggests container
// selectors. It is a diagnostic for humans choosing -container and friends;
// the extraction pipeline never calls it.
//
// Everything here is a read-only traversal of the document.
package analyze

import (
	"sort"
	"strings"
	"unicode/utf8"

	"chatextract/internal/dom"
	"chatextract/internal/extract"
	"chatextract/internal/normalize"
	"chatextract/internal/templates"
)

// Keywords mark class names that often belong to chat turn markup.
var Keywords = []string{"message", "turn", "chat", "response", "query", "user", "model", "assistant", "human"}

const (
	defaultSampleSize = 3
	defaultPreviewLen = 80
	maxListed         = 20
	minKeywordText    = 10
	minCommonClass    = 2
	maxCommonClass    = 100
)

// Options tunes Analyze. Zero values pick defaults.
type Options struct {
	// Candidates are the container selectors to score. Defaults to the
	// locator fallbacks plus every container in Registry.
	Candidates []string

	// Registry supplies template containers for the default candidates.
	// Nil means the built-in templates.
	Registry *templates.Registry

	// SampleSize caps samples per candidate.
	SampleSize int

	// PreviewLen caps sample text previews, in runes.
	PreviewLen int
}

// Sample describes one matched element.
type Sample struct {
	Tag     string          `json:"tag"`
	Classes []string        `json:"classes,omitempty"`
	Attrs   []dom.Attribute `json:"attrs,omitempty"`
	Preview string          `json:"preview,omitempty"`
}

// Candidate is one scored container selector.
type Candidate struct {
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`

	// SharedClasses are classes present on every match.
	SharedClasses []string `json:"shared_classes,omitempty"`

	// Consistency is the share of matches carrying the most common class list.
	Consistency float64 `json:"consistency"`

	// Score is Matches*Consistency, halved for a lone match.
	Score float64 `json:"score"`

	Samples []Sample `json:"samples,omitempty"`

	// Error is set when the selector does not compile.
	Error string `json:"error,omitempty"`
}

// Count pairs a name with how often it occurred.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report is the analyzer output.
type Report struct {
	Title           string      `json:"title,omitempty"`
	Elements        int         `json:"elements"`
	Candidates      []Candidate `json:"candidates"`
	RoleElements    []Sample    `json:"role_elements,omitempty"`
	DataAttributes  []Count     `json:"data_attributes,omitempty"`
	CommonClasses   []Count     `json:"common_classes,omitempty"`
	KeywordElements []Sample    `json:"keyword_elements,omitempty"`
}

// Best returns the highest-scoring candidate with at least one match.
func (r Report) Best() (Candidate, bool) {
	for _, c := range r.Candidates {
		if c.Matches > 0 && c.Error == "" {
			return c, true
		}
	}
	return Candidate{}, false
}

// DefaultCandidates returns the locator fallbacks followed by every template
// container in reg (nil for the built-ins), de-duplicated in that order.
func DefaultCandidates(reg *templates.Registry) []string {
	if reg == nil {
		reg = templates.Builtin()
	}
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]string{extract.DefaultFallbacks, reg.Containers()} {
		for _, s := range group {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Analyze scores candidate selectors against doc and surveys its markup.
func Analyze(doc *dom.Document, opt Options) Report {
	if len(opt.Candidates) == 0 {
		opt.Candidates = DefaultCandidates(opt.Registry)
	}
	if opt.SampleSize <= 0 {
		opt.SampleSize = defaultSampleSize
	}
	if opt.PreviewLen <= 0 {
		opt.PreviewLen = defaultPreviewLen
	}

	root := doc.Root()
	rep := Report{Title: doc.Title()}

	for _, sel := range opt.Candidates {
		rep.Candidates = append(rep.Candidates, scoreCandidate(root, sel, opt))
	}
	sort.SliceStable(rep.Candidates, func(i, j int) bool {
		a, b := rep.Candidates[i], rep.Candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Matches > b.Matches
	})

	survey(root, &rep, opt)
	return rep
}

func scoreCandidate(root dom.Node, sel string, opt Options) Candidate {
	c := Candidate{Selector: sel}
	if err := dom.ValidateSelector(sel); err != nil {
		c.Error = err.Error()
		return c
	}
	// Count what Locate would keep.
	nodes := dom.Outermost(root.SelectAll(sel))
	c.Matches = len(nodes)
	if c.Matches == 0 {
		return c
	}

	signatures := map[string]int{}
	shared := map[string]int{}
	for _, n := range nodes {
		cls := n.Classes()
		sorted := append([]string(nil), cls...)
		sort.Strings(sorted)
		signatures[strings.Join(sorted, " ")]++
		for _, cl := range uniq(sorted) {
			shared[cl]++
		}
	}
	top := 0
	for _, v := range signatures {
		if v > top {
			top = v
		}
	}
	for cl, v := range shared {
		if v == c.Matches {
			c.SharedClasses = append(c.SharedClasses, cl)
		}
	}
	sort.Strings(c.SharedClasses)

	c.Consistency = float64(top) / float64(c.Matches)
	c.Score = float64(c.Matches) * c.Consistency
	if c.Matches == 1 {
		c.Score /= 2
	}

	for i := 0; i < len(nodes) && i < opt.SampleSize; i++ {
		c.Samples = append(c.Samples, sample(nodes[i], opt.PreviewLen))
	}
	return c
}

func survey(root dom.Node, rep *Report, opt Options) {
	dataAttrs := map[string]int{}
	classes := map[string]int{}

	for _, n := range root.SelectAll("*") {
		rep.Elements++

		if _, ok := n.Attr("role"); ok && len(rep.RoleElements) < maxListed {
			rep.RoleElements = append(rep.RoleElements, sample(n, opt.PreviewLen))
		}
		for _, a := range n.Attrs() {
			if strings.HasPrefix(a.Name, "data-") {
				dataAttrs[a.Name]++
			}
		}
		cls := n.Classes()
		for _, cl := range uniq(cls) {
			classes[cl]++
		}
		if len(rep.KeywordElements) < maxListed && hasKeyword(cls) {
			if utf8.RuneCountInString(normalize.Normalize(n.Text())) > minKeywordText {
				rep.KeywordElements = append(rep.KeywordElements, sample(n, opt.PreviewLen))
			}
		}
	}

	rep.DataAttributes = sortedCounts(dataAttrs, 1, 0)
	rep.CommonClasses = sortedCounts(classes, minCommonClass, maxCommonClass)
	if len(rep.CommonClasses) > maxListed {
		rep.CommonClasses = rep.CommonClasses[:maxListed]
	}
}

func hasKeyword(classes []string) bool {
	for _, cl := range classes {
		lc := strings.ToLower(cl)
		for _, k := range Keywords {
			if strings.Contains(lc, k) {
				return true
			}
		}
	}
	return false
}

func sample(n dom.Node, previewLen int) Sample {
	s := Sample{Tag: n.Tag(), Classes: n.Classes()}
	for _, a := range n.Attrs() {
		if a.Name == "role" || strings.HasPrefix(a.Name, "data-") || strings.HasPrefix(a.Name, "aria-") {
			s.Attrs = append(s.Attrs, a)
		}
	}
	s.Preview = preview(n.Text(), previewLen)
	return s
}

func preview(text string, limit int) string {
	s := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}

// sortedCounts keeps entries with lo <= count (and count <= hi when hi > 0),
// ordered by count descending then name.
func sortedCounts(m map[string]int, lo, hi int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		if v < lo || (hi > 0 && v > hi) {
			continue
		}
		out = append(out, Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func uniq(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := ss[:0:0]
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

package extract

import (
	"chatextract/internal/dom"
	"chatextract/internal/transcript"
)

// Result carries the transcript plus enough bookkeeping to explain it.
type Result struct {
	// Transcript is nil whenever Extract returns an error.
	Transcript *transcript.Transcript

	Strategy   string
	Fallback   bool
	Containers int
	Dropped    int
	Methods    map[Method]int
}

// Extract runs the full pipeline over root: locate containers, then for each
// one classify its role and extract its text. Turns whose text normalizes to
// empty are dropped and do not advance the alternation.
//
// Outcomes:
//   - ErrNoContainersFound: no strategy matched; Result has no containers.
//   - ErrEmptyTranscript: containers matched but every turn was empty.
//
// The returned Result never references root's nodes, so the caller may
// discard the document afterwards. Extract is deterministic and does not
// mutate root.
func Extract(root dom.Node, cfg Config) (*Result, error) {
	res := &Result{Methods: map[Method]int{}}

	loc, ok := Locate(root, cfg)
	if !ok {
		return res, ErrNoContainersFound
	}
	res.Strategy = loc.Strategy
	res.Fallback = loc.Fallback
	res.Containers = len(loc.Containers)

	turns := make([]transcript.Turn, 0, len(loc.Containers))
	var prev transcript.Role
	for _, c := range loc.Containers {
		role, method := classify(c.Node, cfg, prev)
		text := ExtractContent(c.Node, cfg)
		if text == "" {
			res.Dropped++
			continue
		}
		res.Methods[method]++
		turns = append(turns, transcript.Turn{Role: role, Text: text, Position: c.Index})
		prev = role
	}

	if len(turns) == 0 {
		return res, ErrEmptyTranscript
	}
	res.Transcript = &transcript.Transcript{Turns: turns}
	return res, nil
}

// ExtractHTML parses html and runs Extract against the whole document.
func ExtractHTML(html string, cfg Config) (*Result, error) {
	doc, err := dom.ParseString(html)
	if err != nil {
		return nil, err
	}
	return Extract(doc.Root(), cfg)
}

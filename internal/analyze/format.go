package analyze

import (
	"fmt"
	"io"
	"strings"
)

// Format writes r as a human-readable report.
func Format(w io.Writer, r Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "structure report:\telements=%d", r.Elements)
	if r.Title != "" {
		fmt.Fprintf(&b, "\ttitle=%q", r.Title)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%-45s\t%-7s\t%-11s\tscore\n", "candidate", "matches", "consistency")
	for _, c := range r.Candidates {
		if c.Error != "" {
			fmt.Fprintf(&b, "%-45s\terror: %s\n", c.Selector, c.Error)
			continue
		}
		if c.Matches == 0 {
			continue
		}
		fmt.Fprintf(&b, "%-45s\t%-7d\t%-11s\t%.1f\n", c.Selector, c.Matches, fmt.Sprintf("%.0f%%", c.Consistency*100), c.Score)
		if len(c.SharedClasses) > 0 {
			fmt.Fprintf(&b, "  shared classes: %s\n", strings.Join(c.SharedClasses, " "))
		}
		for _, s := range c.Samples {
			fmt.Fprintf(&b, "  - %s\n", describe(s))
		}
	}
	if _, ok := r.Best(); !ok {
		b.WriteString("(no candidate selector matched)\n")
	}

	section(&b, "elements with role attribute", len(r.RoleElements), func() {
		for _, s := range r.RoleElements {
			fmt.Fprintf(&b, "  - %s\n", describe(s))
		}
	})
	section(&b, "data-* attributes", len(r.DataAttributes), func() {
		for _, c := range r.DataAttributes {
			fmt.Fprintf(&b, "  %-40s\t%d\n", c.Name, c.Count)
		}
	})
	section(&b, "common classes", len(r.CommonClasses), func() {
		for _, c := range r.CommonClasses {
			fmt.Fprintf(&b, "  %-40s\t%d\n", c.Name, c.Count)
		}
	})
	section(&b, "chat-like elements", len(r.KeywordElements), func() {
		for _, s := range r.KeywordElements {
			fmt.Fprintf(&b, "  - %s\n", describe(s))
		}
	})

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title string, n int, body func()) {
	if n == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d):\n", title, n)
	body()
}

func describe(s Sample) string {
	var b strings.Builder
	b.WriteString("<" + s.Tag)
	if len(s.Classes) > 0 {
		fmt.Fprintf(&b, " class=%q", strings.Join(s.Classes, " "))
	}
	for _, a := range s.Attrs {
		fmt.Fprintf(&b, " %s=%q", a.Name, a.Value)
	}
	b.WriteString(">")
	if s.Preview != "" {
		fmt.Fprintf(&b, " %q", s.Preview)
	}
	return b.String()
}

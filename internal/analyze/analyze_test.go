package analyze

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chatextract/internal/dom"
	"chatextract/internal/templates"
)

const chatPage = `<html><head><title>Shared chat</title></head><body>
<nav role="navigation"><a class="nav-link">Home</a><a class="nav-link">New chat</a></nav>
<main>
  <div class="conversation-turn turn-user" data-turn="1"><p>How do I reverse a slice in Go?</p></div>
  <div class="conversation-turn turn-bot" data-turn="2"><p>Use slices.Reverse from the standard library.</p></div>
  <div class="conversation-turn turn-user" data-turn="3"><p>And for strings?</p></div>
  <div class="conversation-turn turn-bot" data-turn="4"><p>Convert to runes first, then reverse.</p></div>
  <button class="icon" role="button">Copy</button>
</main>
</body></html>`

func mustDoc(t *testing.T, html string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(html)
	require.NoError(t, err)
	return doc
}

func TestAnalyze_RanksConsistentCandidates(t *testing.T) {
	t.Parallel()

	rep := Analyze(mustDoc(t, chatPage), Options{
		Candidates: []string{".turn-user", "[class*='turn']", "a", "nav", "div["},
		SampleSize: 2,
	})

	require.Equal(t, "Shared chat", rep.Title)
	require.Len(t, rep.Candidates, 5)

	best, ok := rep.Best()
	require.True(t, ok)
	require.Equal(t, "[class*='turn']", best.Selector)
	require.Equal(t, 4, best.Matches)
	require.InDelta(t, 0.5, best.Consistency, 1e-9)
	require.InDelta(t, 2.0, best.Score, 1e-9)
	require.Equal(t, []string{"conversation-turn"}, best.SharedClasses)
	require.Len(t, best.Samples, 2)
	require.Equal(t, "div", best.Samples[0].Tag)
	require.Equal(t, "How do I reverse a slice in Go?", best.Samples[0].Preview)
	require.Equal(t, []dom.Attribute{{Name: "data-turn", Value: "1"}}, best.Samples[0].Attrs)

	var nav, invalid Candidate
	for _, c := range rep.Candidates {
		switch c.Selector {
		case "nav":
			nav = c
		case "div[":
			invalid = c
		}
	}
	require.Equal(t, 1, nav.Matches)
	require.InDelta(t, 0.5, nav.Score, 1e-9, "a lone match is scored at half")
	require.NotEmpty(t, invalid.Error)
	require.Equal(t, "div[", rep.Candidates[len(rep.Candidates)-1].Selector)
}

func TestAnalyze_Survey(t *testing.T) {
	t.Parallel()

	rep := Analyze(mustDoc(t, chatPage), Options{})

	require.NotZero(t, rep.Elements)
	require.Len(t, rep.RoleElements, 2)
	require.Equal(t, "nav", rep.RoleElements[0].Tag)
	require.Equal(t, []Count{{Name: "data-turn", Count: 4}}, rep.DataAttributes)
	require.Contains(t, rep.CommonClasses, Count{Name: "conversation-turn", Count: 4})
	require.Contains(t, rep.CommonClasses, Count{Name: "nav-link", Count: 2})
	for _, c := range rep.CommonClasses {
		require.NotEqual(t, "icon", c.Name, "single-use classes are not common")
	}

	// "And for strings?" is 16 chars; every turn qualifies.
	require.Len(t, rep.KeywordElements, 4)

	best, ok := rep.Best()
	require.True(t, ok)
	require.Equal(t, "[class*='turn']", best.Selector)
}

// TestAnalyze_CountsOutermostMatches scores the same container set the
// locator would use, not every nested hit.
func TestAnalyze_CountsOutermostMatches(t *testing.T) {
	t.Parallel()

	html := `<div class="message"><div class="message-content">Hi</div></div>` +
		`<div class="message"><div class="message-content">Hello</div></div>`
	rep := Analyze(mustDoc(t, html), Options{Candidates: []string{"[class*='message']"}})
	require.Len(t, rep.Candidates, 1)
	require.Equal(t, 2, rep.Candidates[0].Matches)
	require.InDelta(t, 1.0, rep.Candidates[0].Consistency, 1e-9)
}

// TestAnalyze_RegistryCandidates scores containers of templates loaded at
// runtime alongside the built-ins.
func TestAnalyze_RegistryCandidates(t *testing.T) {
	t.Parallel()

	reg, err := templates.Builtin().With(templates.Template{
		ID:            "forum",
		Style:         templates.StyleClass,
		Container:     ".post",
		UserSelector:  ".post.me",
		ModelSelector: ".post.bot",
	})
	require.NoError(t, err)

	require.NotContains(t, DefaultCandidates(nil), ".post")
	require.Contains(t, DefaultCandidates(reg), ".post")

	rep := Analyze(mustDoc(t, `<div class="post me">a</div><div class="post bot">b</div>`), Options{Registry: reg})
	best, ok := rep.Best()
	require.True(t, ok)
	require.Equal(t, ".post", best.Selector)
	require.Equal(t, 2, best.Matches)
}

func TestAnalyze_NoCandidatesMatch(t *testing.T) {
	t.Parallel()

	rep := Analyze(mustDoc(t, `<p>plain</p>`), Options{})
	_, ok := rep.Best()
	require.False(t, ok)

	var buf bytes.Buffer
	require.NoError(t, Format(&buf, rep))
	require.Contains(t, buf.String(), "no candidate selector matched")
}

func TestFormat(t *testing.T) {
	t.Parallel()

	rep := Analyze(mustDoc(t, chatPage), Options{Candidates: []string{"[class*='turn']", "div["}})
	var buf bytes.Buffer
	require.NoError(t, Format(&buf, rep))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "structure report:"))
	require.Contains(t, out, `title="Shared chat"`)
	require.Contains(t, out, "[class*='turn']")
	require.Contains(t, out, "shared classes: conversation-turn")
	require.Contains(t, out, "error:")
	require.Contains(t, out, "data-* attributes (1):")
	require.Contains(t, out, `<div class="conversation-turn turn-user" data-turn="1">`)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b", preview("  a \n b ", 10))
	require.Equal(t, "héll…", preview("héllo world", 4))
}

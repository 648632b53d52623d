package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const chatHTML = `<html><body>
<div data-message-author-role="user">What is Go?</div>
<div data-message-author-role="assistant"><p>A language.</p><button>Copy</button></div>
</body></html>`

func runCmd(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr, http.DefaultClient)
	return code, stdout.String(), stderr.String()
}

// TestRun_StdinText verifies the default path: stdin in, text transcript out,
// diagnostics on stderr only.
func TestRun_StdinText(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t, chatHTML, "-log-level", "warn")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if want := "User: What is Go?\n\nModel: A language.\n"; out != want {
		t.Fatalf("stdout=%q, want %q", out, want)
	}
	if errOut != "" {
		t.Fatalf("unexpected stderr: %s", errOut)
	}
}

func TestRun_FileJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chat.html")
	if err := os.WriteFile(path, []byte(chatHTML), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCmd(t, "", "-file", path, "-json")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var got []map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, out)
	}
	if len(got) != 2 || got[0]["role"] != "User" || got[1]["text"] != "A language." {
		t.Fatalf("unexpected turns: %#v", got)
	}
}

// TestRun_URLWithOutputFile fetches from a test server and writes to -o;
// stdout stays empty.
func TestRun_URLWithOutputFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(chatHTML))
	}))
	defer srv.Close()

	outPath := filepath.Join(t.TempDir(), "chat.txt")
	code, out, errOut := runCmd(t, "", "-url", srv.URL, "-o", outPath)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if out != "" {
		t.Fatalf("stdout should be empty with -o, got %q", out)
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "User: What is Go?") {
		t.Fatalf("output file: %q", b)
	}
}

func TestRun_SelectorOverrides(t *testing.T) {
	t.Parallel()

	html := `<div class="q">hi</div><div class="a">hello</div>`
	code, out, errOut := runCmd(t, html, "-container", ".q, .a", "-user-selector", ".q", "-model-selector", ".a")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if out != "User: hi\n\nModel: hello\n" {
		t.Fatalf("stdout=%q", out)
	}
}

func TestRun_NoContainersExit1(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t, `<p>plain page</p>`)
	if code != 1 {
		t.Fatalf("want exit 1, got %d", code)
	}
	if out != "" {
		t.Fatalf("stdout should be empty, got %q", out)
	}
	if !strings.Contains(errOut, "no message containers found") || !strings.Contains(errOut, "-analyze") {
		t.Fatalf("stderr=%s", errOut)
	}
}

func TestRun_ConfigErrorsExit2(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"unknown template", []string{"-template", "nope"}},
		{"bad selector", []string{"-container", "div["}},
		{"same user and model selector", []string{"-user-selector", ".x", "-model-selector", ".x"}},
		{"bad log level", []string{"-log-level", "loud"}},
		{"url and file", []string{"-url", "http://x.example", "-file", "x.html"}},
		{"missing templates file", []string{"-templates", "/does/not/exist.yaml"}},
		{"stray argument", []string{"chat.html"}},
		{"unknown format", []string{"-format", "docx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if code, _, errOut := runCmd(t, chatHTML, tt.args...); code != 2 {
				t.Fatalf("want exit 2, got %d; stderr=%s", code, errOut)
			}
		})
	}
}

func TestRun_ListTemplates(t *testing.T) {
	t.Parallel()

	code, out, _ := runCmd(t, "", "-list-templates")
	if code != 0 {
		t.Fatalf("run returned %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], "alternating\t") || !strings.HasPrefix(lines[4], "generic\t") {
		t.Fatalf("templates list:\n%s", out)
	}
}

// TestRun_TemplatesFile registers a template from disk and selects it.
func TestRun_TemplatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	err := os.WriteFile(path, []byte(`templates:
  - id: forum
    name: Forum export
    style: class-based
    container: ".post"
    user_selector: ".post.me"
    model_selector: ".post.bot"
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	html := `<div class="post me">ping</div><div class="post bot">pong</div>`
	code, out, errOut := runCmd(t, html, "-templates", path, "-template", "forum")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if out != "User: ping\n\nModel: pong\n" {
		t.Fatalf("stdout=%q", out)
	}
}

// TestRun_AnalyzeScoresFileTemplates checks -analyze considers containers
// of templates loaded with -templates.
func TestRun_AnalyzeScoresFileTemplates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	err := os.WriteFile(path, []byte(`templates:
  - id: forum
    style: alternating
    container: ".forum-post"
`), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	html := `<div class="forum-post">a</div><div class="forum-post">b</div>`
	code, out, errOut := runCmd(t, html, "-analyze", "-templates", path)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if !strings.Contains(out, ".forum-post") {
		t.Fatalf("report lacks file template container:\n%s", out)
	}
}

func TestRun_DebugSelectorText(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t, `<div class="m"> A </div><div class="m">B</div>`, "-selector", "div.m", "-text")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if out != "A\n\nB\n\n" {
		t.Fatalf("stdout=%q", out)
	}
}

func TestRun_Analyze(t *testing.T) {
	t.Parallel()

	html := `<main><div class="chat-turn">a</div><div class="chat-turn">b</div><div class="chat-turn">c</div></main>`
	code, out, errOut := runCmd(t, html, "-analyze")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	if !strings.HasPrefix(out, "structure report:") || !strings.Contains(out, "[class*='turn']") {
		t.Fatalf("report:\n%s", out)
	}
}

func TestRun_Dir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.html"), []byte(chatHTML), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.html"), []byte(`<p>nothing</p>`), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCmd(t, "", "-dir", dir)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var got []map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, out)
	}
	if len(got) != 1 || got[0]["source_file"] != "a.html" {
		t.Fatalf("records: %#v", got)
	}
}

// TestRun_EnvConfig checks CHATEXTRACT_* variables apply when no flag is set.
// Not parallel: it sets process environment.
func TestRun_EnvConfig(t *testing.T) {
	t.Setenv("CHATEXTRACT_TEMPLATE", "nope")

	code, _, errOut := runCmd(t, chatHTML)
	if code != 2 || !strings.Contains(errOut, "unknown template") {
		t.Fatalf("code=%d stderr=%s", code, errOut)
	}

	code, _, errOut = runCmd(t, chatHTML, "-template", "generic")
	if code != 0 {
		t.Fatalf("flag should beat env; code=%d stderr=%s", code, errOut)
	}
}

// TestRun_DirGlob recurses into subdirectories with a doublestar pattern and
// reports paths relative to -dir.
func TestRun_DirGlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "2024", "may")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "chat.html"), []byte(chatHTML), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "top.html"), []byte(chatHTML), 0o600); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runCmd(t, "", "-dir", dir, "-glob", "2024/**/*.html")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var got []map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, out)
	}
	if len(got) != 1 || got[0]["source_file"] != "2024/may/chat.html" {
		t.Fatalf("records: %#v", got)
	}

	if code, _, _ := runCmd(t, "", "-glob", "*.html"); code != 2 {
		t.Fatalf("-glob without -dir: want exit 2, got %d", code)
	}
	if code, _, _ := runCmd(t, "", "-dir", dir, "-glob", "[unclosed"); code != 2 {
		t.Fatalf("bad glob: want exit 2, got %d", code)
	}
}

func TestRun_TemplatesSchema(t *testing.T) {
	t.Parallel()

	code, out, errOut := runCmd(t, "", "-templates-schema")
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("schema is not json: %v", err)
	}
	if _, ok := schema["properties"]; !ok {
		t.Fatalf("schema: %s", out)
	}
}

func TestRun_PDFOutput(t *testing.T) {
	t.Parallel()

	outPath := filepath.Join(t.TempDir(), "chat.pdf")
	code, _, errOut := runCmd(t, chatHTML, "-format", "pdf", "-o", outPath)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, errOut)
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "%PDF-") {
		t.Fatalf("not a pdf: %q", b[:8])
	}
}

// TestRun_BinaryInputExit1 rejects input that is not text before parsing.
func TestRun_BinaryInputExit1(t *testing.T) {
	t.Parallel()

	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01"
	code, _, errOut := runCmd(t, png)
	if code != 1 || !strings.Contains(errOut, "not an HTML document") {
		t.Fatalf("code=%d stderr=%s", code, errOut)
	}
}

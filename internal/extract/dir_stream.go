package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"chatextract/internal/dom"
	"chatextract/internal/transcript"
)

// DirRecord is one element of the array written by StreamFromDir.
type DirRecord struct {
	SourceFile string            `json:"source_file"`
	Template   string            `json:"template"`
	Turns      []transcript.Turn `json:"turns"`
}

var htmlExts = map[string]bool{".html": true, ".htm": true, ".xhtml": true}

// StreamFromDir extracts HTML files under dir and streams a single JSON array
// to w, one DirRecord per file.
//
// With an empty pattern every .html/.htm/.xhtml file directly inside dir is
// used. Otherwise pattern is a doublestar glob relative to dir (for example
// "**/*.html" to recurse) and every regular file it matches is used.
//
// Behavior:
//   - stable ordering by relative path
//   - unreadable files, non-text files, challenge pages and files with no
//     turns are skipped and logged at warn level; they never abort the stream
//
// It returns how many records were written.
func StreamFromDir(w io.Writer, dir, pattern string, cfg Config, log zerolog.Logger) (int, error) {
	names, err := listHTML(dir, pattern)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if _, err := io.WriteString(w, "["); err != nil {
		return 0, fmt.Errorf("write [: %w", err)
	}

	written := 0
	for _, name := range names {
		rec, err := extractFile(filepath.Join(dir, filepath.FromSlash(name)), cfg)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("skipping file")
			continue
		}
		rec.SourceFile = name

		if written > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return written, fmt.Errorf("write comma: %w", err)
			}
		}
		if err := enc.Encode(rec); err != nil {
			return written, fmt.Errorf("encode record: %w", err)
		}
		written++
	}

	if _, err := io.WriteString(w, "]\n"); err != nil {
		return written, fmt.Errorf("write ]: %w", err)
	}
	return written, nil
}

func listHTML(dir, pattern string) ([]string, error) {
	if pattern == "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read dir: %w", err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && htmlExts[strings.ToLower(filepath.Ext(e.Name()))] {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		return names, nil
	}

	if !doublestar.ValidatePattern(pattern) {
		return nil, &ConfigError{Field: "glob", Reason: fmt.Sprintf("invalid pattern %q", pattern)}
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	names := matches[:0]
	for _, m := range matches {
		if fi, err := fs.Stat(fsys, m); err == nil && fi.Mode().IsRegular() {
			names = append(names, m)
		}
	}
	sort.Strings(names)
	return names, nil
}

func extractFile(path string, cfg Config) (DirRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DirRecord{}, fmt.Errorf("read file: %w", err)
	}
	if err := checkText(b); err != nil {
		return DirRecord{}, err
	}
	doc, err := dom.ParseString(decodeHTML(b, ""))
	if err != nil {
		return DirRecord{}, err
	}
	if reason, found := DetectChallenge(doc); found {
		return DirRecord{}, fmt.Errorf("%w: %s", ErrChallengeDetected, reason)
	}
	res, err := Extract(doc.Root(), cfg)
	if err != nil {
		return DirRecord{}, err
	}
	return DirRecord{Template: cfg.TemplateID, Turns: res.Transcript.Turns}, nil
}

package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"chatextract/internal/fileutil"
)

// Status is the last known outcome for one URL.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Entry is the progress record for one URL.
type Entry struct {
	Status   Status    `json:"status"`
	Turns    int       `json:"turns,omitempty"`
	Output   string    `json:"output,omitempty"`
	Error    string    `json:"error,omitempty"`
	Attempts int       `json:"attempts"`
	RunID    string    `json:"run_id"`
	Updated  time.Time `json:"updated"`
}

// Progress maps each URL to its latest Entry. It is rewritten after every URL
// so an interrupted batch can resume where it stopped.
type Progress struct {
	URLs map[string]Entry `json:"urls"`
}

// LoadProgress reads path. A missing file or empty path yields empty progress.
func LoadProgress(path string) (*Progress, error) {
	p := &Progress{URLs: map[string]Entry{}}
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("parse progress %s: %w", path, err)
	}
	if p.URLs == nil {
		p.URLs = map[string]Entry{}
	}
	return p, nil
}

// Save writes p to path atomically. An empty path is a no-op.
func (p *Progress) Save(path string) error {
	if path == "" {
		return nil
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Done reports whether url already completed in an earlier run.
func (p *Progress) Done(url string) bool {
	return p.URLs[url].Status == StatusDone
}

// ReadURLs reads one URL per line. Blank lines and lines starting with '#'
// are ignored, and repeated URLs are kept once in first-seen order.
func ReadURLs(r io.Reader) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return out, nil
}

package batch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatextract/internal/extract"
	"chatextract/internal/storage"
	"chatextract/internal/transcript"
)

const chatPage = `<html><body>
<div data-message-author-role="user">How do I list files?</div>
<div data-message-author-role="assistant">Use ls.</div>
</body></html>`

func newServer(t *testing.T, hits *int, mu *sync.Mutex) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*hits++
		mu.Unlock()
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(chatPage))
		case "/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte("<html><body><p>nothing here</p></body></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	cfg, err := extract.Resolve(extract.Overrides{}, "", nil)
	require.NoError(t, err)
	return NewRunner(extract.NewLoader(nil, 5*time.Second, ""), cfg, opts, zerolog.Nop())
}

type memRepo struct {
	mu   sync.Mutex
	seen map[string]storage.Record
}

func (m *memRepo) EnsureSchema(context.Context) error { return nil }

func (m *memRepo) SaveTranscript(_ context.Context, rec storage.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[rec.Fingerprint]; ok {
		return false, nil
	}
	m.seen[rec.Fingerprint] = rec
	return true, nil
}

func (m *memRepo) Close() {}

// TestRun_RecordsFailuresAndResumes runs the same batch twice: the first run
// records one success and two failures, the second skips the success and
// retries only the failures.
func TestRun_RecordsFailuresAndResumes(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits int
	)
	srv := newServer(t, &hits, &mu)
	dir := t.TempDir()
	progress := filepath.Join(dir, "progress.json")
	out := filepath.Join(dir, "out")

	urls := []string{srv.URL + "/ok", srv.URL + "/broken", srv.URL + "/empty"}
	repo := &memRepo{seen: map[string]storage.Record{}}

	r := newTestRunner(t, Options{OutDir: out, ProgressPath: progress, RunID: "run-1"})
	r.Repo = repo
	sum, err := r.Run(context.Background(), urls)
	require.NoError(t, err)
	require.Equal(t, Summary{RunID: "run-1", Done: 1, Failed: 2, Stored: 1}, sum)

	b, err := os.ReadFile(filepath.Join(out, OutputName(urls[0], "")))
	require.NoError(t, err)
	require.Equal(t, "User: How do I list files?\n\nModel: Use ls.\n", string(b))

	prog, err := LoadProgress(progress)
	require.NoError(t, err)
	require.Equal(t, StatusDone, prog.URLs[urls[0]].Status)
	require.Equal(t, 2, prog.URLs[urls[0]].Turns)
	require.Equal(t, StatusFailed, prog.URLs[urls[1]].Status)
	require.Contains(t, prog.URLs[urls[1]].Error, "http status 500")
	require.Contains(t, prog.URLs[urls[2]].Error, extract.ErrNoContainersFound.Error())

	r2 := newTestRunner(t, Options{OutDir: out, ProgressPath: progress, RunID: "run-2"})
	r2.Repo = repo
	sum, err = r2.Run(context.Background(), urls)
	require.NoError(t, err)
	require.Equal(t, Summary{RunID: "run-2", Skipped: 1, Failed: 2}, sum)

	mu.Lock()
	require.Equal(t, 5, hits)
	mu.Unlock()

	prog, err = LoadProgress(progress)
	require.NoError(t, err)
	require.Equal(t, 1, prog.URLs[urls[0]].Attempts)
	require.Equal(t, "run-1", prog.URLs[urls[0]].RunID)
	require.Equal(t, 2, prog.URLs[urls[1]].Attempts)
	require.Equal(t, "run-2", prog.URLs[urls[1]].RunID)
	require.Len(t, repo.seen, 1)
}

func TestRun_GeneratesRunID(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, Options{})
	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, sum.RunID, 36)
}

// TestRun_StopsOnCancel cancels during the pause before the second fetch:
// the first page is recorded and nothing after it is attempted.
func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		hits int
	)
	srv := newServer(t, &hits, &mu)

	progress := filepath.Join(t.TempDir(), "progress.json")
	r := newTestRunner(t, Options{ProgressPath: progress, MaxDelay: time.Millisecond})
	r.jitter = func(time.Duration) time.Duration {
		cancel()
		return time.Hour
	}
	sum, err := r.Run(ctx, []string{srv.URL + "/ok", srv.URL + "/ok?b", srv.URL + "/ok?c"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, sum.Done)

	mu.Lock()
	require.Equal(t, 1, hits)
	mu.Unlock()

	prog, err := LoadProgress(progress)
	require.NoError(t, err)
	require.Len(t, prog.URLs, 1)
}

func TestRun_MinDelaySpacesFetches(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits int
	)
	srv := newServer(t, &hits, &mu)

	r := newTestRunner(t, Options{MinDelay: 30 * time.Millisecond, MaxDelay: 30 * time.Millisecond})
	start := time.Now()
	sum, err := r.Run(context.Background(), []string{srv.URL + "/ok", srv.URL + "/ok?2", srv.URL + "/ok?3"})
	require.NoError(t, err)
	require.Equal(t, 3, sum.Done)
	require.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestRun_JitterBounded(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits int
	)
	srv := newServer(t, &hits, &mu)

	r := newTestRunner(t, Options{MinDelay: time.Millisecond, MaxDelay: 11 * time.Millisecond})
	var spans []time.Duration
	r.jitter = func(n time.Duration) time.Duration {
		spans = append(spans, n)
		return 0
	}
	_, err := r.Run(context.Background(), []string{srv.URL + "/ok", srv.URL + "/ok?2", srv.URL + "/ok?3"})
	require.NoError(t, err)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, spans)
}

func TestRun_NegativeDelay(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, Options{MinDelay: -time.Second})
	_, err := r.Run(context.Background(), []string{"http://example.invalid/"})
	require.Error(t, err)
}

func TestReadURLs(t *testing.T) {
	t.Parallel()

	in := "# saved chats\nhttps://a.example/1\n\n  https://a.example/2  \nhttps://a.example/1\n#https://skip.example\n"
	got, err := ReadURLs(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example/1", "https://a.example/2"}, got)
}

func TestLoadProgress_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("["), 0o644))
	_, err := LoadProgress(path)
	require.Error(t, err)
}

func TestOutputName(t *testing.T) {
	t.Parallel()

	a := OutputName("https://gemini.google.com/share/abc123", transcript.FormatText)
	require.True(t, strings.HasPrefix(a, "gemini.google.com_share_abc123-"), a)
	require.True(t, strings.HasSuffix(a, ".txt"), a)

	b := OutputName("https://gemini.google.com/share/abc123?x=1", transcript.FormatJSON)
	require.True(t, strings.HasSuffix(b, ".json"), b)
	require.NotEqual(t, strings.TrimSuffix(a, ".txt"), strings.TrimSuffix(b, ".json"))

	long := OutputName("https://example.com/"+strings.Repeat("x", 200), "")
	require.LessOrEqual(t, len(long), maxNameLen+len("-00000000.txt"))

	c := OutputName("::::", transcript.FormatPDF)
	require.True(t, strings.HasPrefix(c, "page-"), c)
	require.True(t, strings.HasSuffix(c, ".pdf"), c)
}

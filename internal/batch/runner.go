// Package batch drives extraction over a list of URLs, one at a time, with a
// randomized delay between fetches and a progress file that lets an
// interrupted run resume.
package batch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatextract/internal/extract"
	"chatextract/internal/fileutil"
	"chatextract/internal/metrics"
	"chatextract/internal/storage"
	"chatextract/internal/transcript"
)

// Options control a batch run.
type Options struct {
	// OutDir receives one transcript file per URL. Empty disables file output.
	OutDir string

	// ProgressPath is the JSON progress file. Empty disables resume.
	ProgressPath string

	// Format picks the transcript rendering and file extension. Empty
	// means text.
	Format transcript.Format

	// MinDelay is the minimum spacing between fetches; up to
	// MaxDelay-MinDelay of uniform jitter is added on top.
	MinDelay time.Duration
	MaxDelay time.Duration

	// RunID tags progress entries and stored records. Empty generates one.
	RunID string
}

// Summary counts what a run did.
type Summary struct {
	RunID   string
	Done    int
	Skipped int
	Failed  int
	Stored  int
}

// Runner extracts each URL with a shared Loader and Config.
type Runner struct {
	Loader *extract.Loader
	Config extract.Config

	// Repo, when set, also stores each transcript. Already-stored
	// transcripts are not duplicated.
	Repo storage.Repository

	Log zerolog.Logger
	Options

	now    func() time.Time
	jitter func(n time.Duration) time.Duration
}

// NewRunner returns a Runner with the default clock and jitter source.
func NewRunner(loader *extract.Loader, cfg extract.Config, opts Options, log zerolog.Logger) *Runner {
	return &Runner{
		Loader:  loader,
		Config:  cfg,
		Log:     log,
		Options: opts,
		now:     time.Now,
		jitter:  rand.N[time.Duration],
	}
}

// Run processes urls in order. URLs recorded as done in the progress file are
// skipped. A failing URL is recorded and counted but never stops the batch;
// Run only returns early when ctx is cancelled or the progress file cannot be
// written.
func (r *Runner) Run(ctx context.Context, urls []string) (Summary, error) {
	if r.MinDelay < 0 || r.MaxDelay < 0 {
		return Summary{}, fmt.Errorf("delays must not be negative")
	}
	runID := r.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	sum := Summary{RunID: runID}
	log := r.Log.With().Str("run_id", runID).Logger()

	prog, err := LoadProgress(r.ProgressPath)
	if err != nil {
		return sum, err
	}
	if r.OutDir != "" {
		if err := os.MkdirAll(r.OutDir, 0o755); err != nil {
			return sum, fmt.Errorf("create out dir: %w", err)
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.MinDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.MinDelay), 1)
	}

	fetched := 0
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if prog.Done(u) {
			sum.Skipped++
			metrics.RecordPage("skipped", 0)
			log.Debug().Str("url", u).Msg("already done, skipping")
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}
		if fetched > 0 {
			if err := r.pause(ctx); err != nil {
				return sum, err
			}
		}
		fetched++

		entry, stored, err := r.process(ctx, runID, u)
		if err != nil && ctx.Err() != nil {
			return sum, ctx.Err()
		}
		entry.Attempts = prog.URLs[u].Attempts + 1
		entry.RunID = runID
		entry.Updated = r.now().UTC()
		prog.URLs[u] = entry

		if err != nil {
			sum.Failed++
			log.Warn().Err(err).Str("url", u).Int("n", i+1).Int("of", len(urls)).Msg("url failed")
		} else {
			sum.Done++
			if stored {
				sum.Stored++
			}
			log.Info().Str("url", u).Int("turns", entry.Turns).Int("n", i+1).Int("of", len(urls)).Msg("url done")
		}

		if err := prog.Save(r.ProgressPath); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// pause sleeps for a uniform jitter in [0, MaxDelay-MinDelay).
func (r *Runner) pause(ctx context.Context) error {
	span := r.MaxDelay - r.MinDelay
	if span <= 0 {
		return nil
	}
	t := time.NewTimer(r.jitter(span))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Runner) process(ctx context.Context, runID, u string) (Entry, bool, error) {
	fail := func(err error) (Entry, bool, error) {
		return Entry{Status: StatusFailed, Error: err.Error()}, false, err
	}

	start := r.now()
	doc, err := r.Loader.LoadDocument(ctx, extract.Input{URL: u})
	if err != nil {
		status := "load_error"
		if errors.Is(err, extract.ErrChallengeDetected) {
			status = "challenge"
		}
		metrics.RecordPage(status, r.now().Sub(start))
		return fail(err)
	}

	res, err := extract.Extract(doc.Root(), r.Config)
	took := r.now().Sub(start)
	if err != nil {
		status := "error"
		switch {
		case errors.Is(err, extract.ErrNoContainersFound):
			status = "no_containers"
		case errors.Is(err, extract.ErrEmptyTranscript):
			status = "empty"
		}
		metrics.RecordPage(status, took)
		if res != nil {
			metrics.RecordTurns(nil, res.Dropped)
		}
		return fail(err)
	}
	metrics.RecordPage("ok", took)
	metrics.RecordTurns(roleCounts(res.Transcript), res.Dropped)

	entry := Entry{Status: StatusDone, Turns: res.Transcript.Len()}
	if r.OutDir != "" {
		path := filepath.Join(r.OutDir, OutputName(u, r.Format))
		if err := writeTranscript(path, res.Transcript, r.Format); err != nil {
			return fail(err)
		}
		entry.Output = path
	}

	stored := false
	if r.Repo != nil {
		rec := storage.NewRecord(runID, u, r.Config.TemplateID, res.Transcript, r.now())
		stored, err = r.Repo.SaveTranscript(ctx, rec)
		if err != nil {
			return fail(fmt.Errorf("store transcript: %w", err))
		}
	}
	return entry, stored, nil
}

func writeTranscript(path string, t *transcript.Transcript, f transcript.Format) error {
	var buf bytes.Buffer
	if err := transcript.Write(&buf, f, t); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func roleCounts(t *transcript.Transcript) map[string]int {
	out := map[string]int{}
	for role, n := range t.RoleCounts() {
		out[strings.ToLower(string(role))] = n
	}
	return out
}

const maxNameLen = 80

// OutputName derives a filesystem-safe file name from u: host and path with
// unsafe runes replaced by '_', plus a short hash of the full URL so distinct
// URLs never collide.
func OutputName(u string, f transcript.Format) string {
	base := u
	if p, err := url.Parse(u); err == nil && p.Host != "" {
		base = p.Host + p.Path
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_.")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if name == "" {
		name = "page"
	}
	sum := sha256.Sum256([]byte(u))
	return name + "-" + hex.EncodeToString(sum[:4]) + f.Ext()
}

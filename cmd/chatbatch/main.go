// Command chatbatch extracts many chat pages in one resumable run.
//
// URLs are fetched one at a time with a randomized pause between them. Each
// transcript is written to -out, progress is saved after every URL, and a
// rerun skips URLs that already succeeded.
//
// Usage:
//
//	chatbatch -urls urls.txt -template gemini -out ./transcripts
//
// Settings can also come from a YAML file (-config) or CHATEXTRACT_*
// variables such as CHATEXTRACT_BATCH_MIN_DELAY=10s.
//
// With a saved login session, storage and metrics:
//
//	chatbatch -urls urls.txt -cookies cookies.json \
//	  -storage sqlite -dsn chats.db \
//	  -metrics-backend prompush -pushgateway-url http://localhost:9091
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"chatextract/internal/batch"
	"chatextract/internal/config"
	"chatextract/internal/extract"
	"chatextract/internal/httpclient"
	"chatextract/internal/logging"
	"chatextract/internal/metrics"
	"chatextract/internal/metrics/datadog"
	"chatextract/internal/metrics/prompush"
	"chatextract/internal/session"
	"chatextract/internal/storage"
	_ "chatextract/internal/storage/all"
	"chatextract/internal/templates"
	"chatextract/internal/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, http.DefaultClient)
	stop()
	os.Exit(code)
}

// run returns 0 when every URL succeeded or was skipped, 1 when any URL
// failed or the run was interrupted, and 2 for usage/configuration errors.
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("chatbatch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	flags := config.Bind(fs)
	flags.BindBatch()
	urlsPath := fs.String("urls", "", "file with one URL per line, '#' comments allowed ('-' reads stdin)")
	jsonOut := fs.Bool("json", false, "shorthand for -format json")
	runIDFlag := fs.String("run-id", "", "run ID for progress, storage and metrics (default: random UUID)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *urlsPath == "" {
		fmt.Fprintln(stderr, "missing -urls")
		return 2
	}

	cfg, err := flags.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	if *jsonOut {
		cfg.Format = string(transcript.FormatJSON)
	}
	format, err := transcript.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	log, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 2
	}

	urls, err := readURLs(*urlsPath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	if len(urls) == 0 {
		fmt.Fprintln(stderr, "no URLs to process")
		return 2
	}

	ecfg, err := resolve(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	runID := *runIDFlag
	if runID == "" {
		runID = uuid.NewString()
	}
	log = log.With().Str("run_id", runID).Logger()

	if cfg.Batch.Cookies != "" {
		jar, err := session.Load(cfg.Batch.Cookies)
		if err != nil {
			fmt.Fprintf(stderr, "cookies: %v\n", err)
			return 2
		}
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		c := *httpClient
		c.Jar = jar
		httpClient = &c
		defer func() {
			if err := jar.Save(cfg.Batch.Cookies); err != nil {
				log.Warn().Err(err).Msg("save cookies")
			}
		}()
	}

	closeMetrics, err := setupMetrics(ctx, cfg.Metrics, runID, httpClient)
	if err != nil {
		fmt.Fprintf(stderr, "metrics: %v\n", err)
		return 2
	}
	defer func() {
		if err := closeMetrics(); err != nil {
			log.Warn().Err(err).Msg("flush metrics")
		}
	}()

	fetchClient := httpclient.New(httpclient.Options{
		Retries: cfg.HTTP.Retries,
		Base:    httpClient,
		Log:     log.With().Str("component", "http").Logger(),
	})
	runner := batch.NewRunner(
		extract.NewLoader(fetchClient, cfg.HTTP.Timeout, cfg.HTTP.UserAgent),
		ecfg,
		batch.Options{
			OutDir:       cfg.Batch.Out,
			ProgressPath: cfg.Batch.Progress,
			Format:       format,
			MinDelay:     cfg.Batch.MinDelay,
			MaxDelay:     cfg.Batch.MaxDelay,
			RunID:        runID,
		},
		log,
	)

	if cfg.Storage.Kind != "" {
		repo, err := openRepository(ctx, cfg.Storage)
		if err != nil {
			fmt.Fprintf(stderr, "storage: %v\n", err)
			return 1
		}
		defer repo.Close()
		runner.Repo = repo
	}

	log.Info().Int("urls", len(urls)).Str("template", ecfg.TemplateID).Msg("batch starting")
	sum, err := runner.Run(ctx, urls)
	fmt.Fprintf(stdout, "run_id=%s done=%d skipped=%d failed=%d stored=%d\n",
		sum.RunID, sum.Done, sum.Skipped, sum.Failed, sum.Stored)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("interrupted; rerun with the same -progress file to resume")
		} else {
			fmt.Fprintf(stderr, "batch: %v\n", err)
		}
		return 1
	}
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

func readURLs(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return batch.ReadURLs(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls: %w", err)
	}
	defer f.Close()
	return batch.ReadURLs(f)
}

func resolve(cfg config.Config) (extract.Config, error) {
	reg := templates.Builtin()
	if cfg.TemplatesFile != "" {
		extra, err := templates.LoadFile(cfg.TemplatesFile)
		if err != nil {
			return extract.Config{}, err
		}
		if reg, err = reg.With(extra...); err != nil {
			return extract.Config{}, err
		}
	}
	ov, err := cfg.Overrides()
	if err != nil {
		return extract.Config{}, err
	}
	return extract.Resolve(ov, cfg.Template, reg)
}

func openRepository(ctx context.Context, sc config.Storage) (storage.Repository, error) {
	repo, err := storage.New(ctx, storage.Config{Kind: sc.Kind, DSN: sc.DSN})
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// setupMetrics installs the configured backend process-wide and returns a
// func that flushes it and restores the no-op backend.
func setupMetrics(ctx context.Context, mc config.Metrics, runID string, client *http.Client) (func() error, error) {
	switch mc.Backend {
	case "":
		return func() error { return nil }, nil

	case "datadog":
		tags := append(datadog.ParseTagsCSV(os.Getenv("DD_TAGS")), mc.DatadogTags...)
		tags = append(tags, "run_id:"+runID)
		b, err := datadog.NewBackend(ctx, datadog.Options{Tags: tags})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		return func() error {
			defer metrics.SetBackend(nil)
			return b.Close()
		}, nil

	case "prompush":
		b, err := prompush.New(prompush.Options{
			URL:      mc.PushgatewayURL,
			Grouping: map[string]string{"run_id": runID},
			Client:   client,
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		return func() error {
			defer metrics.SetBackend(nil)
			return b.Flush()
		}, nil

	default:
		return nil, fmt.Errorf("unknown metrics backend %q", mc.Backend)
	}
}

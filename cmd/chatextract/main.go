// Command chatextract turns a saved or live chat page into a plain transcript
// of User/Model turns.
//
// Usage (stdin):
//
//	cat chat.html | chatextract
//
// Usage (file or URL, with a platform template):
//
//	chatextract -file chat.html -template gemini
//	chatextract -url "https://chatgpt.com/share/..." -template chatgpt -json
//
// Usage (directory mode, one JSON array of all files):
//
//	chatextract -dir ./saved -template claude
//	chatextract -dir ./export -glob "**/*.html"
//
// Usage (PDF rendering):
//
//	chatextract -file chat.html -format pdf -o chat.pdf
//
// When nothing matches, inspect the page structure:
//
//	chatextract -file chat.html -analyze
//
// Debug (print matches for a selector):
//
//	chatextract -file chat.html -selector "div.message" -text
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"chatextract/internal/analyze"
	"chatextract/internal/config"
	"chatextract/internal/dom"
	"chatextract/internal/extract"
	"chatextract/internal/fileutil"
	"chatextract/internal/httpclient"
	"chatextract/internal/logging"
	"chatextract/internal/session"
	"chatextract/internal/templates"
	"chatextract/internal/transcript"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so the command can be tested in-process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/configuration errors
//   - 1 for load and extraction failures
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("chatextract", flag.ContinueOnError)
	fs.SetOutput(stderr)

	flags := config.Bind(fs)
	fileFlag := fs.String("file", "", "read HTML from this file instead of stdin")
	urlFlag := fs.String("url", "", "fetch HTML from this URL instead of stdin")
	dirFlag := fs.String("dir", "", "extract every .html/.htm file in this directory to one JSON array")
	globFlag := fs.String("glob", "", `with -dir: doublestar pattern of files to extract, e.g. "**/*.html"`)
	jsonOut := fs.Bool("json", false, "shorthand for -format json")
	outPath := fs.String("o", "", "write output to this file instead of stdout")
	analyzeFlag := fs.Bool("analyze", false, "print a structure report instead of extracting")
	listTemplates := fs.Bool("list-templates", false, "list known templates and exit")
	schemaFlag := fs.Bool("templates-schema", false, "print the JSON Schema of a -templates file and exit")
	debugSelector := fs.String("selector", "", "debug: print matches for this CSS (or xpath:) selector")
	onlyText := fs.Bool("text", false, "debug: print text for -selector matches instead of HTML")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
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

	reg := templates.Builtin()
	if cfg.TemplatesFile != "" {
		extra, err := templates.LoadFile(cfg.TemplatesFile)
		if err == nil {
			reg, err = reg.With(extra...)
		}
		if err != nil {
			fmt.Fprintf(stderr, "templates: %v\n", err)
			return 2
		}
	}

	out := stdout
	var buf bytes.Buffer
	if *outPath != "" {
		out = &buf
	}
	code := dispatch(ctx, mode{
		file: *fileFlag, url: *urlFlag, dir: *dirFlag, glob: *globFlag,
		format: format, analyze: *analyzeFlag, list: *listTemplates, schema: *schemaFlag,
		selector: *debugSelector, text: *onlyText,
	}, cfg, reg, stdin, out, stderr, httpClient, log)
	if code == 0 && *outPath != "" {
		if err := fileutil.WriteFileAtomic(*outPath, buf.Bytes(), 0o644); err != nil {
			fmt.Fprintf(stderr, "write output: %v\n", err)
			return 1
		}
	}
	return code
}

type mode struct {
	file, url, dir string
	glob           string
	format         transcript.Format
	analyze        bool
	list           bool
	schema         bool
	selector       string
	text           bool
}

func dispatch(
	ctx context.Context,
	m mode,
	cfg config.Config,
	reg *templates.Registry,
	stdin io.Reader,
	out, stderr io.Writer,
	httpClient *http.Client,
	log zerolog.Logger,
) int {
	if m.list {
		for _, t := range reg.List() {
			fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.Name, t.Description)
		}
		return 0
	}
	if m.schema {
		if err := templates.WriteSchema(out); err != nil {
			fmt.Fprintf(stderr, "schema: %v\n", err)
			return 1
		}
		return 0
	}
	if m.url != "" && m.file != "" {
		fmt.Fprintln(stderr, "use only one of -url and -file")
		return 2
	}
	if m.glob != "" && m.dir == "" {
		fmt.Fprintln(stderr, "-glob needs -dir")
		return 2
	}

	var jar *session.Jar
	if cfg.Batch.Cookies != "" {
		var err error
		if jar, err = session.Load(cfg.Batch.Cookies); err != nil {
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
	fetchClient := httpclient.New(httpclient.Options{
		Retries: cfg.HTTP.Retries,
		Base:    httpClient,
		Log:     log.With().Str("component", "http").Logger(),
	})
	loader := extract.NewLoader(fetchClient, cfg.HTTP.Timeout, cfg.HTTP.UserAgent)
	input := extract.Input{URL: m.url, Path: m.file, Stdin: stdin}

	// Debug and analyze modes inspect the page as-is, challenge pages included.
	if m.selector != "" || m.analyze {
		src, err := loader.Load(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		doc, err := dom.ParseString(src)
		if err != nil {
			fmt.Fprintf(stderr, "parse html: %v\n", err)
			return 1
		}
		if reason, found := extract.DetectChallenge(doc); found {
			log.Warn().Str("reason", reason).Msg("page looks like an anti-bot challenge")
		}
		if m.analyze {
			if err := analyze.Format(out, analyze.Analyze(doc, analyze.Options{Registry: reg})); err != nil {
				fmt.Fprintf(stderr, "write report: %v\n", err)
				return 1
			}
			return 0
		}
		n, err := extract.DebugPrintSelector(out, doc, m.selector, m.text)
		if err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return exitCode(err)
		}
		log.Info().Int("matches", n).Str("selector", m.selector).Msg("debug selector")
		return 0
	}

	ov, err := cfg.Overrides()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	ecfg, err := extract.Resolve(ov, cfg.Template, reg)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	if m.dir != "" {
		n, err := extract.StreamFromDir(out, m.dir, m.glob, ecfg, log)
		if err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return exitCode(err)
		}
		log.Info().Int("files", n).Str("template", ecfg.TemplateID).Msg("directory extracted")
		return 0
	}

	doc, err := loader.LoadDocument(ctx, input)
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}
	res, err := extract.Extract(doc.Root(), ecfg)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		switch {
		case errors.Is(err, extract.ErrNoContainersFound):
			fmt.Fprintln(stderr, "hint: run with -analyze to find a container selector, then pass -container")
		case errors.Is(err, extract.ErrEmptyTranscript):
			fmt.Fprintln(stderr, "hint: the containers matched but had no text; check -content-selector")
		}
		return 1
	}
	log.Info().
		Str("template", ecfg.TemplateID).
		Str("strategy", res.Strategy).
		Bool("fallback", res.Fallback).
		Int("containers", res.Containers).
		Int("turns", res.Transcript.Len()).
		Int("dropped", res.Dropped).
		Msg("extracted")

	if err := transcript.Write(out, m.format, res.Transcript); err != nil {
		fmt.Fprintf(stderr, "write transcript: %v\n", err)
		return 1
	}
	return 0
}

func exitCode(err error) int {
	if errors.Is(err, extract.ErrConfiguration) {
		return 2
	}
	return 1
}

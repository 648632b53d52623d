package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"chatextract/internal/dom"
	"chatextract/internal/metrics"
)

// DefaultUserAgent is sent on URL fetches unless the Loader is given another.
const DefaultUserAgent = "chatextract/1.0"

// Input describes where HTML should come from. URL wins over Path, Path over Stdin.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Path is a local HTML file.
	Path string

	// Stdin is used when URL and Path are empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Loader fetches or reads HTML with a consistent timeout policy and decodes it
// to UTF-8.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
// Attach a cookie jar to client to reuse a logged-in session.
func NewLoader(client *http.Client, timeout time.Duration, userAgent string) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Loader{
		client:    client,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Load returns the UTF-8 HTML source for input.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body for debugging.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	switch {
	case strings.TrimSpace(input.URL) != "":
		return l.fetch(ctx, input.URL)

	case strings.TrimSpace(input.Path) != "":
		b, err := os.ReadFile(input.Path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		if err := checkText(b); err != nil {
			return "", err
		}
		return decodeHTML(b, ""), nil

	default:
		if input.Stdin == nil {
			return "", nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if err := checkText(b); err != nil {
			return "", err
		}
		return decodeHTML(b, ""), nil
	}
}

// LoadDocument loads and parses input, and fails with ErrChallengeDetected
// when the page is an anti-bot interstitial.
func (l *Loader) LoadDocument(ctx context.Context, input Input) (*dom.Document, error) {
	src, err := l.Load(ctx, input)
	if err != nil {
		return nil, err
	}
	doc, err := dom.ParseString(src)
	if err != nil {
		return nil, err
	}
	if reason, found := DetectChallenge(doc); found {
		return nil, fmt.Errorf("%w: %s", ErrChallengeDetected, reason)
	}
	return doc, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		metrics.RecordHTTP("error", time.Since(start), 0, true)
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.RecordHTTP(status, time.Since(start), len(body), true)
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordHTTP(status, time.Since(start), len(b), true)
		return "", fmt.Errorf("read body: %w", err)
	}
	metrics.RecordHTTP(status, time.Since(start), len(b), false)
	if err := checkText(b); err != nil {
		return "", err
	}
	return decodeHTML(b, resp.Header.Get("Content-Type")), nil
}

// checkText rejects bodies that are not text at all (images, PDFs, archives),
// judged by sniffing the content rather than trusting the declared type.
func checkText(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	mt := mimetype.Detect(b)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: content looks like %s", ErrNotHTML, mt.String())
}

// DetectCharset guesses the encoding of b. It returns "" when the guess is not
// confident enough to override the document's own declarations.
func DetectCharset(b []byte) string {
	res, err := chardet.NewHtmlDetector().DetectBest(b)
	if err != nil || res == nil || res.Confidence < 50 {
		return ""
	}
	return strings.ToLower(res.Charset)
}

var reMetaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset`)

// decodeHTML converts b to UTF-8. Precedence: a charset in contentType (or a
// BOM), valid UTF-8 as-is, a <meta> declaration, then a confident chardet
// guess. With none of those, x/net's windows-1252 default applies.
func decodeHTML(b []byte, contentType string) string {
	if !strings.Contains(strings.ToLower(contentType), "charset=") {
		if utf8.Valid(b) {
			return string(b)
		}
		head := b
		if len(head) > 1024 {
			head = head[:1024]
		}
		if !reMetaCharset.Match(head) {
			if cs := DetectCharset(b); cs != "" {
				contentType = "text/html; charset=" + cs
			}
		}
	}
	r, err := charset.NewReader(bytes.NewReader(b), contentType)
	if err != nil {
		return string(b)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(b)
	}
	return string(out)
}

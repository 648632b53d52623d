// Package httpclient builds the *http.Client used for page fetches: transient
// failures (connection errors, 429, 5xx) are retried with backoff, honoring
// Retry-After.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Options configure New. Zero values keep the retryablehttp defaults.
type Options struct {
	// Retries is the number of attempts after the first. 0 disables retries.
	Retries int
	WaitMin time.Duration
	WaitMax time.Duration

	// Base performs the actual requests. Nil uses a pooled cleanhttp client.
	Base *http.Client

	Log zerolog.Logger
}

// New returns a standard *http.Client backed by a retrying transport. When
// retries run out the last response is returned as-is, so callers still see
// the real status code and body.
func New(opts Options) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	if opts.WaitMin > 0 {
		rc.RetryWaitMin = opts.WaitMin
	}
	if opts.WaitMax > 0 {
		rc.RetryWaitMax = opts.WaitMax
	}
	if opts.Base != nil {
		rc.HTTPClient = opts.Base
	}
	rc.Logger = leveled{log: opts.Log}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// leveled adapts zerolog to retryablehttp.LeveledLogger.
type leveled struct {
	log zerolog.Logger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveled) Info(msg string, kv ...interface{})  { l.log.Info().Fields(kv).Msg(msg) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.log.Debug().Fields(kv).Msg(msg) }

var _ retryablehttp.LeveledLogger = leveled{}

package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatextract/internal/metrics"
)

type gateway struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
}

func (g *gateway) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.method, g.path, g.body = r.Method, r.URL.Path, string(b)
		g.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestFlushPushesRegistry(t *testing.T) {
	t.Parallel()
	gw := &gateway{}
	srv := httptest.NewServer(gw.handler(http.StatusOK))
	defer srv.Close()

	b, err := New(Options{URL: srv.URL, Grouping: map[string]string{"run_id": "abc"}})
	require.NoError(t, err)

	b.IncCounter(metrics.PagesTotal, 1, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.TurnsTotal, 3, metrics.Labels{"role": "User"})
	b.ObserveHistogram(metrics.ExtractDurationSeconds, 0.2, metrics.Labels{"status": "ok"})
	b.IncCounter("not_registered", 1, nil)

	require.NoError(t, b.Flush())

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Equal(t, http.MethodPut, gw.method)
	require.Equal(t, "/metrics/job/chatextract/run_id/abc", gw.path)
	require.True(t, strings.Contains(gw.body, metrics.PagesTotal), "pushed body should carry the pages counter")
	require.True(t, strings.Contains(gw.body, metrics.ExtractDurationSeconds))
}

func TestFlushReportsGatewayError(t *testing.T) {
	t.Parallel()
	gw := &gateway{}
	srv := httptest.NewServer(gw.handler(http.StatusInternalServerError))
	defer srv.Close()

	b, err := New(Options{URL: srv.URL, Job: "batch"})
	require.NoError(t, err)
	b.IncCounter(metrics.HTTPErrorsTotal, 1, metrics.Labels{"status": "503"})

	err = b.Flush()
	require.Error(t, err)
	require.Contains(t, err.Error(), "prompush: push")
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()
	_, err := New(Options{})
	require.Error(t, err)
}

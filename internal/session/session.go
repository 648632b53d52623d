// Package session keeps a logged-in browsing session across runs: an
// http.CookieJar that remembers every cookie it was handed so the set can be
// written to disk and replayed later.
//
// The standard cookiejar cannot enumerate its contents, so Jar records each
// SetCookies call alongside it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"chatextract/internal/fileutil"
)

// Cookie is the on-disk form of one cookie.
type Cookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

type cookieKey struct {
	host, domain, path, name string
}

// Jar is an http.CookieJar with public-suffix aware domain rules that can be
// saved and reloaded.
type Jar struct {
	jar *cookiejar.Jar
	now func() time.Time

	mu   sync.Mutex
	seen map[cookieKey]Cookie
}

var _ http.CookieJar = (*Jar)(nil)

// New returns an empty Jar.
func New() (*Jar, error) {
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Jar{jar: j, now: time.Now, seen: map[cookieKey]Cookie{}}, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
	for _, c := range cookies {
		k := cookieKey{host: u.Host, domain: c.Domain, path: c.Path, name: c.Name}
		exp := c.Expires
		if c.MaxAge > 0 {
			exp = j.now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!exp.IsZero() && exp.Before(j.now())) {
			delete(j.seen, k)
			continue
		}
		j.seen[k] = Cookie{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  exp,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Snapshot returns the unexpired cookies in a stable order.
func (j *Jar) Snapshot() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	out := make([]Cookie, 0, len(j.seen))
	for _, c := range j.seen {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].URL != out[b].URL {
			return out[a].URL < out[b].URL
		}
		if out[a].Path != out[b].Path {
			return out[a].Path < out[b].Path
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// Add replays cookies into the jar, skipping entries with unparseable URLs.
func (j *Jar) Add(cookies []Cookie) {
	for _, c := range cookies {
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" {
			continue
		}
		j.SetCookies(u, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}})
	}
}

// Load reads a jar saved by Save. A missing file yields an empty jar.
func Load(path string) (*Jar, error) {
	j, err := New()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookies %s: %w", path, err)
	}
	j.Add(cookies)
	return j, nil
}

// Save writes the jar's unexpired cookies to path atomically (temp file in
// the same directory, then rename) with owner-only permissions.
func (j *Jar) Save(path string) error {
	b, err := json.MarshalIndent(j.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(b, '\n'), 0o600)
}

// Package storage persists extracted transcripts behind a small,
// backend-agnostic Repository. Backends register themselves from init() in
// their own packages; import internal/storage/all to link every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatextract/internal/transcript"
)

// Table names shared by every backend.
const (
	TranscriptsTable = "transcripts"
	TurnsTable       = "transcript_turns"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Record is one transcript ready to be stored.
type Record struct {
	RunID       string
	Source      string
	Template    string
	Fingerprint string
	ExtractedAt time.Time
	Turns       []transcript.Turn
}

// NewRecord builds a Record and computes its fingerprint.
func NewRecord(runID, source, template string, t *transcript.Transcript, at time.Time) Record {
	return Record{
		RunID:       runID,
		Source:      source,
		Template:    template,
		Fingerprint: transcript.Fingerprint(t),
		ExtractedAt: at.UTC(),
		Turns:       append([]transcript.Turn(nil), t.Turns...),
	}
}

// Validate rejects records that no backend could store meaningfully.
func (r Record) Validate() error {
	if r.Fingerprint == "" {
		return fmt.Errorf("storage: record for %q has no fingerprint", r.Source)
	}
	if len(r.Turns) == 0 {
		return fmt.Errorf("storage: record for %q has no turns", r.Source)
	}
	return nil
}

// Repository stores transcripts.
//
// Each backend implements idempotency in its own idiomatic way (Postgres
// ON CONFLICT, SQLite OR IGNORE, SQL Server IF NOT EXISTS) keyed on the
// transcript fingerprint.
type Repository interface {
	// EnsureSchema creates the transcripts and transcript_turns tables if
	// they do not exist.
	EnsureSchema(ctx context.Context) error

	// SaveTranscript stores rec and its turns in one transaction. It returns
	// false, nil when a transcript with the same fingerprint already exists.
	SaveTranscript(ctx context.Context, rec Record) (bool, error)

	// Close releases backend resources. Call it once.
	Close()
}

// Factory opens a Repository for a registered kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
//
// Panics if kind is empty, f is nil, or kind is already registered, so that
// backend selection is never ambiguous.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

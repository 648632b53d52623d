// Package postgres is the PostgreSQL storage backend, built on a pgx
// connection pool. Turns are bulk-loaded with COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatextract/internal/storage"
)

// Repo implements storage.Repository for PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN (URL or key=value form) and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// schemaSQL returns the DDL statements in execution order.
func schemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + storage.TranscriptsTable + ` (
			id BIGSERIAL PRIMARY KEY,
			fingerprint CHAR(64) NOT NULL UNIQUE,
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			template TEXT NOT NULL,
			turn_count INTEGER NOT NULL,
			extracted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + storage.TurnsTable + ` (
			transcript_id BIGINT NOT NULL REFERENCES ` + storage.TranscriptsTable + `(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			position INTEGER NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('User', 'Model')),
			text TEXT NOT NULL,
			PRIMARY KEY (transcript_id, seq)
		)`,
	}
}

// EnsureSchema creates both tables if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

const insertTranscriptSQL = `INSERT INTO ` + storage.TranscriptsTable + `
	(fingerprint, run_id, source, template, turn_count, extracted_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (fingerprint) DO NOTHING
RETURNING id`

// turnRows converts rec's turns into COPY rows for transcript id.
func turnRows(id int64, rec storage.Record) [][]any {
	rows := make([][]any, len(rec.Turns))
	for i, t := range rec.Turns {
		rows[i] = []any{id, int32(i), int32(t.Position), string(t.Role), t.Text}
	}
	return rows
}

var turnColumns = []string{"transcript_id", "seq", "position", "role", "text"}

// SaveTranscript inserts rec with ON CONFLICT DO NOTHING on the fingerprint
// and COPYs its turns when the row is new.
func (r *Repo) SaveTranscript(ctx context.Context, rec storage.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, insertTranscriptSQL,
		rec.Fingerprint, rec.RunID, rec.Source, rec.Template, len(rec.Turns), rec.ExtractedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: insert transcript: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{storage.TurnsTable}, turnColumns, pgx.CopyFromRows(turnRows(id, rec)))
	if err != nil {
		return false, fmt.Errorf("postgres: copy turns: %w", err)
	}
	if int(n) != len(rec.Turns) {
		return false, fmt.Errorf("postgres: copied %d of %d turns", n, len(rec.Turns))
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit: %w", err)
	}
	return true, nil
}

var _ storage.Repository = (*Repo)(nil)

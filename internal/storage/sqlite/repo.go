package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"chatextract/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no native timestamp type, so extracted_at is stored as an
// RFC3339Nano string for reliable round-trips and easy debugging.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or "file:...?..." URI) and
// verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + storage.TranscriptsTable + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		template TEXT NOT NULL,
		turn_count INTEGER NOT NULL,
		extracted_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + storage.TurnsTable + ` (
		transcript_id INTEGER NOT NULL REFERENCES ` + storage.TranscriptsTable + `(id),
		seq INTEGER NOT NULL,
		position INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (transcript_id, seq)
	)`,
}

// EnsureSchema creates both tables if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveTranscript inserts rec with INSERT OR IGNORE on the fingerprint; turns
// are written only when the transcript row is new.
func (r *Repo) SaveTranscript(ctx context.Context, rec storage.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+storage.TranscriptsTable+`
			(fingerprint, run_id, source, template, turn_count, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.RunID, rec.Source, rec.Template, len(rec.Turns),
		rec.ExtractedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert transcript: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+storage.TurnsTable+` (transcript_id, seq, position, role, text) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("sqlite: prepare turns: %w", err)
	}
	defer stmt.Close()

	for i, t := range rec.Turns {
		if _, err := stmt.ExecContext(ctx, id, i, t.Position, string(t.Role), t.Text); err != nil {
			return false, fmt.Errorf("sqlite: insert turn %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit: %w", err)
	}
	return true, nil
}

var _ storage.Repository = (*Repo)(nil)

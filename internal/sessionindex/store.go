// Package sessionindex mirrors finalized session summaries into Postgres.
// It is a best-effort, non-authoritative index: the flat-file store under
// RECORDINGS_DIR is the system of record, and a Store failure here never
// blocks finalization. Adapted from the teacher's internal/database
// package (Init's connection-pool setup, history.go's
// input-struct-to-INSERT idiom), narrowed to the one table this spec
// needs instead of the teacher's video/audio/streaming/file history
// tables.
package sessionindex

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store is a connection pool to the session index database. A nil *Store
// is valid and every method on it is a no-op, so callers don't need to
// branch on whether DATABASE_URL was configured.
type Store struct {
	db *sql.DB
}

// Open connects to connStr (a libpq connection string / URL) and verifies
// connectivity with a ping.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("sessionindex: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionindex: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the sessions table if it does not already exist.
func (s *Store) EnsureSchema() error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                SERIAL PRIMARY KEY,
			uuid              TEXT UNIQUE NOT NULL,
			resource          TEXT,
			language          TEXT,
			sample_rate       INTEGER NOT NULL,
			sequence_count    INTEGER NOT NULL,
			transcript        TEXT NOT NULL,
			recording_path    TEXT NOT NULL,
			transcript_path   TEXT NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL,
			finalized_at      TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sessionindex: ensure schema: %w", err)
	}
	return nil
}

// FinalizedSession is the summary row recorded once a session completes.
type FinalizedSession struct {
	UUID           string
	Resource       string
	Language       string
	SampleRate     int
	SequenceCount  int
	Transcript     string
	RecordingPath  string
	TranscriptPath string
	CreatedAt      time.Time
}

// RecordFinalized inserts or, on a UUID conflict, updates one finalized
// session's summary row. A nil Store silently does nothing — callers
// finalize sessions whether or not DATABASE_URL was configured.
func (s *Store) RecordFinalized(fs FinalizedSession) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (
			uuid, resource, language, sample_rate, sequence_count,
			transcript, recording_path, transcript_path, created_at, finalized_at
		)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (uuid) DO UPDATE SET
			sequence_count  = EXCLUDED.sequence_count,
			transcript      = EXCLUDED.transcript,
			finalized_at    = now()
	`,
		fs.UUID, fs.Resource, fs.Language, fs.SampleRate, fs.SequenceCount,
		fs.Transcript, fs.RecordingPath, fs.TranscriptPath, fs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionindex: record finalized session %s: %w", fs.UUID, err)
	}
	return nil
}

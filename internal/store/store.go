// Package store archives finished session transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no transcript is archived for a session.
var ErrNotFound = errors.New("store: session not found")

// Record is the archived outcome of one session.
type Record struct {
	SessionID  string    `json:"sessionId"`
	Source     string    `json:"source"`
	FinalText  string    `json:"finalText"`
	StopReason string    `json:"stopReason"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
}

// Store wraps a SQLite-backed transcript archive.
type Store struct {
	db        *sql.DB
	ephemeral bool
}

// Open opens the archive at path. An empty path keeps the archive in memory
// for the lifetime of the process.
func Open(ctx context.Context, path string) (*Store, error) {
	ephemeral := path == ""
	dsn := "file::memory:"
	if !ephemeral {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if ephemeral {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, ephemeral: ephemeral}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info().Str("path", path).Bool("ephemeral", ephemeral).Msg("Transcript store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    session_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    final_text TEXT NOT NULL,
    stop_reason TEXT NOT NULL,
    started_at TEXT NOT NULL,
    ended_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_ended ON transcripts(ended_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Ephemeral reports whether the archive lives in memory only.
func (s *Store) Ephemeral() bool {
	return s.ephemeral
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the record for rec.SessionID.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return errors.New("store: record without session id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(session_id, source, final_text, stop_reason, started_at, ended_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   source=excluded.source, final_text=excluded.final_text, stop_reason=excluded.stop_reason,
		   started_at=excluded.started_at, ended_at=excluded.ended_at`,
		rec.SessionID, rec.Source, rec.FinalText, rec.StopReason,
		formatTime(rec.StartedAt), formatTime(rec.EndedAt))
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", rec.SessionID, err)
	}
	return nil
}

// Get returns the record of a session or ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, source, final_text, stop_reason, started_at, ended_at
		 FROM transcripts WHERE session_id = ?`, sessionID)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get transcript %s: %w", sessionID, err)
	}
	return rec, nil
}

// List returns up to limit records, most recently ended first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, source, final_text, stop_reason, started_at, ended_at
		 FROM transcripts ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Record, error) {
	var rec Record
	var started, ended string
	if err := sc.Scan(&rec.SessionID, &rec.Source, &rec.FinalText, &rec.StopReason, &started, &ended); err != nil {
		return Record{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
		rec.StartedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, ended); err == nil {
		rec.EndedAt = ts
	}
	return rec, nil
}

// timeLayout keeps fractional seconds at fixed width so stored times sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manash/imgstudio/internal/session"
	"github.com/manash/imgstudio/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    media_type TEXT NOT NULL,
    bytes INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    instruction TEXT NOT NULL,
    base_index INTEGER NOT NULL,
    result_index INTEGER NOT NULL DEFAULT -1,
    provider TEXT,
    model TEXT,
    media_type TEXT,
    bytes INTEGER NOT NULL DEFAULT 0,
    text TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    finished_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS cost_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    generation_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    cost REAL NOT NULL,
    image_count INTEGER NOT NULL DEFAULT 1,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (generation_id) REFERENCES generations(id) ON DELETE CASCADE,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_generations_session_id ON generations(session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_cost_log_timestamp ON cost_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_cost_log_provider ON cost_log(provider);
CREATE INDEX IF NOT EXISTS idx_cost_log_session_id ON cost_log(session_id);
`

// FileName is the journal database inside the data directory.
const FileName = "journal.db"

// Store is a sqlite journal of editing sessions, generation attempts and
// their cost. It satisfies session.Recorder.
type Store struct {
	db *sql.DB
}

var _ session.Recorder = (*Store)(nil)

// Open opens (creating if needed) the journal in dataDir.
func Open(dataDir string) (*Store, error) {
	return OpenPath(filepath.Join(dataDir, FileName))
}

func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// PRAGMA foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Session is a journaled upload.
type Session struct {
	ID        string
	MediaType models.MediaType
	Bytes     int
	StartedAt time.Time
}

// Generation is a journaled generation attempt.
type Generation struct {
	ID          string
	SessionID   string
	Instruction string
	BaseIndex   int
	ResultIndex int
	Provider    models.ProviderType
	Model       string
	MediaType   models.MediaType
	Bytes       int
	Text        string
	Duration    time.Duration
	Err         string
	FinishedAt  time.Time
}

func (g *Generation) Succeeded() bool {
	return g.Err == ""
}

func (s *Store) SessionStarted(ctx context.Context, info session.SessionInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, media_type, bytes, started_at) VALUES (?, ?, ?, ?)`,
		info.ID, string(info.MediaType), info.Bytes, info.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// GenerationFinished stores the attempt and, when it succeeded, its cost.
func (s *Store) GenerationFinished(ctx context.Context, rec session.GenerationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO generations (id, session_id, instruction, base_index, result_index, provider, model, media_type, bytes, text, duration_ms, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Instruction, rec.BaseIndex, rec.ResultIndex,
		nullString(string(rec.Provider)), nullString(rec.Model), nullString(string(rec.MediaType)),
		rec.Bytes, nullString(rec.Text), rec.Duration.Milliseconds(), nullString(rec.Err), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}

	if rec.Succeeded() && rec.Cost > 0 {
		err = logCost(ctx, tx, &CostEntry{
			GenerationID: rec.ID,
			SessionID:    rec.SessionID,
			Provider:     string(rec.Provider),
			Model:        rec.Model,
			Cost:         rec.Cost,
			ImageCount:   1,
			Timestamp:    rec.FinishedAt.UTC(),
		})
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, media_type, bytes, started_at FROM sessions WHERE id = ?`, id)

	sess := &Session{}
	var mediaType string
	if err := row.Scan(&sess.ID, &mediaType, &sess.Bytes, &sess.StartedAt); err != nil {
		return nil, err
	}
	sess.MediaType = models.MediaType(mediaType)
	return sess, nil
}

// ListSessions returns the most recent sessions first. limit <= 0 means all.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, media_type, bytes, started_at FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var mediaType string
		if err := rows.Scan(&sess.ID, &mediaType, &sess.Bytes, &sess.StartedAt); err != nil {
			return nil, err
		}
		sess.MediaType = models.MediaType(mediaType)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// ListGenerations returns a session's attempts in the order they finished.
func (s *Store) ListGenerations(ctx context.Context, sessionID string) ([]*Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, instruction, base_index, result_index, provider, model, media_type, bytes, text, duration_ms, error, finished_at
		 FROM generations WHERE session_id = ? ORDER BY finished_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []*Generation
	for rows.Next() {
		g := &Generation{}
		var provider, model, mediaType, text, errMsg sql.NullString
		var durationMS int64
		if err := rows.Scan(&g.ID, &g.SessionID, &g.Instruction, &g.BaseIndex, &g.ResultIndex,
			&provider, &model, &mediaType, &g.Bytes, &text, &durationMS, &errMsg, &g.FinishedAt); err != nil {
			return nil, err
		}
		g.Provider = models.ProviderType(provider.String)
		g.Model = model.String
		g.MediaType = models.MediaType(mediaType.String)
		g.Text = text.String
		g.Duration = time.Duration(durationMS) * time.Millisecond
		g.Err = errMsg.String
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

func (s *Store) CountGenerations(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generations WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Package store persists finished interviews and their analysis reports in
// SQLite. It is written only at terminal states and never read mid-session.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stafflens/interviewd/pkg/core/analysis"
	"github.com/stafflens/interviewd/pkg/core/interview"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	participant_id TEXT NOT NULL,
	channel_id     TEXT NOT NULL,
	state          TEXT NOT NULL,
	end_reason     TEXT NOT NULL DEFAULT '',
	turn_count     INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	ended_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	idx        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	spoken_at  INTEGER NOT NULL,
	PRIMARY KEY (session_id, idx)
);

CREATE TABLE IF NOT EXISTS reports (
	session_id     TEXT PRIMARY KEY REFERENCES sessions(id),
	provider       TEXT NOT NULL,
	fit_score      REAL NOT NULL,
	recommendation TEXT NOT NULL,
	summary        TEXT NOT NULL DEFAULT '',
	scores         TEXT NOT NULL DEFAULT '{}',
	partial        INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);
`

// Store wraps the interview database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL journaling and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession writes a terminal session and its transcript in one
// transaction.
func (s *Store) SaveSession(ctx context.Context, snap interview.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, participant_id, channel_id, state, end_reason, turn_count, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.ParticipantID, snap.ChannelID, snap.State, snap.EndReason,
		snap.TurnCount, snap.CreatedAt.UnixMilli(), snap.LastActivityAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	for i, turn := range snap.Transcript {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (session_id, idx, role, text, spoken_at)
			VALUES (?, ?, ?, ?, ?)
		`, snap.ID, i, string(turn.Role), turn.Text, turn.Timestamp.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// SaveReport implements analysis.Sink.
func (s *Store) SaveReport(ctx context.Context, sessionID string, report *analysis.Report) error {
	scores, err := json.Marshal(report.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	partial := 0
	if report.Partial {
		partial = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports
			(session_id, provider, fit_score, recommendation, summary, scores, partial, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, report.Provider, report.FitScore, report.Recommendation,
		report.Summary, string(scores), partial, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// SessionRecord is one persisted session row.
type SessionRecord struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	ChannelID     string    `json:"channel_id"`
	State         string    `json:"state"`
	EndReason     string    `json:"end_reason,omitempty"`
	TurnCount     int       `json:"turn_count"`
	CreatedAt     time.Time `json:"created_at"`
	EndedAt       time.Time `json:"ended_at"`
}

// RecentSessions returns the most recently ended sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participant_id, channel_id, state, end_reason, turn_count, created_at, ended_at
		FROM sessions
		ORDER BY ended_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var createdAt, endedAt int64
		if err := rows.Scan(&rec.ID, &rec.ParticipantID, &rec.ChannelID, &rec.State,
			&rec.EndReason, &rec.TurnCount, &createdAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.EndedAt = time.UnixMilli(endedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Transcript returns the ordered transcript of a persisted session.
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]interview.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, spoken_at
		FROM turns
		WHERE session_id = ?
		ORDER BY idx ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []interview.Turn
	for rows.Next() {
		var role, text string
		var spokenAt int64
		if err := rows.Scan(&role, &text, &spokenAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, interview.Turn{
			Role:      interview.Role(role),
			Text:      text,
			Timestamp: time.UnixMilli(spokenAt),
		})
	}
	return out, rows.Err()
}

// Report returns the analysis report for a session, or nil if none exists.
func (s *Store) Report(ctx context.Context, sessionID string) (*analysis.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT provider, fit_score, recommendation, summary, scores, partial
		FROM reports
		WHERE session_id = ?
	`, sessionID)

	var report analysis.Report
	var scores string
	var partial int
	if err := row.Scan(&report.Provider, &report.FitScore, &report.Recommendation,
		&report.Summary, &scores, &partial); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if err := json.Unmarshal([]byte(scores), &report.Scores); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}
	report.Partial = partial != 0
	return &report, nil
}

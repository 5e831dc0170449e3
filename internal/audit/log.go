// Package audit persists one row per processed utterance so that operators
// can answer "what did the daemon just do" after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one processed utterance.
type Entry struct {
	ID          string
	ConnID      string
	Utterance   string
	Command     string
	Outcome     string
	Error       string
	ReceivedAt  time.Time
	CompletedAt time.Time
}

// Log writes and reads the command_log table.
type Log struct {
	db *sql.DB
}

// NewLog returns a Log backed by db. The schema must already exist.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record inserts one entry. A zero ID gets a fresh UUID; zero timestamps
// default to now.
func (l *Log) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = now
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = now
	}
	if e.Outcome == "" {
		return "", fmt.Errorf("audit entry has no outcome")
	}

	durationMS := e.CompletedAt.Sub(e.ReceivedAt).Milliseconds()
	_, err := l.db.ExecContext(ctx, `
INSERT INTO command_log (id, conn_id, utterance, command, outcome, error, received_at, completed_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID,
		e.ConnID,
		e.Utterance,
		nullable(e.Command),
		e.Outcome,
		nullable(e.Error),
		e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano),
		durationMS,
	)
	if err != nil {
		return "", fmt.Errorf("insert command log: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, conn_id, utterance, command, outcome, error, received_at, completed_at
FROM command_log
ORDER BY received_at DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                       Entry
			command, errText        sql.NullString
			receivedAt, completedAt string
		)
		if err := rows.Scan(&e.ID, &e.ConnID, &e.Utterance, &command, &e.Outcome, &errText, &receivedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan command log: %w", err)
		}
		e.Command = command.String
		e.Error = errText.String
		if e.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns row counts grouped by outcome.
func (l *Log) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM command_log GROUP BY outcome;`)
	if err != nil {
		return nil, fmt.Errorf("count command log: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

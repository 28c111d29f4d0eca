// Package recorder is an optional, off-by-default diagnostic log of
// commands and how they resolved; the CLI feeds it every command
// submitted through the admin HTTP send-command route.
// It exists purely for CLI troubleshooting (the driver itself keeps no
// persistent state); grounded on the top-level sensor-data recorder,
// generalized from a fixed radar-observation schema to a generic
// command/outcome log.
package recorder

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Recorder appends command submissions and their outcomes to a sqlite
// database for later inspection. A nil *Recorder is valid and silently
// discards every call, so callers can make recording conditional on a
// CLI flag without branching at every call site.
type Recorder struct {
	db *sql.DB
}

// Open creates (or appends to) a sqlite database at path and ensures its
// schema exists.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			request_id INTEGER PRIMARY KEY,
			command TEXT NOT NULL,
			pin TEXT,
			submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS outcomes (
			request_id INTEGER PRIMARY KEY,
			ok BOOLEAN NOT NULL,
			detail TEXT,
			completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: create schema: %w", err)
	}

	return &Recorder{db: db}, nil
}

// Close closes the underlying database. Safe to call on a nil Recorder.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}

// RecordSubmit logs a command as it's sent to the device.
func (r *Recorder) RecordSubmit(requestID uint64, command, pin string) error {
	if r == nil {
		return nil
	}
	_, err := r.db.Exec("INSERT INTO commands (request_id, command, pin) VALUES (?, ?, ?)", requestID, command, pin)
	return err
}

// RecordOutcome logs how a previously submitted command resolved.
func (r *Recorder) RecordOutcome(requestID uint64, ok bool, detail string) error {
	if r == nil {
		return nil
	}
	_, err := r.db.Exec("INSERT INTO outcomes (request_id, ok, detail) VALUES (?, ?, ?)", requestID, ok, detail)
	return err
}

// Outcome is one row of RecentOutcomes' result.
type Outcome struct {
	RequestID   uint64
	Command     string
	Pin         string
	OK          bool
	Detail      string
	SubmittedAt time.Time
	CompletedAt time.Time
}

// RecentOutcomes returns the most recent limit command/outcome pairs,
// newest first, for a CLI "show recent activity" view.
func (r *Recorder) RecentOutcomes(limit int) ([]Outcome, error) {
	if r == nil {
		return nil, nil
	}
	rows, err := r.db.Query(`
		SELECT c.request_id, c.command, c.pin, o.ok, o.detail, c.submitted_at, o.completed_at
		FROM commands c
		JOIN outcomes o ON o.request_id = c.request_id
		ORDER BY c.request_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.RequestID, &o.Command, &o.Pin, &o.OK, &o.Detail, &o.SubmittedAt, &o.CompletedAt); err != nil {
			return nil, fmt.Errorf("recorder: scan row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/egmlock/internal/health"
	"github.com/ManuGH/egmlock/internal/persistence/sqlite"
)

const journalSchemaVersion = 1

const journalSchema = `
CREATE TABLE IF NOT EXISTS disable_journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at_ms INTEGER NOT NULL,
	kind TEXT NOT NULL,
	reason_key TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	previous_priority TEXT NOT NULL DEFAULT '',
	reason_text TEXT NOT NULL DEFAULT '',
	triggering_event TEXT NOT NULL DEFAULT '',
	idle_state_affected BOOLEAN NOT NULL DEFAULT 0,
	still_disabled BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_disable_journal_at ON disable_journal(at_ms);
`

// Entry is one persisted lockout lifecycle record.
type Entry struct {
	ID                int64
	At                time.Time
	Kind              EventType
	ReasonKey         string
	Priority          string
	PreviousPriority  string
	ReasonText        string
	TriggeringEvent   string
	IdleStateAffected bool
	StillDisabled     bool
}

// Journal persists entries to SQLite.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (and migrates) the journal database at path.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, journalSchemaVersion, journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit journal: migration failed: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends e. A zero At is stamped with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO disable_journal
		(at_ms, kind, reason_key, priority, previous_priority, reason_text, triggering_event, idle_state_affected, still_disabled)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), string(e.Kind), e.ReasonKey, e.Priority, e.PreviousPriority,
		e.ReasonText, e.TriggeringEvent, e.IdleStateAffected, e.StillDisabled,
	)
	if err != nil {
		return fmt.Errorf("audit journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, at_ms, kind, reason_key, priority, previous_priority, reason_text, triggering_event, idle_state_affected, still_disabled
	FROM disable_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit journal: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			atMS int64
			kind string
		)
		if err := rows.Scan(&e.ID, &atMS, &kind, &e.ReasonKey, &e.Priority, &e.PreviousPriority,
			&e.ReasonText, &e.TriggeringEvent, &e.IdleStateAffected, &e.StillDisabled); err != nil {
			return nil, fmt.Errorf("audit journal: scan: %w", err)
		}
		e.At = time.UnixMilli(atMS)
		e.Kind = EventType(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Checker reports journal integrity for the readiness check.
func (j *Journal) Checker() health.Checker {
	return health.CheckFunc{
		CheckName: "audit_journal",
		Fn: func(ctx context.Context) health.CheckResult {
			issues, err := sqlite.VerifyIntegrity(ctx, j.db, "quick")
			switch {
			case err != nil:
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			case issues != nil:
				return health.CheckResult{Status: health.StatusUnhealthy, Error: fmt.Sprintf("integrity: %v", issues)}
			default:
				return health.CheckResult{Status: health.StatusHealthy}
			}
		},
	}
}

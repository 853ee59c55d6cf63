package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record was modified concurrently")
)

// timeLayout keeps second precision so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// Open opens (creating if needed) the SQLite database and brings the schema
// up to date.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer at a time; also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var migrations = []string{
	// 1: OAuth tokens, carried over from the calendar sync tool.
	`CREATE TABLE IF NOT EXISTS tokens (
		account_name TEXT PRIMARY KEY,
		token TEXT
	)`,
	// 2: calendar events
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		remote_id TEXT,
		version_tag TEXT,
		event_type TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL,
		sync_status TEXT NOT NULL,
		customer_first_name TEXT NOT NULL DEFAULT '',
		customer_last_name TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		instructor_name TEXT NOT NULL DEFAULT '',
		instructor_email TEXT NOT NULL DEFAULT '',
		all_day INTEGER NOT NULL DEFAULT 0,
		actual_work_start TEXT NOT NULL DEFAULT '',
		actual_work_end TEXT NOT NULL DEFAULT '',
		blocker_title TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		request_id TEXT,
		cancellation_reason TEXT,
		cancellation_note TEXT,
		cancelled_at TEXT,
		pending_start TEXT,
		pending_end TEXT,
		rebooked_at TEXT,
		revision INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS events_remote_id ON events (remote_id) WHERE remote_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS events_start_time ON events (start_time)`,
	// 3: work requests
	`CREATE TABLE IF NOT EXISTS work_requests (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		event_id TEXT,
		updated_at TEXT NOT NULL
	)`,
	// 4: notification outbox
	`CREATE TABLE IF NOT EXISTS email_queue (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		recipient TEXT NOT NULL,
		subject TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		event_id TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		sent_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS email_queue_status ON email_queue (status, created_at)`,
	// 5: MAYDAY and rebook tokens
	`CREATE TABLE IF NOT EXISTS mayday_tokens (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		confirmed INTEGER NOT NULL DEFAULT 0,
		confirmed_at TEXT,
		applied INTEGER NOT NULL DEFAULT 0,
		applied_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS mayday_tokens_event ON mayday_tokens (event_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS rebook_tokens (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		used_at TEXT,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS rebook_tokens_event ON rebook_tokens (event_id, created_at)`,
}

// Migrate applies every migration newer than the recorded db_version.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS db_version (
		name TEXT PRIMARY KEY,
		version INTEGER
	)`)
	if err != nil {
		return fmt.Errorf("error creating db_version table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM db_version WHERE name='opscal'").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.ExecContext(ctx, `INSERT INTO db_version (name, version) VALUES ('opscal', 0)`); err != nil {
			return fmt.Errorf("error initializing db_version table: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("error reading db_version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := db.ExecContext(ctx, `UPDATE db_version SET version = ? WHERE name = 'opscal'`, i+1); err != nil {
			return fmt.Errorf("error updating db_version table: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

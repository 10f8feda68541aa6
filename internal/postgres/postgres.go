// Package postgres implements the identity, class and attendance-record
// repositories against Postgres using database/sql over the pgx stdlib
// driver.
package postgres

import (
	"context"
	"database/sql"
	"log"
)

// Repository is the Postgres implementation of all collaborator interfaces
// the engine consumes.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates missing tables and indexes. Statements are idempotent
// so repeated startup is safe.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	log.Println("ensuring database schema...")
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			role        TEXT NOT NULL DEFAULT 'student',
			embedding   JSONB,
			enrolled_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS classes (
			id         TEXT PRIMARY KEY,
			subject    TEXT NOT NULL,
			join_code  TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS class_windows (
			class_id TEXT NOT NULL REFERENCES classes(id),
			pos      INT  NOT NULL,
			day      TEXT NOT NULL,
			start_at TEXT NOT NULL,
			end_at   TEXT NOT NULL,
			PRIMARY KEY (class_id, pos)
		)`,
		`CREATE TABLE IF NOT EXISTS class_members (
			class_id    TEXT NOT NULL REFERENCES classes(id),
			identity_id TEXT NOT NULL REFERENCES identities(id),
			pos         INT  NOT NULL,
			joined_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (class_id, identity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			record_path    TEXT PRIMARY KEY,
			class_id       TEXT NOT NULL,
			class_day      TEXT NOT NULL,
			identity_id    TEXT NOT NULL,
			time_in        TIMESTAMPTZ,
			time_out       TIMESTAMPTZ,
			method         TEXT NOT NULL DEFAULT '',
			excuse_reason  TEXT,
			excuse_image   TEXT,
			excuse_status  TEXT,
			excuse_submitted_at TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// One open session per identity per day, across classes. The ledger
		// scans before writing; this index turns a lost race into a typed
		// conflict instead of a second open session.
		`CREATE UNIQUE INDEX IF NOT EXISTS attendance_open_identity_day
			ON attendance_records (identity_id, class_day)
			WHERE time_in IS NOT NULL AND time_out IS NULL`,
		`CREATE INDEX IF NOT EXISTS attendance_class_day
			ON attendance_records (class_id, class_day)`,
		`CREATE TABLE IF NOT EXISTS devices (
			device_id  TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			device_id  TEXT NOT NULL,
			token      TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked    BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

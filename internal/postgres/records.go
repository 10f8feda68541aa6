package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"classattend/internal/ledger"
)

const recordColumns = `class_id, class_day, identity_id, time_in, time_out, method,
	excuse_reason, excuse_image, excuse_status, excuse_submitted_at`

// Get loads one attendance record by key.
func (r *Repository) Get(ctx context.Context, key ledger.Key) (ledger.Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE class_id = $1 AND class_day = $2 AND identity_id = $3
	`, key.ClassID, key.Date, key.IdentityID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Record{}, false, nil
		}
		return ledger.Record{}, false, err
	}
	return rec, true, nil
}

// CreateIfAbsent inserts a new record. The primary key keeps the persisted
// attendance/{class}/{date}/{identity} path layout; the partial unique index
// on open sessions turns a cross-class race into ErrAlreadyOpenElsewhere.
func (r *Repository) CreateIfAbsent(ctx context.Context, rec ledger.Record) error {
	path, err := r.recordPath(ctx, rec.Key)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (record_path, class_id, class_day, identity_id, time_in, time_out, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (record_path) DO NOTHING
	`, path, rec.Key.ClassID, rec.Key.Date, rec.Key.IdentityID, rec.TimeIn, rec.TimeOut, rec.Method)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "attendance_open_identity_day" {
			openClass, _ := r.openClassFor(ctx, rec.Key.IdentityID, rec.Key.Date)
			return &ledger.ConflictError{Err: ledger.ErrAlreadyOpenElsewhere, Key: rec.Key, OpenClassID: openClass}
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ledger.ConflictError{Err: ledger.ErrAlreadyExists, Key: rec.Key}
	}
	return nil
}

// SetTimeOut closes an open session; the state check rides in the WHERE
// clause so the update is atomic for the key.
func (r *Repository) SetTimeOut(ctx context.Context, key ledger.Key, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET time_out = $4
		WHERE class_id = $1 AND class_day = $2 AND identity_id = $3
			AND time_in IS NOT NULL AND time_out IS NULL
	`, key.ClassID, key.Date, key.IdentityID, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		rec, found, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		if found && rec.TimeOut != nil {
			return &ledger.ConflictError{Err: ledger.ErrAlreadyClosed, Key: key}
		}
		return &ledger.ConflictError{Err: ledger.ErrNoOpenSession, Key: key}
	}
	return nil
}

// SetExcuse attaches an excuse, creating an excuse-only record when the key
// has none (a plain absence). A record that already carries an excuse, in
// any state, rejects the write.
func (r *Repository) SetExcuse(ctx context.Context, key ledger.Key, excuse ledger.Excuse) error {
	path, err := r.recordPath(ctx, key)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records
			(record_path, class_id, class_day, identity_id, excuse_reason, excuse_image, excuse_status, excuse_submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (record_path) DO UPDATE SET
			excuse_reason = EXCLUDED.excuse_reason,
			excuse_image = EXCLUDED.excuse_image,
			excuse_status = EXCLUDED.excuse_status,
			excuse_submitted_at = EXCLUDED.excuse_submitted_at
		WHERE attendance_records.excuse_status IS NULL
	`, path, key.ClassID, key.Date, key.IdentityID,
		excuse.Reason, nullable(excuse.ImageURL), string(excuse.Status), excuse.SubmittedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ledger.ConflictError{Err: ledger.ErrExcuseExists, Key: key}
	}
	return nil
}

// ResolveExcuse finalizes a pending excuse exactly once.
func (r *Repository) ResolveExcuse(ctx context.Context, key ledger.Key, status ledger.ExcuseStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET excuse_status = $4
		WHERE class_id = $1 AND class_day = $2 AND identity_id = $3
			AND excuse_status = 'pending'
	`, key.ClassID, key.Date, key.IdentityID, string(status))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ledger.ConflictError{Err: ledger.ErrNotPending, Key: key}
	}
	return nil
}

// ListByClassDate returns all records for one class/day.
func (r *Repository) ListByClassDate(ctx context.Context, classID, date string) ([]ledger.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE class_id = $1 AND class_day = $2
		ORDER BY identity_id
	`, classID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) recordPath(ctx context.Context, key ledger.Key) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT subject, join_code FROM classes WHERE id = $1`, key.ClassID)
	var c ledger.Class
	if err := row.Scan(&c.Subject, &c.JoinCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("class %s not found", key.ClassID)
		}
		return "", err
	}
	return key.Path(c.StorageIdentifier()), nil
}

func (r *Repository) openClassFor(ctx context.Context, identityID, date string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT class_id FROM attendance_records
		WHERE identity_id = $1 AND class_day = $2
			AND time_in IS NOT NULL AND time_out IS NULL
		LIMIT 1
	`, identityID, date)
	var classID string
	if err := row.Scan(&classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return classID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var rec ledger.Record
	var timeIn, timeOut, submittedAt sql.NullTime
	var reason, image, status sql.NullString
	if err := row.Scan(&rec.Key.ClassID, &rec.Key.Date, &rec.Key.IdentityID,
		&timeIn, &timeOut, &rec.Method,
		&reason, &image, &status, &submittedAt); err != nil {
		return ledger.Record{}, err
	}
	if timeIn.Valid {
		at := timeIn.Time
		rec.TimeIn = &at
	}
	if timeOut.Valid {
		at := timeOut.Time
		rec.TimeOut = &at
	}
	if status.Valid {
		rec.Excuse = &ledger.Excuse{
			Reason:      reason.String,
			ImageURL:    image.String,
			Status:      ledger.ExcuseStatus(status.String),
			SubmittedAt: submittedAt.Time,
		}
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

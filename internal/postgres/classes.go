package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"classattend/internal/ledger"
	"classattend/internal/schedule"
)

// CreateClass stores the class and its schedule windows in declaration
// order.
func (r *Repository) CreateClass(ctx context.Context, c ledger.Class) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO classes (id, subject, join_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET subject = EXCLUDED.subject, join_code = EXCLUDED.join_code
	`, c.ID, c.Subject, c.JoinCode); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM class_windows WHERE class_id = $1`, c.ID); err != nil {
		return err
	}
	for i, w := range c.Windows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_windows (class_id, pos, day, start_at, end_at)
			VALUES ($1, $2, $3, $4, $5)
		`, c.ID, i, w.Day, w.Start, w.End); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddMember appends an identity to the class roster. pos records join order,
// which is the order cross-class scans use.
func (r *Repository) AddMember(ctx context.Context, classID, identityID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_members (class_id, identity_id, pos)
		VALUES ($1, $2, (SELECT COALESCE(MAX(pos), 0) + 1 FROM class_members WHERE identity_id = $2))
		ON CONFLICT (class_id, identity_id) DO NOTHING
	`, classID, identityID)
	return err
}

// GetClass loads a class with its windows in declaration order.
func (r *Repository) GetClass(ctx context.Context, classID string) (ledger.Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subject, join_code FROM classes WHERE id = $1
	`, classID)
	var c ledger.Class
	if err := row.Scan(&c.ID, &c.Subject, &c.JoinCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Class{}, fmt.Errorf("class %s not found", classID)
		}
		return ledger.Class{}, err
	}
	windows, err := r.classWindows(ctx, classID)
	if err != nil {
		return ledger.Class{}, err
	}
	c.Windows = windows
	return c, nil
}

// ListClassesForIdentity returns the identity's classes in join order.
func (r *Repository) ListClassesForIdentity(ctx context.Context, identityID string) ([]ledger.Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.subject, c.join_code
		FROM class_members m
		JOIN classes c ON c.id = m.class_id
		WHERE m.identity_id = $1
		ORDER BY m.pos, m.joined_at
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Class
	for rows.Next() {
		var c ledger.Class
		if err := rows.Scan(&c.ID, &c.Subject, &c.JoinCode); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		windows, err := r.classWindows(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Windows = windows
	}
	return out, nil
}

// ListStudentIDs returns the roster for a class.
func (r *Repository) ListStudentIDs(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.identity_id
		FROM class_members m
		JOIN identities i ON i.id = m.identity_id
		WHERE m.class_id = $1 AND i.role = 'student'
		ORDER BY m.joined_at
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repository) classWindows(ctx context.Context, classID string) ([]schedule.Window, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, start_at, end_at FROM class_windows
		WHERE class_id = $1 ORDER BY pos
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Window
	for rows.Next() {
		var w schedule.Window
		if err := rows.Scan(&w.Day, &w.Start, &w.End); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classattend/internal/enroll"
	"classattend/internal/match"
)

// ListEnrolled returns the candidates with a stored embedding.
func (r *Repository) ListEnrolled(ctx context.Context) ([]match.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM identities
		WHERE embedding IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.Candidate
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var emb []float32
		if err := json.Unmarshal(raw, &emb); err != nil {
			return nil, fmt.Errorf("identity %s: malformed embedding: %w", id, err)
		}
		out = append(out, match.Candidate{IdentityID: id, Embedding: emb})
	}
	return out, rows.Err()
}

// GetIdentity loads one identity; found is false when the id is unknown.
func (r *Repository) GetIdentity(ctx context.Context, id string) (enroll.Identity, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, role, embedding, enrolled_at
		FROM identities WHERE id = $1
	`, id)
	var ident enroll.Identity
	var role string
	var raw []byte
	var enrolledAt sql.NullTime
	if err := row.Scan(&ident.ID, &ident.Name, &role, &raw, &enrolledAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return enroll.Identity{}, false, nil
		}
		return enroll.Identity{}, false, err
	}
	ident.Role = enroll.Role(role)
	if raw != nil {
		if err := json.Unmarshal(raw, &ident.Embedding); err != nil {
			return enroll.Identity{}, false, fmt.Errorf("identity %s: malformed embedding: %w", id, err)
		}
	}
	if enrolledAt.Valid {
		at := enrolledAt.Time
		ident.EnrolledAt = &at
	}
	return ident, true, nil
}

// UpsertIdentity creates or updates identity metadata, never the embedding.
func (r *Repository) UpsertIdentity(ctx context.Context, ident enroll.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role
	`, ident.ID, ident.Name, string(ident.Role))
	return err
}

// SaveEmbedding writes the embedding only when the identity has none yet.
func (r *Repository) SaveEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET embedding = $2, enrolled_at = $3
		WHERE id = $1 AND embedding IS NULL
	`, id, raw, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, found, err := r.GetIdentity(ctx, id); err != nil {
			return err
		} else if !found {
			return fmt.Errorf("%w: %s", enroll.ErrUnknownIdentity, id)
		}
		return fmt.Errorf("%w: %s", enroll.ErrAlreadyEnrolled, id)
	}
	return nil
}

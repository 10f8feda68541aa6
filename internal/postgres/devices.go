package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertDevice ensures a kiosk device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// RefreshTokenActive reports whether the token is stored, unrevoked and
// unexpired. Rotation revokes the old token, so a replayed one fails here
// even though its signature still verifies.
func (r *Repository) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM refresh_tokens
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
	`, token)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

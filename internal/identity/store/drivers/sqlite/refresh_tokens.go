package sqlite

import (
	"context"
	"time"

	"github.com/taskhive/identity/internal/identity/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, owner_email, device_info, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Token, t.OwnerEmail, t.DeviceInfo, t.ExpiresAt, t.Revoked, t.CreatedAt,
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByValue(ctx context.Context, value string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, owner_email, device_info, expires_at, revoked, created_at
		FROM refresh_tokens WHERE token = ?`, value)

	var t domain.RefreshToken
	if err := row.Scan(&t.Token, &t.OwnerEmail, &t.DeviceInfo, &t.ExpiresAt, &t.Revoked, &t.CreatedAt); err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

// ListActiveRefreshTokens returns non-revoked records oldest first. The
// rowid tiebreak preserves insertion order for records created within the
// same timestamp granularity.
func (r *refreshTokensRepo) ListActiveRefreshTokens(ctx context.Context, ownerEmail string) ([]domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, owner_email, device_info, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE owner_email = ? AND revoked = 0
		ORDER BY created_at ASC, rowid ASC`, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.Token, &t.OwnerEmail, &t.DeviceInfo, &t.ExpiresAt, &t.Revoked, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, value string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1 WHERE token = ?`, value)
	return err
}

func (r *refreshTokensRepo) RevokeAllRefreshTokens(ctx context.Context, ownerEmail string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1 WHERE owner_email = ?`, ownerEmail)
	return err
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, value string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE token = ?`, value)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < ?`, now)
	return err
}

package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/taskhive/identity/internal/identity/domain"
	"github.com/taskhive/identity/internal/identity/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, first_name, last_name, password_hash, role,
	provider, provider_user_id, picture_url, email_verified, created_at, updated_at`

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role,
		u.Provider, u.ProviderUserID, u.PictureURL, u.EmailVerified,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider, providerUserID string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID)
	return scanUser(row)
}

func (r *usersRepo) SaveUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			first_name = ?, last_name = ?, password_hash = ?, role = ?,
			provider = ?, provider_user_id = ?, picture_url = ?,
			email_verified = ?, updated_at = ?
		WHERE id = ?`,
		u.FirstName, u.LastName, u.PasswordHash, u.Role,
		u.Provider, u.ProviderUserID, u.PictureURL,
		u.EmailVerified, time.Now().UTC(), u.ID,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role,
		&u.Provider, &u.ProviderUserID, &u.PictureURL, &u.EmailVerified,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

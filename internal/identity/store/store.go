package store

import (
	"context"
	"errors"
	"time"

	"github.com/taskhive/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres someday) implement this. Sub-repositories keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Users() Users
	RefreshTokens() RefreshTokens
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is the login lookup.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByProvider looks a user up by social provider identity.
	GetUserByProvider(ctx context.Context, provider, providerUserID string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// SaveUser updates mutable profile fields and bumps updated_at.
	SaveUser(ctx context.Context, u domain.User) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByValue returns the record for an opaque token value.
	GetRefreshTokenByValue(ctx context.Context, value string) (domain.RefreshToken, error)

	// ListActiveRefreshTokens returns all non-revoked records for an owner,
	// oldest first (created_at ascending, insertion order breaking ties).
	// Rotation relies on this ordering.
	ListActiveRefreshTokens(ctx context.Context, ownerEmail string) ([]domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked=1 for the matching record. No-op if
	// the value is unknown.
	RevokeRefreshToken(ctx context.Context, value string) error

	// RevokeAllRefreshTokens flips revoked=1 for every record of an owner.
	RevokeAllRefreshTokens(ctx context.Context, ownerEmail string) error

	// DeleteRefreshToken removes a record outright (stale token cleanup).
	DeleteRefreshToken(ctx context.Context, value string) error

	// DeleteExpiredRefreshTokens removes every record with expires_at before
	// now. Housekeeping calls this on a fixed interval.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error
}

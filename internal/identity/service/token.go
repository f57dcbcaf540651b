package service

import (
	"context"
	"errors"
	"time"

	"github.com/taskhive/identity/internal/identity/domain"
	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/pkg/cryptox"
	"github.com/taskhive/identity/pkg/slogx"
)

// DefaultMaxActiveTokensPerUser caps concurrent sessions per owner. The cap
// is enforced by rotation on create, not continuously.
const DefaultMaxActiveTokensPerUser = 5

var (
	ErrTokenExpired   = errors.New("token_expired")
	ErrTokenRevoked   = errors.New("token_revoked")
	ErrTokenMalformed = errors.New("token_malformed")
)

// TokenService owns the refresh token lifecycle: creation with rotation
// against the per-user cap, validation, revocation and expiry cleanup.
type TokenService struct {
	Store store.Store

	RefreshTTL       time.Duration
	MaxActivePerUser int
}

// CreateRefreshToken rotates the owner's active tokens against the cap and
// persists a fresh record. Rotation evicts oldest-first so the surviving
// records are always the most recently created ones.
//
// The list-then-write sequence runs in a transaction, which makes rotation
// atomic on this driver; with a driver that permits concurrent writers the
// cap remains a best-effort property, transiently exceedable by the number
// of in-flight creates, corrected on the next create or sweep.
func (s *TokenService) CreateRefreshToken(ctx context.Context, ownerEmail, deviceInfo string) (domain.RefreshToken, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	now := time.Now().UTC()
	record := domain.RefreshToken{
		Token:      value,
		OwnerEmail: ownerEmail,
		DeviceInfo: deviceInfo,
		ExpiresAt:  now.Add(s.RefreshTTL),
		CreatedAt:  now,
	}

	maxActive := s.MaxActivePerUser
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveTokensPerUser
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		active, err := tx.RefreshTokens().ListActiveRefreshTokens(ctx, ownerEmail)
		if err != nil {
			return err
		}

		// Evict enough of the oldest records that the new one fits.
		if excess := len(active) - maxActive + 1; excess > 0 {
			for _, stale := range active[:excess] {
				if err := tx.RefreshTokens().RevokeRefreshToken(ctx, stale.Token); err != nil {
					return err
				}
			}
		}

		return tx.RefreshTokens().CreateRefreshToken(ctx, record)
	})
	if err != nil {
		return domain.RefreshToken{}, err
	}

	return record, nil
}

// ValidateRefreshToken looks up the presented value and checks it is still
// live. An expired or revoked record is deleted before the error is
// returned; a stale refresh token is single-use-dead, never resurrected.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, value string) (domain.RefreshToken, error) {
	record, err := s.Store.RefreshTokens().GetRefreshTokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshToken{}, ErrTokenMalformed
		}
		return domain.RefreshToken{}, err
	}

	if record.Revoked {
		if err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, value); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete revoked refresh token", "error", err)
		}
		return domain.RefreshToken{}, ErrTokenRevoked
	}

	if time.Now().UTC().After(record.ExpiresAt) {
		if err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, value); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete expired refresh token", "error", err)
		}
		return domain.RefreshToken{}, ErrTokenExpired
	}

	return record, nil
}

// Revoke flips revoked for the matching token. Idempotent, unknown values
// are a no-op.
func (s *TokenService) Revoke(ctx context.Context, value string) error {
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx, value)
}

// RevokeAll revokes every refresh token owned by the identity. Used by
// logout-all and as the credential compromise response.
func (s *TokenService) RevokeAll(ctx context.Context, ownerEmail string) error {
	return s.Store.RefreshTokens().RevokeAllRefreshTokens(ctx, ownerEmail)
}

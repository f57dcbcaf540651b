package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taskhive/identity/internal/identity/domain"
	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/pkg/cryptox"
	"github.com/taskhive/identity/pkg/idx"
	"github.com/taskhive/identity/pkg/jwtx"
	"github.com/taskhive/identity/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailTaken         = errors.New("email_already_registered")
	ErrMissingInput       = errors.New("missing_required_input")
)

// AuthService orchestrates register/login/refresh/logout flows by composing
// the codec, the refresh token lifecycle and the social resolver. It holds
// no state of its own.
type AuthService struct {
	Store  store.Store
	Tokens *TokenService
	Social *SocialService
	Codec  *jwtx.Codec

	Notifier Notifier
	Events   EventSink

	AccessTTL time.Duration
}

// Register creates a local identity and opens a session for it.
func (s *AuthService) Register(ctx context.Context, email, password, firstName, lastName, deviceInfo string) (*domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingInput
	}

	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Provider:     domain.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.dispatch(ctx, user, EventUserRegistered, true)

	return s.openSession(ctx, user, deviceInfo)
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password, deviceInfo string) (*domain.Session, error) {
	email = normalizeEmail(email)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		// Social-only identity, there is no password to check.
		return nil, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.dispatch(ctx, user, EventUserLoggedIn, false)

	return s.openSession(ctx, user, deviceInfo)
}

// SocialLogin resolves the provider token to a canonical identity, finds or
// creates the matching local user, then opens a session like Login.
func (s *AuthService) SocialLogin(ctx context.Context, provider, rawToken, deviceInfo string) (*domain.Session, error) {
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(rawToken) == "" {
		return nil, ErrMissingInput
	}

	identity, err := s.Social.Resolve(ctx, provider, rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.findOrCreateSocialUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, user, EventUserSocialLogin, false)

	return s.openSession(ctx, user, deviceInfo)
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated on use; it stays valid until its own
// expiry or explicit revocation.
func (s *AuthService) Refresh(ctx context.Context, refreshValue string) (*domain.Session, error) {
	record, err := s.Tokens.ValidateRefreshToken(ctx, refreshValue)
	if err != nil {
		return nil, err
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, record.OwnerEmail)
	if errors.Is(err, store.ErrNotFound) {
		// Accounts without an email own their tokens by user id.
		user, err = s.Store.Users().GetUserByID(ctx, record.OwnerEmail)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenMalformed
		}
		return nil, err
	}

	access, err := s.Codec.Issue(user.ID, user.Role, jwtx.TokenTypeAccess, s.AccessTTL)
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:  access,
		RefreshToken: record.Token,
		ExpiresIn:    s.AccessTTL,
		User:         user,
	}, nil
}

// Logout revokes the presented refresh token. Idempotent, succeeds even if
// the token was already gone.
func (s *AuthService) Logout(ctx context.Context, refreshValue string) error {
	return s.Tokens.Revoke(ctx, refreshValue)
}

// LogoutAll revokes every refresh token for the identified user. Accepts
// either a user id or an email; an unknown identifier is still a success.
func (s *AuthService) LogoutAll(ctx context.Context, identifier string) error {
	owner := normalizeEmail(identifier)

	if user, err := s.Store.Users().GetUserByID(ctx, identifier); err == nil {
		owner = sessionOwner(user)
	}

	return s.Tokens.RevokeAll(ctx, owner)
}

func (s *AuthService) openSession(ctx context.Context, user domain.User, deviceInfo string) (*domain.Session, error) {
	access, err := s.Codec.Issue(user.ID, user.Role, jwtx.TokenTypeAccess, s.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := s.Tokens.CreateRefreshToken(ctx, sessionOwner(user), deviceInfo)
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		ExpiresIn:    s.AccessTTL,
		User:         user,
	}, nil
}

// findOrCreateSocialUser matches by provider identity first, then by email
// (linking the provider onto an existing local account), and finally
// creates a fresh passwordless user.
func (s *AuthService) findOrCreateSocialUser(ctx context.Context, identity domain.SocialIdentity) (domain.User, error) {
	users := s.Store.Users()

	user, err := users.GetUserByProvider(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	email := normalizeEmail(identity.Email)
	if email != "" {
		user, err = users.GetUserByEmail(ctx, email)
		if err == nil {
			user.Provider = identity.Provider
			user.ProviderUserID = identity.ProviderUserID
			if user.PictureURL == "" {
				user.PictureURL = identity.PictureURL
			}
			user.EmailVerified = user.EmailVerified || identity.EmailVerified
			if err := users.SaveUser(ctx, user); err != nil {
				return domain.User{}, err
			}
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, err
		}
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:             idx.New().String(),
		Email:          email,
		FirstName:      identity.FirstName,
		LastName:       identity.LastName,
		Role:           domain.RoleUser,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		PictureURL:     identity.PictureURL,
		EmailVerified:  identity.EmailVerified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// dispatch publishes the lifecycle event and, for registrations, the
// welcome notification. Both are fire-and-forget: failures are logged and
// the authentication flow carries on.
func (s *AuthService) dispatch(ctx context.Context, user domain.User, kind string, notify bool) {
	log := slogx.FromContext(ctx)

	if s.Events != nil {
		event := UserEvent{Kind: kind, UserID: user.ID, Email: user.Email, Provider: user.Provider}
		if err := s.Events.Publish(ctx, event); err != nil {
			log.Warn("event publish failed", "kind", kind, "error", err)
		}
	}

	if notify && s.Notifier != nil {
		if err := s.Notifier.UserRegistered(ctx, user); err != nil {
			log.Warn("registration notification failed", "user_id", user.ID, "error", err)
		}
	}
}

// sessionOwner is the refresh-token owner key: the email when the account
// has one, the user id for accounts whose provider withheld the email.
func sessionOwner(user domain.User) string {
	if user.Email != "" {
		return user.Email
	}
	return user.ID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive/identity/internal/identity/domain"
	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/pkg/idx"
	"github.com/taskhive/identity/pkg/jwtx"
)

var (
	sharedKeysOnce sync.Once
	sharedKeys     *jwtx.KeyMaterial
	sharedKeysErr  error
)

// testKeys generates one RSA pair for the whole package; key generation is
// too slow to repeat per test.
func testKeys(t *testing.T) *jwtx.KeyMaterial {
	t.Helper()

	sharedKeysOnce.Do(func() {
		sharedKeys, sharedKeysErr = jwtx.ResolveKeyMaterial(jwtx.KeyConfig{
			StorePath: t.TempDir(),
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})
	require.NoError(t, sharedKeysErr)
	return sharedKeys
}

func newAuthService(t *testing.T, social *SocialService) *AuthService {
	t.Helper()

	st := newTestStore(t)
	if social == nil {
		social = &SocialService{}
	}

	return &AuthService{
		Store: st,
		Tokens: &TokenService{
			Store:            st,
			RefreshTTL:       time.Hour,
			MaxActivePerUser: 5,
		},
		Social:    social,
		Codec:     &jwtx.Codec{Keys: testKeys(t), Issuer: "identity-test"},
		AccessTTL: 15 * time.Minute,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "Ada@Example.com", "correct horse", "Ada", "Lovelace", "laptop")
	require.NoError(t, err)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, "ada@example.com", session.User.Email)
	require.Equal(t, domain.RoleUser, session.User.Role)
	require.Equal(t, domain.ProviderLocal, session.User.Provider)

	claims, err := svc.Codec.Verify(session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, claims.Subject)
	require.Equal(t, jwtx.TokenTypeAccess, claims.TokenType)

	login, err := svc.Login(ctx, "ada@example.com", "correct horse", "laptop")
	require.NoError(t, err)
	require.Equal(t, session.User.ID, login.User.ID)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "password", "", "", "")
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.Register(ctx, "a@example.com", "", "", "", "")
	require.ErrorIs(t, err, ErrMissingInput)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dup@example.com", "password", "", "", "")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "DUP@example.com", "other password", "", "", "")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "login@example.com", "right password", "", "", "")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "login@example.com", "wrong password", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, "ghost@example.com", "any", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginSocialOnlyAccountRejected(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, svc.Store.Users().CreateUser(ctx, domain.User{
		ID:             idx.New().String(),
		Email:          "social-only@example.com",
		Role:           domain.RoleUser,
		Provider:       domain.ProviderGoogle,
		ProviderUserID: "sub-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}))

	_, err := svc.Login(ctx, "social-only@example.com", "anything", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshFlow(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "refresh@example.com", "password", "", "", "phone")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	// The refresh token is not rotated on use.
	require.Equal(t, session.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, session.User.ID, refreshed.User.ID)
}

func TestRefreshRejectsStaleToken(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "stale@example.com", "password", "", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.RefreshToken))

	_, err = svc.Refresh(ctx, session.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = svc.Refresh(ctx, "never-issued")
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestSessionCapAcrossLogins(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, "cap@example.com", "password", "", "", "device-0")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := svc.Login(ctx, "cap@example.com", "password", "device")
		require.NoError(t, err)
	}

	active, err := svc.Store.RefreshTokens().ListActiveRefreshTokens(ctx, "cap@example.com")
	require.NoError(t, err)
	require.Len(t, active, 5)

	// Six sessions were opened against a cap of five, so the very first
	// refresh token has been rotated out.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.Error(t, err)
}

func TestLogoutAll(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "logoutall@example.com", "password", "", "", "")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = svc.Login(ctx, "logoutall@example.com", "password", "")
		require.NoError(t, err)
	}

	t.Run("by user id", func(t *testing.T) {
		require.NoError(t, svc.LogoutAll(ctx, session.User.ID))

		active, err := svc.Store.RefreshTokens().ListActiveRefreshTokens(ctx, "logoutall@example.com")
		require.NoError(t, err)
		require.Empty(t, active)
	})

	t.Run("unknown identifier is a no-op", func(t *testing.T) {
		require.NoError(t, svc.LogoutAll(ctx, "nobody@example.com"))
	})
}

func TestSocialLoginCreatesUser(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"aud": "client-1",
			"sub": "sub-new",
			"email": "new-social@example.com",
			"given_name": "New",
			"family_name": "User",
			"email_verified": "true"
		}`))
	}))
	t.Cleanup(server.Close)

	svc := newAuthService(t, &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL})
	ctx := context.Background()

	session, err := svc.SocialLogin(ctx, "google", fakeIDToken, "phone")
	require.NoError(t, err)
	require.Equal(t, "new-social@example.com", session.User.Email)
	require.Equal(t, domain.ProviderGoogle, session.User.Provider)
	require.Equal(t, "sub-new", session.User.ProviderUserID)
	require.Empty(t, session.User.PasswordHash)
	require.True(t, session.User.EmailVerified)

	// A second login resolves to the same user, not a new one.
	again, err := svc.SocialLogin(ctx, "google", fakeIDToken, "phone")
	require.NoError(t, err)
	require.Equal(t, session.User.ID, again.User.ID)
}

func TestSocialLoginLinksExistingLocalAccount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"aud": "client-1",
			"sub": "sub-link",
			"email": "linked@example.com",
			"email_verified": "true"
		}`))
	}))
	t.Cleanup(server.Close)

	svc := newAuthService(t, &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL})
	ctx := context.Background()

	local, err := svc.Register(ctx, "linked@example.com", "password", "", "", "")
	require.NoError(t, err)

	social, err := svc.SocialLogin(ctx, "google", fakeIDToken, "")
	require.NoError(t, err)
	require.Equal(t, local.User.ID, social.User.ID)
	require.Equal(t, domain.ProviderGoogle, social.User.Provider)
	require.Equal(t, "sub-link", social.User.ProviderUserID)

	// The password set at registration still works after linking.
	_, err = svc.Login(ctx, "linked@example.com", "password", "")
	require.NoError(t, err)
}

func TestSocialLoginTwoUsersWithoutEmail(t *testing.T) {
	t.Parallel()

	// Facebook releases no email for some accounts; each such identity must
	// still get its own local user, a working session and a working refresh.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "` + r.URL.Query().Get("access_token") + `", "first_name": "No", "last_name": "Email"}`))
	}))
	t.Cleanup(server.Close)

	svc := newAuthService(t, &SocialService{FacebookGraphURL: server.URL})
	ctx := context.Background()

	first, err := svc.SocialLogin(ctx, "facebook", "fb-user-1", "phone")
	require.NoError(t, err)
	require.Empty(t, first.User.Email)

	second, err := svc.SocialLogin(ctx, "facebook", "fb-user-2", "phone")
	require.NoError(t, err)
	require.Empty(t, second.User.Email)
	require.NotEqual(t, first.User.ID, second.User.ID)

	// Refresh resolves each session back to its own user, not whichever
	// no-email account happened to be created first.
	refreshed, err := svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, second.User.ID, refreshed.User.ID)

	// Revoking one account's sessions leaves the other untouched.
	require.NoError(t, svc.LogoutAll(ctx, first.User.ID))
	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.Error(t, err)
	_, err = svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestSocialLoginRejectedTokenCreatesNothing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aud": "attacker-app", "sub": "sub-x", "email": "victim@example.com"}`))
	}))
	t.Cleanup(server.Close)

	svc := newAuthService(t, &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL})
	ctx := context.Background()

	_, err := svc.SocialLogin(ctx, "google", fakeIDToken, "")
	require.ErrorIs(t, err, ErrInvalidProviderToken)

	_, err = svc.Store.Users().GetUserByEmail(ctx, "victim@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSocialLoginValidation(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t, nil)
	ctx := context.Background()

	_, err := svc.SocialLogin(ctx, "", "token", "")
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.SocialLogin(ctx, "google", "  ", "")
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.SocialLogin(ctx, "myspace", "token", "")
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

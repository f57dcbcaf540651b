package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskhive/identity/internal/identity/domain"
)

// fakeIDToken has the three-segment shape that routes google resolution to
// the tokeninfo endpoint. The content is never parsed locally.
const fakeIDToken = "header.payload.signature"

func TestResolveUnsupportedProvider(t *testing.T) {
	t.Parallel()

	svc := &SocialService{}
	_, err := svc.Resolve(context.Background(), "github", "token")
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestResolveProviderCaseInsensitive(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aud":"client-1","sub":"sub-1","email":"g@example.com","email_verified":"true"}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL}

	identity, err := svc.Resolve(context.Background(), "  Google ", fakeIDToken)
	require.NoError(t, err)
	require.Equal(t, domain.ProviderGoogle, identity.Provider)
}

func TestResolveGoogleIDToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fakeIDToken, r.URL.Query().Get("id_token"))
		w.Write([]byte(`{
			"aud": "client-1",
			"sub": "google-sub-9",
			"email": "ada@example.com",
			"given_name": "Ada",
			"family_name": "Lovelace",
			"picture": "https://example.com/p.png",
			"email_verified": "true"
		}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL}

	identity, err := svc.Resolve(context.Background(), domain.ProviderGoogle, fakeIDToken)
	require.NoError(t, err)
	require.Equal(t, "google-sub-9", identity.ProviderUserID)
	require.Equal(t, "ada@example.com", identity.Email)
	require.Equal(t, "Ada", identity.FirstName)
	require.Equal(t, "Lovelace", identity.LastName)
	require.Equal(t, "https://example.com/p.png", identity.PictureURL)
	require.True(t, identity.EmailVerified)
}

func TestResolveGoogleIDTokenAudienceMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"aud":"someone-else","sub":"sub-1","email":"a@example.com"}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL}

	_, err := svc.Resolve(context.Background(), domain.ProviderGoogle, fakeIDToken)
	require.ErrorIs(t, err, ErrInvalidProviderToken)

	var perr *ProviderTokenError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Reason, "audience mismatch")
}

func TestResolveGoogleIDTokenIntrospectionError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_token","error_description":"Invalid Value"}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{GoogleClientID: "client-1", GoogleTokenInfoURL: server.URL}

	_, err := svc.Resolve(context.Background(), domain.ProviderGoogle, fakeIDToken)
	require.ErrorIs(t, err, ErrInvalidProviderToken)
}

func TestResolveGoogleAccessToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer opaque-access-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"id": "google-id-7",
			"email": "grace@example.com",
			"given_name": "Grace",
			"family_name": "Hopper",
			"verified_email": true
		}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{GoogleUserInfoURL: server.URL}

	identity, err := svc.Resolve(context.Background(), domain.ProviderGoogle, "opaque-access-token")
	require.NoError(t, err)
	require.Equal(t, "google-id-7", identity.ProviderUserID)
	require.Equal(t, "grace@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
}

func TestResolveGoogleAccessTokenMissingSubject(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"nobody@example.com"}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{GoogleUserInfoURL: server.URL}

	_, err := svc.Resolve(context.Background(), domain.ProviderGoogle, "opaque-access-token")
	require.ErrorIs(t, err, ErrInvalidProviderToken)
}

func TestResolveFacebook(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "fb-token", r.URL.Query().Get("access_token"))
		require.Equal(t, "id,email,first_name,last_name,picture", r.URL.Query().Get("fields"))
		w.Write([]byte(`{
			"id": "fb-123",
			"email": "fb@example.com",
			"first_name": "Frank",
			"last_name": "Borman",
			"picture": {"data": {"url": "https://example.com/fb.png"}}
		}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{FacebookGraphURL: server.URL}

	identity, err := svc.Resolve(context.Background(), domain.ProviderFacebook, "fb-token")
	require.NoError(t, err)
	require.Equal(t, "fb-123", identity.ProviderUserID)
	require.Equal(t, "fb@example.com", identity.Email)
	require.Equal(t, "https://example.com/fb.png", identity.PictureURL)
	require.True(t, identity.EmailVerified)
}

func TestResolveFacebookNoEmail(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "fb-456", "first_name": "No", "last_name": "Email"}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{FacebookGraphURL: server.URL}

	identity, err := svc.Resolve(context.Background(), domain.ProviderFacebook, "fb-token")
	require.NoError(t, err)
	require.Empty(t, identity.Email)
	require.False(t, identity.EmailVerified)
	require.Empty(t, identity.PictureURL)
}

func TestResolveFacebookGraphError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "Invalid OAuth access token"}}`))
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{FacebookGraphURL: server.URL}

	_, err := svc.Resolve(context.Background(), domain.ProviderFacebook, "bad-token")
	require.ErrorIs(t, err, ErrInvalidProviderToken)

	var perr *ProviderTokenError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Reason, "Invalid OAuth access token")
}

func TestResolveProviderServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	svc := &SocialService{FacebookGraphURL: server.URL}

	_, err := svc.Resolve(context.Background(), domain.ProviderFacebook, "token")
	require.ErrorIs(t, err, ErrInvalidProviderToken)
}

func TestResolveProviderUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	svc := &SocialService{FacebookGraphURL: server.URL}

	_, err := svc.Resolve(context.Background(), domain.ProviderFacebook, "token")
	require.ErrorIs(t, err, ErrInvalidProviderToken)
}

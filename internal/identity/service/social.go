package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskhive/identity/internal/identity/domain"
	"github.com/taskhive/identity/pkg/slogx"
)

// Default provider endpoints. Overridable so tests can point at a local
// httptest server.
const (
	DefaultGoogleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	DefaultGoogleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	DefaultFacebookGraphURL   = "https://graph.facebook.com/v16.0/me"
)

// DefaultProviderTimeout bounds every provider call. A timed-out call fails
// closed as an invalid provider token and is not retried.
const DefaultProviderTimeout = 5 * time.Second

var (
	ErrUnsupportedProvider  = errors.New("unsupported_provider")
	ErrInvalidProviderToken = errors.New("invalid_provider_token")
)

// ProviderTokenError wraps an invalid provider token failure with the
// provider name for diagnostics. It matches ErrInvalidProviderToken under
// errors.Is so callers can treat all provider failures uniformly without
// seeing provider-internal error shapes.
type ProviderTokenError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderTokenError) Unwrap() error { return ErrInvalidProviderToken }

// SocialService verifies and normalizes third-party tokens into a canonical
// SocialIdentity.
type SocialService struct {
	GoogleClientID string

	GoogleTokenInfoURL string
	GoogleUserInfoURL  string
	FacebookGraphURL   string

	HTTPClient *http.Client
}

func (s *SocialService) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: DefaultProviderTimeout}
}

// Resolve dispatches on the provider name (case-insensitive) and returns the
// normalized identity. Only google and facebook are recognized.
func (s *SocialService) Resolve(ctx context.Context, provider, rawToken string) (domain.SocialIdentity, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case domain.ProviderGoogle:
		return s.resolveGoogle(ctx, rawToken)
	case domain.ProviderFacebook:
		return s.resolveFacebook(ctx, rawToken)
	default:
		return domain.SocialIdentity{}, ErrUnsupportedProvider
	}
}

// resolveGoogle picks a verification strategy from the token shape: three
// dot-separated segments means a JWT ID token, anything else is treated as
// an OAuth access token.
func (s *SocialService) resolveGoogle(ctx context.Context, rawToken string) (domain.SocialIdentity, error) {
	if strings.Count(rawToken, ".") == 2 {
		return s.resolveGoogleIDToken(ctx, rawToken)
	}
	return s.resolveGoogleAccessToken(ctx, rawToken)
}

type googleTokenInfo struct {
	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`

	Aud        string `json:"aud"`
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`

	// tokeninfo reports this as the string "true"/"false".
	EmailVerified string `json:"email_verified"`
}

func (s *SocialService) resolveGoogleIDToken(ctx context.Context, idToken string) (domain.SocialIdentity, error) {
	base := s.GoogleTokenInfoURL
	if base == "" {
		base = DefaultGoogleTokenInfoURL
	}

	var info googleTokenInfo
	if err := s.getJSON(ctx, domain.ProviderGoogle, base+"?id_token="+url.QueryEscape(idToken), "", &info); err != nil {
		return domain.SocialIdentity{}, err
	}

	if info.Error != "" {
		return domain.SocialIdentity{}, &ProviderTokenError{
			Provider: domain.ProviderGoogle,
			Reason:   "token introspection rejected: " + info.Error,
		}
	}

	// Guard against token-substitution attacks: an ID token minted for a
	// different application must not authenticate here.
	if info.Aud != s.GoogleClientID {
		return domain.SocialIdentity{}, &ProviderTokenError{
			Provider: domain.ProviderGoogle,
			Reason:   "audience mismatch",
		}
	}

	return domain.SocialIdentity{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		PictureURL:     info.Picture,
		Provider:       domain.ProviderGoogle,
		EmailVerified:  info.EmailVerified == "true",
	}, nil
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	VerifiedEmail bool   `json:"verified_email"`
}

func (s *SocialService) resolveGoogleAccessToken(ctx context.Context, accessToken string) (domain.SocialIdentity, error) {
	base := s.GoogleUserInfoURL
	if base == "" {
		base = DefaultGoogleUserInfoURL
	}

	var info googleUserInfo
	if err := s.getJSON(ctx, domain.ProviderGoogle, base, accessToken, &info); err != nil {
		return domain.SocialIdentity{}, err
	}

	if info.ID == "" {
		return domain.SocialIdentity{}, &ProviderTokenError{
			Provider: domain.ProviderGoogle,
			Reason:   "userinfo response missing subject",
		}
	}

	return domain.SocialIdentity{
		ProviderUserID: info.ID,
		Email:          info.Email,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		PictureURL:     info.Picture,
		Provider:       domain.ProviderGoogle,
		EmailVerified:  info.VerifiedEmail,
	}, nil
}

type facebookUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Picture   *struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *SocialService) resolveFacebook(ctx context.Context, accessToken string) (domain.SocialIdentity, error) {
	base := s.FacebookGraphURL
	if base == "" {
		base = DefaultFacebookGraphURL
	}
	endpoint := base + "?fields=id,email,first_name,last_name,picture&access_token=" + url.QueryEscape(accessToken)

	var user facebookUser
	if err := s.getJSON(ctx, domain.ProviderFacebook, endpoint, "", &user); err != nil {
		return domain.SocialIdentity{}, err
	}

	if user.Error != nil {
		return domain.SocialIdentity{}, &ProviderTokenError{
			Provider: domain.ProviderFacebook,
			Reason:   "graph call rejected: " + user.Error.Message,
		}
	}
	if user.ID == "" {
		return domain.SocialIdentity{}, &ProviderTokenError{
			Provider: domain.ProviderFacebook,
			Reason:   "graph response missing id",
		}
	}

	picture := ""
	if user.Picture != nil {
		picture = user.Picture.Data.URL
	}

	return domain.SocialIdentity{
		ProviderUserID: user.ID,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		PictureURL:     picture,
		Provider:       domain.ProviderFacebook,
		// The graph API carries no verification flag; an email being
		// released to us at all is the closest approximation.
		EmailVerified: user.Email != "",
	}, nil
}

// getJSON performs a bounded GET against a provider endpoint and decodes the
// body. Transport failures, non-2xx statuses and undecodable bodies all
// surface as a ProviderTokenError.
func (s *SocialService) getJSON(ctx context.Context, provider, endpoint, bearer string, target any) error {
	log := slogx.FromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ProviderTokenError{Provider: provider, Reason: "build request", Err: err}
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		log.Warn("provider call failed", "provider", provider, "error", err)
		return &ProviderTokenError{Provider: provider, Reason: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	// Introspection endpoints report bad tokens with a 4xx and an error
	// body, so decode those instead of bailing on status alone.
	if resp.StatusCode >= 500 {
		log.Warn("provider call failed", "provider", provider, "status", resp.StatusCode)
		return &ProviderTokenError{
			Provider: provider,
			Reason:   fmt.Sprintf("provider returned status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &ProviderTokenError{Provider: provider, Reason: "undecodable response body", Err: err}
	}
	return nil
}

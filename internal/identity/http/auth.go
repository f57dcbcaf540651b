package http

import (
	"log/slog"
	"net/http"

	"github.com/taskhive/identity/internal/identity/domain"
	"github.com/taskhive/identity/internal/identity/service"
	"github.com/taskhive/identity/pkg/httpx"
)

// AuthHandler serves the credential endpoints: register, login and the
// social provider entry point.
type AuthHandler struct {
	Auth   *service.AuthService
	Logger *slog.Logger
}

type sessionResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	Role         string `json:"role"`
}

func newSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.ExpiresIn.Seconds()),
		UserID:       s.User.ID,
		UserEmail:    s.User.Email,
		Role:         s.User.Role,
	}
}

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	DeviceInfo string `json:"deviceInfo"`
}

// HandleRegister creates a new local account and opens a session for it.
//
//	POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}

	session, err := h.Auth.Register(r.Context(),
		req.Email, req.Password, req.FirstName, req.LastName, deviceInfo(r, req.DeviceInfo))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, newSessionResponse(session))
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo"`
}

// HandleLogin authenticates a local account.
//
//	POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}

	session, err := h.Auth.Login(r.Context(), req.Email, req.Password, deviceInfo(r, req.DeviceInfo))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

type socialLoginRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"accessToken"`
	DeviceInfo  string `json:"deviceInfo"`

	// Accepted for client convenience but ignored: identity fields always
	// come from the provider, never from the caller.
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleSocialLogin exchanges a provider token for a session, creating the
// account on first contact.
//
//	POST /social/login
func (h *AuthHandler) HandleSocialLogin(w http.ResponseWriter, r *http.Request) {
	var req socialLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}

	session, err := h.Auth.SocialLogin(r.Context(), req.Provider, req.AccessToken, deviceInfo(r, req.DeviceInfo))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

// deviceInfo prefers an explicit client label, falling back to the
// User-Agent header so refresh tokens are attributable either way.
func deviceInfo(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.UserAgent()
}

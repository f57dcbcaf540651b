package http

import (
	"log/slog"
	"net/http"

	"github.com/taskhive/identity/internal/identity/service"
	"github.com/taskhive/identity/pkg/httpx"
)

// TokenHandler serves the refresh-token lifecycle endpoints.
type TokenHandler struct {
	Auth   *service.AuthService
	Logger *slog.Logger
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh exchanges a live refresh token for a fresh access token. The
// refresh token itself is not rotated; the response echoes it back.
//
//	POST /refresh
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		writeServiceError(w, h.Logger, service.ErrMissingInput)
		return
	}

	session, err := h.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

// HandleLogout revokes the presented refresh token. Revoking a token that is
// already gone is not an error; logout is idempotent from the client's view.
//
//	POST /logout
func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		writeServiceError(w, h.Logger, service.ErrMissingInput)
		return
	}

	if err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type logoutAllRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// HandleLogoutAll revokes every active refresh token owned by the identified
// user. Accepts either a user id or an email.
//
//	POST /logout-all
func (h *TokenHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	var req logoutAllRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		errInvalidBody.WriteError(w)
		return
	}

	identifier := req.UserID
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		writeServiceError(w, h.Logger, service.ErrMissingInput)
		return
	}

	if err := h.Auth.LogoutAll(r.Context(), identifier); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

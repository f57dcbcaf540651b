package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/taskhive/identity/internal/identity/service"
	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/pkg/httpx"
)

// AuthError is the structured error envelope every failure surfaces as: a
// machine-readable code and a human message, never an unhandled fault.
type AuthError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteError writes the error to an HTTP response.
func (e *AuthError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

var (
	errInvalidBody = &AuthError{
		StatusCode: http.StatusBadRequest,
		Code:       "invalid_request_body",
		Message:    "the request body is not valid JSON for this endpoint",
	}
	errServer = &AuthError{
		StatusCode: http.StatusInternalServerError,
		Code:       "server_error",
		Message:    "an internal error occurred",
	}
)

// writeServiceError maps service-layer errors onto the wire taxonomy.
// Provider errors collapse into a single class so provider-internal error
// shapes never leak to callers.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrMissingInput):
		(&AuthError{http.StatusBadRequest, "missing_required_input", "required fields are missing"}).WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		(&AuthError{http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect"}).WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		(&AuthError{http.StatusConflict, "email_already_registered", "an account with this email already exists"}).WriteError(w)
	case errors.Is(err, store.ErrAlreadyExists):
		(&AuthError{http.StatusConflict, "already_exists", "a conflicting record already exists"}).WriteError(w)
	case errors.Is(err, service.ErrTokenExpired):
		(&AuthError{http.StatusUnauthorized, "token_expired", "the token has expired"}).WriteError(w)
	case errors.Is(err, service.ErrTokenRevoked):
		(&AuthError{http.StatusUnauthorized, "token_revoked", "the token has been revoked"}).WriteError(w)
	case errors.Is(err, service.ErrTokenMalformed):
		(&AuthError{http.StatusUnauthorized, "token_malformed", "the token is not valid"}).WriteError(w)
	case errors.Is(err, service.ErrUnsupportedProvider):
		(&AuthError{http.StatusBadRequest, "unsupported_provider", "the social provider is not supported"}).WriteError(w)
	case errors.Is(err, service.ErrInvalidProviderToken):
		log.Warn("provider token rejected", "error", err)
		(&AuthError{http.StatusUnauthorized, "invalid_provider_token", "the provider token could not be verified"}).WriteError(w)
	default:
		log.Error("unhandled service error", "error", err)
		errServer.WriteError(w)
	}
}

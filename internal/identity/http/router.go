// Package http carries the REST surface of the identity service: the
// credential and token endpoints, key publication, and the system probes.
// Routing is plain net/http with method-qualified patterns.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/taskhive/identity/internal/identity/service"
	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/pkg/httpx"
	"github.com/taskhive/identity/pkg/jwtx"
	"github.com/taskhive/identity/pkg/slogx"
)

// Router owns the mux and the handler set. Construct with NewRouter, then
// call ApplyRoutes before serving.
type Router struct {
	Mux *http.ServeMux

	auth   *AuthHandler
	tokens *TokenHandler
	keys   *KeyHandler
	system *SystemHandler

	logger *slog.Logger
}

func NewRouter(auth *service.AuthService, codec *jwtx.Codec, st store.Store, version string, logger *slog.Logger) *Router {
	return &Router{
		Mux:    http.NewServeMux(),
		auth:   &AuthHandler{Auth: auth, Logger: logger},
		tokens: &TokenHandler{Auth: auth, Logger: logger},
		keys:   &KeyHandler{Codec: codec, Logger: logger},
		system: &SystemHandler{Store: st, Version: version, StartTime: time.Now()},
		logger: logger,
	}
}

// ApplyRoutes registers every endpoint with its per-route rate limit.
// Credential endpoints get the strict tier since each request costs a
// password hash or an outbound provider call; token lifecycle endpoints get
// the moderate tier; read-only key and probe endpoints are effectively open.
func (rt *Router) ApplyRoutes() {
	strict := httpx.RateLimitByIP(httpx.StrictLimit)
	moderate := httpx.RateLimitByIP(httpx.ModerateLimit)
	public := httpx.RateLimitByIP(httpx.PublicLimit)

	rt.handle("POST /register", rt.auth.HandleRegister, strict)
	rt.handle("POST /login", rt.auth.HandleLogin, strict)
	rt.handle("POST /social/login", rt.auth.HandleSocialLogin, strict)

	rt.handle("POST /refresh", rt.tokens.HandleRefresh, moderate)
	rt.handle("POST /logout", rt.tokens.HandleLogout, moderate)
	rt.handle("POST /logout-all", rt.tokens.HandleLogoutAll, moderate)

	rt.handle("GET /public-key", rt.keys.HandlePublicKey, public)
	rt.handle("GET /.well-known/jwks.json", rt.keys.HandleJWKS, public)

	rt.handle("GET /livez", rt.system.HandleLivez, public)
	rt.handle("GET /readyz", rt.system.HandleReadyz, public)
}

func (rt *Router) handle(pattern string, h http.HandlerFunc, middlewares ...httpx.Middleware) {
	rt.Mux.Handle(pattern, httpx.Chain(h, middlewares...))
}

// Handler returns the full stack: request logging wraps the mux so every
// route, including 404s, is accounted for.
func (rt *Router) Handler() http.Handler {
	return httpx.Chain(rt.Mux, slogx.HTTPMiddleware(rt.logger))
}

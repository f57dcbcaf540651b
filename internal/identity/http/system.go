package http

import (
	"net/http"
	"time"

	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/pkg/httpx"
)

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	Store     store.Store
	Version   string
	StartTime time.Time
}

// HandleLivez reports process liveness.
//
//	GET /livez
func (h *SystemHandler) HandleLivez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.Version,
		"uptime":  time.Since(h.StartTime).Round(time.Second).String(),
	})
}

// HandleReadyz reports whether the service can take traffic, which in
// practice means the database answers a ping.
//
//	GET /readyz
func (h *SystemHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package health exposes a minimal net/http diagnostics endpoint: driver
// connection status and a few gateway-internal gauges (page epoch, shadow
// table size). Grounded in the teacher's pkg/api/handlers.HealthHandler,
// reduced to the one surface this gateway actually needs — there is no
// Kubernetes liveness/readiness split here, just "is the gateway up and
// what does it see."
package health

import (
	"encoding/json"
	"net/http"
)

// DriverStatus is what one driver reports for the diagnostics payload.
type DriverStatus struct {
	App    string `json:"app"`
	Status string `json:"status"`
}

// Snapshot is a point-in-time view of the gateway's internal state,
// gathered by the caller (the Router) and handed to the Handler on each
// request rather than polled by the Handler itself.
type Snapshot struct {
	PageEpoch   uint64         `json:"page_epoch"`
	ActivePage  string         `json:"active_page"`
	ShadowCount int            `json:"shadow_count"`
	Drivers     []DriverStatus `json:"drivers"`
}

// SnapshotFunc produces the current Snapshot on demand.
type SnapshotFunc func() Snapshot

// Handler serves GET /healthz and GET /debug/state.
type Handler struct {
	snapshot SnapshotFunc
}

// NewHandler constructs a Handler backed by snapshot.
func NewHandler(snapshot SnapshotFunc) *Handler {
	return &Handler{snapshot: snapshot}
}

// Mux returns a *http.ServeMux with both endpoints registered, ready to be
// wrapped in an *http.Server by the caller.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/debug/state", h.DebugState)
	return mux
}

// Healthz always returns 200 OK: the process is alive if it can answer at
// all. There is no separate readiness probe because the gateway has no
// dependency (database, upstream service) whose absence should take it
// out of a load-balancer rotation — it either has a surface endpoint open
// or it doesn't, and that's visible in /debug/state instead.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DebugState returns the current Snapshot as JSON.
func (h *Handler) DebugState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes - setups http routes
func (a *API) setupRoutes() {
	// System Health
	a.mux.HandleFunc("GET /health", a.routes.health.HealthCheck)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	// Sessions
	a.mux.HandleFunc("GET /sessions", a.routes.session.List)
	a.mux.HandleFunc("GET /sessions/{id}", a.routes.session.Get)
	a.mux.HandleFunc("POST /sessions/{id}/pause", a.routes.session.Pause)
	a.mux.HandleFunc("POST /sessions/{id}/resume", a.routes.session.Resume)
	a.mux.HandleFunc("POST /sessions/{id}/stop", a.routes.session.Stop)

	// History
	a.mux.HandleFunc("GET /history", a.routes.history.List)
	a.mux.HandleFunc("GET /history/stats", a.routes.history.Stats)
	a.mux.HandleFunc("GET /history/{id}/ticks", a.routes.history.Ticks)

	// Live progress
	a.mux.HandleFunc("GET /ws/sessions/{id}", a.routes.live.Subscribe)
}

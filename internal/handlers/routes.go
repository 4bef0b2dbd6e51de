package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// Router bundles the handlers the HTTP API is built from
type Router struct {
	Middleware *Middleware
	Auth       *AuthHandler
	Dashboard  *DashboardHandler
	Care       *CareHandler
	Health     *HealthHandler
	Logger     *zap.Logger
}

// Handler registers every route and wraps the mux with request logging
func (rt Router) Handler() http.Handler {
	m := rt.Middleware
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.Health.Health)

	mux.HandleFunc("POST /api/login", m.RateLimit(rt.Auth.Login))
	mux.HandleFunc("GET /api/me", m.RequireAuth(rt.Auth.Me))

	mux.HandleFunc("GET /api/dashboard", m.RequireAuth(rt.Dashboard.Dashboard))
	mux.HandleFunc("GET /api/stream", m.RequireAuth(rt.Dashboard.Stream))
	mux.HandleFunc("GET /api/seniors", m.RequireAuth(rt.Dashboard.Seniors))
	mux.HandleFunc("GET /api/seniors/{id}", m.RequireAuth(rt.Dashboard.Senior))
	mux.HandleFunc("GET /api/tasks", m.RequireAuth(rt.Dashboard.Tasks))
	mux.HandleFunc("GET /api/routines", m.RequireAuth(rt.Dashboard.Routines))

	mux.HandleFunc("POST /api/tasks", m.RequireAuth(rt.Care.CreateTask))
	mux.HandleFunc("POST /api/tasks/{id}/status", m.RequireAuth(rt.Care.SetTaskStatus))
	mux.HandleFunc("POST /api/alerts/{id}/resolve", m.RequireAuth(rt.Care.ResolveAlert))
	mux.HandleFunc("POST /api/assignments", m.RequireAuth(rt.Care.Assign))
	mux.HandleFunc("DELETE /api/assignments/{seniorId}", m.RequireAuth(rt.Care.Unassign))

	logger := rt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return Logging(logger, mux)
}

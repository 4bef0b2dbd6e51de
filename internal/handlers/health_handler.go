package handlers

import (
	"net/http"
	"sync"

	"carecircle/internal/feed"
)

// Startup step names, in order
const (
	StepDatabase   = "Database connection"
	StepMigrations = "Running migrations"
	StepServices   = "Initializing services"
	StepServing    = "Server ready"
)

// StartupStep is one stage of server initialization
type StartupStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// StartupStatus tracks initialization progress
type StartupStatus struct {
	mu       sync.RWMutex
	ready    bool
	current  string
	progress int
	steps    []StartupStep
}

// NewStartupStatus creates a tracker with the given steps, none completed
func NewStartupStatus(steps ...string) *StartupStatus {
	s := &StartupStatus{current: "Initializing..."}
	for _, name := range steps {
		s.steps = append(s.steps, StartupStep{Name: name})
	}
	return s
}

// SetCurrentStep updates the current initialization step
func (s *StartupStatus) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// CompleteStep marks a step as completed and updates progress
func (s *StartupStatus) CompleteStep(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	for i := range s.steps {
		if s.steps[i].Name == name {
			s.steps[i].Completed = true
		}
		if s.steps[i].Completed {
			completed++
		}
	}
	if len(s.steps) > 0 {
		s.progress = completed * 100 / len(s.steps)
	}
}

// MarkReady marks the server as fully initialized
func (s *StartupStatus) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.current = StepServing
	s.progress = 100
}

// IsReady returns whether the server is fully initialized
func (s *StartupStatus) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

type healthResponse struct {
	Ready          bool          `json:"ready"`
	Current        string        `json:"current"`
	Progress       int           `json:"progress"`
	Steps          []StartupStep `json:"steps"`
	Feed           *feed.Stats   `json:"feed,omitempty"`
	ActiveSessions int           `json:"active_sessions"`
}

// HealthHandler reports startup progress and live feed activity
type HealthHandler struct {
	status   *StartupStatus
	stats    func() feed.Stats
	sessions func() int
}

// NewHealthHandler creates a health handler. stats and sessions may be nil.
func NewHealthHandler(status *StartupStatus, stats func() feed.Stats, sessions func() int) *HealthHandler {
	return &HealthHandler{status: status, stats: stats, sessions: sessions}
}

// Health answers 200 once ready and 503 while starting
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.status.mu.RLock()
	resp := healthResponse{
		Ready:    h.status.ready,
		Current:  h.status.current,
		Progress: h.status.progress,
		Steps:    append([]StartupStep(nil), h.status.steps...),
	}
	h.status.mu.RUnlock()

	if h.stats != nil {
		st := h.stats()
		resp.Feed = &st
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions()
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp)
}

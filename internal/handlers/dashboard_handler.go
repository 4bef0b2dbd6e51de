package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"carecircle/internal/service"
)

// keepAliveInterval spaces SSE comments that keep idle proxies from closing
// the stream
const keepAliveInterval = 15 * time.Second

// DashboardHandler serves the read screens of a care manager
type DashboardHandler struct {
	dashboard *service.DashboardService
	logger    *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	return n, nil
}

// Dashboard returns counters, the recent preview and upcoming items
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	limit, err := parseLimit(r)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid limit", "", err)
		return
	}

	view, err := h.dashboard.Dashboard(r.Context(), user.ID, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, "Error loading dashboard", err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// Seniors returns one summary per assigned senior
func (h *DashboardHandler) Seniors(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	seniors, err := h.dashboard.Seniors(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Error loading seniors", err)
		return
	}
	respondWithJSON(w, http.StatusOK, seniors)
}

// Senior returns the detail of one assigned senior
func (h *DashboardHandler) Senior(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	detail, err := h.dashboard.Senior(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Error loading senior", err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

// Tasks returns tasks grouped by status bucket, optionally one bucket only
func (h *DashboardHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	view, err := h.dashboard.Tasks(r.Context(), user.ID, r.URL.Query().Get("status"))
	if err != nil {
		respondWithServiceError(w, h.logger, "Error loading tasks", err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// Routines returns routine items
func (h *DashboardHandler) Routines(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	routines, err := h.dashboard.Routines(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Error loading routines", err)
		return
	}
	respondWithJSON(w, http.StatusOK, routines)
}

// Stream sends the dashboard as server-sent events: once on connect and
// again after every change, until the client goes away.
func (h *DashboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	limit, err := parseLimit(r)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid limit", "", err)
		return
	}

	sess, err := h.dashboard.Session(r.Context(), user.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, "Error opening dashboard stream", err)
		return
	}
	changes, unsubscribe := sess.Changes()
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// the server write timeout would cut the stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("cannot clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() error {
		view := h.dashboard.DashboardOf(sess, limit)
		data, err := json.Marshal(view)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: dashboard\nid: %d\ndata: %s\n\n", view.Version, data); err != nil {
			return err
		}
		return rc.Flush()
	}
	if err := send(); err != nil {
		h.logger.Debug("stream closed", zap.Error(err))
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-changes:
			err = send()
		case <-keepAlive.C:
			if _, err = fmt.Fprint(w, ": keep-alive\n\n"); err == nil {
				err = rc.Flush()
			}
		}
		if err != nil {
			h.logger.Debug("stream closed", zap.Int64("user_id", user.ID), zap.Error(err))
			return
		}
	}
}

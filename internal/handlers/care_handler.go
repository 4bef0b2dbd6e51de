package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"carecircle/internal/service"
)

// CareHandler handles writes a care manager makes to care records
type CareHandler struct {
	care   *service.CareService
	logger *zap.Logger
}

// NewCareHandler creates a new care handler
func NewCareHandler(care *service.CareService, logger *zap.Logger) *CareHandler {
	return &CareHandler{care: care, logger: logger}
}

type statusRequest struct {
	Status string `json:"status"`
}

type assignRequest struct {
	SeniorID string `json:"senior_id"`
}

// CreateTask adds a task for an assigned senior
func (h *CareHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var in service.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, "", err)
		return
	}

	item, err := h.care.CreateTask(r.Context(), user.ID, in)
	if err != nil {
		respondWithServiceError(w, h.logger, "Error creating task", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, item)
}

// SetTaskStatus changes a task's status
func (h *CareHandler) SetTaskStatus(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, "", err)
		return
	}

	if err := h.care.SetTaskStatus(r.Context(), user.ID, r.PathValue("id"), req.Status); err != nil {
		respondWithServiceError(w, h.logger, "Error updating task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveAlert marks an alert resolved
func (h *CareHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if err := h.care.ResolveAlert(r.Context(), user.ID, r.PathValue("id")); err != nil {
		respondWithServiceError(w, h.logger, "Error resolving alert", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assign puts a senior under the caller's care
func (h *CareHandler) Assign(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, ErrInvalidJSON, "", err)
		return
	}

	if err := h.care.Assign(r.Context(), user.ID, req.SeniorID); err != nil {
		respondWithServiceError(w, h.logger, "Error assigning senior", err)
		return
	}
	h.logger.Info("senior assigned", zap.Int64("user_id", user.ID), zap.String("senior_id", req.SeniorID))
	w.WriteHeader(http.StatusNoContent)
}

// Unassign removes a senior from the caller's care
func (h *CareHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	seniorID := r.PathValue("seniorId")
	if err := h.care.Unassign(r.Context(), user.ID, seniorID); err != nil {
		respondWithServiceError(w, h.logger, "Error unassigning senior", err)
		return
	}
	h.logger.Info("senior unassigned", zap.Int64("user_id", user.ID), zap.String("senior_id", seniorID))
	w.WriteHeader(http.StatusNoContent)
}

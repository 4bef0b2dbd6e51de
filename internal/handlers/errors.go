package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"carecircle/internal/security"
	"carecircle/internal/service"
	"carecircle/internal/validation"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, logger *zap.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		if status >= http.StatusInternalServerError {
			logger.Error(logMsg, zap.Error(err))
		} else {
			logger.Debug(logMsg, zap.Error(err))
		}
	}

	respondWithJSON(w, status, errorBody{Error: userMsg})
}

// respondWithServiceError maps service errors onto status codes
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, logMsg string, err error) {
	var verr validation.Error
	switch {
	case errors.As(err, &verr):
		logger.Debug(logMsg, zap.Error(err))
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, service.ErrAssignmentsUnavailable):
		respondWithError(w, logger, http.StatusServiceUnavailable, ErrUnableToLoad, logMsg, err)
	case errors.Is(err, service.ErrSeniorNotAssigned):
		respondWithError(w, logger, http.StatusForbidden, "Senior is not assigned to you", logMsg, err)
	case errors.Is(err, service.ErrSeniorNotFound), errors.Is(err, service.ErrRecordNotFound):
		respondWithError(w, logger, http.StatusNotFound, "Not found", logMsg, err)
	case errors.Is(err, service.ErrInvalidBucket):
		respondWithError(w, logger, http.StatusBadRequest, "Unknown status bucket", logMsg, err)
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, logger, http.StatusUnauthorized, "Invalid email or password", logMsg, err)
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, service.ErrUserNotFound):
		respondWithError(w, logger, http.StatusUnauthorized, ErrUnauthorized, logMsg, err)
	default:
		respondWithError(w, logger, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
	}
}

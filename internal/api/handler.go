// Package api provides HTTP handlers for the DSA Quest API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/dsa-quest/internal/backup"
	"github.com/ashureev/dsa-quest/internal/catalog"
	"github.com/ashureev/dsa-quest/internal/identity"
	"github.com/ashureev/dsa-quest/internal/inference"
	"github.com/ashureev/dsa-quest/internal/interview"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 256 << 10

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps a domain error to its HTTP status and a stable error code.
func StatusFor(err error) (int, string) {
	var (
		quota     *inference.QuotaExceededError
		output    *inference.ModelOutputError
		transient *inference.TransientNetworkError
	)
	switch {
	case errors.Is(err, inference.ErrNoCredential):
		return http.StatusPreconditionFailed, "no_credential"
	case errors.As(err, &quota):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.As(err, &output):
		return http.StatusBadGateway, "model_output"
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable, "inference_unavailable"
	case errors.Is(err, interview.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, interview.ErrInterviewOver):
		return http.StatusConflict, "interview_over"
	case errors.Is(err, interview.ErrSessionNotFound),
		errors.Is(err, catalog.ErrModuleNotFound),
		errors.Is(err, catalog.ErrLevelNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, interview.ErrLevelLocked):
		return http.StatusForbidden, "level_locked"
	case errors.Is(err, interview.ErrEmptyTurn):
		return http.StatusBadRequest, "empty_turn"
	case errors.Is(err, backup.ErrDisabled):
		return http.StatusNotImplemented, "backup_disabled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError maps err to a response. Internal errors are logged and not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"learner_id", identity.LearnerIDFromContext(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	JSON(w, status, errorBody{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func learnerID(r *http.Request) string {
	return identity.LearnerIDFromContext(r.Context())
}

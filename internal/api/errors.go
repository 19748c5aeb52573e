// internal/api/errors.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "office-affinity/internal/common/errors"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

// StatusFor maps an application error code to an HTTP status.
func StatusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidProfile, apperrors.ErrCodeInvalidDeclaration, apperrors.ErrCodeConfiguration:
		return http.StatusBadRequest
	case apperrors.ErrCodeImmutableHistory, apperrors.ErrCodeSessionNotConnected:
		return http.StatusConflict
	case apperrors.ErrCodeAuth, apperrors.ErrCodeProvider, apperrors.ErrCodeSync:
		return http.StatusBadGateway
	case apperrors.ErrCodeStore, apperrors.ErrCodeSyncCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Code: "INTERNAL_ERROR", Message: "internal error"}

	var se *apperrors.StandardError
	if errors.As(err, &se) {
		body = errorBody{Code: string(se.Code), Message: se.Message, Details: se.Details, Retryable: se.Retryable}
	}

	fields := map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
		"error":  err,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", fields)
	} else {
		s.logger.Warn("Request rejected", fields)
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

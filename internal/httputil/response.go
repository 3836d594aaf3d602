package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"statusCode"`
	Fields     any    `json:"fields,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// RespondError sends a JSON error response with the given message and status code.
func RespondError(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, ErrorResponse{Error: message, StatusCode: statusCode}, statusCode)
}

// RespondErrorWithCode sends a JSON error response with a machine-readable error code.
func RespondErrorWithCode(w http.ResponseWriter, message string, code string, statusCode int) {
	RespondJSON(w, ErrorResponse{Error: message, Code: code, StatusCode: statusCode}, statusCode)
}

// RespondValidationError sends a 400 with per-field messages.
// fields is typically an ozzo-validation Errors map.
func RespondValidationError(w http.ResponseWriter, fields any) {
	RespondJSON(w, ErrorResponse{
		Error:      "validation failed",
		Code:       CodeValidationFailed,
		StatusCode: http.StatusBadRequest,
		Fields:     fields,
	}, http.StatusBadRequest)
}

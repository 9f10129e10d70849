package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse represents a JSON error response. Error carries a stable
// machine-readable code; Message is human-readable.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent at this point; all we can do is log.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	}
	WriteJSON(w, status, resp)
}

package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse is the error envelope every failed request resolves to.
// Message is a string, or a list of strings for validation failures.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    any    `json:"message"`
	Error      string `json:"error"`
}

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// RespondError sends a JSON error response with the given message and status code.
func RespondError(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, ErrorResponse{
		StatusCode: statusCode,
		Message:    message,
		Error:      http.StatusText(statusCode),
	}, statusCode)
}

// RespondValidationError sends a 400 with one message per failed check.
func RespondValidationError(w http.ResponseWriter, messages []string) {
	RespondJSON(w, ErrorResponse{
		StatusCode: http.StatusBadRequest,
		Message:    messages,
		Error:      http.StatusText(http.StatusBadRequest),
	}, http.StatusBadRequest)
}

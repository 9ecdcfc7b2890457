package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse is the uniform failure body every handler produces.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
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

// RespondError sends a normalized failure body with the given status code.
func RespondError(w http.ResponseWriter, message string, statusCode int) {
	RespondJSON(w, ErrorResponse{Success: false, Message: message}, statusCode)
}

// RespondNormalizedError funnels an arbitrary failure through Normalize
// and writes the result. This is the single last step before the client
// sees any error.
func RespondNormalizedError(w http.ResponseWriter, err error) {
	status, message := Normalize(err)
	RespondError(w, message, status)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Health handles GET /api/health. It needs no session and never calls the
// backend; the breaker state tells whether recent backend calls succeeded.
func (c *Console) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if c.breaker.State() == "open" {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:       status,
		Version:      Version,
		Backend:      c.cfg.Backend.BaseURL,
		Breaker:      c.breaker.State(),
		LiveSessions: c.sessions.Live(),
	})
}

// Helper functions

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

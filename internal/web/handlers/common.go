// Package handlers implements the HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/media-dedup/internal/fingerprint"
	"github.com/kozaktomas/media-dedup/internal/frames"
	"github.com/kozaktomas/media-dedup/internal/media"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps pipeline errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, frames.ErrUnsupportedMedia),
		errors.Is(err, fingerprint.ErrDecode),
		errors.Is(err, media.ErrNoFrames),
		errors.Is(err, media.ErrIncompleteHashes),
		errors.Is(err, media.ErrInconsistentShape):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fingerprint.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

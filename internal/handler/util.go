// Package handler exposes the HTTP surface of the knowledge-graph server.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/capitalize-ai/knowledge-graph/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response, optionally with details.
func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	payload := map[string]string{"error": message}
	if len(details) > 0 && details[0] != "" {
		payload["details"] = details[0]
	}
	writeJSON(w, status, payload)
}

// writeStoreError maps store sentinel errors onto the HTTP surface. Unknown
// rows and foreign rows both read as not found, so ownership is never
// revealed by probing.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// noStore marks a mutating response uncacheable.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

// queryLimit parses ?limit= with a default and an upper bound.
func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

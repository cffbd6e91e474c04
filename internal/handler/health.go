package handler

import (
	"net/http"

	"github.com/capitalize-ai/knowledge-graph/internal/events"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
)

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	store      *store.Store
	events     *events.Client // nil when eventing is disabled
	llmName    string
	vectorMode string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(s *store.Store, eventsClient *events.Client, llmName, vectorMode string) *HealthHandler {
	return &HealthHandler{
		store:      s,
		events:     eventsClient,
		llmName:    llmName,
		vectorMode: vectorMode,
	}
}

// Ping handles GET /api/ping.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health handles GET /api/health. The database is the only hard dependency;
// a disconnected event stream degrades the report without failing it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	checks := map[string]string{
		"llm":    h.llmName,
		"vector": h.vectorMode,
	}

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = "down"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.events == nil:
		checks["events"] = "disabled"
	case h.events.IsConnected():
		checks["events"] = "ok"
	default:
		checks["events"] = "down"
		if status == "healthy" {
			status = "degraded"
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

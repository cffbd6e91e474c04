package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/processor"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
)

// ProcessorHandler exposes the deferred processor over HTTP.
type ProcessorHandler struct {
	processor *processor.Processor
	store     *store.Store
	log       *logger.Logger
}

// NewProcessorHandler creates a new processor handler.
func NewProcessorHandler(p *processor.Processor, s *store.Store, log *logger.Logger) *ProcessorHandler {
	return &ProcessorHandler{processor: p, store: s, log: log}
}

// Run handles POST /api/processor/run. A run racing an active one is
// reported, not queued.
func (h *ProcessorHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.processor.Run(r.Context())
	if errors.Is(err, processor.ErrRunInProgress) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_running"})
		return
	}
	if err != nil {
		h.log.Error("processor run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processor run failed")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, result)
}

// Pending handles GET /api/processor/pending: how many conversations await
// classification, and which ones the next run would pick up.
func (h *ProcessorHandler) Pending(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountPendingConversations(r.Context())
	if err != nil {
		h.log.Error("counting pending conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count pending conversations")
		return
	}
	eligible, err := h.processor.Pending(r.Context())
	if err != nil {
		h.log.Error("listing eligible conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pending conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":         count,
		"conversations": eligible,
	})
}

// Logs handles GET /api/processor/logs.
func (h *ProcessorHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 200)

	logs, err := h.store.GetProcessingLogs(r.Context(), limit)
	if err != nil {
		h.log.Error("reading processing logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

// Stats handles GET /api/processor/stats.
func (h *ProcessorHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetProcessorStats(r.Context())
	if err != nil {
		h.log.Error("reading processor stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

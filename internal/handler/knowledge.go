package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/middleware"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/pipeline"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
)

// KnowledgeHandler serves semantic search and external ingestion.
type KnowledgeHandler struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	log      *logger.Logger
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(p *pipeline.Pipeline, s *store.Store, log *logger.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{pipeline: p, store: s, log: log}
}

// Search handles POST /api/knowledge/search.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req model.KnowledgeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.pipeline.SearchKnowledge(r.Context(), &req)
	if err != nil {
		h.log.Error("semantic search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, model.KnowledgeSearchResponse{Results: results})
}

// Add handles POST /api/knowledge/add: the ingestion surface for external
// collaborators (email ingestion, imports).
func (h *KnowledgeHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req model.KnowledgeAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.pipeline.IngestKnowledge(r.Context(), &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.log.Error("ingesting knowledge", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add knowledge")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/knowledge/{insightID}.
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	insightID := chi.URLParam(r, "insightID")

	if err := h.pipeline.RemoveKnowledge(r.Context(), insightID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "insight not found")
			return
		}
		h.log.Error("deleting insight", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete insight")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Stats handles GET /api/knowledge/stats/{userID}.
func (h *KnowledgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.store.GetKnowledgeStats(r.Context(), userID)
	if err != nil {
		h.log.Error("reading knowledge stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

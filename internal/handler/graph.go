package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/middleware"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
)

// GraphHandler serves the visualization and topic endpoints.
type GraphHandler struct {
	store *store.Store
	log   *logger.Logger
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(s *store.Store, log *logger.Logger) *GraphHandler {
	return &GraphHandler{store: s, log: log}
}

// UserMap handles GET /api/graph/user/{userID}/map.
func (h *GraphHandler) UserMap(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.store.GetUserKnowledgeMap(r.Context(), userID)
	if err != nil {
		h.log.Error("building user knowledge map", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build knowledge map")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UserTopics handles GET /api/graph/user/{userID}/topics.
func (h *GraphHandler) UserTopics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	topics, err := h.store.GetUserTopics(r.Context(), userID)
	if err != nil {
		h.log.Error("listing user topics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": topics})
}

// UserFull handles GET /api/graph/user/{userID}/full: the map plus raw
// conversation and insight rows, for clients that render everything.
func (h *GraphHandler) UserFull(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	m, err := h.store.GetUserKnowledgeMap(ctx, userID)
	if err != nil {
		h.log.Error("building user knowledge map", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build knowledge map")
		return
	}
	conversations, err := h.store.ListUserConversations(ctx, userID, 50)
	if err != nil {
		h.log.Error("listing conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	insights, err := h.store.GetRecentUserInsights(ctx, userID, 100)
	if err != nil {
		h.log.Error("listing insights", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load insights")
		return
	}

	writeJSON(w, http.StatusOK, model.UserGraphFull{
		Map:           *m,
		Conversations: conversations,
		Insights:      insights,
	})
}

// Global handles GET /api/graph/global.
func (h *GraphHandler) Global(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetGlobalKnowledgeMap(r.Context())
	if err != nil {
		h.log.Error("building global knowledge map", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build knowledge map")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Suggestions handles GET /api/graph/suggestions?topics=a,b&limit=n.
func (h *GraphHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("topics")
	names := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, "topics are required")
		return
	}
	limit := queryLimit(r, 5, 20)

	suggestions, err := h.store.GetSuggestedTopics(r.Context(), names, limit)
	if err != nil {
		h.log.Error("ranking topic suggestions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// LinkTopics handles POST /api/graph/link-topics. Topics are resolved by
// name, created when missing, and the edge between them is reinforced.
func (h *GraphHandler) LinkTopics(w http.ResponseWriter, r *http.Request) {
	var req model.LinkTopicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTopicName(req.Topic1); err != nil {
		writeError(w, http.StatusBadRequest, "topic1: "+err.Error())
		return
	}
	if err := middleware.ValidateTopicName(req.Topic2); err != nil {
		writeError(w, http.StatusBadRequest, "topic2: "+err.Error())
		return
	}
	if model.NormalizeTopicName(req.Topic1) == model.NormalizeTopicName(req.Topic2) {
		writeError(w, http.StatusBadRequest, "cannot link a topic to itself")
		return
	}
	ctx := r.Context()

	source, err := h.store.GetOrCreateTopic(ctx, req.Topic1, "")
	if err != nil {
		h.log.Error("resolving topic", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve topic")
		return
	}
	target, err := h.store.GetOrCreateTopic(ctx, req.Topic2, "")
	if err != nil {
		h.log.Error("resolving topic", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve topic")
		return
	}

	strength := req.Strength
	if strength <= 0 || strength > 1 {
		strength = 0.5
	}
	relation, err := h.store.LinkTopics(ctx, source.ID, target.ID, strength)
	if err != nil {
		h.log.Error("linking topics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to link topics")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"relation": relation,
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/middleware"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/pipeline"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

// ChatHandler handles the conversational endpoints.
type ChatHandler struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	log      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(p *pipeline.Pipeline, s *store.Store, log *logger.Logger) *ChatHandler {
	return &ChatHandler{pipeline: p, store: s, log: log}
}

// Send handles POST /api/chat/send.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateChatMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.pipeline.Send(r.Context(), &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.log.Error("chat turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, resp)
}

// Stream handles POST /api/chat/stream: the same turn as Send, delivered as
// data-only SSE frames.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var req model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateChatMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	frames, err := h.pipeline.SendStream(r.Context(), &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.log.Error("starting chat stream failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	for frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			h.log.Error("encoding stream frame", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the pipeline notices via the request context.
			return
		}
		flusher.Flush()
	}
}

// PIIConsent handles POST /api/chat/pii-consent.
func (h *ChatHandler) PIIConsent(w http.ResponseWriter, r *http.Request) {
	var req model.PIIConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blocked, err := h.pipeline.ApplyPIIConsent(r.Context(), req.ConversationID, req.Consent)
	if err != nil {
		writeStoreError(w, err, "conversation not found")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, model.PIIConsentResponse{
		Success:              true,
		GlobalSharingBlocked: blocked,
	})
}

// History handles GET /api/chat/history/{userID}.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := queryLimit(r, 20, 100)

	conversations, err := h.store.ListUserConversations(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("listing conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

// Context handles GET /api/chat/context/{userID}: a debug view of the
// prompt context the next turn would receive. An optional ?q= exercises
// semantic recall.
func (h *ChatHandler) Context(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bundle, err := h.pipeline.AssembleContext(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error("assembling context", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to assemble context")
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}

// Status handles GET /api/chat/status/{conversationID}.
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		writeStoreError(w, err, "conversation not found")
		return
	}
	if conv.Deleted {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	status := model.ConversationStatus{
		ConversationID:   conv.ID,
		Processed:        conv.Processed,
		IsUseful:         conv.IsUseful,
		UsefulnessReason: conv.UsefulnessReason,
	}
	if entry, err := h.store.GetProcessingLogForConversation(r.Context(), conversationID); err == nil {
		status.ProcessingLog = entry
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Warn("reading processing log", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, status)
}

// Delete handles DELETE /api/chat/{conversationID}: removal from the
// owner's graph, not global erasure.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pipeline.DeleteConversation(r.Context(), conversationID, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.log.Error("deleting conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Package pipeline orchestrates chat turns against the knowledge graph:
// context assembly, classification, LLM completion, persistence and the
// PII consent gate. Insight extraction never happens here; the deferred
// processor owns all graph writes derived from conversations.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/events"
	"github.com/capitalize-ai/knowledge-graph/internal/llm"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/internal/vector"
	"github.com/capitalize-ai/knowledge-graph/pkg/logger"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

// Context assembly limits.
const (
	personalInsightLimit = 15
	globalSummaryLimit   = 15
	globalInsightLimit   = 15
	relatedInsightLimit  = 3
	suggestedTopicLimit  = 5
)

// LLM is the slice of the language-model surface the pipeline uses.
type LLM interface {
	ClassifyQuery(ctx context.Context, text string) llm.Classification
	Chat(ctx context.Context, messages []llm.ChatMessage, contextBlock string, length llm.ResponseLength) (string, error)
	ChatStream(ctx context.Context, messages []llm.ChatMessage, contextBlock string, length llm.ResponseLength, callback llm.StreamCallback) (string, error)
	DetectPII(ctx context.Context, userQuery, assistantResponse string) model.PIIDetection
}

// Config tunes the semantic-recall section of context assembly.
type Config struct {
	VectorTopK     int
	VectorMinScore float64
}

// Pipeline handles chat turns and knowledge ingestion.
type Pipeline struct {
	store  *store.Store
	llm    LLM
	index  vector.Index
	events *events.Publisher
	log    *logger.Logger

	vectorTopK     int
	vectorMinScore float64
}

// New creates a pipeline. pub may be nil when eventing is disabled.
func New(s *store.Store, llmClient LLM, index vector.Index, pub *events.Publisher, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.VectorTopK <= 0 {
		cfg.VectorTopK = 3
	}
	if cfg.VectorMinScore <= 0 {
		cfg.VectorMinScore = 0.5
	}
	if index == nil {
		index = vector.Disabled{}
	}
	return &Pipeline{
		store:          s,
		llm:            llmClient,
		index:          index,
		events:         pub,
		log:            log,
		vectorTopK:     cfg.VectorTopK,
		vectorMinScore: cfg.VectorMinScore,
	}
}

// turn is the per-request state shared by the blocking and streaming paths.
type turn struct {
	conv    *model.Conversation
	query   string
	history []llm.ChatMessage
	bundle  *model.ContextBundle
	block   string
	class   llm.Classification
}

// beginTurn runs everything that precedes the completion: user and
// conversation resolution, persistence of the user turn, context assembly
// and classification. The user message is persisted before any model call
// so history keeps the turn even when the completion fails.
func (p *Pipeline) beginTurn(ctx context.Context, req *model.SendRequest) (*turn, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != model.RoleUser || last.Content == "" {
		return nil, fmt.Errorf("final message must be a non-empty user turn")
	}

	if _, err := p.store.EnsureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	conv, err := p.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, err := p.store.AddMessage(ctx, conv.ID, model.RoleUser, last.Content); err != nil {
		return nil, err
	}

	bundle, err := p.AssembleContext(ctx, req.UserID, last.Content)
	if err != nil {
		return nil, err
	}

	class := p.llm.ClassifyQuery(ctx, last.Content)

	return &turn{
		conv:    conv,
		query:   last.Content,
		history: toLLMMessages(req.Messages),
		bundle:  bundle,
		block:   renderContext(bundle),
		class:   class,
	}, nil
}

func (p *Pipeline) resolveConversation(ctx context.Context, req *model.SendRequest) (*model.Conversation, error) {
	if req.ConversationID == "" {
		return p.store.CreateConversation(ctx, req.UserID)
	}
	conv, err := p.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Deleted {
		return nil, store.ErrNotFound
	}
	if conv.UserID != req.UserID {
		return nil, store.ErrNotOwner
	}
	return conv, nil
}

// Send handles one blocking chat turn.
func (p *Pipeline) Send(ctx context.Context, req *model.SendRequest) (*model.SendResponse, error) {
	t, err := p.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	log := p.log.WithConversation(req.UserID, t.conv.ID)

	answer, err := p.llm.Chat(ctx, t.history, t.block, t.class.ResponseLength)
	if err != nil {
		metrics.RecordChatTurn("blocking", "error")
		return nil, fmt.Errorf("completing turn: %w", err)
	}

	if _, err := p.store.AddMessage(ctx, t.conv.ID, model.RoleAssistant, answer); err != nil {
		metrics.RecordChatTurn("blocking", "error")
		return nil, err
	}

	detection, blocked, err := p.piiGate(ctx, t, req.GlobalSharingConsent, answer)
	if err != nil {
		metrics.RecordChatTurn("blocking", "error")
		return nil, err
	}

	resp := &model.SendResponse{
		Response:             answer,
		ConversationID:       t.conv.ID,
		RelatedContext:       relatedContextOf(t.bundle),
		SuggestedTopics:      p.suggestTopics(ctx, req.UserID),
		PIIDetection:         detection,
		GlobalSharingBlocked: blocked,
	}

	metrics.RecordChatTurn("blocking", "ok")
	log.Debug("chat turn completed",
		zap.Bool("trivial", t.class.IsTrivial),
		zap.Int("personal_insights", len(t.bundle.PersonalInsights)),
		zap.Int("semantic_matches", len(t.bundle.SemanticMatches)),
	)
	return resp, nil
}

// piiGate probes the finished exchange for personal information. It is
// skipped when the conversation is already blocked and for trivial turns.
// The returned detection is nil when nothing was found or the probe was
// skipped; the bool is the conversation's resulting block state.
func (p *Pipeline) piiGate(ctx context.Context, t *turn, consent *bool, answer string) (*model.PIIDetection, bool, error) {
	if t.conv.GlobalSharingBlocked {
		return nil, true, nil
	}
	if t.class.IsTrivial {
		return nil, false, nil
	}

	detection := p.llm.DetectPII(ctx, t.query, answer)
	if !detection.Detected {
		return nil, false, nil
	}
	metrics.PIIDetectionsTotal.Inc()

	if consent != nil && !*consent {
		if err := p.store.SetGlobalSharingBlocked(ctx, t.conv.ID, true); err != nil {
			return nil, false, err
		}
		return &detection, true, nil
	}

	// Consent granted leaves the flag untouched; an unanswered question
	// returns the detection so the client can ask.
	return &detection, false, nil
}

// ApplyPIIConsent records the client's answer to the sharing question.
// Decline blocks the conversation's derivatives from the global pool;
// consent leaves the flag as it was.
func (p *Pipeline) ApplyPIIConsent(ctx context.Context, conversationID string, consent bool) (bool, error) {
	if !consent {
		if err := p.store.SetGlobalSharingBlocked(ctx, conversationID, true); err != nil {
			return false, err
		}
		return true, nil
	}
	return p.store.IsGlobalSharingBlocked(ctx, conversationID)
}

// DeleteConversation removes a conversation from its owner's graph. The
// store handles the transactional part; afterwards the anonymized insights'
// vector entries are re-attributed so personal semantic recall stops
// surfacing them while global search still can.
func (p *Pipeline) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if err := p.store.DeleteConversationFromUserGraph(ctx, conversationID, userID); err != nil {
		return err
	}

	insights, err := p.store.GetConversationInsights(ctx, conversationID)
	if err != nil {
		p.log.Warn("reading anonymized insights", zap.Error(err))
		insights = nil
	}
	for _, ins := range insights {
		if ins.VectorID == "" {
			continue
		}
		if err := p.index.Store(ctx, ins.VectorID, ins.Content, model.AnonymousUserID, ins.Topics); err != nil {
			p.log.Warn("re-attributing insight vector",
				zap.String("insight_id", ins.ID), zap.Error(err))
		}
	}

	p.publishEvent(ctx, events.Event{
		Type:           events.TypeConversationDeleted,
		ConversationID: conversationID,
		UserID:         userID,
		At:             time.Now().Unix(),
	})
	return nil
}

func (p *Pipeline) publishEvent(ctx context.Context, e events.Event) {
	if err := p.events.Publish(ctx, e); err != nil {
		p.log.Warn("publishing graph event", zap.String("type", e.Type), zap.Error(err))
	}
}

// relatedContextOf echoes the personal-insight evidence handed to the model.
func relatedContextOf(bundle *model.ContextBundle) []model.RelatedContext {
	out := make([]model.RelatedContext, 0, len(bundle.PersonalInsights))
	for _, ins := range bundle.PersonalInsights {
		out = append(out, model.RelatedContext{
			Topic: strings.Join(ins.Topics, ", "),
			Score: ins.ImportanceScore,
		})
	}
	return out
}

// suggestTopics ranks graph neighbors of the user's topic set. Failures
// degrade to an empty list; suggestions never fail a turn.
func (p *Pipeline) suggestTopics(ctx context.Context, userID string) []string {
	userTopics, err := p.store.GetUserTopics(ctx, userID)
	if err != nil {
		p.log.Warn("reading user topics", zap.Error(err))
		return []string{}
	}
	names := make([]string, 0, len(userTopics))
	for _, ut := range userTopics {
		names = append(names, ut.Topic.Name)
	}

	suggestions, err := p.store.GetSuggestedTopics(ctx, names, suggestedTopicLimit)
	if err != nil {
		p.log.Warn("reading suggested topics", zap.Error(err))
		return []string{}
	}
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.Name)
	}
	return out
}

func toLLMMessages(messages []model.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Package processor promotes idle conversations into the knowledge graph.
//
// The chat pipeline only persists turns; once a conversation has been quiet
// past the idle threshold, this processor classifies it, extracts topics
// and insights, and applies the verdict through the store. It is the sole
// writer of conversation-derived graph state.
package processor

import (
	"context"
	"errors"
	"sync"
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

// ErrRunInProgress is returned when a run is requested while another one is
// still active.
var ErrRunInProgress = errors.New("processor run already in progress")

// Verdict reasons written by the processor itself, outside the analyser.
const (
	reasonNoMessages      = "No messages"
	reasonProcessingError = "Processing error"
)

// Analyzer is the slice of the LLM surface the processor uses.
type Analyzer interface {
	AnalyzeConversation(ctx context.Context, messages []llm.ChatMessage) llm.ConversationAnalysis
}

// Config tunes a processor.
type Config struct {
	// IdleThreshold is how long a conversation must be quiet before it
	// becomes eligible for processing.
	IdleThreshold time.Duration
	// BatchSize bounds how many conversations one run handles.
	BatchSize int
}

// Processor finds idle conversations and promotes the useful ones.
type Processor struct {
	store    *store.Store
	analyzer Analyzer
	index    vector.Index
	events   *events.Publisher
	log      *logger.Logger

	idleThreshold time.Duration
	batchSize     int

	mu sync.Mutex // held for the duration of a run
}

// New creates a processor. pub may be nil when eventing is disabled.
func New(s *store.Store, analyzer Analyzer, index vector.Index, pub *events.Publisher, cfg Config, log *logger.Logger) *Processor {
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 120 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if index == nil {
		index = vector.Disabled{}
	}
	return &Processor{
		store:         s,
		analyzer:      analyzer,
		index:         index,
		events:        pub,
		log:           log,
		idleThreshold: cfg.IdleThreshold,
		batchSize:     cfg.BatchSize,
	}
}

// Run executes one processing pass over the oldest idle conversations. Only
// one run may be active at a time; a caller racing an active run gets
// ErrRunInProgress instead of a second pass.
func (p *Processor) Run(ctx context.Context) (*model.RunResult, error) {
	return p.run(ctx, "http")
}

// RunLoop triggers a run every interval until the context is canceled.
func (p *Processor) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("processor loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("processor loop stopped")
			return
		case <-ticker.C:
		}
		if _, err := p.run(ctx, "interval"); err != nil && !errors.Is(err, ErrRunInProgress) {
			p.log.Error("processor run failed", zap.Error(err))
		}
	}
}

// Pending lists the conversations the next run would pick up.
func (p *Processor) Pending(ctx context.Context) ([]model.Conversation, error) {
	cutoff := time.Now().Add(-p.idleThreshold).Unix()
	return p.store.GetProcessableConversations(ctx, cutoff, p.batchSize)
}

func (p *Processor) run(ctx context.Context, trigger string) (*model.RunResult, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()

	metrics.ProcessorRunsTotal.WithLabelValues(trigger).Inc()

	cutoff := time.Now().Add(-p.idleThreshold).Unix()
	conversations, err := p.store.GetProcessableConversations(ctx, cutoff, p.batchSize)
	if err != nil {
		return nil, err
	}

	result := &model.RunResult{Results: []model.ProcessResult{}}
	for i := range conversations {
		// Conversations are the cancellation boundary: shutdown finishes
		// the row in flight and stops.
		if ctx.Err() != nil {
			break
		}
		r := p.processOne(ctx, &conversations[i])
		result.Processed++
		if r.IsUseful {
			result.Useful++
		} else {
			result.NotUseful++
		}
		result.Results = append(result.Results, r)
	}

	if result.Processed > 0 {
		p.log.Info("processor run finished",
			zap.String("trigger", trigger),
			zap.Int("processed", result.Processed),
			zap.Int("useful", result.Useful),
		)
	}
	return result, nil
}

// processOne applies the full verdict path to a single conversation. Every
// outcome stamps the row processed; failed rows are stamped too so one bad
// conversation cannot wedge every later run.
func (p *Processor) processOne(ctx context.Context, conv *model.Conversation) model.ProcessResult {
	result := model.ProcessResult{ConversationID: conv.ID, Topics: []string{}}
	log := p.log.WithConversation(conv.UserID, conv.ID)

	messages, err := p.store.GetMessages(ctx, conv.ID)
	if err != nil {
		return p.failProcessing(ctx, conv, result, err)
	}

	if len(messages) == 0 {
		result.Reason = reasonNoMessages
		if err := p.store.MarkConversationProcessed(ctx, conv.ID, false, reasonNoMessages); err != nil {
			log.Error("marking empty conversation", zap.Error(err))
		}
		metrics.ProcessorConversationsTotal.WithLabelValues("empty").Inc()
		return result
	}

	analysis := p.analyzer.AnalyzeConversation(ctx, toLLMMessages(messages))

	if !analysis.IsUseful {
		result.Reason = analysis.Reason
		if err := p.stampNotUseful(ctx, conv, analysis.Reason); err != nil {
			return p.failProcessing(ctx, conv, result, err)
		}
		metrics.ProcessorConversationsTotal.WithLabelValues("not_useful").Inc()
		log.Info("conversation classified not useful", zap.String("reason", analysis.Reason))
		return result
	}

	promoted, err := p.store.PromoteConversation(ctx, conv, store.Promotion{
		Summary:  analysis.Summary,
		Reason:   analysis.Reason,
		Topics:   analysis.Topics,
		Insights: analysis.Insights,
	})
	if err != nil {
		return p.failProcessing(ctx, conv, result, err)
	}

	p.storeInsightVectors(ctx, conv.ID, promoted.InsightIDs)

	result.IsUseful = true
	result.Reason = analysis.Reason
	result.Topics = promoted.TopicNames
	result.InsightsCount = len(promoted.InsightIDs)

	metrics.ProcessorConversationsTotal.WithLabelValues("useful").Inc()
	metrics.InsightsTotal.WithLabelValues("extracted").Add(float64(len(promoted.InsightIDs)))

	p.publishEvent(ctx, events.Event{
		Type:           events.TypeConversationPromoted,
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Topics:         promoted.TopicNames,
		At:             time.Now().Unix(),
	})

	log.Info("conversation promoted",
		zap.Strings("topics", promoted.TopicNames),
		zap.Int("insights", len(promoted.InsightIDs)),
		zap.Bool("global_insight", promoted.GlobalInsight),
	)
	return result
}

// stampNotUseful records a negative verdict: flag on the conversation plus
// an audit row with an empty topic list.
func (p *Processor) stampNotUseful(ctx context.Context, conv *model.Conversation, reason string) error {
	if err := p.store.MarkConversationProcessed(ctx, conv.ID, false, reason); err != nil {
		return err
	}
	return p.store.AddProcessingLog(ctx, &model.ProcessingLog{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		ProcessedAt:    time.Now().Unix(),
		IsUseful:       false,
		Reason:         reason,
	})
}

// failProcessing stamps a failed conversation processed instead of leaving
// it for retry.
func (p *Processor) failProcessing(ctx context.Context, conv *model.Conversation, result model.ProcessResult, cause error) model.ProcessResult {
	p.log.Error("conversation processing failed",
		zap.String("conversation_id", conv.ID), zap.Error(cause))

	result.Reason = reasonProcessingError
	if err := p.stampNotUseful(ctx, conv, reasonProcessingError); err != nil {
		p.log.Error("stamping failed conversation", zap.Error(err))
	}
	metrics.ProcessorConversationsTotal.WithLabelValues("error").Inc()
	return result
}

// storeInsightVectors mirrors freshly extracted insights into the vector
// index. Failures are logged and never undo the promotion.
func (p *Processor) storeInsightVectors(ctx context.Context, conversationID string, insightIDs []string) {
	if len(insightIDs) == 0 {
		return
	}
	insights, err := p.store.GetConversationInsights(ctx, conversationID)
	if err != nil {
		p.log.Warn("reading promoted insights", zap.Error(err))
		return
	}
	fresh := make(map[string]bool, len(insightIDs))
	for _, id := range insightIDs {
		fresh[id] = true
	}
	for _, ins := range insights {
		if !fresh[ins.ID] {
			continue
		}
		if err := p.index.Store(ctx, ins.ID, ins.Content, ins.UserID, ins.Topics); err != nil {
			p.log.Warn("storing insight vector", zap.String("insight_id", ins.ID), zap.Error(err))
			continue
		}
		if err := p.store.SetInsightVector(ctx, ins.ID, ins.ID); err != nil {
			p.log.Warn("recording insight vector id", zap.Error(err))
		}
	}
}

func (p *Processor) publishEvent(ctx context.Context, e events.Event) {
	if err := p.events.Publish(ctx, e); err != nil {
		p.log.Warn("publishing graph event", zap.String("type", e.Type), zap.Error(err))
	}
}

func toLLMMessages(messages []model.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

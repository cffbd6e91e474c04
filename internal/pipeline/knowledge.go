package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/events"
	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

const defaultSearchTopK = 5

// externalKnowledgeReason stamps anchor conversations created for ingested
// knowledge, so the processor never picks them up.
const externalKnowledgeReason = "External knowledge"

// IngestKnowledge writes externally supplied knowledge into the graph: an
// insight owned by the user, linked to its topics, anchored to the given
// conversation or to a fresh pre-processed one, and mirrored into the
// vector index when one is configured.
func (p *Pipeline) IngestKnowledge(ctx context.Context, req *model.KnowledgeAddRequest) (*model.KnowledgeAddResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	if _, err := p.store.EnsureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := p.store.CreateConversation(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if err := p.store.MarkConversationProcessed(ctx, conv.ID, true, externalKnowledgeReason); err != nil {
			return nil, err
		}
		conversationID = conv.ID
	} else {
		conv, err := p.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.Deleted {
			return nil, store.ErrNotFound
		}
		if conv.UserID != req.UserID {
			return nil, store.ErrNotOwner
		}
	}

	topicIDs := make([]string, 0, len(req.Topics))
	topicNames := make([]string, 0, len(req.Topics))
	for _, name := range req.Topics {
		if model.NormalizeTopicName(name) == "" {
			continue
		}
		topic, err := p.store.GetOrCreateTopic(ctx, name, "")
		if err != nil {
			return nil, err
		}
		topicIDs = append(topicIDs, topic.ID)
		topicNames = append(topicNames, topic.Name)
		if err := p.store.LinkConversationToTopic(ctx, conversationID, topic.ID); err != nil {
			return nil, err
		}
	}

	ins, err := p.store.CreateInsight(ctx, conversationID, req.UserID, req.Content, model.ImportanceScoreExtracted, topicIDs)
	if err != nil {
		return nil, err
	}
	metrics.InsightsTotal.WithLabelValues("external").Inc()

	if err := p.index.Store(ctx, ins.ID, ins.Content, req.UserID, topicNames); err != nil {
		p.log.Warn("storing insight vector", zap.String("insight_id", ins.ID), zap.Error(err))
	} else if err := p.store.SetInsightVector(ctx, ins.ID, ins.ID); err != nil {
		p.log.Warn("recording insight vector id", zap.Error(err))
	}

	p.publishEvent(ctx, events.Event{
		Type:           events.TypeInsightAdded,
		ConversationID: conversationID,
		UserID:         req.UserID,
		Topics:         topicNames,
		At:             time.Now().Unix(),
	})

	return &model.KnowledgeAddResponse{
		Success:   true,
		InsightID: ins.ID,
		TopicIDs:  topicIDs,
	}, nil
}

// SearchKnowledge runs a raw semantic query against the vector index. This
// is the index surface itself, so unlike chat context assembly a failure
// here propagates.
func (p *Pipeline) SearchKnowledge(ctx context.Context, req *model.KnowledgeSearchRequest) ([]model.SemanticMatch, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}

	matches, err := p.index.Search(ctx, req.Query, req.UserID, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	if matches == nil {
		matches = []model.SemanticMatch{}
	}
	return matches, nil
}

// RemoveKnowledge deletes an insight and its vector entry. Topics and edges
// derived from conversations stay.
func (p *Pipeline) RemoveKnowledge(ctx context.Context, insightID string) error {
	ins, err := p.store.GetInsight(ctx, insightID)
	if err != nil {
		return err
	}

	if ins.VectorID != "" {
		if err := p.index.Delete(ctx, ins.VectorID); err != nil {
			p.log.Warn("deleting insight vector", zap.String("insight_id", insightID), zap.Error(err))
		}
	}

	return p.store.DeleteInsight(ctx, insightID)
}

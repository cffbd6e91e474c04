package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// Promotion carries the analyser verdict applied to a useful conversation.
type Promotion struct {
	Summary  string
	Reason   string
	Topics   []string
	Insights []string
}

// PromotionResult reports what a promotion wrote.
type PromotionResult struct {
	TopicIDs      []string
	TopicNames    []string
	InsightIDs    []string
	GlobalInsight bool
}

// PromoteConversation applies a positive analyser verdict in one
// transaction: topics are upserted by normalized name and linked to the
// conversation, every topic pair's edge is reinforced, each extracted
// insight is inserted and linked to all topics, a global insight is written
// when the owner consented and the conversation is not blocked, the verdict
// is stamped, and an audit row is appended. The activity timestamp is never
// touched.
func (s *Store) PromoteConversation(ctx context.Context, conv *model.Conversation, p Promotion) (*PromotionResult, error) {
	result := &PromotionResult{
		TopicIDs:   []string{},
		TopicNames: []string{},
		InsightIDs: []string{},
	}

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		// Fresh row: the user may have answered the PII consent question
		// while analysis was running.
		fresh, err := getConversation(ctx, tx, conv.ID)
		if err != nil {
			return err
		}

		seen := map[string]bool{}
		for _, name := range p.Topics {
			normalized := model.NormalizeTopicName(name)
			if normalized == "" || seen[normalized] {
				continue
			}
			seen[normalized] = true

			topic, err := getOrCreateTopic(ctx, tx, normalized, "")
			if err != nil {
				return err
			}
			result.TopicIDs = append(result.TopicIDs, topic.ID)
			result.TopicNames = append(result.TopicNames, topic.Name)

			if err := linkConversationToTopic(ctx, tx, conv.ID, topic.ID); err != nil {
				return err
			}
		}

		for i := 0; i < len(result.TopicIDs); i++ {
			for j := i + 1; j < len(result.TopicIDs); j++ {
				if _, err := reinforceRelation(ctx, tx, result.TopicIDs[i], result.TopicIDs[j], defaultEdgeStrength); err != nil {
					return err
				}
			}
		}

		for _, content := range p.Insights {
			if content == "" {
				continue
			}
			ins, err := createInsight(ctx, tx, conv.ID, conv.UserID, content, model.ImportanceScoreExtracted, result.TopicIDs)
			if err != nil {
				return err
			}
			result.InsightIDs = append(result.InsightIDs, ins.ID)
		}

		owner, err := getUser(ctx, tx, conv.UserID)
		if err != nil {
			return err
		}
		if owner.ConsentGlobal && !fresh.GlobalSharingBlocked {
			globalID := model.GlobalInsightIDPrefix + conv.ID
			if err := upsertGlobalInsight(ctx, tx, globalID, p.Summary, strings.Join(result.TopicIDs, ",")); err != nil {
				return err
			}
			result.GlobalInsight = true
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET summary = ?, processed = 1, is_useful = 1, usefulness_reason = ? WHERE id = ?`,
			p.Summary, p.Reason, conv.ID,
		); err != nil {
			return fmt.Errorf("stamping verdict: %w", err)
		}

		topicsJSON, err := json.Marshal(result.TopicNames)
		if err != nil {
			return fmt.Errorf("encoding topic list: %w", err)
		}
		return addProcessingLog(ctx, tx, &model.ProcessingLog{
			ConversationID:  conv.ID,
			UserID:          conv.UserID,
			ProcessedAt:     time.Now().Unix(),
			IsUseful:        true,
			Reason:          p.Reason,
			TopicsExtracted: string(topicsJSON),
			InsightsCount:   len(result.InsightIDs),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

const insightSelect = `SELECT i.id, i.conversation_id, i.user_id, i.content,
	i.importance_score, i.vector_id, i.created_at,
	COALESCE(GROUP_CONCAT(DISTINCT t.name), '') AS topic_names
FROM insights i
LEFT JOIN insight_topics it ON it.insight_id = i.id
LEFT JOIN topics t ON t.id = it.topic_id`

// CreateInsight inserts an insight and links it to the given topics.
func (s *Store) CreateInsight(ctx context.Context, conversationID, userID, content string, importance float64, topicIDs []string) (*model.Insight, error) {
	var ins *model.Insight
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ins, err = createInsight(ctx, tx, conversationID, userID, content, importance, topicIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func createInsight(ctx context.Context, q querier, conversationID, userID, content string, importance float64, topicIDs []string) (*model.Insight, error) {
	if content == "" {
		return nil, fmt.Errorf("insight content is required")
	}
	if importance <= 0 {
		importance = model.ImportanceScoreDefault
	}

	ins := &model.Insight{
		ID:              newID("ins"),
		ConversationID:  conversationID,
		UserID:          userID,
		Content:         content,
		ImportanceScore: importance,
		CreatedAt:       time.Now().Unix(),
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO insights (id, conversation_id, user_id, content, importance_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ins.ID, ins.ConversationID, ins.UserID, ins.Content, ins.ImportanceScore, ins.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting insight: %w", err)
	}

	for _, topicID := range topicIDs {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO insight_topics (insight_id, topic_id) VALUES (?, ?)`,
			ins.ID, topicID,
		); err != nil {
			return nil, fmt.Errorf("linking insight to topic: %w", err)
		}
	}
	return ins, nil
}

// SetInsightVector records the vector-index row backing an insight.
func (s *Store) SetInsightVector(ctx context.Context, insightID, vectorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE insights SET vector_id = ? WHERE id = ?`, vectorID, insightID,
	)
	if err != nil {
		return fmt.Errorf("updating insight vector: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetInsight returns one insight with its topic names.
func (s *Store) GetInsight(ctx context.Context, id string) (*model.Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		insightSelect+` WHERE i.id = ? GROUP BY i.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("reading insight: %w", err)
	}
	defer rows.Close()

	out, err := scanInsights(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// DeleteInsight removes an insight; its topic links cascade away.
func (s *Store) DeleteInsight(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM insights WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting insight: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecentUserInsights returns the user's newest insights with topic names.
// Insights anonymized by a soft delete no longer match the user id and so
// drop out here without extra filtering.
func (s *Store) GetRecentUserInsights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		insightSelect+`
		 WHERE i.user_id = ?
		 GROUP BY i.id
		 ORDER BY i.created_at DESC, i.id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading user insights: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

// GetRelatedInsights returns insights linked to any of the given topics,
// excluding the caller's own rows and anything from conversations blocked
// from global sharing. Strongest first.
func (s *Store) GetRelatedInsights(ctx context.Context, topicNames []string, excludeUserID string, limit int) ([]model.Insight, error) {
	if len(topicNames) == 0 {
		return []model.Insight{}, nil
	}

	normalized := make([]any, 0, len(topicNames))
	for _, n := range topicNames {
		if v := model.NormalizeTopicName(n); v != "" {
			normalized = append(normalized, v)
		}
	}
	if len(normalized) == 0 {
		return []model.Insight{}, nil
	}

	args := append(normalized, excludeUserID, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.conversation_id, i.user_id, i.content,
			i.importance_score, i.vector_id, i.created_at,
			COALESCE(GROUP_CONCAT(DISTINCT t.name), '') AS topic_names
		 FROM insights i
		 JOIN insight_topics fit ON fit.insight_id = i.id
		 JOIN topics ft ON ft.id = fit.topic_id AND ft.name IN (`+placeholders(len(normalized))+`)
		 JOIN conversations c ON c.id = i.conversation_id
		 LEFT JOIN insight_topics it ON it.insight_id = i.id
		 LEFT JOIN topics t ON t.id = it.topic_id
		 WHERE i.user_id != ? AND c.global_sharing_blocked = 0
		 GROUP BY i.id
		 ORDER BY i.importance_score DESC, i.created_at DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("reading related insights: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

// GetConversationInsights returns the insights extracted from one
// conversation.
func (s *Store) GetConversationInsights(ctx context.Context, conversationID string) ([]model.Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		insightSelect+`
		 WHERE i.conversation_id = ?
		 GROUP BY i.id
		 ORDER BY i.created_at ASC, i.id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading conversation insights: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

func scanInsights(rows *sql.Rows) ([]model.Insight, error) {
	out := []model.Insight{}
	for rows.Next() {
		var (
			ins        model.Insight
			topicNames string
		)
		if err := rows.Scan(
			&ins.ID, &ins.ConversationID, &ins.UserID, &ins.Content,
			&ins.ImportanceScore, &ins.VectorID, &ins.CreatedAt, &topicNames,
		); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		if topicNames != "" {
			ins.Topics = strings.Split(topicNames, ",")
		}
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating insights: %w", err)
	}
	return out, nil
}

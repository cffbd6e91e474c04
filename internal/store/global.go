package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// UpsertGlobalInsight writes the shareable summary derived from one
// conversation. The id is "global_" + conversationId, so re-processing
// overwrites rather than duplicates.
func (s *Store) UpsertGlobalInsight(ctx context.Context, id, content, topicIDs string) error {
	return upsertGlobalInsight(ctx, s.db, id, content, topicIDs)
}

func upsertGlobalInsight(ctx context.Context, q querier, id, content, topicIDs string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO global_insights (id, content, topic_ids, use_count, created_at)
		 VALUES (?, ?, ?, 0, ?)
		 ON CONFLICT (id) DO UPDATE SET content = excluded.content, topic_ids = excluded.topic_ids`,
		id, content, topicIDs, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upserting global insight: %w", err)
	}
	return nil
}

// GetGlobalInsight returns one global insight by id.
func (s *Store) GetGlobalInsight(ctx context.Context, id string) (*model.GlobalInsight, error) {
	var g model.GlobalInsight
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, topic_ids, use_count, created_at FROM global_insights WHERE id = ?`, id,
	).Scan(&g.ID, &g.Content, &g.TopicIDs, &g.UseCount, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading global insight: %w", err)
	}
	return &g, nil
}

// GetGlobalInsights returns recent shareable insights. Rows from blocked
// conversations are excluded; when excludeUserID is non-empty, rows derived
// from that user's conversations are excluded too. The owning conversation
// is recovered through the "global_" id convention.
func (s *Store) GetGlobalInsights(ctx context.Context, excludeUserID string, limit int) ([]model.GlobalInsight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.content, g.topic_ids, g.use_count, g.created_at
		 FROM global_insights g
		 JOIN conversations c ON g.id = 'global_' || c.id
		 WHERE c.global_sharing_blocked = 0 AND (? = '' OR c.user_id != ?)
		 ORDER BY g.created_at DESC, g.id DESC
		 LIMIT ?`,
		excludeUserID, excludeUserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading global insights: %w", err)
	}
	defer rows.Close()

	out := []model.GlobalInsight{}
	for rows.Next() {
		var g model.GlobalInsight
		if err := rows.Scan(&g.ID, &g.Content, &g.TopicIDs, &g.UseCount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning global insight: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating global insights: %w", err)
	}
	return out, nil
}

// GetGlobalConversationSummaries returns summaries of processed, useful,
// shareable conversations, newest activity first. Blocked and deleted
// conversations never appear; excludeUserID removes the caller's own rows.
func (s *Store) GetGlobalConversationSummaries(ctx context.Context, excludeUserID string, limit int) ([]model.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.summary, c.updated_at
		 FROM conversations c
		 WHERE c.processed = 1 AND c.is_useful = 1 AND c.summary != ''
		   AND c.global_sharing_blocked = 0 AND c.deleted = 0
		   AND (? = '' OR c.user_id != ?)
		 ORDER BY c.updated_at DESC, c.id DESC
		 LIMIT ?`,
		excludeUserID, excludeUserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading global summaries: %w", err)
	}
	defer rows.Close()

	out := []model.ConversationSummary{}
	for rows.Next() {
		var cs model.ConversationSummary
		if err := rows.Scan(&cs.ConversationID, &cs.Summary, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summaries: %w", err)
	}
	return out, nil
}

// IncrementGlobalInsightUse bumps the use counter of the given global
// insights after they were served into a prompt.
func (s *Store) IncrementGlobalInsightUse(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE global_insights SET use_count = use_count + 1 WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("incrementing use count: %w", err)
	}
	return nil
}

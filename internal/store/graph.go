package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

const (
	mapInsightLimit      = 50
	mapConversationLimit = 20
)

// GetGlobalKnowledgeMap returns the visualization payload for the whole
// graph. The node set is every topic, so soft deletes never change it; a
// topic's frequency counts the shareable conversations still linked to it.
func (s *Store) GetGlobalKnowledgeMap(ctx context.Context) (*model.KnowledgeMap, error) {
	tfs, err := s.globalTopicFrequencies(ctx)
	if err != nil {
		return nil, err
	}
	nodes, topics := buildGraphNodes(tfs)

	relations, err := s.allTopicRelations(ctx)
	if err != nil {
		return nil, err
	}

	insights, err := s.GetShareableInsights(ctx, mapInsightLimit)
	if err != nil {
		return nil, err
	}

	conversations, err := s.GetGlobalConversationSummaries(ctx, "", mapConversationLimit)
	if err != nil {
		return nil, err
	}

	stats, err := s.globalGraphStats(ctx)
	if err != nil {
		return nil, err
	}

	return &model.KnowledgeMap{
		Stats:         *stats,
		Graph:         model.Graph{Nodes: nodes, Edges: edgesFromRelations(relations)},
		Topics:        topics,
		Relations:     relations,
		Insights:      insights,
		Conversations: conversations,
	}, nil
}

// GetUserKnowledgeMap returns the visualization payload scoped to one user:
// topics of their non-deleted conversations, edges with both endpoints in
// that set, and their own insights and conversations.
func (s *Store) GetUserKnowledgeMap(ctx context.Context, userID string) (*model.KnowledgeMap, error) {
	tfs, err := s.userTopicFrequencies(ctx, userID)
	if err != nil {
		return nil, err
	}
	nodes, topics := buildGraphNodes(tfs)

	relations, err := s.userTopicRelations(ctx, userID)
	if err != nil {
		return nil, err
	}

	insights, err := s.GetRecentUserInsights(ctx, userID, mapInsightLimit)
	if err != nil {
		return nil, err
	}

	convs, err := s.ListUserConversations(ctx, userID, mapConversationLimit)
	if err != nil {
		return nil, err
	}
	summaries := make([]model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, model.ConversationSummary{
			ConversationID: c.ID,
			Summary:        c.Summary,
			UpdatedAt:      c.UpdatedAt,
		})
	}

	var convCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = ? AND deleted = 0`, userID,
	).Scan(&convCount); err != nil {
		return nil, fmt.Errorf("counting user conversations: %w", err)
	}
	var insightCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insights WHERE user_id = ?`, userID,
	).Scan(&insightCount); err != nil {
		return nil, fmt.Errorf("counting user insights: %w", err)
	}

	return &model.KnowledgeMap{
		Stats: model.GraphStats{
			Topics:        len(nodes),
			Relations:     len(relations),
			Insights:      insightCount,
			Conversations: convCount,
		},
		Graph:         model.Graph{Nodes: nodes, Edges: edgesFromRelations(relations)},
		Topics:        topics,
		Relations:     relations,
		Insights:      insights,
		Conversations: summaries,
	}, nil
}

// GetShareableInsights returns recent insight rows from conversations not
// blocked from global sharing, anonymized rows included.
func (s *Store) GetShareableInsights(ctx context.Context, limit int) ([]model.Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		insightSelect+`
		 JOIN conversations c ON c.id = i.conversation_id
		 WHERE c.global_sharing_blocked = 0
		 GROUP BY i.id
		 ORDER BY i.created_at DESC, i.id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading shareable insights: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

// GetKnowledgeStats summarizes one user's footprint in the graph.
func (s *Store) GetKnowledgeStats(ctx context.Context, userID string) (*model.KnowledgeStats, error) {
	stats := &model.KnowledgeStats{UserID: userID}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insights WHERE user_id = ?`, userID,
	).Scan(&stats.InsightCount); err != nil {
		return nil, fmt.Errorf("counting insights: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT ct.topic_id)
		 FROM conversation_topics ct
		 JOIN conversations c ON c.id = ct.conversation_id
		 WHERE c.user_id = ? AND c.deleted = 0`, userID,
	).Scan(&stats.TopicCount); err != nil {
		return nil, fmt.Errorf("counting topics: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = ? AND deleted = 0`, userID,
	).Scan(&stats.ConversationCount); err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM global_insights g
		 JOIN conversations c ON g.id = 'global_' || c.id
		 WHERE c.user_id = ?`, userID,
	).Scan(&stats.GlobalInsightCount); err != nil {
		return nil, fmt.Errorf("counting global insights: %w", err)
	}

	return stats, nil
}

// GetProcessorStats aggregates processing progress across the store.
func (s *Store) GetProcessorStats(ctx context.Context) (*model.ProcessorStats, error) {
	stats := &model.ProcessorStats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(processed), 0),
			COALESCE(SUM(CASE WHEN processed = 0 AND message_count > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_useful = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 1 AND is_useful = 0 THEN 1 ELSE 0 END), 0)
		 FROM conversations WHERE deleted = 0`,
	).Scan(&stats.TotalConversations, &stats.Processed, &stats.Pending, &stats.Useful, &stats.NotUseful)
	if err != nil {
		return nil, fmt.Errorf("aggregating conversation stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&stats.Topics); err != nil {
		return nil, fmt.Errorf("counting topics: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM insights`).Scan(&stats.Insights); err != nil {
		return nil, fmt.Errorf("counting insights: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM global_insights`).Scan(&stats.GlobalInsights); err != nil {
		return nil, fmt.Errorf("counting global insights: %w", err)
	}

	return stats, nil
}

type topicFrequency struct {
	topic model.Topic
	freq  int
}

func (s *Store) globalTopicFrequencies(ctx context.Context) ([]topicFrequency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.description, t.created_at,
			COUNT(DISTINCT CASE WHEN c.global_sharing_blocked = 0 THEN c.id END) AS freq
		 FROM topics t
		 LEFT JOIN conversation_topics ct ON ct.topic_id = t.id
		 LEFT JOIN conversations c ON c.id = ct.conversation_id
		 GROUP BY t.id, t.name, t.description, t.created_at
		 ORDER BY freq DESC, t.name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading global topic frequencies: %w", err)
	}
	defer rows.Close()
	return scanTopicFrequencies(rows)
}

func (s *Store) userTopicFrequencies(ctx context.Context, userID string) ([]topicFrequency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.description, t.created_at, COUNT(DISTINCT c.id) AS freq
		 FROM topics t
		 JOIN conversation_topics ct ON ct.topic_id = t.id
		 JOIN conversations c ON c.id = ct.conversation_id
		 WHERE c.user_id = ? AND c.deleted = 0
		 GROUP BY t.id, t.name, t.description, t.created_at
		 ORDER BY freq DESC, t.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading user topic frequencies: %w", err)
	}
	defer rows.Close()
	return scanTopicFrequencies(rows)
}

func scanTopicFrequencies(rows *sql.Rows) ([]topicFrequency, error) {
	out := []topicFrequency{}
	for rows.Next() {
		var tf topicFrequency
		if err := rows.Scan(&tf.topic.ID, &tf.topic.Name, &tf.topic.Description, &tf.topic.CreatedAt, &tf.freq); err != nil {
			return nil, fmt.Errorf("scanning topic frequency: %w", err)
		}
		out = append(out, tf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic frequencies: %w", err)
	}
	return out, nil
}

// buildGraphNodes converts topic frequencies into graph nodes, normalizing
// against the maximum frequency of the set.
func buildGraphNodes(tfs []topicFrequency) ([]model.GraphNode, []model.Topic) {
	nodes := make([]model.GraphNode, 0, len(tfs))
	topics := make([]model.Topic, 0, len(tfs))

	maxFreq := 0
	for _, tf := range tfs {
		if tf.freq > maxFreq {
			maxFreq = tf.freq
		}
	}

	for _, tf := range tfs {
		normalized := 0.0
		if maxFreq > 0 {
			normalized = float64(tf.freq) / float64(maxFreq)
		}
		nodes = append(nodes, model.GraphNode{
			ID:                  tf.topic.ID,
			Name:                tf.topic.Name,
			Description:         tf.topic.Description,
			Frequency:           tf.freq,
			NormalizedFrequency: normalized,
		})
		topics = append(topics, tf.topic)
	}
	return nodes, topics
}

func (s *Store) allTopicRelations(ctx context.Context) ([]model.TopicRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_topic_id, target_topic_id, strength, relation_type, created_at
		 FROM topic_relations
		 ORDER BY strength DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading topic relations: %w", err)
	}
	defer rows.Close()
	return scanTopicRelations(rows)
}

func (s *Store) userTopicRelations(ctx context.Context, userID string) ([]model.TopicRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH user_topics AS (
			SELECT DISTINCT ct.topic_id
			FROM conversation_topics ct
			JOIN conversations c ON c.id = ct.conversation_id
			WHERE c.user_id = ? AND c.deleted = 0
		 )
		 SELECT r.id, r.source_topic_id, r.target_topic_id, r.strength, r.relation_type, r.created_at
		 FROM topic_relations r
		 WHERE r.source_topic_id IN (SELECT topic_id FROM user_topics)
		   AND r.target_topic_id IN (SELECT topic_id FROM user_topics)
		 ORDER BY r.strength DESC, r.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading user topic relations: %w", err)
	}
	defer rows.Close()
	return scanTopicRelations(rows)
}

func scanTopicRelations(rows *sql.Rows) ([]model.TopicRelation, error) {
	out := []model.TopicRelation{}
	for rows.Next() {
		var r model.TopicRelation
		if err := rows.Scan(&r.ID, &r.SourceTopicID, &r.TargetTopicID, &r.Strength, &r.RelationType, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning topic relation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic relations: %w", err)
	}
	return out, nil
}

func edgesFromRelations(relations []model.TopicRelation) []model.GraphEdge {
	edges := make([]model.GraphEdge, 0, len(relations))
	for _, r := range relations {
		edges = append(edges, model.GraphEdge{
			Source:   r.SourceTopicID,
			Target:   r.TargetTopicID,
			Strength: r.Strength,
			Type:     r.RelationType,
		})
	}
	return edges
}

func (s *Store) globalGraphStats(ctx context.Context) (*model.GraphStats, error) {
	stats := &model.GraphStats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&stats.Topics); err != nil {
		return nil, fmt.Errorf("counting topics: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topic_relations`).Scan(&stats.Relations); err != nil {
		return nil, fmt.Errorf("counting relations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM insights`).Scan(&stats.Insights); err != nil {
		return nil, fmt.Errorf("counting insights: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE deleted = 0`).Scan(&stats.Conversations); err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}
	return stats, nil
}

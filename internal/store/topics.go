package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

const (
	defaultEdgeStrength = 0.5
	edgeReinforceStep   = 0.1
)

// GetOrCreateTopic resolves a topic by normalized name, creating it on
// first reference. The description is only written at creation time.
func (s *Store) GetOrCreateTopic(ctx context.Context, name, description string) (*model.Topic, error) {
	return getOrCreateTopic(ctx, s.db, name, description)
}

func getOrCreateTopic(ctx context.Context, q querier, name, description string) (*model.Topic, error) {
	normalized := model.NormalizeTopicName(name)
	if normalized == "" {
		return nil, fmt.Errorf("topic name is required")
	}

	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO topics (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		newID("topic"), normalized, description, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating topic: %w", err)
	}
	return getTopicByName(ctx, q, normalized)
}

// GetTopicByName returns a topic by its normalized name.
func (s *Store) GetTopicByName(ctx context.Context, name string) (*model.Topic, error) {
	return getTopicByName(ctx, s.db, model.NormalizeTopicName(name))
}

func getTopicByName(ctx context.Context, q querier, normalized string) (*model.Topic, error) {
	var t model.Topic
	err := q.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM topics WHERE name = ?`, normalized,
	).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading topic: %w", err)
	}
	return &t, nil
}

// LinkConversationToTopic records that a conversation touched a topic.
// Duplicate links are ignored.
func (s *Store) LinkConversationToTopic(ctx context.Context, conversationID, topicID string) error {
	return linkConversationToTopic(ctx, s.db, conversationID, topicID)
}

func linkConversationToTopic(ctx context.Context, q querier, conversationID, topicID string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation_topics (conversation_id, topic_id) VALUES (?, ?)`,
		conversationID, topicID,
	)
	if err != nil {
		return fmt.Errorf("linking conversation to topic: %w", err)
	}
	return nil
}

// LinkTopics upserts the undirected edge between two topics. An existing
// edge in either direction is reinforced by the co-occurrence step and
// clamped to 1; a new edge is created at the given strength (or the default
// when zero).
func (s *Store) LinkTopics(ctx context.Context, sourceTopicID, targetTopicID string, strength float64) (*model.TopicRelation, error) {
	return reinforceRelation(ctx, s.db, sourceTopicID, targetTopicID, strength)
}

func reinforceRelation(ctx context.Context, q querier, sourceTopicID, targetTopicID string, initial float64) (*model.TopicRelation, error) {
	if sourceTopicID == targetTopicID {
		return nil, fmt.Errorf("cannot link a topic to itself")
	}

	var r model.TopicRelation
	err := q.QueryRowContext(ctx,
		`SELECT id, source_topic_id, target_topic_id, strength, relation_type, created_at
		 FROM topic_relations
		 WHERE (source_topic_id = ? AND target_topic_id = ?)
		    OR (source_topic_id = ? AND target_topic_id = ?)`,
		sourceTopicID, targetTopicID, targetTopicID, sourceTopicID,
	).Scan(&r.ID, &r.SourceTopicID, &r.TargetTopicID, &r.Strength, &r.RelationType, &r.CreatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if initial <= 0 {
			initial = defaultEdgeStrength
		}
		if initial > 1 {
			initial = 1
		}
		r = model.TopicRelation{
			ID:            newID("rel"),
			SourceTopicID: sourceTopicID,
			TargetTopicID: targetTopicID,
			Strength:      initial,
			RelationType:  model.DefaultRelationType,
			CreatedAt:     time.Now().Unix(),
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO topic_relations (id, source_topic_id, target_topic_id, strength, relation_type, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.SourceTopicID, r.TargetTopicID, r.Strength, r.RelationType, r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("creating topic relation: %w", err)
		}
		return &r, nil

	case err != nil:
		return nil, fmt.Errorf("reading topic relation: %w", err)

	default:
		r.Strength = r.Strength + edgeReinforceStep
		if r.Strength > 1 {
			r.Strength = 1
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE topic_relations SET strength = ? WHERE id = ?`, r.Strength, r.ID,
		); err != nil {
			return nil, fmt.Errorf("reinforcing topic relation: %w", err)
		}
		return &r, nil
	}
}

// GetUserTopics returns the topics touched by the user's non-deleted
// conversations, with per-topic conversation counts, most engaged first.
func (s *Store) GetUserTopics(ctx context.Context, userID string) ([]model.UserTopic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.description, t.created_at, COUNT(DISTINCT c.id) AS conversation_count
		 FROM topics t
		 JOIN conversation_topics ct ON ct.topic_id = t.id
		 JOIN conversations c ON c.id = ct.conversation_id
		 WHERE c.user_id = ? AND c.deleted = 0
		 GROUP BY t.id, t.name, t.description, t.created_at
		 ORDER BY conversation_count DESC, t.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading user topics: %w", err)
	}
	defer rows.Close()

	out := []model.UserTopic{}
	for rows.Next() {
		var ut model.UserTopic
		if err := rows.Scan(&ut.Topic.ID, &ut.Topic.Name, &ut.Topic.Description, &ut.Topic.CreatedAt, &ut.ConversationCount); err != nil {
			return nil, fmt.Errorf("scanning user topic: %w", err)
		}
		out = append(out, ut)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user topics: %w", err)
	}
	return out, nil
}

// GetSuggestedTopics returns topics adjacent to the given ones in the
// relation graph, strongest edges first, excluding the inputs themselves.
func (s *Store) GetSuggestedTopics(ctx context.Context, topicNames []string, limit int) ([]model.TopicSuggestion, error) {
	if len(topicNames) == 0 {
		return []model.TopicSuggestion{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	normalized := make([]string, 0, len(topicNames))
	for _, n := range topicNames {
		if v := model.NormalizeTopicName(n); v != "" {
			normalized = append(normalized, v)
		}
	}
	if len(normalized) == 0 {
		return []model.TopicSuggestion{}, nil
	}

	args := make([]any, 0, 2*len(normalized)+1)
	for _, n := range normalized {
		args = append(args, n)
	}
	for _, n := range normalized {
		args = append(args, n)
	}
	args = append(args, limit)

	in := placeholders(len(normalized))
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, MAX(r.strength) AS strength
		 FROM topics cur
		 JOIN topic_relations r
		   ON r.source_topic_id = cur.id OR r.target_topic_id = cur.id
		 JOIN topics t
		   ON t.id = CASE WHEN r.source_topic_id = cur.id THEN r.target_topic_id ELSE r.source_topic_id END
		 WHERE cur.name IN (`+in+`) AND t.name NOT IN (`+in+`)
		 GROUP BY t.id, t.name
		 ORDER BY strength DESC, t.name ASC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("reading suggested topics: %w", err)
	}
	defer rows.Close()

	out := []model.TopicSuggestion{}
	for rows.Next() {
		var ts model.TopicSuggestion
		if err := rows.Scan(&ts.ID, &ts.Name, &ts.Strength); err != nil {
			return nil, fmt.Errorf("scanning suggested topic: %w", err)
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating suggested topics: %w", err)
	}
	return out, nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

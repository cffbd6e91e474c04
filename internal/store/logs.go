package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// AddProcessingLog appends one processor verdict to the audit log.
func (s *Store) AddProcessingLog(ctx context.Context, entry *model.ProcessingLog) error {
	return addProcessingLog(ctx, s.db, entry)
}

func addProcessingLog(ctx context.Context, q querier, entry *model.ProcessingLog) error {
	if entry.ID == "" {
		entry.ID = newID("log")
	}
	if entry.TopicsExtracted == "" {
		entry.TopicsExtracted = "[]"
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO processing_log (id, conversation_id, user_id, processed_at, is_useful, reason, topics_extracted, insights_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ConversationID, entry.UserID, entry.ProcessedAt,
		boolInt(entry.IsUseful), entry.Reason, entry.TopicsExtracted, entry.InsightsCount,
	)
	if err != nil {
		return fmt.Errorf("inserting processing log: %w", err)
	}
	return nil
}

// GetProcessingLogs returns the newest audit rows.
func (s *Store) GetProcessingLogs(ctx context.Context, limit int) ([]model.ProcessingLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, processed_at, is_useful, reason, topics_extracted, insights_count
		 FROM processing_log
		 ORDER BY processed_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading processing logs: %w", err)
	}
	defer rows.Close()

	out := []model.ProcessingLog{}
	for rows.Next() {
		var entry model.ProcessingLog
		if err := rows.Scan(
			&entry.ID, &entry.ConversationID, &entry.UserID, &entry.ProcessedAt,
			&entry.IsUseful, &entry.Reason, &entry.TopicsExtracted, &entry.InsightsCount,
		); err != nil {
			return nil, fmt.Errorf("scanning processing log: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating processing logs: %w", err)
	}
	return out, nil
}

// GetProcessingLogForConversation returns the newest audit row for one
// conversation.
func (s *Store) GetProcessingLogForConversation(ctx context.Context, conversationID string) (*model.ProcessingLog, error) {
	var entry model.ProcessingLog
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, user_id, processed_at, is_useful, reason, topics_extracted, insights_count
		 FROM processing_log
		 WHERE conversation_id = ?
		 ORDER BY processed_at DESC, id DESC
		 LIMIT 1`,
		conversationID,
	).Scan(
		&entry.ID, &entry.ConversationID, &entry.UserID, &entry.ProcessedAt,
		&entry.IsUseful, &entry.Reason, &entry.TopicsExtracted, &entry.InsightsCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading processing log: %w", err)
	}
	return &entry, nil
}

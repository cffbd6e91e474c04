package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// AddMessage appends a message to a conversation and increments its message
// count. Only user turns bump the activity timestamp; assistant turns and
// processor writes leave it alone so idle detection tracks user silence.
func (s *Store) AddMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	m := &model.Message{
		ID:             newID("msg"),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().Unix(),
	}

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		query := `UPDATE conversations SET message_count = message_count + 1 WHERE id = ?`
		args := []any{m.ConversationID}
		if role == model.RoleUser {
			query = `UPDATE conversations SET message_count = message_count + 1, updated_at = ? WHERE id = ?`
			args = []any{m.CreatedAt, m.ConversationID}
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating conversation activity: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessages returns all messages of a conversation in chronological order.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

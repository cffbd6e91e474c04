package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

const conversationColumns = `id, user_id, summary, message_count, created_at, updated_at,
	processed, is_useful, usefulness_reason, global_sharing_blocked, deleted, deleted_at`

// CreateConversation creates an empty conversation owned by the given user.
func (s *Store) CreateConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	now := time.Now().Unix()
	c := &model.Conversation{
		ID:        newID("conv"),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns a conversation by id regardless of deletion state;
// callers decide whether deleted rows are visible.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return getConversation(ctx, s.db, id)
}

func getConversation(ctx context.Context, q querier, id string) (*model.Conversation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	return c, nil
}

// ListUserConversations returns the user's non-deleted conversations,
// most recently active first.
func (s *Store) ListUserConversations(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = ? AND deleted = 0
		 ORDER BY updated_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// GetProcessableConversations returns up to limit conversations eligible for
// deferred processing: unprocessed, non-empty, not deleted, and idle since
// before the given cutoff. Oldest activity first.
func (s *Store) GetProcessableConversations(ctx context.Context, idleBefore int64, limit int) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE processed = 0 AND message_count > 0 AND deleted = 0 AND updated_at < ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?`,
		idleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting processable conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// CountPendingConversations counts conversations awaiting processing,
// regardless of the idle cutoff.
func (s *Store) CountPendingConversations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE processed = 0 AND message_count > 0 AND deleted = 0`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending conversations: %w", err)
	}
	return n, nil
}

// MarkConversationProcessed stamps a processor verdict without touching the
// activity timestamp.
func (s *Store) MarkConversationProcessed(ctx context.Context, id string, isUseful bool, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET processed = 1, is_useful = ?, usefulness_reason = ? WHERE id = ?`,
		boolInt(isUseful), reason, id,
	)
	if err != nil {
		return fmt.Errorf("marking conversation processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGlobalSharingBlocked sets the PII block flag on a conversation.
func (s *Store) SetGlobalSharingBlocked(ctx context.Context, id string, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET global_sharing_blocked = ? WHERE id = ?`,
		boolInt(blocked), id,
	)
	if err != nil {
		return fmt.Errorf("updating sharing block: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsGlobalSharingBlocked reports whether the conversation is blocked from
// global propagation.
func (s *Store) IsGlobalSharingBlocked(ctx context.Context, id string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT global_sharing_blocked FROM conversations WHERE id = ?`, id,
	).Scan(&blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("reading sharing block: %w", err)
	}
	return blocked, nil
}

// DeleteConversationFromUserGraph soft-deletes a conversation: ownership is
// verified, owned insights are rewritten to the anonymous user, topic links
// are removed so the topics stop counting toward the user's map, and the
// row is marked deleted. Messages and global insights stay.
func (s *Store) DeleteConversationFromUserGraph(ctx context.Context, conversationID, userID string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := getConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return ErrNotOwner
		}
		if c.Deleted {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE insights SET user_id = ? WHERE conversation_id = ?`,
			model.AnonymousUserID, conversationID,
		); err != nil {
			return fmt.Errorf("anonymizing insights: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM conversation_topics WHERE conversation_id = ?`, conversationID,
		); err != nil {
			return fmt.Errorf("removing topic links: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET deleted = 1, deleted_at = ? WHERE id = ?`,
			time.Now().Unix(), conversationID,
		); err != nil {
			return fmt.Errorf("marking conversation deleted: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		c         model.Conversation
		isUseful  sql.NullBool
		deletedAt sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Summary, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt,
		&c.Processed, &isUseful, &c.UsefulnessReason, &c.GlobalSharingBlocked,
		&c.Deleted, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if isUseful.Valid {
		v := isUseful.Bool
		c.IsUseful = &v
	}
	if deletedAt.Valid {
		v := deletedAt.Int64
		c.DeletedAt = &v
	}
	return &c, nil
}

func scanConversations(rows *sql.Rows) ([]model.Conversation, error) {
	out := []model.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

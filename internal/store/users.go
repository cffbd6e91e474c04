package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// EnsureUser returns the user with the given id, creating it on first
// reference with global sharing consent off.
func (s *Store) EnsureUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, consent_global, created_at) VALUES (?, 0, ?)`,
		id, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q querier, id string) (*model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx,
		`SELECT id, consent_global, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.ConsentGlobal, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading user: %w", err)
	}
	return &u, nil
}

// SetGlobalConsent sets whether the user's derived insights may propagate
// into the global pool.
func (s *Store) SetGlobalConsent(ctx context.Context, userID string, consent bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET consent_global = ? WHERE id = ?`, boolInt(consent), userID,
	)
	if err != nil {
		return fmt.Errorf("updating consent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

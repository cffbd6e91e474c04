// Package vector adapts embedding indexes behind one interface the chat
// pipeline and processor write semantic material through.
package vector

import (
	"context"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// Index is a semantic store that embeds document text on write.
type Index interface {
	// Store upserts one document with its metadata.
	Store(ctx context.Context, id, content, userID string, topics []string) error

	// Search returns the closest documents to the query, best first. An
	// empty userID searches across all users.
	Search(ctx context.Context, query, userID string, topK int) ([]model.SemanticMatch, error)

	// Delete removes one document. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
}

// Disabled is the no-op index used when no vector backend is configured.
type Disabled struct{}

func (Disabled) Store(context.Context, string, string, string, []string) error { return nil }

func (Disabled) Search(context.Context, string, string, int) ([]model.SemanticMatch, error) {
	return nil, nil
}

func (Disabled) Delete(context.Context, string) error { return nil }

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// markUseful stamps a processed/useful verdict with a summary, the state a
// conversation is in after promotion.
func markUseful(t *testing.T, s *Store, conversationID, summary string) {
	t.Helper()
	_, err := s.db.Exec(
		`UPDATE conversations SET processed = 1, is_useful = 1, summary = ? WHERE id = ?`,
		summary, conversationID,
	)
	require.NoError(t, err)
}

func TestGlobalConversationSummariesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	shared := seedConversation(t, s, "user-1", "tls basics")
	markUseful(t, s, shared.ID, "TLS handshake walkthrough")

	own := seedConversation(t, s, "caller", "my own chat")
	markUseful(t, s, own.ID, "Caller's summary")

	blocked := seedConversation(t, s, "user-2", "pii here")
	markUseful(t, s, blocked.ID, "Contains an email address")
	require.NoError(t, s.SetGlobalSharingBlocked(ctx, blocked.ID, true))

	unprocessed := seedConversation(t, s, "user-3", "still open")
	_ = unprocessed

	noSummary := seedConversation(t, s, "user-4", "useful but unsummarized")
	markUseful(t, s, noSummary.ID, "")

	got, err := s.GetGlobalConversationSummaries(ctx, "caller", 15)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shared.ID, got[0].ConversationID)
	assert.Equal(t, "TLS handshake walkthrough", got[0].Summary)

	// Without an exclusion the caller's own summary is visible.
	got, err = s.GetGlobalConversationSummaries(ctx, "", 15)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGlobalSummariesExcludeDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := seedConversation(t, s, "user-1", "ephemeral wisdom")
	markUseful(t, s, conv.ID, "Distilled and then deleted")
	require.NoError(t, s.DeleteConversationFromUserGraph(ctx, conv.ID, "user-1"))

	got, err := s.GetGlobalConversationSummaries(ctx, "", 15)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGlobalInsightUpsertAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := seedConversation(t, s, "user-1", "shared knowledge")
	globalID := model.GlobalInsightIDPrefix + conv.ID

	require.NoError(t, s.UpsertGlobalInsight(ctx, globalID, "First version", "topic_a,topic_b"))
	require.NoError(t, s.UpsertGlobalInsight(ctx, globalID, "Second version", "topic_a"))

	g, err := s.GetGlobalInsight(ctx, globalID)
	require.NoError(t, err)
	assert.Equal(t, "Second version", g.Content, "upsert overwrites, never duplicates")
	assert.Equal(t, "topic_a", g.TopicIDs)

	got, err := s.GetGlobalInsights(ctx, "", 15)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// The author's own rows are excluded when requested.
	got, err = s.GetGlobalInsights(ctx, "user-1", 15)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A PII block hides the conversation's global insight.
	require.NoError(t, s.SetGlobalSharingBlocked(ctx, conv.ID, true))
	got, err = s.GetGlobalInsights(ctx, "", 15)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGlobalInsightSurvivesSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := seedConversation(t, s, "user-1", "lasting knowledge")
	globalID := model.GlobalInsightIDPrefix + conv.ID
	require.NoError(t, s.UpsertGlobalInsight(ctx, globalID, "Outlives the conversation", "t1"))

	before, err := s.GetGlobalInsight(ctx, globalID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversationFromUserGraph(ctx, conv.ID, "user-1"))

	after, err := s.GetGlobalInsight(ctx, globalID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Still served in the global pool.
	got, err := s.GetGlobalInsights(ctx, "", 15)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, globalID, got[0].ID)
}

func TestIncrementGlobalInsightUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := seedConversation(t, s, "user-1", "popular knowledge")
	globalID := model.GlobalInsightIDPrefix + conv.ID
	require.NoError(t, s.UpsertGlobalInsight(ctx, globalID, "Often cited", "t1"))

	require.NoError(t, s.IncrementGlobalInsightUse(ctx, []string{globalID}))
	require.NoError(t, s.IncrementGlobalInsightUse(ctx, []string{globalID}))
	require.NoError(t, s.IncrementGlobalInsightUse(ctx, nil))

	g, err := s.GetGlobalInsight(ctx, globalID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.UseCount)
}

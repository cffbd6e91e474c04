package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/internal/store"
)

// seedGlobalPool promotes one consented conversation for donor so the
// global pool holds a summary and a global insight other users can see.
func seedGlobalPool(t *testing.T, s *store.Store, donor string) {
	t.Helper()
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, donor)
	require.NoError(t, s.SetGlobalConsent(ctx, donor, true))

	res, err := s.PromoteConversation(ctx, conv, store.Promotion{
		Summary:  "Walked through B-tree node splits",
		Reason:   "Substantive technical discussion",
		Topics:   []string{"b-trees"},
		Insights: []string{"Splits push the median key up one level"},
	})
	require.NoError(t, err)
	require.True(t, res.GlobalInsight)
}

func TestAssembleContextSectionOrder(t *testing.T) {
	p, s, fl, fi := newTestPipeline(t)
	ctx := context.Background()

	conv := seedOwnedConversation(t, s, "user-1")
	topic, err := s.GetOrCreateTopic(ctx, "storage", "")
	require.NoError(t, err)
	_, err = s.CreateInsight(ctx, conv.ID, "user-1", "Runs Postgres on ZFS", model.ImportanceScoreExtracted, []string{topic.ID})
	require.NoError(t, err)

	seedGlobalPool(t, s, "donor")
	fi.matches = []model.SemanticMatch{{ID: "v1", Content: "WAL fsync cadence notes", Score: 0.9}}

	_, err = p.Send(ctx, userTurn("user-1", "How should I tune checkpoints?"))
	require.NoError(t, err)

	block := fl.lastContext
	personal := strings.Index(block, "What you know about this user:")
	shared := strings.Index(block, "Shared knowledge from other conversations:")
	semantic := strings.Index(block, "Semantically similar notes:")
	require.GreaterOrEqual(t, personal, 0)
	require.Greater(t, shared, personal)
	require.Greater(t, semantic, shared)

	assert.Contains(t, block, "[storage] Runs Postgres on ZFS")
	assert.Contains(t, block, "Walked through B-tree node splits")
	assert.Contains(t, block, "Splits push the median key up one level")
	assert.Contains(t, block, "WAL fsync cadence notes")
	assert.NotContains(t, block, "Knowledge on topics this user has explored:",
		"related fallback only fires when the personal pool is empty")
}

func TestAssembleContextExcludesOwnGlobalRows(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	seedGlobalPool(t, s, "user-1")

	own, err := p.AssembleContext(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Empty(t, own.GlobalSummaries)
	assert.Empty(t, own.GlobalInsights)

	other, err := p.AssembleContext(ctx, "user-2", "")
	require.NoError(t, err)
	assert.Len(t, other.GlobalSummaries, 1)
	assert.Len(t, other.GlobalInsights, 1)
}

func TestAssembleContextBumpsGlobalUseCounts(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	seedGlobalPool(t, s, "donor")

	bundle, err := p.AssembleContext(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, bundle.GlobalInsights, 1)
	assert.Zero(t, bundle.GlobalInsights[0].UseCount)

	g, err := s.GetGlobalInsight(ctx, bundle.GlobalInsights[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.UseCount)
}

func TestAssembleContextRelatedFallback(t *testing.T) {
	p, s, _, _ := newTestPipeline(t)
	ctx := context.Background()

	// user-1 engaged the topic but owns no insights yet.
	conv := seedOwnedConversation(t, s, "user-1")
	topic, err := s.GetOrCreateTopic(ctx, "kubernetes", "")
	require.NoError(t, err)
	require.NoError(t, s.LinkConversationToTopic(ctx, conv.ID, topic.ID))

	donorConv := seedOwnedConversation(t, s, "donor")
	_, err = s.CreateInsight(ctx, donorConv.ID, "donor", "Requests without limits invite eviction", model.ImportanceScoreExtracted, []string{topic.ID})
	require.NoError(t, err)

	bundle, err := p.AssembleContext(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Empty(t, bundle.PersonalInsights)
	require.Len(t, bundle.RelatedInsights, 1)
	assert.Equal(t, "Requests without limits invite eviction", bundle.RelatedInsights[0].Content)

	// Once the user owns an insight the fallback goes quiet.
	_, err = s.CreateInsight(ctx, conv.ID, "user-1", "Prefers kustomize over helm", model.ImportanceScoreExtracted, []string{topic.ID})
	require.NoError(t, err)
	bundle, err = p.AssembleContext(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, bundle.PersonalInsights, 1)
	assert.Empty(t, bundle.RelatedInsights)
}

func TestAssembleContextVectorFailureDegrades(t *testing.T) {
	p, _, _, fi := newTestPipeline(t)

	fi.searchErr = errors.New("index unreachable")
	bundle, err := p.AssembleContext(context.Background(), "user-1", "any query")
	require.NoError(t, err)
	assert.Empty(t, bundle.SemanticMatches)
}

func TestAssembleContextFiltersLowScores(t *testing.T) {
	p, _, _, fi := newTestPipeline(t)

	fi.matches = []model.SemanticMatch{
		{ID: "v1", Content: "strong match", Score: 0.82},
		{ID: "v2", Content: "weak match", Score: 0.31},
	}
	bundle, err := p.AssembleContext(context.Background(), "user-1", "query")
	require.NoError(t, err)
	require.Len(t, bundle.SemanticMatches, 1)
	assert.Equal(t, "strong match", bundle.SemanticMatches[0].Content)
}

func TestAssembleContextEmptyQuerySkipsSearch(t *testing.T) {
	p, _, _, fi := newTestPipeline(t)

	fi.matches = []model.SemanticMatch{{ID: "v1", Content: "anything", Score: 0.9}}
	bundle, err := p.AssembleContext(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.Empty(t, bundle.SemanticMatches)
	assert.Empty(t, fi.lastQuery)
}

func TestRenderContextEmptyBundle(t *testing.T) {
	bundle := &model.ContextBundle{}
	assert.Empty(t, renderContext(bundle))
}

func TestRenderContextInsightLineFormat(t *testing.T) {
	bundle := &model.ContextBundle{
		PersonalInsights: []model.Insight{
			{Content: "Ships on Fridays", Topics: []string{"release", "process"}},
			{Content: "Avoids ORMs"},
		},
	}
	block := renderContext(bundle)
	assert.Contains(t, block, "- [release, process] Ships on Fridays")
	assert.Contains(t, block, "- Avoids ORMs")
}

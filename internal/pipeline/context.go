package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
)

// AssembleContext gathers the grounding material for one user turn, in
// priority order: the user's recent insights, the shareable global pool,
// related-topic insights when the personal pool is empty, and semantic
// matches from the vector index. Vector failures degrade to an empty
// section; an empty query skips semantic recall entirely.
func (p *Pipeline) AssembleContext(ctx context.Context, userID, query string) (*model.ContextBundle, error) {
	bundle := &model.ContextBundle{
		PersonalInsights: []model.Insight{},
		GlobalSummaries:  []model.ConversationSummary{},
		GlobalInsights:   []model.GlobalInsight{},
		RelatedInsights:  []model.Insight{},
		SemanticMatches:  []model.SemanticMatch{},
	}

	personal, err := p.store.GetRecentUserInsights(ctx, userID, personalInsightLimit)
	if err != nil {
		return nil, fmt.Errorf("reading personal insights: %w", err)
	}
	bundle.PersonalInsights = personal

	summaries, err := p.store.GetGlobalConversationSummaries(ctx, userID, globalSummaryLimit)
	if err != nil {
		return nil, fmt.Errorf("reading global summaries: %w", err)
	}
	bundle.GlobalSummaries = summaries

	globals, err := p.store.GetGlobalInsights(ctx, userID, globalInsightLimit)
	if err != nil {
		return nil, fmt.Errorf("reading global insights: %w", err)
	}
	bundle.GlobalInsights = globals

	if len(globals) > 0 {
		ids := make([]string, len(globals))
		for i, g := range globals {
			ids[i] = g.ID
		}
		if err := p.store.IncrementGlobalInsightUse(ctx, ids); err != nil {
			p.log.Warn("bumping global insight use counts", zap.Error(err))
		}
	}

	// Related-topic fallback: only when the user has engaged topics but no
	// insights of their own yet.
	if len(personal) == 0 {
		userTopics, err := p.store.GetUserTopics(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("reading user topics: %w", err)
		}
		if len(userTopics) > 0 {
			names := make([]string, 0, len(userTopics))
			for _, ut := range userTopics {
				names = append(names, ut.Topic.Name)
			}
			related, err := p.store.GetRelatedInsights(ctx, names, userID, relatedInsightLimit)
			if err != nil {
				return nil, fmt.Errorf("reading related insights: %w", err)
			}
			bundle.RelatedInsights = related
		}
	}

	if query != "" {
		matches, err := p.index.Search(ctx, query, userID, p.vectorTopK)
		if err != nil {
			p.log.Warn("vector search failed", zap.Error(err))
		} else {
			for _, m := range matches {
				if m.Score >= p.vectorMinScore {
					bundle.SemanticMatches = append(bundle.SemanticMatches, m)
				}
			}
		}
	}

	return bundle, nil
}

// renderContext flattens a bundle into the prompt preamble: non-empty
// sections concatenated in assembly order.
func renderContext(bundle *model.ContextBundle) string {
	var sections []string

	if len(bundle.PersonalInsights) > 0 {
		var b strings.Builder
		b.WriteString("What you know about this user:\n")
		for _, ins := range bundle.PersonalInsights {
			writeInsightLine(&b, ins)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if len(bundle.GlobalSummaries) > 0 || len(bundle.GlobalInsights) > 0 {
		var b strings.Builder
		b.WriteString("Shared knowledge from other conversations:\n")
		for _, s := range bundle.GlobalSummaries {
			fmt.Fprintf(&b, "- %s\n", s.Summary)
		}
		for _, g := range bundle.GlobalInsights {
			fmt.Fprintf(&b, "- %s\n", g.Content)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if len(bundle.RelatedInsights) > 0 {
		var b strings.Builder
		b.WriteString("Knowledge on topics this user has explored:\n")
		for _, ins := range bundle.RelatedInsights {
			writeInsightLine(&b, ins)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if len(bundle.SemanticMatches) > 0 {
		var b strings.Builder
		b.WriteString("Semantically similar notes:\n")
		for _, m := range bundle.SemanticMatches {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func writeInsightLine(b *strings.Builder, ins model.Insight) {
	if len(ins.Topics) > 0 {
		fmt.Fprintf(b, "- [%s] %s\n", strings.Join(ins.Topics, ", "), ins.Content)
	} else {
		fmt.Fprintf(b, "- %s\n", ins.Content)
	}
}

package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/knowledge-graph/internal/model"
	"github.com/capitalize-ai/knowledge-graph/pkg/metrics"
)

// Embedder turns text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder embeds through the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL uses the public
// API endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, embeddingModel string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(embeddingModel),
	}
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// LocalIndex is a brute-force in-memory index. It embeds on write and ranks
// by cosine similarity, which is plenty for development-sized corpora.
type LocalIndex struct {
	embedder Embedder

	mu   sync.RWMutex
	docs map[string]localDoc
}

type localDoc struct {
	content string
	userID  string
	topics  []string
	vec     []float32
}

// NewLocalIndex creates an empty index backed by the given embedder.
func NewLocalIndex(embedder Embedder) *LocalIndex {
	return &LocalIndex{
		embedder: embedder,
		docs:     map[string]localDoc{},
	}
}

// Store embeds the content and upserts the document.
func (l *LocalIndex) Store(ctx context.Context, id, content, userID string, topics []string) error {
	vecs, err := l.embedder.Embed(ctx, []string{content})
	if err != nil {
		metrics.RecordVectorOperation("store", "error")
		return fmt.Errorf("embedding document: %w", err)
	}

	l.mu.Lock()
	l.docs[id] = localDoc{content: content, userID: userID, topics: topics, vec: vecs[0]}
	l.mu.Unlock()

	metrics.RecordVectorOperation("store", "ok")
	return nil
}

// Search embeds the query and returns the topK closest documents.
func (l *LocalIndex) Search(ctx context.Context, query, userID string, topK int) ([]model.SemanticMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	vecs, err := l.embedder.Embed(ctx, []string{query})
	if err != nil {
		metrics.RecordVectorOperation("search", "error")
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qv := vecs[0]

	l.mu.RLock()
	matches := make([]model.SemanticMatch, 0, len(l.docs))
	for id, doc := range l.docs {
		if userID != "" && doc.userID != userID {
			continue
		}
		matches = append(matches, model.SemanticMatch{
			ID:      id,
			Content: doc.content,
			Topics:  doc.topics,
			Score:   cosineSimilarity(qv, doc.vec),
		})
	}
	l.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	metrics.RecordVectorOperation("search", "ok")
	return matches, nil
}

// Delete removes a document.
func (l *LocalIndex) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	delete(l.docs, id)
	l.mu.Unlock()
	metrics.RecordVectorOperation("delete", "ok")
	return nil
}

// cosineSimilarity accumulates in float64 for precision with float32 inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

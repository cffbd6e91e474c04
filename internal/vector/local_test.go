package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps exact texts to fixed vectors so similarity ordering is
// under test control.
type stubEmbedder struct {
	vecs  map[string][]float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := s.vecs[text]
		if !ok {
			vec = []float32{0, 0}
		}
		out[i] = vec
	}
	return out, nil
}

func TestLocalIndexRanksBySimilarity(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"locks":         {1, 0},
		"mutex notes":   {0.9, 0.1},
		"sourdough tip": {0, 1},
		"rwlock notes":  {0.7, 0.3},
	}}
	idx := NewLocalIndex(emb)
	ctx := context.Background()

	require.NoError(t, idx.Store(ctx, "d1", "mutex notes", "user-1", []string{"go"}))
	require.NoError(t, idx.Store(ctx, "d2", "sourdough tip", "user-1", nil))
	require.NoError(t, idx.Store(ctx, "d3", "rwlock notes", "user-1", nil))

	matches, err := idx.Search(ctx, "locks", "", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "d1", matches[0].ID)
	assert.Equal(t, "d3", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, []string{"go"}, matches[0].Topics)
}

func TestLocalIndexFiltersByUser(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"query": {1, 0},
		"mine":  {1, 0},
		"other": {1, 0},
	}}
	idx := NewLocalIndex(emb)
	ctx := context.Background()

	require.NoError(t, idx.Store(ctx, "d1", "mine", "user-1", nil))
	require.NoError(t, idx.Store(ctx, "d2", "other", "user-2", nil))

	matches, err := idx.Search(ctx, "query", "user-1", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d1", matches[0].ID)

	matches, err = idx.Search(ctx, "query", "", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestLocalIndexZeroTopKSkipsEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	idx := NewLocalIndex(emb)

	matches, err := idx.Search(context.Background(), "anything", "", 0)
	require.NoError(t, err)
	assert.Nil(t, matches)
	assert.Zero(t, emb.calls)
}

func TestLocalIndexEmbedFailure(t *testing.T) {
	emb := &stubEmbedder{err: assert.AnError}
	idx := NewLocalIndex(emb)
	ctx := context.Background()

	assert.Error(t, idx.Store(ctx, "d1", "text", "user-1", nil))

	_, err := idx.Search(ctx, "query", "", 3)
	assert.Error(t, err)
}

func TestLocalIndexUpsertAndDelete(t *testing.T) {
	emb := &stubEmbedder{vecs: map[string][]float32{
		"query": {1, 0},
		"old":   {1, 0},
		"new":   {1, 0},
	}}
	idx := NewLocalIndex(emb)
	ctx := context.Background()

	require.NoError(t, idx.Store(ctx, "d1", "old", "user-1", nil))
	require.NoError(t, idx.Store(ctx, "d1", "new", "user-1", nil))

	matches, err := idx.Search(ctx, "query", "", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Content)

	require.NoError(t, idx.Delete(ctx, "d1"))
	require.NoError(t, idx.Delete(ctx, "d1"))

	matches, err = idx.Search(ctx, "query", "", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{0, 1}))
	assert.Zero(t, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}

func TestDisabledIndexIsInert(t *testing.T) {
	var idx Disabled
	ctx := context.Background()

	assert.NoError(t, idx.Store(ctx, "d1", "text", "user-1", nil))

	matches, err := idx.Search(ctx, "query", "", 5)
	assert.NoError(t, err)
	assert.Nil(t, matches)

	assert.NoError(t, idx.Delete(ctx, "d1"))
}

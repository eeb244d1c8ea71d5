package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"dstgpt/llm/vector/vectortest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalStore, *vectortest.HashEmbedder, string) {
	t.Helper()
	emb := &vectortest.HashEmbedder{}
	path := filepath.Join(t.TempDir(), "database", "index.json")

	s, created, err := OpenLocalStore(context.Background(), emb, "hash", path)
	require.NoError(t, err)
	require.True(t, created)
	return s, emb, path
}

func TestLocalStore_CreateSeedsSmokeTest(t *testing.T) {
	s, emb, path := newLocal(t)

	assert.True(t, IndexExists(path))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, len(smokeTestTexts), n)
	assert.Equal(t, []int{len(smokeTestTexts)}, emb.Batches())
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLocal(t)

	chunks := []Chunk{
		{Text: "Wilson is a gentleman scientist", Metadata: map[string]any{"character": "wilson"}},
		{Text: "Willow carries a lighter and loves fire", Metadata: map[string]any{"character": "willow"}},
		{Text: "Wolfgang grows mightier when well fed"},
	}
	require.NoError(t, s.Add(ctx, chunks))

	results, err := s.Retrieve(ctx, chunks[1].Text, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, chunks[1].Text, results[0].Text)
	assert.Equal(t, "willow", results[0].Metadata["character"])
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestLocalStore_DefaultTopK(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLocal(t)

	var chunks []Chunk
	for i := range 8 {
		chunks = append(chunks, Chunk{Text: fmt.Sprintf("recipe number %d", i)})
	}
	require.NoError(t, s.Add(ctx, chunks))

	results, err := s.Retrieve(ctx, "recipe", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestLocalStore_BatchesOfTen(t *testing.T) {
	ctx := context.Background()
	s, emb, _ := newLocal(t)

	chunks := make([]Chunk, 23)
	for i := range chunks {
		chunks[i] = Chunk{Text: fmt.Sprintf("chunk %d", i)}
	}
	require.NoError(t, s.Add(ctx, chunks))

	assert.Equal(t, []int{len(smokeTestTexts), 10, 10, 3}, emb.Batches())

	// 顺序与写入一致
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, c := range chunks {
		assert.Equal(t, c.Text, s.docs[len(smokeTestTexts)+i].Text)
	}
}

func TestLocalStore_ReopenIsAdditive(t *testing.T) {
	ctx := context.Background()
	s, emb, path := newLocal(t)
	require.NoError(t, s.Add(ctx, []Chunk{{Text: "Deerclops appears in winter", Metadata: map[string]any{"season": "winter"}}}))

	reopened, created, err := OpenLocalStore(ctx, emb, "other-model", path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "hash", reopened.EmbeddingModel())

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(smokeTestTexts)+1, n)

	results, err := reopened.Retrieve(ctx, "Deerclops appears in winter", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "winter", results[0].Metadata["season"])
}

func TestLocalStore_FailedEmbedWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, emb, path := newLocal(t)

	emb.Err = vectortest.ErrUnavailable
	err := s.Add(ctx, []Chunk{{Text: "lost"}})
	assert.ErrorIs(t, err, vectortest.ErrUnavailable)

	emb.Err = nil
	reopened, _, err := OpenLocalStore(ctx, emb, "hash", path)
	require.NoError(t, err)
	n, _ := reopened.Count(ctx)
	assert.EqualValues(t, len(smokeTestTexts), n)
}

func TestLocalStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, _, path := newLocal(t)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, IndexExists(path))

	_, err := s.Retrieve(ctx, "anything", 1)
	assert.ErrorIs(t, err, ErrVectorStoreNotInitialized)
	assert.ErrorIs(t, s.Add(ctx, []Chunk{{Text: "x"}}), ErrVectorStoreNotInitialized)
}

func TestLocalStore_CloseStopsWrites(t *testing.T) {
	ctx := context.Background()
	s, emb, path := newLocal(t)
	require.NoError(t, s.Add(ctx, []Chunk{{Text: "Bee Queen guards the gigantic beehive"}}))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Add(ctx, []Chunk{{Text: "written after close"}}), ErrVectorStoreNotInitialized)

	// 已关闭的句柄仍可读
	results, err := s.Retrieve(ctx, "Bee Queen guards the gigantic beehive", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	reopened, _, err := OpenLocalStore(ctx, emb, "hash", path)
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(smokeTestTexts)+1, n)
}

func TestOpenOrCreate_Backends(t *testing.T) {
	ctx := context.Background()
	emb := &vectortest.HashEmbedder{}
	dir := t.TempDir()

	store, created, err := OpenOrCreate(ctx, emb, StoreOptions{Directory: dir})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, IndexExists(filepath.Join(dir, "index.json")))
	require.NoError(t, store.Close())

	_, _, err = OpenOrCreate(ctx, emb, StoreOptions{Backend: "sqlite", Directory: dir})
	assert.Error(t, err)

	_, _, err = OpenOrCreate(ctx, nil, StoreOptions{Directory: dir})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

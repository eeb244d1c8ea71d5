package vector

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_TopKAndScores(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLocal(t)
	require.NoError(t, s.Add(ctx, []Chunk{
		{Text: "Chester follows the eye bone", Metadata: map[string]any{"mob": "chester"}},
		{Text: "Glommer follows the glommer flower"},
		{Text: "Hutch lives in the caves"},
	}))

	r := NewRetriever(s, 2)

	docs, err := r.Retrieve(ctx, "Chester follows the eye bone")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Chester follows the eye bone", docs[0].Content)
	assert.Equal(t, "chester", docs[0].MetaData["mob"])
	assert.InDelta(t, 1.0, docs[0].Score(), 1e-5)

	docs, err = r.Retrieve(ctx, "follows", retriever.WithTopK(1))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRetriever_NilStore(t *testing.T) {
	_, err := NewRetriever(nil, 0).Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrVectorStoreNotInitialized)
}

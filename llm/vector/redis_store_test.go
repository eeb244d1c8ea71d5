package vector

import (
	"context"
	"testing"

	"dstgpt/llm/vector/vectortest"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRedisStore_RequiresSearchModule(t *testing.T) {
	mr := miniredis.RunT(t)

	_, _, err := OpenRedisStore(context.Background(), &vectortest.HashEmbedder{}, "hash", RedisConfig{
		Addr:      mr.Addr(),
		IndexName: "test-knowledge",
		VectorDim: vectortest.Dim,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create vector index")
}

func TestOpenRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := OpenRedisStore(context.Background(), &vectortest.HashEmbedder{}, "hash", RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestEncodeVector_LittleEndianFloat32(t *testing.T) {
	blob := encodeVector([]float32{0, 1.5, -2.25})
	assert.Equal(t, []byte{
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0xc0, 0x3f,
		0x00, 0x00, 0x10, 0xc0,
	}, blob)
	assert.Empty(t, encodeVector(nil))
}

func TestParseSearchResults(t *testing.T) {
	reply := []any{
		int64(2),
		"kb:a1", []any{"content", "Wes is a mime", "metadata", `{"character":"wes"}`, "score", "0.25"},
		"kb:b2", []any{"content", "Maxwell is the puppet master", "metadata", "null", "score", "0.5"},
	}

	results, err := parseSearchResults(reply, "kb:")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a1", results[0].ID)
	assert.Equal(t, "Wes is a mime", results[0].Text)
	assert.Equal(t, "wes", results[0].Metadata["character"])
	assert.InDelta(t, 0.75, results[0].Score, 1e-6)
	assert.InDelta(t, 0.5, results[1].Score, 1e-6)

	_, err = parseSearchResults("nope", "kb:")
	assert.Error(t, err)
}

func TestParseNumDocs(t *testing.T) {
	n, err := parseNumDocs([]any{"index_name", "kb", "num_docs", "12"})
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)

	n, err = parseNumDocs([]any{"num_docs", int64(3)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

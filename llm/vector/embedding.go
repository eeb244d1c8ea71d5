package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
)

// EmbeddingService wraps an embedding model for vector generation
type EmbeddingService struct {
	embedder embedding.Embedder
	model    string
	dim      int
	mu       sync.RWMutex
}

// NewEmbeddingService creates a new embedding service.
// A dim of zero means the dimension is learned from the first response.
func NewEmbeddingService(embedder embedding.Embedder, model string, dim int) *EmbeddingService {
	return &EmbeddingService{
		embedder: embedder,
		model:    model,
		dim:      dim,
	}
}

// Embed generates an embedding vector for a single text
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one request
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	vectors, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	result := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding returned")
		}
		if err := s.checkDim(len(vec)); err != nil {
			return nil, err
		}
		result[i] = toFloat32(vec)
	}

	return result, nil
}

func (s *EmbeddingService) checkDim(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = n
		return nil
	}
	if s.dim != n {
		return fmt.Errorf("embedding dimension mismatch: index uses %d, model %q returned %d", s.dim, s.model, n)
	}
	return nil
}

// Dimension returns the embedding dimension, zero until known
func (s *EmbeddingService) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Model returns the embedding model name recorded with the index
func (s *EmbeddingService) Model() string {
	return s.model
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
)

const indexVersion = "1"

// indexFile is the persisted layout of a local store
type indexFile struct {
	Version        string        `json:"version"`
	EmbeddingModel string        `json:"embedding_model"`
	Dimension      int           `json:"dimension"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
	Documents      []storedChunk `json:"documents"`
}

type storedChunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LocalStore keeps every chunk in memory and persists the whole index to a
// single file after each batch. Search is an exhaustive cosine scan.
type LocalStore struct {
	path      string
	embedding *EmbeddingService
	mu        sync.RWMutex
	docs      []storedChunk
	createdAt string
	cleared   bool
	// closed stops writes; a question already holding the store may still read it
	closed bool
}

// IndexExists reports whether a local index marker file is present at path
func IndexExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// OpenLocalStore opens the index at path, or creates it seeded with the smoke-test pair.
func OpenLocalStore(ctx context.Context, embedder embedding.Embedder, model, path string) (*LocalStore, bool, error) {
	if IndexExists(path) {
		s, err := loadLocalStore(embedder, model, path)
		return s, false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("failed to create vector store directory: %w", err)
	}

	s := &LocalStore{
		path:      path,
		embedding: NewEmbeddingService(embedder, model, 0),
		createdAt: time.Now().Format(time.RFC3339),
	}

	seed := make([]Chunk, len(smokeTestTexts))
	for i, text := range smokeTestTexts {
		seed[i] = Chunk{Text: text}
	}
	if err := s.Add(ctx, seed); err != nil {
		return nil, false, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	return s, true, nil
}

func loadLocalStore(embedder embedding.Embedder, model, path string) (*LocalStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector store: %w", err)
	}

	var idx indexFile
	if err := sonic.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse vector store %s: %w", path, err)
	}

	// 记录的模型优先：同一索引必须用写入时的 embedding 读
	if idx.EmbeddingModel != "" {
		model = idx.EmbeddingModel
	}

	return &LocalStore{
		path:      path,
		embedding: NewEmbeddingService(embedder, model, idx.Dimension),
		docs:      idx.Documents,
		createdAt: idx.CreatedAt,
	}, nil
}

// EmbeddingModel returns the embedding model recorded with the index
func (s *LocalStore) EmbeddingModel() string {
	return s.embedding.Model()
}

// Path returns the marker file location
func (s *LocalStore) Path() string {
	return s.path
}

// Add embeds chunks in batches and persists the index after each batch
func (s *LocalStore) Add(ctx context.Context, chunks []Chunk) error {
	for _, batch := range batches(chunks, batchSize) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedding.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.cleared || s.closed {
			s.mu.Unlock()
			return ErrVectorStoreNotInitialized
		}
		prev := len(s.docs)
		for i, c := range batch {
			s.docs = append(s.docs, storedChunk{
				ID:       uuid.NewString(),
				Text:     c.Text,
				Vector:   vectors[i],
				Metadata: c.Metadata,
			})
		}
		if err := s.saveLocked(); err != nil {
			s.docs = s.docs[:prev]
			s.mu.Unlock()
			return err
		}
		s.mu.Unlock()
	}
	return nil
}

// Retrieve ranks every stored chunk by cosine similarity to the query
func (s *LocalStore) Retrieve(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	s.mu.RLock()
	empty := len(s.docs) == 0
	cleared := s.cleared
	s.mu.RUnlock()
	if cleared {
		return nil, ErrVectorStoreNotInitialized
	}
	if empty {
		return []ScoredChunk{}, nil
	}

	queryVector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	s.mu.RLock()
	results := make([]ScoredChunk, 0, len(s.docs))
	for _, doc := range s.docs {
		results = append(results, ScoredChunk{
			Chunk: Chunk{Text: doc.Text, Metadata: doc.Metadata},
			ID:    doc.ID,
			Score: cosineSimilarity(queryVector, doc.Vector),
		})
	}
	s.mu.RUnlock()

	slices.SortStableFunc(results, func(a, b ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	return results[:min(k, len(results))], nil
}

// Count returns the number of stored chunks, smoke-test pair included
func (s *LocalStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

// Clear deletes the index file; the store cannot be used afterwards
func (s *LocalStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = nil
	s.cleared = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete vector store: %w", err)
	}
	return nil
}

// Close stops further writes. Every batch is already on disk, so the file is
// left as is for the next owner.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// saveLocked writes the index atomically; the caller holds s.mu.
func (s *LocalStore) saveLocked() error {
	idx := indexFile{
		Version:        indexVersion,
		EmbeddingModel: s.embedding.Model(),
		Dimension:      s.embedding.Dimension(),
		CreatedAt:      s.createdAt,
		UpdatedAt:      time.Now().Format(time.RFC3339),
		Documents:      s.docs,
	}

	data, err := sonic.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to encode vector store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write vector store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace vector store: %w", err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

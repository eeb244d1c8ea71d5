// Package vectortest provides a deterministic embedder for tests.
package vectortest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
)

// Dim is the vector length produced by HashEmbedder
const Dim = 64

// HashEmbedder maps every word of a text onto a fixed bucket, so equal texts
// get equal vectors and texts sharing words point in similar directions.
type HashEmbedder struct {
	mu      sync.Mutex
	batches []int
	// Err, when set, is returned by every call
	Err error
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// EmbedStrings implements embedding.Embedder
func (e *HashEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = Vector(text)
	}
	return out, nil
}

// Batches returns the size of every request received so far
func (e *HashEmbedder) Batches() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.batches...)
}

// Vector is the embedding HashEmbedder returns for text
func Vector(text string) []float64 {
	vec := make([]float64, Dim)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		vec[0] = 1
		return vec
	}
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%Dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// ErrUnavailable is a convenient failure for HashEmbedder.Err
var ErrUnavailable = errors.New("embedding service unavailable")

// GatedEmbedder behaves like HashEmbedder but holds its n-th request until
// Release is called, so a test can act while a write is in flight.
type GatedEmbedder struct {
	HashEmbedder

	gateAt  int
	calls   int
	callsMu sync.Mutex
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewGatedEmbedder holds request number n, counting from 1
func NewGatedEmbedder(n int) *GatedEmbedder {
	return &GatedEmbedder{
		gateAt:  n,
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
}

// EmbedStrings implements embedding.Embedder
func (e *GatedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	e.callsMu.Lock()
	e.calls++
	held := e.calls == e.gateAt
	e.callsMu.Unlock()

	if held {
		close(e.reached)
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.HashEmbedder.EmbedStrings(ctx, texts, opts...)
}

// Reached is closed once the held request has arrived
func (e *GatedEmbedder) Reached() <-chan struct{} {
	return e.reached
}

// Release lets the held request through. Safe to call more than once.
func (e *GatedEmbedder) Release() {
	e.once.Do(func() { close(e.release) })
}

package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cloudwego/eino/components/embedding"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"

	// DefaultTopK is used when a caller asks for k <= 0
	DefaultTopK = 4

	// batchSize bounds the chunks sent per embed request and per write
	batchSize = 10
)

// ErrVectorStoreNotInitialized is returned when no vector store has been opened
// at the configured location.
var ErrVectorStoreNotInitialized = errors.New("vector store not initialized")

// smokeTestTexts seed a freshly created index so the first write happens at creation time.
var smokeTestTexts = []string{"hello", "world"}

// Chunk is the unit of embedding and retrieval
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// ScoredChunk is a retrieved chunk with its similarity to the query
type ScoredChunk struct {
	Chunk
	ID    string
	Score float32
}

// Store defines the operations every vector store backend provides
type Store interface {
	// Add embeds and appends chunks in order, at most batchSize per write
	Add(ctx context.Context, chunks []Chunk) error

	// Retrieve returns the k most similar chunks, most relevant first
	Retrieve(ctx context.Context, query string, k int) ([]ScoredChunk, error)

	// Count returns the number of stored chunks
	Count(ctx context.Context) (int64, error)

	// Clear deletes the persisted index
	Clear(ctx context.Context) error

	// Close releases connections or file handles
	Close() error
}

// StoreOptions selects and configures a backend
type StoreOptions struct {
	Backend        string
	Directory      string
	Filepath       string
	EmbeddingModel string
	Redis          RedisConfig
}

// IndexPath returns the marker file of a local store
func (o StoreOptions) IndexPath() string {
	if o.Filepath != "" {
		return o.Filepath
	}
	return filepath.Join(o.Directory, "index.json")
}

// OpenOrCreate opens the configured store, creating and seeding it when absent.
// created reports whether a new index was made.
func OpenOrCreate(ctx context.Context, embedder embedding.Embedder, opts StoreOptions) (store Store, created bool, err error) {
	if embedder == nil {
		return nil, false, fmt.Errorf("embedding model is required")
	}

	switch opts.Backend {
	case BackendRedis:
		rs, created, err := OpenRedisStore(ctx, embedder, opts.EmbeddingModel, opts.Redis)
		if err != nil {
			return nil, false, err
		}
		return rs, created, nil
	case "", BackendLocal:
		ls, created, err := OpenLocalStore(ctx, embedder, opts.EmbeddingModel, opts.IndexPath())
		if err != nil {
			return nil, false, err
		}
		return ls, created, nil
	default:
		return nil, false, fmt.Errorf("unknown vector store backend %q", opts.Backend)
	}
}

// RedisConfigFromEnv reads the Redis connection from REDIS_* variables
func RedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:           getEnvString("REDIS_ADDR", "localhost:6379"),
		Password:       getEnvString("REDIS_PASSWORD", ""),
		DB:             getEnvInt("REDIS_DB", 0),
		PoolSize:       getEnvInt("REDIS_POOL_SIZE", 10),
		IndexName:      getEnvString("VECTOR_INDEX_NAME", "dstgpt-knowledge"),
		VectorDim:      getEnvInt("VECTOR_DIM", 1536),
		EFConstruction: getEnvInt("HNSW_EF_CONSTRUCTION", defaultEFConstruction),
		M:              getEnvInt("HNSW_M", defaultM),
	}
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

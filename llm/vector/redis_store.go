package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Default index configuration
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldContent   = "content"
	fieldVector    = "vector"
	fieldMetadata  = "metadata"
	fieldSeq       = "seq"
	fieldCreatedAt = "created_at"
	fieldScore     = "score"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	IndexName      string
	VectorDim      int
	EFConstruction int
	M              int
}

// RedisStore implements Store using Redis with RediSearch vector search
type RedisStore struct {
	client    *redis.Client
	embedding *EmbeddingService
	cfg       RedisConfig
	keyPrefix string
	seq       atomic.Int64
}

// OpenRedisStore connects to Redis and creates the HNSW index when missing.
// A newly created index is seeded with the smoke-test pair.
func OpenRedisStore(ctx context.Context, embedder embedding.Embedder, model string, cfg RedisConfig) (*RedisStore, bool, error) {
	if embedder == nil {
		return nil, false, fmt.Errorf("embedding model is required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "dstgpt-knowledge"
	}
	if cfg.EFConstruction <= 0 {
		cfg.EFConstruction = defaultEFConstruction
	}
	if cfg.M <= 0 {
		cfg.M = defaultM
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		// FT.* 回复按 RESP2 数组解析
		Protocol: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, false, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &RedisStore{
		client:    client,
		embedding: NewEmbeddingService(embedder, model, cfg.VectorDim),
		cfg:       cfg,
		keyPrefix: cfg.IndexName + ":",
	}

	created, err := store.ensureIndex(ctx)
	if err != nil {
		client.Close()
		return nil, false, fmt.Errorf("failed to create vector index: %w", err)
	}

	if created {
		seed := make([]Chunk, len(smokeTestTexts))
		for i, text := range smokeTestTexts {
			seed[i] = Chunk{Text: text}
		}
		if err := store.Add(ctx, seed); err != nil {
			client.Close()
			return nil, false, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}

	return store, created, nil
}

// ensureIndex creates the HNSW vector index if it doesn't exist
func (s *RedisStore) ensureIndex(ctx context.Context) (bool, error) {
	if _, err := s.client.Do(ctx, "FT.INFO", s.cfg.IndexName).Result(); err == nil {
		return false, nil
	}

	if s.cfg.VectorDim <= 0 {
		return false, fmt.Errorf("vector dimension must be set to create index %s", s.cfg.IndexName)
	}

	// FT.CREATE <index> ON HASH PREFIX 1 <index>:
	//   SCHEMA vector VECTOR HNSW 10 TYPE FLOAT32 DIM <d> DISTANCE_METRIC COSINE EF_CONSTRUCTION 200 M 16
	//          content TEXT seq NUMERIC created_at NUMERIC
	err := s.client.Do(ctx, "FT.CREATE", s.cfg.IndexName,
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.cfg.VectorDim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.cfg.EFConstruction),
		"M", strconv.Itoa(s.cfg.M),
		fieldContent, "TEXT",
		fieldSeq, "NUMERIC",
		fieldCreatedAt, "NUMERIC",
	).Err()
	if err != nil {
		return false, err
	}
	return true, nil
}

// Add embeds chunks in batches, one pipelined HSET round trip per batch
func (s *RedisStore) Add(ctx context.Context, chunks []Chunk) error {
	for _, batch := range batches(chunks, batchSize) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedding.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		pipe := s.client.Pipeline()
		now := time.Now().Unix()
		for i, c := range batch {
			metadataJSON, err := sonic.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}

			pipe.HSet(ctx, s.keyPrefix+uuid.NewString(),
				fieldContent, c.Text,
				fieldVector, encodeVector(vectors[i]),
				fieldMetadata, metadataJSON,
				fieldSeq, s.seq.Add(1),
				fieldCreatedAt, now,
			)
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}
	return nil
}

// encodeVector encodes a float32 vector as the little-endian blob RediSearch expects
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Retrieve performs a KNN query; scores are converted from cosine distance to similarity
func (s *RedisStore) Retrieve(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	queryVector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// FT.SEARCH <index> "*=>[KNN k @vector $query_vector AS score]"
	//   PARAMS 2 query_vector <blob> SORTBY score RETURN 3 content metadata score DIALECT 2
	result, err := s.client.Do(ctx, "FT.SEARCH", s.cfg.IndexName,
		fmt.Sprintf("*=>[KNN %d @%s $query_vector AS %s]", k, fieldVector, fieldScore),
		"PARAMS", "2", "query_vector", encodeVector(queryVector),
		"SORTBY", fieldScore,
		"RETURN", "3", fieldContent, fieldMetadata, fieldScore,
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return parseSearchResults(result, s.keyPrefix)
}

// parseSearchResults parses a RESP2 FT.SEARCH reply: count, then (id, fields) pairs
func parseSearchResults(result any, keyPrefix string) ([]ScoredChunk, error) {
	values, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected search result format %T", result)
	}

	results := []ScoredChunk{}
	for i := 1; i+1 < len(values); i += 2 {
		id, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]any)
		if !ok {
			continue
		}

		sc := ScoredChunk{ID: trimPrefix(id, keyPrefix)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)
			switch name {
			case fieldContent:
				sc.Text = value
			case fieldMetadata:
				var meta map[string]any
				if err := sonic.UnmarshalString(value, &meta); err == nil {
					sc.Metadata = meta
				}
			case fieldScore:
				if d, err := strconv.ParseFloat(value, 32); err == nil {
					sc.Score = float32(1 - d)
				}
			}
		}
		results = append(results, sc)
	}
	return results, nil
}

func trimPrefix(id, prefix string) string {
	if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return id
}

// Count returns num_docs from FT.INFO
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	info, err := s.client.Do(ctx, "FT.INFO", s.cfg.IndexName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get index info: %w", err)
	}
	return parseNumDocs(info)
}

func parseNumDocs(info any) (int64, error) {
	values, ok := info.([]any)
	if !ok {
		return 0, fmt.Errorf("unexpected info format %T", info)
	}
	for i := 0; i+1 < len(values); i += 2 {
		if key, ok := values[i].(string); !ok || key != "num_docs" {
			continue
		}
		switch n := values[i+1].(type) {
		case int64:
			return n, nil
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	}
	return 0, nil
}

// Clear drops the index together with its documents
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Do(ctx, "FT.DROPINDEX", s.cfg.IndexName, "DD").Err(); err != nil {
		return fmt.Errorf("failed to drop vector index: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

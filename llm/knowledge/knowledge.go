package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"dstgpt/llm/loader"
	"dstgpt/llm/vector"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry records ingested sources. Entries are history, not a set.
type Registry interface {
	AppendKnowledgeSource(path string) error
	ResetKnowledgeSources() error
}

// Options configures where the index lives and how sources are chunked
type Options struct {
	Store vector.StoreOptions
	// CorpusFilepath is ingested once when a new index is created; empty disables it
	CorpusFilepath string
	ChunkSize      int
	ChunkOverlap   int
}

// IngestReport summarizes one ingestion call
type IngestReport struct {
	Files  []string
	Chunks int
}

// Base owns the vector store handle and the ingestion path into it
type Base struct {
	registry Registry
	logger   *zap.Logger
	fetcher  *loader.Fetcher

	// opMu serializes Open, Ingest and Clear, so a handle is never
	// swapped while chunks are still being written through it
	opMu sync.Mutex

	mu    sync.RWMutex
	store vector.Store
	opts  Options
}

// New creates a knowledge base with no store opened yet
func New(registry Registry, logger *zap.Logger) *Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{registry: registry, logger: logger, fetcher: loader.NewFetcher()}
}

// Open replaces the current store with the one described by opts.
// A newly created index also receives the sample corpus. When opening fails
// the base is left without a store.
func (b *Base) Open(ctx context.Context, emb embedding.Embedder, opts Options) error {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = vector.DefaultChunkSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = vector.DefaultChunkOverlap
	}
	if _, err := vector.ChunkText("", opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return err
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	prev := b.store
	b.store = nil
	b.opts = opts
	b.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	store, created, err := vector.OpenOrCreate(ctx, emb, opts.Store)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}

	if ls, ok := store.(*vector.LocalStore); ok && opts.Store.EmbeddingModel != "" && ls.EmbeddingModel() != opts.Store.EmbeddingModel {
		b.logger.Warn("vector store was built with a different embedding model",
			zap.String("index", ls.Path()),
			zap.String("index_model", ls.EmbeddingModel()),
			zap.String("configured_model", opts.Store.EmbeddingModel))
	}

	if created && opts.CorpusFilepath != "" {
		if _, err := os.Stat(opts.CorpusFilepath); err == nil {
			n, err := b.ingestFile(ctx, store, opts.CorpusFilepath)
			if err != nil {
				b.logger.Warn("sample corpus ingestion failed", zap.String("path", opts.CorpusFilepath), zap.Error(err))
			} else {
				b.logger.Info("sample corpus ingested", zap.String("path", opts.CorpusFilepath), zap.Int("chunks", n))
			}
		}
	}

	b.mu.Lock()
	b.store = store
	b.mu.Unlock()

	b.logger.Info("vector store opened", zap.Bool("created", created), zap.String("backend", backendName(opts.Store)))
	return nil
}

// Store returns the open handle or ErrVectorStoreNotInitialized
func (b *Base) Store() (vector.Store, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.store == nil {
		return nil, vector.ErrVectorStoreNotInitialized
	}
	return b.store, nil
}

// Ingest adds a web page, a file or every supported file under a directory.
// Each successfully added source is appended to the registry. In a directory a
// failing file does not undo the others; failures come back aggregated.
// Open and Clear wait until a running Ingest has finished.
func (b *Base) Ingest(ctx context.Context, path string) (IngestReport, error) {
	var report IngestReport

	b.opMu.Lock()
	defer b.opMu.Unlock()

	if loader.IsURL(path) {
		return b.ingestURL(ctx, path)
	}

	if !loader.KindFromPath(path).Supported() {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return report, fmt.Errorf("knowledge source %s: %w", path, os.ErrNotExist)
		}
		if err != nil || !info.IsDir() {
			return report, &loader.UnsupportedSourceTypeError{Path: path}
		}
	}

	store, err := b.Store()
	if err != nil {
		return report, err
	}

	if loader.KindFromPath(path).Supported() {
		n, err := b.ingestFile(ctx, store, path)
		if err != nil {
			return report, err
		}
		if err := b.registry.AppendKnowledgeSource(path); err != nil {
			return report, fmt.Errorf("failed to record knowledge source: %w", err)
		}
		report.Files = append(report.Files, path)
		report.Chunks = n
		return report, nil
	}

	err = loader.LoadDir(ctx, path, func(file string, records []loader.Record) error {
		n, err := b.addRecords(ctx, store, records)
		if err != nil {
			return err
		}
		if err := b.registry.AppendKnowledgeSource(file); err != nil {
			return fmt.Errorf("failed to record knowledge source: %w", err)
		}
		report.Files = append(report.Files, file)
		report.Chunks += n
		return nil
	})
	if err != nil {
		b.logger.Warn("directory ingestion finished with errors", zap.String("path", path), zap.Error(err))
	}
	return report, err
}

func (b *Base) ingestURL(ctx context.Context, url string) (IngestReport, error) {
	var report IngestReport

	store, err := b.Store()
	if err != nil {
		return report, err
	}
	records, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		return report, err
	}
	n, err := b.addRecords(ctx, store, records)
	if err != nil {
		return report, err
	}
	if err := b.registry.AppendKnowledgeSource(url); err != nil {
		return report, fmt.Errorf("failed to record knowledge source: %w", err)
	}
	report.Files = append(report.Files, url)
	report.Chunks = n
	return report, nil
}

func (b *Base) ingestFile(ctx context.Context, store vector.Store, path string) (int, error) {
	records, err := loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	return b.addRecords(ctx, store, records)
}

func (b *Base) addRecords(ctx context.Context, store vector.Store, records []loader.Record) (int, error) {
	b.mu.RLock()
	size, overlap := b.opts.ChunkSize, b.opts.ChunkOverlap
	b.mu.RUnlock()

	var chunks []vector.Chunk
	for _, rec := range records {
		cs, err := vector.ChunkRecord(rec.Text, rec.Metadata, size, overlap)
		if err != nil {
			return 0, err
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := store.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	b.logger.Debug("chunks stored", zap.Int("records", len(records)), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Clear deletes the persisted index and empties the registry.
// The base has no store afterwards until Open is called again.
func (b *Base) Clear(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.Lock()
	store := b.store
	opts := b.opts
	b.store = nil
	b.mu.Unlock()

	var clearErr error
	if store != nil {
		clearErr = store.Clear(ctx)
		_ = store.Close()
	} else if backendName(opts.Store) == vector.BackendLocal {
		if err := os.Remove(opts.Store.IndexPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			clearErr = fmt.Errorf("failed to delete vector store: %w", err)
		}
	}

	if err := b.registry.ResetKnowledgeSources(); err != nil {
		return multierr.Append(clearErr, fmt.Errorf("failed to reset knowledge sources: %w", err))
	}
	if clearErr == nil {
		b.logger.Info("knowledge cleared")
	}
	return clearErr
}

// Close releases the store handle without waiting for a running Ingest,
// whose remaining batches then fail with ErrVectorStoreNotInitialized
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	return err
}

func backendName(opts vector.StoreOptions) string {
	if opts.Backend == "" {
		return vector.BackendLocal
	}
	return opts.Backend
}

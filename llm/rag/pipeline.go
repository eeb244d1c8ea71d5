package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"dstgpt/config"
	"dstgpt/llm/knowledge"
	"dstgpt/llm/providers"
	"dstgpt/llm/vector"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mode selects which answers are generated
type Mode string

const (
	ModeEnabled  Mode = config.RAGEnabled
	ModeDisabled Mode = config.RAGDisabled
	ModeBoth     Mode = config.RAGBoth
)

// Side labels one of the two answers
type Side string

const (
	SideRAG  Side = "rag"
	SidePure Side = "pure"
)

// Usage is the token count reported by the model for one call
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Answer holds the generated text per side; an unrequested side is empty
type Answer struct {
	RAG       string
	Pure      string
	RAGUsage  Usage
	PureUsage Usage
	// Model is the chat model that produced the answer
	Model string
	// Retrieved are the chunks the RAG answer was grounded on
	Retrieved []*schema.Document
}

// Config is the part of the configuration store the pipeline reads
type Config interface {
	Settings() config.Settings
	Watch(config.Watcher)
}

// handles is one immutable generation of model, store and chains
type handles struct {
	generation uint64
	model      string

	chatModel model.BaseChatModel
	embedder  embedding.Embedder
	store     vector.Store
	retriever retriever.Retriever
	template  prompt.ChatTemplate

	ragChain  compose.Runnable[map[string]any, *schema.Message]
	pureChain compose.Runnable[string, *schema.Message]

	err error
}

// Pipeline answers questions with and without retrieved context.
// All handles are rebuilt together by Reconfigure and swapped in one step;
// a question already running keeps the generation it started with.
type Pipeline struct {
	ctx     context.Context
	cfg     Config
	kb      *knowledge.Base
	factory providers.Factory
	logger  *zap.Logger

	reconfMu   sync.Mutex
	current    atomic.Pointer[handles]
	generation atomic.Uint64
}

// New builds the first generation of handles and subscribes to model-key changes.
// A failed first build is reported but the pipeline is still returned, so the
// caller can fix the configuration and let the watcher rebuild.
func New(ctx context.Context, cfg Config, kb *knowledge.Base, factory providers.Factory, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		ctx:     ctx,
		cfg:     cfg,
		kb:      kb,
		factory: factory,
		logger:  logger,
	}

	err := p.Reconfigure(ctx)

	cfg.Watch(func(c config.Change) {
		if !c.Model {
			return
		}
		p.logger.Info("model configuration changed", zap.String("key", c.Key))
		if err := p.Reconfigure(p.ctx); err != nil {
			p.logger.Error("reconfigure failed", zap.String("key", c.Key), zap.Error(err))
		}
	})

	return p, err
}

// Reconfigure rebuilds chat model, embedder, vector store, template and chains
// from the current configuration. Handles are never patched in place.
func (p *Pipeline) Reconfigure(ctx context.Context) error {
	p.reconfMu.Lock()
	defer p.reconfMu.Unlock()

	s := p.cfg.Settings()

	h := &handles{
		generation: p.generation.Add(1),
		model:      s.BaseModel,
	}

	cm, err := p.factory.NewChatModel(ctx, providers.ChatModelConfig{Model: s.BaseModel, Temperature: s.Temperature})
	if err != nil {
		h.err = fmt.Errorf("failed to create chat model %s: %w", s.BaseModel, err)
		_ = p.kb.Close()
		p.current.Store(h)
		return h.err
	}
	h.chatModel = cm

	h.template = prompt.FromMessages(schema.FString, schema.UserMessage(s.PromptTemplate))
	if h.ragChain, err = compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(h.template).
		AppendChatModel(cm).
		Compile(ctx); err != nil {
		h.err = fmt.Errorf("failed to compile retrieval chain: %w", err)
		p.current.Store(h)
		return h.err
	}
	if h.pureChain, err = compose.NewChain[string, *schema.Message]().
		AppendLambda(compose.InvokableLambda(func(_ context.Context, q string) ([]*schema.Message, error) {
			return []*schema.Message{schema.UserMessage(q)}, nil
		})).
		AppendChatModel(cm).
		Compile(ctx); err != nil {
		h.err = fmt.Errorf("failed to compile chain: %w", err)
		p.current.Store(h)
		return h.err
	}

	// a store failure still leaves pure answers working
	var storeErr error
	if h.embedder, err = p.factory.NewEmbedder(ctx, providers.EmbeddingConfig{Model: s.EmbeddingModel}); err != nil {
		storeErr = fmt.Errorf("failed to create embedder %s: %w", s.EmbeddingModel, err)
		_ = p.kb.Close()
	} else if err := p.kb.Open(ctx, h.embedder, knowledge.Options{
		Store: vector.StoreOptions{
			Backend:        s.VectorstoreBackend,
			Directory:      s.VectorstoreDirectory,
			Filepath:       s.VectorstoreFilepath,
			EmbeddingModel: s.EmbeddingModel,
			Redis:          vector.RedisConfigFromEnv(),
		},
		CorpusFilepath: s.CorpusFilepath,
	}); err != nil {
		storeErr = err
	}

	if store, err := p.kb.Store(); err == nil {
		h.store = store
		h.retriever = vector.NewRetriever(store, s.TopK)
	}

	p.current.Store(h)
	p.logger.Info("pipeline reconfigured",
		zap.Uint64("generation", h.generation),
		zap.String("model", s.BaseModel),
		zap.Float32("temperature", s.Temperature),
		zap.Bool("vector_store", h.store != nil))
	return storeErr
}

// Generation identifies the handles currently in use; it grows on every rebuild
func (p *Pipeline) Generation() uint64 {
	if h := p.current.Load(); h != nil {
		return h.generation
	}
	return 0
}

// Model returns the chat model name of the current generation
func (p *Pipeline) Model() string {
	if h := p.current.Load(); h != nil {
		return h.model
	}
	return ""
}

// Err reports why the current generation cannot answer, if it cannot
func (p *Pipeline) Err() error {
	h := p.current.Load()
	if h == nil {
		return errors.New("pipeline not configured")
	}
	return h.err
}

// Answer generates the answers requested by mode. In ModeBoth the two
// calls run concurrently and are both awaited before returning.
func (p *Pipeline) Answer(ctx context.Context, question string, mode Mode) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	h := p.current.Load()
	if h == nil {
		return nil, errors.New("pipeline not configured")
	}
	if h.err != nil {
		return nil, h.err
	}

	ans := &Answer{Model: h.model}

	switch mode {
	case ModeEnabled:
		if err := p.answerRAG(ctx, h, question, ans); err != nil {
			return nil, err
		}
	case ModeDisabled:
		if err := p.answerPure(ctx, h, question, ans); err != nil {
			return nil, err
		}
	case ModeBoth:
		// 两个调用互不共享可变状态，各自写 Answer 的不同字段
		var g errgroup.Group
		var ragErr, pureErr error
		g.Go(func() error {
			ragErr = p.answerRAG(ctx, h, question, ans)
			return nil
		})
		g.Go(func() error {
			pureErr = p.answerPure(ctx, h, question, ans)
			return nil
		})
		_ = g.Wait()
		if err := multierr.Combine(ragErr, pureErr); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown answer mode %q", mode)
	}

	return ans, nil
}

func (p *Pipeline) answerRAG(ctx context.Context, h *handles, question string, ans *Answer) error {
	if h.store == nil {
		return vector.ErrVectorStoreNotInitialized
	}

	// TOP_K is not a model key, so it is read per question
	docs, err := h.retriever.Retrieve(ctx, question, retriever.WithTopK(p.cfg.Settings().TopK))
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	msg, err := h.ragChain.Invoke(ctx, map[string]any{
		"context": formatDocuments(docs),
		"input":   question,
	})
	if err != nil {
		return &AnswerGenerationError{Mode: SideRAG, Err: err}
	}

	ans.RAG = msg.Content
	ans.RAGUsage = usageOf(msg)
	ans.Retrieved = docs
	return nil
}

func (p *Pipeline) answerPure(ctx context.Context, h *handles, question string, ans *Answer) error {
	msg, err := h.pureChain.Invoke(ctx, question)
	if err != nil {
		return &AnswerGenerationError{Mode: SidePure, Err: err}
	}

	ans.Pure = msg.Content
	ans.PureUsage = usageOf(msg)
	return nil
}

// ClearKnowledge deletes the index, empties the registry and rebuilds, which
// creates a fresh seeded index at the configured location.
func (p *Pipeline) ClearKnowledge(ctx context.Context) error {
	if err := p.kb.Clear(ctx); err != nil {
		return err
	}
	return p.Reconfigure(ctx)
}

// Ingest adds a file or directory to the current knowledge base
func (p *Pipeline) Ingest(ctx context.Context, path string) (knowledge.IngestReport, error) {
	return p.kb.Ingest(ctx, path)
}

func formatDocuments(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}

func usageOf(msg *schema.Message) Usage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return Usage{}
	}
	u := msg.ResponseMeta.Usage
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

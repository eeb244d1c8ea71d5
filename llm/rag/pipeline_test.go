package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dstgpt/config"
	"dstgpt/llm/knowledge"
	"dstgpt/llm/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	cfg     *config.Store
	kb      *knowledge.Base
	factory *recordingFactory
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Open(filepath.Join(dir, "config", "configs.json"))
	require.NoError(t, err)
	t.Cleanup(cfg.Close)

	db := filepath.Join(dir, "database")
	require.NoError(t, cfg.Update(config.KeyVectorstoreDirectory, db))
	require.NoError(t, cfg.Update(config.KeyVectorstoreFilepath, filepath.Join(db, "index.json")))
	require.NoError(t, cfg.Update(config.KeyCorpusFilepath, ""))

	kb := knowledge.New(cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { kb.Close() })

	return &fixture{cfg: cfg, kb: kb, factory: &recordingFactory{}, dir: dir}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(context.Background(), f.cfg, f.kb, f.factory, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestAnswer_ModesPopulateSides(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	ans, err := p.Answer(ctx, "What does Wilson craft?", ModeEnabled)
	require.NoError(t, err)
	assert.NotEmpty(t, ans.RAG)
	assert.Empty(t, ans.Pure)
	assert.Equal(t, 100, ans.RAGUsage.PromptTokens)
	assert.Equal(t, 20, ans.RAGUsage.CompletionTokens)
	assert.Zero(t, ans.PureUsage)

	ans, err = p.Answer(ctx, "What does Wilson craft?", ModeDisabled)
	require.NoError(t, err)
	assert.Empty(t, ans.RAG)
	assert.NotEmpty(t, ans.Pure)
	assert.Equal(t, 120, ans.PureUsage.TotalTokens)

	ans, err = p.Answer(ctx, "What does Wilson craft?", ModeBoth)
	require.NoError(t, err)
	assert.NotEmpty(t, ans.RAG)
	assert.NotEmpty(t, ans.Pure)
	assert.Equal(t, "gpt-3.5-turbo-0125", ans.Model)

	_, err = p.Answer(ctx, "   ", ModeBoth)
	assert.Error(t, err)
	_, err = p.Answer(ctx, "q", Mode("sometimes"))
	assert.Error(t, err)
}

func TestAnswer_PromptCarriesRetrievedContext(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "pigs.txt")
	require.NoError(t, os.WriteFile(path, []byte("Pigs turn into werepigs during a full moon"), 0o644))
	_, err := p.Ingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, f.cfg.Settings().KnowledgeSources)

	ans, err := p.Answer(ctx, "Pigs turn into werepigs during a full moon", ModeEnabled)
	require.NoError(t, err)
	require.NotEmpty(t, ans.Retrieved)
	assert.Equal(t, "Pigs turn into werepigs during a full moon", ans.Retrieved[0].Content)

	prompts := f.factory.last().prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "<knowledge>\nPigs turn into werepigs during a full moon")
	assert.Contains(t, prompts[0], "Question: Pigs turn into werepigs during a full moon")

	_, err = p.Answer(ctx, "plain question", ModeDisabled)
	require.NoError(t, err)
	assert.Equal(t, "plain question", f.factory.last().prompts()[1])
}

func TestReconfigure_OnBaseModelChange(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	first := f.factory.last()
	gen := p.Generation()

	require.NoError(t, f.cfg.Update(config.KeyBaseModel, "gpt-4o"))

	assert.Equal(t, []string{"gpt-3.5-turbo-0125", "gpt-4o"}, f.factory.modelNames())
	assert.Greater(t, p.Generation(), gen)
	assert.Equal(t, "gpt-4o", p.Model())

	ans, err := p.Answer(ctx, "Who is Maxwell?", ModeDisabled)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", ans.Model)
	assert.Equal(t, "[gpt-4o] answer", ans.Pure)

	assert.NotSame(t, first, f.factory.last())
	assert.Empty(t, first.prompts())
}

func TestReconfigure_IgnoresNonModelKeys(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	gen := p.Generation()

	require.NoError(t, f.cfg.Update(config.KeyRAG, config.RAGBoth))
	require.NoError(t, f.cfg.AppendKnowledgeSource("notes.txt"))

	assert.Equal(t, gen, p.Generation())
	assert.Len(t, f.factory.modelNames(), 1)
}

func TestReconfigure_TemperatureAndTemplate(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	require.NoError(t, f.cfg.Update(config.KeyTemperature, 0.7))
	require.NoError(t, f.cfg.Update(config.KeyPromptTemplate, "CTX={context} Q={input}"))
	assert.Len(t, f.factory.modelNames(), 3)

	_, err := p.Answer(ctx, "hello", ModeEnabled)
	require.NoError(t, err)
	assert.Contains(t, f.factory.last().prompts()[0], "Q=hello")
	assert.Contains(t, f.factory.last().prompts()[0], "CTX=hello")
}

func TestAnswer_GenerationError(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("rate limited")
	f.factory.generateErr = cause
	p := f.pipeline(t)

	for _, mode := range []Mode{ModeEnabled, ModeDisabled, ModeBoth} {
		ans, err := p.Answer(context.Background(), "Where is the Ancient Guardian?", mode)
		assert.Nil(t, ans)

		var genErr *AnswerGenerationError
		require.ErrorAs(t, err, &genErr, mode)
		assert.ErrorIs(t, err, cause)
	}

	_, err := p.Answer(context.Background(), "q", ModeDisabled)
	var genErr *AnswerGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, SidePure, genErr.Mode)
}

func TestAnswer_WithoutVectorStore(t *testing.T) {
	f := newFixture(t)
	f.factory.embedErr = errors.New("no embedding key")

	p, err := New(context.Background(), f.cfg, f.kb, f.factory, zaptest.NewLogger(t))
	require.Error(t, err)
	require.NotNil(t, p)

	_, err = p.Answer(context.Background(), "q", ModeEnabled)
	assert.ErrorIs(t, err, vector.ErrVectorStoreNotInitialized)

	_, err = p.Answer(context.Background(), "q", ModeBoth)
	assert.ErrorIs(t, err, vector.ErrVectorStoreNotInitialized)

	ans, err := p.Answer(context.Background(), "q", ModeDisabled)
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Pure)
}

func TestAnswer_ChatModelUnavailable(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	f.factory.chatErr = errors.New("OPENAI_API_KEY environment variable is required")
	require.NoError(t, f.cfg.Update(config.KeyBaseModel, "gpt-4o-mini"))

	require.Error(t, p.Err())
	_, err := p.Answer(context.Background(), "q", ModeDisabled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpt-4o-mini")

	// 旧的向量库句柄也不能再被使用
	_, err = f.kb.Store()
	assert.ErrorIs(t, err, vector.ErrVectorStoreNotInitialized)
}

func TestClearKnowledge(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Webber is a spider child"), 0o644))
	_, err := p.Ingest(ctx, path)
	require.NoError(t, err)

	require.NoError(t, p.ClearKnowledge(ctx))
	assert.Empty(t, f.cfg.Settings().KnowledgeSources)

	store, err := f.kb.Store()
	require.NoError(t, err)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestAnswer_TopKReadPerQuestion(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	path := filepath.Join(f.dir, "beefalo.txt")
	require.NoError(t, os.WriteFile(path, []byte("Beefalo can be ridden after domestication"), 0o644))
	_, err := p.Ingest(ctx, path)
	require.NoError(t, err)

	ans, err := p.Answer(ctx, "Beefalo can be ridden after domestication", ModeEnabled)
	require.NoError(t, err)
	assert.Len(t, ans.Retrieved, 3)

	gen := p.Generation()
	require.NoError(t, f.cfg.Update(config.KeyTopK, 1))
	assert.Equal(t, gen, p.Generation())

	ans, err = p.Answer(ctx, "Beefalo can be ridden after domestication", ModeEnabled)
	require.NoError(t, err)
	require.Len(t, ans.Retrieved, 1)
	assert.Equal(t, "Beefalo can be ridden after domestication", ans.Retrieved[0].Content)
}

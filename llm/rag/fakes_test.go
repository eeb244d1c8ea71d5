package rag

import (
	"context"
	"fmt"
	"sync"

	"dstgpt/llm/providers"
	"dstgpt/llm/vector/vectortest"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeChatModel struct {
	name string
	err  error

	mu     sync.Mutex
	inputs [][]*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	msg := schema.AssistantMessage(fmt.Sprintf("[%s] answer", m.name), nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}}
	return msg, nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *fakeChatModel) prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, in := range m.inputs {
		out = append(out, in[len(in)-1].Content)
	}
	return out
}

// recordingFactory remembers every handle it builds
type recordingFactory struct {
	mu         sync.Mutex
	models     []*fakeChatModel
	embedders  int
	chatErr    error
	generateErr error
	embedErr   error
	embedder   *vectortest.HashEmbedder
}

func (f *recordingFactory) NewChatModel(_ context.Context, cfg providers.ChatModelConfig) (model.BaseChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	m := &fakeChatModel{name: cfg.Model, err: f.generateErr}
	f.models = append(f.models, m)
	return m, nil
}

func (f *recordingFactory) NewEmbedder(context.Context, providers.EmbeddingConfig) (embedding.Embedder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedders++
	if f.embedder == nil {
		f.embedder = &vectortest.HashEmbedder{}
	}
	return f.embedder, nil
}

func (f *recordingFactory) modelNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, m := range f.models {
		names = append(names, m.name)
	}
	return names
}

func (f *recordingFactory) last() *fakeChatModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models[len(f.models)-1]
}

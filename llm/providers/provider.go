package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// Provider identifies the API a model name is served by.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderQwen   Provider = "qwen"
)

const defaultQwenBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// ProviderFor picks the provider from the model name prefix.
// Anything unrecognised goes to the OpenAI-compatible endpoint.
func ProviderFor(modelName string) Provider {
	name := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(name, "gemini-"):
		return ProviderGemini
	case strings.HasPrefix(name, "qwen"):
		return ProviderQwen
	default:
		return ProviderOpenAI
	}
}

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	Model       string
	Temperature float32
}

// EmbeddingConfig defines the configuration for creating an embedding model.
type EmbeddingConfig struct {
	Model string
}

// Factory builds fresh model handles. Every call returns a new handle; callers
// never patch an existing one.
type Factory interface {
	NewChatModel(ctx context.Context, cfg ChatModelConfig) (model.BaseChatModel, error)
	NewEmbedder(ctx context.Context, cfg EmbeddingConfig) (einoEmbedding.Embedder, error)
}

// EnvFactory reads credentials from the environment on every construction,
// so a key added to .env is picked up by the next reconfiguration.
//
// Environment variables:
//   - OPENAI_API_KEY, OPENAI_BASE_URL: chat and embeddings (OpenAI-compatible)
//   - GEMINI_API_KEY: gemini-* chat models
//   - DASHSCOPE_API_KEY, DASHSCOPE_BASE_URL: qwen* chat models
type EnvFactory struct{}

// NewChatModel creates a chat model for cfg.Model
func (EnvFactory) NewChatModel(ctx context.Context, cfg ChatModelConfig) (model.BaseChatModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	temperature := cfg.Temperature

	switch ProviderFor(cfg.Model) {
	case ProviderGemini:
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required for %s", cfg.Model)
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return geminiModel.NewChatModel(ctx, &geminiModel.Config{
			Client:      client,
			Model:       cfg.Model,
			Temperature: &temperature,
		})

	case ProviderQwen:
		apiKey := os.Getenv("DASHSCOPE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("DASHSCOPE_API_KEY environment variable is required for %s", cfg.Model)
		}
		baseURL := os.Getenv("DASHSCOPE_BASE_URL")
		if baseURL == "" {
			baseURL = defaultQwenBaseURL
		}
		return qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     baseURL,
			Model:       cfg.Model,
			Temperature: &temperature,
		})

	default:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
		return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:      apiKey,
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       cfg.Model,
			Temperature: &temperature,
		})
	}
}

// NewEmbedder creates an OpenAI-compatible embedding model
func (EnvFactory) NewEmbedder(ctx context.Context, cfg EmbeddingConfig) (einoEmbedding.Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "text-embedding-ada-002"
	}

	return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   modelName,
	})
}

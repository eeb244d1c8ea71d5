package config

import (
	"path/filepath"
	"strings"
)

// Settings is a typed snapshot of the configuration document with defaults
// filled in for absent or malformed keys.
type Settings struct {
	BaseModel            string
	Temperature          float32
	PromptTemplate       string
	VectorstoreDirectory string
	VectorstoreFilepath  string
	VectorstoreBackend   string
	EmbeddingModel       string
	RAG                  string
	KnowledgeSources     []string
	CorpusFilepath       string
	TopK                 int
	PricingFilepath      string
}

func settingsFromDoc(doc map[string]any) Settings {
	s := Settings{
		BaseModel:            stringOr(doc, KeyBaseModel, DefaultBaseModel),
		PromptTemplate:       stringOr(doc, KeyPromptTemplate, DefaultPromptTemplate),
		VectorstoreDirectory: stringOr(doc, KeyVectorstoreDirectory, DefaultVectorstoreDirectory),
		VectorstoreBackend:   stringOr(doc, KeyVectorstoreBackend, BackendLocal),
		EmbeddingModel:       stringOr(doc, KeyEmbeddingModel, DefaultEmbeddingModel),
		RAG:                  stringOr(doc, KeyRAG, RAGEnabled),
		KnowledgeSources:     toStringSlice(doc[KeyKnowledgeSources]),
		PricingFilepath:      stringOr(doc, KeyPricingFilepath, ""),
		TopK:                 DefaultTopK,
	}

	// 显式写成空字符串表示不加载示例语料
	if v, ok := doc[KeyCorpusFilepath]; ok {
		s.CorpusFilepath, _ = v.(string)
	} else {
		s.CorpusFilepath = DefaultCorpusFilepath
	}

	if t, ok := toFloat(doc[KeyTemperature]); ok && t >= 0 && t <= 1 {
		s.Temperature = float32(t)
	}
	if k, ok := toFloat(doc[KeyTopK]); ok && k >= 1 {
		s.TopK = int(k)
	}

	switch s.RAG {
	case RAGEnabled, RAGDisabled, RAGBoth:
	default:
		s.RAG = RAGEnabled
	}

	s.VectorstoreFilepath = stringOr(doc, KeyVectorstoreFilepath, "")
	if s.VectorstoreFilepath == "" {
		s.VectorstoreFilepath = filepath.Join(s.VectorstoreDirectory, DefaultIndexFile)
	}
	return s
}

func stringOr(doc map[string]any, key, def string) string {
	v, ok := doc[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

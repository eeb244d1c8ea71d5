package config

// Keys of the configuration document.
const (
	KeyBaseModel            = "BASE_MODEL"
	KeyTemperature          = "TEMPERATURE"
	KeyPromptTemplate       = "PROMPT_TEMPLATE"
	KeyVectorstoreFilepath  = "VECTORSTORE_FILEPATH"
	KeyVectorstoreDirectory = "VECTORSTORE_DIRECTORY"
	KeyVectorstoreBackend   = "VECTORSTORE_BACKEND"
	KeyEmbeddingModel       = "EMBEDDING_MODEL"
	KeyRAG                  = "RAG"
	KeyKnowledgeSources     = "KNOWLEDGE_SOURCES"
	KeyCorpusFilepath       = "CORPUS_FILEPATH"
	// KeyLog is kept so older documents stay valid. Chat transcripts are not
	// written; application logging is always on.
	KeyLog                  = "LOG"
	KeyTopK                 = "TOP_K"
	KeyPricingFilepath      = "PRICING_FILEPATH"
)

// RAG modes.
const (
	RAGEnabled  = "enabled"
	RAGDisabled = "disabled"
	RAGBoth     = "both"
)

// Vector store backends.
const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Defaults applied when a key is absent from the document.
const (
	DefaultBaseModel            = "gpt-3.5-turbo-0125"
	DefaultEmbeddingModel       = "text-embedding-ada-002"
	DefaultVectorstoreDirectory = "./database"
	DefaultIndexFile            = "index.json"
	DefaultCorpusFilepath       = "./data/sample_data.json"
	DefaultTopK                 = 4

	DefaultPromptTemplate = "Answer the following question based on the provided knowledge:\n\n" +
		"<knowledge>\n{context}\n</knowledge>\n\n" +
		"Question: {input}"
)

// modelKeys force a rebuild of the chat model, embeddings, vector store and
// retrieval chain when written.
var modelKeys = map[string]struct{}{
	KeyBaseModel:            {},
	KeyTemperature:          {},
	KeyPromptTemplate:       {},
	KeyVectorstoreFilepath:  {},
	KeyVectorstoreDirectory: {},
	KeyVectorstoreBackend:   {},
	KeyEmbeddingModel:       {},
}

// IsModelKey reports whether writing key invalidates model handles.
func IsModelKey(key string) bool {
	_, ok := modelKeys[key]
	return ok
}

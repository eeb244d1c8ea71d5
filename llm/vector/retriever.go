package vector

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// Retriever exposes a Store as an eino retriever so it can sit in a chain
type Retriever struct {
	store Store
	topK  int
}

var _ retriever.Retriever = (*Retriever)(nil)

// NewRetriever wraps store; topK <= 0 means DefaultTopK
func NewRetriever(store Store, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{store: store, topK: topK}
}

// Retrieve honours retriever.WithTopK
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	if r.store == nil {
		return nil, ErrVectorStoreNotInitialized
	}

	options := retriever.GetCommonOptions(&retriever.Options{TopK: &r.topK}, opts...)
	k := r.topK
	if options.TopK != nil {
		k = *options.TopK
	}

	results, err := r.store.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}

	docs := make([]*schema.Document, 0, len(results))
	for _, res := range results {
		doc := &schema.Document{
			ID:       res.ID,
			Content:  res.Text,
			MetaData: copyMetadata(res.Metadata),
		}
		docs = append(docs, doc.WithScore(float64(res.Score)))
	}
	return docs, nil
}

func copyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

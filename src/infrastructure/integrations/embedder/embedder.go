// Package embedder adapts langchaingo embeddings to the e5 model family,
// which expects "query: " and "passage: " prefixes on inputs and caps batch
// sizes on the provider side.
package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultBatchSize caps how many passages are embedded per provider call.
const DefaultBatchSize = 4

const (
	queryPrefix   = "query: "
	passagePrefix = "passage: "
)

// Config holds the connection settings for the embedding model.
type Config struct {
	BaseURL   string
	Token     string
	Model     string
	BatchSize int
}

// E5Embedder embeds queries and passages with the role prefixes the e5
// models were trained on.
type E5Embedder struct {
	embedder *embeddings.EmbedderImpl
}

// New creates an E5Embedder backed by an OpenAI-compatible embedding
// endpoint.
func New(cfg Config) (*E5Embedder, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	impl, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &E5Embedder{embedder: impl}, nil
}

// EmbedDocuments embeds passages, batched to the configured size.
func (e *E5Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = passagePrefix + text
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, prefixed)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (e *E5Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, queryPrefix+text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}

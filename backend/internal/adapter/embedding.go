package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"mindcoach/backend/pkg/logger"
)

// Embedder turns text into a vector. The engine only ever consumes this one
// capability; retrieval and storage of vectors stay with the caller.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingAdapter implements Embedder against an OpenAI-compatible
// /v1/embeddings endpoint (LiteLLM, OpenAI, or any proxy speaking the format)
type EmbeddingAdapter struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewEmbeddingAdapter creates a new embedding adapter
func NewEmbeddingAdapter(baseURL, apiKey, model string) *EmbeddingAdapter {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL + "/v1"
	}

	return &EmbeddingAdapter{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.Named("embedding"),
	}
}

// Embed generates an embedding vector for a single text
func (a *EmbeddingAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one API call
func (a *EmbeddingAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(a.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// EmbedderFactory builds an Embedder, failing when the capability is not
// configured or cannot be reached.
type EmbedderFactory func() (Embedder, error)

// EmbedderSource resolves an Embedder exactly once per process and caches the
// outcome, including failure. A failed resolution stays failed until Retry is
// called, so a missing model never causes a retry storm on the hot path.
type EmbedderSource struct {
	mu       sync.Mutex
	factory  EmbedderFactory
	resolved bool
	embedder Embedder
	logger   *zap.Logger
}

// NewEmbedderSource creates a source around the given factory
func NewEmbedderSource(factory EmbedderFactory) *EmbedderSource {
	return &EmbedderSource{
		factory: factory,
		logger:  logger.Named("embedding"),
	}
}

// Get returns the resolved embedder, resolving it on first use.
// The second return is false while the capability is unavailable.
func (s *EmbedderSource) Get() (Embedder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resolved {
		s.resolve()
	}
	return s.embedder, s.embedder != nil
}

// Retry discards a cached failure and resolves the factory again
func (s *EmbedderSource) Retry() (Embedder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolved = false
	s.embedder = nil
	s.resolve()
	return s.embedder, s.embedder != nil
}

func (s *EmbedderSource) resolve() {
	s.resolved = true

	embedder, err := s.factory()
	if err != nil {
		s.logger.Warn("Embedding provider unavailable, similarity resolution disabled",
			zap.Error(err))
		s.embedder = nil
		return
	}
	s.embedder = embedder
}

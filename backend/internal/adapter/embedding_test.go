package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingsServer(t *testing.T, vectors map[string][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: req.Model}

		for i, text := range req.Input {
			vec, ok := vectors[text]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			resp.Data = append(resp.Data, datum{Object: "embedding", Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbeddingAdapter_EmbedBatch(t *testing.T) {
	server := embeddingsServer(t, map[string][]float32{
		"gradient descent": {0.1, 0.2},
		"backpropagation":  {0.3, 0.4},
	})
	defer server.Close()

	a := NewEmbeddingAdapter(server.URL, "", "test-model")

	vectors, err := a.EmbedBatch(context.Background(), []string{"gradient descent", "backpropagation"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestEmbeddingAdapter_Embed(t *testing.T) {
	server := embeddingsServer(t, map[string][]float32{
		"gradient descent": {0.1, 0.2},
	})
	defer server.Close()

	a := NewEmbeddingAdapter(server.URL, "", "test-model")

	vec, err := a.Embed(context.Background(), "gradient descent")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestEmbeddingAdapter_ServerErrorPropagates(t *testing.T) {
	server := embeddingsServer(t, nil)
	defer server.Close()

	a := NewEmbeddingAdapter(server.URL, "", "test-model")

	_, err := a.Embed(context.Background(), "unknown")
	assert.Error(t, err)
}

func TestEmbedderSource_CachesFailure(t *testing.T) {
	calls := 0
	source := NewEmbedderSource(func() (Embedder, error) {
		calls++
		return nil, fmt.Errorf("model not available")
	})

	_, ok := source.Get()
	assert.False(t, ok)
	_, ok = source.Get()
	assert.False(t, ok)
	assert.Equal(t, 1, calls, "failure should be cached, not retried per call")
}

func TestEmbedderSource_RetryReResolves(t *testing.T) {
	calls := 0
	source := NewEmbedderSource(func() (Embedder, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("model not available")
		}
		return NewEmbeddingAdapter("http://localhost:0", "", "test-model"), nil
	})

	_, ok := source.Get()
	assert.False(t, ok)

	_, ok = source.Retry()
	assert.True(t, ok)
	assert.Equal(t, 2, calls)

	// The successful resolution is cached
	_, ok = source.Get()
	assert.True(t, ok)
	assert.Equal(t, 2, calls)
}

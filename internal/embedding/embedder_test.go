package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
)

func ollamaConfig(baseURL string) config.EmbedderConfig {
	return config.EmbedderConfig{
		Provider:   ProviderOllama,
		Model:      "all-minilm",
		BaseURL:    baseURL,
		Dimensions: 3,
		Timeout:    "5s",
		MaxRetries: 2,
	}
}

func TestOllamaEmbed(t *testing.T) {
	var gotBody ollamaEmbedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(ollamaConfig(server.URL))

	vec, err := e.Embed(context.Background(), "Table: sales")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "all-minilm", gotBody.Model)
	assert.Equal(t, "Table: sales", gotBody.Prompt)
}

func TestOllamaEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 0, 0}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(ollamaConfig(server.URL))

	vec, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.EqualValues(t, 3, calls.Load())
}

func TestOllamaEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(ollamaConfig(server.URL))

	_, err := e.Embed(context.Background(), "missing model")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeEmbedder))
	assert.EqualValues(t, 1, calls.Load())
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(ollamaConfig(server.URL))

	_, err := e.Embed(context.Background(), "short vector")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeEmbedder))
	assert.Contains(t, err.Error(), "2-dimension")
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"who sold the most"}, req.Input)

		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.5,0.5]}]}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(config.EmbedderConfig{
		Provider:   ProviderOpenAI,
		Model:      "text-embedding-3-small",
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Dimensions: 3,
		Timeout:    "5s",
	})

	vec, err := e.Embed(context.Background(), "who sold the most")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, vec)
}

func TestOpenAIEmbedEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(config.EmbedderConfig{
		Provider: ProviderOpenAI,
		Model:    "text-embedding-3-small",
		BaseURL:  server.URL,
		APIKey:   "test-key",
		Timeout:  "5s",
	})

	_, err := e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeEmbedder))
}

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbedderConfig
		wantErr bool
	}{
		{name: "ollama", cfg: config.EmbedderConfig{Provider: "ollama", Timeout: "5s"}},
		{name: "openai with key", cfg: config.EmbedderConfig{Provider: "openai", APIKey: "k", Timeout: "5s"}},
		{name: "openai without key", cfg: config.EmbedderConfig{Provider: "openai", Timeout: "5s"}, wantErr: true},
		{name: "unknown provider", cfg: config.EmbedderConfig{Provider: "cohere", Timeout: "5s"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEmbedder(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, e)
		})
	}
}

func TestModelVersion(t *testing.T) {
	e := NewOllamaEmbedder(ollamaConfig("http://localhost:11434"))
	assert.Equal(t, "ollama/all-minilm", e.ModelVersion())
}

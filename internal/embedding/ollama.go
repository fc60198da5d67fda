package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
)

// OllamaEmbedder calls a local Ollama server's embeddings endpoint
type OllamaEmbedder struct {
	config     config.EmbedderConfig
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// NewOllamaEmbedder creates an embedder backed by Ollama
func NewOllamaEmbedder(cfg config.EmbedderConfig) *OllamaEmbedder {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	return &OllamaEmbedder{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed generates a vector for one text with bounded retries
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal embedding request")
	}

	var embedding []float32

	err = retryHTTP(ctx, e.config.MaxRetries, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.config.BaseURL+"/api/embeddings", bytes.NewReader(reqBody))
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeInternal, "failed to create embedding request")
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeEmbedder, "embedding request failed").
				WithSuggestion("Check that Ollama is running (ollama serve)").
				WithSuggestion(fmt.Sprintf("Verify the base URL: %s", e.config.BaseURL))
		}

		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrTypeEmbedder, "failed to read embedding response")
		}

		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, errors.Newf(errors.ErrTypeEmbedder,
				"embedding request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var result ollamaEmbedResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrTypeEmbedder, "failed to parse embedding response")
		}

		if result.Error != "" {
			return resp.StatusCode, errors.Newf(errors.ErrTypeEmbedder, "embedding error: %s", result.Error)
		}

		embedding = result.Embedding

		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	return checkDimensions(embedding, e.config.Dimensions, "ollama")
}

// Dimensions reports the configured vector length
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelVersion identifies the embedding space
func (e *OllamaEmbedder) ModelVersion() string {
	return fmt.Sprintf("%s/%s", ProviderOllama, e.config.Model)
}

func (e *OllamaEmbedder) Name() string {
	return ProviderOllama
}

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

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
type OpenAIEmbedder struct {
	config     config.EmbedderConfig
	httpClient *http.Client
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI embeddings API
func NewOpenAIEmbedder(cfg config.EmbedderConfig) *OpenAIEmbedder {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	return &OpenAIEmbedder{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed generates a vector for one text with bounded retries
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: []string{text}})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal embedding request")
	}

	var embedding []float32

	err = retryHTTP(ctx, e.config.MaxRetries, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.config.BaseURL+"/embeddings", bytes.NewReader(reqBody))
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeInternal, "failed to create embedding request")
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeEmbedder, "embedding request failed").
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

		var result openAIEmbedResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrTypeEmbedder, "failed to parse embedding response")
		}

		if result.Error != nil {
			return resp.StatusCode, errors.Newf(errors.ErrTypeEmbedder, "embedding error: %s", result.Error.Message)
		}

		if len(result.Data) == 0 {
			return resp.StatusCode, errors.New(errors.ErrTypeEmbedder, "embedding response contained no vectors")
		}

		embedding = result.Data[0].Embedding

		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	return checkDimensions(embedding, e.config.Dimensions, "openai")
}

// Dimensions reports the configured vector length
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelVersion identifies the embedding space
func (e *OpenAIEmbedder) ModelVersion() string {
	return fmt.Sprintf("%s/%s", ProviderOpenAI, e.config.Model)
}

func (e *OpenAIEmbedder) Name() string {
	return ProviderOpenAI
}

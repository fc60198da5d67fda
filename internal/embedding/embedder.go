package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
)

// Provider names supported by NewEmbedder
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Embedder turns text into a fixed-dimension vector. Document and question
// embeddings must come from the same embedder instance, identified by
// ModelVersion, or retrieval scores are meaningless.
type Embedder interface {
	// Embed returns the vector for one text. Blocking, honors ctx.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector length this embedder produces
	Dimensions() int

	// ModelVersion identifies the embedding space, e.g. "ollama/all-minilm"
	ModelVersion() string

	Name() string
}

// NewEmbedder constructs the configured embedding provider
func NewEmbedder(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(cfg), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New(errors.ErrTypeConfig, "API key is required for the openai embedder").
				WithSuggestion("Set ASKDB_EMBEDDER_API_KEY")
		}

		return NewOpenAIEmbedder(cfg), nil
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported embedding provider: %s", cfg.Provider)
	}
}

// retryHTTP runs fn up to maxRetries+1 times with exponential backoff. It
// retries transport errors and retryable status codes; anything else is final.
func retryHTTP(ctx context.Context, maxRetries int, fn func() (int, error)) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		status, err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if status != 0 && !retryableStatus(status) {
			return err
		}
	}

	return lastErr
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// checkDimensions validates the vector length a provider returned
func checkDimensions(vec []float32, want int, provider string) ([]float32, error) {
	if want > 0 && len(vec) != want {
		return nil, errors.New(errors.ErrTypeEmbedder,
			fmt.Sprintf("%s returned a %d-dimension vector, expected %d", provider, len(vec), want)).
			WithSuggestion("Check that the configured model matches the configured dimensions")
	}

	return vec, nil
}

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/prompt"
)

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint
type OpenAIGenerator struct {
	config     config.GeneratorConfig
	httpClient *http.Client
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIGenerator creates a generator backed by the OpenAI chat API
func NewOpenAIGenerator(cfg config.GeneratorConfig) *OpenAIGenerator {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		timeout = 60 * time.Second
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIGenerator{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate produces one SQL candidate with bounded transport retries
func (g *OpenAIGenerator) Generate(ctx context.Context, genCtx *prompt.Context, attempt int) (Candidate, error) {
	reqBody, err := json.Marshal(openAIChatRequest{
		Model: g.config.Model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(genCtx)},
		},
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return Candidate{}, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal generation request")
	}

	var content string

	err = retryTransport(ctx, g.config.MaxRetries, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			g.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeInternal, "failed to create generation request")
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeGenerator, "generation request failed").
				WithSuggestion(fmt.Sprintf("Verify the base URL: %s", g.config.BaseURL))
		}

		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrTypeGenerator, "failed to read generation response")
		}

		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, errors.Newf(errors.ErrTypeGenerator,
				"generation request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var result openAIChatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrTypeGenerator, "failed to parse generation response")
		}

		if result.Error != nil {
			return resp.StatusCode, errors.Newf(errors.ErrTypeGenerator, "generation error: %s", result.Error.Message)
		}

		if len(result.Choices) == 0 {
			return resp.StatusCode, errors.New(errors.ErrTypeGenerator, "generation response contained no choices")
		}

		content = result.Choices[0].Message.Content

		return resp.StatusCode, nil
	})
	if err != nil {
		return Candidate{}, err
	}

	return parseResponse(content, attempt, g.config.Model)
}

func (g *OpenAIGenerator) Name() string { return ProviderOpenAI }

// retryTransport runs fn up to maxRetries+1 times with exponential backoff,
// retrying transport errors and retryable status codes only.
func retryTransport(ctx context.Context, maxRetries int, fn func() (int, error)) error {
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

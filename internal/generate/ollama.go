package generate

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
	"github.com/askdb/askdb/internal/prompt"
)

// OllamaGenerator calls a local Ollama server's generate endpoint
type OllamaGenerator struct {
	config     config.GeneratorConfig
	httpClient *http.Client
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaGenerator creates a generator backed by Ollama
func NewOllamaGenerator(cfg config.GeneratorConfig) *OllamaGenerator {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		timeout = 60 * time.Second
	}

	return &OllamaGenerator{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate produces one SQL candidate with bounded transport retries
func (g *OllamaGenerator) Generate(ctx context.Context, genCtx *prompt.Context, attempt int) (Candidate, error) {
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:   g.config.Model,
		System:  systemPrompt,
		Prompt:  buildUserPrompt(genCtx),
		Stream:  false,
		Options: map[string]interface{}{"temperature": g.config.Temperature},
	})
	if err != nil {
		return Candidate{}, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal generation request")
	}

	var content string

	err = retryTransport(ctx, g.config.MaxRetries, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			g.config.BaseURL+"/api/generate", bytes.NewReader(reqBody))
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeInternal, "failed to create generation request")
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrTypeGenerator, "generation request failed").
				WithSuggestion("Check that Ollama is running (ollama serve)").
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

		var result ollamaGenerateResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrTypeGenerator, "failed to parse generation response")
		}

		if result.Error != "" {
			return resp.StatusCode, errors.Newf(errors.ErrTypeGenerator, "generation error: %s", result.Error)
		}

		content = result.Response

		return resp.StatusCode, nil
	})
	if err != nil {
		return Candidate{}, err
	}

	return parseResponse(content, attempt, g.config.Model)
}

func (g *OllamaGenerator) Name() string { return ProviderOllama }

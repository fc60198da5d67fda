package generate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/prompt"
)

// Provider names supported by NewGenerator
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// declineAnswer is the exact bail-out phrase the system prompt instructs the
// model to use when the provided schema cannot answer the question.
const declineAnswer = "I do not know"

// Candidate is one SQL generation attempt. Declined means the model answered
// that the schema cannot satisfy the question; SQL is empty in that case.
type Candidate struct {
	SQL      string
	Attempt  int
	Model    string
	Declined bool
}

// Generator produces SQL candidates from an assembled context. Adapters are
// stateless; the retry loop lives in the pipeline.
type Generator interface {
	Generate(ctx context.Context, genCtx *prompt.Context, attempt int) (Candidate, error)
	Name() string
}

// NewGenerator constructs the configured SQL generation provider
func NewGenerator(cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaGenerator(cfg), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New(errors.ErrTypeConfig, "API key is required for the openai generator").
				WithSuggestion("Set ASKDB_GENERATOR_API_KEY")
		}

		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported generation provider: %s", cfg.Provider)
	}
}

// systemPrompt instructs the model to emit exactly one DuckDB query or the
// decline phrase, nothing else.
const systemPrompt = "You convert natural language questions into a single DuckDB SQL query. " +
	"DuckDB uses PostgreSQL-like SQL syntax. " +
	"Use only the tables and columns described in the provided schema context. " +
	"Return ONLY SQL. No markdown, no explanation. " +
	"If the schema context cannot answer the question, reply exactly: " + declineAnswer

// buildUserPrompt renders the schema block, retry feedback, and the verbatim
// question into the user message.
func buildUserPrompt(genCtx *prompt.Context) string {
	var sb strings.Builder

	sb.WriteString("Database schema context:\n")
	sb.WriteString(genCtx.SchemaBlock)

	if len(genCtx.Feedback) > 0 {
		sb.WriteString("\nYour previous attempt was rejected:\n")

		for _, f := range genCtx.Feedback {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
	}

	sb.WriteString("\nQuestion:\n")
	sb.WriteString(genCtx.Question)
	sb.WriteString("\n\nRules:\n- Use only tables and columns from the schema context.\n- Output a single SQL query only.")

	return sb.String()
}

// parseResponse strips markdown fencing and detects the decline phrase
func parseResponse(raw string, attempt int, model string) (Candidate, error) {
	answer := stripMarkdownSQL(raw)

	if strings.EqualFold(strings.TrimRight(answer, "."), declineAnswer) {
		return Candidate{Attempt: attempt, Model: model, Declined: true}, nil
	}

	if answer == "" {
		return Candidate{}, errors.New(errors.ErrTypeGenerator, "model returned an empty response")
	}

	return Candidate{SQL: answer, Attempt: attempt, Model: model}, nil
}

// stripMarkdownSQL unwraps a fenced code block if the model emitted one
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
	}

	return strings.TrimSpace(trimmed)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

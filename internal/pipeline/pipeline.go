package pipeline

import (
	"context"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/generate"
	"github.com/askdb/askdb/internal/guard"
	"github.com/askdb/askdb/internal/logging"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/retrieval"
)

// Retriever is the slice of retrieval the pipeline depends on
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]retrieval.ScoredDocument, error)
}

// Attempt records one generate-validate round for diagnostics
type Attempt struct {
	Number   int
	SQL      string
	Declined bool
	Verdict  guard.Verdict
}

// Outcome is the pipeline's structured result. A rejected verdict is a
// normal outcome, not an error; errors mean a stage itself failed.
type Outcome struct {
	Verdict   guard.Verdict
	Retrieved []retrieval.ScoredDocument
	Attempts  []Attempt
}

// Pipeline wires retrieval, assembly, generation, and validation into the
// question-answering loop. Stateless per request; safe for concurrent use.
type Pipeline struct {
	retriever   Retriever
	assembler   *prompt.Assembler
	generator   generate.Generator
	validator   *guard.Validator
	maxAttempts int
	logger      *logging.Logger
}

// New creates a pipeline from already-constructed stages
func New(r Retriever, a *prompt.Assembler, g generate.Generator, v *guard.Validator, cfg config.ValidatorConfig) *Pipeline {
	return &Pipeline{
		retriever:   r,
		assembler:   a,
		generator:   g,
		validator:   v,
		maxAttempts: cfg.MaxAttempts,
		logger:      logging.GetLogger(),
	}
}

// Ask answers one natural language question: retrieve relevant schema
// documents, then loop assemble-generate-validate until a candidate is
// accepted, terminally rejected, or attempts run out.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Outcome, error) {
	start := time.Now()

	outcome, err := p.ask(ctx, question)
	if err != nil {
		return nil, err
	}

	observability.ObserveAsk(string(outcome.Verdict.Kind),
		len(outcome.Retrieved), len(outcome.Attempts), time.Since(start))

	return outcome, nil
}

func (p *Pipeline) ask(ctx context.Context, question string) (*Outcome, error) {
	retrieved, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Retrieved: retrieved}

	if len(retrieved) == 0 {
		outcome.Verdict = guard.Rejected("no relevant columns found")
		return outcome, nil
	}

	var feedback []string

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		genCtx, err := p.assembler.Assemble(question, retrieved, feedback)
		if err != nil {
			return nil, err
		}

		candidate, err := p.generator.Generate(ctx, genCtx, attempt)
		if err != nil {
			return nil, err
		}

		verdict := p.judge(candidate, genCtx)

		outcome.Attempts = append(outcome.Attempts, Attempt{
			Number:   attempt,
			SQL:      candidate.SQL,
			Declined: candidate.Declined,
			Verdict:  verdict,
		})

		p.logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"verdict": string(verdict.Kind),
		}).Debug("validated SQL candidate")

		switch verdict.Kind {
		case guard.KindAccepted, guard.KindRejected:
			outcome.Verdict = verdict
			return outcome, nil
		case guard.KindRetryRequested:
			feedback = append(feedback, verdict.Reason)
		}
	}

	outcome.Verdict = guard.Rejected("max attempts exceeded")

	return outcome, nil
}

// judge maps a generation result onto a verdict. A declined answer is a
// recoverable content failure, validated SQL goes through the guard.
func (p *Pipeline) judge(candidate generate.Candidate, genCtx *prompt.Context) guard.Verdict {
	if candidate.Declined {
		return guard.RetryRequested("the model could not answer from the provided schema context")
	}

	return p.validator.Validate(candidate.SQL, genCtx)
}

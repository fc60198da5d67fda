package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/embedding"
	"github.com/askdb/askdb/internal/generate"
	"github.com/askdb/askdb/internal/guard"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/retrieval"
	"github.com/askdb/askdb/internal/store"
)

var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a natural language question and get validated SQL",
	Long: `Ask a question about the indexed database. The question is matched
against the stored schema descriptions, the relevant subset is handed to the
SQL model, and the generated statement is validated before it is printed.

Examples:
  askdb ask "which artist sold the most last month"
  askdb ask --verbose "average order value by country"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askVerbose, "verbose", false, "Show retrieved documents and per-attempt verdicts")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.TrimSpace(strings.Join(args, " "))

	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	descStore, err := store.NewDuckDBStore(cfg.EffectiveStorePath())
	if err != nil {
		return err
	}

	defer descStore.Close()

	if err := descStore.Initialize(ctx); err != nil {
		return err
	}

	p, err := buildPipeline(descStore)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " thinking..."
	s.Start()

	outcome, err := p.Ask(ctx, question)

	s.Stop()

	if err != nil {
		return err
	}

	printOutcome(outcome)

	return nil
}

// buildPipeline wires the pipeline stages from the loaded configuration
func buildPipeline(descStore store.Store) (*pipeline.Pipeline, error) {
	embedder, err := embedding.NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	policy, err := retrieval.NewPolicy(cfg.Retrieval)
	if err != nil {
		return nil, err
	}

	retriever := retrieval.NewRetriever(descStore, embedder, policy)
	if cfg.Retrieval.Rerank {
		retriever = retriever.WithReranker(retrieval.NewLexicalReranker(), cfg.Retrieval.RerankTopN)
	}

	generator, err := generate.NewGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	var cost guard.CostPolicy
	if cfg.Validator.RequireLimit || cfg.Validator.MaxJoins > 0 {
		cost = guard.HeuristicPolicy{
			RequireLimit: cfg.Validator.RequireLimit,
			MaxJoins:     cfg.Validator.MaxJoins,
		}
	}

	return pipeline.New(
		retriever,
		prompt.NewAssembler(cfg.Prompt.BudgetChars),
		generator,
		guard.NewValidator(cost),
		cfg.Validator,
	), nil
}

func printOutcome(outcome *pipeline.Outcome) {
	if askVerbose {
		fmt.Printf("Retrieved %d schema documents:\n", len(outcome.Retrieved))

		for _, scored := range outcome.Retrieved {
			fmt.Printf("  %-40s %.3f\n", scored.Doc.Doc.ID, scored.Score)
		}

		for _, attempt := range outcome.Attempts {
			fmt.Printf("Attempt %d: %s", attempt.Number, attempt.Verdict.Kind)

			if attempt.Verdict.Reason != "" {
				fmt.Printf(" (%s)", attempt.Verdict.Reason)
			}

			fmt.Println()
		}

		fmt.Println()
	}

	if outcome.Verdict.IsAccepted() {
		fmt.Println(outcome.Verdict.SQL)
		return
	}

	fmt.Printf("Could not answer: %s\n", outcome.Verdict.Reason)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the active configuration",
	Long:  `Show the current active configuration merged from file, environment variables, and command-line flags.`,
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	fmt.Println("Active Configuration")
	fmt.Println("====================")

	fmt.Println("\nDatabase:")
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Printf("  Store Path: %s\n", cfg.EffectiveStorePath())
	fmt.Printf("  Sample Values: %d\n", cfg.Database.SampleValues)

	fmt.Println("\nEmbedder:")
	fmt.Printf("  Provider: %s\n", cfg.Embedder.Provider)
	fmt.Printf("  Model: %s\n", cfg.Embedder.Model)
	fmt.Printf("  Base URL: %s\n", cfg.Embedder.BaseURL)
	fmt.Printf("  Dimensions: %d\n", cfg.Embedder.Dimensions)
	fmt.Printf("  Timeout: %s\n", cfg.Embedder.Timeout)

	fmt.Println("\nGenerator:")
	fmt.Printf("  Provider: %s\n", cfg.Generator.Provider)
	fmt.Printf("  Model: %s\n", cfg.Generator.Model)
	fmt.Printf("  Base URL: %s\n", cfg.Generator.BaseURL)
	fmt.Printf("  Temperature: %.2f\n", cfg.Generator.Temperature)
	fmt.Printf("  Timeout: %s\n", cfg.Generator.Timeout)

	fmt.Println("\nRetrieval:")
	fmt.Printf("  Policy: %s\n", cfg.Retrieval.Policy)
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Printf("  Threshold: %.2f\n", cfg.Retrieval.Threshold)
	fmt.Printf("  Rerank: %t\n", cfg.Retrieval.Rerank)

	fmt.Println("\nValidator:")
	fmt.Printf("  Max Attempts: %d\n", cfg.Validator.MaxAttempts)
	fmt.Printf("  Require LIMIT: %t\n", cfg.Validator.RequireLimit)
	fmt.Printf("  Max Joins: %d\n", cfg.Validator.MaxJoins)

	fmt.Println("\nPrompt:")
	fmt.Printf("  Budget: %d chars\n", cfg.Prompt.BudgetChars)

	fmt.Println("\nLogging:")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Printf("  Output: %s\n", cfg.Logging.Output)

	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/logging"
)

var (
	flagDBPath      string
	flagStorePath   string
	flagLogLevel    string
	flagPolicy      string
	flagThreshold   float64
	flagMaxAttempts int
)

// cfg is loaded once in the persistent pre-run and shared by all commands
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "askdb",
	Short: "Ask natural language questions about a DuckDB database",
	Long: `askdb turns natural language questions into validated, read-only SQL.

It indexes descriptions of your database schema into an embedding store,
retrieves the columns relevant to each question, asks a language model for
SQL, and only accepts statements that pass the read-only guard.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfiguration,
}

// Execute runs the root command
func Execute() error {
	ctx := context.Background()

	defer func() {
		if logger := logging.GetLogger(); logger != nil {
			_ = logger.Close()
		}
	}()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db-path", "", "Path to the target DuckDB database")
	rootCmd.PersistentFlags().StringVar(&flagStorePath, "store-path", "", "Path to the description store (defaults to the database file)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagPolicy, "policy", "", "Retrieval selection policy: topk_threshold, adaptive, margin")
	rootCmd.PersistentFlags().Float64Var(&flagThreshold, "threshold", 0, "Similarity threshold for the topk_threshold policy")
	rootCmd.PersistentFlags().IntVar(&flagMaxAttempts, "max-attempts", 0, "Maximum SQL generation attempts per question")
}

func loadConfiguration(_ *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfigWithOverrides(map[string]interface{}{
		"db-path":      flagDBPath,
		"store-path":   flagStorePath,
		"log-level":    flagLogLevel,
		"policy":       flagPolicy,
		"threshold":    flagThreshold,
		"max-attempts": flagMaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loaded.ExpandAllPaths()

	if err := logging.InitializeLogger(loaded.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	cfg = loaded

	return nil
}

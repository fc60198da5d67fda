package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/embedding"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/logging"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the schema description store from the target database",
	Long: `Introspect the target database, generate natural language descriptions
of every table, column, and foreign key, embed them, and replace the
description store in one transaction.

Run this after schema changes, and after switching embedding models.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logging.GetLogger()

	db, err := sql.Open("duckdb", cfg.Database.Path)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to open target database")
	}

	defer db.Close()

	inspector := schema.NewInspector(db, cfg.Database.SampleValues)

	docs, err := inspector.GenerateDocuments(ctx)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Println("No user tables found; nothing to index.")
		return nil
	}

	embedder, err := embedding.NewEmbedder(cfg.Embedder)
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"documents": len(docs),
		"model":     embedder.ModelVersion(),
	}).Info("embedding schema documents")

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(" embedding %d schema documents...", len(docs))
	s.Start()

	stored := make([]store.StoredDocument, 0, len(docs))

	for _, doc := range docs {
		vec, err := embedder.Embed(ctx, doc.Text)
		if err != nil {
			s.Stop()
			return err
		}

		stored = append(stored, store.StoredDocument{
			Doc:          doc,
			Embedding:    vec,
			ModelVersion: embedder.ModelVersion(),
		})
	}

	s.Stop()

	descStore, err := store.NewDuckDBStore(cfg.EffectiveStorePath())
	if err != nil {
		return err
	}

	defer descStore.Close()

	if err := descStore.Initialize(ctx); err != nil {
		return err
	}

	if err := descStore.ReplaceAll(ctx, stored); err != nil {
		return err
	}

	observability.ObserveIndex(len(stored))

	fmt.Printf("Indexed %d schema documents (%s)\n", len(stored), embedder.ModelVersion())

	return nil
}

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display description store statistics",
	Long:  `Show the stored document counts by kind, the embedding model they were built with, and the last rebuild time.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	descStore, err := store.NewDuckDBStore(cfg.EffectiveStorePath())
	if err != nil {
		return err
	}

	defer descStore.Close()

	if err := descStore.Initialize(ctx); err != nil {
		return err
	}

	stats, err := descStore.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Description Store Statistics\n")
	fmt.Printf("============================\n\n")
	fmt.Printf("Total Documents: %d\n", stats.TotalDocuments)

	if stats.TotalDocuments == 0 {
		fmt.Println("\nThe store is empty. Run 'askdb index' to build it.")
		return nil
	}

	types := make([]string, 0, len(stats.ByType))
	for docType := range stats.ByType {
		types = append(types, docType)
	}

	sort.Strings(types)

	for _, docType := range types {
		fmt.Printf("  %-15s %d\n", docType, stats.ByType[docType])
	}

	fmt.Printf("\nEmbedding Model: %s\n", stats.ModelVersion)

	if !stats.LastRebuilt.IsZero() {
		fmt.Printf("Last Rebuilt: %s\n", stats.LastRebuilt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

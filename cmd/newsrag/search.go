package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/logging"
)

var (
	searchTopK       int
	searchCollection string
	searchCategory   string
	searchSource     string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Similarity search over stored news chunks",
	Long: `Search embeds the query and returns the most similar chunks from the
vector store, with their scores and metadata.

Examples:
  # Top 5 results
  newsrag search "earthquake in the Caucasus"

  # More results, filtered by analysis category
  newsrag search "election results" --top-k 10 --category politics`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "number of results")
	searchCmd.Flags().StringVar(&searchCollection, "collection", "", "collection to search (overrides config)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "filter by analysis category")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "filter by source name")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	_, store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	query := strings.Join(args, " ")
	collection := cfg.VectorStore.Collection
	if searchCollection != "" {
		collection = searchCollection
	}

	filters := map[string]interface{}{}
	if searchCategory != "" {
		filters["category"] = searchCategory
	}
	if searchSource != "" {
		filters["source_name"] = searchSource
	}

	results, err := store.SearchInCollection(ctx, collection, query, searchTopK, filters)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, res := range results {
		fmt.Printf("%d. [%.4f] %s\n", i+1, res.Score, res.ID)
		if cat, ok := res.Metadata["category"]; ok {
			fmt.Printf("   category: %v", cat)
			if imp, ok := res.Metadata["importance"]; ok {
				fmt.Printf("  importance: %v", imp)
			}
			fmt.Println()
		}
		fmt.Printf("   %s\n", snippet(res.Content, 200))
	}
	return nil
}

// snippet truncates content for terminal display, cutting on a rune
// boundary.
func snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

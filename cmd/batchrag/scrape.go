package batchrag

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scrapeLimit int

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Collect newsletter article URLs from the sitemap",
	Long: `Fetches the sitemap index, gathers article URLs matching the configured
filter and writes them to the URLs file, one per line.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Maximum number of article URLs to save (0 = all)")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	urls, err := newScraper(log).SaveArticleURLs(cmd.Context(), scrapeLimit)
	if err != nil {
		return fmt.Errorf("failed to save article urls: %w", err)
	}

	fmt.Printf("Saved %d article URLs to %s\n", len(urls), cfg.Scrape.URLsFile)
	return nil
}

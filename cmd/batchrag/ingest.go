package batchrag

import (
	"fmt"

	"github.com/spf13/cobra"

	"batchrag/pkg/ingest"
)

var (
	ingestArticleLimit int
	ingestBatchLimit   int
	ingestImageLimit   int
	ingestSkipArticles bool
	ingestSkipImages   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, summarize, caption and index articles and images",
	Long: `Processes the saved article URLs in batches into the vector store:
fetch, summarize, embed, skipping documents already indexed. Then
scrapes the images from the same pages, captions them with the vision
model and indexes the captions alongside the encoded image bytes.`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.IntVar(&ingestArticleLimit, "article-limit", 0, "Maximum number of articles to ingest (0 = config default)")
	f.IntVar(&ingestBatchLimit, "batch-limit", 0, "Maximum number of batches to process (0 = all)")
	f.IntVar(&ingestImageLimit, "image-limit", 0, "Maximum number of images to index (0 = config default)")
	f.BoolVar(&ingestSkipArticles, "skip-articles", false, "Skip article ingestion")
	f.BoolVar(&ingestSkipImages, "skip-images", false, "Skip image scraping and ingestion")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client, err := newLLMClient(log)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, client, log)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	scraper := newScraper(log)
	proc := newProcessor(scraper, client, store, log)

	articleLimit := cfg.Ingest.ArticleLimit
	if ingestArticleLimit > 0 {
		articleLimit = ingestArticleLimit
	}
	imageLimit := cfg.Ingest.ImageLimit
	if ingestImageLimit > 0 {
		imageLimit = ingestImageLimit
	}

	if !ingestSkipArticles {
		added, err := proc.ProcessArticles(ctx, ingest.Options{
			ArticleLimit: articleLimit,
			BatchLimit:   ingestBatchLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to ingest articles: %w", err)
		}
		fmt.Printf("Ingested %d article documents\n", added)
	}

	if !ingestSkipImages {
		if _, err := scraper.ScrapeFromFile(ctx, cfg.Scrape.URLsFile, cfg.Scrape.ImagesDir, articleLimit); err != nil {
			return fmt.Errorf("failed to scrape images: %w", err)
		}

		docs, err := proc.IndexImages(ctx, imageLimit)
		if err != nil {
			return fmt.Errorf("failed to caption images: %w", err)
		}

		added, err := proc.ProcessImages(ctx, docs)
		if err != nil {
			return fmt.Errorf("failed to ingest images: %w", err)
		}
		fmt.Printf("Ingested %d image documents\n", added)
	}

	return nil
}

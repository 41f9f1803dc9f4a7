package batchrag

import (
	"context"

	"go.uber.org/zap"

	"batchrag/pkg/ingest"
	"batchrag/pkg/llm"
	"batchrag/pkg/logger"
	"batchrag/pkg/rag"
	"batchrag/pkg/scrape"
	"batchrag/pkg/vectorstore"

	// Register built-in vector store backends
	_ "batchrag/pkg/vectorstore/local"
	_ "batchrag/pkg/vectorstore/postgres"
)

// Shared constructors, wired from the loaded config. Commands fail fast
// on construction errors instead of limping along half-configured.

func newLogger() (*zap.Logger, error) {
	return logger.New(cfg.Log.Dir, cfg.Log.Level)
}

func newScraper(log *zap.Logger) *scrape.Scraper {
	return scrape.New(scrape.Config{
		BaseURL:         cfg.Scrape.BaseURL,
		SitemapIndexURL: cfg.Scrape.SitemapIndexURL,
		ArticleFilter:   cfg.Scrape.ArticleFilter,
		URLsFile:        cfg.Scrape.URLsFile,
		ImagesDir:       cfg.Scrape.ImagesDir,
	}, log)
}

func newLLMClient(log *zap.Logger) (*llm.Client, error) {
	return llm.New(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		CaptionModel:   cfg.OpenAI.CaptionModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Temperature:    cfg.OpenAI.Temperature,
		MaxTokens:      cfg.OpenAI.MaxTokens,
	}, log)
}

func openStore(ctx context.Context, client *llm.Client, log *zap.Logger) (vectorstore.Store, error) {
	return vectorstore.Open(ctx, vectorstore.Options{
		Backend:    cfg.Store.Backend,
		Dimensions: cfg.Store.Dimensions,
		Config:     cfg.Store.Config,
		Embedder:   client.Embed,
		Logger:     log,
	})
}

func newEngine(store vectorstore.Store, client *llm.Client, log *zap.Logger) *rag.Engine {
	return rag.New(store, client, rag.Config{
		TopK:       cfg.Retrieval.TopK,
		TokenLimit: cfg.Retrieval.TokenLimit,
	}, log)
}

func newProcessor(scraper *scrape.Scraper, client *llm.Client, store vectorstore.Store, log *zap.Logger) *ingest.Processor {
	return ingest.New(scraper, client, store, ingest.Config{
		BaseURL:   cfg.Scrape.BaseURL,
		URLsFile:  cfg.Scrape.URLsFile,
		ImagesDir: cfg.Scrape.ImagesDir,
		BatchSize: cfg.Ingest.BatchSize,
	}, log)
}

// Package ingest turns scraped articles and images into embedded
// documents in the vector store.
package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"batchrag/pkg/document"
	"batchrag/pkg/metrics"
	"batchrag/pkg/scrape"
	"batchrag/pkg/vectorstore"
)

// Fetcher loads article pages into documents.
type Fetcher interface {
	FetchArticles(ctx context.Context, urls []string) ([]document.Document, error)
}

// LLM is the model surface ingestion needs: summaries for articles,
// captions for images, embeddings for both.
type LLM interface {
	Summarize(ctx context.Context, text string) (string, error)
	CaptionImage(ctx context.Context, image []byte, mimeType string) (string, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds ingestion inputs and batching.
type Config struct {
	BaseURL   string
	URLsFile  string
	ImagesDir string
	BatchSize int
}

// Options bound a single ingestion run.
type Options struct {
	ArticleLimit int
	BatchLimit   int
	ImageLimit   int
}

// Processor drives article and image ingestion end to end.
type Processor struct {
	fetcher Fetcher
	llm     LLM
	store   vectorstore.Store
	cfg     Config
	logger  *zap.Logger
}

// New returns a Processor. A nil logger disables logging.
func New(fetcher Fetcher, llm LLM, store vectorstore.Store, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Processor{fetcher: fetcher, llm: llm, store: store, cfg: cfg, logger: logger}
}

// ProcessArticles reads the URLs file, fetches articles in batches,
// summarizes and embeds the ones not yet indexed, and persists after
// every batch. It returns the number of documents added.
func (p *Processor) ProcessArticles(ctx context.Context, opts Options) (int, error) {
	urls, err := scrape.ReadURLsFile(p.cfg.URLsFile)
	if err != nil {
		return 0, err
	}
	if len(urls) == 0 {
		p.logger.Warn("no article urls found", zap.String("file", p.cfg.URLsFile))
		return 0, nil
	}

	for i := range urls {
		urls[i] = document.NormalizeURL(urls[i], p.cfg.BaseURL)
	}
	if opts.ArticleLimit > 0 && len(urls) > opts.ArticleLimit {
		urls = urls[:opts.ArticleLimit]
	}

	batchSize := p.cfg.BatchSize
	totalBatches := (len(urls) + batchSize - 1) / batchSize
	if opts.BatchLimit > 0 && totalBatches > opts.BatchLimit {
		totalBatches = opts.BatchLimit
	}

	added := 0
	for b := 0; b < totalBatches; b++ {
		start := b * batchSize
		end := min(start+batchSize, len(urls))
		p.logger.Info("processing batch",
			zap.Int("batch", b+1), zap.Int("batches", totalBatches), zap.Int("urls", end-start))

		docs, err := p.fetcher.FetchArticles(ctx, urls[start:end])
		if err != nil {
			return added, err
		}

		fresh, err := p.filterNew(ctx, docs)
		if err != nil {
			return added, err
		}
		if len(fresh) == 0 {
			p.logger.Info("no new documents found, skipping vector store update", zap.Int("batch", b+1))
			continue
		}

		n, err := p.addTexts(ctx, fresh)
		if err != nil {
			return added, err
		}
		added += n
	}

	p.logger.Info("article ingestion complete", zap.Int("added", added))
	return added, nil
}

// addTexts marks documents as text, summarizes them, embeds their
// contents and stores them. Documents whose summary fails are logged
// and skipped.
func (p *Processor) addTexts(ctx context.Context, docs []document.Document) (int, error) {
	prepared := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		doc.Metadata[document.MetaType] = document.KindText

		summary, err := p.llm.Summarize(ctx, doc.Content)
		if err != nil {
			p.logger.Warn("failed to summarize document",
				zap.String("source", doc.Meta(document.MetaSource)), zap.Error(err))
			metrics.IngestErrors.WithLabelValues("summarize").Inc()
			continue
		}
		doc.Metadata[document.MetaSummary] = summary
		prepared = append(prepared, doc)
	}
	if len(prepared) == 0 {
		return 0, nil
	}

	if err := p.embedAndStore(ctx, prepared); err != nil {
		return 0, err
	}
	metrics.DocumentsIngested.WithLabelValues(document.KindText).Add(float64(len(prepared)))
	return len(prepared), nil
}

// IndexImages walks the images directory, captions each image and
// builds image documents with the raw bytes hex-encoded in metadata.
// Images that fail to read or caption are logged and skipped.
func (p *Processor) IndexImages(ctx context.Context, limit int) ([]document.Document, error) {
	paths, err := listImages(p.cfg.ImagesDir, limit)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		p.logger.Warn("no images found", zap.String("dir", p.cfg.ImagesDir))
		return nil, nil
	}

	docs := make([]document.Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn("failed to read image", zap.String("path", path), zap.Error(err))
			metrics.IngestErrors.WithLabelValues("read_image").Inc()
			continue
		}
		caption, err := p.llm.CaptionImage(ctx, data, "")
		if err != nil {
			p.logger.Warn("failed to caption image", zap.String("path", path), zap.Error(err))
			metrics.IngestErrors.WithLabelValues("caption").Inc()
			continue
		}

		encoded := strings.ToUpper(hex.EncodeToString(data))
		docs = append(docs, document.Document{
			ID:      document.ImageID(encoded),
			Content: caption,
			Metadata: map[string]string{
				document.MetaType:         document.KindImage,
				document.MetaID:           uuid.NewString(),
				document.MetaSourceFile:   path,
				document.MetaEncodedImage: encoded,
			},
		})
	}

	p.logger.Info("captioned images", zap.Int("count", len(docs)), zap.Int("files", len(paths)))
	return docs, nil
}

// ProcessImages embeds and stores image documents not yet indexed,
// returning the number added.
func (p *Processor) ProcessImages(ctx context.Context, docs []document.Document) (int, error) {
	fresh, err := p.filterNew(ctx, docs)
	if err != nil {
		return 0, err
	}
	if len(fresh) == 0 {
		p.logger.Info("no new documents found, skipping vector store update")
		return 0, nil
	}

	if err := p.embedAndStore(ctx, fresh); err != nil {
		return 0, err
	}
	metrics.DocumentsIngested.WithLabelValues(document.KindImage).Add(float64(len(fresh)))
	p.logger.Info("image ingestion complete", zap.Int("added", len(fresh)))
	return len(fresh), nil
}

func (p *Processor) filterNew(ctx context.Context, docs []document.Document) ([]document.Document, error) {
	fresh := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := p.store.Has(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("check document %s: %w", doc.ID, err)
		}
		if ok {
			p.logger.Debug("skipping existing document",
				zap.String("id", doc.ID), zap.String("source", doc.Meta(document.MetaSource)))
			continue
		}
		fresh = append(fresh, doc)
	}
	return fresh, nil
}

func (p *Processor) embedAndStore(ctx context.Context, docs []document.Document) error {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	vectors, err := p.llm.EmbedTexts(ctx, contents)
	if err != nil {
		metrics.IngestErrors.WithLabelValues("embed").Inc()
		return fmt.Errorf("embed documents: %w", err)
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	if err := p.store.Add(ctx, docs); err != nil {
		metrics.IngestErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("add documents: %w", err)
	}
	if err := p.store.Persist(); err != nil {
		metrics.IngestErrors.WithLabelValues("persist").Inc()
		return fmt.Errorf("persist store: %w", err)
	}
	return nil
}

// listImages returns up to limit jpg, jpeg and png files under dir,
// case-insensitive on extension.
func listImages(dir string, limit int) ([]string, error) {
	exts := map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		if limit > 0 && len(paths) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk images directory %s: %w", dir, err)
	}
	return paths, nil
}

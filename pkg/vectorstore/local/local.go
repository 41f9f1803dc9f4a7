// Package local implements the vector store on an embedded chromem-go
// database persisted to a single index file.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/mapstructure"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"batchrag/pkg/document"
	"batchrag/pkg/vectorstore"
)

func init() {
	vectorstore.Register("local", New)
}

type config struct {
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
}

// Store holds one chromem collection backed by an export file.
type Store struct {
	db     *chromem.DB
	col    *chromem.Collection
	path   string
	logger *zap.Logger
}

// New loads the index file when it exists, otherwise starts an empty
// collection and writes the file immediately.
func New(_ context.Context, opts vectorstore.Options) (vectorstore.Store, error) {
	var cfg config
	if err := mapstructure.Decode(opts.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode local store config: %w", err)
	}
	if cfg.Path == "" {
		return nil, errors.New("local store: path is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}

	db := chromem.NewDB()
	created := false
	if _, err := os.Stat(cfg.Path); err == nil {
		if err := db.ImportFromFile(cfg.Path, ""); err != nil {
			return nil, fmt.Errorf("load vector index %s: %w", cfg.Path, err)
		}
		opts.Logger.Info("loaded vector index", zap.String("path", cfg.Path))
	} else {
		created = true
		opts.Logger.Warn("vector index not found, creating a new one", zap.String("path", cfg.Path))
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, chromem.EmbeddingFunc(opts.Embedder))
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}

	s := &Store{db: db, col: col, path: cfg.Path, logger: opts.Logger}
	if created {
		if err := s.Persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Add(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	out := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		// chromem overwrites on duplicate IDs; keep the first write
		if _, err := s.col.GetByID(ctx, d.ID); err == nil {
			continue
		}
		out = append(out, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		})
	}
	if len(out) == 0 {
		return nil
	}
	if err := s.col.AddDocuments(ctx, out, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]document.Scored, error) {
	count := s.col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	// chromem rejects nResults larger than the collection
	if k > count {
		k = count
	}

	results, err := s.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	scored := make([]document.Scored, 0, len(results))
	for _, res := range results {
		scored = append(scored, document.Scored{
			Document: document.Document{
				ID:        res.ID,
				Content:   res.Content,
				Metadata:  res.Metadata,
				Embedding: res.Embedding,
			},
			Similarity: res.Similarity,
		})
	}
	return scored, nil
}

func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	_, err := s.col.GetByID(ctx, id)
	return err == nil, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	return s.col.Count(), nil
}

// Persist exports the database to the index file.
func (s *Store) Persist() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory %s: %w", dir, err)
		}
	}
	if err := s.db.ExportToFile(s.path, false, ""); err != nil {
		return fmt.Errorf("export vector index %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

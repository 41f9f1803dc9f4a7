// Package vectorstore defines the vector store interface and a backend
// registry. Backends register themselves in init and are selected by
// name from configuration.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"batchrag/pkg/document"
)

// EmbeddingFunc embeds a text for storage or querying.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// Store indexes documents and answers similarity queries.
type Store interface {
	// Add indexes documents. Documents without an embedding are
	// embedded first; IDs already present are left untouched.
	Add(ctx context.Context, docs []document.Document) error
	// Search returns up to k documents most similar to the query,
	// best first.
	Search(ctx context.Context, query string, k int) ([]document.Scored, error)
	// Has reports whether a document with the given ID is indexed.
	Has(ctx context.Context, id string) (bool, error)
	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
	// Persist flushes the index to durable storage.
	Persist() error
	Close() error
}

// Options selects a backend and carries its specific configuration
// block, which the backend decodes itself.
type Options struct {
	Backend    string
	Dimensions int
	Config     map[string]any
	Embedder   EmbeddingFunc
	Logger     *zap.Logger
}

// Factory builds a Store from options.
type Factory func(ctx context.Context, opts Options) (Store, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend available under name. Backends call it from
// their init functions.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Embedder == nil {
		return nil, errors.New("vectorstore: embedder is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	mu.RLock()
	f, ok := factories[opts.Backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown vector store backend %q, available: %v", opts.Backend, Backends())
	}
	return f(ctx, opts)
}

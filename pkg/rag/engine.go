// Package rag answers questions over the vector store: retrieve,
// assemble a token-bounded context, prompt the chat model.
package rag

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"batchrag/pkg/document"
	"batchrag/pkg/metrics"
)

// FallbackAnswer is returned when retrieval yields no documents.
const FallbackAnswer = "I couldn't find any relevant information to answer your question."

var answerPrompt = template.Must(template.New("answer").Parse(`
You are an assistant tasked with summarizing text and images.
Give a concise summary of the text or image.
Answer the question based only on the following context, which can include text and images:
{{.Context}}
Question: {{.Query}}
Don't answer if you are not sure and decline to answer and say "Sorry, I don't have much information about it."
Just return the helpful answer in as much detail as possible.
Answer:
`))

// Retriever searches the indexed documents.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]document.Scored, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes retrieval and context assembly.
type Config struct {
	// TopK is the default number of documents to retrieve.
	TopK int
	// TokenLimit caps the assembled context size.
	TokenLimit int
	// Counter overrides the default cl100k_base token counter.
	Counter TokenCounter
}

// Source describes one retrieved document to API and UI consumers.
type Source struct {
	Type         string `json:"type"`
	Title        string `json:"title,omitempty"`
	Source       string `json:"source,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Caption      string `json:"caption,omitempty"`
	EncodedImage string `json:"encoded_image,omitempty"`
}

// Answer is the result of one query. Documents carries the raw
// retrieval for callers that need full contents, such as evaluation.
type Answer struct {
	Text      string            `json:"answer"`
	Sources   []Source          `json:"sources"`
	Documents []document.Scored `json:"-"`
}

// Engine runs the retrieve-then-generate loop.
type Engine struct {
	store     Retriever
	generator Generator
	counter   TokenCounter
	cfg       Config
	logger    *zap.Logger
}

// New returns an Engine. Zero config fields get the defaults: top 5
// documents, 12000 context tokens.
func New(store Retriever, generator Generator, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = 12000
	}
	counter := cfg.Counter
	if counter == nil {
		counter = NewTokenCounter(logger)
	}
	return &Engine{store: store, generator: generator, counter: counter, cfg: cfg, logger: logger}
}

// Retrieve returns the k most similar documents. k <= 0 uses the
// configured default.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]document.Scored, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}
	return e.store.Search(ctx, query, k)
}

// BuildContext concatenates document contents as numbered articles,
// stopping before the first document that would push the total past
// the token limit.
func (e *Engine) BuildContext(docs []document.Scored) string {
	parts := make([]string, 0, len(docs))
	total := 0
	for i, doc := range docs {
		part := fmt.Sprintf("Article %d: %s", i+1, doc.Content)
		tokens := e.counter.Count(part)
		if total+tokens > e.cfg.TokenLimit {
			e.logger.Debug("context token limit reached",
				zap.Int("documents", len(parts)), zap.Int("tokens", total))
			break
		}
		parts = append(parts, part)
		total += tokens
	}
	return strings.Join(parts, "\n\n")
}

// Ask retrieves documents for the query and generates an answer from
// them. An empty retrieval returns FallbackAnswer with no sources.
func (e *Engine) Ask(ctx context.Context, query string, k int) (Answer, error) {
	metrics.QueriesTotal.Inc()
	timer := prometheus.NewTimer(metrics.QueryDuration)
	defer timer.ObserveDuration()

	docs, err := e.Retrieve(ctx, query, k)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve documents: %w", err)
	}
	if len(docs) == 0 {
		e.logger.Info("no documents retrieved", zap.String("query", query))
		return Answer{Text: FallbackAnswer}, nil
	}

	prompt, err := renderPrompt(e.BuildContext(docs), query)
	if err != nil {
		return Answer{}, err
	}
	text, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	e.logger.Info("answered query", zap.String("query", query), zap.Int("documents", len(docs)))
	return Answer{Text: text, Sources: makeSources(docs), Documents: docs}, nil
}

func renderPrompt(context, query string) (string, error) {
	var sb strings.Builder
	err := answerPrompt.Execute(&sb, struct{ Context, Query string }{context, query})
	if err != nil {
		return "", fmt.Errorf("render answer prompt: %w", err)
	}
	return sb.String(), nil
}

func makeSources(docs []document.Scored) []Source {
	sources := make([]Source, len(docs))
	for i, doc := range docs {
		if doc.Kind() == document.KindImage {
			sources[i] = Source{
				Type:         document.KindImage,
				Caption:      doc.Content,
				EncodedImage: doc.Meta(document.MetaEncodedImage),
			}
			continue
		}
		sources[i] = Source{
			Type:    document.KindText,
			Title:   doc.Meta(document.MetaTitle),
			Source:  doc.Meta(document.MetaSource),
			Summary: doc.Meta(document.MetaSummary),
		}
	}
	return sources
}

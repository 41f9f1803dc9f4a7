package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"batchrag/pkg/document"
)

// FetchArticle downloads a page and extracts its readable text. The
// returned document's ID is derived from the source URL and title so
// re-fetching the same article yields the same identity.
func (s *Scraper) FetchArticle(ctx context.Context, pageURL string) (document.Document, error) {
	body, err := s.get(ctx, pageURL)
	if err != nil {
		return document.Document{}, fmt.Errorf("fetch article %s: %w", pageURL, err)
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return document.Document{}, fmt.Errorf("parse article url %s: %w", pageURL, err)
	}

	art, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return document.Document{}, fmt.Errorf("extract article %s: %w", pageURL, err)
	}

	doc := document.Document{
		ID:      document.TextID(pageURL, art.Title),
		Content: strings.TrimSpace(art.TextContent),
		Metadata: map[string]string{
			document.MetaSource:      pageURL,
			document.MetaTitle:       art.Title,
			document.MetaDescription: art.Excerpt,
		},
	}
	return doc, nil
}

// FetchArticles loads each URL, logging and skipping pages that fail to
// download or yield no text.
func (s *Scraper) FetchArticles(ctx context.Context, urls []string) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		doc, err := s.FetchArticle(ctx, u)
		if err != nil {
			s.logger.Warn("skipping article", zap.String("url", u), zap.Error(err))
			continue
		}
		if doc.Content == "" {
			s.logger.Warn("article has no readable text", zap.String("url", u))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

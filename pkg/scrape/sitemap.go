// Package scrape discovers newsletter article URLs from sitemaps and
// downloads article pages and their images.
package scrape

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"batchrag/pkg/httputil"
)

// Config holds scraper settings. BaseURL is the site root used to
// resolve relative links, SitemapIndexURL is the entry point for URL
// discovery, and ArticleFilter keeps only URLs containing it.
type Config struct {
	BaseURL         string
	SitemapIndexURL string
	ArticleFilter   string
	URLsFile        string
	ImagesDir       string
	Timeout         time.Duration
}

// Scraper fetches sitemaps, article pages and images over HTTP.
type Scraper struct {
	cfg    Config
	logger *zap.Logger
	stdlog httputil.Logger
}

// New returns a Scraper. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Scraper{cfg: cfg, logger: logger, stdlog: zap.NewStdLog(logger)}
}

func (s *Scraper) get(ctx context.Context, url string) ([]byte, error) {
	cfg := httputil.DefaultRequestConfig(http.MethodGet, url)
	cfg.Timeout = s.cfg.Timeout
	cfg.Logger = s.stdlog
	resp, err := httputil.Request(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// sitemapIndex and urlSet model the two sitemap document shapes.
// encoding/xml matches local names regardless of namespace, so both
// namespaced and plain sitemaps decode the same way.
type sitemapIndex struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc string `xml:"loc"`
}

// FetchSitemapIndex downloads the sitemap index and returns the nested
// sitemap URLs. When the document carries no <sitemap> entries it falls
// back to collecting every <loc> element.
func (s *Scraper) FetchSitemapIndex(ctx context.Context) ([]string, error) {
	body, err := s.get(ctx, s.cfg.SitemapIndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap index %s: %w", s.cfg.SitemapIndexURL, err)
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("parse sitemap index %s: %w", s.cfg.SitemapIndexURL, err)
	}

	urls := make([]string, 0, len(idx.Sitemaps))
	for _, sm := range idx.Sitemaps {
		if loc := strings.TrimSpace(sm.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	if len(urls) == 0 {
		urls = allLocs(body)
	}

	s.logger.Info("fetched sitemap index", zap.Int("sitemaps", len(urls)))
	return urls, nil
}

// FetchArticleURLs downloads one sitemap and returns the article URLs
// matching the configured filter. A sitemap that is itself an index is
// recursed into.
func (s *Scraper) FetchArticleURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	body, err := s.get(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}

	var us urlSet
	if err := xml.Unmarshal(body, &us); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	var urls []string
	for _, u := range us.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" && strings.Contains(loc, s.cfg.ArticleFilter) {
			urls = append(urls, loc)
		}
	}
	if len(urls) == 0 {
		for _, loc := range allLocs(body) {
			if strings.Contains(loc, s.cfg.ArticleFilter) {
				urls = append(urls, loc)
			}
		}
	}

	if len(urls) == 0 {
		// possibly a nested index
		var idx sitemapIndex
		if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
			for _, sm := range idx.Sitemaps {
				loc := strings.TrimSpace(sm.Loc)
				if loc == "" {
					continue
				}
				nested, err := s.FetchArticleURLs(ctx, loc)
				if err != nil {
					s.logger.Warn("skipping nested sitemap", zap.String("url", loc), zap.Error(err))
					continue
				}
				urls = append(urls, nested...)
			}
		}
	}

	return urls, nil
}

// CollectArticleURLs walks every sitemap in the index and returns the
// deduplicated article URLs in discovery order.
func (s *Scraper) CollectArticleURLs(ctx context.Context) ([]string, error) {
	sitemaps, err := s.FetchSitemapIndex(ctx)
	if err != nil {
		return nil, err
	}

	var all []string
	for _, sm := range sitemaps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		urls, err := s.FetchArticleURLs(ctx, sm)
		if err != nil {
			s.logger.Warn("skipping sitemap", zap.String("url", sm), zap.Error(err))
			continue
		}
		all = append(all, urls...)
	}

	seen := make(map[string]struct{}, len(all))
	deduped := make([]string, 0, len(all))
	for _, u := range all {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		deduped = append(deduped, u)
	}

	s.logger.Info("collected article urls", zap.Int("count", len(deduped)))
	return deduped, nil
}

// SaveArticleURLs collects article URLs, drops listing pages (tag, page,
// category, author) and anything outside the article filter, truncates
// to limit if positive, and writes one URL per line to the configured
// URLs file.
func (s *Scraper) SaveArticleURLs(ctx context.Context, limit int) ([]string, error) {
	urls, err := s.CollectArticleURLs(ctx)
	if err != nil {
		return nil, err
	}

	var skippedTag, skippedPage, skippedOther, skippedNotBatch int
	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		switch {
		case strings.Contains(u, "/tag/"):
			skippedTag++
		case strings.Contains(u, "/page/"):
			skippedPage++
		case strings.Contains(u, "/category/") || strings.Contains(u, "/author/"):
			skippedOther++
		case !strings.Contains(u, s.cfg.ArticleFilter):
			skippedNotBatch++
		default:
			filtered = append(filtered, u)
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	if dir := filepath.Dir(s.cfg.URLsFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.cfg.URLsFile, []byte(strings.Join(filtered, "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write urls file %s: %w", s.cfg.URLsFile, err)
	}

	s.logger.Info("saved article urls",
		zap.String("file", s.cfg.URLsFile),
		zap.Int("saved", len(filtered)),
		zap.Int("skipped_tag", skippedTag),
		zap.Int("skipped_page", skippedPage),
		zap.Int("skipped_other", skippedOther),
		zap.Int("skipped_not_batch", skippedNotBatch))
	return filtered, nil
}

// ReadURLsFile returns the non-empty trimmed lines of a URLs file.
func ReadURLsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read urls file %s: %w", path, err)
	}
	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	return urls, nil
}

// allLocs collects the text of every <loc> element in the document,
// wherever it appears.
func allLocs(data []byte) []string {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		locs  []string
		inLoc bool
		buf   strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				buf.Reset()
			}
		case xml.CharData:
			if inLoc {
				buf.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "loc" {
				inLoc = false
				if loc := strings.TrimSpace(buf.String()); loc != "" {
					locs = append(locs, loc)
				}
			}
		}
	}
	return locs
}

package scrape

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"batchrag/pkg/document"
	"batchrag/pkg/httputil"
)

// ImageURLs extracts the image URLs referenced by a page, resolved
// against the page URL. Empty and data: sources are skipped.
func (s *Scraper) ImageURLs(html []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	var urls []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		urls = append(urls, resolveImageURL(src, pageURL))
	})
	return urls, nil
}

// resolveImageURL makes an img src absolute. Protocol-relative sources
// get https; relative paths resolve against the page URL.
func resolveImageURL(src, pageURL string) string {
	switch {
	case strings.HasPrefix(src, "http"):
		return src
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	default:
		base, err := url.Parse(pageURL)
		if err != nil {
			return src
		}
		ref, err := url.Parse(src)
		if err != nil {
			return src
		}
		return base.ResolveReference(ref).String()
	}
}

// SaveImage downloads an image into dir and returns the file path. A
// response whose Content-Type is not image/* is skipped with a warning
// and an empty path.
func (s *Scraper) SaveImage(ctx context.Context, imageURL, dir string) (string, error) {
	cfg := httputil.DefaultRequestConfig(http.MethodGet, imageURL)
	cfg.Timeout = s.cfg.Timeout
	cfg.Logger = s.stdlog
	resp, err := httputil.Request(ctx, cfg, nil)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", imageURL, err)
	}

	contentType := resp.Headers.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		s.logger.Warn("skipping non-image content",
			zap.String("url", imageURL), zap.String("content_type", contentType))
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create images directory %s: %w", dir, err)
	}

	dst := filepath.Join(dir, imageFileName(imageURL, contentType))
	if err := os.WriteFile(dst, resp.Body, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", dst, err)
	}
	return dst, nil
}

// imageFileName derives a file name from the URL path, falling back to
// a hash-based name, and appends an extension matching the content type
// when the name has none.
func imageFileName(imageURL, contentType string) string {
	var name string
	if u, err := url.Parse(imageURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		sum := md5.Sum([]byte(imageURL))
		name = fmt.Sprintf("image_%s.jpg", hex.EncodeToString(sum[:])[:12])
	}
	if filepath.Ext(name) == "" {
		switch {
		case strings.Contains(contentType, "png"):
			name += ".png"
		case strings.Contains(contentType, "gif"):
			name += ".gif"
		default:
			name += ".jpg"
		}
	}
	return name
}

// ScrapeFromFile downloads the images of every page listed in urlsFile
// into dir, visiting at most limit pages when limit is positive.
// Failures on individual pages or images are logged and skipped.
func (s *Scraper) ScrapeFromFile(ctx context.Context, urlsFile, dir string, limit int) ([]string, error) {
	urls, err := ReadURLsFile(urlsFile)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}

	var saved []string
	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		pageURL := document.NormalizeURL(raw, s.cfg.BaseURL)
		body, err := s.get(ctx, pageURL)
		if err != nil {
			s.logger.Warn("skipping page", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		imgs, err := s.ImageURLs(body, pageURL)
		if err != nil {
			s.logger.Warn("skipping page", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		for _, img := range imgs {
			p, err := s.SaveImage(ctx, img, dir)
			if err != nil {
				s.logger.Warn("failed to save image", zap.String("url", img), zap.Error(err))
				continue
			}
			if p != "" {
				saved = append(saved, p)
			}
		}
	}

	s.logger.Info("scraped images", zap.Int("pages", len(urls)), zap.Int("saved", len(saved)))
	return saved, nil
}

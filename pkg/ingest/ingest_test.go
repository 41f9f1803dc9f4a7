package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchrag/internal/testutil"
	"batchrag/pkg/document"
	"batchrag/pkg/vectorstore"
	_ "batchrag/pkg/vectorstore/local"
)

type fakeFetcher struct {
	calls [][]string
	err   error
}

func (f *fakeFetcher) FetchArticles(_ context.Context, urls []string) ([]document.Document, error) {
	f.calls = append(f.calls, append([]string(nil), urls...))
	if f.err != nil {
		return nil, f.err
	}
	docs := make([]document.Document, 0, len(urls))
	for _, u := range urls {
		title := path.Base(strings.TrimSuffix(u, "/"))
		docs = append(docs, document.Document{
			ID:      document.TextID(u, title),
			Content: "Full text of " + title + " covering training, data and evaluation.",
			Metadata: map[string]string{
				document.MetaSource: u,
				document.MetaTitle:  title,
			},
		})
	}
	return docs, nil
}

type fakeLLM struct {
	embed       func(ctx context.Context, text string) ([]float32, error)
	failSummary string
	failCaption bool
	summaries   int
	captions    int
}

func (f *fakeLLM) Summarize(_ context.Context, text string) (string, error) {
	f.summaries++
	if f.failSummary != "" && strings.Contains(text, f.failSummary) {
		return "", errors.New("summary failed")
	}
	return "Summary: " + text[:min(len(text), 20)], nil
}

func (f *fakeLLM) CaptionImage(_ context.Context, _ []byte, _ string) (string, error) {
	f.captions++
	if f.failCaption {
		return "", errors.New("caption failed")
	}
	return "A chart comparing model accuracy across benchmarks.", nil
}

func (f *fakeLLM) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{embed: testutil.FakeEmbedding(64)}
}

func newTestStore(t *testing.T) vectorstore.Store {
	t.Helper()
	store, err := vectorstore.Open(context.Background(), vectorstore.Options{
		Backend:  "local",
		Config:   map[string]any{"path": filepath.Join(t.TempDir(), "index.db")},
		Embedder: testutil.FakeEmbedding(64),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeURLsFile(t *testing.T, urls ...string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(file, []byte(strings.Join(urls, "\n")+"\n"), 0o644))
	return file
}

func newProcessor(t *testing.T, fetcher *fakeFetcher, llm *fakeLLM, store vectorstore.Store, cfg Config) *Processor {
	t.Helper()
	return New(fetcher, llm, store, cfg, nil)
}

func TestProcessArticles(t *testing.T) {
	urlsFile := writeURLsFile(t,
		"https://www.deeplearning.ai/the-batch/article-one/",
		"https://www.deeplearning.ai/the-batch/article-two/",
		"https://www.deeplearning.ai/the-batch/article-three/",
	)
	fetcher := &fakeFetcher{}
	llm := newFakeLLM()
	store := newTestStore(t)
	p := newProcessor(t, fetcher, llm, store, Config{URLsFile: urlsFile})

	added, err := p.ProcessArticles(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Search(context.Background(), "full text of article-one", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.Equal(t, document.KindText, res.Meta(document.MetaType))
		assert.True(t, strings.HasPrefix(res.Meta(document.MetaSummary), "Summary: "))
	}
}

func TestProcessArticlesSkipsExisting(t *testing.T) {
	urlsFile := writeURLsFile(t,
		"https://www.deeplearning.ai/the-batch/article-one/",
		"https://www.deeplearning.ai/the-batch/article-two/",
	)
	fetcher := &fakeFetcher{}
	llm := newFakeLLM()
	store := newTestStore(t)
	p := newProcessor(t, fetcher, llm, store, Config{URLsFile: urlsFile})

	added, err := p.ProcessArticles(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = p.ProcessArticles(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, added)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestProcessArticlesSummarizeFailureSkipsDocument(t *testing.T) {
	urlsFile := writeURLsFile(t,
		"https://www.deeplearning.ai/the-batch/article-one/",
		"https://www.deeplearning.ai/the-batch/article-two/",
	)
	fetcher := &fakeFetcher{}
	llm := newFakeLLM()
	llm.failSummary = "article-two"
	store := newTestStore(t)
	p := newProcessor(t, fetcher, llm, store, Config{URLsFile: urlsFile})

	added, err := p.ProcessArticles(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	badID := document.TextID("https://www.deeplearning.ai/the-batch/article-two/", "article-two")
	ok, err := store.Has(context.Background(), badID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessArticlesLimits(t *testing.T) {
	urlsFile := writeURLsFile(t,
		"https://www.deeplearning.ai/the-batch/a/",
		"https://www.deeplearning.ai/the-batch/b/",
		"https://www.deeplearning.ai/the-batch/c/",
		"https://www.deeplearning.ai/the-batch/d/",
	)

	t.Run("article limit", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		p := newProcessor(t, fetcher, newFakeLLM(), newTestStore(t), Config{URLsFile: urlsFile})

		added, err := p.ProcessArticles(context.Background(), Options{ArticleLimit: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, added)
		require.Len(t, fetcher.calls, 1)
		assert.Len(t, fetcher.calls[0], 2)
	})

	t.Run("batch limit", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		p := newProcessor(t, fetcher, newFakeLLM(), newTestStore(t), Config{URLsFile: urlsFile, BatchSize: 1})

		added, err := p.ProcessArticles(context.Background(), Options{BatchLimit: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, added)
		assert.Len(t, fetcher.calls, 3)
	})
}

func TestProcessArticlesEmptyURLsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(file, []byte("\n"), 0o644))

	fetcher := &fakeFetcher{}
	p := newProcessor(t, fetcher, newFakeLLM(), newTestStore(t), Config{URLsFile: file})

	added, err := p.ProcessArticles(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Empty(t, fetcher.calls)
}

func writeImages(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for name, data := range map[string][]byte{
		"cover.png":         {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
		"photo.JPG":         {0xFF, 0xD8, 0xFF, 0xE0},
		"nested/chart.jpeg": {0xFF, 0xD8, 0xFF, 0xE1},
		"notes.txt":         []byte("not an image"),
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
}

func TestIndexImages(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)

	llm := newFakeLLM()
	p := newProcessor(t, &fakeFetcher{}, llm, newTestStore(t), Config{ImagesDir: dir})

	docs, err := p.IndexImages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, 3, llm.captions)

	for _, doc := range docs {
		assert.Equal(t, document.KindImage, doc.Meta(document.MetaType))
		assert.NotEmpty(t, doc.Content)

		_, err := uuid.Parse(doc.Meta(document.MetaID))
		assert.NoError(t, err)

		encoded := doc.Meta(document.MetaEncodedImage)
		assert.Equal(t, strings.ToUpper(encoded), encoded)
		assert.Equal(t, document.ImageID(encoded), doc.ID)

		data, err := hex.DecodeString(encoded)
		require.NoError(t, err)
		onDisk, err := os.ReadFile(doc.Meta(document.MetaSourceFile))
		require.NoError(t, err)
		assert.Equal(t, onDisk, data)
	}
}

func TestIndexImagesLimit(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)

	p := newProcessor(t, &fakeFetcher{}, newFakeLLM(), newTestStore(t), Config{ImagesDir: dir})

	docs, err := p.IndexImages(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestIndexImagesCaptionFailure(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)

	llm := newFakeLLM()
	llm.failCaption = true
	p := newProcessor(t, &fakeFetcher{}, llm, newTestStore(t), Config{ImagesDir: dir})

	docs, err := p.IndexImages(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIndexImagesEmptyDir(t *testing.T) {
	p := newProcessor(t, &fakeFetcher{}, newFakeLLM(), newTestStore(t), Config{ImagesDir: t.TempDir()})

	docs, err := p.IndexImages(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestProcessImages(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)

	store := newTestStore(t)
	p := newProcessor(t, &fakeFetcher{}, newFakeLLM(), store, Config{ImagesDir: dir})

	docs, err := p.IndexImages(context.Background(), 0)
	require.NoError(t, err)

	added, err := p.ProcessImages(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = p.ProcessImages(context.Background(), docs)
	require.NoError(t, err)
	assert.Zero(t, added)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchrag/pkg/document"
)

type stubRetriever struct {
	docs  []document.Scored
	err   error
	lastK int
}

func (s *stubRetriever) Search(_ context.Context, _ string, k int) ([]document.Scored, error) {
	s.lastK = k
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.docs) {
		return s.docs[:k], nil
	}
	return s.docs, nil
}

type stubGenerator struct {
	answer string
	err    error
	prompt string
	calls  int
}

func (s *stubGenerator) Complete(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

// wordCounter makes token budgets predictable in tests.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func textDoc(id, content, title, source, summary string) document.Scored {
	return document.Scored{
		Document: document.Document{
			ID:      id,
			Content: content,
			Metadata: map[string]string{
				document.MetaType:    document.KindText,
				document.MetaTitle:   title,
				document.MetaSource:  source,
				document.MetaSummary: summary,
			},
		},
		Similarity: 0.9,
	}
}

func imageDoc(id, caption, encoded string) document.Scored {
	return document.Scored{
		Document: document.Document{
			ID:      id,
			Content: caption,
			Metadata: map[string]string{
				document.MetaType:         document.KindImage,
				document.MetaEncodedImage: encoded,
			},
		},
		Similarity: 0.8,
	}
}

func TestBuildContext(t *testing.T) {
	e := New(&stubRetriever{}, &stubGenerator{}, Config{TokenLimit: 100, Counter: wordCounter{}}, nil)

	docs := []document.Scored{
		textDoc("a", "transfer learning reuses pretrained models", "", "", ""),
		textDoc("b", "attention weighs sequence elements", "", "", ""),
	}

	got := e.BuildContext(docs)
	want := "Article 1: transfer learning reuses pretrained models\n\n" +
		"Article 2: attention weighs sequence elements"
	assert.Equal(t, want, got)
}

func TestBuildContextStopsAtLimit(t *testing.T) {
	// Each part counts "Article N:" as two tokens plus the content
	// words. The second part overflows the limit and the walk stops
	// there, even though the third alone would fit.
	docs := []document.Scored{
		textDoc("a", "one two three", "", "", ""),
		textDoc("b", "a much longer document with many more words than the budget allows", "", "", ""),
		textDoc("c", "short", "", "", ""),
	}
	e := New(&stubRetriever{}, &stubGenerator{}, Config{TokenLimit: 8, Counter: wordCounter{}}, nil)

	got := e.BuildContext(docs)
	assert.Equal(t, "Article 1: one two three", got)
}

func TestBuildContextEmpty(t *testing.T) {
	e := New(&stubRetriever{}, &stubGenerator{}, Config{Counter: wordCounter{}}, nil)
	assert.Empty(t, e.BuildContext(nil))
}

func TestRetrieveDefaultK(t *testing.T) {
	store := &stubRetriever{docs: make([]document.Scored, 8)}
	e := New(store, &stubGenerator{}, Config{TopK: 3, Counter: wordCounter{}}, nil)

	docs, err := e.Retrieve(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Equal(t, 3, store.lastK)

	_, err = e.Retrieve(context.Background(), "query", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastK)
}

func TestAsk(t *testing.T) {
	store := &stubRetriever{docs: []document.Scored{
		textDoc("t1", "DeepSeek-R1 displayed its reasoning steps.",
			"DeepSeek shakes up AI", "https://example.com/deepseek", "DeepSeek challenged OpenAI."),
		imageDoc("i1", "A bar chart of benchmark scores.", "89504E47"),
	}}
	gen := &stubGenerator{answer: "DeepSeek-R1 challenged OpenAI's o1 on several benchmarks."}
	e := New(store, gen, Config{Counter: wordCounter{}}, nil)

	answer, err := e.Ask(context.Background(), "What impact did DeepSeek have?", 2)
	require.NoError(t, err)

	assert.Equal(t, gen.answer, answer.Text)
	assert.Len(t, answer.Documents, 2)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, Source{
		Type:    document.KindText,
		Title:   "DeepSeek shakes up AI",
		Source:  "https://example.com/deepseek",
		Summary: "DeepSeek challenged OpenAI.",
	}, answer.Sources[0])
	assert.Equal(t, Source{
		Type:         document.KindImage,
		Caption:      "A bar chart of benchmark scores.",
		EncodedImage: "89504E47",
	}, answer.Sources[1])

	assert.Contains(t, gen.prompt, "You are an assistant tasked with summarizing text and images.")
	assert.Contains(t, gen.prompt, "Article 1: DeepSeek-R1 displayed its reasoning steps.")
	assert.Contains(t, gen.prompt, "Article 2: A bar chart of benchmark scores.")
	assert.Contains(t, gen.prompt, "Question: What impact did DeepSeek have?")
	assert.Contains(t, gen.prompt, `"Sorry, I don't have much information about it."`)
}

func TestAskEmptyRetrieval(t *testing.T) {
	gen := &stubGenerator{answer: "should not be called"}
	e := New(&stubRetriever{}, gen, Config{Counter: wordCounter{}}, nil)

	answer, err := e.Ask(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, gen.calls)
}

func TestAskErrors(t *testing.T) {
	t.Run("retrieval", func(t *testing.T) {
		e := New(&stubRetriever{err: errors.New("index unavailable")}, &stubGenerator{}, Config{Counter: wordCounter{}}, nil)
		_, err := e.Ask(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "index unavailable")
	})

	t.Run("generation", func(t *testing.T) {
		store := &stubRetriever{docs: []document.Scored{textDoc("t1", "content", "", "", "")}}
		e := New(store, &stubGenerator{err: errors.New("model overloaded")}, Config{Counter: wordCounter{}}, nil)
		_, err := e.Ask(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "model overloaded")
	})
}

func TestEstimateCounter(t *testing.T) {
	c := estimateCounter{}
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Count(tt.text), "text %q", tt.text)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a Client at a fake OpenAI-compatible server with
// retry intervals short enough for tests.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:         "test-key",
		BaseURL:        srv.URL + "/v1",
		ChatModel:      "gpt-3.5-turbo",
		CaptionModel:   "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		MaxTokens:      1024,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func writeEmbeddings(w http.ResponseWriter, n int) {
	data := make([]map[string]any, n)
	for i := range data {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": []float32{0.1, 0.2, float32(i)},
		}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  "text-embedding-3-small",
		"usage":  map[string]int{"prompt_tokens": n, "total_tokens": n},
	})
}

func writeChat(w http.ResponseWriter, content string) {
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "invalid_request_error"},
	})
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestEmbedTexts(t *testing.T) {
	var gotModel string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		writeEmbeddings(w, len(req.Input))
	})

	vectors, err := c.EmbedTexts(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0}, vectors[0])
	assert.Equal(t, []float32{0.1, 0.2, 1}, vectors[1])
	assert.Equal(t, "text-embedding-3-small", gotModel)
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.EmbedTexts(context.Background(), nil)
	require.Error(t, err)
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, 1)
	})

	vec, err := c.Embed(context.Background(), "query text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0}, vec)
}

func TestComplete(t *testing.T) {
	var gotReq map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeChat(w, "the answer")
	})

	out, err := c.Complete(context.Background(), "what is attention?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)

	assert.Equal(t, "gpt-3.5-turbo", gotReq["model"])
	assert.EqualValues(t, 1024, gotReq["max_tokens"])
	msgs := gotReq["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestCompleteJSON(t *testing.T) {
	var gotReq map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeChat(w, `{"explanation":"matches the reference","correct":true}`)
	})

	out, err := c.CompleteJSON(context.Background(), "you are a grader", "grade this")
	require.NoError(t, err)
	assert.JSONEq(t, `{"explanation":"matches the reference","correct":true}`, out)

	format := gotReq["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	msgs := gotReq["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestSummarize(t *testing.T) {
	var prompt string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Messages[0].Content
		writeChat(w, "a short summary")
	})

	out, err := c.Summarize(context.Background(), "long article text")
	require.NoError(t, err)
	assert.Equal(t, "a short summary", out)
	assert.True(t, strings.HasPrefix(prompt, "Summarize the following text:"), "prompt: %s", prompt)
	assert.True(t, strings.HasSuffix(prompt, "Summary:"), "prompt: %s", prompt)
	assert.Contains(t, prompt, "long article text")
}

func TestCaptionImage(t *testing.T) {
	var gotReq map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeChat(w, "a robot reading a newspaper")
	})

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	caption, err := c.CaptionImage(context.Background(), png, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "a robot reading a newspaper", caption)

	assert.Equal(t, "gpt-4o-mini", gotReq["model"])
	msgs := gotReq["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(imageURL["url"].(string), "data:image/png;base64,"))
}

func TestCaptionImageEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.CaptionImage(context.Background(), nil, "")
	require.Error(t, err)
}

func TestRetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			writeAPIError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		writeEmbeddings(w, 1)
	})

	_, err := c.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestNoRetryOnBadRequest(t *testing.T) {
	var attempts atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeAPIError(w, http.StatusBadRequest, "model not found")
	})

	_, err := c.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load(), "client errors should not retry")
}

func TestNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`)
	})

	_, err := c.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completion choices")
}

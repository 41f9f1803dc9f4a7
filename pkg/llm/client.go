// Package llm wraps the OpenAI API for embeddings, chat completion and
// image captioning, with retry on transient failures.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"batchrag/pkg/metrics"
)

// Config holds API credentials, model names and retry settings.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	CaptionModel   string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is a thin wrapper over the OpenAI client. All operations
// retry on rate limits, server errors and network failures.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *zap.Logger
}

// New returns a Client. The API key is required; BaseURL may point at
// any OpenAI-compatible endpoint.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing OpenAI API key, set OPENAI_API_KEY or openai.apiKey")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT3Dot5Turbo
	}
	if cfg.CaptionModel == "" {
		cfg.CaptionModel = cfg.ChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	// the wire format omits a zero temperature, which the API reads as
	// its default; smallest nonzero keeps sampling effectively greedy
	if cfg.Temperature == 0 {
		cfg.Temperature = math.SmallestNonzeroFloat32
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// EmbedTexts embeds texts in one request, in input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("input is empty")
	}

	var resp openai.EmbeddingResponse
	err := c.retry(ctx, "embeddings", func() error {
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Embed embeds a single text. Its signature matches the vector store's
// query-time embedding function.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Complete sends a single-turn user prompt and returns the assistant
// text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
}

// CompleteJSON sends a system plus user prompt in JSON mode. The model
// is constrained to reply with a single JSON object.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
}

// Summarize produces a short summary of text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("Summarize the following text:\n\n%s\n\nSummary:", text)
	return c.Complete(ctx, prompt)
}

// CaptionImage describes an image using the vision model. The image is
// sent inline as a data URL; an empty mimeType is sniffed from the
// bytes.
func (c *Client) CaptionImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	var resp openai.ChatCompletionResponse
	err := c.retry(ctx, "caption", func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.CaptionModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: "Describe this image in one concise sentence."},
						{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						}},
					},
				},
			},
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("caption image: %w", err)
	}
	return firstChoice(resp)
}

func (c *Client) chat(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var resp openai.ChatCompletionResponse
	err := c.retry(ctx, "chat", func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) retry(ctx context.Context, kind string, op func() error) error {
	metrics.LLMRequests.WithLabelValues(kind).Inc()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = time.Duration(c.cfg.MaxRetries) * c.cfg.MaxBackoff

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("model request failed, retrying", zap.String("kind", kind), zap.Error(err))
		return err
	}, backoff.WithContext(b, ctx))
}

// retryable reports whether an API error is transient. Rate limits and
// server errors retry; anything else with a status code is permanent.
// Errors without a status code are treated as network failures.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

package rag

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const encodingName = "cl100k_base"

// TokenCounter counts model tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a cl100k_base counter, falling back to a
// rune estimate when the encoding data is unavailable.
func NewTokenCounter(logger *zap.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken encoding unavailable, estimating tokens from rune count", zap.Error(err))
		}
		return estimateCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// estimateCounter approximates OpenAI tokenization at four runes per
// token, rounding up.
type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

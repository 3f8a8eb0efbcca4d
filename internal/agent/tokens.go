package agent

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter estimates prompt size.
type TokenCounter interface {
	Count(text string) int
}

// CharCounter approximates one token per four characters.
type CharCounter struct{}

// Count returns ceil(len(text)/4).
func (CharCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// TiktokenCounter counts with the cl100k_base encoding. The encoding is
// loaded on first use; if it cannot be loaded the counter falls back to
// CharCounter for its lifetime.
type TiktokenCounter struct {
	once     sync.Once
	tke      *tiktoken.Tiktoken
	fallback CharCounter
}

// NewTiktokenCounter creates a lazily initialized counter.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{}
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		tke, err := tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			slog.Warn("tiktoken_unavailable_using_char_estimate",
				slog.String("encoding", defaultEncoding),
				slog.String("error", err.Error()))
			return
		}
		c.tke = tke
	})
	if c.tke == nil {
		return c.fallback.Count(text)
	}
	return len(c.tke.Encode(text, nil, nil))
}

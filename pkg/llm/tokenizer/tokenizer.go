// Package tokenizer counts prompt tokens on the client side for providers
// that do not report usage in their stream.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/entrhq/pilot/pkg/types"
)

const (
	// DefaultEncoding is the BPE used by the gpt-4o family and most
	// OpenAI-compatible backends close enough for budgeting.
	DefaultEncoding = "cl100k_base"

	// perMessageOverhead approximates the role/separator tokens the chat
	// format adds around every message.
	perMessageOverhead = 4
	replyPriming       = 3
	charsPerToken      = 4
)

// Tokenizer counts tokens with tiktoken. A nil *Tokenizer, or one whose
// encoding failed to load, falls back to a characters/4 estimate.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the default encoding.
func New() (*Tokenizer, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding loads the named encoding. On failure it still returns a
// usable estimating Tokenizer alongside the error.
func NewWithEncoding(name string) (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return &Tokenizer{}, fmt.Errorf("failed to load encoding %s: %w", name, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Exact reports whether counts come from a real encoding.
func (t *Tokenizer) Exact() bool {
	return t != nil && t.enc != nil
}

// CountTokens returns the token count of text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if !t.Exact() {
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessagesTokens returns the token count of a chat request.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	if len(messages) == 0 {
		return 0
	}
	total := replyPriming
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		total += perMessageOverhead + t.CountTokens(string(msg.Role)) + t.CountTokens(msg.Content)
	}
	return total
}

// Package parser provides utilities for parsing structured content from LLM streams.
package parser

import (
	"strings"

	"github.com/entrhq/pilot/pkg/llm"
)

const (
	thinkingOpenTag  = "<thinking>"
	thinkingCloseTag = "</thinking>"
)

// ThinkingParser separates <thinking> blocks from visible message content in
// a stream. Tags may be split across chunks; a trailing fragment that could
// still become a tag is held back until the next chunk or Flush.
type ThinkingParser struct {
	pending    string
	inThinking bool
}

// NewThinkingParser creates a new thinking parser.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

// Parse consumes a content delta and returns the thinking and message text
// it completes. Either result may be nil.
func (p *ThinkingParser) Parse(content string) (thinkingChunk, messageChunk *llm.StreamChunk) {
	if content == "" {
		return nil, nil
	}
	p.pending += content

	var thinking, message strings.Builder
	for {
		tag := p.awaitedTag()
		if i := strings.Index(p.pending, tag); i >= 0 {
			p.write(&thinking, &message, p.pending[:i])
			p.pending = p.pending[i+len(tag):]
			p.inThinking = !p.inThinking
			continue
		}

		keep := partialTagSuffix(p.pending, tag)
		p.write(&thinking, &message, p.pending[:len(p.pending)-keep])
		p.pending = p.pending[len(p.pending)-keep:]
		break
	}

	return newChunk(thinking.String(), llm.ContentTypeThinking), newChunk(message.String(), llm.ContentTypeMessage)
}

// Flush returns whatever is still buffered. Call it once the stream ends.
func (p *ThinkingParser) Flush() (thinkingChunk, messageChunk *llm.StreamChunk) {
	rest := p.pending
	p.pending = ""
	if p.inThinking {
		return newChunk(rest, llm.ContentTypeThinking), nil
	}
	return nil, newChunk(rest, llm.ContentTypeMessage)
}

// IsInThinking returns true while inside a <thinking> block.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Reset clears parser state for a new stream.
func (p *ThinkingParser) Reset() {
	p.pending = ""
	p.inThinking = false
}

func (p *ThinkingParser) awaitedTag() string {
	if p.inThinking {
		return thinkingCloseTag
	}
	return thinkingOpenTag
}

func (p *ThinkingParser) write(thinking, message *strings.Builder, text string) {
	if p.inThinking {
		thinking.WriteString(text)
		return
	}
	message.WriteString(text)
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	n := len(tag) - 1
	if len(s) < n {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}

func newChunk(text string, typ llm.ContentType) *llm.StreamChunk {
	if text == "" {
		return nil
	}
	return &llm.StreamChunk{Content: text, Type: typ}
}

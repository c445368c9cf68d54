// Package llm provides abstractions for LLM provider integration.
//
// The browser agent talks to models only through Provider, so any
// OpenAI-compatible backend (OpenAI, Azure, DeepSeek, Ollama, ...) can drive
// a task run.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, err := provider.StreamCompletion(ctx, []*types.Message{
//	    types.NewUserMessage("Hello!"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        log.Fatal(chunk.Error)
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"

	"github.com/entrhq/pilot/pkg/types"
)

// Provider defines the interface for LLM integrations.
type Provider interface {
	// StreamCompletion sends messages to the LLM and streams back response chunks.
	//
	// The channel is closed when streaming completes or an error occurs.
	// Stream-time errors are delivered as chunks with Error set; the returned
	// error is only non-nil when the request could not be started.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	// Complete sends messages and returns the accumulated assistant message
	// together with the token usage reported by the backend, if any.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, *types.TokenUsage, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}

// Package openai provides an OpenAI-compatible LLM provider implementation.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	    openai.WithTemperature(0.2),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	msg, usage, err := provider.Complete(ctx, []*types.Message{
//	    types.NewUserMessage("Hello!"),
//	})
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/pilot/pkg/llm"
	"github.com/entrhq/pilot/pkg/llm/parser"
	"github.com/entrhq/pilot/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
)

// ErrMissingAPIKey is returned when no key was given and none is in the environment.
var ErrMissingAPIKey = errors.New("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")

// Provider implements llm.Provider for OpenAI-compatible chat completion APIs.
type Provider struct {
	client       openai.Client
	modelInfo    *types.ModelInfo
	temperature  *float64
	apiKey       string
	baseURL      string
	model        string
	providerName string
	maxRetries   int
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs
// (Azure OpenAI, DeepSeek, Ollama, OpenRouter, ...).
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = &t
	}
}

// WithProviderName records which configured provider this client talks to.
func WithProviderName(name string) ProviderOption {
	return func(p *Provider) {
		p.providerName = name
	}
}

// WithMaxRetries sets how many times the SDK retries failed requests.
func WithMaxRetries(n int) ProviderOption {
	return func(p *Provider) {
		p.maxRetries = n
	}
}

// NewProvider creates a new provider with the given API key.
//
// If apiKey is empty, OPENAI_API_KEY is used. If no base URL option is given,
// OPENAI_BASE_URL is checked before falling back to DefaultBaseURL.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	p := &Provider{
		apiKey:       apiKey,
		model:        DefaultModel,
		baseURL:      DefaultBaseURL,
		providerName: "openai",
		maxRetries:   2,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}

	p.client = openai.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithMaxRetries(p.maxRetries),
	)

	p.modelInfo = &types.ModelInfo{
		Provider:          p.providerName,
		Name:              p.model,
		SupportsStreaming: true,
		MaxTokens:         8192,
		Metadata:          make(map[string]interface{}),
	}
	if p.baseURL != DefaultBaseURL {
		p.modelInfo.Metadata["base_url"] = p.baseURL
	}
	if p.temperature != nil {
		p.modelInfo.Metadata["temperature"] = *p.temperature
	}

	return p, nil
}

// StreamCompletion streams a chat completion. Reasoning wrapped in
// <thinking> tags is emitted as thinking chunks; the final usage report, when
// the backend sends one, arrives on the last chunk before the channel closes.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(messages))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start completion stream: %w", err)
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go func() {
		defer close(chunks)
		defer stream.Close()

		thinkingParser := parser.NewThinkingParser()
		var usage *types.TokenUsage
		roleSent := false

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = &types.TokenUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta
			role := ""
			if !roleSent && delta.Role != "" {
				role = delta.Role
				roleSent = true
			}

			thinking, message := thinkingParser.Parse(delta.Content)
			for _, c := range []*llm.StreamChunk{thinking, message} {
				if c == nil {
					continue
				}
				c.Role = role
				role = ""
				if !send(ctx, chunks, c) {
					return
				}
			}
			if role != "" && !send(ctx, chunks, &llm.StreamChunk{Role: role}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, chunks, &llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)})
			return
		}

		thinking, message := thinkingParser.Flush()
		for _, c := range []*llm.StreamChunk{thinking, message} {
			if c != nil && !send(ctx, chunks, c) {
				return
			}
		}
		send(ctx, chunks, &llm.StreamChunk{Finished: true, Usage: usage})
	}()

	return chunks, nil
}

// Complete accumulates a streamed completion into a single assistant message.
// Thinking content is dropped.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, *types.TokenUsage, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		return nil, nil, err
	}

	var content string
	var usage *types.TokenUsage
	role := types.RoleAssistant

	for chunk := range stream {
		if chunk.IsError() {
			return nil, nil, chunk.Error
		}
		if chunk.Role != "" {
			role = types.MessageRole(chunk.Role)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if !chunk.IsThinking() {
			content += chunk.Content
		}
	}

	return &types.Message{Role: role, Content: content}, usage, nil
}

// GetModelInfo returns information about the model being used.
func (p *Provider) GetModelInfo() *types.ModelInfo {
	return p.modelInfo
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

func (p *Provider) buildParams(messages []*types.Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: convertToOpenAIMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if p.temperature != nil {
		params.Temperature = openai.Float(*p.temperature)
	}
	return params
}

func send(ctx context.Context, chunks chan<- *llm.StreamChunk, chunk *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// convertToOpenAIMessages converts our Message format to OpenAI's ChatCompletionMessageParamUnion format.
func convertToOpenAIMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, openai.AssistantMessage(msg.Content))
		default:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}

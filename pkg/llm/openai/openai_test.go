package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/types"
)

func sseChunk(role, content string) string {
	delta := map[string]string{"content": content}
	if role != "" {
		delta["role"] = role
	}
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []interface{}{
			map[string]interface{}{"index": 0, "delta": delta, "finish_reason": nil},
		},
	})
	return "data: " + string(body) + "\n\n"
}

const usageChunk = `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":11,"completion_tokens":4,"total_tokens":15}}` + "\n\n"

func newTestServer(t *testing.T, seen *map[string]interface{}, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprint(w, e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestNewProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := NewProvider("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	p, err := NewProvider("k", WithModel("gpt-4o-mini"), WithProviderName("deepseek"), WithTemperature(0.2))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", p.GetModel())
	assert.Equal(t, DefaultBaseURL, p.GetBaseURL())
	assert.Equal(t, "deepseek", p.GetModelInfo().Provider)
	assert.Equal(t, 0.2, p.GetModelInfo().Metadata["temperature"])
}

func TestNewProviderBaseURLFromEnv(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")

	p, err := NewProvider("k")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", p.GetBaseURL())
	assert.Equal(t, "http://localhost:11434/v1", p.GetModelInfo().Metadata["base_url"])
}

func TestComplete(t *testing.T) {
	var seen map[string]interface{}
	srv := newTestServer(t, &seen,
		sseChunk("assistant", ""),
		sseChunk("", "<thinking>the page is"),
		sseChunk("", " blank</thinking>Navigate "),
		sseChunk("", "now"),
		usageChunk,
	)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithMaxRetries(0), WithTemperature(0.2))
	require.NoError(t, err)

	msg, usage, err := p.Complete(context.Background(), []*types.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("go to example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "Navigate now", msg.Content)
	require.NotNil(t, usage)
	assert.Equal(t, 15, usage.TotalTokens)
	assert.Equal(t, 11, usage.PromptTokens)

	assert.Equal(t, "gpt-4o", seen["model"])
	assert.Equal(t, 0.2, seen["temperature"])
	assert.Equal(t, true, seen["stream"])
	msgs, ok := seen["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestStreamCompletionSeparatesThinking(t *testing.T) {
	srv := newTestServer(t, nil,
		sseChunk("assistant", "<thinking>a</thinking>"),
		sseChunk("", "b"),
	)
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithMaxRetries(0))
	require.NoError(t, err)

	stream, err := p.StreamCompletion(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)

	var thinking, message string
	finished := false
	for chunk := range stream {
		require.NoError(t, chunk.Error)
		if chunk.IsThinking() {
			thinking += chunk.Content
		} else {
			message += chunk.Content
		}
		if chunk.Finished {
			finished = true
		}
	}
	assert.Equal(t, "a", thinking)
	assert.Equal(t, "b", message)
	assert.True(t, finished)
}

func TestStreamCompletionRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithMaxRetries(0))
	require.NoError(t, err)

	_, _, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	assert.Error(t, err)
}

func TestStreamCompletionRequiresMessages(t *testing.T) {
	p, err := NewProvider("k")
	require.NoError(t, err)
	_, err = p.StreamCompletion(context.Background(), nil)
	assert.Error(t, err)
}

func TestConvertToOpenAIMessages(t *testing.T) {
	out := convertToOpenAIMessages([]*types.Message{
		types.NewSystemMessage("s"),
		types.NewUserMessage("u"),
		types.NewAssistantMessage("a"),
		{Role: "tool", Content: "t"},
	})
	require.Len(t, out, 4)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
	assert.NotNil(t, out[3].OfUser)
}

package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaamx/modelmux/provider"
	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(provider.AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestInitialize(t *testing.T) {
	p := New(provider.AnthropicConfig{}, zap.NewNop())
	err := p.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrAuth, types.GetErrorCode(err))

	p = New(provider.AnthropicConfig{APIKey: "k"}, zap.NewNop())
	assert.NoError(t, p.Initialize(context.Background()))
}

func TestConvertMessages(t *testing.T) {
	t.Run("system content is hoisted", func(t *testing.T) {
		system, msgs := convertMessages(&provider.ChatRequest{
			Messages: []types.Message{
				types.NewSystemMessage("you are terse"),
				types.NewUserMessage("hi"),
			},
		})
		assert.Equal(t, "you are terse", system)
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].Role)
	})

	t.Run("tool results become user tool_result blocks", func(t *testing.T) {
		_, msgs := convertMessages(&provider.ChatRequest{
			Messages: []types.Message{
				types.NewToolMessage("toolu_1", "get_weather", "sunny"),
			},
		})
		require.Len(t, msgs, 1)
		assert.Equal(t, "user", msgs[0].Role)
		require.Len(t, msgs[0].Content, 1)
		assert.Equal(t, "tool_result", msgs[0].Content[0].Type)
		assert.Equal(t, "toolu_1", msgs[0].Content[0].ToolUseID)
		assert.Equal(t, "sunny", msgs[0].Content[0].Content)
	})

	t.Run("images become typed source blocks", func(t *testing.T) {
		_, msgs := convertMessages(&provider.ChatRequest{
			Messages: []types.Message{
				types.NewUserMessage("what is this").WithImages([]types.ImageContent{
					{Type: "base64", Data: "aGk="},
				}),
			},
		})
		require.Len(t, msgs, 1)
		require.Len(t, msgs[0].Content, 2)
		assert.Equal(t, "image", msgs[0].Content[1].Type)
		require.NotNil(t, msgs[0].Content[1].Source)
		assert.Equal(t, "base64", msgs[0].Content[1].Source.Type)
	})
}

func TestChat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-20241022", req.Model)
		assert.Positive(t, req.MaxTokens) // 缺省时也必须带上 max_tokens

		json.NewEncoder(w).Encode(anthResponse{
			ID:         "msg_1",
			Content:    []anthContent{{Type: "text", Text: "hello"}},
			StopReason: "end_turn",
			Usage:      &anthUsage{InputTokens: 9, OutputTokens: 2},
		})
	})

	resp, err := p.Chat(context.Background(), &provider.ChatRequest{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, types.FinishStop, resp.FinishReason)
	assert.Equal(t, 11, resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic", resp.Metadata.Provider)
}

func TestChat_ToolUse(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(anthResponse{
			ID: "msg_2",
			Content: []anthContent{
				{Type: "text", Text: "checking"},
				{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"city":"sf"}`)},
			},
			StopReason: "tool_use",
		})
	})

	resp, err := p.Chat(context.Background(), &provider.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []types.Message{types.NewUserMessage("weather?")},
	})
	require.NoError(t, err)
	assert.Equal(t, types.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, "checking", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"sf"}`, string(resp.ToolCalls[0].Arguments))
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, types.FinishStop, mapStopReason("end_turn"))
	assert.Equal(t, types.FinishStop, mapStopReason("stop_sequence"))
	assert.Equal(t, types.FinishLength, mapStopReason("max_tokens"))
	assert.Equal(t, types.FinishToolCalls, mapStopReason("tool_use"))
	assert.Equal(t, types.FinishContentFilter, mapStopReason("refusal"))
	assert.Equal(t, types.FinishStop, mapStopReason(""))
}

func TestChat_ErrorMapping(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := p.Chat(context.Background(), &provider.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	e := types.AsError(err)
	assert.Equal(t, types.ErrRateLimit, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, 3*time.Second, e.RetryAfter)
	assert.Contains(t, e.Message, "slow down")
}

func TestStreamChat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req anthRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_3","usage":{"input_tokens":12,"output_tokens":1}}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hel"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			w.Write([]byte("event: " + ev.name + "\ndata: " + ev.data + "\n\n"))
		}
	})

	stream, err := p.StreamChat(context.Background(), &provider.ChatRequest{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	var deltas []string
	var final *provider.StreamChunk
	for chunk := range stream.Chunks() {
		require.Nil(t, chunk.Err)
		if chunk.FinishReason != "" {
			c := chunk
			final = &c
			continue
		}
		deltas = append(deltas, chunk.Delta)
	}

	assert.Equal(t, []string{"hel", "lo"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "msg_3", final.ID)
	assert.Equal(t, "hello", final.Content)
	assert.Equal(t, types.FinishStop, final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 12, final.Usage.PromptTokens)
	assert.Equal(t, 5, final.Usage.CompletionTokens)
}

func TestStreamChat_VendorError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"overloaded\"}}\n\n"))
	})

	stream, err := p.StreamChat(context.Background(), &provider.ChatRequest{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	var streamErr *types.Error
	for chunk := range stream.Chunks() {
		if chunk.Err != nil {
			streamErr = chunk.Err
		}
	}
	require.NotNil(t, streamErr)
	assert.Contains(t, streamErr.Message, "overloaded")
}

func TestEmbed_Unsupported(t *testing.T) {
	p := New(provider.AnthropicConfig{APIKey: "k"}, zap.NewNop())
	_, err := p.Embed(context.Background(), &provider.EmbeddingRequest{Model: "x", Input: []string{"a"}})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestCapabilities(t *testing.T) {
	p := New(provider.AnthropicConfig{APIKey: "k"}, zap.NewNop())
	caps := p.Capabilities()
	assert.True(t, caps.Chat)
	assert.True(t, caps.Streaming)
	assert.False(t, caps.Embeddings)
	assert.False(t, caps.Local)
}

package local

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
	return New(provider.LocalConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
}

func TestCapabilities(t *testing.T) {
	p := New(provider.LocalConfig{}, zap.NewNop())
	caps := p.Capabilities()
	assert.True(t, caps.Local)
	assert.True(t, caps.Chat)
	assert.True(t, caps.Embeddings)
}

func TestChat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req olChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.Equal(t, 128, req.Options.NumPredict)

		json.NewEncoder(w).Encode(olChatResponse{
			Model:           "llama3.1:8b",
			Message:         olMessage{Role: "assistant", Content: "hey"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 6,
			EvalCount:       2,
		})
	})

	resp, err := p.Chat(context.Background(), &provider.ChatRequest{
		Model:     "llama3.1:8b",
		Messages:  []types.Message{types.NewUserMessage("hi")},
		MaxTokens: 128,
	})
	require.NoError(t, err)
	assert.Equal(t, "hey", resp.Content)
	assert.Equal(t, types.FinishStop, resp.FinishReason)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
	assert.Equal(t, "local", resp.Metadata.Provider)
}

func TestChat_JSONMode(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req olChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)
		json.NewEncoder(w).Encode(olChatResponse{
			Message: olMessage{Content: `{"ok":true}`},
			Done:    true,
		})
	})

	resp, err := p.Chat(context.Background(), &provider.ChatRequest{
		Model:    "llama3.1:8b",
		Messages: []types.Message{types.NewUserMessage("json please")},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, resp.Content)
}

func TestChat_ServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"missing\" not found"}`))
	})

	_, err := p.Chat(context.Background(), &provider.ChatRequest{
		Model:    "missing",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrModelNotFound, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestStreamChat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req olChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		lines := []string{
			`{"model":"llama3.1:8b","message":{"role":"assistant","content":"he"},"done":false}`,
			`{"model":"llama3.1:8b","message":{"role":"assistant","content":"y"},"done":false}`,
			`{"model":"llama3.1:8b","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":6,"eval_count":2}`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	})

	stream, err := p.StreamChat(context.Background(), &provider.ChatRequest{
		Model:    "llama3.1:8b",
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

	assert.Equal(t, []string{"he", "y"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "hey", final.Content)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 8, final.Usage.TotalTokens)
}

func TestEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req olEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)

		json.NewEncoder(w).Encode(olEmbedResponse{
			Embeddings:      [][]float64{{0.1, 0.2}, {0.3, 0.4}},
			PromptEvalCount: 4,
		})
	})

	resp, err := p.Embed(context.Background(), &provider.EmbeddingRequest{
		Model: "nomic-embed-text",
		Input: []string{"a", "b"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []float64{0.3, 0.4}, resp.Embeddings[1])
	assert.Equal(t, 4, resp.Usage.PromptTokens)
}

func TestEmbed_CountMismatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(olEmbedResponse{Embeddings: [][]float64{{0.1}}})
	})

	_, err := p.Embed(context.Background(), &provider.EmbeddingRequest{
		Model: "nomic-embed-text",
		Input: []string{"a", "b"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrProvider, types.GetErrorCode(err))
}

func TestListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"unknown:latest"}]}`))
	})

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	// 只返回目录里认识且已拉取的模型
	require.Len(t, models, 1)
	assert.Equal(t, "llama3.1:8b", models[0].ID)
	assert.True(t, models[0].LocalOnly)
}

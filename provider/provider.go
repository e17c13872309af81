// Package provider defines the uniform contract every model backend
// implements, plus the shared plumbing backends need: wire types, the
// HTTP-status error mapping, an SSE reader, and a client-side rate-limit
// wrapper. Concrete backends live in the subpackages (openai, anthropic,
// local); each wraps one vendor's HTTP API directly rather than a vendor
// SDK, so the error and streaming semantics stay under our control.
package provider

import (
	"context"
	"time"

	"github.com/vaamx/modelmux/types"
)

// ChatRequest is the provider-shaped chat request. The orchestrator builds
// it from the caller's messages and options after model selection.
type ChatRequest struct {
	Model            string             `json:"model"`
	Messages         []types.Message    `json:"messages"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	Temperature      *float32           `json:"temperature,omitempty"`
	TopP             *float32           `json:"top_p,omitempty"`
	FrequencyPenalty *float32           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32           `json:"presence_penalty,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	Tools            []types.ToolSchema `json:"tools,omitempty"`
	SystemPrompt     string             `json:"system_prompt,omitempty"`
	JSONMode         bool               `json:"json_mode,omitempty"`
	RequestID        string             `json:"request_id,omitempty"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}

// ResponseMetadata identifies where and how a response was produced.
type ResponseMetadata struct {
	Model          string        `json:"model"`
	Provider       string        `json:"provider"`
	ProcessingTime time.Duration `json:"processing_time"`
	Cached         bool          `json:"cached"`
	RequestID      string        `json:"request_id,omitempty"`
}

// ChatResponse is the unified chat completion result.
type ChatResponse struct {
	ID           string             `json:"id,omitempty"`
	Content      string             `json:"content"`
	FinishReason types.FinishReason `json:"finish_reason"`
	ToolCalls    []types.ToolCall   `json:"tool_calls,omitempty"`
	Usage        types.TokenUsage   `json:"usage"`
	Metadata     ResponseMetadata   `json:"metadata"`
}

// StreamChunk is one increment of a streaming chat response. The final
// chunk carries FinishReason and, when the vendor reports it, Usage.
type StreamChunk struct {
	ID           string             `json:"id,omitempty"`
	Delta        string             `json:"delta"`
	Content      string             `json:"content,omitempty"` // accumulated text, set on the final chunk
	FinishReason types.FinishReason `json:"finish_reason,omitempty"`
	Usage        *types.TokenUsage  `json:"usage,omitempty"`
	Err          *types.Error       `json:"error,omitempty"`
}

// ChatStream is a lazy, finite, single-consumer sequence of chunks.
// Ownership transfers to the caller: drain Chunks or call Close so the
// provider can release the underlying connection. The channel closes after
// the final chunk or on cancellation.
type ChatStream struct {
	Model    string
	Provider string

	ch     <-chan StreamChunk
	cancel context.CancelFunc
}

// NewChatStream wraps a chunk channel with its cancel function.
func NewChatStream(model, providerName string, ch <-chan StreamChunk, cancel context.CancelFunc) *ChatStream {
	return &ChatStream{Model: model, Provider: providerName, ch: ch, cancel: cancel}
}

// Chunks returns the chunk channel.
func (s *ChatStream) Chunks() <-chan StreamChunk { return s.ch }

// Close abandons the stream and releases the underlying connection.
// Safe to call after the channel is drained.
func (s *ChatStream) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// EmbeddingRequest asks for embeddings of one or more inputs.
type EmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
}

// EmbeddingResponse carries one embedding per input, parallel to Input.
type EmbeddingResponse struct {
	Embeddings [][]float64      `json:"embeddings"`
	Usage      types.TokenUsage `json:"usage"`
	Metadata   ResponseMetadata `json:"metadata"`
}

// Capabilities is the static descriptor of what a provider supports.
type Capabilities struct {
	Chat        bool `json:"chat"`
	Streaming   bool `json:"streaming"`
	Embeddings  bool `json:"embeddings"`
	ToolCalling bool `json:"tool_calling"`
	Vision      bool `json:"vision"`
	JSONMode    bool `json:"json_mode"`
	Local       bool `json:"local"` // on-prem; eligible under restricted privacy
}

// ValidationResult is the outcome of pre-dispatch request validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Provider is the uniform contract every backend implements. All methods
// must be safe for concurrent use once Initialize has returned.
type Provider interface {
	// Name returns the provider identifier, matching ModelMetadata.Provider.
	Name() string

	// Capabilities returns the static capability descriptor.
	Capabilities() Capabilities

	// Initialize validates configuration and readies the client. It may be
	// offline (format checks only); it must be called before any dispatch.
	Initialize(ctx context.Context) error

	// Dispose releases resources. The provider is unusable afterwards.
	Dispose() error

	// IsAvailable is a cheap health probe.
	IsAvailable(ctx context.Context) bool

	// ListModels returns the models the provider knows about; may be static.
	ListModels(ctx context.Context) ([]*types.ModelMetadata, error)

	// Chat performs a synchronous completion.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamChat starts a streaming completion. The returned stream is
	// finite, not restartable, and single-consumer.
	StreamChat(ctx context.Context, req *ChatRequest) (*ChatStream, error)

	// Embed generates embeddings parallel to the request inputs.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// ValidateRequest checks a request prior to dispatch.
	ValidateRequest(req *ChatRequest) ValidationResult
}

// BatchProcessor is an optional extension for providers with a native
// batch API. Everyone else goes through SequentialBatch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, reqs []*ChatRequest) ([]*ChatResponse, error)
}

// SequentialBatch fans requests out one at a time, stopping at the first
// error. Responses are parallel to reqs.
func SequentialBatch(ctx context.Context, p Provider, reqs []*ChatRequest) ([]*ChatResponse, error) {
	out := make([]*ChatResponse, 0, len(reqs))
	for _, req := range reqs {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}

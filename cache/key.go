package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/vaamx/modelmux/types"
)

// relevantOptions is the subset of request options that materially affect
// model output. Routing, caching, retry and identity fields are excluded so
// equivalent requests hash identically. Field order is fixed by the struct,
// which keeps the hash independent of map iteration order.
type relevantOptions struct {
	Temperature      *float32           `json:"temperature,omitempty"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	TopP             *float32           `json:"top_p,omitempty"`
	FrequencyPenalty *float32           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32           `json:"presence_penalty,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	SystemPrompt     string             `json:"system_prompt,omitempty"`
	JSONMode         bool               `json:"json_mode,omitempty"`
	Tools            []types.ToolSchema `json:"tools,omitempty"`
}

// hashedMessage strips identity and timestamps so retries of the same
// conversation hash identically.
type hashedMessage struct {
	Role       types.Role           `json:"role"`
	Content    string               `json:"content,omitempty"`
	Name       string               `json:"name,omitempty"`
	ToolCalls  []types.ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Images     []types.ImageContent `json:"images,omitempty"`
}

// ChatKey builds the cache key for a chat completion:
// llm:<modelID>:<hash(messages)>:<hash(relevantOptions)>.
// The key is stable across processes for a fixed catalog.
func ChatKey(modelID string, messages []types.Message, opts *types.Options) string {
	return "llm:" + modelID + ":" + hashMessages(messages) + ":" + hashOptions(opts)
}

// EmbeddingKey builds the cache key for an embedding request:
// embedding:<hash(inputs)>:model:<modelID>:options:<hash(relevantOptions)>.
func EmbeddingKey(modelID string, inputs []string, opts *types.Options) string {
	return "embedding:" + hashJSON(inputs) + ":model:" + modelID + ":options:" + hashOptions(opts)
}

func hashMessages(messages []types.Message) string {
	hashed := make([]hashedMessage, len(messages))
	for i, m := range messages {
		hashed[i] = hashedMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Images:     m.Images,
		}
	}
	return hashJSON(hashed)
}

func hashOptions(opts *types.Options) string {
	if opts == nil {
		opts = &types.Options{}
	}
	return hashJSON(relevantOptions{
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stop:             opts.Stop,
		SystemPrompt:     opts.SystemPrompt,
		JSONMode:         opts.JSONMode,
		Tools:            opts.Tools,
	})
}

func hashJSON(v any) string {
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

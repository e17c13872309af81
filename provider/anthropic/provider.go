// Package anthropic implements the modelmux provider contract over the
// Anthropic Messages API. The API differs from OpenAI in ways the adapter
// has to absorb: auth uses the x-api-key header, system messages travel in
// a dedicated field, content is an array of typed blocks, and streaming is
// SSE with its own event vocabulary.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vaamx/modelmux/provider"
	"github.com/vaamx/modelmux/registry"
	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultVersion = "2023-06-01"
	defaultTimeout = 60 * time.Second

	// The Messages API requires max_tokens; used when the caller did not set one.
	fallbackMaxTokens = 4096
)

// Provider is the Anthropic backend.
type Provider struct {
	cfg    provider.AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// New creates an Anthropic provider with the public API defaults.
func New(cfg provider.AnthropicConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "anthropic" }

// Capabilities implements provider.Provider. Anthropic has no embeddings
// endpoint; embedding requirements route elsewhere.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Chat:        true,
		Streaming:   true,
		ToolCalling: true,
		Vision:      true,
	}
}

// Initialize implements provider.Provider.
func (p *Provider) Initialize(_ context.Context) error {
	if p.cfg.APIKey == "" {
		return types.NewError(types.ErrAuth, "anthropic: api key is required").WithProvider(p.Name())
	}
	return nil
}

// Dispose implements provider.Provider.
func (p *Provider) Dispose() error {
	p.client.CloseIdleConnections()
	return nil
}

// IsAvailable implements provider.Provider.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels implements provider.Provider.
func (p *Provider) ListModels(_ context.Context) ([]*types.ModelMetadata, error) {
	var out []*types.ModelMetadata
	for _, m := range registry.DefaultCatalog() {
		if m.Provider == p.Name() {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- wire types ---

type anthContent struct {
	Type      string          `json:"type"` // text, image, tool_use, tool_result
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"` // for tool_result
	Source    *anthImage      `json:"source,omitempty"`
}

type anthImage struct {
	Type      string `json:"type"` // base64 or url
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthMessage struct {
	Role    string        `json:"role"` // user or assistant
	Content []anthContent `json:"content"`
}

type anthTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthRequest struct {
	Model       string        `json:"model"`
	Messages    []anthMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	StopSeq     []string      `json:"stop_sequences,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []anthTool    `json:"tools,omitempty"`
}

type anthUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthResponse struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	Content    []anthContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      *anthUsage    `json:"usage,omitempty"`
}

type anthStreamEvent struct {
	Type         string         `json:"type"`
	Index        int            `json:"index,omitempty"`
	Delta        *anthDelta     `json:"delta,omitempty"`
	ContentBlock *anthContent   `json:"content_block,omitempty"`
	Message      *anthResponse  `json:"message,omitempty"`
	Usage        *anthUsage     `json:"usage,omitempty"`
	Error        *anthErrorBody `json:"error,omitempty"`
}

type anthDelta struct {
	Type        string `json:"type"` // text_delta, input_json_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type anthErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", p.cfg.Version)
	req.Header.Set("Content-Type", "application/json")
}

// convertMessages translates unified messages to the Anthropic shape:
// system content is hoisted out, tool results become user-role
// tool_result blocks, and images become typed source blocks.
func convertMessages(req *provider.ChatRequest) (string, []anthMessage) {
	system := req.SystemPrompt
	var out []anthMessage

	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system += "\n" + m.Content
			}
			continue
		}

		if m.Role == types.RoleTool {
			out = append(out, anthMessage{
				Role: "user",
				Content: []anthContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}

		var blocks []anthContent
		if m.Content != "" {
			blocks = append(blocks, anthContent{Type: "text", Text: m.Content})
		}
		for _, img := range m.Images {
			src := &anthImage{}
			if img.Type == "base64" {
				src.Type = "base64"
				src.MediaType = "image/png"
				src.Data = img.Data
			} else {
				src.Type = "url"
				src.URL = img.URL
			}
			blocks = append(blocks, anthContent{Type: "image", Source: src})
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, anthContent{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthContent{Type: "text", Text: ""})
		}
		out = append(out, anthMessage{Role: string(m.Role), Content: blocks})
	}
	return system, out
}

func (p *Provider) buildRequest(req *provider.ChatRequest, stream bool) *anthRequest {
	system, messages := convertMessages(req)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = fallbackMaxTokens
	}

	ar := &anthRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeq:     req.Stop,
		Stream:      stream,
	}
	for _, t := range req.Tools {
		ar.Tools = append(ar.Tools, anthTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return ar
}

func mapStopReason(raw string) types.FinishReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return types.FinishStop
	case "max_tokens":
		return types.FinishLength
	case "tool_use":
		return types.FinishToolCalls
	case "refusal":
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}

func convertUsage(u *anthUsage) types.TokenUsage {
	if u == nil {
		return types.TokenUsage{}
	}
	return types.TokenUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

func readErrMsg(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var parsed struct {
		Error anthErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func (p *Provider) post(ctx context.Context, payload *anthRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "anthropic: encode request").
			WithProvider(p.Name()).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "anthropic: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.MapTransportError(p.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.MapHTTPError(p.Name(), resp.StatusCode, readErrMsg(resp.Body), resp.Header)
	}
	return resp, nil
}

// Chat implements provider.Provider.
func (p *Provider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	start := time.Now()

	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed anthResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrProvider, "anthropic: decode response").
			WithProvider(p.Name()).WithCause(err)
	}

	var content strings.Builder
	var toolCalls []types.ToolCall
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	return &provider.ChatResponse{
		ID:           parsed.ID,
		Content:      content.String(),
		FinishReason: mapStopReason(parsed.StopReason),
		ToolCalls:    toolCalls,
		Usage:        convertUsage(parsed.Usage),
		Metadata: provider.ResponseMetadata{
			Model:          req.Model,
			Provider:       p.Name(),
			ProcessingTime: time.Since(start),
			RequestID:      req.RequestID,
		},
	}, nil
}

// StreamChat implements provider.Provider.
func (p *Provider) StreamChat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := p.post(streamCtx, p.buildRequest(req, true))
	if err != nil {
		cancel()
		return nil, err
	}

	ch := make(chan provider.StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		defer cancel()

		var content strings.Builder
		var usage types.TokenUsage
		finish := types.FinishStop
		var id string

		scanner := provider.NewSSEScanner(resp.Body)
	loop:
		for {
			ev, err := scanner.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				if streamCtx.Err() != nil {
					return
				}
				select {
				case ch <- provider.StreamChunk{Err: provider.MapTransportError(p.Name(), err)}:
				case <-streamCtx.Done():
				}
				return
			}

			var event anthStreamEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					id = event.Message.ID
					usage.Add(convertUsage(event.Message.Usage))
				}
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Text == "" {
					continue
				}
				content.WriteString(event.Delta.Text)
				select {
				case ch <- provider.StreamChunk{ID: id, Delta: event.Delta.Text}:
				case <-streamCtx.Done():
					return
				}
			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					finish = mapStopReason(event.Delta.StopReason)
				}
				if event.Usage != nil {
					usage.CompletionTokens += event.Usage.OutputTokens
					usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				}
			case "message_stop":
				break loop
			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				select {
				case ch <- provider.StreamChunk{Err: types.NewError(types.ErrProvider, msg).WithProvider(p.Name())}:
				case <-streamCtx.Done():
				}
				return
			}
		}

		u := usage
		final := provider.StreamChunk{
			ID:           id,
			Content:      content.String(),
			FinishReason: finish,
			Usage:        &u,
		}
		select {
		case ch <- final:
		case <-streamCtx.Done():
		}
	}()

	return provider.NewChatStream(req.Model, p.Name(), ch, cancel), nil
}

// Embed implements provider.Provider. Anthropic exposes no embeddings
// endpoint, so this always fails; the selector never routes embedding
// requirements here because no anthropic catalog entry declares the
// capability.
func (p *Provider) Embed(_ context.Context, _ *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	return nil, types.NewError(types.ErrInvalidRequest, "anthropic: embeddings are not supported").
		WithProvider(p.Name())
}

// ValidateRequest implements provider.Provider.
func (p *Provider) ValidateRequest(req *provider.ChatRequest) provider.ValidationResult {
	result := provider.ValidationResult{Valid: true}

	if req.Model == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "model is required")
	}
	if len(req.Messages) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "messages must not be empty")
	}
	for i, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool:
		default:
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("message %d: unknown role %q", i, m.Role))
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		result.Warnings = append(result.Warnings, "anthropic clamps temperature to [0,1]")
	}
	if req.JSONMode {
		result.Warnings = append(result.Warnings, "anthropic has no native json mode; rely on prompting")
	}
	return result
}

var _ provider.Provider = (*Provider)(nil)

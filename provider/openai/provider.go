// Package openai implements the modelmux provider contract over the
// OpenAI HTTP API: chat completions, SSE streaming, and embeddings.
package openai

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
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 60 * time.Second
)

// Provider is the OpenAI backend.
type Provider struct {
	cfg    provider.OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// New creates an OpenAI provider. BaseURL defaults to the public API and
// the HTTP timeout to 60s.
func New(cfg provider.OpenAIConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
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
func (p *Provider) Name() string { return "openai" }

// Capabilities implements provider.Provider.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Chat:        true,
		Streaming:   true,
		Embeddings:  true,
		ToolCalling: true,
		Vision:      true,
		JSONMode:    true,
	}
}

// Initialize implements provider.Provider. The check is offline: key
// presence and format only, so startup does not depend on the vendor.
func (p *Provider) Initialize(_ context.Context) error {
	if p.cfg.APIKey == "" {
		return types.NewError(types.ErrAuth, "openai: api key is required").WithProvider(p.Name())
	}
	if !strings.HasPrefix(p.cfg.APIKey, "sk-") {
		p.logger.Warn("openai api key does not look like an sk- key")
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

// ListModels implements provider.Provider. The list is the static catalog
// slice for this provider; the live /v1/models listing carries no
// capability or pricing metadata, so the catalog is the better source.
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

type oaContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []oaToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string    `json:"type"`
	Function oaToolDef `json:"function"`
}

type oaToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaResponseFormat struct {
	Type string `json:"type"`
}

type oaRequest struct {
	Model            string            `json:"model"`
	Messages         []oaMessage       `json:"messages"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	Temperature      *float32          `json:"temperature,omitempty"`
	TopP             *float32          `json:"top_p,omitempty"`
	FrequencyPenalty *float32          `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32          `json:"presence_penalty,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Tools            []oaTool          `json:"tools,omitempty"`
	ResponseFormat   *oaResponseFormat `json:"response_format,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	StreamOptions    *oaStreamOptions  `json:"stream_options,omitempty"`
}

type oaStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaChoice struct {
	Index        int       `json:"index"`
	FinishReason string    `json:"finish_reason"`
	Message      oaRespMsg `json:"message"`
	Delta        oaRespMsg `json:"delta"`
}

type oaRespMsg struct {
	Role      string       `json:"role,omitempty"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []oaToolCall `json:"tool_calls,omitempty"`
}

type oaResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []oaChoice `json:"choices"`
	Usage   *oaUsage   `json:"usage,omitempty"`
}

type oaEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type oaEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage *oaUsage `json:"usage,omitempty"`
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
}

// textContent marshals a plain string content value.
func textContent(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// convertMessages translates unified messages to the OpenAI shape. The
// system prompt, when present, is hoisted to a leading system message.
func convertMessages(req *provider.ChatRequest) []oaMessage {
	out := make([]oaMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, oaMessage{Role: "system", Content: textContent(req.SystemPrompt)})
	}
	for _, m := range req.Messages {
		om := oaMessage{Role: string(m.Role), Name: m.Name, ToolCallID: m.ToolCallID}

		if m.HasImages() {
			parts := []oaContentPart{}
			if m.Content != "" {
				parts = append(parts, oaContentPart{Type: "text", Text: m.Content})
			}
			for _, img := range m.Images {
				url := img.URL
				if img.Type == "base64" {
					url = "data:image/png;base64," + img.Data
				}
				parts = append(parts, oaContentPart{Type: "image_url", ImageURL: &oaImageURL{URL: url}})
			}
			om.Content, _ = json.Marshal(parts)
		} else if m.Content != "" || len(m.ToolCalls) == 0 {
			om.Content = textContent(m.Content)
		}

		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaFunction{Name: tc.Name, Arguments: string(tc.Arguments)},
			})
		}
		out = append(out, om)
	}
	return out
}

func convertTools(tools []types.ToolSchema) []oaTool {
	out := make([]oaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, oaTool{
			Type: "function",
			Function: oaToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (p *Provider) buildRequest(req *provider.ChatRequest, stream bool) *oaRequest {
	or := &oaRequest{
		Model:            req.Model,
		Messages:         convertMessages(req),
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		Stream:           stream,
	}
	if len(req.Tools) > 0 {
		or.Tools = convertTools(req.Tools)
	}
	if req.JSONMode {
		or.ResponseFormat = &oaResponseFormat{Type: "json_object"}
	}
	if stream {
		or.StreamOptions = &oaStreamOptions{IncludeUsage: true}
	}
	return or
}

func mapFinishReason(raw string) types.FinishReason {
	switch raw {
	case "stop":
		return types.FinishStop
	case "length":
		return types.FinishLength
	case "tool_calls", "function_call":
		return types.FinishToolCalls
	case "content_filter":
		return types.FinishContentFilter
	default:
		return types.FinishStop
	}
}

func convertToolCalls(calls []oaToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

func convertUsage(u *oaUsage) types.TokenUsage {
	if u == nil {
		return types.TokenUsage{}
	}
	return types.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// post sends the payload and returns the response after status mapping.
// The caller owns the body.
func (p *Provider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "openai: encode request").
			WithProvider(p.Name()).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "openai: build request").
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

// readErrMsg extracts the vendor error message, falling back to raw body.
func readErrMsg(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// Chat implements provider.Provider.
func (p *Provider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	start := time.Now()

	resp, err := p.post(ctx, "/v1/chat/completions", p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed oaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrProvider, "openai: decode response").
			WithProvider(p.Name()).WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrProvider, "openai: response has no choices").
			WithProvider(p.Name())
	}

	choice := parsed.Choices[0]
	return &provider.ChatResponse{
		ID:           parsed.ID,
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		ToolCalls:    convertToolCalls(choice.Message.ToolCalls),
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

	resp, err := p.post(streamCtx, "/v1/chat/completions", p.buildRequest(req, true))
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
		var usage *types.TokenUsage
		finish := types.FinishStop
		var id string

		scanner := provider.NewSSEScanner(resp.Body)
		for {
			ev, err := scanner.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				if streamCtx.Err() != nil {
					return // consumer closed the stream
				}
				select {
				case ch <- provider.StreamChunk{Err: provider.MapTransportError(p.Name(), err)}:
				case <-streamCtx.Done():
				}
				return
			}
			if ev.Data == "[DONE]" {
				break
			}

			var chunk oaResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				continue
			}
			id = chunk.ID
			if chunk.Usage != nil {
				u := convertUsage(chunk.Usage)
				usage = &u
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finish = mapFinishReason(choice.FinishReason)
			}
			if choice.Delta.Content == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			select {
			case ch <- provider.StreamChunk{ID: id, Delta: choice.Delta.Content}:
			case <-streamCtx.Done():
				return
			}
		}

		final := provider.StreamChunk{
			ID:           id,
			Content:      content.String(),
			FinishReason: finish,
			Usage:        usage,
		}
		select {
		case ch <- final:
		case <-streamCtx.Done():
		}
	}()

	return provider.NewChatStream(req.Model, p.Name(), ch, cancel), nil
}

// Embed implements provider.Provider.
func (p *Provider) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	start := time.Now()

	resp, err := p.post(ctx, "/v1/embeddings", &oaEmbeddingRequest{
		Model:      req.Model,
		Input:      req.Input,
		Dimensions: req.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed oaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrProvider, "openai: decode embeddings").
			WithProvider(p.Name()).WithCause(err)
	}

	// Data order is not guaranteed; place by index so output stays
	// parallel to input.
	embeddings := make([][]float64, len(req.Input))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}

	return &provider.EmbeddingResponse{
		Embeddings: embeddings,
		Usage:      convertUsage(parsed.Usage),
		Metadata: provider.ResponseMetadata{
			Model:          req.Model,
			Provider:       p.Name(),
			ProcessingTime: time.Since(start),
			RequestID:      req.RequestID,
		},
	}, nil
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
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		result.Warnings = append(result.Warnings, "temperature outside [0,2] will be rejected upstream")
	}
	if req.MaxTokens < 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "max_tokens must be non-negative")
	}
	return result
}

var _ provider.Provider = (*Provider)(nil)

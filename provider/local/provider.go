// Package local implements the provider contract against an
// Ollama-compatible HTTP server. It is the only backend that satisfies
// restricted-privacy requirements: requests never leave the host the
// server runs on. Streaming uses newline-delimited JSON rather than SSE.
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vaamx/modelmux/provider"
	"github.com/vaamx/modelmux/registry"
	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second // local inference can be slow on CPU
)

// Provider is the local backend.
type Provider struct {
	cfg    provider.LocalConfig
	client *http.Client
	logger *zap.Logger
}

// New creates a local provider with Ollama's default address.
func New(cfg provider.LocalConfig, logger *zap.Logger) *Provider {
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
func (p *Provider) Name() string { return "local" }

// Capabilities implements provider.Provider.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Chat:        true,
		Streaming:   true,
		Embeddings:  true,
		ToolCalling: true,
		JSONMode:    true,
		Local:       true,
	}
}

// Initialize implements provider.Provider. No credentials to check; the
// server may come up after us, so reachability is left to IsAvailable.
func (p *Provider) Initialize(_ context.Context) error { return nil }

// Dispose implements provider.Provider.
func (p *Provider) Dispose() error {
	p.client.CloseIdleConnections()
	return nil
}

// IsAvailable implements provider.Provider.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels implements provider.Provider. Queries the server for pulled
// models and returns catalog metadata for the ones we recognize.
func (p *Provider) ListModels(ctx context.Context) ([]*types.ModelMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "local: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, provider.MapTransportError(p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, provider.MapHTTPError(p.Name(), resp.StatusCode, "", resp.Header)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, types.NewError(types.ErrProvider, "local: decode /api/tags").
			WithProvider(p.Name()).WithCause(err)
	}

	pulled := make(map[string]struct{}, len(tags.Models))
	for _, m := range tags.Models {
		pulled[m.Name] = struct{}{}
	}

	var out []*types.ModelMetadata
	for _, m := range registry.DefaultCatalog() {
		if m.Provider != p.Name() {
			continue
		}
		if _, ok := pulled[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- wire types ---

type olMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Images    []string     `json:"images,omitempty"` // base64 payloads
	ToolCalls []olToolCall `json:"tool_calls,omitempty"`
}

type olToolCall struct {
	Function olFunction `json:"function"`
}

type olFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type olTool struct {
	Type     string `json:"type"` // always "function"
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type olOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type olChatRequest struct {
	Model    string      `json:"model"`
	Messages []olMessage `json:"messages"`
	Stream   bool        `json:"stream"`
	Format   string      `json:"format,omitempty"` // "json" for json mode
	Tools    []olTool    `json:"tools,omitempty"`
	Options  *olOptions  `json:"options,omitempty"`
}

type olChatResponse struct {
	Model           string    `json:"model"`
	Message         olMessage `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
}

type olEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type olEmbedResponse struct {
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
}

func convertMessages(req *provider.ChatRequest) []olMessage {
	var out []olMessage
	if req.SystemPrompt != "" {
		out = append(out, olMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		om := olMessage{Role: string(m.Role), Content: m.Content}
		for _, img := range m.Images {
			if img.Type == "base64" {
				om.Images = append(om.Images, img.Data)
			}
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, olToolCall{
				Function: olFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, om)
	}
	return out
}

func (p *Provider) buildRequest(req *provider.ChatRequest, stream bool) *olChatRequest {
	or := &olChatRequest{
		Model:    req.Model,
		Messages: convertMessages(req),
		Stream:   stream,
	}
	if req.JSONMode {
		or.Format = "json"
	}
	if req.Temperature != nil || req.TopP != nil || req.MaxTokens > 0 || len(req.Stop) > 0 {
		or.Options = &olOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}
	for _, t := range req.Tools {
		var tool olTool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		or.Tools = append(or.Tools, tool)
	}
	return or
}

func mapDoneReason(raw string, hasToolCalls bool) types.FinishReason {
	if hasToolCalls {
		return types.FinishToolCalls
	}
	switch raw {
	case "length":
		return types.FinishLength
	default:
		return types.FinishStop
	}
}

func convertToolCalls(calls []olToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, 0, len(calls))
	for i, c := range calls {
		out = append(out, types.ToolCall{
			// Ollama does not assign call ids; synthesize stable ones.
			ID:        fmt.Sprintf("call_%d", i),
			Name:      c.Function.Name,
			Arguments: c.Function.Arguments,
		})
	}
	return out
}

func (p *Provider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "local: encode request").
			WithProvider(p.Name()).WithCause(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "local: build request").
			WithProvider(p.Name()).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.MapTransportError(p.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var parsed struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		return nil, provider.MapHTTPError(p.Name(), resp.StatusCode, parsed.Error, resp.Header)
	}
	return resp, nil
}

// Chat implements provider.Provider.
func (p *Provider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	start := time.Now()

	resp, err := p.post(ctx, "/api/chat", p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed olChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrProvider, "local: decode response").
			WithProvider(p.Name()).WithCause(err)
	}

	toolCalls := convertToolCalls(parsed.Message.ToolCalls)
	return &provider.ChatResponse{
		Content:      parsed.Message.Content,
		FinishReason: mapDoneReason(parsed.DoneReason, len(toolCalls) > 0),
		ToolCalls:    toolCalls,
		Usage: types.TokenUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
		Metadata: provider.ResponseMetadata{
			Model:          req.Model,
			Provider:       p.Name(),
			ProcessingTime: time.Since(start),
			RequestID:      req.RequestID,
		},
	}, nil
}

// StreamChat implements provider.Provider. Ollama streams one JSON object
// per line; the object with done=true carries the eval counts.
func (p *Provider) StreamChat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := p.post(streamCtx, "/api/chat", p.buildRequest(req, true))
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
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var parsed olChatResponse
			if err := json.Unmarshal(line, &parsed); err != nil {
				continue
			}

			if parsed.Done {
				usage := types.TokenUsage{
					PromptTokens:     parsed.PromptEvalCount,
					CompletionTokens: parsed.EvalCount,
					TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
				}
				final := provider.StreamChunk{
					Content:      content.String(),
					FinishReason: mapDoneReason(parsed.DoneReason, false),
					Usage:        &usage,
				}
				select {
				case ch <- final:
				case <-streamCtx.Done():
				}
				return
			}

			if parsed.Message.Content == "" {
				continue
			}
			content.WriteString(parsed.Message.Content)
			select {
			case ch <- provider.StreamChunk{Delta: parsed.Message.Content}:
			case <-streamCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			select {
			case ch <- provider.StreamChunk{Err: provider.MapTransportError(p.Name(), err)}:
			case <-streamCtx.Done():
			}
		}
	}()

	return provider.NewChatStream(req.Model, p.Name(), ch, cancel), nil
}

// Embed implements provider.Provider via /api/embed.
func (p *Provider) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	start := time.Now()

	resp, err := p.post(ctx, "/api/embed", &olEmbedRequest{Model: req.Model, Input: req.Input})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed olEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrProvider, "local: decode embeddings").
			WithProvider(p.Name()).WithCause(err)
	}
	if len(parsed.Embeddings) != len(req.Input) {
		return nil, types.NewError(types.ErrProvider,
			fmt.Sprintf("local: got %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Input))).
			WithProvider(p.Name())
	}

	return &provider.EmbeddingResponse{
		Embeddings: parsed.Embeddings,
		Usage: types.TokenUsage{
			PromptTokens: parsed.PromptEvalCount,
			TotalTokens:  parsed.PromptEvalCount,
		},
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
	for _, m := range req.Messages {
		for _, img := range m.Images {
			if img.Type == "url" && img.URL != "" {
				result.Warnings = append(result.Warnings, "local backend ignores url images; send base64 data")
			}
		}
	}
	return result
}

var _ provider.Provider = (*Provider)(nil)

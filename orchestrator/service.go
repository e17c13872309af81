// Package orchestrator ties the module together: it infers routing
// requirements from a request, selects a model through the policy engine,
// consults the response cache, dispatches to the owning provider with
// retries, and records metrics and one structured log event per terminal
// outcome.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vaamx/modelmux/cache"
	"github.com/vaamx/modelmux/policy"
	"github.com/vaamx/modelmux/provider"
	"github.com/vaamx/modelmux/registry"
	"github.com/vaamx/modelmux/types"
)

const (
	defaultChatCacheTTL      = 3600 * time.Second
	defaultEmbeddingCacheTTL = 86400 * time.Second
)

// Config tunes service-wide defaults. The zero value is usable.
type Config struct {
	// MaxRetries is the default retry budget when options do not override.
	MaxRetries int
	// RetryDelay is the base backoff delay.
	RetryDelay time.Duration

	// ChatCacheTTL and EmbeddingCacheTTL override the cache lifetimes.
	ChatCacheTTL      time.Duration
	EmbeddingCacheTTL time.Duration
	// CacheEmbeddings is the global kill switch for the embedding cache.
	// Nil means enabled; point at false to turn it off.
	CacheEmbeddings *bool

	// LocalProvider is preferred under restricted privacy.
	LocalProvider string
	// ComplexTaskProvider is preferred for complex reasoning and code tasks.
	ComplexTaskProvider string

	// HealthInterval enables background provider probing when positive.
	HealthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultBaseDelay
	}
	if c.ChatCacheTTL == 0 {
		c.ChatCacheTTL = defaultChatCacheTTL
	}
	if c.EmbeddingCacheTTL == 0 {
		c.EmbeddingCacheTTL = defaultEmbeddingCacheTTL
	}
	if c.LocalProvider == "" {
		c.LocalProvider = "local"
	}
	if c.CacheEmbeddings == nil {
		on := true
		c.CacheEmbeddings = &on
	}
	return c
}

// Service is the orchestrator. Construct with New, add providers with
// RegisterProvider, then call Initialize once before serving requests.
// The provider map is written only before Initialize and read concurrently
// afterwards.
type Service struct {
	cfg       Config
	reg       *registry.Registry
	selector  *policy.Selector
	cache     cache.Cache
	providers map[string]provider.Provider
	logger    *zap.Logger
	metrics   *Metrics
	tokens    tokenEstimator
	prober    *prober
}

// New creates a Service. A nil cache disables caching entirely; a nil
// selector gets the default policy set.
func New(cfg Config, reg *registry.Registry, sel *policy.Selector, c cache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = registry.New(logger)
	}
	if sel == nil {
		sel = policy.NewSelector(policy.NewScorer(policy.DefaultPolicies(), logger), logger)
	}
	return &Service{
		cfg:       cfg.withDefaults(),
		reg:       reg,
		selector:  sel,
		cache:     c,
		providers: make(map[string]provider.Provider),
		logger:    logger,
		metrics:   NewMetrics(),
	}
}

// RegisterProvider adds a backend. Must be called before Initialize.
func (s *Service) RegisterProvider(p provider.Provider) {
	s.providers[p.Name()] = p
}

// Registry exposes the model catalog for registration and queries.
func (s *Service) Registry() *registry.Registry { return s.reg }

// Initialize readies every registered provider concurrently and starts the
// health prober when configured. A single provider failure fails the whole
// call.
func (s *Service) Initialize(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, p := range s.providers {
		name, p := name, p
		g.Go(func() error {
			if err := p.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize provider %s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.cfg.HealthInterval > 0 {
		s.prober = newProber(s.reg, s.providers, s.cfg.HealthInterval, s.logger)
		s.prober.start()
	}

	s.logger.Info("orchestrator initialized",
		zap.Int("providers", len(s.providers)),
		zap.Int("models", s.reg.Len()))
	return nil
}

// Dispose stops the prober and disposes every provider, keeping the first
// error.
func (s *Service) Dispose() error {
	if s.prober != nil {
		s.prober.stop()
	}
	var first error
	for name, p := range s.providers {
		if err := p.Dispose(); err != nil && first == nil {
			first = fmt.Errorf("dispose provider %s: %w", name, err)
		}
	}
	return first
}

// ChatCompletion runs the full pipeline for a synchronous chat request:
// inference, selection, cache lookup, dispatch with retry, cache store.
func (s *Service) ChatCompletion(ctx context.Context, messages []types.Message, opts *types.Options) (*provider.ChatResponse, error) {
	if opts == nil {
		opts = &types.Options{}
	}
	start := time.Now()
	requestID := ensureRequestID(opts.RequestID)

	ctx, span := s.metrics.StartSpan(ctx, "chat")
	defer span.End()

	req := s.inferRequirements(messages, opts, false)
	model, err := s.selector.Select(s.reg.List(), req, opts.Model)
	if err != nil {
		s.logFailure("chat", requestID, opts, "", "", start, 0, err)
		s.metrics.RecordRequest(ctx, "chat", "", "", false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	useCache := s.cache != nil && opts.CacheEnabled()
	var key string
	if useCache {
		key = cache.ChatKey(model.ID, messages, opts)
		if resp, ok := s.cachedChat(ctx, key, requestID); ok {
			s.metrics.RecordCache(ctx, "chat", true)
			s.metrics.RecordRequest(ctx, "chat", model.ID, model.Provider, true, time.Since(start), resp.Usage, nil)
			s.logSuccess("chat", requestID, opts, resp.Metadata, resp.Usage, 1)
			return resp, nil
		}
		s.metrics.RecordCache(ctx, "chat", false)
	}

	backend, err := s.resolveProvider(model)
	if err != nil {
		s.logFailure("chat", requestID, opts, model.ID, model.Provider, start, 0, err)
		s.metrics.RecordRequest(ctx, "chat", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	chatReq := buildChatRequest(model.ID, messages, opts, requestID)
	if err := s.validate(backend, chatReq, requestID); err != nil {
		s.logFailure("chat", requestID, opts, model.ID, model.Provider, start, 0, err)
		s.metrics.RecordRequest(ctx, "chat", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	var resp *provider.ChatResponse
	attempts, err := s.withRetry(ctx, s.maxRetries(opts), s.retryDelay(opts), requestID, func() error {
		var callErr error
		resp, callErr = backend.Chat(ctx, chatReq)
		return callErr
	})
	if err != nil {
		e := types.AsError(err).WithModel(model.ID)
		s.logFailure("chat", requestID, opts, model.ID, model.Provider, start, attempts, e)
		s.metrics.RecordRequest(ctx, "chat", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, e)
		return nil, e
	}

	resp.Metadata.Model = model.ID
	resp.Metadata.Provider = model.Provider
	resp.Metadata.RequestID = requestID
	resp.Usage.Cost = costOf(model, resp.Usage)

	if useCache {
		s.storeCache(ctx, key, resp, s.chatTTL(opts))
	}

	s.metrics.RecordRequest(ctx, "chat", model.ID, model.Provider, false, time.Since(start), resp.Usage, nil)
	s.logSuccess("chat", requestID, opts, resp.Metadata, resp.Usage, attempts)
	return resp, nil
}

// StreamChatCompletion starts a streaming completion. Streaming bypasses the
// cache in both directions and is attempted exactly once.
func (s *Service) StreamChatCompletion(ctx context.Context, messages []types.Message, opts *types.Options) (*provider.ChatStream, error) {
	if opts == nil {
		opts = &types.Options{}
	}
	start := time.Now()
	requestID := ensureRequestID(opts.RequestID)

	ctx, span := s.metrics.StartSpan(ctx, "stream")
	defer span.End()

	req := s.inferRequirements(messages, opts, true)
	model, err := s.selector.Select(s.reg.List(), req, opts.Model)
	if err != nil {
		s.logFailure("stream", requestID, opts, "", "", start, 0, err)
		s.metrics.RecordRequest(ctx, "stream", "", "", false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	backend, err := s.resolveProvider(model)
	if err != nil {
		s.logFailure("stream", requestID, opts, model.ID, model.Provider, start, 0, err)
		s.metrics.RecordRequest(ctx, "stream", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	chatReq := buildChatRequest(model.ID, messages, opts, requestID)
	if err := s.validate(backend, chatReq, requestID); err != nil {
		s.logFailure("stream", requestID, opts, model.ID, model.Provider, start, 0, err)
		s.metrics.RecordRequest(ctx, "stream", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	stream, err := backend.StreamChat(ctx, chatReq)
	if err != nil {
		e := types.AsError(err).WithModel(model.ID)
		s.logFailure("stream", requestID, opts, model.ID, model.Provider, start, 1, e)
		s.metrics.RecordRequest(ctx, "stream", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, e)
		return nil, e
	}

	s.metrics.RecordRequest(ctx, "stream", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, nil)
	s.logger.Info("stream started",
		zap.String("request_id", requestID),
		zap.String("session_id", opts.SessionID),
		zap.String("user_id", opts.UserID),
		zap.String("model", model.ID),
		zap.String("provider", model.Provider))
	return stream, nil
}

// Embedding generates embeddings through the same pipeline: selection over
// embedding-capable models, cache, dispatch with retry.
func (s *Service) Embedding(ctx context.Context, input []string, opts *types.Options) (*provider.EmbeddingResponse, error) {
	if opts == nil {
		opts = &types.Options{}
	}
	if len(input) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "embedding input must not be empty")
	}
	start := time.Now()
	requestID := ensureRequestID(opts.RequestID)

	ctx, span := s.metrics.StartSpan(ctx, "embedding")
	defer span.End()

	req := s.inferEmbeddingRequirements(input, opts)
	model, err := s.selector.Select(s.reg.List(), req, opts.Model)
	if err != nil {
		s.logFailure("embedding", requestID, opts, "", "", start, 0, err)
		s.metrics.RecordRequest(ctx, "embedding", "", "", false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	useCache := s.cache != nil && *s.cfg.CacheEmbeddings && opts.CacheEnabled()
	var key string
	if useCache {
		key = cache.EmbeddingKey(model.ID, input, opts)
		if resp, ok := s.cachedEmbedding(ctx, key, requestID); ok {
			s.metrics.RecordCache(ctx, "embedding", true)
			s.metrics.RecordRequest(ctx, "embedding", model.ID, model.Provider, true, time.Since(start), resp.Usage, nil)
			s.logSuccess("embedding", requestID, opts, resp.Metadata, resp.Usage, 1)
			return resp, nil
		}
		s.metrics.RecordCache(ctx, "embedding", false)
	}

	backend, err := s.resolveProvider(model)
	if err != nil {
		s.logFailure("embedding", requestID, opts, model.ID, model.Provider, start, 0, err)
		s.metrics.RecordRequest(ctx, "embedding", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, err)
		return nil, err
	}

	embedReq := &provider.EmbeddingRequest{Model: model.ID, Input: input, RequestID: requestID}
	var resp *provider.EmbeddingResponse
	attempts, err := s.withRetry(ctx, s.maxRetries(opts), s.retryDelay(opts), requestID, func() error {
		var callErr error
		resp, callErr = backend.Embed(ctx, embedReq)
		return callErr
	})
	if err != nil {
		e := types.AsError(err).WithModel(model.ID)
		s.logFailure("embedding", requestID, opts, model.ID, model.Provider, start, attempts, e)
		s.metrics.RecordRequest(ctx, "embedding", model.ID, model.Provider, false, time.Since(start), types.TokenUsage{}, e)
		return nil, e
	}

	resp.Metadata.Model = model.ID
	resp.Metadata.Provider = model.Provider
	resp.Metadata.RequestID = requestID
	resp.Usage.Cost = costOf(model, resp.Usage)

	if useCache {
		s.storeCache(ctx, key, resp, s.embeddingTTL(opts))
	}

	s.metrics.RecordRequest(ctx, "embedding", model.ID, model.Provider, false, time.Since(start), resp.Usage, nil)
	s.logSuccess("embedding", requestID, opts, resp.Metadata, resp.Usage, attempts)
	return resp, nil
}

// --- internal helpers ---

func ensureRequestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Service) maxRetries(opts *types.Options) int {
	if opts.MaxRetries != nil {
		return *opts.MaxRetries
	}
	return s.cfg.MaxRetries
}

func (s *Service) retryDelay(opts *types.Options) time.Duration {
	if opts.RetryDelay > 0 {
		return opts.RetryDelay
	}
	return s.cfg.RetryDelay
}

func (s *Service) chatTTL(opts *types.Options) time.Duration {
	if opts.CacheTTL > 0 {
		return opts.CacheTTL
	}
	return s.cfg.ChatCacheTTL
}

func (s *Service) embeddingTTL(opts *types.Options) time.Duration {
	if opts.CacheTTL > 0 {
		return opts.CacheTTL
	}
	return s.cfg.EmbeddingCacheTTL
}

func (s *Service) resolveProvider(model *types.ModelMetadata) (provider.Provider, error) {
	p, ok := s.providers[model.Provider]
	if !ok {
		return nil, types.NewError(types.ErrProviderDown,
			fmt.Sprintf("no provider registered for %q", model.Provider)).
			WithProvider(model.Provider).
			WithModel(model.ID)
	}
	return p, nil
}

func (s *Service) validate(backend provider.Provider, req *provider.ChatRequest, requestID string) error {
	result := backend.ValidateRequest(req)
	for _, w := range result.Warnings {
		s.logger.Warn("request validation warning",
			zap.String("request_id", requestID),
			zap.String("provider", backend.Name()),
			zap.String("warning", w))
	}
	if !result.Valid {
		return types.NewError(types.ErrInvalidRequest, strings.Join(result.Errors, "; ")).
			WithProvider(backend.Name()).
			WithModel(req.Model)
	}
	return nil
}

func buildChatRequest(modelID string, messages []types.Message, opts *types.Options, requestID string) *provider.ChatRequest {
	return &provider.ChatRequest{
		Model:            modelID,
		Messages:         messages,
		MaxTokens:        opts.MaxTokens,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stop:             opts.Stop,
		Tools:            opts.Tools,
		SystemPrompt:     opts.SystemPrompt,
		JSONMode:         opts.JSONMode,
		RequestID:        requestID,
	}
}

// costOf prices usage against registry metadata, USD per 1M tokens.
func costOf(model *types.ModelMetadata, usage types.TokenUsage) float64 {
	return (float64(usage.PromptTokens)*model.Pricing.InputTokens +
		float64(usage.CompletionTokens)*model.Pricing.OutputTokens) / 1e6
}

func (s *Service) cachedChat(ctx context.Context, key, requestID string) (*provider.ChatResponse, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var resp provider.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return nil, false
	}
	resp.Metadata.Cached = true
	resp.Metadata.RequestID = requestID
	return &resp, true
}

func (s *Service) cachedEmbedding(ctx context.Context, key, requestID string) (*provider.EmbeddingResponse, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var resp provider.EmbeddingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return nil, false
	}
	resp.Metadata.Cached = true
	resp.Metadata.RequestID = requestID
	return &resp, true
}

// storeCache writes best-effort; a failed write never fails the request.
func (s *Service) storeCache(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) logSuccess(op, requestID string, opts *types.Options, meta provider.ResponseMetadata, usage types.TokenUsage, attempts int) {
	s.logger.Info(op+" completed",
		zap.String("request_id", requestID),
		zap.String("session_id", opts.SessionID),
		zap.String("user_id", opts.UserID),
		zap.String("model", meta.Model),
		zap.String("provider", meta.Provider),
		zap.Duration("processing_time", meta.ProcessingTime),
		zap.Bool("cached", meta.Cached),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
		zap.Float64("cost", usage.Cost),
		zap.Int("attempts", attempts))
}

func (s *Service) logFailure(op, requestID string, opts *types.Options, model, providerName string, start time.Time, attempts int, err error) {
	s.logger.Error(op+" failed",
		zap.String("request_id", requestID),
		zap.String("session_id", opts.SessionID),
		zap.String("user_id", opts.UserID),
		zap.String("model", model),
		zap.String("provider", providerName),
		zap.Duration("processing_time", time.Since(start)),
		zap.String("code", string(types.GetErrorCode(err))),
		zap.Int("attempts", attempts),
		zap.Error(err))
}

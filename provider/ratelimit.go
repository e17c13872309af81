package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited decorates a Provider with a client-side request-per-minute
// limiter, so a busy orchestrator does not trip the vendor's limiter and
// burn retry budget on 429s. Dispatch methods wait for a token, honoring
// context cancellation; probes and listings pass through.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with an RPM budget. Non-positive rpm disables
// limiting and returns p unchanged.
func NewRateLimited(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return MapTransportError(r.Name(), err)
	}
	return nil
}

// Chat implements Provider.
func (r *RateLimited) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Chat(ctx, req)
}

// StreamChat implements Provider.
func (r *RateLimited) StreamChat(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.StreamChat(ctx, req)
}

// Embed implements Provider.
func (r *RateLimited) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Embed(ctx, req)
}

var _ Provider = (*RateLimited)(nil)

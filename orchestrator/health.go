package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaamx/modelmux/provider"
	"github.com/vaamx/modelmux/registry"
	"github.com/vaamx/modelmux/types"
)

// prober periodically health-checks every provider. When a provider stops
// answering, its models are demoted to limited status so the selector
// stops routing to them; they are restored on recovery.
type prober struct {
	reg       *registry.Registry
	providers map[string]provider.Provider
	interval  time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	down  map[string]bool
	prior map[string]types.ModelStatus // model id -> status before demotion
}

func newProber(reg *registry.Registry, providers map[string]provider.Provider, interval time.Duration, logger *zap.Logger) *prober {
	return &prober{
		reg:       reg,
		providers: providers,
		interval:  interval,
		logger:    logger,
		down:      make(map[string]bool),
		prior:     make(map[string]types.ModelStatus),
	}
}

func (p *prober) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.probe(ctx)
			}
		}
	}()
}

func (p *prober) stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *prober) probe(ctx context.Context) {
	for name, backend := range p.providers {
		up := backend.IsAvailable(ctx)

		p.mu.Lock()
		wasDown := p.down[name]
		p.down[name] = !up
		p.mu.Unlock()

		switch {
		case !up && !wasDown:
			p.logger.Warn("provider unavailable, demoting its models", zap.String("provider", name))
			p.demote(name)
		case up && wasDown:
			p.logger.Info("provider recovered, restoring its models", zap.String("provider", name))
			p.restore(name)
		}
	}
}

// demote marks the provider's models limited, remembering what they were.
// Deprecated models stay deprecated; already-limited ones are left alone so
// a restore cannot promote them.
func (p *prober) demote(providerName string) {
	for _, m := range p.reg.ListByProvider(providerName) {
		st := m.Availability.Status
		if st == types.StatusDeprecated || st == types.StatusLimited {
			continue
		}
		p.mu.Lock()
		p.prior[m.ID] = st
		p.mu.Unlock()
		if err := p.reg.SetStatus(m.ID, types.StatusLimited); err != nil {
			p.logger.Warn("status update failed",
				zap.String("model", m.ID),
				zap.Error(err))
		}
	}
}

// restore puts back the status each model had before the outage.
func (p *prober) restore(providerName string) {
	for _, m := range p.reg.ListByProvider(providerName) {
		p.mu.Lock()
		st, ok := p.prior[m.ID]
		delete(p.prior, m.ID)
		p.mu.Unlock()
		if !ok || m.Availability.Status != types.StatusLimited {
			continue
		}
		if err := p.reg.SetStatus(m.ID, st); err != nil {
			p.logger.Warn("status update failed",
				zap.String("model", m.ID),
				zap.Error(err))
		}
	}
}

// Package registry holds the in-memory model catalog: which models exist,
// what they can do, and at what cost and latency. It is the source of truth
// for selection and holds no per-request state.
package registry

import (
	"fmt"
	"sync"

	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
)

// Registry is a thread-safe catalog of model metadata, indexed by provider
// and by capability for O(k) lookups. Readers proceed concurrently; writers
// take exclusive access so the indices are consistent with the main store at
// every observable point.
type Registry struct {
	mu           sync.RWMutex
	models       map[string]*types.ModelMetadata
	byProvider   map[string]map[string]struct{}
	byCapability map[types.Capability]map[string]struct{}
	logger       *zap.Logger
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		models:       make(map[string]*types.ModelMetadata),
		byProvider:   make(map[string]map[string]struct{}),
		byCapability: make(map[types.Capability]map[string]struct{}),
		logger:       logger,
	}
}

// Register validates and inserts a model. Registering an existing id
// replaces the previous entry and rewrites its index entries atomically.
func (r *Registry) Register(m *types.ModelMetadata) error {
	if m == nil {
		return types.NewError(types.ErrInvalidMetadata, "model metadata is nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	stored := m.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.models[stored.ID]; ok {
		r.unindexLocked(old)
	}
	r.models[stored.ID] = stored
	r.indexLocked(stored)

	r.logger.Debug("model registered",
		zap.String("model", stored.ID),
		zap.String("provider", stored.Provider),
		zap.Int("capabilities", len(stored.Capabilities)),
	)
	return nil
}

// Get returns the metadata for id, or an error with code MODEL_NOT_FOUND.
func (r *Registry) Get(id string) (*types.ModelMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %q is not registered", id))
	}
	return m.Clone(), nil
}

// List returns all registered metadata. Order is unspecified.
func (r *Registry) List() []*types.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m.Clone())
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// ListByProvider returns the models served by the named provider.
func (r *Registry) ListByProvider(provider string) []*types.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byProvider[provider]
	out := make([]*types.ModelMetadata, 0, len(ids))
	for id := range ids {
		out = append(out, r.models[id].Clone())
	}
	return out
}

// ListByCapability returns the models declaring cap.
func (r *Registry) ListByCapability(cap types.Capability) []*types.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCapability[cap]
	out := make([]*types.ModelMetadata, 0, len(ids))
	for id := range ids {
		out = append(out, r.models[id].Clone())
	}
	return out
}

// ListByRequirements returns the candidates satisfying the hard filters:
// every required capability present, sufficient context window, provider
// match when preferred, status available or beta, and local-only providers
// under restricted privacy.
func (r *Registry) ListByRequirements(req *types.Requirements) []*types.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.ModelMetadata, 0, len(r.models))
	for _, m := range r.models {
		if !m.HasAllCapabilities(req.Capabilities) {
			continue
		}
		if m.ContextWindow < req.ContextWindow {
			continue
		}
		if req.PreferredProvider != "" && m.Provider != req.PreferredProvider {
			continue
		}
		if m.Availability.Status != types.StatusAvailable && m.Availability.Status != types.StatusBeta {
			continue
		}
		if req.Privacy == types.PrivacyRestricted && !m.LocalOnly {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// ModelUpdate is a partial metadata update; nil fields are left unchanged.
type ModelUpdate struct {
	DisplayName     *string
	Description     *string
	ContextWindow   *int
	MaxOutputTokens *int
	Capabilities    []types.Capability
	Pricing         *types.Pricing
	Performance     *types.Performance
	Availability    *types.Availability
	Limits          *types.Limits
	LocalOnly       *bool
}

// Update merges the partial update into the stored entry, revalidates, and
// re-indexes. A capability change rewrites the capability index for the
// model in the same critical section so the index never dangles.
func (r *Registry) Update(id string, upd ModelUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.models[id]
	if !ok {
		return types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %q is not registered", id))
	}

	merged := old.Clone()
	if upd.DisplayName != nil {
		merged.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		merged.Description = *upd.Description
	}
	if upd.ContextWindow != nil {
		merged.ContextWindow = *upd.ContextWindow
	}
	if upd.MaxOutputTokens != nil {
		merged.MaxOutputTokens = *upd.MaxOutputTokens
	}
	if upd.Capabilities != nil {
		merged.Capabilities = append([]types.Capability(nil), upd.Capabilities...)
	}
	if upd.Pricing != nil {
		merged.Pricing = *upd.Pricing
	}
	if upd.Performance != nil {
		merged.Performance = *upd.Performance
	}
	if upd.Availability != nil {
		merged.Availability = *upd.Availability
	}
	if upd.Limits != nil {
		merged.Limits = *upd.Limits
	}
	if upd.LocalOnly != nil {
		merged.LocalOnly = *upd.LocalOnly
	}

	if err := merged.Validate(); err != nil {
		return err
	}

	r.unindexLocked(old)
	r.models[id] = merged
	r.indexLocked(merged)

	r.logger.Debug("model updated", zap.String("model", id))
	return nil
}

// SetStatus updates only the availability status of a model, leaving every
// other field untouched. Used by the health prober to demote and restore
// models without a full update. The read-modify-write happens under one
// write lock so a concurrent Update cannot interleave.
func (r *Registry) SetStatus(id string, status types.ModelStatus) error {
	switch status {
	case types.StatusAvailable, types.StatusBeta, types.StatusLimited, types.StatusDeprecated:
	default:
		return types.NewError(types.ErrInvalidMetadata, fmt.Sprintf("unknown status %q", status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[id]
	if !ok {
		return types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %q is not registered", id))
	}
	m.Availability.Status = status

	r.logger.Debug("model status changed",
		zap.String("model", id),
		zap.String("status", string(status)))
	return nil
}

// Remove deletes a model from the main store and both indices.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[id]
	if !ok {
		return types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %q is not registered", id))
	}
	r.unindexLocked(m)
	delete(r.models, id)

	r.logger.Debug("model removed", zap.String("model", id))
	return nil
}

func (r *Registry) indexLocked(m *types.ModelMetadata) {
	if r.byProvider[m.Provider] == nil {
		r.byProvider[m.Provider] = make(map[string]struct{})
	}
	r.byProvider[m.Provider][m.ID] = struct{}{}

	for _, c := range m.Capabilities {
		if r.byCapability[c] == nil {
			r.byCapability[c] = make(map[string]struct{})
		}
		r.byCapability[c][m.ID] = struct{}{}
	}
}

func (r *Registry) unindexLocked(m *types.ModelMetadata) {
	if ids := r.byProvider[m.Provider]; ids != nil {
		delete(ids, m.ID)
		if len(ids) == 0 {
			delete(r.byProvider, m.Provider)
		}
	}
	for _, c := range m.Capabilities {
		if ids := r.byCapability[c]; ids != nil {
			delete(ids, m.ID)
			if len(ids) == 0 {
				delete(r.byCapability, c)
			}
		}
	}
}

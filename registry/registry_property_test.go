package registry

import (
	"fmt"
	"testing"

	"github.com/vaamx/modelmux/types"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// Property: after any sequence of register/update/remove operations, every
// id in the capability index points at a stored model declaring that
// capability, and conversely every stored model appears in the index for
// each of its capabilities.
func TestRegistry_IndexConsistencyProperty(t *testing.T) {
	capPool := []types.Capability{
		types.CapChat, types.CapEmbedding, types.CapVision,
		types.CapToolCalling, types.CapCodeGeneration,
	}

	rapid.Check(t, func(t *rapid.T) {
		r := New(zap.NewNop())
		ids := []string{"m0", "m1", "m2", "m3"}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(t, fmt.Sprintf("id%d", i))
			op := rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("op%d", i))

			caps := rapid.SliceOfNDistinct(rapid.SampledFrom(capPool), 1, len(capPool),
				func(c types.Capability) types.Capability { return c }).
				Draw(t, fmt.Sprintf("caps%d", i))

			switch op {
			case 0:
				m := &types.ModelMetadata{
					ID:            id,
					Provider:      rapid.SampledFrom([]string{"p1", "p2"}).Draw(t, fmt.Sprintf("prov%d", i)),
					Name:          id,
					ContextWindow: 4096,
					Capabilities:  caps,
					Availability:  types.Availability{Status: types.StatusAvailable},
				}
				if err := r.Register(m); err != nil {
					t.Fatalf("register: %v", err)
				}
			case 1:
				_ = r.Update(id, ModelUpdate{Capabilities: caps})
			case 2:
				_ = r.Remove(id)
			}
		}

		// index -> store
		for _, c := range capPool {
			for _, m := range r.ListByCapability(c) {
				if !m.HasCapability(c) {
					t.Fatalf("index lists %s under %s but metadata lacks it", m.ID, c)
				}
			}
		}
		// store -> index
		for _, m := range r.List() {
			for _, c := range m.Capabilities {
				found := false
				for _, im := range r.ListByCapability(c) {
					if im.ID == m.ID {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("model %s declares %s but index misses it", m.ID, c)
				}
			}
		}
	})
}

package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaamx/modelmux/provider"
	"github.com/vaamx/modelmux/registry"
	"github.com/vaamx/modelmux/types"
)

// flakyProvider reports availability from an atomic flag.
type flakyProvider struct {
	*mockProvider
	up atomic.Bool
}

func (f *flakyProvider) IsAvailable(context.Context) bool { return f.up.Load() }

func TestProber_DemotesAndRestores(t *testing.T) {
	reg := registry.New(zap.NewNop())
	require.NoError(t, reg.Register(testModel("m1", 0.1, 500, types.CapChat)))

	flaky := &flakyProvider{mockProvider: newMockProvider()}
	flaky.up.Store(true)

	p := newProber(reg, map[string]provider.Provider{"test": flaky}, time.Hour, zap.NewNop())

	// 直接驱动探测,不依赖 ticker 时序
	p.probe(context.Background())
	m, err := reg.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAvailable, m.Availability.Status)

	flaky.up.Store(false)
	p.probe(context.Background())
	m, err = reg.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLimited, m.Availability.Status)

	// 恢复后状态还原
	flaky.up.Store(true)
	p.probe(context.Background())
	m, err = reg.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAvailable, m.Availability.Status)
}

func TestProber_RestoresPriorStatus(t *testing.T) {
	reg := registry.New(zap.NewNop())

	beta := testModel("m-beta", 0.1, 500, types.CapChat)
	beta.Availability.Status = types.StatusBeta
	require.NoError(t, reg.Register(beta))

	deprecated := testModel("m-deprecated", 0.1, 500, types.CapChat)
	deprecated.Availability.Status = types.StatusDeprecated
	require.NoError(t, reg.Register(deprecated))

	flaky := &flakyProvider{mockProvider: newMockProvider()}
	flaky.up.Store(true)

	p := newProber(reg, map[string]provider.Provider{"test": flaky}, time.Hour, zap.NewNop())
	p.probe(context.Background())

	// 宕机:beta 降级,deprecated 不动
	flaky.up.Store(false)
	p.probe(context.Background())

	m, err := reg.Get("m-beta")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLimited, m.Availability.Status)

	m, err = reg.Get("m-deprecated")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeprecated, m.Availability.Status)

	// 恢复:回到宕机前的状态,而不是一律 available
	flaky.up.Store(true)
	p.probe(context.Background())

	m, err = reg.Get("m-beta")
	require.NoError(t, err)
	assert.Equal(t, types.StatusBeta, m.Availability.Status)

	m, err = reg.Get("m-deprecated")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeprecated, m.Availability.Status)
}

func TestProber_StartStop(t *testing.T) {
	reg := registry.New(zap.NewNop())
	flaky := &flakyProvider{mockProvider: newMockProvider()}
	flaky.up.Store(true)

	p := newProber(reg, map[string]provider.Provider{"test": flaky}, 5*time.Millisecond, zap.NewNop())
	p.start()
	time.Sleep(20 * time.Millisecond)
	p.stop() // must not hang or panic
}

package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	badgerconfig "github.com/weisyn/chainruntime/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/chainruntime/internal/config/storage/memory"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

type executeFunc func(ctx context.Context, env *types.RuntimeEnvironment, codePath string, inputs types.ExecutionInputs) (*types.ExecutionResult, error)

// fakeBackend 可编排行为的执行后端
type fakeBackend struct {
	mu         sync.Mutex
	available  bool
	createErr  error
	destroyErr error
	execute    executeFunc

	created   int
	destroyed []string
	executed  atomic.Int32
	inflight  atomic.Int32
	peak      atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{available: true}
}

var _ runtime.BlockchainRuntime = (*fakeBackend)(nil)

func (b *fakeBackend) BlockchainID() string { return "fake" }

func (b *fakeBackend) CreateEnvironment(_ context.Context, _ types.RuntimeConfig) (*types.RuntimeEnvironment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.created++
	return &types.RuntimeEnvironment{
		EnvironmentID: fmt.Sprintf("env-%d", b.created),
		BlockchainID:  "fake",
		RuntimeType:   types.RuntimeInMemory,
		EndpointURL:   "memory://fake",
		State:         types.EnvironmentReady,
	}, nil
}

func (b *fakeBackend) Execute(ctx context.Context, env *types.RuntimeEnvironment, codePath string, inputs types.ExecutionInputs) (*types.ExecutionResult, error) {
	b.executed.Add(1)
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if b.execute != nil {
		return b.execute(ctx, env, codePath, inputs)
	}
	result := types.NewExecutionResult(runtime.ExecutionIDFromContext(ctx))
	result.Success = true
	result.ReturnValue = "ok"
	runtime.MonitorFromContext(ctx).ConsumeGas(21000)
	return result, nil
}

func (b *fakeBackend) DeployContract(_ context.Context, env *types.RuntimeEnvironment, bytecode, _ []byte) (string, error) {
	if len(bytecode) == 0 {
		return "", fmt.Errorf("empty bytecode")
	}
	return "0x" + env.EnvironmentID, nil
}

func (b *fakeBackend) CallFunction(_ context.Context, _ *types.RuntimeEnvironment, address, function string, _ []byte) ([]byte, error) {
	if address == "" {
		return nil, runtime.WrapContractNotFoundError(address)
	}
	return []byte(function), nil
}

func (b *fakeBackend) MetricsDefinition() []types.RuntimeMetricDefinition {
	return []types.RuntimeMetricDefinition{{Name: "gas_used", Unit: "gas", MetricType: types.MetricGas}}
}

func (b *fakeBackend) Monitor(_ context.Context, _ *types.RuntimeEnvironment, executionID string) ([]types.RuntimeEvent, error) {
	return []types.RuntimeEvent{{EventID: "e1", EventType: "log", ExecutionID: executionID}}, nil
}

func (b *fakeBackend) Destroy(_ context.Context, env *types.RuntimeEnvironment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyErr != nil {
		return b.destroyErr
	}
	b.destroyed = append(b.destroyed, env.EnvironmentID)
	return nil
}

func (b *fakeBackend) IsAvailable(context.Context) bool { return b.available }

func (b *fakeBackend) Capabilities() types.RuntimeCapabilities {
	return types.DefaultRuntimeCapabilities()
}

// newTestResultStore 内存模式的结果库与热缓存
func newTestResultStore(t *testing.T) *ResultStore {
	t.Helper()
	cold, err := badger.New(&badgerconfig.BadgerOptions{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cold.Close() })

	cacheOpts := memoryconfig.New(nil)
	cacheOpts.Shards = 8
	cacheOpts.HardMaxCacheSizeMB = 1
	hot, err := memory.New(cacheOpts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hot.Close() })

	return NewResultStore(cold, hot, nil)
}

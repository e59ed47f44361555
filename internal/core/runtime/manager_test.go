package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/chainruntime/internal/core/engines/codepath"
	eventimpl "github.com/weisyn/chainruntime/internal/core/infrastructure/event"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/metrics"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

func newTestManager(t *testing.T, backend *fakeBackend, opts ...Option) *Manager {
	t.Helper()
	base := []Option{WithHostMemory(func() uint64 { return 64 << 30 })}
	m, err := NewManager(backend, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func createReady(t *testing.T, m *Manager, cfg types.RuntimeConfig) string {
	t.Helper()
	env, err := m.CreateEnvironment(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, types.EnvironmentReady, env.State)
	return env.EnvironmentID
}

func stateOf(t *testing.T, m *Manager, envID string) types.EnvironmentState {
	t.Helper()
	env, err := m.Environment(envID)
	require.NoError(t, err)
	return env.State
}

func mainInputs(sender string) types.ExecutionInputs {
	return types.ExecutionInputs{
		TargetFunction: "main",
		Context:        types.InvocationContext{Sender: sender},
	}
}

// ============================================================================
// 生命周期测试
// ============================================================================

// TestManager_Lifecycle 创建 -> 执行 -> 销毁 -> 重复销毁
func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)

	envID := createReady(t, m, types.DefaultRuntimeConfig())
	assert.Equal(t, "fake", m.BlockchainID())
	assert.True(t, m.IsAvailable(ctx))

	result, err := m.Execute(ctx, envID, "contract.wasm", mainInputs("alice"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))

	ids, err := m.Executions(envID)
	require.NoError(t, err)
	assert.Equal(t, []string{result.ExecutionID}, ids)

	require.NoError(t, m.Destroy(ctx, envID))
	assert.Equal(t, types.EnvironmentStopped, stateOf(t, m, envID))
	assert.Equal(t, []string{envID}, backend.destroyed)

	err = m.Destroy(ctx, envID)
	assert.ErrorIs(t, err, ErrEnvironmentDestroyed)

	_, err = m.Execute(ctx, envID, "contract.wasm", mainInputs("alice"))
	assert.ErrorIs(t, err, ErrEnvironmentDestroyed)
	assert.Len(t, backend.destroyed, 1, "重复销毁不应再次调用后端")
}

// TestManager_CreateEnvironment_Rejects 无效配置与不可用后端
func TestManager_CreateEnvironment_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid config", func(t *testing.T) {
		m := newTestManager(t, newFakeBackend())
		cfg := types.DefaultRuntimeConfig()
		cfg.TimeoutSeconds = 0
		_, err := m.CreateEnvironment(ctx, cfg)
		assert.ErrorIs(t, err, types.ErrInvalidRuntimeConfig)
		assert.Empty(t, m.Environments())
	})

	t.Run("backend unavailable", func(t *testing.T) {
		backend := newFakeBackend()
		backend.available = false
		m := newTestManager(t, backend)
		_, err := m.CreateEnvironment(ctx, types.DefaultRuntimeConfig())
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.Empty(t, m.Environments())
	})

	t.Run("unknown environment", func(t *testing.T) {
		m := newTestManager(t, newFakeBackend())
		_, err := m.Execute(ctx, "nope", "x", mainInputs("alice"))
		assert.ErrorIs(t, err, ErrEnvironmentNotFound)
	})
}

// TestManager_CreateEnvironment_BackendFailure 后端创建失败时环境以 Error 状态登记
func TestManager_CreateEnvironment_BackendFailure(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.createErr = errors.New("docker daemon not reachable")
	m := newTestManager(t, backend)

	env, err := m.CreateEnvironment(ctx, types.DefaultRuntimeConfig())
	require.ErrorIs(t, err, ErrEnvironmentCreationFailed)
	require.NotNil(t, env)
	assert.Equal(t, types.EnvironmentError, env.State)
	assert.NotEmpty(t, env.EnvironmentID)

	_, err = m.Execute(ctx, env.EnvironmentID, "x", mainInputs("alice"))
	assert.ErrorIs(t, err, ErrEnvironmentNotReady)

	require.NoError(t, m.Destroy(ctx, env.EnvironmentID))
	assert.Equal(t, types.EnvironmentStopped, stateOf(t, m, env.EnvironmentID))
	assert.Empty(t, backend.destroyed, "后端未创建的环境销毁时不调用后端")
}

// TestManager_DestroyFailure 后端销毁失败时环境进入 Error，之后可再次销毁
func TestManager_DestroyFailure(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	backend.destroyErr = errors.New("container stuck")
	require.Error(t, m.Destroy(ctx, envID))
	assert.Equal(t, types.EnvironmentError, stateOf(t, m, envID))

	backend.destroyErr = nil
	require.NoError(t, m.Destroy(ctx, envID))
	assert.Equal(t, types.EnvironmentStopped, stateOf(t, m, envID))
}

// TestManager_DestroyReleasedByBackend 后端重试时已不认识该环境，视为已释放
func TestManager_DestroyReleasedByBackend(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	backend.destroyErr = errors.New("runtime busy")
	require.Error(t, m.Destroy(ctx, envID))
	assert.Equal(t, types.EnvironmentError, stateOf(t, m, envID))

	backend.destroyErr = runtime.WrapUnknownEnvironmentError(envID)
	require.NoError(t, m.Destroy(ctx, envID))
	assert.Equal(t, types.EnvironmentStopped, stateOf(t, m, envID))
	assert.ErrorIs(t, m.Destroy(ctx, envID), ErrEnvironmentDestroyed)
}

// ============================================================================
// 安全执行测试
// ============================================================================

// TestManager_ExecuteSecure_Reentrancy 后端重入入口函数，结果携带Critical违规但功能上成功
func TestManager_ExecuteSecure_Reentrancy(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.execute = func(ctx context.Context, _ *types.RuntimeEnvironment, _ string, inputs types.ExecutionInputs) (*types.ExecutionResult, error) {
		mon := runtime.MonitorFromContext(ctx)
		mon.EnterFunction(inputs.TargetFunction, "attacker")
		mon.ExitFunction()
		result := types.NewExecutionResult(runtime.ExecutionIDFromContext(ctx))
		result.Success = true
		return result, nil
	}
	store := newTestResultStore(t)
	m := newTestManager(t, backend, WithResultStore(store))
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	inputs := types.ExecutionInputs{TargetFunction: "withdraw", Context: types.InvocationContext{Sender: "alice"}}
	result, err := m.ExecuteSecure(ctx, envID, "bank.wasm", inputs)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.HasCriticalViolations())
	require.Len(t, result.SecurityViolations, 1)
	assert.Equal(t, types.ViolationReentrancyAttack, result.SecurityViolations[0].Type)
	assert.Equal(t, result.SecurityContext.SecurityViolations, result.SecurityViolations)
	assert.Equal(t, uint32(2), result.SecurityContext.PeakCallDepth)
	assert.Equal(t, uint32(0), result.SecurityContext.CallDepth)

	report, err := m.GetSecurityReport(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, envID, report.EnvironmentID)
	require.NotNil(t, report.HighestSeverity)
	assert.Equal(t, types.SeverityCritical, *report.HighestSeverity)
	assert.Equal(t, 1, report.CountByType[types.ViolationReentrancyAttack])

	stored, err := m.ExecutionResult(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, result.ExecutionID, stored.ExecutionID)

	// 销毁后历史仍可从结果库查询
	require.NoError(t, m.Destroy(ctx, envID))
	history, err := m.ExecutionHistory(ctx, envID)
	require.NoError(t, err)
	assert.Equal(t, []string{result.ExecutionID}, history)
}

// TestManager_AbortOnCritical Critical违规取消执行上下文
func TestManager_AbortOnCritical(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.execute = func(ctx context.Context, _ *types.RuntimeEnvironment, _ string, inputs types.ExecutionInputs) (*types.ExecutionResult, error) {
		runtime.MonitorFromContext(ctx).EnterFunction(inputs.TargetFunction, "attacker")
		result := types.NewExecutionResult(runtime.ExecutionIDFromContext(ctx))
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Success = true
		return result, nil
	}
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())
	inputs := types.ExecutionInputs{TargetFunction: "withdraw", Context: types.InvocationContext{Sender: "alice"}}

	result, err := m.ExecuteSecure(ctx, envID, "bank.wasm", inputs, WithAbortOnCritical(true))
	require.ErrorIs(t, err, ErrExecutionAborted)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.True(t, result.HasCriticalViolations())
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))

	// 未开启中止时照常完成
	result, err = m.ExecuteSecure(ctx, envID, "bank.wasm", inputs)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.HasCriticalViolations())
}

// TestManager_AccessDenied 入口访问控制拒绝时不调用后端
func TestManager_AccessDenied(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	inputs := types.ExecutionInputs{
		TargetFunction: "pause",
		Context:        types.InvocationContext{Sender: "bob", RequiredRole: "admin"},
	}
	result, err := m.ExecuteSecure(ctx, envID, "token.wasm", inputs)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "access denied")
	assert.Equal(t, int32(0), backend.executed.Load())
	require.Len(t, result.SecurityViolations, 1)
	assert.Equal(t, types.ViolationAccessControl, result.SecurityViolations[0].Type)
	assert.Equal(t, types.SeverityMedium, result.SecurityViolations[0].Severity)
	require.Len(t, result.SecurityContext.AccessControlChecks, 1)
	assert.False(t, result.SecurityContext.AccessControlChecks[0].HasPermission)

	inputs.Context.Sender = "root_admin"
	result, err = m.ExecuteSecure(ctx, envID, "token.wasm", inputs)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), backend.executed.Load())
}

// TestManager_ExecuteWithoutMonitoring 关闭监控时 Execute 不产生安全上下文
func TestManager_ExecuteWithoutMonitoring(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.execute = func(ctx context.Context, _ *types.RuntimeEnvironment, _ string, inputs types.ExecutionInputs) (*types.ExecutionResult, error) {
		mon := runtime.MonitorFromContext(ctx)
		mon.EnterFunction(inputs.TargetFunction, "x")
		mon.EnterFunction(inputs.TargetFunction, "x")
		result := types.NewExecutionResult("")
		result.Success = true
		return result, nil
	}
	m := newTestManager(t, backend)

	cfg, err := types.NewRuntimeConfigFrom(types.TestingConfig(), types.WithSecurityPolicy(types.DefaultSecurityPolicy()))
	require.NoError(t, err)
	envID := createReady(t, m, cfg)

	result, err := m.Execute(ctx, envID, "x.wasm", mainInputs("alice"))
	require.NoError(t, err)
	assert.False(t, result.HasSecurityViolations())
	assert.NotEmpty(t, result.ExecutionID, "执行ID由管理器分配")

	result, err = m.ExecuteSecure(ctx, envID, "x.wasm", mainInputs("alice"))
	require.NoError(t, err)
	assert.True(t, result.HasCriticalViolations())
}

// TestManager_Cancellation 调用方取消时返回部分结果，环境回到 Ready
func TestManager_Cancellation(t *testing.T) {
	backend := newFakeBackend()
	started := make(chan struct{})
	backend.execute = func(ctx context.Context, _ *types.RuntimeEnvironment, _ string, _ types.ExecutionInputs) (*types.ExecutionResult, error) {
		runtime.MonitorFromContext(ctx).ConsumeGas(500)
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := m.ExecuteSecure(ctx, envID, "loop.wasm", mainInputs("alice"))
	require.ErrorIs(t, err, ErrExecutionCancelled)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, uint64(500), result.SecurityContext.GasUsed, "取消时仍报告部分上下文")
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))
}

// TestManager_UnrecoverableBackend 后端报告环境损坏时环境进入 Error
func TestManager_UnrecoverableBackend(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.execute = func(ctx context.Context, env *types.RuntimeEnvironment, _ string, _ types.ExecutionInputs) (*types.ExecutionResult, error) {
		return nil, runtime.WrapEnvironmentUnrecoverableError(env.EnvironmentID, errors.New("module closed"))
	}
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	result, err := m.Execute(ctx, envID, "x.wasm", mainInputs("alice"))
	require.ErrorIs(t, err, ErrExecutionFailed)
	assert.ErrorIs(t, err, runtime.ErrEnvironmentUnrecoverable)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, types.EnvironmentError, stateOf(t, m, envID))

	_, err = m.Execute(ctx, envID, "x.wasm", mainInputs("alice"))
	assert.ErrorIs(t, err, ErrEnvironmentNotReady)
	require.NoError(t, m.Destroy(ctx, envID))
}

// TestManager_BackendOperationalError 普通操作错误不影响环境状态
func TestManager_BackendOperationalError(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.execute = func(context.Context, *types.RuntimeEnvironment, string, types.ExecutionInputs) (*types.ExecutionResult, error) {
		return nil, errors.New("code path not readable")
	}
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	result, err := m.Execute(ctx, envID, "missing.wasm", mainInputs("alice"))
	require.ErrorIs(t, err, ErrExecutionFailed)
	assert.Equal(t, "code path not readable", result.Error)
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))
}

// TestManager_CodeRoot 代码根目录之外的路径在调用后端前被拒绝
func TestManager_CodeRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	inside := filepath.Join(root, "contract.wasm")
	require.NoError(t, os.WriteFile(inside, []byte("code"), 0o600))
	outside := filepath.Join(t.TempDir(), "contract.wasm")
	require.NoError(t, os.WriteFile(outside, []byte("code"), 0o600))
	realInside, err := filepath.EvalSymlinks(inside)
	require.NoError(t, err)

	var seen []string
	backend := newFakeBackend()
	backend.execute = func(_ context.Context, _ *types.RuntimeEnvironment, codePath string, _ types.ExecutionInputs) (*types.ExecutionResult, error) {
		seen = append(seen, codePath)
		result := types.NewExecutionResult("")
		result.Success = true
		return result, nil
	}
	m := newTestManager(t, backend, WithCodeRoot(root))
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	result, err := m.ExecuteSecure(ctx, envID, "contract.wasm", mainInputs("alice"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{realInside}, seen, "后端收到解析后的真实路径")

	for _, path := range []string{outside, "../" + filepath.Base(filepath.Dir(outside)) + "/contract.wasm"} {
		result, err := m.Execute(ctx, envID, path, mainInputs("alice"))
		assert.ErrorIs(t, err, codepath.ErrOutsideCodeRoot, path)
		assert.Nil(t, result)
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))

	ids, err := m.Executions(envID)
	require.NoError(t, err)
	assert.Len(t, ids, 1, "被拒绝的路径不产生执行记录")
}

// TestManager_SerializesExecutions 同一环境的并发执行被串行化
func TestManager_SerializesExecutions(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := m.Execute(ctx, envID, "x.wasm", mainInputs("alice"))
			if assert.NoError(t, err) {
				ids <- result.ExecutionID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, workers, "每次执行一个结果且ID唯一")
	assert.Equal(t, int32(1), backend.peak.Load())
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))
}

// ============================================================================
// 部署、调用与便捷检查
// ============================================================================

// TestManager_DeployAndCall 部署与调用经过 Running 并回到 Ready
func TestManager_DeployAndCall(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newFakeBackend())
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	address, err := m.DeployContract(ctx, envID, []byte{0x00, 0x61, 0x73, 0x6d}, nil)
	require.NoError(t, err)
	assert.Equal(t, "0x"+envID, address)

	out, err := m.CallFunction(ctx, envID, address, "balance", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("balance"), out)

	_, err = m.CallFunction(ctx, envID, "", "balance", nil)
	assert.ErrorIs(t, err, runtime.ErrContractNotFound)
	assert.Equal(t, types.EnvironmentReady, stateOf(t, m, envID))

	events, err := m.Monitor(ctx, envID, "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "exec-1", events[0].ExecutionID)
}

// TestManager_SecurityChecks 环境级便捷检查使用环境自身的策略
func TestManager_SecurityChecks(t *testing.T) {
	m := newTestManager(t, newFakeBackend())
	strictID := createReady(t, m, types.ProductionConfig())
	devID := createReady(t, m, types.LocalDevelopmentConfig())

	v, err := m.CheckReentrancy(strictID, "a", "alice", []string{"a", "b", "a"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.SeverityCritical, v.Severity)

	v, err = m.CheckReentrancy(devID, "a", "alice", []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Nil(t, v, "宽松策略关闭重入保护")

	v, err = m.DetectOverflow(strictID, "+", []int64{1<<63 - 1, 1})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.ViolationIntegerOverflow, v.Type)

	permitted, v, err := m.VerifyAccessControl(strictID, "pause", "bob", "admin")
	require.NoError(t, err)
	assert.False(t, permitted)
	require.NotNil(t, v)

	violations, err := m.EnforceResourceLimits(strictID, 2_000_000, 1, 101, 11)
	require.NoError(t, err)
	assert.Len(t, violations, 3)

	_, err = m.EnforceResourceLimits("missing", 0, 0, 0, 0)
	assert.ErrorIs(t, err, ErrEnvironmentNotFound)
}

// TestManager_ReportWithoutStore 未配置结果库时报告不可查询
func TestManager_ReportWithoutStore(t *testing.T) {
	m := newTestManager(t, newFakeBackend())
	_, err := m.GetSecurityReport(context.Background(), "exec-1")
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = m.ExecutionHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEnvironmentNotFound, "无结果库时退回内存记录")
}

// ============================================================================
// 事件与指标
// ============================================================================

// TestManager_EventsAndMetrics 状态变更、执行完成与违规事件
func TestManager_EventsAndMetrics(t *testing.T) {
	ctx := context.Background()
	bus := eventimpl.New(nil, nil)
	registry := prometheus.NewRegistry()
	rm := metrics.NewRuntimeMetrics(registry)

	var (
		mu          sync.Mutex
		transitions []types.EnvironmentState
		violations  []types.ViolationType
	)
	require.NoError(t, bus.Subscribe(event.EventTypeEnvironmentStateChanged, func(e event.EnvironmentStateChanged) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, e.To)
	}))
	require.NoError(t, bus.Subscribe(event.EventTypeSecurityViolation, func(e event.SecurityViolationDetected) {
		mu.Lock()
		defer mu.Unlock()
		violations = append(violations, e.Violation.Type)
	}))

	backend := newFakeBackend()
	backend.execute = func(ctx context.Context, _ *types.RuntimeEnvironment, _ string, _ types.ExecutionInputs) (*types.ExecutionResult, error) {
		runtime.MonitorFromContext(ctx).CheckArithmetic("*", 1<<62, 4)
		result := types.NewExecutionResult("")
		result.Success = true
		return result, nil
	}
	fixed := time.Unix(1_700_000_000, 0)
	m := newTestManager(t, backend, WithEventBus(bus), WithMetrics(rm), WithClock(func() time.Time { return fixed }))

	envID := createReady(t, m, types.DefaultRuntimeConfig())
	_, err := m.ExecuteSecure(ctx, envID, "x.wasm", mainInputs("alice"))
	require.NoError(t, err)
	require.NoError(t, m.Destroy(ctx, envID))

	mu.Lock()
	assert.Equal(t, []types.EnvironmentState{
		types.EnvironmentReady,
		types.EnvironmentRunning,
		types.EnvironmentReady,
		types.EnvironmentStopped,
	}, transitions)
	assert.Equal(t, []types.ViolationType{types.ViolationIntegerOverflow}, violations)
	mu.Unlock()

	completed := bus.History(event.EventTypeExecutionCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].(event.ExecutionCompleted).Success)

	count, err := testutil.GatherAndCount(registry, "chainruntime_security_violations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestManager_BackendViolationsObserved 后端上报的沙箱违规同样计入指标并发布事件
func TestManager_BackendViolationsObserved(t *testing.T) {
	ctx := context.Background()
	bus := eventimpl.New(nil, nil)
	registry := prometheus.NewRegistry()
	rm := metrics.NewRuntimeMetrics(registry)

	var (
		mu         sync.Mutex
		violations []types.ViolationType
	)
	require.NoError(t, bus.Subscribe(event.EventTypeSecurityViolation, func(e event.SecurityViolationDetected) {
		mu.Lock()
		defer mu.Unlock()
		violations = append(violations, e.Violation.Type)
	}))

	backend := newFakeBackend()
	backend.execute = func(ctx context.Context, _ *types.RuntimeEnvironment, _ string, _ types.ExecutionInputs) (*types.ExecutionResult, error) {
		result := types.NewExecutionResult(runtime.ExecutionIDFromContext(ctx))
		result.AddSecurityViolation(types.SecurityViolation{
			Type:        types.ViolationSandbox,
			Description: "Sandbox denies import wasi.fd_write",
			Severity:    types.SeverityHigh,
			Context:     map[string]string{"module": "wasi", "function": "fd_write"},
		})
		result.Fail("Sandbox denies import wasi.fd_write")
		return result, nil
	}
	m := newTestManager(t, backend, WithEventBus(bus), WithMetrics(rm))
	envID := createReady(t, m, types.DefaultRuntimeConfig())

	result, err := m.ExecuteSecure(ctx, envID, "x.wasm", mainInputs("alice"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.SecurityViolations, 1)
	assert.Equal(t, types.ViolationSandbox, result.SecurityViolations[0].Type)
	assert.Equal(t, result.SecurityContext.SecurityViolations, result.SecurityViolations)

	mu.Lock()
	assert.Equal(t, []types.ViolationType{types.ViolationSandbox}, violations)
	mu.Unlock()

	count, err := testutil.GatherAndCount(registry, "chainruntime_security_violations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestManager_Close 停止时销毁所有存活环境
func TestManager_Close(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)
	first := createReady(t, m, types.DefaultRuntimeConfig())
	second := createReady(t, m, types.DefaultRuntimeConfig())
	require.NoError(t, m.Destroy(ctx, first))

	require.NoError(t, m.Close(ctx))
	assert.Equal(t, types.EnvironmentStopped, stateOf(t, m, second))
	assert.ElementsMatch(t, []string{first, second}, backend.destroyed)
}

// Package runtime 实现执行环境的生命周期管理
//
// Manager 位于调用方与执行后端（BlockchainRuntime）之间：
//   - 维护环境状态机 Creating -> Ready -> Running -> Stopped（任一非终态可转入 Error）
//   - 每个环境同一时刻只允许一个执行，由环境级互斥锁串行化
//   - 安全执行时为每次执行新建 security.Monitor 并经 context 交给后端
//   - 执行结果写入结果库，状态变更、执行完成与安全违规经事件总线发布
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weisyn/chainruntime/internal/core/engines/codepath"
	logimpl "github.com/weisyn/chainruntime/internal/core/infrastructure/log"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/metrics"
	"github.com/weisyn/chainruntime/internal/core/security"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// Manager 执行环境生命周期管理器
type Manager struct {
	// ==================== 依赖 ====================

	backend    runtime.BlockchainRuntime
	authorizer runtime.Authorizer
	logger     log.Logger
	bus        event.EventBus
	metrics    *metrics.RuntimeMetrics
	results    *ResultStore

	// ==================== 行为开关 ====================

	// abortOnCritical 未显式指定时，出现Critical违规是否中止执行
	abortOnCritical bool

	// codeRoot 非空时代码路径必须解析到该目录之下
	codeRoot string

	now        func() time.Time
	hostMemory func() uint64

	// ==================== 环境表 ====================

	mu   sync.RWMutex
	envs map[string]*environment
}

// environment 已登记的环境
type environment struct {
	// execMu 串行化执行、部署、调用与销毁
	execMu sync.Mutex

	// mu 保护 env.State、destroyed 与 executions
	mu         sync.RWMutex
	env        types.RuntimeEnvironment
	config     types.RuntimeConfig
	validator  *security.Validator
	destroyed  bool
	orphan     bool // 后端从未成功创建，销毁时无需通知后端
	executions []string
}

func (e *environment) snapshot() types.RuntimeEnvironment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.env.Clone()
}

// ==================== 选项 ====================

// Option 管理器选项
type Option func(*Manager)

// WithAuthorizer 注入访问控制判定
func WithAuthorizer(a runtime.Authorizer) Option {
	return func(m *Manager) {
		if a != nil {
			m.authorizer = a
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.With("module", "runtime")
		}
	}
}

// WithEventBus 设置事件总线
func WithEventBus(bus event.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithMetrics 设置指标
func WithMetrics(rm *metrics.RuntimeMetrics) Option {
	return func(m *Manager) { m.metrics = rm }
}

// WithResultStore 设置结果库；未设置时不保存结果，安全报告不可查询
func WithResultStore(store *ResultStore) Option {
	return func(m *Manager) { m.results = store }
}

// WithDefaultAbortOnCritical 设置Critical违规中止的默认值
func WithDefaultAbortOnCritical(enabled bool) Option {
	return func(m *Manager) { m.abortOnCritical = enabled }
}

// WithCodeRoot 限制执行可读取的代码目录；为空时不限制
func WithCodeRoot(root string) Option {
	return func(m *Manager) { m.codeRoot = root }
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHostMemory 替换主机内存探测（测试用）
func WithHostMemory(fn func() uint64) Option {
	return func(m *Manager) {
		if fn != nil {
			m.hostMemory = fn
		}
	}
}

// ExecuteOption 单次执行选项
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	abortOnCritical bool
}

// WithAbortOnCritical 出现Critical违规时取消执行上下文并返回 ErrExecutionAborted
func WithAbortOnCritical(enabled bool) ExecuteOption {
	return func(o *executeOptions) { o.abortOnCritical = enabled }
}

// NewManager 创建管理器
func NewManager(backend runtime.BlockchainRuntime, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("runtime manager: backend is required")
	}
	m := &Manager{
		backend:    backend,
		authorizer: security.PlaceholderAuthorizer{},
		logger:     logimpl.NewNop(),
		now:        time.Now,
		hostMemory: metrics.HostMemory,
		envs:       make(map[string]*environment),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ==================== 访问器 ====================

// BlockchainID 后端链标识
func (m *Manager) BlockchainID() string { return m.backend.BlockchainID() }

// Capabilities 后端能力声明
func (m *Manager) Capabilities() types.RuntimeCapabilities { return m.backend.Capabilities() }

// MetricsDefinition 后端指标定义
func (m *Manager) MetricsDefinition() []types.RuntimeMetricDefinition {
	return m.backend.MetricsDefinition()
}

// IsAvailable 后端是否可用
func (m *Manager) IsAvailable(ctx context.Context) bool { return m.backend.IsAvailable(ctx) }

// Environment 返回环境描述的副本
func (m *Manager) Environment(envID string) (*types.RuntimeEnvironment, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	env := e.snapshot()
	return &env, nil
}

// Environments 列出全部已登记环境（按ID排序），包括已销毁的
func (m *Manager) Environments() []types.RuntimeEnvironment {
	m.mu.RLock()
	list := make([]*environment, 0, len(m.envs))
	for _, e := range m.envs {
		list = append(list, e)
	}
	m.mu.RUnlock()

	out := make([]types.RuntimeEnvironment, 0, len(list))
	for _, e := range list {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnvironmentID < out[j].EnvironmentID })
	return out
}

// EnvironmentConfig 返回环境使用的配置
func (m *Manager) EnvironmentConfig(envID string) (types.RuntimeConfig, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return types.RuntimeConfig{}, err
	}
	return e.config.Clone(), nil
}

// Executions 返回环境内已完成执行的ID（按执行顺序）
func (m *Manager) Executions(envID string) ([]string, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string{}, e.executions...), nil
}

// ==================== 环境生命周期 ====================

// CreateEnvironment 按配置创建环境
//
// 成功时环境处于 Ready；后端创建失败时环境以 Error 状态登记，
// 同时返回环境描述与包装 ErrEnvironmentCreationFailed 的错误。
func (m *Manager) CreateEnvironment(ctx context.Context, config types.RuntimeConfig) (*types.RuntimeEnvironment, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !m.backend.IsAvailable(ctx) {
		return nil, WrapBackendUnavailableError(m.backend.BlockchainID())
	}
	if host := m.hostMemory(); metrics.ExceedsHostMemory(config.MemoryLimitMB, host) {
		m.logger.Warnf("memory limit %dMB exceeds host memory %d bytes", config.MemoryLimitMB, host)
	}

	validator, err := security.NewValidator(config.Security,
		security.WithAuthorizer(m.authorizer),
		security.WithClock(m.now),
		security.WithLogger(m.logger),
	)
	if err != nil {
		return nil, err
	}

	created, backendErr := m.backend.CreateEnvironment(ctx, config.Clone())
	if backendErr == nil && created == nil {
		backendErr = fmt.Errorf("backend returned no environment")
	}

	e := &environment{config: config.Clone(), validator: validator}
	if backendErr != nil {
		e.orphan = true
		e.env = types.RuntimeEnvironment{
			EnvironmentID: uuid.NewString(),
			BlockchainID:  m.backend.BlockchainID(),
			State:         types.EnvironmentCreating,
		}
	} else {
		e.env = created.Clone()
		if e.env.EnvironmentID == "" {
			e.env.EnvironmentID = uuid.NewString()
		}
		e.env.State = types.EnvironmentCreating
	}
	envID := e.env.EnvironmentID

	m.mu.Lock()
	if _, exists := m.envs[envID]; exists {
		m.mu.Unlock()
		if backendErr == nil {
			_ = m.backend.Destroy(ctx, &e.env)
		}
		return nil, WrapEnvironmentCreationFailedError(envID, fmt.Errorf("duplicate environment id"))
	}
	m.envs[envID] = e
	m.mu.Unlock()
	m.metrics.EnvironmentTransition("", types.EnvironmentCreating)

	if backendErr != nil {
		m.logger.Errorf("create environment failed: env=%s err=%v", envID, backendErr)
		_ = m.transition(e, types.EnvironmentError, backendErr.Error())
		env := e.snapshot()
		return &env, WrapEnvironmentCreationFailedError(envID, backendErr)
	}
	if err := m.transition(e, types.EnvironmentReady, "created"); err != nil {
		return nil, err
	}
	m.logger.Infof("environment created: env=%s blockchain=%s %s", envID, e.env.BlockchainID, config.Describe())
	env := e.snapshot()
	return &env, nil
}

// Destroy 销毁环境，Stopped 为终态；重复销毁返回 ErrEnvironmentDestroyed
func (m *Manager) Destroy(ctx context.Context, envID string) error {
	e, err := m.lookup(envID)
	if err != nil {
		return err
	}
	e.execMu.Lock()
	defer e.execMu.Unlock()

	e.mu.RLock()
	destroyed, orphan := e.destroyed, e.orphan
	e.mu.RUnlock()
	if destroyed {
		return WrapEnvironmentDestroyedError(envID)
	}

	if !orphan {
		env := e.snapshot()
		err := m.backend.Destroy(ctx, &env)
		if errors.Is(err, runtime.ErrUnknownEnvironment) {
			// 后端已不再持有该环境，按已释放处理
			m.logger.Warnf("backend no longer knows environment %s, treating as released", envID)
			err = nil
		}
		if err != nil {
			if e.snapshot().State != types.EnvironmentError {
				_ = m.transition(e, types.EnvironmentError, err.Error())
			}
			return fmt.Errorf("destroy environment %s: %w", envID, err)
		}
	}

	if err := m.transition(e, types.EnvironmentStopped, "destroyed"); err != nil {
		return err
	}
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
	m.logger.Infof("environment destroyed: env=%s", envID)
	return nil
}

// Close 销毁所有未销毁的环境
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, env := range m.Environments() {
		if env.State.IsTerminal() {
			continue
		}
		if err := m.Destroy(ctx, env.EnvironmentID); err != nil && !errors.Is(err, ErrEnvironmentDestroyed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ==================== 执行 ====================

// Execute 执行代码
//
// 环境配置开启监控时等同于 ExecuteSecure，否则不做安全监控。
func (m *Manager) Execute(ctx context.Context, envID, codePath string, inputs types.ExecutionInputs, opts ...ExecuteOption) (*types.ExecutionResult, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, e, codePath, inputs, e.config.EnableMonitoring, opts)
}

// ExecuteSecure 在安全监控下执行代码
//
// 入口先做访问控制，拒绝时不调用后端，返回 Success=false 的结果。
// 结果中的安全上下文来自本次执行新建的 Monitor。
func (m *Manager) ExecuteSecure(ctx context.Context, envID, codePath string, inputs types.ExecutionInputs, opts ...ExecuteOption) (*types.ExecutionResult, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, e, codePath, inputs, true, opts)
}

func (m *Manager) run(ctx context.Context, e *environment, codePath string, inputs types.ExecutionInputs, monitored bool, opts []ExecuteOption) (*types.ExecutionResult, error) {
	eo := executeOptions{abortOnCritical: m.abortOnCritical}
	for _, opt := range opts {
		opt(&eo)
	}

	// 越界路径在进入环境状态机之前拒绝，不产生执行记录
	if m.codeRoot != "" {
		resolved, err := codepath.ResolveWithin(m.codeRoot, codePath)
		if err != nil {
			return nil, fmt.Errorf("execute in %s: %w", e.env.EnvironmentID, err)
		}
		codePath = resolved
	}

	e.execMu.Lock()
	defer e.execMu.Unlock()
	if err := m.begin(e); err != nil {
		return nil, err
	}

	envID := e.env.EnvironmentID
	execID := uuid.NewString()
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	runCtx = runtime.WithExecutionID(runCtx, execID)

	var monitor *security.Monitor
	if monitored {
		monitor = security.NewMonitor(e.validator, security.OnViolation(func(v types.SecurityViolation) {
			m.metrics.ObserveViolation(v)
			m.publish(event.EventTypeSecurityViolation, event.SecurityViolationDetected{
				EnvironmentID: envID,
				ExecutionID:   execID,
				Violation:     v,
			})
			if eo.abortOnCritical && v.Severity == types.SeverityCritical {
				cancel(WrapExecutionAbortedError(execID, v))
			}
		}))
		runCtx = runtime.WithMonitor(runCtx, monitor)
	}

	start := m.now()
	var (
		result     *types.ExecutionResult
		backendErr error
	)
	if monitor != nil && !monitor.CheckAccess(inputs.TargetFunction, inputs.Context.Sender, inputs.Context.RequiredRole) {
		result = types.NewExecutionResult(execID)
		result.Fail(fmt.Sprintf("access denied: %s lacks role %s for %s",
			inputs.Context.Sender, inputs.Context.RequiredRole, inputs.TargetFunction))
	} else {
		if monitor != nil {
			monitor.EnterFunction(inputs.TargetFunction, inputs.Context.Sender)
		}
		env := e.snapshot()
		result, backendErr = m.backend.Execute(runCtx, &env, codePath, inputs)
		if monitor != nil {
			monitor.ExitFunction()
		}
	}
	elapsed := m.now().Sub(start)

	if result == nil {
		result = types.NewExecutionResult(execID)
	}
	result.ExecutionID = execID
	if result.ExecutionTimeMs == 0 {
		result.SetElapsed(elapsed)
	}
	if monitor != nil {
		// 后端自行检测的违规经监控器记录，与监控点违规一样计入指标并发布事件
		for _, v := range result.SecurityContext.SecurityViolations {
			monitor.RecordViolation(v)
		}
		result.AttachSecurityContext(monitor.Finalize())
	}

	next, label, opErr := m.classify(ctx, runCtx, execID, result, backendErr)
	if err := m.transition(e, next, label); err != nil {
		m.logger.Errorf("environment %s: %v", envID, err)
	}

	m.finish(ctx, e, result, elapsed, label)
	return result, opErr
}

// classify 根据后端返回与上下文状态决定环境下一状态、结果标签与操作错误
func (m *Manager) classify(ctx, runCtx context.Context, execID string, result *types.ExecutionResult, backendErr error) (types.EnvironmentState, string, error) {
	if cause := context.Cause(runCtx); errors.Is(cause, ErrExecutionAborted) {
		result.Fail(cause.Error())
		return types.EnvironmentReady, metrics.ResultCancelled, cause
	}
	if backendErr == nil && (result.Success || ctx.Err() == nil) {
		if result.Success {
			return types.EnvironmentReady, metrics.ResultSuccess, nil
		}
		return types.EnvironmentReady, metrics.ResultFailed, nil
	}

	switch {
	case backendErr != nil && result.Error == "":
		result.Fail(backendErr.Error())
	case result.Error == "":
		result.Fail("cancelled: " + context.Cause(ctx).Error())
	default:
		result.Success = false
	}
	switch {
	case errors.Is(backendErr, runtime.ErrEnvironmentUnrecoverable):
		return types.EnvironmentError, metrics.ResultError, WrapExecutionFailedError(execID, backendErr)
	case ctx.Err() != nil:
		return types.EnvironmentReady, metrics.ResultCancelled, WrapExecutionCancelledError(execID, context.Cause(ctx))
	default:
		return types.EnvironmentReady, metrics.ResultError, WrapExecutionFailedError(execID, backendErr)
	}
}

// finish 记录执行、保存结果并发布完成事件
func (m *Manager) finish(ctx context.Context, e *environment, result *types.ExecutionResult, elapsed time.Duration, label string) {
	e.mu.Lock()
	e.executions = append(e.executions, result.ExecutionID)
	envID, blockchainID := e.env.EnvironmentID, e.env.BlockchainID
	e.mu.Unlock()

	if m.results != nil {
		// 调用方取消不影响结果落盘
		if err := m.results.Save(context.WithoutCancel(ctx), envID, result); err != nil {
			m.logger.Warnf("save result failed: execution=%s err=%v", result.ExecutionID, err)
		}
	}

	m.metrics.ObserveExecution(blockchainID, label, elapsed, result.SecurityContext.GasUsed)
	m.publish(event.EventTypeExecutionCompleted, event.ExecutionCompleted{
		EnvironmentID:   envID,
		ExecutionID:     result.ExecutionID,
		Success:         result.Success,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Violations:      len(result.SecurityViolations),
		Critical:        result.HasCriticalViolations(),
	})
	m.logger.Debugf("execution finished: env=%s execution=%s result=%s violations=%d",
		envID, result.ExecutionID, label, len(result.SecurityViolations))
}

// DeployContract 部署合约，返回合约地址
func (m *Manager) DeployContract(ctx context.Context, envID string, bytecode, constructorArgs []byte) (string, error) {
	var address string
	err := m.withRunning(ctx, envID, func(env *types.RuntimeEnvironment) error {
		var err error
		address, err = m.backend.DeployContract(ctx, env, bytecode, constructorArgs)
		return err
	})
	return address, err
}

// CallFunction 调用已部署合约的函数
func (m *Manager) CallFunction(ctx context.Context, envID, contractAddress, function string, args []byte) ([]byte, error) {
	var out []byte
	err := m.withRunning(ctx, envID, func(env *types.RuntimeEnvironment) error {
		var err error
		out, err = m.backend.CallFunction(ctx, env, contractAddress, function, args)
		return err
	})
	return out, err
}

// Monitor 返回某次执行产生的事件
func (m *Manager) Monitor(ctx context.Context, envID, executionID string) ([]types.RuntimeEvent, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	env := e.snapshot()
	return m.backend.Monitor(ctx, &env, executionID)
}

func (m *Manager) withRunning(ctx context.Context, envID string, fn func(env *types.RuntimeEnvironment) error) error {
	e, err := m.lookup(envID)
	if err != nil {
		return err
	}
	e.execMu.Lock()
	defer e.execMu.Unlock()
	if err := m.begin(e); err != nil {
		return err
	}

	env := e.snapshot()
	opErr := fn(&env)
	next := types.EnvironmentReady
	if errors.Is(opErr, runtime.ErrEnvironmentUnrecoverable) {
		next = types.EnvironmentError
	}
	if err := m.transition(e, next, "operation finished"); err != nil {
		m.logger.Errorf("environment %s: %v", envID, err)
	}
	return opErr
}

// ==================== 安全检查 ====================

// CheckReentrancy 使用环境的安全策略做重入检查
func (m *Manager) CheckReentrancy(envID, function, caller string, callStack []string) (*types.SecurityViolation, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	return e.validator.CheckReentrancy(function, caller, callStack), nil
}

// DetectOverflow 使用环境的安全策略做溢出检测
func (m *Manager) DetectOverflow(envID, operation string, operands []int64) (*types.SecurityViolation, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	return e.validator.DetectOverflow(operation, operands), nil
}

// VerifyAccessControl 使用环境的安全策略做访问控制检查
func (m *Manager) VerifyAccessControl(envID, function, caller, requiredRole string) (bool, *types.SecurityViolation, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return false, nil, err
	}
	permitted, violation := e.validator.VerifyAccessControl(function, caller, requiredRole)
	return permitted, violation, nil
}

// EnforceResourceLimits 使用环境的安全策略做四项资源检查，返回全部违规
func (m *Manager) EnforceResourceLimits(envID string, gas, memory uint64, depth, externalCalls uint32) ([]types.SecurityViolation, error) {
	e, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}
	return e.validator.EnforceResourceLimits(gas, memory, depth, externalCalls), nil
}

// ExecutionResult 读取已保存的执行结果
func (m *Manager) ExecutionResult(ctx context.Context, executionID string) (*types.ExecutionResult, error) {
	if m.results == nil {
		return nil, WrapReportNotFoundError(executionID)
	}
	record, err := m.results.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return record.Result, nil
}

// ExecutionHistory 列出结果库中某环境的执行ID（按保存时间排序）
//
// 与 Executions 不同，环境销毁或进程重启后仍可查询；未配置结果库时退回内存记录。
func (m *Manager) ExecutionHistory(ctx context.Context, envID string) ([]string, error) {
	if m.results == nil {
		return m.Executions(envID)
	}
	return m.results.ListExecutions(ctx, envID)
}

// GetSecurityReport 生成某次执行的安全报告
func (m *Manager) GetSecurityReport(ctx context.Context, executionID string) (*types.SecurityReport, error) {
	if m.results == nil {
		return nil, WrapReportNotFoundError(executionID)
	}
	record, err := m.results.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return security.BuildReport(record.EnvironmentID, record.Result, m.now())
}

// ==================== 内部 ====================

func (m *Manager) lookup(envID string) (*environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.envs[envID]
	if !ok {
		return nil, WrapEnvironmentNotFoundError(envID)
	}
	return e, nil
}

// begin 要求环境处于 Ready 并转入 Running；调用方持有 execMu
func (m *Manager) begin(e *environment) error {
	e.mu.RLock()
	destroyed, state, envID := e.destroyed, e.env.State, e.env.EnvironmentID
	e.mu.RUnlock()
	if destroyed {
		return WrapEnvironmentDestroyedError(envID)
	}
	if state != types.EnvironmentReady {
		return WrapEnvironmentNotReadyError(envID, state)
	}
	return m.transition(e, types.EnvironmentRunning, "execution started")
}

// transition 校验并执行状态转换，随后记录指标并发布事件
func (m *Manager) transition(e *environment, to types.EnvironmentState, reason string) error {
	e.mu.Lock()
	from, envID := e.env.State, e.env.EnvironmentID
	if !from.CanTransitionTo(to) {
		e.mu.Unlock()
		return WrapInvalidStateTransitionError(envID, from, to)
	}
	e.env.State = to
	e.mu.Unlock()

	m.metrics.EnvironmentTransition(from, to)
	m.publish(event.EventTypeEnvironmentStateChanged, event.EnvironmentStateChanged{
		EnvironmentID: envID,
		From:          from,
		To:            to,
		Reason:        reason,
		Timestamp:     uint64(m.now().Unix()),
	})
	return nil
}

func (m *Manager) publish(eventType event.EventType, payload interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventType, payload)
}

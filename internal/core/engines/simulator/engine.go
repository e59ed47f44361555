// Package simulator 轨迹模拟执行后端
//
// 代码文件与合约字节码都是 JSON 轨迹程序（格式见 program），由 gjson 解析。
// 解释器按顺序执行操作并把监控点上报给上下文中的 ExecutionMonitor，
// 用于在没有真实链的情况下复现重入、溢出、越权调用与资源超限场景。
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/internal/core/engines/codepath"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// ConstructorFunction 部署时若定义则执行，构造参数以 $input 引用
const ConstructorFunction = "constructor"

// allowedImport 沙箱模式下唯一允许的导入
const allowedImport = "env"

// Engine 轨迹模拟后端
type Engine struct {
	blockchainID string
	logger       log.Logger
	now          func() time.Time

	mu     sync.RWMutex
	envs   map[string]*environment
	closed bool
}

var _ runtime.BlockchainRuntime = (*Engine)(nil)

// New 创建模拟后端；options 为 nil 时使用默认链标识
func New(options *runtimeconfig.BackendOptions, logger log.Logger) *Engine {
	blockchainID := "simulator"
	if options != nil && options.BlockchainID != "" {
		blockchainID = options.BlockchainID
	}
	e := &Engine{
		blockchainID: blockchainID,
		now:          time.Now,
		envs:         make(map[string]*environment),
	}
	if logger != nil {
		e.logger = logger.With("module", "engine-simulator")
	}
	return e
}

func (e *Engine) BlockchainID() string { return e.blockchainID }

func (e *Engine) IsAvailable(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *Engine) Capabilities() types.RuntimeCapabilities {
	caps := types.DefaultRuntimeCapabilities()
	caps.SupportsGasEstimation = true
	caps.SupportedLanguages = []string{"trace-json"}
	return caps
}

func (e *Engine) MetricsDefinition() []types.RuntimeMetricDefinition {
	return []types.RuntimeMetricDefinition{
		{Name: "gas_used", Description: "Gas consumed by gas ops", Unit: "gas", MetricType: types.MetricGas},
		{Name: "execution_time_ms", Description: "Wall time of the trace", Unit: "ms", MetricType: types.MetricTime},
		{Name: "memory_bytes", Description: "Peak memory reported by memory ops", Unit: "bytes", MetricType: types.MetricMemory},
		{Name: "steps", Description: "Trace ops executed", Unit: "count", MetricType: types.CustomMetric("steps")},
	}
}

// CreateEnvironment 创建空环境
func (e *Engine) CreateEnvironment(_ context.Context, config types.RuntimeConfig) (*types.RuntimeEnvironment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	env := newEnvironment(uuid.NewString(), config)
	e.envs[env.id] = env

	if e.logger != nil {
		e.logger.Debugf("environment created: env=%s", env.id)
	}
	return &types.RuntimeEnvironment{
		EnvironmentID: env.id,
		BlockchainID:  e.blockchainID,
		RuntimeType:   types.RuntimeInMemory,
		EndpointURL:   "simulator://" + env.id,
		State:         types.EnvironmentReady,
		Metadata: map[string]string{
			"network_mode": string(config.NetworkMode),
			"deployer":     env.deployer.Hex(),
		},
	}, nil
}

// Destroy 释放环境；未登记的环境返回 runtime.ErrUnknownEnvironment
func (e *Engine) Destroy(_ context.Context, env *types.RuntimeEnvironment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.envs[env.EnvironmentID]; !ok {
		return runtime.WrapUnknownEnvironmentError(env.EnvironmentID)
	}
	delete(e.envs, env.EnvironmentID)
	return nil
}

// Close 释放所有环境，之后不再接受新环境
func (e *Engine) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.envs = make(map[string]*environment)
	return nil
}

// Execute 解释 codePath 处的轨迹程序，入口为 inputs.TargetFunction
func (e *Engine) Execute(ctx context.Context, env *types.RuntimeEnvironment, codePath string, inputs types.ExecutionInputs) (*types.ExecutionResult, error) {
	se, err := e.lookup(env)
	if err != nil {
		return nil, err
	}
	raw, resolved, err := codepath.ReadFile(codePath)
	if err != nil {
		return nil, err
	}
	prog, err := parseProgram(resolved, raw)
	if err != nil {
		return nil, err
	}
	if _, ok := prog.functions[inputs.TargetFunction]; !ok {
		return nil, WrapFunctionNotDefinedError(inputs.TargetFunction)
	}

	executionID := runtime.ExecutionIDFromContext(ctx)
	if executionID == "" {
		executionID = uuid.NewString()
	}
	result := types.NewExecutionResult(executionID)

	if v := e.sandboxViolation(se, prog); v != nil {
		result.AddSecurityViolation(*v)
		result.Fail(v.Description)
		return result, nil
	}

	m := e.newMachine(ctx, se, prog, executionID, inputs.Context.Sender, inputs.Parameters)
	start := e.now()
	runErr := e.interpret(ctx, se, m, inputs.TargetFunction)
	result.SetElapsed(e.now().Sub(start))

	result.StateChanges = append(result.StateChanges, m.stateChanges...)
	result.Events = append(result.Events, m.events...)
	result.Metrics["gas_used"] = m.gasUsed
	result.Metrics["execution_time_ms"] = result.ExecutionTimeMs
	result.Metrics["memory_bytes"] = m.memory
	result.Metrics["steps"] = m.steps
	se.recordEvents(executionID, m.events)

	var rv *revert
	switch {
	case runErr == nil:
		result.Success = true
		result.ReturnValue = m.returnValue
	case errors.As(runErr, &rv):
		result.Fail(rv.message)
	default:
		result.Fail(runErr.Error())
		return result, runErr
	}
	return result, nil
}

// DeployContract 解析轨迹程序并登记；定义了 constructor 时以构造参数执行
func (e *Engine) DeployContract(ctx context.Context, env *types.RuntimeEnvironment, bytecode []byte, constructorArgs []byte) (string, error) {
	se, err := e.lookup(env)
	if err != nil {
		return "", err
	}
	prog, err := parseProgram("bytecode", bytecode)
	if err != nil {
		return "", err
	}
	if v := e.sandboxViolation(se, prog); v != nil {
		return "", fmt.Errorf("%w: %s", ErrSandboxImport, v.Description)
	}

	address := se.deploy(prog)
	if _, ok := prog.functions[ConstructorFunction]; ok {
		params := map[string]any{"input": string(constructorArgs)}
		m := e.newMachine(ctx, se, prog, "deploy-"+address.Hex(), "", params)
		if err := e.interpret(ctx, se, m, ConstructorFunction); err != nil {
			se.undeploy(address)
			return "", fmt.Errorf("constructor of %s: %w", address.Hex(), err)
		}
	}
	if e.logger != nil {
		e.logger.Debugf("contract deployed: env=%s address=%s code=%s", se.id, address.Hex(), crypto.Keccak256Hash(bytecode).Hex())
	}
	return address.Hex(), nil
}

// CallFunction 调用已部署合约，args 以 $input 引用
//
// 返回值为字符串或字节时原样返回，其他值编码为 JSON。
func (e *Engine) CallFunction(ctx context.Context, env *types.RuntimeEnvironment, contractAddress, function string, args []byte) ([]byte, error) {
	se, err := e.lookup(env)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, runtime.WrapContractNotFoundError(contractAddress)
	}
	prog, ok := se.contractAt(common.HexToAddress(contractAddress))
	if !ok {
		return nil, runtime.WrapContractNotFoundError(contractAddress)
	}
	if _, ok := prog.functions[function]; !ok {
		return nil, WrapFunctionNotDefinedError(function)
	}

	executionID := runtime.ExecutionIDFromContext(ctx)
	if executionID == "" {
		executionID = "call-" + uuid.NewString()
	}
	m := e.newMachine(ctx, se, prog, executionID, contractAddress, map[string]any{"input": string(args)})
	err = e.interpret(ctx, se, m, function)
	se.recordEvents(executionID, m.events)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contractAddress, function, err)
	}
	switch v := m.returnValue.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func (e *Engine) Monitor(_ context.Context, env *types.RuntimeEnvironment, executionID string) ([]types.RuntimeEvent, error) {
	se, err := e.lookup(env)
	if err != nil {
		return nil, err
	}
	events, ok := se.eventsOf(executionID)
	if !ok {
		return nil, runtime.WrapExecutionNotFoundError(executionID)
	}
	return events, nil
}

// EnvironmentState 返回环境的状态快照
func (e *Engine) EnvironmentState(envID string) (map[string]string, error) {
	se, err := e.lookup(&types.RuntimeEnvironment{EnvironmentID: envID})
	if err != nil {
		return nil, err
	}
	return se.snapshot(), nil
}

// Contracts 返回环境内已部署的合约地址
func (e *Engine) Contracts(envID string) ([]string, error) {
	se, err := e.lookup(&types.RuntimeEnvironment{EnvironmentID: envID})
	if err != nil {
		return nil, err
	}
	return se.contractAddresses(), nil
}

// ==================== 内部 ====================

func (e *Engine) newMachine(ctx context.Context, se *environment, prog *program, executionID, caller string, params map[string]any) *machine {
	if params == nil {
		params = map[string]any{}
	}
	return &machine{
		env:         se,
		prog:        prog,
		executionID: executionID,
		caller:      caller,
		params:      params,
		monitor:     runtime.MonitorFromContext(ctx),
		now:         e.now,
		memoryLimit: se.memoryLimit(),
	}
}

// interpret 在环境超时内执行函数
//
// 超时转换为 revert；调用方取消时返回上下文错误。
func (e *Engine) interpret(ctx context.Context, se *environment, m *machine, function string) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(se.config.TimeoutSeconds)*time.Second)
	defer cancel()

	err := m.run(runCtx, function, true)
	if err == nil {
		return nil
	}
	var rv *revert
	switch {
	case errors.As(err, &rv):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("trace interrupted: %w", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return &revert{message: fmt.Sprintf("execution timed out after %ds", se.config.TimeoutSeconds)}
	}
	return err
}

func (e *Engine) sandboxViolation(se *environment, prog *program) *types.SecurityViolation {
	if !se.config.Security.SandboxEnabled {
		return nil
	}
	for _, imp := range prog.imports {
		if imp == allowedImport {
			continue
		}
		return &types.SecurityViolation{
			Type:        types.ViolationSandbox,
			Description: fmt.Sprintf("Sandbox denies import %s", imp),
			Severity:    types.SeverityHigh,
			Timestamp:   uint64(e.now().Unix()),
			Context:     map[string]string{"module": imp},
		}
	}
	return nil
}

func (e *Engine) lookup(env *types.RuntimeEnvironment) (*environment, error) {
	if env == nil {
		return nil, runtime.WrapUnknownEnvironmentError("")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	se, ok := e.envs[env.EnvironmentID]
	if !ok {
		return nil, runtime.WrapUnknownEnvironmentError(env.EnvironmentID)
	}
	return se, nil
}

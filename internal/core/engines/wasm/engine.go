// Package wasm 基于 wazero 的 WASM 执行后端
//
// 每个环境独占一个 wazero.Runtime：线性内存上限取自 RuntimeConfig.MemoryLimitMB，
// 上下文取消或超时时立即中断执行。合约通过导入 env 模块的宿主函数上报监控点：
//
//	runtime_enter(name_ptr, name_len)           嵌套函数入口
//	runtime_exit()                              嵌套函数返回
//	runtime_gas(amount i64)                     消耗Gas
//	runtime_checked_add(a, b i64) i64           带溢出检测的加法
//	runtime_checked_mul(a, b i64) i64           带溢出检测的乘法
//	runtime_external_call(target, fn, role) i32 外部调用，返回1表示允许
//	runtime_set_state(key, value)               写状态，空值表示删除
//	runtime_emit_event(type, json)              发出事件
//	runtime_input_len() i32 / runtime_input_copy(ptr) / runtime_return(ptr, len)
//
// 字符串参数均以 (ptr, len) 形式传递。沙箱模式下只允许导入 env 模块，
// 关闭沙箱时额外提供 wasi_snapshot_preview1。
package wasm

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/internal/core/engines/codepath"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// ConstructorFunction 部署时若导出则调用
const ConstructorFunction = "constructor"

// Engine WASM执行后端
type Engine struct {
	blockchainID string
	logger       log.Logger
	cache        wazero.CompilationCache
	now          func() time.Time

	mu     sync.RWMutex
	envs   map[string]*environment
	closed bool
}

var _ runtime.BlockchainRuntime = (*Engine)(nil)

// New 创建WASM后端；options 为 nil 时使用默认链标识
func New(options *runtimeconfig.BackendOptions, logger log.Logger) *Engine {
	blockchainID := "wasm-local"
	if options != nil && options.BlockchainID != "" {
		blockchainID = options.BlockchainID
	}
	e := &Engine{
		blockchainID: blockchainID,
		cache:        wazero.NewCompilationCache(),
		now:          time.Now,
		envs:         make(map[string]*environment),
	}
	if logger != nil {
		e.logger = logger.With("module", "engine-wasm")
	}
	return e
}

// ==================== 访问器 ====================

// BlockchainID 实现 BlockchainRuntime
func (e *Engine) BlockchainID() string { return e.blockchainID }

// IsAvailable 引擎未关闭即可用
func (e *Engine) IsAvailable(context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Capabilities 实现 BlockchainRuntime
func (e *Engine) Capabilities() types.RuntimeCapabilities {
	caps := types.DefaultRuntimeCapabilities()
	caps.SupportsGasEstimation = true
	caps.SupportedLanguages = []string{"wasm", "rust", "assemblyscript", "tinygo"}
	return caps
}

// MetricsDefinition 实现 BlockchainRuntime
func (e *Engine) MetricsDefinition() []types.RuntimeMetricDefinition {
	return []types.RuntimeMetricDefinition{
		{Name: "gas_used", Description: "Gas reported through runtime_gas", Unit: "gas", MetricType: types.MetricGas},
		{Name: "execution_time_ms", Description: "Wall time of the exported call", Unit: "ms", MetricType: types.MetricTime},
		{Name: "memory_bytes", Description: "Linear memory size after the call", Unit: "bytes", MetricType: types.MetricMemory},
		{Name: "state_writes", Description: "State entries written through runtime_set_state", Unit: "count", MetricType: types.MetricStorage},
		{Name: "events_emitted", Description: "Events emitted through runtime_emit_event", Unit: "count", MetricType: types.CustomMetric("events")},
	}
}

// ==================== 环境 ====================

// CreateEnvironment 为环境创建独立的 wazero.Runtime 并注册宿主模块
func (e *Engine) CreateEnvironment(ctx context.Context, config types.RuntimeConfig) (*types.RuntimeEnvironment, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrEngineClosed
	}

	envID := uuid.NewString()
	pages := memoryLimitPages(config.MemoryLimitMB)
	rc := wazero.NewRuntimeConfig().
		WithCompilationCache(e.cache).
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, rc)

	if err := instantiateHostModule(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	if !config.Security.SandboxEnabled {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("instantiate wasi: %w", err)
		}
	}

	env := &environment{
		id:        envID,
		config:    config.Clone(),
		runtime:   r,
		deployer:  deployerAddress(envID),
		pages:     pages,
		modules:   make(map[common.Hash]wazero.CompiledModule),
		contracts: make(map[common.Address]*contract),
		state:     make(map[string]string),
		events:    make(map[string][]types.RuntimeEvent),
	}

	e.mu.Lock()
	e.envs[envID] = env
	e.mu.Unlock()

	e.debugf("environment created: env=%s pages=%d sandbox=%t", envID, pages, config.Security.SandboxEnabled)
	return &types.RuntimeEnvironment{
		EnvironmentID: envID,
		BlockchainID:  e.blockchainID,
		RuntimeType:   types.RuntimeInMemory,
		EndpointURL:   "wasm://" + envID,
		State:         types.EnvironmentReady,
		Metadata: map[string]string{
			"memory_limit_pages": strconv.FormatUint(uint64(pages), 10),
			"network_mode":       string(config.NetworkMode),
			"deployer":           env.deployer.Hex(),
		},
	}, nil
}

// Destroy 关闭环境的运行时；关闭失败时环境保留在登记表中，可重试
func (e *Engine) Destroy(ctx context.Context, env *types.RuntimeEnvironment) error {
	e.mu.Lock()
	we, ok := e.envs[env.EnvironmentID]
	e.mu.Unlock()
	if !ok {
		return runtime.WrapUnknownEnvironmentError(env.EnvironmentID)
	}
	if err := we.close(ctx); err != nil {
		return fmt.Errorf("close environment %s: %w", env.EnvironmentID, err)
	}

	e.mu.Lock()
	if e.envs[env.EnvironmentID] == we {
		delete(e.envs, env.EnvironmentID)
	}
	e.mu.Unlock()
	return nil
}

// Close 关闭所有环境与编译缓存
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	envs := e.envs
	e.envs = make(map[string]*environment)
	e.mu.Unlock()

	var errs []error
	for _, we := range envs {
		errs = append(errs, we.close(ctx))
	}
	errs = append(errs, e.cache.Close(ctx))
	return errors.Join(errs...)
}

// ==================== 执行 ====================

// Execute 读取 codePath 处的模块并调用 inputs.TargetFunction
//
// 参数取自 inputs.Parameters["args"]（按函数签名转换的数值列表），
// 调用输入取自 inputs.Parameters["input"]（字符串）。陷入与超时表现为 Success=false 的结果；
// 调用方取消时返回部分结果与 ctx 的错误。
func (e *Engine) Execute(ctx context.Context, env *types.RuntimeEnvironment, codePath string, inputs types.ExecutionInputs) (*types.ExecutionResult, error) {
	we, err := e.lookup(env)
	if err != nil {
		return nil, err
	}
	code, resolved, err := codepath.ReadFile(codePath)
	if err != nil {
		return nil, err
	}

	executionID := runtime.ExecutionIDFromContext(ctx)
	if executionID == "" {
		executionID = uuid.NewString()
	}
	result := types.NewExecutionResult(executionID)

	compiled, hash, err := we.compile(ctx, code)
	if err != nil {
		if we.isClosed() {
			return nil, runtime.WrapEnvironmentUnrecoverableError(we.id, err)
		}
		return nil, WrapCompileError(resolved, err)
	}
	result.Metrics["code_hash"] = hash.Hex()

	if v := we.sandboxViolation(compiled, uint64(e.now().Unix())); v != nil {
		result.AddSecurityViolation(*v)
		result.Fail(v.Description)
		return result, nil
	}

	def, ok := compiled.ExportedFunctions()[inputs.TargetFunction]
	if !ok {
		return nil, WrapFunctionNotExportedError(inputs.TargetFunction)
	}
	params, err := callParams(inputs.TargetFunction, def, inputs.Parameters)
	if err != nil {
		return nil, err
	}

	frame := e.newFrame(ctx, we, executionID, inputs.Context.Sender)
	if input, ok := inputs.Parameters["input"].(string); ok {
		frame.input = []byte(input)
	}

	start := e.now()
	out, err := e.invoke(ctx, we, compiled, inputs.TargetFunction, params, frame)
	result.SetElapsed(e.now().Sub(start))
	e.fold(result, frame, out)
	we.recordEvents(executionID, frame.events)

	if err != nil {
		result.Fail(err.Error())
		return result, err
	}
	if out.trap != nil {
		result.Fail(out.trap.Error())
		return result, nil
	}
	result.Success = true
	result.ReturnValue = returnValue(def.ResultTypes(), out.results, frame.returnData)
	return result, nil
}

// DeployContract 编译并登记合约；导出 constructor 时以 constructorArgs 为输入调用
func (e *Engine) DeployContract(ctx context.Context, env *types.RuntimeEnvironment, bytecode []byte, constructorArgs []byte) (string, error) {
	we, err := e.lookup(env)
	if err != nil {
		return "", err
	}
	compiled, hash, err := we.compile(ctx, bytecode)
	if err != nil {
		return "", WrapCompileError("bytecode", err)
	}
	if v := we.sandboxViolation(compiled, uint64(e.now().Unix())); v != nil {
		return "", fmt.Errorf("%w: %s", ErrSandboxImport, v.Description)
	}

	c := we.register(compiled, hash)
	if _, ok := compiled.ExportedFunctions()[ConstructorFunction]; ok {
		frame := e.newFrame(ctx, we, "deploy-"+c.address.Hex(), "")
		frame.input = constructorArgs
		out, err := e.invoke(ctx, we, compiled, ConstructorFunction, nil, frame)
		if err == nil && out.trap != nil {
			err = WrapExecutionTrappedError(ConstructorFunction, out.trap)
		}
		if err != nil {
			we.unregister(c.address)
			return "", err
		}
	}
	e.debugf("contract deployed: env=%s address=%s code=%s", we.id, c.address.Hex(), hash.Hex())
	return c.address.Hex(), nil
}

// CallFunction 调用已部署合约的无参导出函数，args 作为调用输入
//
// 合约通过 runtime_return 设置返回数据时原样返回，否则按大端8字节编码各返回值。
func (e *Engine) CallFunction(ctx context.Context, env *types.RuntimeEnvironment, contractAddress, function string, args []byte) ([]byte, error) {
	we, err := e.lookup(env)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, runtime.WrapContractNotFoundError(contractAddress)
	}
	c, ok := we.contractAt(common.HexToAddress(contractAddress))
	if !ok {
		return nil, runtime.WrapContractNotFoundError(contractAddress)
	}
	if _, ok := c.module.ExportedFunctions()[function]; !ok {
		return nil, WrapFunctionNotExportedError(function)
	}

	executionID := runtime.ExecutionIDFromContext(ctx)
	if executionID == "" {
		executionID = "call-" + uuid.NewString()
	}
	frame := e.newFrame(ctx, we, executionID, contractAddress)
	frame.input = args
	out, err := e.invoke(ctx, we, c.module, function, nil, frame)
	we.recordEvents(executionID, frame.events)
	if err != nil {
		return nil, err
	}
	if out.trap != nil {
		return nil, WrapExecutionTrappedError(function, out.trap)
	}
	if frame.returnData != nil {
		return frame.returnData, nil
	}
	buf := make([]byte, 8*len(out.results))
	for i, v := range out.results {
		binary.BigEndian.PutUint64(buf[i*8:], v)
	}
	return buf, nil
}

// Monitor 返回某次执行的事件
func (e *Engine) Monitor(_ context.Context, env *types.RuntimeEnvironment, executionID string) ([]types.RuntimeEvent, error) {
	we, err := e.lookup(env)
	if err != nil {
		return nil, err
	}
	events, ok := we.eventsOf(executionID)
	if !ok {
		return nil, runtime.WrapExecutionNotFoundError(executionID)
	}
	return events, nil
}

// ==================== 内部 ====================

// invocation 一次导出函数调用的产出
type invocation struct {
	results     []uint64
	memoryBytes uint64
	// trap 合约层面的失败（陷入、超时），不是操作错误
	trap error
}

func (e *Engine) newFrame(ctx context.Context, we *environment, executionID, caller string) *callFrame {
	return &callFrame{
		env:         we,
		executionID: executionID,
		caller:      caller,
		monitor:     runtime.MonitorFromContext(ctx),
		now:         e.now,
	}
}

// invoke 实例化模块并调用导出函数，结束后关闭实例
func (e *Engine) invoke(ctx context.Context, we *environment, compiled wazero.CompiledModule, function string, params []uint64, frame *callFrame) (invocation, error) {
	var out invocation

	timeout := time.Duration(we.config.TimeoutSeconds) * time.Second
	callCtx, cancel := context.WithTimeout(withFrame(ctx, frame), timeout)
	defer cancel()

	mod, err := we.runtime.InstantiateModule(callCtx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		switch {
		case we.isClosed():
			return out, runtime.WrapEnvironmentUnrecoverableError(we.id, err)
		case ctx.Err() != nil:
			return out, ctx.Err()
		}
		out.trap = fmt.Errorf("instantiate: %w", err)
		return out, nil
	}
	defer mod.Close(context.Background())

	fn := mod.ExportedFunction(function)
	if fn == nil {
		return out, WrapFunctionNotExportedError(function)
	}

	results, callErr := fn.Call(callCtx, params...)
	if mem := mod.Memory(); mem != nil {
		out.memoryBytes = uint64(mem.Size())
		frame.monitor.SampleMemory(out.memoryBytes)
	}

	switch {
	case callErr == nil:
		out.results = results
	case ctx.Err() != nil:
		return out, fmt.Errorf("wasm execution interrupted: %w", ctx.Err())
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		out.trap = fmt.Errorf("execution timed out after %ds", we.config.TimeoutSeconds)
	default:
		out.trap = callErr
	}
	return out, nil
}

// fold 把调用产出写入结果
func (e *Engine) fold(result *types.ExecutionResult, frame *callFrame, out invocation) {
	result.StateChanges = append(result.StateChanges, frame.stateChanges...)
	result.Events = append(result.Events, frame.events...)
	result.Metrics["gas_used"] = frame.gasUsed
	result.Metrics["execution_time_ms"] = result.ExecutionTimeMs
	result.Metrics["memory_bytes"] = out.memoryBytes
	result.Metrics["state_writes"] = len(frame.stateChanges)
	result.Metrics["events_emitted"] = len(frame.events)
}

func (e *Engine) lookup(env *types.RuntimeEnvironment) (*environment, error) {
	if env == nil {
		return nil, runtime.WrapUnknownEnvironmentError("")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	we, ok := e.envs[env.EnvironmentID]
	if !ok {
		return nil, runtime.WrapUnknownEnvironmentError(env.EnvironmentID)
	}
	return we, nil
}

// EnvironmentState 返回环境的状态快照（调试与测试用）
func (e *Engine) EnvironmentState(envID string) (map[string]string, error) {
	we, err := e.lookup(&types.RuntimeEnvironment{EnvironmentID: envID})
	if err != nil {
		return nil, err
	}
	return we.State(), nil
}

// Contracts 返回环境内已部署的合约地址
func (e *Engine) Contracts(envID string) ([]string, error) {
	we, err := e.lookup(&types.RuntimeEnvironment{EnvironmentID: envID})
	if err != nil {
		return nil, err
	}
	return we.Contracts(), nil
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}

// ==================== 参数与返回值 ====================

// callParams 按函数签名把 parameters["args"] 转换为 wasm 参数
func callParams(function string, def api.FunctionDefinition, parameters map[string]any) ([]uint64, error) {
	var raw []any
	switch args := parameters["args"].(type) {
	case nil:
	case []any:
		raw = args
	case []int64:
		for _, v := range args {
			raw = append(raw, v)
		}
	default:
		return nil, WrapInvalidArgumentsError(function, fmt.Sprintf("args must be a list, got %T", args))
	}

	paramTypes := def.ParamTypes()
	if len(raw) != len(paramTypes) {
		return nil, WrapInvalidArgumentsError(function, fmt.Sprintf("expected %d args, got %d", len(paramTypes), len(raw)))
	}
	params := make([]uint64, len(raw))
	for i, t := range paramTypes {
		switch t {
		case api.ValueTypeF32, api.ValueTypeF64:
			f, err := toFloat(raw[i])
			if err != nil {
				return nil, WrapInvalidArgumentsError(function, fmt.Sprintf("arg %d: %v", i, err))
			}
			if t == api.ValueTypeF32 {
				params[i] = api.EncodeF32(float32(f))
			} else {
				params[i] = api.EncodeF64(f)
			}
		default:
			n, err := toInt(raw[i])
			if err != nil {
				return nil, WrapInvalidArgumentsError(function, fmt.Sprintf("arg %d: %v", i, err))
			}
			if t == api.ValueTypeI32 {
				params[i] = api.EncodeI32(int32(n))
			} else {
				params[i] = api.EncodeI64(n)
			}
		}
	}
	return params, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 0, 64)
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	i, err := toInt(v)
	return float64(i), err
}

// returnValue 返回数据优先；否则单个返回值按类型解码，多个返回值解码为列表
func returnValue(resultTypes []api.ValueType, results []uint64, returnData []byte) any {
	if returnData != nil {
		return hexutil.Encode(returnData)
	}
	values := make([]any, len(results))
	for i, raw := range results {
		t := api.ValueTypeI64
		if i < len(resultTypes) {
			t = resultTypes[i]
		}
		switch t {
		case api.ValueTypeI32:
			values[i] = int64(api.DecodeI32(raw))
		case api.ValueTypeF32:
			values[i] = float64(api.DecodeF32(raw))
		case api.ValueTypeF64:
			values[i] = api.DecodeF64(raw)
		default:
			values[i] = int64(raw)
		}
	}
	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	}
	return values
}

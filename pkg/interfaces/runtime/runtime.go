// Package runtime 定义与链无关的执行运行时接口
//
// 每种执行引擎（WASM、脚本模拟器等）实现一次 BlockchainRuntime，
// 调用方只依赖本接口；后端在组合阶段（fx）选定。
package runtime

import (
	"context"

	"github.com/weisyn/chainruntime/pkg/types"
)

// BlockchainRuntime 执行后端接口
//
// 生命周期状态由调用方（runtime.Manager）维护，后端只负责底层资源。
// CreateEnvironment/Execute/DeployContract/CallFunction/Destroy 可能阻塞，
// 需遵守 ctx 的取消与超时；其余访问器不得修改任何状态。
type BlockchainRuntime interface {
	// BlockchainID 后端对应的链标识
	BlockchainID() string

	// CreateEnvironment 按配置创建隔离环境，成功时返回 Ready 状态的环境描述
	CreateEnvironment(ctx context.Context, config types.RuntimeConfig) (*types.RuntimeEnvironment, error)

	// Execute 在环境中执行 codePath 指向的代码
	//
	// 执行期间后端应通过 MonitorFromContext(ctx) 上报监控点；入口函数帧由调用方压栈，
	// 后端只上报嵌套调用。执行ID由 ExecutionIDFromContext(ctx) 给出。
	// 代码陷入、返回失败等属于执行结果（Success=false），不作为 error 返回；
	// error 只表示操作失败（文件不可读、编译失败、环境不存在等）。
	// 错误包装 ErrEnvironmentUnrecoverable 时，调用方将环境置为 Error。
	Execute(ctx context.Context, env *types.RuntimeEnvironment, codePath string, inputs types.ExecutionInputs) (*types.ExecutionResult, error)

	// DeployContract 部署字节码，返回合约地址
	DeployContract(ctx context.Context, env *types.RuntimeEnvironment, bytecode []byte, constructorArgs []byte) (string, error)

	// CallFunction 调用已部署合约的函数，返回原始返回数据
	CallFunction(ctx context.Context, env *types.RuntimeEnvironment, contractAddress, function string, args []byte) ([]byte, error)

	// MetricsDefinition 后端提供的指标定义
	MetricsDefinition() []types.RuntimeMetricDefinition

	// Monitor 返回某次执行产生的事件快照（有限序列，非实时流）
	Monitor(ctx context.Context, env *types.RuntimeEnvironment, executionID string) ([]types.RuntimeEvent, error)

	// Destroy 释放环境占用的底层资源
	Destroy(ctx context.Context, env *types.RuntimeEnvironment) error

	// IsAvailable 后端当前是否可用
	IsAvailable(ctx context.Context) bool

	// Capabilities 后端能力声明
	Capabilities() types.RuntimeCapabilities
}

// Authorizer 访问控制判定
//
// requiredRole 非空时才会被调用；返回 true 表示 caller 拥有该角色。
type Authorizer interface {
	Authorize(function, caller, requiredRole string) bool
}

// AuthorizerFunc 函数适配器
type AuthorizerFunc func(function, caller, requiredRole string) bool

// Authorize 实现 Authorizer
func (f AuthorizerFunc) Authorize(function, caller, requiredRole string) bool {
	return f(function, caller, requiredRole)
}

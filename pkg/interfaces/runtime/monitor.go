package runtime

import "context"

// ExecutionMonitor 执行期间的监控点
//
// 由 security.Monitor 实现，后端在对应位置调用；
// 违规作为数据累积在安全上下文中，这些方法都不会中断执行。
type ExecutionMonitor interface {
	// EnterFunction 函数入口：压栈并检查调用深度与重入
	EnterFunction(function, caller string)

	// ExitFunction 函数返回：出栈
	ExitFunction()

	// RecordExternalCall 外部调用：计数并做访问控制，返回是否允许
	RecordExternalCall(target, function, caller, requiredRole string) bool

	// CheckArithmetic 算术操作：返回是否溢出
	CheckArithmetic(operation string, operands ...int64) bool

	// ConsumeGas 累加Gas
	ConsumeGas(amount uint64)

	// SampleMemory 上报当前内存占用（字节），取最大值
	SampleMemory(bytes uint64)
}

type monitorKey struct{}

// WithMonitor 把监控器放入上下文
func WithMonitor(ctx context.Context, m ExecutionMonitor) context.Context {
	return context.WithValue(ctx, monitorKey{}, m)
}

// MonitorFromContext 取出监控器；未设置时返回空实现
func MonitorFromContext(ctx context.Context) ExecutionMonitor {
	if m, ok := ctx.Value(monitorKey{}).(ExecutionMonitor); ok && m != nil {
		return m
	}
	return nopMonitor{}
}

type nopMonitor struct{}

func (nopMonitor) EnterFunction(string, string) {}
func (nopMonitor) ExitFunction() {}
func (nopMonitor) RecordExternalCall(string, string, string, string) bool { return true }
func (nopMonitor) CheckArithmetic(string, ...int64) bool { return false }
func (nopMonitor) ConsumeGas(uint64) {}
func (nopMonitor) SampleMemory(uint64) {}

type executionIDKey struct{}

// WithExecutionID 把调用方分配的执行ID放入上下文
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, executionID)
}

// ExecutionIDFromContext 取出执行ID；未设置时返回空串，后端可自行生成
func ExecutionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

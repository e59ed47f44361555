package wasm

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              WASM后端错误定义
// ============================================================================

var (
	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("wasm engine closed")

	// ErrCompileFailed 字节码编译失败
	ErrCompileFailed = errors.New("wasm compile failed")

	// ErrFunctionNotExported 模块未导出目标函数
	ErrFunctionNotExported = errors.New("function not exported")

	// ErrInvalidArguments 调用参数与函数签名不匹配
	ErrInvalidArguments = errors.New("invalid call arguments")

	// ErrSandboxImport 沙箱模式下导入了 env 以外的模块
	ErrSandboxImport = errors.New("import denied by sandbox")

	// ErrExecutionTrapped 合约执行陷入
	ErrExecutionTrapped = errors.New("wasm execution trapped")

	// ErrMemoryAccess 宿主函数访问越界内存
	ErrMemoryAccess = errors.New("guest memory access out of range")
)

// WrapCompileError 包装编译失败错误
func WrapCompileError(source string, err error) error {
	return fmt.Errorf("%w: source=%s, cause=%w", ErrCompileFailed, source, err)
}

// WrapFunctionNotExportedError 包装函数未导出错误
func WrapFunctionNotExportedError(function string) error {
	return fmt.Errorf("%w: %s", ErrFunctionNotExported, function)
}

// WrapInvalidArgumentsError 包装参数错误
func WrapInvalidArgumentsError(function, reason string) error {
	return fmt.Errorf("%w: function=%s, %s", ErrInvalidArguments, function, reason)
}

// WrapExecutionTrappedError 包装执行陷入错误
func WrapExecutionTrappedError(function string, err error) error {
	return fmt.Errorf("%w: function=%s, cause=%w", ErrExecutionTrapped, function, err)
}

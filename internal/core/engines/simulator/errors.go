package simulator

import (
	"errors"
	"fmt"
)

// ==================== 模拟后端错误定义 ====================

var (
	// ErrEngineClosed 后端已关闭
	ErrEngineClosed = errors.New("simulator engine closed")

	// ErrInvalidProgram 轨迹程序格式错误
	ErrInvalidProgram = errors.New("invalid trace program")

	// ErrFunctionNotDefined 程序未定义目标函数
	ErrFunctionNotDefined = errors.New("function not defined")

	// ErrSandboxImport 沙箱模式下程序声明了不允许的导入
	ErrSandboxImport = errors.New("sandbox denies import")
)

// WrapInvalidProgramError 包装程序格式错误
func WrapInvalidProgramError(source, reason string) error {
	return fmt.Errorf("%w: source=%s, %s", ErrInvalidProgram, source, reason)
}

// WrapFunctionNotDefinedError 包装函数未定义错误
func WrapFunctionNotDefinedError(function string) error {
	return fmt.Errorf("%w: %s", ErrFunctionNotDefined, function)
}

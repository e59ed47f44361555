package runtime

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              后端通用错误定义
// ============================================================================

var (
	// ErrEnvironmentUnrecoverable 环境底层资源已损坏，需要销毁
	ErrEnvironmentUnrecoverable = errors.New("environment unrecoverable")

	// ErrExecutionNotFound 后端没有该执行的记录
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrUnknownEnvironment 后端不认识该环境
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrContractNotFound 合约地址未部署
	ErrContractNotFound = errors.New("contract not found")
)

// WrapEnvironmentUnrecoverableError 包装环境不可恢复错误
func WrapEnvironmentUnrecoverableError(envID string, err error) error {
	return fmt.Errorf("%w: env=%s, cause=%w", ErrEnvironmentUnrecoverable, envID, err)
}

// WrapExecutionNotFoundError 包装执行不存在错误
func WrapExecutionNotFoundError(executionID string) error {
	return fmt.Errorf("%w: execution=%s", ErrExecutionNotFound, executionID)
}

// WrapUnknownEnvironmentError 包装环境未知错误
func WrapUnknownEnvironmentError(envID string) error {
	return fmt.Errorf("%w: env=%s", ErrUnknownEnvironment, envID)
}

// WrapContractNotFoundError 包装合约不存在错误
func WrapContractNotFoundError(address string) error {
	return fmt.Errorf("%w: address=%s", ErrContractNotFound, address)
}

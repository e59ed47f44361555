package runtime

import (
	"errors"
	"fmt"

	"github.com/weisyn/chainruntime/pkg/types"
)

// ============================================================================
//                              运行时生命周期错误定义
// ============================================================================

var (
	// ErrEnvironmentNotFound 环境未登记
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrEnvironmentDestroyed 环境已销毁
	ErrEnvironmentDestroyed = errors.New("environment already destroyed")

	// ErrInvalidStateTransition 非法的环境状态转换
	ErrInvalidStateTransition = errors.New("invalid environment state transition")

	// ErrEnvironmentNotReady 环境不在 Ready 状态
	ErrEnvironmentNotReady = errors.New("environment not ready")

	// ErrBackendUnavailable 执行后端不可用
	ErrBackendUnavailable = errors.New("runtime backend unavailable")

	// ErrEnvironmentCreationFailed 后端创建环境失败
	ErrEnvironmentCreationFailed = errors.New("environment creation failed")

	// ErrExecutionFailed 执行操作失败（非代码层面的失败）
	ErrExecutionFailed = errors.New("execution failed")

	// ErrExecutionCancelled 执行被取消或超时
	ErrExecutionCancelled = errors.New("execution cancelled")

	// ErrExecutionAborted 出现Critical违规后中止
	ErrExecutionAborted = errors.New("execution aborted on critical violation")

	// ErrReportNotFound 没有该执行的结果记录
	ErrReportNotFound = errors.New("security report not found")
)

// WrapEnvironmentNotFoundError 包装环境未登记错误
func WrapEnvironmentNotFoundError(envID string) error {
	return fmt.Errorf("%w: env=%s", ErrEnvironmentNotFound, envID)
}

// WrapEnvironmentDestroyedError 包装环境已销毁错误
func WrapEnvironmentDestroyedError(envID string) error {
	return fmt.Errorf("%w: env=%s", ErrEnvironmentDestroyed, envID)
}

// WrapInvalidStateTransitionError 包装非法状态转换错误
func WrapInvalidStateTransitionError(envID string, from, to types.EnvironmentState) error {
	return fmt.Errorf("%w: env=%s, %s -> %s", ErrInvalidStateTransition, envID, from, to)
}

// WrapEnvironmentNotReadyError 包装环境未就绪错误
func WrapEnvironmentNotReadyError(envID string, state types.EnvironmentState) error {
	return fmt.Errorf("%w: env=%s, state=%s", ErrEnvironmentNotReady, envID, state)
}

// WrapBackendUnavailableError 包装后端不可用错误
func WrapBackendUnavailableError(blockchainID string) error {
	return fmt.Errorf("%w: blockchain=%s", ErrBackendUnavailable, blockchainID)
}

// WrapEnvironmentCreationFailedError 包装环境创建失败错误
func WrapEnvironmentCreationFailedError(envID string, err error) error {
	return fmt.Errorf("%w: env=%s, cause=%w", ErrEnvironmentCreationFailed, envID, err)
}

// WrapExecutionFailedError 包装执行失败错误
func WrapExecutionFailedError(executionID string, err error) error {
	return fmt.Errorf("%w: execution=%s, cause=%w", ErrExecutionFailed, executionID, err)
}

// WrapExecutionCancelledError 包装执行取消错误
func WrapExecutionCancelledError(executionID string, err error) error {
	return fmt.Errorf("%w: execution=%s, cause=%w", ErrExecutionCancelled, executionID, err)
}

// WrapExecutionAbortedError 包装执行中止错误
func WrapExecutionAbortedError(executionID string, v types.SecurityViolation) error {
	return fmt.Errorf("%w: execution=%s, violation=%s", ErrExecutionAborted, executionID, v.Type)
}

// WrapReportNotFoundError 包装报告不存在错误
func WrapReportNotFoundError(executionID string) error {
	return fmt.Errorf("%w: execution=%s", ErrReportNotFound, executionID)
}

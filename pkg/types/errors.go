package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              配置错误定义
// ============================================================================

var (
	// ErrInvalidRuntimeConfig 运行时配置无效
	ErrInvalidRuntimeConfig = errors.New("invalid runtime config")

	// ErrInvalidSecurityPolicy 安全策略无效
	ErrInvalidSecurityPolicy = errors.New("invalid security policy")
)

// ============================================================================
//                               错误包装函数
// ============================================================================

// WrapInvalidRuntimeConfigError 包装运行时配置无效错误
func WrapInvalidRuntimeConfigError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRuntimeConfig, reason)
}

// WrapInvalidSecurityPolicyError 包装安全策略无效错误
func WrapInvalidSecurityPolicyError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSecurityPolicy, reason)
}

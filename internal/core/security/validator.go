// Package security 提供执行运行时的安全校验
//
// 包含三部分：
//   - Validator：无状态的策略校验器，每个检查都是输入与只读策略的纯函数
//   - Monitor：单次执行的安全上下文累积器，实现 runtime.ExecutionMonitor
//   - BuildReport：把执行结果汇总为安全报告
//
// 违规以数据形式返回（*types.SecurityViolation，nil 表示通过），
// 这里的任何检查都不会返回操作错误。
package security

import (
	"fmt"
	"math"
	"strconv"
	"time"

	logiface "github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// 覆盖溢出检测的操作名
const (
	OpAdd      = "add"
	OpAddSym   = "+"
	OpMultiply = "multiply"
	OpMulSym   = "*"
)

// Validator 安全策略校验器
//
// 构造后只读，可被多个执行并发使用。
type Validator struct {
	policy     types.SecurityPolicy
	authorizer runtime.Authorizer
	now        func() time.Time
	logger     logiface.Logger
}

// Option 校验器选项
type Option func(*Validator)

// WithAuthorizer 注入访问控制判定，未注入时使用 PlaceholderAuthorizer
func WithAuthorizer(a runtime.Authorizer) Option {
	return func(v *Validator) {
		if a != nil {
			v.authorizer = a
		}
	}
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger logiface.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger.With("module", "security")
		}
	}
}

// NewValidator 创建校验器；策略中的零值上限在此被拒绝
func NewValidator(policy types.SecurityPolicy, opts ...Option) (*Validator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	v := &Validator{
		policy:     policy,
		authorizer: PlaceholderAuthorizer{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Policy 返回校验器使用的策略
func (v *Validator) Policy() types.SecurityPolicy {
	return v.policy
}

// ==================== 资源限制检查 ====================

// ValidateCallDepth 调用深度检查，始终生效
func (v *Validator) ValidateCallDepth(depth uint32) *types.SecurityViolation {
	if depth <= v.policy.MaxCallDepth {
		return nil
	}
	return v.violation(types.ViolationCallDepthExceeded, types.SeverityHigh,
		fmt.Sprintf("Call depth %d exceeds maximum %d", depth, v.policy.MaxCallDepth),
		map[string]string{"call_depth": u32(depth), "max_call_depth": u32(v.policy.MaxCallDepth)})
}

// ValidateExternalCalls 外部调用次数检查，始终生效
func (v *Validator) ValidateExternalCalls(count uint32) *types.SecurityViolation {
	if count <= v.policy.MaxExternalCalls {
		return nil
	}
	return v.violation(types.ViolationExternalCallLimitExceeded, types.SeverityHigh,
		fmt.Sprintf("External call count %d exceeds maximum %d", count, v.policy.MaxExternalCalls),
		map[string]string{"external_calls": u32(count), "max_external_calls": u32(v.policy.MaxExternalCalls)})
}

// ValidateGasUsage Gas检查，仅在开启Gas限制时生效
func (v *Validator) ValidateGasUsage(gas uint64) *types.SecurityViolation {
	if !v.policy.GasLimitEnforcement || gas <= v.policy.MaxGasLimit {
		return nil
	}
	return v.violation(types.ViolationGasLimitExceeded, types.SeverityHigh,
		fmt.Sprintf("Gas usage %d exceeds maximum %d", gas, v.policy.MaxGasLimit),
		map[string]string{"gas_used": strconv.FormatUint(gas, 10), "max_gas_limit": strconv.FormatUint(v.policy.MaxGasLimit, 10)})
}

// ValidateMemoryUsage 内存检查，仅在开启内存限制时生效
func (v *Validator) ValidateMemoryUsage(memory uint64) *types.SecurityViolation {
	if !v.policy.MemoryLimitEnforcement || memory <= v.policy.MaxMemoryBytes {
		return nil
	}
	return v.violation(types.ViolationMemoryLimitExceeded, types.SeverityHigh,
		fmt.Sprintf("Memory usage %d exceeds maximum %d", memory, v.policy.MaxMemoryBytes),
		map[string]string{"memory_used": strconv.FormatUint(memory, 10), "max_memory_bytes": strconv.FormatUint(v.policy.MaxMemoryBytes, 10)})
}

// EnforceResourceLimits 批量执行四项资源检查，返回全部违规（可能为空）
func (v *Validator) EnforceResourceLimits(gas, memory uint64, depth, externalCalls uint32) []types.SecurityViolation {
	violations := make([]types.SecurityViolation, 0, 4)
	for _, found := range []*types.SecurityViolation{
		v.ValidateGasUsage(gas),
		v.ValidateMemoryUsage(memory),
		v.ValidateCallDepth(depth),
		v.ValidateExternalCalls(externalCalls),
	} {
		if found != nil {
			violations = append(violations, *found)
		}
	}
	return violations
}

// ==================== 重入检查 ====================

// CheckReentrancy 重入检查
//
// callStack 需包含当前帧；function 在栈中出现超过一次即判定为重入。
func (v *Validator) CheckReentrancy(function, caller string, callStack []string) *types.SecurityViolation {
	if !v.policy.ReentrancyProtection {
		return nil
	}
	occurrences := 0
	for _, frame := range callStack {
		if frame == function {
			occurrences++
		}
	}
	if occurrences <= 1 {
		return nil
	}
	return v.violation(types.ViolationReentrancyAttack, types.SeverityCritical,
		fmt.Sprintf("Potential reentrancy attack in function %s called by %s", function, caller),
		map[string]string{"function": function, "caller": caller, "occurrences": strconv.Itoa(occurrences)})
}

// ==================== 溢出检查 ====================

// DetectOverflow 有符号64位溢出检测
//
// 仅覆盖 add/+ 与 multiply/*，取前两个操作数；其他操作或操作数不足时不报告。
func (v *Validator) DetectOverflow(operation string, operands []int64) *types.SecurityViolation {
	if !v.policy.OverflowDetection || len(operands) < 2 {
		return nil
	}
	a, b := operands[0], operands[1]
	switch operation {
	case OpAdd, OpAddSym:
		if _, ok := CheckedAdd(a, b); !ok {
			return v.violation(types.ViolationIntegerOverflow, types.SeverityHigh,
				fmt.Sprintf("Integer overflow detected in addition: %d + %d", a, b),
				map[string]string{"operation": operation, "lhs": strconv.FormatInt(a, 10), "rhs": strconv.FormatInt(b, 10)})
		}
	case OpMultiply, OpMulSym:
		if _, ok := CheckedMul(a, b); !ok {
			return v.violation(types.ViolationIntegerOverflow, types.SeverityHigh,
				fmt.Sprintf("Integer overflow detected in multiplication: %d * %d", a, b),
				map[string]string{"operation": operation, "lhs": strconv.FormatInt(a, 10), "rhs": strconv.FormatInt(b, 10)})
		}
	}
	return nil
}

// CheckedAdd 返回 a+b 及是否未溢出
func CheckedAdd(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return a + b, false
	}
	return a + b, true
}

// CheckedMul 返回 a*b 及是否未溢出
func CheckedMul(a, b int64) (int64, bool) {
	c := a * b
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return c, false
	}
	return c, c/b == a
}

// ==================== 访问控制 ====================

// VerifyAccessControl 访问控制检查
//
// 关闭校验或未要求角色时直接放行；否则交由 Authorizer 判定，拒绝时返回 Medium 级违规。
func (v *Validator) VerifyAccessControl(function, caller, requiredRole string) (bool, *types.SecurityViolation) {
	if !v.policy.AccessControlVerification || requiredRole == "" {
		return true, nil
	}
	if v.authorizer.Authorize(function, caller, requiredRole) {
		return true, nil
	}
	return false, v.violation(types.ViolationAccessControl, types.SeverityMedium,
		fmt.Sprintf("Access denied: %s does not have %s role for function %s", caller, requiredRole, function),
		map[string]string{"function": function, "caller": caller, "required_role": requiredRole})
}

// ==================== 内部 ====================

func (v *Validator) violation(kind types.ViolationType, severity types.SecuritySeverity, description string, ctx map[string]string) *types.SecurityViolation {
	if v.logger != nil {
		v.logger.Debugf("security violation: type=%s severity=%s %s", kind, severity, description)
	}
	return &types.SecurityViolation{
		Type:        kind,
		Description: description,
		Severity:    severity,
		Timestamp:   uint64(v.now().Unix()),
		Context:     ctx,
	}
}

func u32(n uint32) string { return strconv.FormatUint(uint64(n), 10) }

func (v *Validator) timestamp() uint64 {
	return uint64(v.now().Unix())
}

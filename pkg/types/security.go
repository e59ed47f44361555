// Package types 提供运行时抽象层的公共数据类型
package types

import (
	"fmt"
	"strings"

	"github.com/weisyn/chainruntime/pkg/constants"
)

// ==================== 安全严重级别 ====================

// SecuritySeverity 违规严重级别
// 全序：Low < Medium < High < Critical
type SecuritySeverity int

const (
	SeverityLow SecuritySeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// AllSeverities 按从低到高的顺序列出所有级别
var AllSeverities = []SecuritySeverity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// String 返回级别名称
func (s SecuritySeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// IsValid 是否为已定义的级别
func (s SecuritySeverity) IsValid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// MarshalText 以名称形式序列化
func (s SecuritySeverity) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid security severity: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText 从名称解析级别
func (s *SecuritySeverity) UnmarshalText(text []byte) error {
	parsed, err := ParseSecuritySeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSecuritySeverity 解析级别名称（大小写不敏感）
func ParseSecuritySeverity(name string) (SecuritySeverity, error) {
	for _, s := range AllSeverities {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown security severity: %q", name)
}

// ==================== 违规类型（封闭集合） ====================

// ViolationType 安全违规类型
type ViolationType string

const (
	ViolationReentrancyAttack          ViolationType = "reentrancy_attack"
	ViolationIntegerOverflow           ViolationType = "integer_overflow"
	ViolationAccessControl             ViolationType = "access_control_violation"
	ViolationResourceLimitExceeded     ViolationType = "resource_limit_exceeded"
	ViolationSandbox                   ViolationType = "sandbox_violation"
	ViolationCallDepthExceeded         ViolationType = "call_depth_exceeded"
	ViolationExternalCallLimitExceeded ViolationType = "external_call_limit_exceeded"
	ViolationGasLimitExceeded          ViolationType = "gas_limit_exceeded"
	ViolationMemoryLimitExceeded       ViolationType = "memory_limit_exceeded"
)

// AllViolationTypes 所有违规类型
var AllViolationTypes = []ViolationType{
	ViolationReentrancyAttack,
	ViolationIntegerOverflow,
	ViolationAccessControl,
	ViolationResourceLimitExceeded,
	ViolationSandbox,
	ViolationCallDepthExceeded,
	ViolationExternalCallLimitExceeded,
	ViolationGasLimitExceeded,
	ViolationMemoryLimitExceeded,
}

// IsValid 是否为已定义的违规类型
func (t ViolationType) IsValid() bool {
	for _, v := range AllViolationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsResourceLimit 是否属于资源限制类违规
func (t ViolationType) IsResourceLimit() bool {
	switch t {
	case ViolationResourceLimitExceeded, ViolationCallDepthExceeded, ViolationExternalCallLimitExceeded,
		ViolationGasLimitExceeded, ViolationMemoryLimitExceeded:
		return true
	}
	return false
}

// SecurityViolation 执行过程中检测到的安全违规
// 创建后不可修改
//
// Context 的值统一为字符串，数值以十进制文本保存，
// 保证经 JSON 往返后逐字节相同。
type SecurityViolation struct {
	Type        ViolationType     `json:"violation_type" yaml:"violation_type"`
	Description string            `json:"description" yaml:"description"`
	Severity    SecuritySeverity  `json:"severity" yaml:"severity"`
	Timestamp   uint64            `json:"timestamp" yaml:"timestamp"`
	Context     map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
}

// String 返回便于日志输出的描述
func (v SecurityViolation) String() string {
	return fmt.Sprintf("[%s/%s] %s", v.Type, v.Severity, v.Description)
}

// SeverityCounts 按严重级别统计的违规数量
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total 违规总数
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Add 累加一个级别
func (c *SeverityCounts) Add(s SecuritySeverity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	default:
		c.Low++
	}
}

// CountBySeverity 统计违规列表的级别分布
func CountBySeverity(violations []SecurityViolation) SeverityCounts {
	var counts SeverityCounts
	for _, v := range violations {
		counts.Add(v.Severity)
	}
	return counts
}

// HighestSeverity 返回列表中的最高级别；列表为空时第二个返回值为false
func HighestSeverity(violations []SecurityViolation) (SecuritySeverity, bool) {
	if len(violations) == 0 {
		return SeverityLow, false
	}
	highest := violations[0].Severity
	for _, v := range violations[1:] {
		if v.Severity > highest {
			highest = v.Severity
		}
	}
	return highest, true
}

// ==================== 安全策略 ====================

// SecurityPolicy 运行时安全策略
// 构造后只读；数值上限必须大于0，由 Validate 在构造阶段拒绝
type SecurityPolicy struct {
	SandboxEnabled            bool   `json:"sandbox_enabled" yaml:"sandbox_enabled"`
	ReentrancyProtection      bool   `json:"reentrancy_protection" yaml:"reentrancy_protection"`
	OverflowDetection         bool   `json:"overflow_detection" yaml:"overflow_detection"`
	AccessControlVerification bool   `json:"access_control_verification" yaml:"access_control_verification"`
	MaxCallDepth              uint32 `json:"max_call_depth" yaml:"max_call_depth"`
	MaxExternalCalls          uint32 `json:"max_external_calls" yaml:"max_external_calls"`
	GasLimitEnforcement       bool   `json:"gas_limit_enforcement" yaml:"gas_limit_enforcement"`
	MaxGasLimit               uint64 `json:"max_gas_limit" yaml:"max_gas_limit"`
	MemoryLimitEnforcement    bool   `json:"memory_limit_enforcement" yaml:"memory_limit_enforcement"`
	MaxMemoryBytes            uint64 `json:"max_memory_bytes" yaml:"max_memory_bytes"`
}

// DefaultSecurityPolicy 默认策略：全部保护开启，默认上限
func DefaultSecurityPolicy() SecurityPolicy {
	return NewSecurityPolicy(true, true, true, true)
}

// NewSecurityPolicy 按四个保护开关创建策略，其余字段取默认值
func NewSecurityPolicy(sandbox, reentrancy, overflow, accessControl bool) SecurityPolicy {
	return SecurityPolicy{
		SandboxEnabled:            sandbox,
		ReentrancyProtection:      reentrancy,
		OverflowDetection:         overflow,
		AccessControlVerification: accessControl,
		MaxCallDepth:              constants.DefaultMaxCallDepth,
		MaxExternalCalls:          constants.DefaultMaxExternalCalls,
		GasLimitEnforcement:       true,
		MaxGasLimit:               constants.DefaultMaxGasLimit,
		MemoryLimitEnforcement:    true,
		MaxMemoryBytes:            constants.DefaultMaxMemoryBytes,
	}
}

// PermissiveSecurityPolicy 宽松策略：关闭所有保护，Gas/内存上限取最大值
func PermissiveSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		MaxCallDepth:     constants.DefaultMaxCallDepth,
		MaxExternalCalls: constants.DefaultMaxExternalCalls,
		MaxGasLimit:      ^uint64(0),
		MaxMemoryBytes:   ^uint64(0),
	}
}

// StrictSecurityPolicy 严格策略：全部保护开启并收紧上限
func StrictSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		SandboxEnabled:            true,
		ReentrancyProtection:      true,
		OverflowDetection:         true,
		AccessControlVerification: true,
		MaxCallDepth:              constants.StrictMaxCallDepth,
		MaxExternalCalls:          constants.StrictMaxExternalCalls,
		GasLimitEnforcement:       true,
		MaxGasLimit:               constants.StrictMaxGasLimit,
		MemoryLimitEnforcement:    true,
		MaxMemoryBytes:            constants.StrictMaxMemoryBytes,
	}
}

// Validate 校验数值上限均大于0
func (p SecurityPolicy) Validate() error {
	switch {
	case p.MaxCallDepth == 0:
		return WrapInvalidSecurityPolicyError("maximum call depth cannot be zero")
	case p.MaxExternalCalls == 0:
		return WrapInvalidSecurityPolicyError("maximum external calls cannot be zero")
	case p.MaxGasLimit == 0:
		return WrapInvalidSecurityPolicyError("maximum gas limit cannot be zero")
	case p.MaxMemoryBytes == 0:
		return WrapInvalidSecurityPolicyError("maximum memory bytes cannot be zero")
	}
	return nil
}

// ==================== 安全上下文（数据） ====================

// AccessControlCheck 访问控制检查记录
type AccessControlCheck struct {
	FunctionName   string `json:"function_name"`
	Caller         string `json:"caller"`
	RequiredRole   string `json:"required_role,omitempty"`
	HasPermission  bool   `json:"has_permission"`
	CheckTimestamp uint64 `json:"check_timestamp"`
}

// SecureExecutionContext 单次执行的安全上下文快照
//
// 由 security.Monitor 在执行过程中累积，执行结束后并入 ExecutionResult。
// 不跨执行复用，也不在并发执行之间共享。
type SecureExecutionContext struct {
	CallDepth           uint32               `json:"call_depth"`
	PeakCallDepth       uint32               `json:"peak_call_depth"`
	ExternalCallCount   uint32               `json:"external_call_count"`
	GasUsed             uint64               `json:"gas_used"`
	MemoryUsed          uint64               `json:"memory_used"`
	CallStack           []string             `json:"call_stack"`
	AccessControlChecks []AccessControlCheck `json:"access_control_checks"`
	SecurityViolations  []SecurityViolation  `json:"security_violations"`
}

// NewSecureExecutionContext 创建全零、空列表的上下文
func NewSecureExecutionContext() SecureExecutionContext {
	return SecureExecutionContext{
		CallStack:           []string{},
		AccessControlChecks: []AccessControlCheck{},
		SecurityViolations:  []SecurityViolation{},
	}
}

// HasCriticalViolations 是否存在Critical级别违规
func (c SecureExecutionContext) HasCriticalViolations() bool {
	for _, v := range c.SecurityViolations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ViolationCountBySeverity 按级别统计违规
func (c SecureExecutionContext) ViolationCountBySeverity() SeverityCounts {
	return CountBySeverity(c.SecurityViolations)
}

// Clone 深拷贝（违规的Context映射按浅拷贝处理，违规本身不可变）
func (c SecureExecutionContext) Clone() SecureExecutionContext {
	out := c
	out.CallStack = append([]string{}, c.CallStack...)
	out.AccessControlChecks = append([]AccessControlCheck{}, c.AccessControlChecks...)
	out.SecurityViolations = append([]SecurityViolation{}, c.SecurityViolations...)
	return out
}

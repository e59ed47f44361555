package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/weisyn/chainruntime/pkg/constants"
)

// ============================================================================
// 严重级别与违规类型测试
// ============================================================================

// TestSecuritySeverity_Order 测试级别全序
func TestSecuritySeverity_Order(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)
	assert.True(t, SeverityHigh < SeverityCritical)
}

// TestSecuritySeverity_TextRoundTrip 测试级别按名称序列化
func TestSecuritySeverity_TextRoundTrip(t *testing.T) {
	v := SecurityViolation{Type: ViolationIntegerOverflow, Severity: SeverityHigh}
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"severity":"high"`)

	var decoded SecurityViolation
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, SeverityHigh, decoded.Severity)

	_, err = ParseSecuritySeverity("catastrophic")
	assert.Error(t, err)

	_, err = SecuritySeverity(9).MarshalText()
	assert.Error(t, err, "未定义级别不应序列化")
}

// TestViolationType_ClosedSet 测试违规类型集合封闭
func TestViolationType_ClosedSet(t *testing.T) {
	assert.Len(t, AllViolationTypes, 9)
	for _, vt := range AllViolationTypes {
		assert.True(t, vt.IsValid(), vt)
	}
	assert.False(t, ViolationType("timing_attack").IsValid())
	assert.True(t, ViolationGasLimitExceeded.IsResourceLimit())
	assert.False(t, ViolationReentrancyAttack.IsResourceLimit())
}

// ============================================================================
// 安全策略测试
// ============================================================================

// TestSecurityPolicy_Presets 测试策略预设
func TestSecurityPolicy_Presets(t *testing.T) {
	def := DefaultSecurityPolicy()
	assert.True(t, def.SandboxEnabled)
	assert.True(t, def.ReentrancyProtection)
	assert.Equal(t, constants.DefaultMaxCallDepth, def.MaxCallDepth)
	assert.Equal(t, constants.DefaultMaxExternalCalls, def.MaxExternalCalls)
	assert.Equal(t, constants.DefaultMaxGasLimit, def.MaxGasLimit)
	assert.Equal(t, constants.DefaultMaxMemoryBytes, def.MaxMemoryBytes)

	permissive := PermissiveSecurityPolicy()
	assert.False(t, permissive.SandboxEnabled)
	assert.False(t, permissive.ReentrancyProtection)
	assert.False(t, permissive.OverflowDetection)
	assert.False(t, permissive.AccessControlVerification)
	assert.False(t, permissive.GasLimitEnforcement)
	assert.False(t, permissive.MemoryLimitEnforcement)
	assert.Equal(t, ^uint64(0), permissive.MaxGasLimit)

	strict := StrictSecurityPolicy()
	assert.Equal(t, uint32(100), strict.MaxCallDepth)
	assert.Equal(t, uint32(10), strict.MaxExternalCalls)
	assert.Equal(t, uint64(1_000_000), strict.MaxGasLimit)
	assert.Equal(t, uint64(10*1024*1024), strict.MaxMemoryBytes)

	custom := NewSecurityPolicy(false, true, false, true)
	assert.False(t, custom.SandboxEnabled)
	assert.True(t, custom.ReentrancyProtection)
	assert.False(t, custom.OverflowDetection)
	assert.True(t, custom.AccessControlVerification)

	for _, p := range []SecurityPolicy{def, permissive, strict, custom} {
		assert.NoError(t, p.Validate())
	}
}

// TestSecurityPolicy_ValidateRejectsZeroLimits 测试零值上限被拒绝
func TestSecurityPolicy_ValidateRejectsZeroLimits(t *testing.T) {
	cases := map[string]func(*SecurityPolicy){
		"call depth":     func(p *SecurityPolicy) { p.MaxCallDepth = 0 },
		"external calls": func(p *SecurityPolicy) { p.MaxExternalCalls = 0 },
		"gas":            func(p *SecurityPolicy) { p.MaxGasLimit = 0 },
		"memory":         func(p *SecurityPolicy) { p.MaxMemoryBytes = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultSecurityPolicy()
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidSecurityPolicy)
		})
	}
}

// ============================================================================
// 安全上下文测试
// ============================================================================

// TestSecureExecutionContext_Counts 测试按级别统计与Critical检测
func TestSecureExecutionContext_Counts(t *testing.T) {
	ctx := NewSecureExecutionContext()
	assert.False(t, ctx.HasCriticalViolations())
	assert.Equal(t, SeverityCounts{}, ctx.ViolationCountBySeverity())

	ctx.SecurityViolations = append(ctx.SecurityViolations,
		SecurityViolation{Severity: SeverityHigh},
		SecurityViolation{Severity: SeverityMedium},
		SecurityViolation{Severity: SeverityHigh},
	)
	assert.False(t, ctx.HasCriticalViolations())
	assert.Equal(t, SeverityCounts{High: 2, Medium: 1}, ctx.ViolationCountBySeverity())

	ctx.SecurityViolations = append(ctx.SecurityViolations, SecurityViolation{Severity: SeverityCritical})
	assert.True(t, ctx.HasCriticalViolations())
	assert.Equal(t, 4, ctx.ViolationCountBySeverity().Total())
}

// TestSecureExecutionContext_CloneIsIndependent 测试克隆独立
func TestSecureExecutionContext_CloneIsIndependent(t *testing.T) {
	ctx := NewSecureExecutionContext()
	ctx.CallStack = append(ctx.CallStack, "main")
	clone := ctx.Clone()
	clone.CallStack[0] = "other"
	clone.SecurityViolations = append(clone.SecurityViolations, SecurityViolation{})
	assert.Equal(t, "main", ctx.CallStack[0])
	assert.Empty(t, ctx.SecurityViolations)
}

// TestCountBySeverity_Property 属性测试：各级别计数之和等于违规总数
func TestCountBySeverity_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(rt, "n")
		violations := make([]SecurityViolation, 0, n)
		for i := 0; i < n; i++ {
			sev := SecuritySeverity(rapid.IntRange(0, 3).Draw(rt, "severity"))
			violations = append(violations, SecurityViolation{Severity: sev})
		}
		counts := CountBySeverity(violations)
		if counts.Total() != n {
			rt.Fatalf("total %d != %d", counts.Total(), n)
		}
		highest, ok := HighestSeverity(violations)
		if ok != (n > 0) {
			rt.Fatalf("highest presence mismatch")
		}
		for _, v := range violations {
			if v.Severity > highest {
				rt.Fatalf("severity %s above highest %s", v.Severity, highest)
			}
		}
	})
}

// ============================================================================
// JSON 往返属性测试
// ============================================================================

func drawPolicy(rt *rapid.T) SecurityPolicy {
	return SecurityPolicy{
		SandboxEnabled:            rapid.Bool().Draw(rt, "sandbox"),
		ReentrancyProtection:      rapid.Bool().Draw(rt, "reentrancy"),
		OverflowDetection:         rapid.Bool().Draw(rt, "overflow"),
		AccessControlVerification: rapid.Bool().Draw(rt, "access_control"),
		MaxCallDepth:              rapid.Uint32Min(1).Draw(rt, "max_call_depth"),
		MaxExternalCalls:          rapid.Uint32Min(1).Draw(rt, "max_external_calls"),
		GasLimitEnforcement:       rapid.Bool().Draw(rt, "gas_enforcement"),
		MaxGasLimit:               rapid.Uint64Min(1).Draw(rt, "max_gas_limit"),
		MemoryLimitEnforcement:    rapid.Bool().Draw(rt, "memory_enforcement"),
		MaxMemoryBytes:            rapid.Uint64Min(1).Draw(rt, "max_memory_bytes"),
	}
}

func drawViolation(rt *rapid.T) SecurityViolation {
	v := SecurityViolation{
		Type:        rapid.SampledFrom(AllViolationTypes).Draw(rt, "type"),
		Description: rapid.String().Draw(rt, "description"),
		Severity:    SecuritySeverity(rapid.IntRange(0, 3).Draw(rt, "severity")),
		Timestamp:   rapid.Uint64().Draw(rt, "timestamp"),
	}
	// 空映射经 omitempty 后解码为 nil，只生成 nil 或非空映射
	if n := rapid.IntRange(0, 4).Draw(rt, "context_size"); n > 0 {
		v.Context = rapid.MapOfN(rapid.StringN(1, 12, -1), rapid.String(), 1, n).Draw(rt, "context")
	}
	return v
}

// TestSecurityPolicy_JSONRoundTrip_Property 属性测试：策略经 JSON 往返不变
func TestSecurityPolicy_JSONRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		policy := drawPolicy(rt)
		raw, err := json.Marshal(policy)
		require.NoError(rt, err)
		var decoded SecurityPolicy
		require.NoError(rt, json.Unmarshal(raw, &decoded))
		assert.Equal(rt, policy, decoded)
	})
}

// TestSecureExecutionContext_JSONRoundTrip_Property 属性测试：安全上下文经 JSON 往返不变
func TestSecureExecutionContext_JSONRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sc := NewSecureExecutionContext()
		sc.CallDepth = rapid.Uint32().Draw(rt, "call_depth")
		sc.PeakCallDepth = rapid.Uint32().Draw(rt, "peak_call_depth")
		sc.ExternalCallCount = rapid.Uint32().Draw(rt, "external_call_count")
		sc.GasUsed = rapid.Uint64().Draw(rt, "gas_used")
		sc.MemoryUsed = rapid.Uint64().Draw(rt, "memory_used")
		sc.CallStack = append(sc.CallStack, rapid.SliceOf(rapid.String()).Draw(rt, "call_stack")...)
		for i, n := 0, rapid.IntRange(0, 3).Draw(rt, "checks"); i < n; i++ {
			sc.AccessControlChecks = append(sc.AccessControlChecks, AccessControlCheck{
				FunctionName:   rapid.String().Draw(rt, "function"),
				Caller:         rapid.String().Draw(rt, "caller"),
				RequiredRole:   rapid.String().Draw(rt, "role"),
				HasPermission:  rapid.Bool().Draw(rt, "permitted"),
				CheckTimestamp: rapid.Uint64().Draw(rt, "checked_at"),
			})
		}
		for i, n := 0, rapid.IntRange(0, 5).Draw(rt, "violations"); i < n; i++ {
			sc.SecurityViolations = append(sc.SecurityViolations, drawViolation(rt))
		}

		raw, err := json.Marshal(sc)
		require.NoError(rt, err)
		var decoded SecureExecutionContext
		require.NoError(rt, json.Unmarshal(raw, &decoded))
		assert.Equal(rt, sc, decoded)
	})
}

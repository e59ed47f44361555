package security

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/weisyn/chainruntime/pkg/types"
)

// ============================================================================
// 校验器测试
// ============================================================================

var fixedNow = time.Unix(1_700_000_000, 0)

func newTestValidator(t *testing.T, policy types.SecurityPolicy, opts ...Option) *Validator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	v, err := NewValidator(policy, opts...)
	require.NoError(t, err)
	return v
}

// TestNewValidator_RejectsInvalidPolicy 测试零值上限在构造时被拒绝
func TestNewValidator_RejectsInvalidPolicy(t *testing.T) {
	policy := types.DefaultSecurityPolicy()
	policy.MaxCallDepth = 0
	_, err := NewValidator(policy)
	assert.ErrorIs(t, err, types.ErrInvalidSecurityPolicy)
}

// TestValidateCallDepth 测试调用深度边界
func TestValidateCallDepth(t *testing.T) {
	policy := types.DefaultSecurityPolicy()
	policy.MaxCallDepth = 3
	v := newTestValidator(t, policy)

	assert.Nil(t, v.ValidateCallDepth(3), "等于上限不应违规")
	violation := v.ValidateCallDepth(4)
	require.NotNil(t, violation)
	assert.Equal(t, types.ViolationCallDepthExceeded, violation.Type)
	assert.Equal(t, types.SeverityHigh, violation.Severity)
	assert.Equal(t, "Call depth 4 exceeds maximum 3", violation.Description)
	assert.Equal(t, uint64(fixedNow.Unix()), violation.Timestamp)
}

// TestValidateCallDepth_Property 属性测试：d<=上限通过，d>上限违规
func TestValidateCallDepth_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.Uint32Range(1, 5000).Draw(rt, "limit")
		depth := rapid.Uint32Range(0, 10000).Draw(rt, "depth")
		policy := types.DefaultSecurityPolicy()
		policy.MaxCallDepth = limit
		v, err := NewValidator(policy)
		if err != nil {
			rt.Fatal(err)
		}
		got := v.ValidateCallDepth(depth)
		if (depth > limit) != (got != nil) {
			rt.Fatalf("depth=%d limit=%d violation=%v", depth, limit, got)
		}
		if got != nil && (got.Type != types.ViolationCallDepthExceeded || got.Severity != types.SeverityHigh) {
			rt.Fatalf("unexpected violation %v", got)
		}
	})
}

// TestValidateExternalCalls 测试外部调用次数边界
func TestValidateExternalCalls(t *testing.T) {
	v := newTestValidator(t, types.DefaultSecurityPolicy())
	assert.Nil(t, v.ValidateExternalCalls(100))
	violation := v.ValidateExternalCalls(101)
	require.NotNil(t, violation)
	assert.Equal(t, types.ViolationExternalCallLimitExceeded, violation.Type)
	assert.Equal(t, types.SeverityHigh, violation.Severity)
}

// TestValidateGasAndMemory_Enforcement 测试Gas/内存检查受开关控制
func TestValidateGasAndMemory_Enforcement(t *testing.T) {
	policy := types.DefaultSecurityPolicy()
	v := newTestValidator(t, policy)
	assert.Nil(t, v.ValidateGasUsage(policy.MaxGasLimit))
	require.NotNil(t, v.ValidateGasUsage(policy.MaxGasLimit+1))
	assert.Equal(t, types.ViolationGasLimitExceeded, v.ValidateGasUsage(policy.MaxGasLimit+1).Type)
	assert.Nil(t, v.ValidateMemoryUsage(policy.MaxMemoryBytes))
	require.NotNil(t, v.ValidateMemoryUsage(policy.MaxMemoryBytes+1))
	assert.Equal(t, types.ViolationMemoryLimitExceeded, v.ValidateMemoryUsage(policy.MaxMemoryBytes+1).Type)

	policy.GasLimitEnforcement = false
	policy.MemoryLimitEnforcement = false
	off := newTestValidator(t, policy)
	assert.Nil(t, off.ValidateGasUsage(math.MaxUint64))
	assert.Nil(t, off.ValidateMemoryUsage(math.MaxUint64))
}

// TestEnforceResourceLimits 测试批量检查返回全部违规
func TestEnforceResourceLimits(t *testing.T) {
	policy := types.DefaultSecurityPolicy()
	policy.MaxCallDepth = 10
	policy.MaxExternalCalls = 5
	policy.MaxGasLimit = 1000
	policy.MaxMemoryBytes = 2048
	v := newTestValidator(t, policy)

	assert.Empty(t, v.EnforceResourceLimits(1000, 2048, 10, 5))

	violations := v.EnforceResourceLimits(1001, 2049, 11, 6)
	require.Len(t, violations, 4)
	kinds := make([]types.ViolationType, 0, 4)
	for _, violation := range violations {
		kinds = append(kinds, violation.Type)
		assert.Equal(t, types.SeverityHigh, violation.Severity)
	}
	assert.ElementsMatch(t, []types.ViolationType{
		types.ViolationGasLimitExceeded,
		types.ViolationMemoryLimitExceeded,
		types.ViolationCallDepthExceeded,
		types.ViolationExternalCallLimitExceeded,
	}, kinds)

	assert.Len(t, v.EnforceResourceLimits(5000, 0, 0, 0), 1)
}

// TestValidateGasUsage_PresetScenario 场景：同一笔 500000 Gas 在不同策略下的结果
func TestValidateGasUsage_PresetScenario(t *testing.T) {
	const gas = uint64(500_000)

	assert.Nil(t, newTestValidator(t, types.StrictSecurityPolicy()).ValidateGasUsage(gas), "严格策略上限 1000000")
	assert.Nil(t, newTestValidator(t, types.PermissiveSecurityPolicy()).ValidateGasUsage(gas), "宽松策略不限制Gas")

	custom := types.DefaultSecurityPolicy()
	custom.MaxGasLimit = 100_000
	violation := newTestValidator(t, custom).ValidateGasUsage(gas)
	require.NotNil(t, violation)
	assert.Equal(t, types.ViolationGasLimitExceeded, violation.Type)
	assert.Equal(t, types.SeverityHigh, violation.Severity)
	assert.Equal(t, "Gas usage 500000 exceeds maximum 100000", violation.Description)
	assert.Equal(t, map[string]string{"gas_used": "500000", "max_gas_limit": "100000"}, violation.Context)
}

// TestEnforceResourceLimits_Property 属性测试：违规数等于各项独立检查的失败数
func TestEnforceResourceLimits_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		policy := types.DefaultSecurityPolicy()
		policy.MaxCallDepth = rapid.Uint32Range(1, 100).Draw(rt, "max_call_depth")
		policy.MaxExternalCalls = rapid.Uint32Range(1, 100).Draw(rt, "max_external_calls")
		policy.MaxGasLimit = rapid.Uint64Range(1, 10_000).Draw(rt, "max_gas_limit")
		policy.MaxMemoryBytes = rapid.Uint64Range(1, 10_000).Draw(rt, "max_memory_bytes")
		policy.GasLimitEnforcement = rapid.Bool().Draw(rt, "gas_enforcement")
		policy.MemoryLimitEnforcement = rapid.Bool().Draw(rt, "memory_enforcement")
		v, err := NewValidator(policy)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		gas := rapid.Uint64Range(0, 20_000).Draw(rt, "gas")
		memory := rapid.Uint64Range(0, 20_000).Draw(rt, "memory")
		depth := rapid.Uint32Range(0, 200).Draw(rt, "depth")
		calls := rapid.Uint32Range(0, 200).Draw(rt, "calls")

		expected := 0
		for _, found := range []*types.SecurityViolation{
			v.ValidateGasUsage(gas),
			v.ValidateMemoryUsage(memory),
			v.ValidateCallDepth(depth),
			v.ValidateExternalCalls(calls),
		} {
			if found != nil {
				expected++
			}
		}
		want := 0
		if policy.GasLimitEnforcement && gas > policy.MaxGasLimit {
			want++
		}
		if policy.MemoryLimitEnforcement && memory > policy.MaxMemoryBytes {
			want++
		}
		if depth > policy.MaxCallDepth {
			want++
		}
		if calls > policy.MaxExternalCalls {
			want++
		}
		if expected != want {
			rt.Fatalf("individual checks report %d failures, want %d", expected, want)
		}
		if got := len(v.EnforceResourceLimits(gas, memory, depth, calls)); got != want {
			rt.Fatalf("EnforceResourceLimits returned %d violations, want %d", got, want)
		}
	})
}

// TestCheckReentrancy 测试重入检测
func TestCheckReentrancy(t *testing.T) {
	v := newTestValidator(t, types.DefaultSecurityPolicy())

	assert.Nil(t, v.CheckReentrancy("withdraw", "alice", []string{"main", "withdraw"}))
	violation := v.CheckReentrancy("withdraw", "alice", []string{"withdraw", "transfer", "withdraw"})
	require.NotNil(t, violation)
	assert.Equal(t, types.ViolationReentrancyAttack, violation.Type)
	assert.Equal(t, types.SeverityCritical, violation.Severity)
	assert.Equal(t, "Potential reentrancy attack in function withdraw called by alice", violation.Description)

	off := newTestValidator(t, types.NewSecurityPolicy(true, false, true, true))
	assert.Nil(t, off.CheckReentrancy("withdraw", "alice", []string{"withdraw", "withdraw"}))
}

// TestCheckReentrancy_Property 属性测试：出现次数大于1才违规
func TestCheckReentrancy_Property(t *testing.T) {
	v, err := NewValidator(types.DefaultSecurityPolicy())
	require.NoError(t, err)
	rapid.Check(t, func(rt *rapid.T) {
		stack := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 0, 12).Draw(rt, "stack")
		fn := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(rt, "fn")
		count := 0
		for _, f := range stack {
			if f == fn {
				count++
			}
		}
		got := v.CheckReentrancy(fn, "caller", stack)
		if (count > 1) != (got != nil) {
			rt.Fatalf("fn=%s stack=%v violation=%v", fn, stack, got)
		}
	})
}

// TestDetectOverflow 测试溢出检测
func TestDetectOverflow(t *testing.T) {
	v := newTestValidator(t, types.DefaultSecurityPolicy())

	cases := []struct {
		name     string
		op       string
		operands []int64
		overflow bool
	}{
		{"加法未溢出", "add", []int64{1, 2}, false},
		{"加法溢出", "add", []int64{math.MaxInt64, 1}, true},
		{"符号加法溢出", "+", []int64{math.MinInt64, -1}, true},
		{"乘法未溢出", "multiply", []int64{3, 4}, false},
		{"乘法溢出", "*", []int64{math.MaxInt64, 2}, true},
		{"最小值乘负一", "*", []int64{math.MinInt64, -1}, true},
		{"负一乘最小值", "multiply", []int64{-1, math.MinInt64}, true},
		{"乘零", "*", []int64{math.MaxInt64, 0}, false},
		{"未覆盖的减法", "sub", []int64{math.MinInt64, 1}, false},
		{"操作数不足", "add", []int64{math.MaxInt64}, false},
		{"仅取前两个操作数", "add", []int64{1, 2, math.MaxInt64}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := v.DetectOverflow(tc.op, tc.operands)
			if tc.overflow {
				require.NotNil(t, got)
				assert.Equal(t, types.ViolationIntegerOverflow, got.Type)
				assert.Equal(t, types.SeverityHigh, got.Severity)
			} else {
				assert.Nil(t, got)
			}
		})
	}

	off := newTestValidator(t, types.NewSecurityPolicy(true, true, false, true))
	assert.Nil(t, off.DetectOverflow("add", []int64{math.MaxInt64, 1}))
}

// TestCheckedArithmetic_Property 属性测试：与大整数精确结果比对
func TestCheckedArithmetic_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Int64().Draw(rt, "a")
		b := rapid.Int64().Draw(rt, "b")

		sum, ok := CheckedAdd(a, b)
		exactSumFits := fitsInt64Add(a, b)
		if ok != exactSumFits {
			rt.Fatalf("add %d %d ok=%v", a, b, ok)
		}
		if ok && sum != a+b {
			rt.Fatalf("add result mismatch")
		}

		_, ok = CheckedMul(a, b)
		if ok != fitsInt64Mul(a, b) {
			rt.Fatalf("mul %d %d ok=%v", a, b, ok)
		}
	})
}

// TestVerifyAccessControl 测试访问控制
func TestVerifyAccessControl(t *testing.T) {
	v := newTestValidator(t, types.DefaultSecurityPolicy())

	ok, violation := v.VerifyAccessControl("mint", "alice", "")
	assert.True(t, ok, "未要求角色应放行")
	assert.Nil(t, violation)

	ok, violation = v.VerifyAccessControl("mint", "super_admin", "admin")
	assert.True(t, ok)
	assert.Nil(t, violation)

	ok, violation = v.VerifyAccessControl("mint", "alice", "admin")
	assert.False(t, ok)
	require.NotNil(t, violation)
	assert.Equal(t, types.ViolationAccessControl, violation.Type)
	assert.Equal(t, types.SeverityMedium, violation.Severity)
	assert.Equal(t, "Access denied: alice does not have admin role for function mint", violation.Description)

	ok, _ = v.VerifyAccessControl("mint", "alice", "minter")
	assert.True(t, ok, "占位规则授予非admin角色")

	off := newTestValidator(t, types.NewSecurityPolicy(true, true, true, false))
	ok, violation = off.VerifyAccessControl("mint", "alice", "admin")
	assert.True(t, ok)
	assert.Nil(t, violation)
}

// TestVerifyAccessControl_InjectedAuthorizer 测试注入授权表
func TestVerifyAccessControl_InjectedAuthorizer(t *testing.T) {
	table := NewRoleTable(map[string][]string{"minter": {"alice"}})
	v := newTestValidator(t, types.DefaultSecurityPolicy(), WithAuthorizer(table))

	ok, _ := v.VerifyAccessControl("mint", "alice", "minter")
	assert.True(t, ok)
	ok, violation := v.VerifyAccessControl("mint", "bob", "minter")
	assert.False(t, ok)
	require.NotNil(t, violation)

	table.Revoke("minter", "alice")
	ok, _ = v.VerifyAccessControl("mint", "alice", "minter")
	assert.False(t, ok)
}

func fitsInt64Add(a, b int64) bool {
	if b > 0 {
		return a <= math.MaxInt64-b
	}
	return a >= math.MinInt64-b
}

func fitsInt64Mul(a, b int64) bool {
	if a == 0 || b == 0 {
		return true
	}
	// 通过无符号绝对值比较判断
	neg := (a < 0) != (b < 0)
	ua, ub := absU(a), absU(b)
	if ua > math.MaxUint64/ub {
		return false
	}
	p := ua * ub
	if neg {
		return p <= uint64(math.MaxInt64)+1
	}
	return p <= uint64(math.MaxInt64)
}

func absU(x int64) uint64 {
	if x < 0 {
		return uint64(-(x + 1)) + 1
	}
	return uint64(x)
}

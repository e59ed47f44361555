package security

import (
	"sync"

	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// Monitor 单次执行的安全上下文累积器
//
// 每次执行新建一个，执行结束后由 Finalize 封存并并入结果，不跨执行复用。
// 写操作由互斥锁串行化；只做追加，计数单调不减（调用深度随进出栈变化）。
//
// 资源类违规（调用深度、外部调用、Gas、内存）每次执行每种只记录一次，
// 重入违规每个函数只记录一次，溢出与访问拒绝逐次记录。
type Monitor struct {
	validator *Validator

	mu          sync.Mutex
	sc          types.SecureExecutionContext
	latched     map[types.ViolationType]bool
	reentered   map[string]bool
	sealed      bool
	onViolation []func(types.SecurityViolation)
}

// MonitorOption 监控器选项
type MonitorOption func(*Monitor)

// OnViolation 注册违规回调；回调在锁外按记录顺序调用
func OnViolation(fn func(types.SecurityViolation)) MonitorOption {
	return func(m *Monitor) {
		if fn != nil {
			m.onViolation = append(m.onViolation, fn)
		}
	}
}

// NewMonitor 创建全零状态的监控器
func NewMonitor(v *Validator, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		validator: v,
		sc:        types.NewSecureExecutionContext(),
		latched:   map[types.ViolationType]bool{},
		reentered: map[string]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ runtime.ExecutionMonitor = (*Monitor)(nil)

// ==================== 监控点 ====================

// EnterFunction 压栈，检查调用深度与重入
func (m *Monitor) EnterFunction(function, caller string) {
	m.update(func() []types.SecurityViolation {
		m.sc.CallStack = append(m.sc.CallStack, function)
		m.sc.CallDepth++
		if m.sc.CallDepth > m.sc.PeakCallDepth {
			m.sc.PeakCallDepth = m.sc.CallDepth
		}

		var fired []types.SecurityViolation
		if v := m.validator.ValidateCallDepth(m.sc.CallDepth); v != nil {
			fired = m.appendLatched(fired, v)
		}
		if !m.reentered[function] {
			if v := m.validator.CheckReentrancy(function, caller, m.sc.CallStack); v != nil {
				m.reentered[function] = true
				fired = m.append(fired, v)
			}
		}
		return fired
	})
}

// ExitFunction 出栈；空栈时忽略
func (m *Monitor) ExitFunction() {
	m.update(func() []types.SecurityViolation {
		if n := len(m.sc.CallStack); n > 0 {
			m.sc.CallStack = m.sc.CallStack[:n-1]
			m.sc.CallDepth--
		}
		return nil
	})
}

// RecordExternalCall 外部调用计数与访问控制，返回是否允许
func (m *Monitor) RecordExternalCall(target, function, caller, requiredRole string) bool {
	permitted := true
	m.update(func() []types.SecurityViolation {
		m.sc.ExternalCallCount++

		var fired []types.SecurityViolation
		if v := m.validator.ValidateExternalCalls(m.sc.ExternalCallCount); v != nil {
			v.Context["target"] = target
			fired = m.appendLatched(fired, v)
		}
		var denied *types.SecurityViolation
		permitted, denied = m.checkAccessLocked(function, caller, requiredRole)
		if denied != nil {
			denied.Context["target"] = target
			fired = m.append(fired, denied)
		}
		return fired
	})
	return permitted
}

// CheckAccess 入口访问控制（不计入外部调用），返回是否允许
func (m *Monitor) CheckAccess(function, caller, requiredRole string) bool {
	permitted := true
	m.update(func() []types.SecurityViolation {
		var denied *types.SecurityViolation
		permitted, denied = m.checkAccessLocked(function, caller, requiredRole)
		if denied != nil {
			return m.append(nil, denied)
		}
		return nil
	})
	return permitted
}

// CheckArithmetic 溢出检测，返回是否溢出
func (m *Monitor) CheckArithmetic(operation string, operands ...int64) bool {
	overflow := false
	m.update(func() []types.SecurityViolation {
		if v := m.validator.DetectOverflow(operation, operands); v != nil {
			overflow = true
			return m.append(nil, v)
		}
		return nil
	})
	return overflow
}

// ConsumeGas 累加Gas（饱和加法）
func (m *Monitor) ConsumeGas(amount uint64) {
	m.update(func() []types.SecurityViolation {
		if m.sc.GasUsed > ^uint64(0)-amount {
			m.sc.GasUsed = ^uint64(0)
		} else {
			m.sc.GasUsed += amount
		}
		if v := m.validator.ValidateGasUsage(m.sc.GasUsed); v != nil {
			return m.appendLatched(nil, v)
		}
		return nil
	})
}

// SampleMemory 记录内存占用峰值
func (m *Monitor) SampleMemory(bytes uint64) {
	m.update(func() []types.SecurityViolation {
		if bytes > m.sc.MemoryUsed {
			m.sc.MemoryUsed = bytes
		}
		if v := m.validator.ValidateMemoryUsage(m.sc.MemoryUsed); v != nil {
			return m.appendLatched(nil, v)
		}
		return nil
	})
}

// ==================== 上下文管理 ====================

// RecordViolation 记录监控点之外检测到的违规（如后端的沙箱检查），同样触发违规回调
func (m *Monitor) RecordViolation(v types.SecurityViolation) {
	m.update(func() []types.SecurityViolation {
		return m.append(nil, &v)
	})
}

// Finalize 补做资源限制批量检查并封存，返回上下文副本
//
// 封存后的写操作被忽略；重复调用返回同一结果。
func (m *Monitor) Finalize() types.SecureExecutionContext {
	m.update(func() []types.SecurityViolation {
		var fired []types.SecurityViolation
		for _, v := range m.validator.EnforceResourceLimits(m.sc.GasUsed, m.sc.MemoryUsed, m.sc.PeakCallDepth, m.sc.ExternalCallCount) {
			v := v
			fired = m.appendLatched(fired, &v)
		}
		m.sealed = true
		return fired
	})
	return m.Snapshot()
}

// Snapshot 返回当前上下文的副本
func (m *Monitor) Snapshot() types.SecureExecutionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sc.Clone()
}

// Sealed 是否已封存
func (m *Monitor) Sealed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealed
}

// HasCriticalViolations 是否存在Critical违规
func (m *Monitor) HasCriticalViolations() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sc.HasCriticalViolations()
}

// ViolationCountBySeverity 按级别统计违规
func (m *Monitor) ViolationCountBySeverity() types.SeverityCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sc.ViolationCountBySeverity()
}

// Violations 已记录的违规副本
func (m *Monitor) Violations() []types.SecurityViolation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.SecurityViolation{}, m.sc.SecurityViolations...)
}

// ClearViolations 清空违规记录与去重状态，仅用于两次执行之间
func (m *Monitor) ClearViolations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sc.SecurityViolations = []types.SecurityViolation{}
	m.latched = map[types.ViolationType]bool{}
	m.reentered = map[string]bool{}
	m.sealed = false
}

// ==================== 内部 ====================

// update 在锁内执行 fn，锁外触发违规回调
func (m *Monitor) update(fn func() []types.SecurityViolation) {
	m.mu.Lock()
	if m.sealed {
		m.mu.Unlock()
		return
	}
	fired := fn()
	m.mu.Unlock()

	for _, v := range fired {
		for _, cb := range m.onViolation {
			cb(v)
		}
	}
}

func (m *Monitor) append(fired []types.SecurityViolation, v *types.SecurityViolation) []types.SecurityViolation {
	m.sc.SecurityViolations = append(m.sc.SecurityViolations, *v)
	return append(fired, *v)
}

func (m *Monitor) appendLatched(fired []types.SecurityViolation, v *types.SecurityViolation) []types.SecurityViolation {
	if m.latched[v.Type] {
		return fired
	}
	m.latched[v.Type] = true
	return m.append(fired, v)
}

func (m *Monitor) checkAccessLocked(function, caller, requiredRole string) (bool, *types.SecurityViolation) {
	permitted, denied := m.validator.VerifyAccessControl(function, caller, requiredRole)
	if requiredRole != "" {
		m.sc.AccessControlChecks = append(m.sc.AccessControlChecks, types.AccessControlCheck{
			FunctionName:   function,
			Caller:         caller,
			RequiredRole:   requiredRole,
			HasPermission:  permitted,
			CheckTimestamp: m.validator.timestamp(),
		})
	}
	return permitted, denied
}

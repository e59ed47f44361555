package types

import "time"

// ==================== 执行输入 ====================

// InvocationContext 调用上下文
type InvocationContext struct {
	// 调用者地址
	Sender string `json:"sender"`
	// 入口函数要求的角色，为空表示不要求
	RequiredRole string `json:"required_role,omitempty"`
	BlockNumber  *uint64 `json:"block_number,omitempty"`
	Timestamp    *uint64 `json:"timestamp,omitempty"`
	// 后端自定义扩展
	Extra map[string]any `json:"extra,omitempty"`
}

// ExecutionInputs 单次执行的入参
type ExecutionInputs struct {
	TargetFunction string            `json:"target_function"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	Context        InvocationContext `json:"context"`
}

// ==================== 状态变更与事件 ====================

// StateChangeType 状态变更类型
type StateChangeType string

const (
	StateChangeCreated StateChangeType = "created"
	StateChangeUpdated StateChangeType = "updated"
	StateChangeDeleted StateChangeType = "deleted"
)

// StateChange 执行产生的一条状态变更
type StateChange struct {
	Key        string          `json:"key"`
	OldValue   any             `json:"old_value,omitempty"`
	NewValue   any             `json:"new_value"`
	ChangeType StateChangeType `json:"change_type"`
}

// RuntimeEvent 执行期间发出的事件
type RuntimeEvent struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Timestamp   uint64         `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
	ExecutionID string         `json:"execution_id"`
}

// ==================== 执行结果 ====================

// ExecutionResult 单次执行的结果
//
// 功能结果（Success/ReturnValue/StateChanges）与安全发现相互独立：
// 执行成功也可能携带Critical违规，调用方需同时检查两者。
// SecurityViolations 始终是 SecurityContext.SecurityViolations 的派生副本。
type ExecutionResult struct {
	ExecutionID        string                 `json:"execution_id"`
	Success            bool                   `json:"success"`
	ReturnValue        any                    `json:"return_value,omitempty"`
	Error              string                 `json:"error,omitempty"`
	Metrics            map[string]any         `json:"metrics"`
	StateChanges       []StateChange          `json:"state_changes"`
	Events             []RuntimeEvent         `json:"events"`
	ExecutionTimeMs    uint64                 `json:"execution_time_ms"`
	SecurityContext    SecureExecutionContext `json:"security_context"`
	SecurityViolations []SecurityViolation    `json:"security_violations"`
}

// NewExecutionResult 创建空结果
func NewExecutionResult(executionID string) *ExecutionResult {
	return &ExecutionResult{
		ExecutionID:        executionID,
		Metrics:            map[string]any{},
		StateChanges:       []StateChange{},
		Events:             []RuntimeEvent{},
		SecurityContext:    NewSecureExecutionContext(),
		SecurityViolations: []SecurityViolation{},
	}
}

// Fail 标记失败并记录错误信息
func (r *ExecutionResult) Fail(msg string) {
	r.Success = false
	r.Error = msg
}

// AttachSecurityContext 并入安全上下文，并重建顶层违规视图
func (r *ExecutionResult) AttachSecurityContext(sc SecureExecutionContext) {
	r.SecurityContext = sc.Clone()
	r.syncViolations()
}

// AddSecurityViolation 追加违规到安全上下文，顶层视图随之更新
func (r *ExecutionResult) AddSecurityViolation(v SecurityViolation) {
	r.SecurityContext.SecurityViolations = append(r.SecurityContext.SecurityViolations, v)
	r.syncViolations()
}

func (r *ExecutionResult) syncViolations() {
	r.SecurityViolations = append([]SecurityViolation{}, r.SecurityContext.SecurityViolations...)
}

// HasSecurityViolations 是否存在任何违规
func (r *ExecutionResult) HasSecurityViolations() bool {
	return len(r.SecurityViolations) > 0
}

// HasCriticalViolations 是否存在Critical违规
func (r *ExecutionResult) HasCriticalViolations() bool {
	return r.SecurityContext.HasCriticalViolations()
}

// HighestSeverity 最高违规级别；无违规时第二个返回值为false
func (r *ExecutionResult) HighestSeverity() (SecuritySeverity, bool) {
	return HighestSeverity(r.SecurityViolations)
}

// SetElapsed 记录执行耗时
func (r *ExecutionResult) SetElapsed(d time.Duration) {
	r.ExecutionTimeMs = uint64(d.Milliseconds())
}

// ==================== 安全报告 ====================

// SecurityReport 单次执行的安全报告
type SecurityReport struct {
	ExecutionID     string                `json:"execution_id"`
	EnvironmentID   string                `json:"environment_id"`
	GeneratedAt     uint64                `json:"generated_at"`
	Passed          bool                  `json:"passed"`
	HighestSeverity *SecuritySeverity     `json:"highest_severity,omitempty"`
	CountBySeverity SeverityCounts        `json:"count_by_severity"`
	CountByType     map[ViolationType]int `json:"count_by_type"`
	GasUsed         uint64                `json:"gas_used"`
	MemoryUsed      uint64                `json:"memory_used"`
	PeakCallDepth   uint32                `json:"peak_call_depth"`
	ExternalCalls   uint32                `json:"external_calls"`
	Violations      []SecurityViolation   `json:"violations"`
}

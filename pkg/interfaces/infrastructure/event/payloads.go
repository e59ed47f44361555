package event

import "github.com/weisyn/chainruntime/pkg/types"

// EnvironmentStateChanged 环境状态变更事件
type EnvironmentStateChanged struct {
	EnvironmentID string
	From          types.EnvironmentState
	To            types.EnvironmentState
	Reason        string
	Timestamp     uint64
}

// ExecutionCompleted 执行完成事件
type ExecutionCompleted struct {
	EnvironmentID   string
	ExecutionID     string
	Success         bool
	ExecutionTimeMs uint64
	Violations      int
	Critical        bool
}

// SecurityViolationDetected 安全违规事件
type SecurityViolationDetected struct {
	EnvironmentID string
	ExecutionID   string
	Violation     types.SecurityViolation
}

package security

import (
	"time"

	"github.com/weisyn/chainruntime/pkg/types"
)

// BuildReport 把一次执行的结果汇总为安全报告
//
// 报告只读取结果中的安全上下文；没有任何违规时 Passed 为 true。
func BuildReport(environmentID string, result *types.ExecutionResult, now time.Time) (*types.SecurityReport, error) {
	if result == nil {
		return nil, ErrNoExecutionData
	}
	sc := result.SecurityContext
	report := &types.SecurityReport{
		ExecutionID:     result.ExecutionID,
		EnvironmentID:   environmentID,
		GeneratedAt:     uint64(now.Unix()),
		CountBySeverity: sc.ViolationCountBySeverity(),
		CountByType:     map[types.ViolationType]int{},
		GasUsed:         sc.GasUsed,
		MemoryUsed:      sc.MemoryUsed,
		PeakCallDepth:   sc.PeakCallDepth,
		ExternalCalls:   sc.ExternalCallCount,
		Violations:      append([]types.SecurityViolation{}, sc.SecurityViolations...),
	}
	for _, v := range sc.SecurityViolations {
		report.CountByType[v.Type]++
	}
	if highest, ok := types.HighestSeverity(sc.SecurityViolations); ok {
		report.HighestSeverity = &highest
	}
	report.Passed = len(sc.SecurityViolations) == 0
	return report, nil
}

package security

import "errors"

// ============================================================================
//                              安全模块错误定义
// ============================================================================

var (
	// ErrNoExecutionData 生成报告时缺少执行结果
	ErrNoExecutionData = errors.New("no execution data for report")
)

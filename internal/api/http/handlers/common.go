// Package handlers 运行时 HTTP 接口处理器
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apitypes "github.com/weisyn/chainruntime/internal/api/types"
	"github.com/weisyn/chainruntime/internal/core/engines/codepath"
	"github.com/weisyn/chainruntime/internal/core/engines/simulator"
	"github.com/weisyn/chainruntime/internal/core/engines/wasm"
	coreruntime "github.com/weisyn/chainruntime/internal/core/runtime"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// RuntimeService 处理器依赖的运行时能力，由 runtime.Manager 实现
type RuntimeService interface {
	BlockchainID() string
	Capabilities() types.RuntimeCapabilities
	MetricsDefinition() []types.RuntimeMetricDefinition
	IsAvailable(ctx context.Context) bool

	Environments() []types.RuntimeEnvironment
	Environment(envID string) (*types.RuntimeEnvironment, error)
	EnvironmentConfig(envID string) (types.RuntimeConfig, error)
	Executions(envID string) ([]string, error)
	ExecutionHistory(ctx context.Context, envID string) ([]string, error)

	CreateEnvironment(ctx context.Context, config types.RuntimeConfig) (*types.RuntimeEnvironment, error)
	Destroy(ctx context.Context, envID string) error
	ExecuteSecure(ctx context.Context, envID, codePath string, inputs types.ExecutionInputs, opts ...coreruntime.ExecuteOption) (*types.ExecutionResult, error)

	ExecutionResult(ctx context.Context, executionID string) (*types.ExecutionResult, error)
	GetSecurityReport(ctx context.Context, executionID string) (*types.SecurityReport, error)
}

var _ RuntimeService = (*coreruntime.Manager)(nil)

// errorMapping 运行时错误到 HTTP 状态与错误码的映射，按顺序匹配
var errorMapping = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{coreruntime.ErrEnvironmentNotFound, http.StatusNotFound, apitypes.CodeRuntimeEnvironmentNotFound, "环境不存在"},
	{runtime.ErrUnknownEnvironment, http.StatusNotFound, apitypes.CodeRuntimeEnvironmentNotFound, "环境不存在"},
	{coreruntime.ErrReportNotFound, http.StatusNotFound, apitypes.CodeRuntimeReportNotFound, "执行记录不存在"},
	{runtime.ErrExecutionNotFound, http.StatusNotFound, apitypes.CodeRuntimeReportNotFound, "执行记录不存在"},
	{coreruntime.ErrEnvironmentDestroyed, http.StatusConflict, apitypes.CodeRuntimeEnvironmentNotReady, "环境已销毁"},
	{coreruntime.ErrEnvironmentNotReady, http.StatusConflict, apitypes.CodeRuntimeEnvironmentNotReady, "环境当前不可执行"},
	{coreruntime.ErrInvalidStateTransition, http.StatusConflict, apitypes.CodeRuntimeEnvironmentNotReady, "环境状态不允许该操作"},
	{types.ErrInvalidRuntimeConfig, http.StatusBadRequest, apitypes.CodeRuntimeInvalidConfig, "运行时配置无效"},
	{types.ErrInvalidSecurityPolicy, http.StatusBadRequest, apitypes.CodeRuntimeInvalidConfig, "安全策略无效"},
	{coreruntime.ErrBackendUnavailable, http.StatusServiceUnavailable, apitypes.CodeRuntimeBackendUnavailable, "执行后端不可用"},
	{coreruntime.ErrExecutionAborted, http.StatusUnprocessableEntity, apitypes.CodeRuntimeExecutionAborted, "出现严重安全违规，执行已中止"},
	{coreruntime.ErrExecutionCancelled, http.StatusGatewayTimeout, apitypes.CodeCommonTimeout, "执行被取消或超时"},
	// 调用方提交的代码路径或代码本身有误，优先于通用执行失败
	{codepath.ErrOutsideCodeRoot, http.StatusBadRequest, apitypes.CodeCommonValidationError, "代码路径不在允许的目录内"},
	{codepath.ErrInvalidCodePath, http.StatusBadRequest, apitypes.CodeCommonValidationError, "代码路径无效"},
	{codepath.ErrSymlinkChainTooLong, http.StatusBadRequest, apitypes.CodeCommonValidationError, "代码路径无效"},
	{simulator.ErrInvalidProgram, http.StatusBadRequest, apitypes.CodeCommonValidationError, "程序格式无效"},
	{simulator.ErrFunctionNotDefined, http.StatusBadRequest, apitypes.CodeCommonValidationError, "目标函数不存在"},
	{wasm.ErrCompileFailed, http.StatusBadRequest, apitypes.CodeCommonValidationError, "程序格式无效"},
	{wasm.ErrFunctionNotExported, http.StatusBadRequest, apitypes.CodeCommonValidationError, "目标函数不存在"},
	{wasm.ErrInvalidArguments, http.StatusBadRequest, apitypes.CodeCommonValidationError, "调用参数无效"},
	{coreruntime.ErrEnvironmentCreationFailed, http.StatusBadGateway, apitypes.CodeRuntimeExecutionFailed, "后端创建环境失败"},
	{coreruntime.ErrExecutionFailed, http.StatusBadGateway, apitypes.CodeRuntimeExecutionFailed, "执行失败"},
}

// problemFor 将运行时错误转换为 Problem Details；无法识别的错误交给 ErrorHandler 兜底
func problemFor(err error, details map[string]interface{}) error {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return apitypes.NewProblemDetails(m.code, apitypes.LayerRuntimeService, m.message, "", m.status, details).WithCause(err)
		}
	}
	return err
}

// abort 通过 gin 错误链上报，由 ErrorHandler 写出响应
func abort(c *gin.Context, err error, details map[string]interface{}) {
	_ = c.Error(problemFor(err, details))
	c.Abort()
}

func badRequest(c *gin.Context, detail string) {
	_ = c.Error(apitypes.NewProblemDetails(
		apitypes.CodeCommonValidationError,
		apitypes.LayerRuntimeService,
		"请求参数无效",
		detail,
		http.StatusBadRequest,
		nil,
	))
	c.Abort()
}

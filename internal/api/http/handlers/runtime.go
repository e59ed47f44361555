package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	coreruntime "github.com/weisyn/chainruntime/internal/core/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// RuntimeHandler 环境生命周期与执行接口
type RuntimeHandler struct {
	runtime RuntimeService
}

// NewRuntimeHandler 创建运行时处理器
func NewRuntimeHandler(runtime RuntimeService) *RuntimeHandler {
	return &RuntimeHandler{runtime: runtime}
}

// RegisterRoutes 注册运行时路由
func (h *RuntimeHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/capabilities", h.Capabilities)
	v1.GET("/metrics-definitions", h.MetricsDefinitions)

	envs := v1.Group("/environments")
	envs.GET("", h.ListEnvironments)
	envs.POST("", h.CreateEnvironment)
	envs.GET("/:id", h.GetEnvironment)
	envs.DELETE("/:id", h.DestroyEnvironment)
	envs.GET("/:id/executions", h.ExecutionHistory)
	envs.POST("/:id/executions", h.Execute)
}

// ==================== 描述信息 ====================

// Capabilities 后端能力
func (h *RuntimeHandler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"blockchain_id": h.runtime.BlockchainID(),
		"capabilities":  h.runtime.Capabilities(),
	})
}

// MetricsDefinitions 后端导出的指标定义
func (h *RuntimeHandler) MetricsDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"blockchain_id": h.runtime.BlockchainID(),
		"metrics":       h.runtime.MetricsDefinition(),
	})
}

// ==================== 环境 ====================

// ListEnvironments 列出全部环境
func (h *RuntimeHandler) ListEnvironments(c *gin.Context) {
	envs := h.runtime.Environments()
	c.JSON(http.StatusOK, gin.H{"environments": envs, "total": len(envs)})
}

// GetEnvironment 环境详情：描述、配置与执行记录
func (h *RuntimeHandler) GetEnvironment(c *gin.Context) {
	envID := c.Param("id")
	env, err := h.runtime.Environment(envID)
	if err != nil {
		abort(c, err, map[string]interface{}{"environment_id": envID})
		return
	}
	config, err := h.runtime.EnvironmentConfig(envID)
	if err != nil {
		abort(c, err, map[string]interface{}{"environment_id": envID})
		return
	}
	executions, err := h.runtime.Executions(envID)
	if err != nil {
		abort(c, err, map[string]interface{}{"environment_id": envID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"environment": env,
		"config":      config,
		"description": config.Describe(),
		"executions":  executions,
	})
}

// ExecutionHistory 结果库中该环境的执行记录，环境销毁后仍可查询
func (h *RuntimeHandler) ExecutionHistory(c *gin.Context) {
	envID := c.Param("id")
	executions, err := h.runtime.ExecutionHistory(c.Request.Context(), envID)
	if err != nil {
		abort(c, err, map[string]interface{}{"environment_id": envID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"environment_id": envID, "executions": executions, "total": len(executions)})
}

// CreateEnvironmentRequest 创建环境请求；Preset 为空时使用 default
type CreateEnvironmentRequest struct {
	Preset         string                `json:"preset"`
	TimeoutSeconds *uint64               `json:"timeout_seconds,omitempty"`
	MemoryLimitMB  *uint64               `json:"memory_limit_mb,omitempty"`
	NetworkMode    *types.NetworkMode    `json:"network_mode,omitempty"`
	SecurityPolicy *types.SecurityPolicy `json:"security_policy,omitempty"`
}

func (r CreateEnvironmentRequest) config() (types.RuntimeConfig, error) {
	base, err := types.PresetConfig(r.Preset)
	if err != nil {
		return types.RuntimeConfig{}, err
	}
	var opts []types.RuntimeConfigOption
	if r.TimeoutSeconds != nil {
		opts = append(opts, types.WithTimeoutSeconds(*r.TimeoutSeconds))
	}
	if r.MemoryLimitMB != nil {
		opts = append(opts, types.WithMemoryLimitMB(*r.MemoryLimitMB))
	}
	if r.NetworkMode != nil {
		opts = append(opts, types.WithNetworkMode(*r.NetworkMode))
	}
	if r.SecurityPolicy != nil {
		opts = append(opts, types.WithSecurityPolicy(*r.SecurityPolicy))
	}
	return types.NewRuntimeConfigFrom(base, opts...)
}

// CreateEnvironment 按预设与覆盖项创建环境
func (h *RuntimeHandler) CreateEnvironment(c *gin.Context) {
	var req CreateEnvironmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	config, err := req.config()
	if err != nil {
		abort(c, err, map[string]interface{}{"preset": req.Preset})
		return
	}
	env, err := h.runtime.CreateEnvironment(c.Request.Context(), config)
	if err != nil {
		details := map[string]interface{}{}
		if env != nil {
			details["environment_id"] = env.EnvironmentID
		}
		abort(c, err, details)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"environment": env})
}

// DestroyEnvironment 销毁环境
func (h *RuntimeHandler) DestroyEnvironment(c *gin.Context) {
	envID := c.Param("id")
	if err := h.runtime.Destroy(c.Request.Context(), envID); err != nil {
		abort(c, err, map[string]interface{}{"environment_id": envID})
		return
	}
	c.Status(http.StatusNoContent)
}

// ==================== 执行 ====================

// ExecuteRequest 执行请求；CodePath 为服务端可读的程序路径
type ExecuteRequest struct {
	CodePath        string                  `json:"code_path" binding:"required"`
	Function        string                  `json:"function" binding:"required"`
	Parameters      map[string]any          `json:"parameters,omitempty"`
	Context         types.InvocationContext `json:"context"`
	AbortOnCritical *bool                   `json:"abort_on_critical,omitempty"`
}

// Execute 在安全监控下执行一次
//
// 代码层面的失败（revert、trap、安全违规）返回 200 与 Success=false 的结果；
// 只有操作错误才返回错误响应。
func (h *RuntimeHandler) Execute(c *gin.Context) {
	envID := c.Param("id")
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var opts []coreruntime.ExecuteOption
	if req.AbortOnCritical != nil {
		opts = append(opts, coreruntime.WithAbortOnCritical(*req.AbortOnCritical))
	}
	inputs := types.ExecutionInputs{
		TargetFunction: req.Function,
		Parameters:     req.Parameters,
		Context:        req.Context,
	}
	result, err := h.runtime.ExecuteSecure(c.Request.Context(), envID, req.CodePath, inputs, opts...)
	if err != nil {
		details := map[string]interface{}{"environment_id": envID}
		if result != nil {
			details["execution_id"] = result.ExecutionID
		}
		abort(c, err, details)
		return
	}
	c.JSON(http.StatusOK, gin.H{"environment_id": envID, "result": result})
}

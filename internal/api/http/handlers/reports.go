package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReportHandler 执行结果与安全报告查询
type ReportHandler struct {
	runtime RuntimeService
}

// NewReportHandler 创建报告处理器
func NewReportHandler(runtime RuntimeService) *ReportHandler {
	return &ReportHandler{runtime: runtime}
}

// RegisterRoutes 注册报告路由
func (h *ReportHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	executions := v1.Group("/executions")
	executions.GET("/:id", h.GetResult)
	executions.GET("/:id/report", h.GetReport)
}

// GetResult 已保存的执行结果
func (h *ReportHandler) GetResult(c *gin.Context) {
	executionID := c.Param("id")
	result, err := h.runtime.ExecutionResult(c.Request.Context(), executionID)
	if err != nil {
		abort(c, err, map[string]interface{}{"execution_id": executionID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetReport 执行的安全报告
func (h *ReportHandler) GetReport(c *gin.Context) {
	executionID := c.Param("id")
	report, err := h.runtime.GetSecurityReport(c.Request.Context(), executionID)
	if err != nil {
		abort(c, err, map[string]interface{}{"execution_id": executionID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

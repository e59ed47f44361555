package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weisyn/chainruntime/internal/app/version"
)

// HealthHandler 健康检查
type HealthHandler struct {
	runtime   RuntimeService
	startedAt time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(runtime RuntimeService) *HealthHandler {
	return &HealthHandler{runtime: runtime, startedAt: time.Now()}
}

// RegisterRoutes 注册健康检查路由
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.Health)
}

// Health 后端可用时返回 200，否则 503
func (h *HealthHandler) Health(c *gin.Context) {
	available := h.runtime.IsAvailable(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !available {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"version":        version.GetVersion(),
		"blockchain_id":  h.runtime.BlockchainID(),
		"available":      available,
		"environments":   len(h.runtime.Environments()),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

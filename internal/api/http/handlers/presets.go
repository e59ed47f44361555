package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weisyn/chainruntime/pkg/types"
)

// PresetView 预设配置视图
type PresetView struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Development bool                `json:"development"`
	Production  bool                `json:"production"`
	Test        bool                `json:"test"`
	Config      types.RuntimeConfig `json:"config"`
}

// Presets 列出全部内置预设
func Presets() []PresetView {
	views := make([]PresetView, 0, len(types.PresetNames))
	for _, name := range types.PresetNames {
		cfg, err := types.PresetConfig(name)
		if err != nil {
			continue
		}
		views = append(views, PresetView{
			Name:        name,
			Description: cfg.Describe(),
			Development: cfg.IsDevelopment(),
			Production:  cfg.IsProduction(),
			Test:        cfg.IsTest(),
			Config:      cfg,
		})
	}
	return views
}

// PresetHandler 预设查询
type PresetHandler struct{}

// NewPresetHandler 创建预设处理器
func NewPresetHandler() *PresetHandler {
	return &PresetHandler{}
}

// RegisterRoutes 注册预设路由
func (h *PresetHandler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/presets", h.List)
}

// List 全部预设
func (h *PresetHandler) List(c *gin.Context) {
	presets := Presets()
	c.JSON(http.StatusOK, gin.H{"presets": presets, "total": len(presets)})
}

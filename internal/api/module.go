// Package api 对外接口模块
package api

import (
	"go.uber.org/fx"

	"github.com/weisyn/chainruntime/internal/api/http"
)

// Module 返回API模块
//
// 通过 Invoke 确保 HTTP 服务器被实例化并挂上生命周期钩子。
func Module() fx.Option {
	return fx.Module("api",
		http.Module(),
		fx.Invoke(func(*http.Server) {}),
	)
}

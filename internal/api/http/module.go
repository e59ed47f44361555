package http

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	apiconfig "github.com/weisyn/chainruntime/internal/config/api"
	coreruntime "github.com/weisyn/chainruntime/internal/core/runtime"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// ModuleInput HTTP 模块输入依赖
type ModuleInput struct {
	fx.In

	Options    *apiconfig.APIOptions `optional:"true"`
	Logger     log.Logger            `optional:"true"`
	Manager    *coreruntime.Manager
	Registerer prometheus.Registerer `optional:"true"`
	Gatherer   prometheus.Gatherer   `optional:"true"`
	Lifecycle  fx.Lifecycle
}

// ProvideServer 创建服务器；启用时随 fx 生命周期启停
func ProvideServer(input ModuleInput) *Server {
	server := NewServer(ServerParams{
		Options:    input.Options,
		Logger:     input.Logger,
		Runtime:    input.Manager,
		Registerer: input.Registerer,
		Gatherer:   input.Gatherer,
	})
	if !server.options.Enabled {
		server.logger.Info("http api disabled")
		return server
	}
	input.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
	return server
}

// Module 返回 HTTP 服务模块
func Module() fx.Option {
	return fx.Module("api-http",
		fx.Provide(ProvideServer),
	)
}

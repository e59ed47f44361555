package simulator

import (
	"context"

	"go.uber.org/fx"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
)

// ModuleInput 模拟后端模块的输入依赖
type ModuleInput struct {
	fx.In

	Options   *runtimeconfig.BackendOptions `optional:"true"`
	Logger    log.Logger                    `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ModuleOutput 模拟后端模块的输出服务
type ModuleOutput struct {
	fx.Out

	Backend runtime.BlockchainRuntime `name:"simulator_engine"`
}

// ProvideEngine 提供模拟后端
func ProvideEngine(input ModuleInput) ModuleOutput {
	var options *runtimeconfig.BackendOptions
	if input.Options != nil && input.Options.Kind == runtimeconfig.BackendSimulator {
		options = input.Options
	}
	engine := New(options, input.Logger)
	input.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return engine.Close(ctx)
		},
	})
	return ModuleOutput{Backend: engine}
}

// Module 模拟后端 fx 模块
func Module() fx.Option {
	return fx.Module("engine-simulator",
		fx.Provide(ProvideEngine),
	)
}

package wasm

import (
	"context"

	"go.uber.org/fx"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
)

// ModuleInput WASM后端模块的输入依赖
type ModuleInput struct {
	fx.In

	Options   *runtimeconfig.BackendOptions `optional:"true"`
	Logger    log.Logger                    `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ModuleOutput WASM后端模块的输出服务
type ModuleOutput struct {
	fx.Out

	// 通过名称供后端选择器使用
	Backend runtime.BlockchainRuntime `name:"wasm_engine"`
}

// ProvideEngine 提供WASM后端，停止时关闭所有环境
func ProvideEngine(input ModuleInput) ModuleOutput {
	var options *runtimeconfig.BackendOptions
	if input.Options != nil && input.Options.Kind == runtimeconfig.BackendWASM {
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

// Module WASM 后端 fx 模块
func Module() fx.Option {
	return fx.Module("engine-wasm",
		fx.Provide(ProvideEngine),
	)
}

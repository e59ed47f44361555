package runtime

import (
	"context"

	"go.uber.org/fx"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/internal/core/infrastructure/metrics"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
)

// ModuleInput 运行时模块输入依赖
type ModuleInput struct {
	fx.In

	Backend    runtime.BlockchainRuntime
	Options    *runtimeconfig.RuntimeOptions
	Authorizer runtime.Authorizer      `optional:"true"`
	Logger     log.Logger              `optional:"true"`
	EventBus   event.EventBus          `optional:"true"`
	Metrics    *metrics.RuntimeMetrics `optional:"true"`
	Results    storage.BadgerStore     `optional:"true"`
	Cache      storage.MemoryStore     `optional:"true"`
	Lifecycle  fx.Lifecycle
}

// ModuleOutput 运行时模块输出服务
type ModuleOutput struct {
	fx.Out

	Manager     *Manager
	ResultStore *ResultStore
}

// Module 返回运行时模块
func Module() fx.Option {
	return fx.Module("runtime",
		fx.Provide(ProvideManager),
	)
}

// ProvideManager 组装生命周期管理器，停止时销毁所有环境
func ProvideManager(input ModuleInput) (ModuleOutput, error) {
	opts := []Option{
		WithAuthorizer(input.Authorizer),
		WithLogger(input.Logger),
		WithMetrics(input.Metrics),
	}
	if input.EventBus != nil {
		opts = append(opts, WithEventBus(input.EventBus))
	}
	if input.Options != nil {
		opts = append(opts, WithDefaultAbortOnCritical(input.Options.AbortOnCritical))
		opts = append(opts, WithCodeRoot(input.Options.CodeRoot))
	}

	var store *ResultStore
	if input.Results != nil {
		store = NewResultStore(input.Results, input.Cache, input.Logger)
		opts = append(opts, WithResultStore(store))
	}

	manager, err := NewManager(input.Backend, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}

	input.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return manager.Close(ctx)
		},
	})
	return ModuleOutput{Manager: manager, ResultStore: store}, nil
}

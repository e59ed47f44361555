// Package event 提供事件管理功能
package event

import (
	"context"

	"go.uber.org/fx"

	eventconfig "github.com/weisyn/chainruntime/internal/config/event"
	eventInterface "github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// ModuleInput 事件模块输入依赖
type ModuleInput struct {
	fx.In

	Options   *eventconfig.EventOptions
	Logger    log.Logger   `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ModuleOutput 事件模块输出服务
type ModuleOutput struct {
	fx.Out

	EventBus eventInterface.EventBus
}

// Module 返回事件模块
func Module() fx.Option {
	return fx.Module("event",
		fx.Provide(func(input ModuleInput) ModuleOutput {
			bus := New(input.Options, input.Logger)
			input.Lifecycle.Append(fx.Hook{
				// 停止前排空异步处理器
				OnStop: func(context.Context) error {
					bus.WaitAsync()
					return nil
				},
			})
			return ModuleOutput{EventBus: bus}
		}),
	)
}

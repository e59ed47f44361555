// Package config 提供应用配置管理功能
package config

import (
	"go.uber.org/fx"

	apiconfig "github.com/weisyn/chainruntime/internal/config/api"
	eventconfig "github.com/weisyn/chainruntime/internal/config/event"
	logconfig "github.com/weisyn/chainruntime/internal/config/log"
	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	badgerconfig "github.com/weisyn/chainruntime/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/chainruntime/internal/config/storage/memory"
	"github.com/weisyn/chainruntime/pkg/interfaces/config"
	"github.com/weisyn/chainruntime/pkg/types"
)

// ConfigParams 定义配置模块的依赖参数
type ConfigParams struct {
	fx.In

	// 应用配置选项
	AppOptions config.AppOptions `optional:"true"`
}

// ConfigOutput 定义配置模块的输出结构
type ConfigOutput struct {
	fx.Out

	// 配置提供者
	Provider config.Provider
}

// Module 返回配置模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			ProvideConfigServices,
			// 提供具体的配置类型用于依赖注入
			func(provider config.Provider) *logconfig.LogOptions { return provider.GetLog() },
			func(provider config.Provider) *badgerconfig.BadgerOptions { return provider.GetBadger() },
			func(provider config.Provider) *memoryconfig.MemoryOptions { return provider.GetMemory() },
			func(provider config.Provider) *eventconfig.EventOptions { return provider.GetEvent() },
			func(provider config.Provider) *apiconfig.APIOptions { return provider.GetAPI() },
			func(provider config.Provider) *runtimeconfig.RuntimeOptions { return provider.GetRuntime() },
			func(provider config.Provider) *runtimeconfig.BackendOptions { return provider.GetBackend() },
		),
	)
}

// ProvideConfigServices 提供配置服务
func ProvideConfigServices(params ConfigParams) (ConfigOutput, error) {
	var appConfig *types.AppConfig
	if params.AppOptions != nil {
		appConfig = params.AppOptions.GetAppConfig()
	}

	provider, err := NewProvider(appConfig)
	if err != nil {
		return ConfigOutput{}, err
	}
	return ConfigOutput{Provider: provider}, nil
}

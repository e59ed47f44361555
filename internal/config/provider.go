package config

import (
	"path/filepath"

	"github.com/weisyn/chainruntime/internal/config/api"
	"github.com/weisyn/chainruntime/internal/config/event"
	"github.com/weisyn/chainruntime/internal/config/log"
	"github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/internal/config/storage/badger"
	"github.com/weisyn/chainruntime/internal/config/storage/memory"
	"github.com/weisyn/chainruntime/pkg/interfaces/config"
	"github.com/weisyn/chainruntime/pkg/types"
)

const defaultAppName = "chainruntime"

// Provider 实现配置提供者接口
type Provider struct {
	appConfig *types.AppConfig

	runtime *runtime.RuntimeOptions
	backend *runtime.BackendOptions
}

var _ config.Provider = (*Provider)(nil)

// NewProvider 创建配置提供者
//
// 运行时与后端配置在此解析，非法配置直接返回错误。
func NewProvider(appConfig *types.AppConfig) (*Provider, error) {
	if appConfig == nil {
		appConfig = &types.AppConfig{}
	}
	runtimeOptions, err := runtime.New(appConfig.Runtime)
	if err != nil {
		return nil, err
	}
	backendOptions, err := runtime.NewBackend(appConfig.Backend)
	if err != nil {
		return nil, err
	}
	return &Provider{appConfig: appConfig, runtime: runtimeOptions, backend: backendOptions}, nil
}

// GetAppName 应用名称
func (p *Provider) GetAppName() string {
	if p.appConfig.AppName != nil && *p.appConfig.AppName != "" {
		return *p.appConfig.AppName
	}
	return defaultAppName
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	return log.New(p.appConfig.Log).GetOptions()
}

// GetBadger 获取执行结果库配置
//
// 未显式设置 storage.data_root 时，以 data_dir 为数据根目录。
func (p *Provider) GetBadger() *badger.BadgerOptions {
	options := badger.New(p.appConfig.Storage)
	if (p.appConfig.Storage == nil || p.appConfig.Storage.DataRoot == nil) && p.appConfig.DataDir != nil {
		options.Path = filepath.Join(*p.appConfig.DataDir, "badger")
	}
	return options
}

// GetMemory 获取热缓存配置
func (p *Provider) GetMemory() *memory.MemoryOptions {
	return memory.New(p.appConfig.Storage)
}

// GetEvent 获取事件配置
func (p *Provider) GetEvent() *event.EventOptions {
	return event.New(p.appConfig.Event)
}

// GetAPI 获取API服务配置
func (p *Provider) GetAPI() *api.APIOptions {
	return api.New(p.appConfig.API)
}

// GetRuntime 获取运行时配置
func (p *Provider) GetRuntime() *runtime.RuntimeOptions {
	return p.runtime
}

// GetBackend 获取执行后端配置
func (p *Provider) GetBackend() *runtime.BackendOptions {
	return p.backend
}

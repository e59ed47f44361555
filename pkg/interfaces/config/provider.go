// Package config provides configuration provider interfaces.
package config

import (
	apiconfig "github.com/weisyn/chainruntime/internal/config/api"
	eventconfig "github.com/weisyn/chainruntime/internal/config/event"
	logconfig "github.com/weisyn/chainruntime/internal/config/log"
	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	badgerconfig "github.com/weisyn/chainruntime/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/chainruntime/internal/config/storage/memory"
)

// Provider 配置提供者接口
//
// 所有返回值都已应用默认值；运行时与后端配置在创建 Provider 时解析并校验。
type Provider interface {
	// GetAppName 应用名称
	GetAppName() string

	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetBadger 获取执行结果库配置
	GetBadger() *badgerconfig.BadgerOptions

	// GetMemory 获取热缓存配置
	GetMemory() *memoryconfig.MemoryOptions

	// GetEvent 获取事件配置
	GetEvent() *eventconfig.EventOptions

	// GetAPI 获取API服务配置
	GetAPI() *apiconfig.APIOptions

	// GetRuntime 获取运行时配置（预设 + 覆盖项）
	GetRuntime() *runtimeconfig.RuntimeOptions

	// GetBackend 获取执行后端配置
	GetBackend() *runtimeconfig.BackendOptions
}

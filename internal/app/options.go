package app

import (
	"fmt"

	"go.uber.org/fx"

	configimpl "github.com/weisyn/chainruntime/internal/config"
	"github.com/weisyn/chainruntime/pkg/interfaces/config"
	"github.com/weisyn/chainruntime/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项，实现 config.AppOptions
type options struct {
	// 配置文件路径，为空时读取 CHAINRUNTIME_CONFIG_PATH
	configFilePath string

	// 嵌入的配置内容（优先级高于configFilePath）
	embeddedConfig []byte

	// 直接给出的配置（优先级最高）
	appConfig *types.AppConfig

	// API支持开关（默认启用）
	enableAPI bool

	// 附加的 fx 选项，用于取出组件或替换依赖
	extra []fx.Option
}

var _ config.AppOptions = (*options)(nil)

// WithConfigFile 设置配置文件路径（JSON 或 YAML）
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithEmbeddedConfig 设置嵌入的配置内容，按 YAML 解析（兼容 JSON）
func WithEmbeddedConfig(configBytes []byte) Option {
	return func(o *options) {
		o.embeddedConfig = configBytes
	}
}

// WithAppConfig 直接使用给定配置
func WithAppConfig(appConfig *types.AppConfig) Option {
	return func(o *options) {
		o.appConfig = appConfig
	}
}

// WithAPI 启用API模块
func WithAPI() Option {
	return func(o *options) {
		o.enableAPI = true
	}
}

// WithoutAPI 禁用API模块
func WithoutAPI() Option {
	return func(o *options) {
		o.enableAPI = false
	}
}

// WithFxOptions 追加 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) {
		o.extra = append(o.extra, opts...)
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	o := &options{enableAPI: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolve 按优先级确定应用配置：直接配置 > 嵌入内容 > 配置文件
func (o *options) resolve() error {
	switch {
	case o.appConfig != nil:
		return configimpl.ValidateAppConfig(o.appConfig)
	case len(o.embeddedConfig) > 0:
		appConfig, err := configimpl.ParseAppConfig(o.embeddedConfig, ".yaml")
		if err != nil {
			return fmt.Errorf("解析嵌入配置失败: %w", err)
		}
		if err := configimpl.ValidateAppConfig(appConfig); err != nil {
			return err
		}
		o.appConfig = appConfig
	default:
		appConfig, err := configimpl.LoadAppConfig(o.configFilePath)
		if err != nil {
			return err
		}
		o.appConfig = appConfig
	}
	return nil
}

// GetAppConfig 返回应用程序配置
func (o *options) GetAppConfig() *types.AppConfig {
	return o.appConfig
}

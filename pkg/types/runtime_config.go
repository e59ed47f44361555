package types

import (
	"fmt"

	"github.com/weisyn/chainruntime/pkg/constants"
)

// RuntimeConfig 运行时环境配置
//
// 只能通过预设或 NewRuntimeConfig 得到已校验的实例，构造后不再修改。
type RuntimeConfig struct {
	TimeoutSeconds   uint64         `json:"timeout_seconds" yaml:"timeout_seconds"`
	MemoryLimitMB    uint64         `json:"memory_limit_mb" yaml:"memory_limit_mb"`
	NetworkMode      NetworkMode    `json:"network_mode" yaml:"network_mode"`
	EnableMonitoring bool           `json:"enable_monitoring" yaml:"enable_monitoring"`
	BlockchainConfig map[string]any `json:"blockchain_config,omitempty" yaml:"blockchain_config,omitempty"`
	Security         SecurityPolicy `json:"security" yaml:"security"`
}

// ==================== 预设 ====================

// DefaultRuntimeConfig 默认配置：本地网络、开启监控、默认安全策略
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		TimeoutSeconds:   constants.DefaultTimeoutSeconds,
		MemoryLimitMB:    constants.DefaultMemoryLimitMB,
		NetworkMode:      NetworkLocal,
		EnableMonitoring: true,
		BlockchainConfig: map[string]any{},
		Security:         DefaultSecurityPolicy(),
	}
}

// LocalDevelopmentConfig 本地开发预设：宽松安全策略、本地网络
func LocalDevelopmentConfig() RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	cfg.Security = PermissiveSecurityPolicy()
	cfg.NetworkMode = NetworkLocal
	return cfg
}

// ProductionConfig 生产预设：严格安全策略、主网分叉
func ProductionConfig() RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	cfg.Security = StrictSecurityPolicy()
	cfg.NetworkMode = NetworkMainnetFork
	return cfg
}

// TestingConfig 测试预设：短超时、小内存、关闭监控、宽松安全策略
func TestingConfig() RuntimeConfig {
	return RuntimeConfig{
		TimeoutSeconds:   constants.TestingTimeoutSeconds,
		MemoryLimitMB:    constants.TestingMemoryLimitMB,
		NetworkMode:      NetworkLocal,
		EnableMonitoring: false,
		BlockchainConfig: map[string]any{},
		Security:         PermissiveSecurityPolicy(),
	}
}

// Preset 名称
const (
	PresetDefault          = "default"
	PresetLocalDevelopment = "local_development"
	PresetProduction       = "production"
	PresetTesting          = "testing"
)

// PresetNames 全部预设名称
var PresetNames = []string{PresetDefault, PresetLocalDevelopment, PresetProduction, PresetTesting}

// PresetConfig 按名称获取预设配置
func PresetConfig(name string) (RuntimeConfig, error) {
	switch name {
	case "", PresetDefault:
		return DefaultRuntimeConfig(), nil
	case PresetLocalDevelopment:
		return LocalDevelopmentConfig(), nil
	case PresetProduction:
		return ProductionConfig(), nil
	case PresetTesting:
		return TestingConfig(), nil
	}
	return RuntimeConfig{}, WrapInvalidRuntimeConfigError(fmt.Sprintf("unknown preset %q", name))
}

// ==================== 校验与描述 ====================

// Validate 拒绝零值上限与未知网络模式
func (c RuntimeConfig) Validate() error {
	if c.TimeoutSeconds == 0 {
		return WrapInvalidRuntimeConfigError("timeout cannot be zero")
	}
	if c.MemoryLimitMB == 0 {
		return WrapInvalidRuntimeConfigError("memory limit cannot be zero")
	}
	if !c.NetworkMode.IsValid() {
		return WrapInvalidRuntimeConfigError(fmt.Sprintf("unknown network mode %q", c.NetworkMode))
	}
	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRuntimeConfig, err)
	}
	return nil
}

// Describe 返回一行配置摘要
func (c RuntimeConfig) Describe() string {
	security := "permissive"
	if c.Security.SandboxEnabled {
		security = "strict"
	}
	return fmt.Sprintf("RuntimeConfig: timeout=%ds, memory=%dMB, network=%s, monitoring=%t, security=%s",
		c.TimeoutSeconds, c.MemoryLimitMB, c.NetworkMode, c.EnableMonitoring, security)
}

// IsDevelopment 本地网络且未开启沙箱
func (c RuntimeConfig) IsDevelopment() bool {
	return c.NetworkMode == NetworkLocal && !c.Security.SandboxEnabled
}

// IsProduction 主网分叉且开启沙箱
func (c RuntimeConfig) IsProduction() bool {
	return c.NetworkMode == NetworkMainnetFork && c.Security.SandboxEnabled
}

// IsTest 短超时、小内存且关闭监控
func (c RuntimeConfig) IsTest() bool {
	return c.TimeoutSeconds <= constants.TestingTimeoutSeconds &&
		c.MemoryLimitMB <= constants.TestingMemoryLimitMB &&
		!c.EnableMonitoring
}

// Clone 拷贝配置，BlockchainConfig独立
func (c RuntimeConfig) Clone() RuntimeConfig {
	out := c
	out.BlockchainConfig = make(map[string]any, len(c.BlockchainConfig))
	for k, v := range c.BlockchainConfig {
		out.BlockchainConfig[k] = v
	}
	return out
}

// ==================== 函数式选项 ====================

// RuntimeConfigOption 配置选项
type RuntimeConfigOption func(*RuntimeConfig)

// NewRuntimeConfig 以默认配置为基础应用选项并校验
func NewRuntimeConfig(opts ...RuntimeConfigOption) (RuntimeConfig, error) {
	return NewRuntimeConfigFrom(DefaultRuntimeConfig(), opts...)
}

// NewRuntimeConfigFrom 以给定配置（通常是预设）为基础应用选项并校验
func NewRuntimeConfigFrom(base RuntimeConfig, opts ...RuntimeConfigOption) (RuntimeConfig, error) {
	cfg := base.Clone()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

func WithTimeoutSeconds(seconds uint64) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.TimeoutSeconds = seconds }
}

func WithMemoryLimitMB(mb uint64) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.MemoryLimitMB = mb }
}

func WithNetworkMode(mode NetworkMode) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.NetworkMode = mode }
}

func WithMonitoring(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.EnableMonitoring = enabled }
}

// WithBlockchainConfig 设置一项后端专用配置
func WithBlockchainConfig(key string, value any) RuntimeConfigOption {
	return func(c *RuntimeConfig) {
		if c.BlockchainConfig == nil {
			c.BlockchainConfig = map[string]any{}
		}
		c.BlockchainConfig[key] = value
	}
}

// WithSecurityPolicy 整体替换安全策略
func WithSecurityPolicy(policy SecurityPolicy) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security = policy }
}

func WithSandbox(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.SandboxEnabled = enabled }
}

func WithReentrancyProtection(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.ReentrancyProtection = enabled }
}

func WithOverflowDetection(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.OverflowDetection = enabled }
}

func WithAccessControlVerification(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.AccessControlVerification = enabled }
}

func WithMaxCallDepth(depth uint32) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.MaxCallDepth = depth }
}

func WithMaxExternalCalls(n uint32) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.MaxExternalCalls = n }
}

func WithGasLimitEnforcement(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.GasLimitEnforcement = enabled }
}

func WithMaxGasLimit(gas uint64) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.MaxGasLimit = gas }
}

func WithMemoryLimitEnforcement(enabled bool) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.MemoryLimitEnforcement = enabled }
}

func WithMaxMemoryBytes(n uint64) RuntimeConfigOption {
	return func(c *RuntimeConfig) { c.Security.MaxMemoryBytes = n }
}

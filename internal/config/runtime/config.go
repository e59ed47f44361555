// Package runtime 提供执行运行时与执行后端配置
package runtime

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/weisyn/chainruntime/pkg/types"
)

// 执行后端类型
const (
	BackendWASM      = "wasm"
	BackendSimulator = "simulator"
)

const (
	defaultBackendKind     = BackendWASM
	defaultAbortOnCritical = false
)

// defaultBlockchainIDs 各后端默认的链标识
var defaultBlockchainIDs = map[string]string{
	BackendWASM:      "wasm-local",
	BackendSimulator: "simulator",
}

// RuntimeOptions 运行时配置选项
type RuntimeOptions struct {
	// Preset 解析时使用的预设名称
	Preset string `json:"preset" yaml:"preset"`
	// Config 预设叠加覆盖项后、已校验的运行时配置
	Config types.RuntimeConfig `json:"config" yaml:"config"`
	// AbortOnCritical 出现Critical违规时中止执行
	AbortOnCritical bool `json:"abort_on_critical" yaml:"abort_on_critical"`
	// RoleGrants 角色授权表；为空时使用占位授权规则
	RoleGrants map[string][]string `json:"role_grants,omitempty" yaml:"role_grants,omitempty"`
	// CodeRoot 代码根目录；为空时不限制代码路径
	CodeRoot string `json:"code_root,omitempty" yaml:"code_root,omitempty"`
}

// BackendOptions 执行后端配置选项
type BackendOptions struct {
	Kind         string `json:"kind" yaml:"kind"`
	BlockchainID string `json:"blockchain_id" yaml:"blockchain_id"`
}

// New 解析运行时配置：先取预设，再叠加用户覆盖项并校验
func New(user *types.UserRuntimeConfig) (*RuntimeOptions, error) {
	options := &RuntimeOptions{Preset: types.PresetDefault, AbortOnCritical: defaultAbortOnCritical}
	if user == nil {
		options.Config = types.DefaultRuntimeConfig()
		return options, nil
	}

	if user.Preset != nil && *user.Preset != "" {
		options.Preset = strings.ToLower(*user.Preset)
	}
	base, err := types.PresetConfig(options.Preset)
	if err != nil {
		return nil, err
	}

	cfg, err := types.NewRuntimeConfigFrom(base, overrides(user)...)
	if err != nil {
		return nil, fmt.Errorf("runtime preset %s: %w", options.Preset, err)
	}
	options.Config = cfg

	if user.AbortOnCritical != nil {
		options.AbortOnCritical = *user.AbortOnCritical
	}
	if user.CodeRoot != nil && *user.CodeRoot != "" {
		options.CodeRoot = filepath.Clean(*user.CodeRoot)
	}
	if len(user.RoleGrants) > 0 {
		options.RoleGrants = make(map[string][]string, len(user.RoleGrants))
		for role, callers := range user.RoleGrants {
			options.RoleGrants[role] = append([]string{}, callers...)
		}
	}
	return options, nil
}

// overrides 把用户显式设置的字段转换为配置选项
func overrides(user *types.UserRuntimeConfig) []types.RuntimeConfigOption {
	var opts []types.RuntimeConfigOption
	if user.TimeoutSeconds != nil {
		opts = append(opts, types.WithTimeoutSeconds(*user.TimeoutSeconds))
	}
	if user.MemoryLimitMB != nil {
		opts = append(opts, types.WithMemoryLimitMB(*user.MemoryLimitMB))
	}
	if user.NetworkMode != nil {
		opts = append(opts, types.WithNetworkMode(types.NetworkMode(strings.ToLower(*user.NetworkMode))))
	}
	if user.EnableMonitoring != nil {
		opts = append(opts, types.WithMonitoring(*user.EnableMonitoring))
	}
	for k, v := range user.BlockchainConfig {
		opts = append(opts, types.WithBlockchainConfig(k, v))
	}

	sec := user.Security
	if sec == nil {
		return opts
	}
	if sec.SandboxEnabled != nil {
		opts = append(opts, types.WithSandbox(*sec.SandboxEnabled))
	}
	if sec.ReentrancyProtection != nil {
		opts = append(opts, types.WithReentrancyProtection(*sec.ReentrancyProtection))
	}
	if sec.OverflowDetection != nil {
		opts = append(opts, types.WithOverflowDetection(*sec.OverflowDetection))
	}
	if sec.AccessControlVerification != nil {
		opts = append(opts, types.WithAccessControlVerification(*sec.AccessControlVerification))
	}
	if sec.MaxCallDepth != nil {
		opts = append(opts, types.WithMaxCallDepth(*sec.MaxCallDepth))
	}
	if sec.MaxExternalCalls != nil {
		opts = append(opts, types.WithMaxExternalCalls(*sec.MaxExternalCalls))
	}
	if sec.GasLimitEnforcement != nil {
		opts = append(opts, types.WithGasLimitEnforcement(*sec.GasLimitEnforcement))
	}
	if sec.MaxGasLimit != nil {
		opts = append(opts, types.WithMaxGasLimit(*sec.MaxGasLimit))
	}
	if sec.MemoryLimitEnforcement != nil {
		opts = append(opts, types.WithMemoryLimitEnforcement(*sec.MemoryLimitEnforcement))
	}
	if sec.MaxMemoryBytes != nil {
		opts = append(opts, types.WithMaxMemoryBytes(*sec.MaxMemoryBytes))
	}
	return opts
}

// NewBackend 解析执行后端配置，未知后端类型返回错误
func NewBackend(user *types.UserBackendConfig) (*BackendOptions, error) {
	options := &BackendOptions{Kind: defaultBackendKind}
	if user != nil && user.Kind != nil && *user.Kind != "" {
		options.Kind = strings.ToLower(*user.Kind)
	}
	id, ok := defaultBlockchainIDs[options.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend kind %q", options.Kind)
	}
	options.BlockchainID = id
	if user != nil && user.BlockchainID != nil && *user.BlockchainID != "" {
		options.BlockchainID = *user.BlockchainID
	}
	return options, nil
}

package types

import (
	"fmt"

	"github.com/weisyn/chainruntime/pkg/constants"
)

// ==================== 网络模式 ====================

// NetworkMode 环境连接的网络类型
type NetworkMode string

const (
	NetworkLocal       NetworkMode = "local"
	NetworkTestnet     NetworkMode = "testnet"
	NetworkMainnetFork NetworkMode = "mainnet_fork"
)

// IsValid 是否为已定义的网络模式
func (m NetworkMode) IsValid() bool {
	switch m {
	case NetworkLocal, NetworkTestnet, NetworkMainnetFork:
		return true
	}
	return false
}

// ==================== 运行时类型 ====================

// RuntimeType 后端承载环境的方式
type RuntimeType string

const (
	RuntimeDocker        RuntimeType = "docker"
	RuntimeLocalProcess  RuntimeType = "local_process"
	RuntimeCloudInstance RuntimeType = "cloud_instance"
	RuntimeInMemory      RuntimeType = "in_memory"
)

// ==================== 环境状态机 ====================

// EnvironmentState 执行环境生命周期状态
//
// 状态转换：
//
//	Creating -> Ready | Error | Stopped
//	Ready    -> Running | Stopped | Error
//	Running  -> Ready | Stopped | Error
//	Error    -> Stopped
//	Stopped  为终态
type EnvironmentState string

const (
	EnvironmentCreating EnvironmentState = "creating"
	EnvironmentReady    EnvironmentState = "ready"
	EnvironmentRunning  EnvironmentState = "running"
	EnvironmentStopped  EnvironmentState = "stopped"
	EnvironmentError    EnvironmentState = "error"
)

var environmentTransitions = map[EnvironmentState][]EnvironmentState{
	EnvironmentCreating: {EnvironmentReady, EnvironmentError, EnvironmentStopped},
	EnvironmentReady:    {EnvironmentRunning, EnvironmentStopped, EnvironmentError},
	EnvironmentRunning:  {EnvironmentReady, EnvironmentStopped, EnvironmentError},
	EnvironmentError:    {EnvironmentStopped},
}

// CanTransitionTo 判断状态转换是否合法
func (s EnvironmentState) CanTransitionTo(next EnvironmentState) bool {
	for _, allowed := range environmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func (s EnvironmentState) IsTerminal() bool {
	return s == EnvironmentStopped
}

// ==================== 运行时环境 ====================

// RuntimeEnvironment 已创建的隔离执行环境
type RuntimeEnvironment struct {
	EnvironmentID string            `json:"environment_id"`
	BlockchainID  string            `json:"blockchain_id"`
	RuntimeType   RuntimeType       `json:"runtime_type"`
	EndpointURL   string            `json:"endpoint_url"`
	State         EnvironmentState  `json:"state"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Clone 拷贝环境描述，Metadata独立
func (e RuntimeEnvironment) Clone() RuntimeEnvironment {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// ==================== 指标定义 ====================

// MetricKind 指标类别
type MetricKind string

const (
	MetricKindGas     MetricKind = "gas"
	MetricKindTime    MetricKind = "time"
	MetricKindMemory  MetricKind = "memory"
	MetricKindStorage MetricKind = "storage"
	MetricKindCustom  MetricKind = "custom"
)

// MetricType 指标类型；Kind 为 custom 时 Name 携带自定义名称
type MetricType struct {
	Kind MetricKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

var (
	MetricGas     = MetricType{Kind: MetricKindGas}
	MetricTime    = MetricType{Kind: MetricKindTime}
	MetricMemory  = MetricType{Kind: MetricKindMemory}
	MetricStorage = MetricType{Kind: MetricKindStorage}
)

// CustomMetric 创建自定义指标类型
func CustomMetric(name string) MetricType {
	return MetricType{Kind: MetricKindCustom, Name: name}
}

// String 返回指标类型名称
func (m MetricType) String() string {
	if m.Kind == MetricKindCustom {
		return fmt.Sprintf("custom(%s)", m.Name)
	}
	return string(m.Kind)
}

// RuntimeMetricDefinition 后端提供的指标定义
type RuntimeMetricDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Unit        string     `json:"unit"`
	MetricType  MetricType `json:"metric_type"`
}

// ==================== 运行时能力 ====================

// RuntimeCapabilities 后端能力声明
type RuntimeCapabilities struct {
	SupportsContractDeployment bool     `json:"supports_contract_deployment"`
	SupportsFunctionCalls      bool     `json:"supports_function_calls"`
	SupportsStateInspection    bool     `json:"supports_state_inspection"`
	SupportsEventMonitoring    bool     `json:"supports_event_monitoring"`
	SupportsGasEstimation      bool     `json:"supports_gas_estimation"`
	SupportsTimeTravel         bool     `json:"supports_time_travel"`
	MaxExecutionTimeSeconds    uint64   `json:"max_execution_time_seconds"`
	SupportedLanguages         []string `json:"supported_languages"`
}

// DefaultRuntimeCapabilities 默认能力：部署、调用、状态查看、事件监控
func DefaultRuntimeCapabilities() RuntimeCapabilities {
	return RuntimeCapabilities{
		SupportsContractDeployment: true,
		SupportsFunctionCalls:      true,
		SupportsStateInspection:    true,
		SupportsEventMonitoring:    true,
		MaxExecutionTimeSeconds:    constants.DefaultMaxExecutionTimeSeconds,
		SupportedLanguages:         []string{},
	}
}

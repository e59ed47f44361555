// Package constants 定义运行时抽象层使用的默认常量
package constants

// ==================== 运行时默认值 ====================

const (
	// DefaultTimeoutSeconds 运行时操作默认超时（秒）
	DefaultTimeoutSeconds uint64 = 300

	// DefaultMemoryLimitMB 环境默认内存上限（MB）
	DefaultMemoryLimitMB uint64 = 1024

	// DefaultMaxExecutionTimeSeconds 能力声明中的最大执行时间（秒）
	DefaultMaxExecutionTimeSeconds uint64 = 300

	// TestingTimeoutSeconds 测试预设使用的超时（秒）
	TestingTimeoutSeconds uint64 = 60

	// TestingMemoryLimitMB 测试预设使用的内存上限（MB）
	TestingMemoryLimitMB uint64 = 256
)

// ==================== 安全策略默认值 ====================

const (
	// DefaultMaxCallDepth 默认最大调用深度
	DefaultMaxCallDepth uint32 = 1024

	// DefaultMaxExternalCalls 单次执行默认最大外部调用次数
	DefaultMaxExternalCalls uint32 = 100

	// DefaultMaxGasLimit 默认最大Gas
	DefaultMaxGasLimit uint64 = 10_000_000

	// DefaultMaxMemoryBytes 默认最大内存使用（100MB）
	DefaultMaxMemoryBytes uint64 = 100 * 1024 * 1024

	// StrictMaxCallDepth 严格策略的最大调用深度
	StrictMaxCallDepth uint32 = 100

	// StrictMaxExternalCalls 严格策略的最大外部调用次数
	StrictMaxExternalCalls uint32 = 10

	// StrictMaxGasLimit 严格策略的最大Gas
	StrictMaxGasLimit uint64 = 1_000_000

	// StrictMaxMemoryBytes 严格策略的最大内存（10MB）
	StrictMaxMemoryBytes uint64 = 10 * 1024 * 1024
)

// ==================== 路径校验 ====================

const (
	// MaxPathLength 代码路径最大长度
	MaxPathLength = 4096

	// MaxSymlinkChainLength 符号链接解析的最大层数
	MaxSymlinkChainLength = 100
)

package types

// AppConfig 应用配置文件结构
//
// 字段均为指针：nil 表示配置文件未设置，使用系统默认值；
// 非nil 表示用户显式设置，即使是零值也会被采用。
type AppConfig struct {
	AppName *string `json:"app_name,omitempty" yaml:"app_name,omitempty"`
	DataDir *string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	Log     *UserLogConfig     `json:"log,omitempty" yaml:"log,omitempty"`
	Storage *UserStorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	Event   *UserEventConfig   `json:"event,omitempty" yaml:"event,omitempty"`
	API     *UserAPIConfig     `json:"api,omitempty" yaml:"api,omitempty"`
	Runtime *UserRuntimeConfig `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Backend *UserBackendConfig `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// UserLogConfig 用户日志配置
type UserLogConfig struct {
	Level     *string `json:"level,omitempty" yaml:"level,omitempty"`         // debug, info, warn, error, fatal
	FilePath  *string `json:"file_path,omitempty" yaml:"file_path,omitempty"` // 日志文件路径，stdout/stderr 表示仅控制台
	ToConsole *bool   `json:"to_console,omitempty" yaml:"to_console,omitempty"`
}

// UserStorageConfig 用户存储配置
type UserStorageConfig struct {
	DataRoot   *string `json:"data_root,omitempty" yaml:"data_root,omitempty"`     // 数据根目录，badger 使用 {data_root}/badger
	InMemory   *bool   `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`     // 结果库仅驻留内存
	SyncWrites *bool   `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"` // 同步写盘
	CacheMB    *int    `json:"cache_mb,omitempty" yaml:"cache_mb,omitempty"`       // 热缓存容量(MB)
	CacheTTL   *string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`     // 热缓存生存时间，如 "10m"
}

// UserEventConfig 用户事件配置
type UserEventConfig struct {
	Enabled     *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	HistorySize *int  `json:"history_size,omitempty" yaml:"history_size,omitempty"` // 每环境保留的事件数
}

// UserAPIConfig 用户API配置
type UserAPIConfig struct {
	Enabled *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Host    *string `json:"host,omitempty" yaml:"host,omitempty"`
	Port    *int    `json:"port,omitempty" yaml:"port,omitempty"`
	GinMode *string `json:"gin_mode,omitempty" yaml:"gin_mode,omitempty"` // debug | release | test
}

// UserRuntimeConfig 用户运行时配置：预设 + 覆盖项
type UserRuntimeConfig struct {
	Preset           *string             `json:"preset,omitempty" yaml:"preset,omitempty"`
	TimeoutSeconds   *uint64             `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MemoryLimitMB    *uint64             `json:"memory_limit_mb,omitempty" yaml:"memory_limit_mb,omitempty"`
	NetworkMode      *string             `json:"network_mode,omitempty" yaml:"network_mode,omitempty"`
	EnableMonitoring *bool               `json:"enable_monitoring,omitempty" yaml:"enable_monitoring,omitempty"`
	AbortOnCritical  *bool               `json:"abort_on_critical,omitempty" yaml:"abort_on_critical,omitempty"`
	BlockchainConfig map[string]any      `json:"blockchain_config,omitempty" yaml:"blockchain_config,omitempty"`
	Security         *UserSecurityConfig `json:"security,omitempty" yaml:"security,omitempty"`
	// 角色授权表：角色 -> 被授予的调用者；为空时采用占位授权规则
	RoleGrants map[string][]string `json:"role_grants,omitempty" yaml:"role_grants,omitempty"`
	// 代码根目录：设置后执行只接受该目录下的代码路径
	CodeRoot *string `json:"code_root,omitempty" yaml:"code_root,omitempty"`
}

// UserSecurityConfig 用户安全策略覆盖项
type UserSecurityConfig struct {
	SandboxEnabled            *bool   `json:"sandbox_enabled,omitempty" yaml:"sandbox_enabled,omitempty"`
	ReentrancyProtection      *bool   `json:"reentrancy_protection,omitempty" yaml:"reentrancy_protection,omitempty"`
	OverflowDetection         *bool   `json:"overflow_detection,omitempty" yaml:"overflow_detection,omitempty"`
	AccessControlVerification *bool   `json:"access_control_verification,omitempty" yaml:"access_control_verification,omitempty"`
	MaxCallDepth              *uint32 `json:"max_call_depth,omitempty" yaml:"max_call_depth,omitempty"`
	MaxExternalCalls          *uint32 `json:"max_external_calls,omitempty" yaml:"max_external_calls,omitempty"`
	GasLimitEnforcement       *bool   `json:"gas_limit_enforcement,omitempty" yaml:"gas_limit_enforcement,omitempty"`
	MaxGasLimit               *uint64 `json:"max_gas_limit,omitempty" yaml:"max_gas_limit,omitempty"`
	MemoryLimitEnforcement    *bool   `json:"memory_limit_enforcement,omitempty" yaml:"memory_limit_enforcement,omitempty"`
	MaxMemoryBytes            *uint64 `json:"max_memory_bytes,omitempty" yaml:"max_memory_bytes,omitempty"`
}

// UserBackendConfig 用户执行后端配置
type UserBackendConfig struct {
	Kind         *string `json:"kind,omitempty" yaml:"kind,omitempty"`                   // wasm | simulator
	BlockchainID *string `json:"blockchain_id,omitempty" yaml:"blockchain_id,omitempty"` // 后端报告的链标识
}

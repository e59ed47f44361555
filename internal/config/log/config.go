// Package log 提供日志配置
package log

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/weisyn/chainruntime/pkg/types"
)

// LogOptions 日志配置选项
type LogOptions struct {
	Level     string `json:"level" yaml:"level"`           // debug, info, warn, error, fatal
	ToConsole bool   `json:"to_console" yaml:"to_console"` // 是否输出到控制台
	FilePath  string `json:"file_path" yaml:"file_path"`   // 日志文件路径；stdout/stderr 表示不写文件

	MaxSize    int  `json:"max_size" yaml:"max_size"`       // 单个日志文件最大大小(MB)
	MaxBackups int  `json:"max_backups" yaml:"max_backups"` // 最大备份文件数
	MaxAge     int  `json:"max_age" yaml:"max_age"`         // 最大保留天数
	Compress   bool `json:"compress" yaml:"compress"`       // 是否压缩历史文件

	// SecurityLogFile 写文件时，module=security 的日志单独写入该文件；为空表示不拆分
	SecurityLogFile string `json:"security_log_file" yaml:"security_log_file"`

	EnableCaller     bool `json:"enable_caller" yaml:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace" yaml:"enable_stacktrace"`
}

// Config 日志配置
type Config struct {
	options *LogOptions
}

// New 以默认值为基础应用用户配置
func New(user *types.UserLogConfig) *Config {
	options := DefaultOptions()
	if user != nil {
		if user.Level != nil {
			options.Level = strings.ToLower(*user.Level)
		}
		if user.FilePath != nil {
			options.FilePath = *user.FilePath
			// 指定文件路径时默认不输出到控制台
			options.ToConsole = options.FilePath == "stdout" || options.FilePath == "stderr"
		}
		if user.ToConsole != nil {
			options.ToConsole = *user.ToConsole
		}
	}
	return &Config{options: options}
}

// NewFromOptions 从完整选项创建配置
func NewFromOptions(options *LogOptions) *Config {
	if options == nil {
		options = DefaultOptions()
	}
	return &Config{options: options}
}

// DefaultOptions 默认日志选项
func DefaultOptions() *LogOptions {
	return &LogOptions{
		Level:            defaultLogLevel,
		ToConsole:        defaultToConsole,
		FilePath:         defaultFilePath,
		MaxSize:          defaultMaxSize,
		MaxBackups:       defaultMaxBackups,
		MaxAge:           defaultMaxAge,
		Compress:         defaultCompress,
		SecurityLogFile:  defaultSecurityLogFile,
		EnableCaller:     defaultEnableCaller,
		EnableStacktrace: defaultEnableStacktrace,
	}
}

// GetOptions 获取完整选项
func (c *Config) GetOptions() *LogOptions {
	return c.options
}

// GetZapLevel 获取zap日志级别，未知级别按 info 处理
func (c *Config) GetZapLevel() zapcore.Level {
	if level, ok := defaultLevelMap[c.options.Level]; ok {
		return level
	}
	return zapcore.InfoLevel
}

// WritesFile 是否写日志文件
func (c *Config) WritesFile() bool {
	return c.options.FilePath != "" && c.options.FilePath != "stdout" && c.options.FilePath != "stderr"
}

// CreateFileEncoder 文件输出使用JSON格式
func (c *Config) CreateFileEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	})
}

// CreateConsoleEncoder 控制台输出使用彩色文本格式
func (c *Config) CreateConsoleEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
	})
}

// IsKnownLevel 是否为支持的日志级别
func IsKnownLevel(level string) bool {
	_, ok := defaultLevelMap[level]
	return ok
}

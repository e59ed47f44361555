package log

import "go.uber.org/zap/zapcore"

// 日志配置默认值
const (
	// defaultLogLevel info 级别记录生命周期与违规，不输出每个监控点
	defaultLogLevel = "info"

	// defaultToConsole 默认输出到控制台
	defaultToConsole = true

	// defaultFilePath 默认不写文件
	defaultFilePath = "stdout"

	// 日志轮转
	defaultMaxSize    = 100 // MB
	defaultMaxBackups = 10
	defaultMaxAge     = 30 // days
	defaultCompress   = true

	// defaultSecurityLogFile 安全审计日志文件名，与主日志同目录
	defaultSecurityLogFile = "security.log"

	defaultEnableCaller     = true
	defaultEnableStacktrace = true
)

var defaultLevelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

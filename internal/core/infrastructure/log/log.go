// Package log 提供基于zap的日志实现
// 支持控制台彩色输出、JSON文件输出与lumberjack轮转，安全模块日志可拆分为独立审计文件
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	logconfig "github.com/weisyn/chainruntime/internal/config/log"
	logInterface "github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// securityModule 写入审计文件的模块名
const securityModule = "security"

var (
	// 全局日志实例
	globalLogger logInterface.Logger
	mu           sync.RWMutex
)

// Logger 实现 log.Logger 接口
type Logger struct {
	zapLogger *zap.Logger
	sugar     *zap.SugaredLogger
}

var _ logInterface.Logger = (*Logger)(nil)

func init() {
	ResetDefault()
}

// ResetDefault 重置全局日志记录器为默认配置
func ResetDefault() {
	logger, err := New(logconfig.New(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", err)
		return
	}
	SetLogger(logger)
}

// ==================== 按模块路由 ====================

// moduleRoutingCore 按 module 字段路由：security 写审计文件，其余写主文件
//
// module 可能在 With 时绑定，也可能在调用点传入，两处都要识别。
type moduleRoutingCore struct {
	mainCore  zapcore.Core
	auditCore zapcore.Core
	module    string
}

func (c *moduleRoutingCore) Enabled(level zapcore.Level) bool {
	return c.mainCore.Enabled(level) || c.auditCore.Enabled(level)
}

func (c *moduleRoutingCore) With(fields []zapcore.Field) zapcore.Core {
	module := c.module
	if m := moduleOf(fields); m != "" {
		module = m
	}
	return &moduleRoutingCore{
		mainCore:  c.mainCore.With(fields),
		auditCore: c.auditCore.With(fields),
		module:    module,
	}
}

func (c *moduleRoutingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *moduleRoutingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	module := c.module
	if m := moduleOf(fields); m != "" {
		module = m
	}
	if module == securityModule {
		return c.auditCore.Write(entry, fields)
	}
	return c.mainCore.Write(entry, fields)
}

func (c *moduleRoutingCore) Sync() error {
	errMain := c.mainCore.Sync()
	errAudit := c.auditCore.Sync()
	if errMain != nil {
		return errMain
	}
	return errAudit
}

// moduleOf 提取字段中的 module 值
func moduleOf(fields []zapcore.Field) string {
	for _, field := range fields {
		if field.Key != "module" {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.StringerType:
			if s, ok := field.Interface.(fmt.Stringer); ok && s != nil {
				return s.String()
			}
		default:
			if str, ok := field.Interface.(string); ok {
				return str
			}
		}
	}
	return ""
}

// ==================== 构造 ====================

// createFileWriter 创建带轮转的日志文件写入器
func createFileWriter(logPath string, options *logconfig.LogOptions) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return nil, fmt.Errorf("创建日志目录失败 %s: %w", filepath.Dir(logPath), err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    options.MaxSize,
		MaxBackups: options.MaxBackups,
		MaxAge:     options.MaxAge,
		Compress:   options.Compress,
	}), nil
}

// New 根据配置创建日志记录器
func New(config *logconfig.Config) (*Logger, error) {
	options := config.GetOptions()
	level := zap.NewAtomicLevelAt(config.GetZapLevel())

	var cores []zapcore.Core

	if options.ToConsole {
		output := zapcore.AddSync(os.Stdout)
		if options.FilePath == "stderr" {
			output = zapcore.AddSync(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(config.CreateConsoleEncoder(), output, level))
	}

	if config.WritesFile() {
		logPath, err := filepath.Abs(options.FilePath)
		if err != nil {
			return nil, fmt.Errorf("获取日志文件绝对路径失败: %w", err)
		}
		mainWriter, err := createFileWriter(logPath, options)
		if err != nil {
			return nil, err
		}
		mainCore := zapcore.NewCore(config.CreateFileEncoder(), mainWriter, level)

		if options.SecurityLogFile == "" {
			cores = append(cores, mainCore)
		} else {
			auditWriter, err := createFileWriter(filepath.Join(filepath.Dir(logPath), options.SecurityLogFile), options)
			if err != nil {
				return nil, err
			}
			cores = append(cores, &moduleRoutingCore{
				mainCore:  mainCore,
				auditCore: zapcore.NewCore(config.CreateFileEncoder(), auditWriter, level),
			})
		}
	}

	var zapOptions []zap.Option
	if options.EnableCaller {
		// 跳过一层封装，调用位置指向业务代码
		zapOptions = append(zapOptions, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if options.EnableStacktrace {
		zapOptions = append(zapOptions, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return newFromZap(zap.New(zapcore.NewTee(cores...), zapOptions...)), nil
}

// NewNop 丢弃所有输出的日志记录器
func NewNop() *Logger {
	return newFromZap(zap.NewNop())
}

func newFromZap(zapLogger *zap.Logger) *Logger {
	return &Logger{zapLogger: zapLogger, sugar: zapLogger.Sugar()}
}

// NewModuleLogger 创建带 module 字段的 logger；baseLogger 为 nil 时返回 nil
func NewModuleLogger(baseLogger logInterface.Logger, module string) logInterface.Logger {
	if baseLogger == nil {
		return nil
	}
	return baseLogger.With("module", module)
}

// ==================== 全局日志 ====================

// SetLogger 设置全局日志记录器
func SetLogger(logger logInterface.Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
}

// GetLogger 获取全局日志记录器
func GetLogger() logInterface.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Infof 使用全局记录器记录信息级别日志
func Infof(format string, args ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Infof(format, args...)
	}
}

// Warnf 使用全局记录器记录警告级别日志
func Warnf(format string, args ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Warnf(format, args...)
	}
}

// ==================== Logger 方法 ====================

func (l *Logger) Debug(msg string) { l.sugar.Debug(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

func (l *Logger) Info(msg string) { l.sugar.Info(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

func (l *Logger) Warn(msg string) { l.sugar.Warn(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

func (l *Logger) Error(msg string) { l.sugar.Error(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With 返回附加字段的Logger
func (l *Logger) With(args ...interface{}) logInterface.Logger {
	return newFromZap(l.zapLogger.With(toZapFields(args...)...))
}

// Sync 同步日志缓冲区；控制台句柄不支持 fsync 时忽略该错误
func (l *Logger) Sync() error {
	err := l.zapLogger.Sync()
	if err != nil && (os.IsPermission(err) || isInvalidSync(err)) {
		return nil
	}
	return err
}

// GetZapLogger 获取底层的zap日志记录器
func (l *Logger) GetZapLogger() *zap.Logger {
	return l.zapLogger
}

// toZapFields 将 key, value 成对参数转换为zap字段，末尾落单的参数被忽略
func toZapFields(args ...interface{}) []zap.Field {
	if len(args)%2 != 0 {
		args = args[:len(args)-1]
	}
	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

// Package log 定义运行时各组件共用的日志接口
//
// 组件只依赖 Logger 接口；具体实现位于 internal/core/infrastructure/log，
// 基于 zap，按 module 字段区分来源（security、runtime、engine-wasm 等）。
package log

import "go.uber.org/zap"

// Logger 定义日志记录器接口
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})

	Info(msg string)
	Infof(format string, args ...interface{})

	Warn(msg string)
	Warnf(format string, args ...interface{})

	Error(msg string)
	Errorf(format string, args ...interface{})

	// With 返回附加键值对字段的Logger，参数按 key, value 成对传入
	With(args ...interface{}) Logger

	// Sync 同步日志缓冲区到输出
	Sync() error

	// GetZapLogger 获取原始的zap日志记录器
	GetZapLogger() *zap.Logger
}

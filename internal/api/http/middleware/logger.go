package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	infralog "github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// Logger 访问日志中间件
type Logger struct {
	logger *zap.Logger
}

// NewLogger 创建访问日志中间件
func NewLogger(logger infralog.Logger) *Logger {
	zl := zap.NewNop()
	if logger != nil {
		if l := logger.GetZapLogger(); l != nil {
			zl = l
		}
	}
	return &Logger{logger: zl.With(zap.String("module", "api"))}
}

// Middleware 按状态码选择日志级别
//
// 路由带 :id 参数时按前缀记为 environment_id 或 execution_id。
func (m *Logger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String(idField(route), id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			m.logger.Error("http request", fields...)
		case status >= 400:
			m.logger.Warn("http request", fields...)
		default:
			m.logger.Info("http request", fields...)
		}
	}
}

func idField(route string) string {
	const executions = "/v1/executions/"
	if len(route) >= len(executions) && route[:len(executions)] == executions {
		return "execution_id"
	}
	return "environment_id"
}

package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apitypes "github.com/weisyn/chainruntime/internal/api/types"
)

// ErrorHandler 将 handler 通过 c.Error 上报的错误统一写成 Problem Details
//
// 非 ProblemDetails 的错误按 500 处理，原始错误只进日志。
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		problem, ok := apitypes.IsProblemDetails(err)
		if !ok {
			logger.Error("handler returned non-problem error",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			problem = apitypes.NewProblemDetails(
				apitypes.CodeCommonInternalError,
				apitypes.LayerRuntimeService,
				"服务器内部错误，请稍后重试。",
				fmt.Sprintf("internal error: %v", err),
				http.StatusInternalServerError,
				map[string]interface{}{"path": c.Request.URL.Path},
			)
		}
		problem.Instance = c.Request.URL.Path
		if requestID := GetRequestID(c); requestID != "" {
			problem.TraceID = requestID
		}

		logger.Warn("http error",
			zap.String("code", problem.Code),
			zap.Int("status", problem.Status),
			zap.String("traceId", problem.TraceID),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		problem.WriteJSON(c.Writer)
		c.Abort()
	}
}

// WriteError 直接写入错误响应
func WriteError(c *gin.Context, code string, userMessage string, detail string, status int, details map[string]interface{}) {
	problem := apitypes.NewProblemDetails(
		code,
		apitypes.LayerRuntimeService,
		userMessage,
		detail,
		status,
		details,
	)
	problem.Instance = c.Request.URL.Path
	if requestID := GetRequestID(c); requestID != "" {
		problem.TraceID = requestID
	}
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problem.Status, problem)
}

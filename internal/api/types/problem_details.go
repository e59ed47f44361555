// Package types 定义 HTTP 接口共用的错误响应结构
package types

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// problemTypePrefix 问题类型 URI 前缀，后接小写错误码
const problemTypePrefix = "urn:chainruntime:problem:"

// ProblemDetails RFC 7807 错误文档，附带运行时扩展字段
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Code        string         `json:"code"`
	Layer       string         `json:"layer"`
	UserMessage string         `json:"userMessage"`
	Retryable   bool           `json:"retryable"`
	Details     map[string]any `json:"details,omitempty"`
	TraceID     string         `json:"traceId"`
	Timestamp   string         `json:"timestamp"`

	cause error
}

// Error 实现 error 接口
func (p *ProblemDetails) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.UserMessage
}

// Unwrap 返回触发该问题的原始错误
func (p *ProblemDetails) Unwrap() error {
	return p.cause
}

// WithCause 记录原始错误，detail 为空时取其文本
func (p *ProblemDetails) WithCause(err error) *ProblemDetails {
	p.cause = err
	if p.Detail == "" && err != nil {
		p.Detail = err.Error()
	}
	return p
}

// WriteJSON 以 application/problem+json 写出
func (p *ProblemDetails) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewProblemDetails 创建 Problem Details
//
// 503/504 视为可重试。
func NewProblemDetails(code, layer, userMessage, detail string, status int, details map[string]any) *ProblemDetails {
	return &ProblemDetails{
		Type:        problemTypePrefix + strings.ToLower(code),
		Title:       http.StatusText(status),
		Status:      status,
		Detail:      detail,
		Code:        code,
		Layer:       layer,
		UserMessage: userMessage,
		Retryable:   status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout,
		Details:     details,
		TraceID:     uuid.NewString(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// IsProblemDetails 检查错误链中是否有 Problem Details
func IsProblemDetails(err error) (*ProblemDetails, bool) {
	var pd *ProblemDetails
	if errors.As(err, &pd) {
		return pd, true
	}
	return nil, false
}

// 错误码
const (
	CodeRuntimeEnvironmentNotFound = "RUNTIME_ENVIRONMENT_NOT_FOUND"
	CodeRuntimeEnvironmentNotReady = "RUNTIME_ENVIRONMENT_NOT_READY"
	CodeRuntimeReportNotFound      = "RUNTIME_REPORT_NOT_FOUND"
	CodeRuntimeInvalidConfig       = "RUNTIME_INVALID_CONFIG"
	CodeRuntimeExecutionFailed     = "RUNTIME_EXECUTION_FAILED"
	CodeRuntimeExecutionAborted    = "RUNTIME_EXECUTION_ABORTED"
	CodeRuntimeBackendUnavailable  = "RUNTIME_BACKEND_UNAVAILABLE"

	CodeCommonValidationError    = "COMMON_VALIDATION_ERROR"
	CodeCommonInternalError      = "COMMON_INTERNAL_ERROR"
	CodeCommonTimeout            = "COMMON_TIMEOUT"
	CodeCommonServiceUnavailable = "COMMON_SERVICE_UNAVAILABLE"
)

// LayerRuntimeService 运行时服务层
const LayerRuntimeService = "runtime-service"

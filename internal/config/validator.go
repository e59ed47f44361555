package config

import (
	"errors"
	"fmt"
	"strings"

	logconfig "github.com/weisyn/chainruntime/internal/config/log"
	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("配置验证失败 [%s]: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("配置验证失败 [%s]: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors 多个验证错误
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	msg := "配置验证失败，发现以下问题：\n"
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap 支持 errors.Is/As 穿透到每个子错误
func (e *ValidationErrors) Unwrap() []error {
	return e.Errors
}

// ValidateAppConfig 校验应用配置中用户显式设置的字段
//
// 运行时段按"预设 + 覆盖项"完整解析一次，非法组合在加载期即被拒绝。
func ValidateAppConfig(appConfig *types.AppConfig) error {
	if appConfig == nil {
		return nil
	}
	var errs []error

	if appConfig.Log != nil && appConfig.Log.Level != nil {
		level := strings.ToLower(*appConfig.Log.Level)
		if !logconfig.IsKnownLevel(level) {
			errs = append(errs, &ValidationError{Field: "log.level", Message: fmt.Sprintf("未知日志级别 %q", level)})
		}
	}

	if appConfig.API != nil && appConfig.API.Port != nil {
		if port := *appConfig.API.Port; port <= 0 || port > 65535 {
			errs = append(errs, &ValidationError{Field: "api.port", Message: fmt.Sprintf("端口 %d 超出范围", port)})
		}
	}

	if appConfig.Storage != nil && appConfig.Storage.CacheMB != nil && *appConfig.Storage.CacheMB < 0 {
		errs = append(errs, &ValidationError{Field: "storage.cache_mb", Message: "缓存容量不能为负数"})
	}

	if _, err := runtimeconfig.New(appConfig.Runtime); err != nil {
		errs = append(errs, &ValidationError{Field: "runtime", Message: "运行时配置无效", Err: err})
	}

	if _, err := runtimeconfig.NewBackend(appConfig.Backend); err != nil {
		errs = append(errs, &ValidationError{Field: "backend.kind", Message: "执行后端无效", Err: err})
	}

	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

// IsValidationError 判断错误是否来自配置校验
func IsValidationError(err error) bool {
	var single *ValidationError
	var multi *ValidationErrors
	return errors.As(err, &single) || errors.As(err, &multi)
}

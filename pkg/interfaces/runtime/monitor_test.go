package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingMonitor struct {
	nopMonitor
	entered []string
}

func (m *countingMonitor) EnterFunction(function, _ string) {
	m.entered = append(m.entered, function)
}

// TestMonitorFromContext 测试监控器的上下文传递
func TestMonitorFromContext(t *testing.T) {
	fallback := MonitorFromContext(context.Background())
	assert.True(t, fallback.RecordExternalCall("x", "f", "c", "admin"), "空实现应允许外部调用")
	assert.False(t, fallback.CheckArithmetic("add", 1, 2))

	m := &countingMonitor{}
	ctx := WithMonitor(context.Background(), m)
	MonitorFromContext(ctx).EnterFunction("main", "alice")
	assert.Equal(t, []string{"main"}, m.entered)
}

// TestAuthorizerFunc 测试函数适配器
func TestAuthorizerFunc(t *testing.T) {
	var a Authorizer = AuthorizerFunc(func(_, caller, _ string) bool { return caller == "root" })
	assert.True(t, a.Authorize("f", "root", "admin"))
	assert.False(t, a.Authorize("f", "bob", "admin"))
}

// TestExecutionIDFromContext 测试执行ID的上下文传递
func TestExecutionIDFromContext(t *testing.T) {
	assert.Empty(t, ExecutionIDFromContext(context.Background()))

	ctx := WithExecutionID(context.Background(), "exec-1")
	assert.Equal(t, "exec-1", ExecutionIDFromContext(ctx))
}

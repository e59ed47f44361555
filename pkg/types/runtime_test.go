package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvironmentState_Transitions 测试环境状态机
func TestEnvironmentState_Transitions(t *testing.T) {
	allowed := []struct{ from, to EnvironmentState }{
		{EnvironmentCreating, EnvironmentReady},
		{EnvironmentCreating, EnvironmentError},
		{EnvironmentReady, EnvironmentRunning},
		{EnvironmentRunning, EnvironmentReady},
		{EnvironmentRunning, EnvironmentError},
		{EnvironmentReady, EnvironmentStopped},
		{EnvironmentError, EnvironmentStopped},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to EnvironmentState }{
		{EnvironmentStopped, EnvironmentReady},
		{EnvironmentStopped, EnvironmentError},
		{EnvironmentError, EnvironmentReady},
		{EnvironmentReady, EnvironmentCreating},
		{EnvironmentCreating, EnvironmentRunning},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, EnvironmentStopped.IsTerminal())
	assert.False(t, EnvironmentError.IsTerminal())
}

// TestMetricType_Custom 测试自定义指标类型
func TestMetricType_Custom(t *testing.T) {
	m := CustomMetric("wasm_memory_pages")
	assert.Equal(t, MetricKindCustom, m.Kind)
	assert.Equal(t, "custom(wasm_memory_pages)", m.String())
	assert.Equal(t, "gas", MetricGas.String())
	assert.NotEqual(t, CustomMetric("a"), CustomMetric("b"))
}

// TestDefaultRuntimeCapabilities 测试默认能力
func TestDefaultRuntimeCapabilities(t *testing.T) {
	caps := DefaultRuntimeCapabilities()
	assert.True(t, caps.SupportsContractDeployment)
	assert.True(t, caps.SupportsFunctionCalls)
	assert.True(t, caps.SupportsStateInspection)
	assert.True(t, caps.SupportsEventMonitoring)
	assert.False(t, caps.SupportsGasEstimation)
	assert.False(t, caps.SupportsTimeTravel)
	assert.Equal(t, uint64(300), caps.MaxExecutionTimeSeconds)
}

// TestRuntimeEnvironment_Clone 测试环境描述拷贝
func TestRuntimeEnvironment_Clone(t *testing.T) {
	env := RuntimeEnvironment{EnvironmentID: "env-1", Metadata: map[string]string{"k": "v"}}
	clone := env.Clone()
	clone.Metadata["k"] = "changed"
	require.Equal(t, "v", env.Metadata["k"])
}

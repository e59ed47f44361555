// Package metrics 提供运行时的Prometheus指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/weisyn/chainruntime/pkg/types"
)

const namespace = "chainruntime"

// 执行结果标签
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
	ResultError     = "error"
)

// RuntimeMetrics 运行时指标集合
type RuntimeMetrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	violationsTotal   *prometheus.CounterVec
	environments      *prometheus.GaugeVec
	gasUsed           *prometheus.HistogramVec
	hostMemoryBytes   prometheus.Gauge
}

// NewRuntimeMetrics 在给定注册器上创建指标；registerer 为 nil 时不注册
func NewRuntimeMetrics(registerer prometheus.Registerer) *RuntimeMetrics {
	factory := promauto.With(registerer)
	return &RuntimeMetrics{
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "total",
			Help:      "Total number of executions by backend and result",
		}, []string{"blockchain", "result"}),

		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Execution wall time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 300},
		}, []string{"blockchain"}),

		violationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "violations_total",
			Help:      "Total number of security violations by type and severity",
		}, []string{"type", "severity"}),

		environments: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "environment",
			Name:      "count",
			Help:      "Number of managed environments by state",
		}, []string{"state"}),

		gasUsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "gas_used",
			Help:      "Gas consumed per execution",
			Buckets:   prometheus.ExponentialBuckets(1000, 10, 8),
		}, []string{"blockchain"}),

		hostMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "memory_total_bytes",
			Help:      "Total physical memory reported by the host",
		}),
	}
}

// ObserveExecution 记录一次执行
func (m *RuntimeMetrics) ObserveExecution(blockchain, result string, elapsed time.Duration, gas uint64) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(blockchain, result).Inc()
	m.executionDuration.WithLabelValues(blockchain).Observe(elapsed.Seconds())
	m.gasUsed.WithLabelValues(blockchain).Observe(float64(gas))
}

// ObserveViolation 记录一条安全违规
func (m *RuntimeMetrics) ObserveViolation(v types.SecurityViolation) {
	if m == nil {
		return
	}
	m.violationsTotal.WithLabelValues(string(v.Type), v.Severity.String()).Inc()
}

// EnvironmentTransition 环境状态迁移时调整各状态计数；from 为空表示新建
func (m *RuntimeMetrics) EnvironmentTransition(from, to types.EnvironmentState) {
	if m == nil {
		return
	}
	if from != "" {
		m.environments.WithLabelValues(string(from)).Dec()
	}
	if to != "" {
		m.environments.WithLabelValues(string(to)).Inc()
	}
}

// SetHostMemory 记录主机物理内存
func (m *RuntimeMetrics) SetHostMemory(bytes uint64) {
	if m == nil {
		return
	}
	m.hostMemoryBytes.Set(float64(bytes))
}

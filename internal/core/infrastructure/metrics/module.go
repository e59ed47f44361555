package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// ModuleInput 指标模块输入
type ModuleInput struct {
	fx.In

	// Registerer 未提供时使用进程默认注册器
	Registerer prometheus.Registerer `optional:"true"`
}

// Module 返回 metrics 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(func(input ModuleInput) *RuntimeMetrics {
			registerer := input.Registerer
			if registerer == nil {
				registerer = prometheus.DefaultRegisterer
			}
			m := NewRuntimeMetrics(registerer)
			m.SetHostMemory(HostMemory())
			return m
		}),
	)
}

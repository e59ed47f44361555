// Package engines 组合执行后端并按配置选择
package engines

import (
	"fmt"

	"go.uber.org/fx"

	runtimeconfig "github.com/weisyn/chainruntime/internal/config/runtime"
	"github.com/weisyn/chainruntime/internal/core/engines/simulator"
	"github.com/weisyn/chainruntime/internal/core/engines/wasm"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
)

// SelectorInput 后端选择的输入依赖
type SelectorInput struct {
	fx.In

	Options   *runtimeconfig.BackendOptions
	Logger    log.Logger                `optional:"true"`
	WASM      runtime.BlockchainRuntime `name:"wasm_engine"`
	Simulator runtime.BlockchainRuntime `name:"simulator_engine"`
}

// SelectorOutput 选中的执行后端
type SelectorOutput struct {
	fx.Out

	Backend runtime.BlockchainRuntime
}

// ProvideBackend 按 BackendOptions.Kind 选择执行后端
func ProvideBackend(input SelectorInput) (SelectorOutput, error) {
	var backend runtime.BlockchainRuntime
	switch input.Options.Kind {
	case runtimeconfig.BackendWASM:
		backend = input.WASM
	case runtimeconfig.BackendSimulator:
		backend = input.Simulator
	default:
		return SelectorOutput{}, fmt.Errorf("unknown backend kind %q", input.Options.Kind)
	}
	if input.Logger != nil {
		input.Logger.Infof("execution backend selected: kind=%s blockchain=%s", input.Options.Kind, backend.BlockchainID())
	}
	return SelectorOutput{Backend: backend}, nil
}

// Module 执行后端模块：注册全部后端并导出选中的一个
func Module() fx.Option {
	return fx.Module("engines",
		wasm.Module(),
		simulator.Module(),
		fx.Provide(ProvideBackend),
	)
}

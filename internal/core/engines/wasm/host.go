package wasm

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tidwall/gjson"

	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

// hostModuleName 宿主函数所在的导入模块
const hostModuleName = "env"

// 宿主函数名称
const (
	HostEnter        = "runtime_enter"
	HostExit         = "runtime_exit"
	HostGas          = "runtime_gas"
	HostCheckedAdd   = "runtime_checked_add"
	HostCheckedMul   = "runtime_checked_mul"
	HostExternalCall = "runtime_external_call"
	HostSetState     = "runtime_set_state"
	HostEmitEvent    = "runtime_emit_event"
	HostInputLen     = "runtime_input_len"
	HostInputCopy    = "runtime_input_copy"
	HostReturn       = "runtime_return"
)

// callFrame 单次调用的宿主侧状态，经 context 传给宿主函数
//
// env 模块在每个环境的 wazero.Runtime 中只实例化一次，
// 宿主函数从 ctx 取本次调用的 callFrame，不闭包捕获。
type callFrame struct {
	env         *environment
	executionID string
	caller      string
	monitor     runtime.ExecutionMonitor
	now         func() time.Time

	input      []byte
	returnData []byte
	gasUsed    uint64

	stateChanges []types.StateChange
	events       []types.RuntimeEvent
}

type frameKey struct{}

func withFrame(ctx context.Context, f *callFrame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) *callFrame {
	if f, ok := ctx.Value(frameKey{}).(*callFrame); ok {
		return f
	}
	return nil
}

// instantiateHostModule 在环境的运行时中注册 env 宿主模块
func instantiateHostModule(ctx context.Context, r wazero.Runtime) error {
	functions := map[string]interface{}{
		HostEnter:        hostEnter,
		HostExit:         hostExit,
		HostGas:          hostGas,
		HostCheckedAdd:   hostCheckedAdd,
		HostCheckedMul:   hostCheckedMul,
		HostExternalCall: hostExternalCall,
		HostSetState:     hostSetState,
		HostEmitEvent:    hostEmitEvent,
		HostInputLen:     hostInputLen,
		HostInputCopy:    hostInputCopy,
		HostReturn:       hostReturn,
	}
	builder := r.NewHostModuleBuilder(hostModuleName)
	for name, fn := range functions {
		builder.NewFunctionBuilder().WithFunc(fn).Export(name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module: %w", err)
	}
	return nil
}

// ==================== 监控点 ====================

// hostEnter 函数入口：(name_ptr, name_len)
func hostEnter(ctx context.Context, mod api.Module, ptr, length uint32) {
	f := frameFrom(ctx)
	if f == nil {
		return
	}
	f.monitor.EnterFunction(readString(mod, ptr, length), f.caller)
}

// hostExit 函数返回
func hostExit(ctx context.Context) {
	if f := frameFrom(ctx); f != nil {
		f.monitor.ExitFunction()
	}
}

// hostGas 消耗Gas：(amount)
func hostGas(ctx context.Context, amount uint64) {
	f := frameFrom(ctx)
	if f == nil {
		return
	}
	if f.gasUsed > ^uint64(0)-amount {
		f.gasUsed = ^uint64(0)
	} else {
		f.gasUsed += amount
	}
	f.monitor.ConsumeGas(amount)
}

// hostCheckedAdd 加法并做溢出检测，结果按补码回绕
func hostCheckedAdd(ctx context.Context, a, b int64) int64 {
	if f := frameFrom(ctx); f != nil {
		f.monitor.CheckArithmetic("add", a, b)
	}
	return a + b
}

// hostCheckedMul 乘法并做溢出检测，结果按补码回绕
func hostCheckedMul(ctx context.Context, a, b int64) int64 {
	if f := frameFrom(ctx); f != nil {
		f.monitor.CheckArithmetic("multiply", a, b)
	}
	return a * b
}

// hostExternalCall 外部调用：(target, function, required_role) 三组 ptr/len，返回1表示允许
func hostExternalCall(ctx context.Context, mod api.Module, targetPtr, targetLen, fnPtr, fnLen, rolePtr, roleLen uint32) uint32 {
	f := frameFrom(ctx)
	if f == nil {
		return 1
	}
	target := readString(mod, targetPtr, targetLen)
	function := readString(mod, fnPtr, fnLen)
	role := readString(mod, rolePtr, roleLen)
	if f.monitor.RecordExternalCall(target, function, f.caller, role) {
		return 1
	}
	return 0
}

// ==================== 状态与事件 ====================

// hostSetState 写状态：(key, value) 两组 ptr/len，空值表示删除
func hostSetState(ctx context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen uint32) {
	f := frameFrom(ctx)
	if f == nil {
		return
	}
	key := readString(mod, keyPtr, keyLen)
	value := readString(mod, valPtr, valLen)
	f.stateChanges = append(f.stateChanges, f.env.setState(key, value))
}

// hostEmitEvent 发出事件：(event_type, data) 两组 ptr/len，data 为 JSON
func hostEmitEvent(ctx context.Context, mod api.Module, typePtr, typeLen, dataPtr, dataLen uint32) {
	f := frameFrom(ctx)
	if f == nil {
		return
	}
	eventType := readString(mod, typePtr, typeLen)
	data := readBytes(mod, dataPtr, dataLen)
	f.events = append(f.events, types.RuntimeEvent{
		EventID:     fmt.Sprintf("%s-%d", f.executionID, len(f.events)),
		EventType:   eventType,
		Timestamp:   uint64(f.now().Unix()),
		Data:        decodeEventData(data),
		ExecutionID: f.executionID,
	})
}

// ==================== 调用数据 ====================

// hostInputLen 调用输入长度
func hostInputLen(ctx context.Context) uint32 {
	if f := frameFrom(ctx); f != nil {
		return uint32(len(f.input))
	}
	return 0
}

// hostInputCopy 把调用输入复制到 ptr
func hostInputCopy(ctx context.Context, mod api.Module, ptr uint32) {
	f := frameFrom(ctx)
	if f == nil || len(f.input) == 0 {
		return
	}
	if !mod.Memory().Write(ptr, f.input) {
		panic(fmt.Errorf("%w: write ptr=%d len=%d", ErrMemoryAccess, ptr, len(f.input)))
	}
}

// hostReturn 设置返回数据：(ptr, len)
func hostReturn(ctx context.Context, mod api.Module, ptr, length uint32) {
	if f := frameFrom(ctx); f != nil {
		f.returnData = readBytes(mod, ptr, length)
	}
}

// ==================== 内存读取 ====================

func readBytes(mod api.Module, ptr, length uint32) []byte {
	mem := mod.Memory()
	if mem == nil {
		panic(fmt.Errorf("%w: module has no memory", ErrMemoryAccess))
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		panic(fmt.Errorf("%w: read ptr=%d len=%d", ErrMemoryAccess, ptr, length))
	}
	return append([]byte(nil), buf...)
}

func readString(mod api.Module, ptr, length uint32) string {
	return string(readBytes(mod, ptr, length))
}

// decodeEventData 解析事件数据；非JSON对象时包装为 value/raw 字段
func decodeEventData(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	if !gjson.ValidBytes(raw) {
		return map[string]any{"raw": string(raw)}
	}
	value := gjson.ParseBytes(raw).Value()
	if m, ok := value.(map[string]interface{}); ok {
		return m
	}
	return map[string]any{"value": value}
}

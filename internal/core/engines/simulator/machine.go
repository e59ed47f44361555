package simulator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/weisyn/chainruntime/pkg/interfaces/runtime"
	"github.com/weisyn/chainruntime/pkg/types"
)

const (
	// maxFrames 嵌套 call 的上限，防止递归程序耗尽栈
	maxFrames = 4096
	// maxSteps 单次执行可执行的操作数上限
	maxSteps = 1 << 20
)

// revert 合约层面的失败，不是操作错误
type revert struct{ message string }

func (r *revert) Error() string { return r.message }

// machine 单次执行的解释器状态
type machine struct {
	env         *environment
	prog        *program
	executionID string
	caller      string
	params      map[string]any
	monitor     runtime.ExecutionMonitor
	now         func() time.Time
	memoryLimit uint64

	steps   int
	depth   int
	last    int64
	gasUsed uint64
	memory  uint64

	returnValue  any
	stateChanges []types.StateChange
	events       []types.RuntimeEvent
}

// run 执行函数体；遇到 return 时结束当前函数
//
// 返回 *revert 表示合约失败，其他错误来自上下文。
func (m *machine) run(ctx context.Context, function string, top bool) error {
	ops, ok := m.prog.functions[function]
	if !ok {
		return &revert{message: fmt.Sprintf("function %s not defined", function)}
	}
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.steps++
		if m.steps > maxSteps {
			return &revert{message: fmt.Sprintf("step limit %d exceeded", maxSteps)}
		}

		returned, err := m.step(ctx, op, top)
		if err != nil || returned {
			return err
		}
	}
	return nil
}

func (m *machine) step(ctx context.Context, op gjson.Result, top bool) (bool, error) {
	switch op.Get("op").String() {
	case OpEnter:
		m.monitor.EnterFunction(op.Get("function").String(), m.caller)

	case OpExit:
		m.monitor.ExitFunction()

	case OpCall:
		callee := op.Get("function").String()
		if m.depth >= maxFrames {
			return false, &revert{message: fmt.Sprintf("call stack exhausted at %s", callee)}
		}
		m.monitor.EnterFunction(callee, m.caller)
		m.depth++
		err := m.run(ctx, callee, false)
		m.depth--
		m.monitor.ExitFunction()
		if err != nil {
			return false, err
		}

	case OpAdd, OpMul:
		a, err := m.operand(op.Get("a"))
		if err != nil {
			return false, err
		}
		b, err := m.operand(op.Get("b"))
		if err != nil {
			return false, err
		}
		if op.Get("op").String() == OpAdd {
			m.monitor.CheckArithmetic("add", a, b)
			m.last = a + b
		} else {
			m.monitor.CheckArithmetic("multiply", a, b)
			m.last = a * b
		}

	case OpExternalCall:
		target := op.Get("target").String()
		function := op.Get("function").String()
		permitted := m.monitor.RecordExternalCall(target, function, m.caller, op.Get("role").String())
		if !permitted && op.Get("revert_on_deny").Bool() {
			return false, &revert{message: fmt.Sprintf("external call %s.%s denied", target, function)}
		}

	case OpGas:
		amount := op.Get("amount").Uint()
		if m.gasUsed > ^uint64(0)-amount {
			m.gasUsed = ^uint64(0)
		} else {
			m.gasUsed += amount
		}
		m.monitor.ConsumeGas(amount)

	case OpMemory:
		bytes := op.Get("bytes").Uint()
		if bytes > m.memoryLimit {
			return false, &revert{message: fmt.Sprintf("memory %d bytes exceeds environment limit %d", bytes, m.memoryLimit)}
		}
		if bytes > m.memory {
			m.memory = bytes
		}
		m.monitor.SampleMemory(bytes)

	case OpState:
		value := ""
		if v := op.Get("value"); v.Exists() {
			value = fmt.Sprint(m.value(v))
		}
		m.stateChanges = append(m.stateChanges, m.env.setState(op.Get("key").String(), value))

	case OpEvent:
		data := map[string]any{}
		if raw := op.Get("data"); raw.IsObject() {
			if decoded, ok := raw.Value().(map[string]interface{}); ok {
				data = decoded
			}
		}
		m.events = append(m.events, types.RuntimeEvent{
			EventID:     fmt.Sprintf("%s-%d", m.executionID, len(m.events)),
			EventType:   op.Get("type").String(),
			Timestamp:   uint64(m.now().Unix()),
			Data:        data,
			ExecutionID: m.executionID,
		})

	case OpReturn:
		if top {
			m.returnValue = m.value(op.Get("value"))
		}
		return true, nil

	case OpFail:
		message := op.Get("message").String()
		if message == "" {
			message = "execution reverted"
		}
		return false, &revert{message: message}
	}
	return false, nil
}

// operand 解析整数操作数：数字、$参数名、$last 或数字字符串
func (m *machine) operand(v gjson.Result) (int64, error) {
	if v.Type == gjson.Number {
		return v.Int(), nil
	}
	s := v.String()
	if strings.HasPrefix(s, "$") {
		switch resolved := m.resolve(s).(type) {
		case int64:
			return resolved, nil
		case nil:
			return 0, &revert{message: fmt.Sprintf("undefined operand %s", s)}
		default:
			s = fmt.Sprint(resolved)
		}
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, &revert{message: fmt.Sprintf("operand %q is not an integer", s)}
	}
	return n, nil
}

// value 解析任意值：$ 引用按参数解析，其余取 JSON 值
func (m *machine) value(v gjson.Result) any {
	if !v.Exists() {
		return nil
	}
	if v.Type == gjson.String && strings.HasPrefix(v.Str, "$") {
		return m.resolve(v.Str)
	}
	return v.Value()
}

func (m *machine) resolve(ref string) any {
	name := strings.TrimPrefix(ref, "$")
	if name == "last" {
		return m.last
	}
	switch v := m.params[name].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
		return v
	default:
		return v
	}
}

package simulator

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// 轨迹操作
const (
	OpEnter        = "enter"
	OpExit         = "exit"
	OpCall         = "call"
	OpAdd          = "add"
	OpMul          = "mul"
	OpExternalCall = "external_call"
	OpGas          = "gas"
	OpMemory       = "memory"
	OpState        = "state"
	OpEvent        = "event"
	OpReturn       = "return"
	OpFail         = "fail"
)

// requiredFields 各操作必需的字段
var requiredFields = map[string][]string{
	OpEnter:        {"function"},
	OpExit:         nil,
	OpCall:         {"function"},
	OpAdd:          {"a", "b"},
	OpMul:          {"a", "b"},
	OpExternalCall: {"target", "function"},
	OpGas:          {"amount"},
	OpMemory:       {"bytes"},
	OpState:        {"key"},
	OpEvent:        {"type"},
	OpReturn:       nil,
	OpFail:         nil,
}

// program 解析后的轨迹程序
//
//	{
//	  "imports": ["env"],
//	  "functions": {
//	    "withdraw": [
//	      {"op": "gas", "amount": 21000},
//	      {"op": "call", "function": "withdraw"},
//	      {"op": "add", "a": "$amount", "b": 1},
//	      {"op": "return", "value": "$last"}
//	    ]
//	  }
//	}
//
// 字符串操作数以 $ 开头时引用调用参数，$last 引用最近一次算术结果。
type program struct {
	imports   []string
	functions map[string][]gjson.Result
}

// parseProgram 解析并校验轨迹程序
func parseProgram(source string, raw []byte) (*program, error) {
	if !gjson.ValidBytes(raw) {
		return nil, WrapInvalidProgramError(source, "not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, WrapInvalidProgramError(source, "top level must be an object")
	}

	p := &program{functions: make(map[string][]gjson.Result)}
	for _, imp := range doc.Get("imports").Array() {
		p.imports = append(p.imports, imp.String())
	}

	functions := doc.Get("functions")
	if !functions.IsObject() {
		return nil, WrapInvalidProgramError(source, "functions must be an object")
	}
	var err error
	functions.ForEach(func(name, body gjson.Result) bool {
		if !body.IsArray() {
			err = WrapInvalidProgramError(source, fmt.Sprintf("function %s must be a list of ops", name.String()))
			return false
		}
		ops := body.Array()
		for i, op := range ops {
			if e := validateOp(op); e != nil {
				err = WrapInvalidProgramError(source, fmt.Sprintf("function %s op %d: %v", name.String(), i, e))
				return false
			}
		}
		p.functions[name.String()] = ops
		return true
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func validateOp(op gjson.Result) error {
	if !op.IsObject() {
		return fmt.Errorf("op must be an object")
	}
	name := op.Get("op").String()
	fields, ok := requiredFields[name]
	if !ok {
		return fmt.Errorf("unknown op %q", name)
	}
	for _, field := range fields {
		if !op.Get(field).Exists() {
			return fmt.Errorf("op %s requires %s", name, field)
		}
	}
	return nil
}

// Functions 已定义的函数名（排序）
func (p *program) Functions() []string {
	out := make([]string, 0, len(p.functions))
	for name := range p.functions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

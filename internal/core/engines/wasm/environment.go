package wasm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tetratelabs/wazero"

	"github.com/weisyn/chainruntime/pkg/types"
)

// maxTrackedExecutions 每个环境保留事件的执行数
const maxTrackedExecutions = 256

// maxPages wasm32 线性内存的最大页数
const maxPages = 65536

// contract 已部署合约
type contract struct {
	address  common.Address
	codeHash common.Hash
	module   wazero.CompiledModule
}

// environment 后端侧的环境资源
//
// 每个环境独占一个 wazero.Runtime，内存上限与宿主模块都按环境配置。
type environment struct {
	id       string
	config   types.RuntimeConfig
	runtime  wazero.Runtime
	deployer common.Address
	pages    uint32

	mu        sync.Mutex
	closed    bool
	nonce     uint64
	modules   map[common.Hash]wazero.CompiledModule
	contracts map[common.Address]*contract
	state     map[string]string
	events    map[string][]types.RuntimeEvent
	order     []string
}

// memoryLimitPages 按MB上限换算64KiB页数
func memoryLimitPages(limitMB uint64) uint32 {
	pages := limitMB * 16
	if pages == 0 || pages > maxPages {
		return maxPages
	}
	return uint32(pages)
}

// deployerAddress 环境的部署者地址，由环境ID派生
func deployerAddress(envID string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(envID))[12:])
}

// compile 编译字节码，同一环境内按 keccak256 复用
func (e *environment) compile(ctx context.Context, code []byte) (wazero.CompiledModule, common.Hash, error) {
	hash := crypto.Keccak256Hash(code)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, hash, fmt.Errorf("environment %s closed", e.id)
	}
	if m, ok := e.modules[hash]; ok {
		e.mu.Unlock()
		return m, hash, nil
	}
	e.mu.Unlock()

	compiled, err := e.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, hash, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.modules[hash]; ok {
		_ = compiled.Close(ctx)
		return existing, hash, nil
	}
	e.modules[hash] = compiled
	return compiled, hash, nil
}

// sandboxViolation 沙箱模式下检查导入，只允许 env 模块
func (e *environment) sandboxViolation(compiled wazero.CompiledModule, timestamp uint64) *types.SecurityViolation {
	if !e.config.Security.SandboxEnabled {
		return nil
	}
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module == hostModuleName {
			continue
		}
		return &types.SecurityViolation{
			Type:        types.ViolationSandbox,
			Description: fmt.Sprintf("Sandbox denies import %s.%s", module, name),
			Severity:    types.SeverityHigh,
			Timestamp:   timestamp,
			Context:     map[string]string{"module": module, "function": name},
		}
	}
	return nil
}

// setState 写入状态并返回对应的变更记录
func (e *environment) setState(key, value string) types.StateChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	old, existed := e.state[key]
	change := types.StateChange{Key: key, NewValue: value}
	if existed {
		change.OldValue = old
	}
	switch {
	case value == "":
		delete(e.state, key)
		change.ChangeType = types.StateChangeDeleted
		change.NewValue = nil
	case existed:
		e.state[key] = value
		change.ChangeType = types.StateChangeUpdated
	default:
		e.state[key] = value
		change.ChangeType = types.StateChangeCreated
	}
	return change
}

// State 读取状态快照
func (e *environment) State() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.state))
	for k, v := range e.state {
		out[k] = v
	}
	return out
}

// recordEvents 记录一次执行的事件，超出保留数时淘汰最早的执行
func (e *environment) recordEvents(executionID string, events []types.RuntimeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.events[executionID]; !exists {
		e.order = append(e.order, executionID)
	}
	e.events[executionID] = append([]types.RuntimeEvent{}, events...)
	for len(e.order) > maxTrackedExecutions {
		delete(e.events, e.order[0])
		e.order = e.order[1:]
	}
}

func (e *environment) eventsOf(executionID string) ([]types.RuntimeEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	events, ok := e.events[executionID]
	if !ok {
		return nil, false
	}
	return append([]types.RuntimeEvent{}, events...), true
}

// register 登记新合约，地址由部署者与nonce派生
func (e *environment) register(module wazero.CompiledModule, hash common.Hash) *contract {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := &contract{
		address:  crypto.CreateAddress(e.deployer, e.nonce),
		codeHash: hash,
		module:   module,
	}
	e.nonce++
	e.contracts[c.address] = c
	return c
}

func (e *environment) unregister(address common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.contracts, address)
}

func (e *environment) contractAt(address common.Address) (*contract, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contracts[address]
	return c, ok
}

// Contracts 已部署合约地址（排序）
func (e *environment) Contracts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.contracts))
	for addr := range e.contracts {
		out = append(out, addr.Hex())
	}
	sort.Strings(out)
	return out
}

// close 释放运行时，成功后重复调用无副作用；失败时恢复为未关闭
func (e *environment) close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.runtime.Close(ctx); err != nil {
		e.mu.Lock()
		e.closed = false
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *environment) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

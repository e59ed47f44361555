package simulator

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/chainruntime/pkg/types"
)

// maxTrackedExecutions 每个环境保留事件的执行数
const maxTrackedExecutions = 256

// environment 模拟环境：合约、状态与事件
type environment struct {
	id       string
	config   types.RuntimeConfig
	deployer common.Address

	mu        sync.Mutex
	nonce     uint64
	contracts map[common.Address]*program
	state     map[string]string
	events    map[string][]types.RuntimeEvent
	order     []string
}

func newEnvironment(id string, config types.RuntimeConfig) *environment {
	return &environment{
		id:        id,
		config:    config.Clone(),
		deployer:  common.BytesToAddress(crypto.Keccak256([]byte(id))[12:]),
		contracts: make(map[common.Address]*program),
		state:     make(map[string]string),
		events:    make(map[string][]types.RuntimeEvent),
	}
}

// memoryLimit 环境内存上限（字节）
func (e *environment) memoryLimit() uint64 {
	return e.config.MemoryLimitMB << 20
}

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

func (e *environment) snapshot() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.state))
	for k, v := range e.state {
		out[k] = v
	}
	return out
}

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

// deploy 登记合约，地址由部署者与nonce派生
func (e *environment) deploy(p *program) common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	address := crypto.CreateAddress(e.deployer, e.nonce)
	e.nonce++
	e.contracts[address] = p
	return address
}

func (e *environment) undeploy(address common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.contracts, address)
}

func (e *environment) contractAt(address common.Address) (*program, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.contracts[address]
	return p, ok
}

func (e *environment) contractAddresses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.contracts))
	for addr := range e.contracts {
		out = append(out, addr.Hex())
	}
	sort.Strings(out)
	return out
}

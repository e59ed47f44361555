// Package event 基于asaskevich/EventBus的事件总线实现
// 在原始总线之上增加启停开关、按主题的有界历史与发布计数
package event

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	eventconfig "github.com/weisyn/chainruntime/internal/config/event"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
)

// EventBus 事件总线
//
// 关闭时所有订阅与发布静默成功，调用方无需区分。
type EventBus struct {
	bus     evbus.Bus
	options *eventconfig.EventOptions
	logger  log.Logger

	historyMu sync.RWMutex
	history   map[event.EventType][]interface{}

	published atomic.Uint64
}

var _ event.EventBus = (*EventBus)(nil)

// New 创建事件总线
func New(options *eventconfig.EventOptions, logger log.Logger) *EventBus {
	if options == nil {
		options = eventconfig.New(nil)
	}
	eb := &EventBus{
		bus:     evbus.New(),
		options: options,
		history: make(map[event.EventType][]interface{}),
	}
	if logger != nil {
		eb.logger = logger.With("module", "event")
	}
	return eb
}

// Subscribe 同步订阅
func (eb *EventBus) Subscribe(eventType event.EventType, handler interface{}) error {
	if !eb.options.Enabled {
		return nil
	}
	return eb.bus.Subscribe(string(eventType), handler)
}

// SubscribeAsync 异步订阅；transactional 为 true 时同一处理器串行执行
func (eb *EventBus) SubscribeAsync(eventType event.EventType, handler interface{}, transactional bool) error {
	if !eb.options.Enabled {
		return nil
	}
	return eb.bus.SubscribeAsync(string(eventType), handler, transactional)
}

// SubscribeOnce 一次性订阅
func (eb *EventBus) SubscribeOnce(eventType event.EventType, handler interface{}) error {
	if !eb.options.Enabled {
		return nil
	}
	return eb.bus.SubscribeOnce(string(eventType), handler)
}

// Unsubscribe 取消订阅
func (eb *EventBus) Unsubscribe(eventType event.EventType, handler interface{}) error {
	if !eb.options.Enabled {
		return nil
	}
	return eb.bus.Unsubscribe(string(eventType), handler)
}

// Publish 发布事件并记入历史；只记录第一个参数
func (eb *EventBus) Publish(eventType event.EventType, args ...interface{}) {
	if !eb.options.Enabled {
		return
	}
	eb.published.Add(1)
	if len(args) > 0 {
		eb.remember(eventType, args[0])
	}
	if eb.logger != nil {
		eb.logger.Debugf("publish %s", eventType)
	}
	eb.bus.Publish(string(eventType), args...)
}

// HasCallback 主题是否有订阅者
func (eb *EventBus) HasCallback(eventType event.EventType) bool {
	if !eb.options.Enabled {
		return false
	}
	return eb.bus.HasCallback(string(eventType))
}

// WaitAsync 等待异步处理完成
func (eb *EventBus) WaitAsync() {
	eb.bus.WaitAsync()
}

// History 主题的最近事件，按发布顺序
func (eb *EventBus) History(eventType event.EventType) []interface{} {
	eb.historyMu.RLock()
	defer eb.historyMu.RUnlock()
	return append([]interface{}{}, eb.history[eventType]...)
}

// PublishedCount 累计发布次数
func (eb *EventBus) PublishedCount() uint64 {
	return eb.published.Load()
}

func (eb *EventBus) remember(eventType event.EventType, payload interface{}) {
	limit := eb.options.HistorySize
	if limit <= 0 {
		return
	}
	eb.historyMu.Lock()
	defer eb.historyMu.Unlock()
	entries := append(eb.history[eventType], payload)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	eb.history[eventType] = entries
}

// Package event 定义运行时事件总线接口与事件主题
package event

// EventType 事件主题
type EventType string

// 运行时发布的事件主题
const (
	// EventTypeEnvironmentStateChanged 环境状态变更，参数为 EnvironmentStateChanged
	EventTypeEnvironmentStateChanged EventType = "environment.state_changed"

	// EventTypeExecutionCompleted 执行完成，参数为 ExecutionCompleted
	EventTypeExecutionCompleted EventType = "execution.completed"

	// EventTypeSecurityViolation 检测到安全违规，参数为 SecurityViolationDetected
	EventTypeSecurityViolation EventType = "security.violation"
)

// EventBus 事件总线接口
//
// handler 为任意函数，参数需与 Publish 的参数一致。
type EventBus interface {
	Subscribe(eventType EventType, handler interface{}) error
	SubscribeAsync(eventType EventType, handler interface{}, transactional bool) error
	SubscribeOnce(eventType EventType, handler interface{}) error
	Unsubscribe(eventType EventType, handler interface{}) error
	Publish(eventType EventType, args ...interface{})
	HasCallback(eventType EventType) bool
	// WaitAsync 等待所有异步处理完成
	WaitAsync()
}

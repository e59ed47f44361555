// Package event 提供事件总线配置
package event

import "github.com/weisyn/chainruntime/pkg/types"

const (
	defaultEnabled     = true
	defaultHistorySize = 256
)

// EventOptions 事件系统配置选项
type EventOptions struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// HistorySize 每个环境保留的运行时事件条数，供 Monitor 回放
	HistorySize int `json:"history_size" yaml:"history_size"`
}

// New 以默认值为基础应用用户配置
func New(user *types.UserEventConfig) *EventOptions {
	options := &EventOptions{Enabled: defaultEnabled, HistorySize: defaultHistorySize}
	if user != nil {
		if user.Enabled != nil {
			options.Enabled = *user.Enabled
		}
		if user.HistorySize != nil && *user.HistorySize > 0 {
			options.HistorySize = *user.HistorySize
		}
	}
	return options
}

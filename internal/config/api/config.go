// Package api 提供HTTP查询接口配置
package api

import (
	"time"

	"github.com/weisyn/chainruntime/pkg/types"
)

const (
	defaultEnabled      = true
	defaultHost         = "127.0.0.1"
	defaultPort         = 28680
	defaultGinMode      = "release"
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// APIOptions HTTP服务配置选项
type APIOptions struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	GinMode      string        `json:"gin_mode" yaml:"gin_mode"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// New 以默认值为基础应用用户配置
func New(user *types.UserAPIConfig) *APIOptions {
	options := &APIOptions{
		Enabled:      defaultEnabled,
		Host:         defaultHost,
		Port:         defaultPort,
		GinMode:      defaultGinMode,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if user != nil {
		if user.Enabled != nil {
			options.Enabled = *user.Enabled
		}
		if user.Host != nil {
			options.Host = *user.Host
		}
		if user.Port != nil {
			options.Port = *user.Port
		}
		if user.GinMode != nil {
			options.GinMode = *user.GinMode
		}
	}
	return options
}

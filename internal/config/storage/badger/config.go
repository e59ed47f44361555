// Package badger 提供执行结果库配置
package badger

import (
	"path/filepath"

	"github.com/weisyn/chainruntime/pkg/types"
)

const (
	defaultPath       = "./data/badger"
	defaultInMemory   = false
	defaultSyncWrites = true
)

// BadgerOptions BadgerDB配置选项
type BadgerOptions struct {
	Path       string `json:"path" yaml:"path"`               // 数据库目录，InMemory 时忽略
	InMemory   bool   `json:"in_memory" yaml:"in_memory"`     // 仅驻留内存
	SyncWrites bool   `json:"sync_writes" yaml:"sync_writes"` // 同步写盘
}

// New 以默认值为基础应用用户配置；路径规则为 {data_root}/badger
func New(user *types.UserStorageConfig) *BadgerOptions {
	options := &BadgerOptions{Path: defaultPath, InMemory: defaultInMemory, SyncWrites: defaultSyncWrites}
	if user != nil {
		if user.DataRoot != nil {
			options.Path = filepath.Join(*user.DataRoot, "badger")
		}
		if user.InMemory != nil {
			options.InMemory = *user.InMemory
		}
		if user.SyncWrites != nil {
			options.SyncWrites = *user.SyncWrites
		}
	}
	return options
}

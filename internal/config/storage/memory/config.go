// Package memory 提供热缓存配置
package memory

import (
	"time"

	"github.com/weisyn/chainruntime/pkg/types"
)

const (
	defaultShards             = 64
	defaultLifeWindow         = 10 * time.Minute
	defaultCleanWindow        = time.Minute
	defaultMaxEntriesInWindow = 10000
	defaultMaxEntrySize       = 4096
	defaultHardMaxCacheSizeMB = 64
)

// MemoryOptions bigcache 配置选项
type MemoryOptions struct {
	Shards             int           `json:"shards" yaml:"shards"`
	LifeWindow         time.Duration `json:"life_window" yaml:"life_window"`
	CleanWindow        time.Duration `json:"clean_window" yaml:"clean_window"`
	MaxEntriesInWindow int           `json:"max_entries_in_window" yaml:"max_entries_in_window"`
	MaxEntrySize       int           `json:"max_entry_size" yaml:"max_entry_size"`
	HardMaxCacheSizeMB int           `json:"hard_max_cache_size_mb" yaml:"hard_max_cache_size_mb"`
}

// New 以默认值为基础应用用户配置；无法解析的 cache_ttl 沿用默认值
func New(user *types.UserStorageConfig) *MemoryOptions {
	options := &MemoryOptions{
		Shards:             defaultShards,
		LifeWindow:         defaultLifeWindow,
		CleanWindow:        defaultCleanWindow,
		MaxEntriesInWindow: defaultMaxEntriesInWindow,
		MaxEntrySize:       defaultMaxEntrySize,
		HardMaxCacheSizeMB: defaultHardMaxCacheSizeMB,
	}
	if user != nil {
		if user.CacheMB != nil && *user.CacheMB > 0 {
			options.HardMaxCacheSizeMB = *user.CacheMB
		}
		if user.CacheTTL != nil {
			if ttl, err := time.ParseDuration(*user.CacheTTL); err == nil && ttl > 0 {
				options.LifeWindow = ttl
			}
		}
	}
	return options
}

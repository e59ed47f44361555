package storage

import (
	"context"
	"time"
)

// MemoryStore 进程内缓存接口，由 bigcache 实现
//
// 条目可能因容量或生存时间被淘汰，调用方需要能够回源。
type MemoryStore interface {
	// Get 返回值与是否存在
	Get(ctx context.Context, key string) (value []byte, exists bool, err error)

	// Set 写入缓存；ttl 仅作为提示，实际淘汰由缓存的生存窗口决定
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Clear 清空缓存
	Clear(ctx context.Context) error

	// Count 当前条目数
	Count() int64
}

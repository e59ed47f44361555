// Package memory 提供基于BigCache的内存缓存实现
package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	memoryconfig "github.com/weisyn/chainruntime/internal/config/storage/memory"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/storage"
)

// expiryHeaderSize 每个条目前缀的过期时间（unix纳秒，0表示仅受生存窗口约束）
const expiryHeaderSize = 8

// Store 实现MemoryStore接口
type Store struct {
	cache  *bigcache.BigCache
	logger log.Logger
	now    func() time.Time
}

var _ storage.MemoryStore = (*Store)(nil)

// New 创建BigCache内存存储
func New(options *memoryconfig.MemoryOptions, logger log.Logger) (*Store, error) {
	if options == nil {
		options = memoryconfig.New(nil)
	}
	cfg := bigcache.DefaultConfig(options.LifeWindow)
	cfg.Shards = options.Shards
	cfg.CleanWindow = options.CleanWindow
	cfg.MaxEntriesInWindow = options.MaxEntriesInWindow
	cfg.MaxEntrySize = options.MaxEntrySize
	cfg.HardMaxCacheSize = options.HardMaxCacheSizeMB
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("创建BigCache实例失败: %w", err)
	}
	return &Store{cache: cache, logger: logger, now: time.Now}, nil
}

// Close 关闭缓存
func (s *Store) Close() error {
	return s.cache.Close()
}

// Get 获取缓存值；已过期的条目视为不存在并被删除
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("获取缓存键[%s]失败: %w", key, err)
	}
	if len(raw) < expiryHeaderSize {
		_ = s.cache.Delete(key)
		return nil, false, nil
	}
	if expiry := int64(binary.BigEndian.Uint64(raw[:expiryHeaderSize])); expiry != 0 && s.now().UnixNano() >= expiry {
		_ = s.cache.Delete(key)
		return nil, false, nil
	}
	return append([]byte{}, raw[expiryHeaderSize:]...), true, nil
}

// Set 写入缓存，ttl 为0时仅受生存窗口约束
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, expiryHeaderSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf[:expiryHeaderSize], uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(buf[expiryHeaderSize:], value)
	if err := s.cache.Set(key, buf); err != nil {
		return fmt.Errorf("设置缓存键[%s]失败: %w", key, err)
	}
	return nil
}

// Delete 删除缓存键，键不存在时不报错
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.cache.Delete(key)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("删除缓存键[%s]失败: %w", key, err)
	}
	return nil
}

// Exists 检查键是否存在且未过期
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Clear 清空缓存
func (s *Store) Clear(ctx context.Context) error {
	return s.cache.Reset()
}

// Count 当前条目数（含尚未清理的过期条目）
func (s *Store) Count() int64 {
	return int64(s.cache.Len())
}

// Stats 命中统计
func (s *Store) Stats() bigcache.Stats {
	return s.cache.Stats()
}

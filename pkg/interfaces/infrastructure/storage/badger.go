// Package storage 定义执行结果持久化与热缓存使用的存储接口
package storage

import (
	"context"
	"time"
)

// BadgerStore 键值存储接口，由 BadgerDB 实现
type BadgerStore interface {
	// Close 关闭数据库，提交所有待处理写入
	Close() error

	// Get 获取指定键的值；键不存在时返回 nil, nil
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set 设置键值对，已存在时覆盖
	Set(ctx context.Context, key, value []byte) error

	// SetWithTTL 设置键值对并指定过期时间，ttl 为0表示永不过期
	SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error

	// Delete 删除键，键不存在时不报错
	Delete(ctx context.Context, key []byte) error

	Exists(ctx context.Context, key []byte) (bool, error)

	// PrefixScan 返回所有以 prefix 开头的键值对，map 键为键的字符串形式
	PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error)

	// RunInTransaction 在读写事务中执行 fn，fn 返回错误时回滚
	RunInTransaction(ctx context.Context, fn func(tx BadgerTransaction) error) error
}

// BadgerTransaction 单个事务内的键值操作
type BadgerTransaction interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Exists(key []byte) (bool, error)
}

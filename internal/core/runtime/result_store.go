package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"

	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/chainruntime/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/chainruntime/pkg/types"
)

const (
	// resultKeyPrefix 执行结果在结果库中的键前缀
	resultKeyPrefix = "exec:"

	// envIndexPrefix 环境索引键前缀：envidx:{环境ID}:{保存时间}:{执行ID}
	envIndexPrefix = "envidx:"

	// defaultHotTTL 热缓存条目的生存时间提示
	defaultHotTTL = 10 * time.Minute
)

// StoredResult 结果库中的一条执行记录
type StoredResult struct {
	EnvironmentID string                 `json:"environment_id"`
	Result        *types.ExecutionResult `json:"result"`
	StoredAt      uint64                 `json:"stored_at"`
}

// ResultStore 执行结果库
//
// 冷存储为 BadgerStore，热缓存为可选的 MemoryStore；
// 记录以 JSON 编码后经 snappy 压缩写入，读取时先查热缓存再回源。
type ResultStore struct {
	cold   storage.BadgerStore
	hot    storage.MemoryStore
	hotTTL time.Duration
	logger log.Logger
	now    func() time.Time
}

// NewResultStore 创建结果库；hot 可为 nil
func NewResultStore(cold storage.BadgerStore, hot storage.MemoryStore, logger log.Logger) *ResultStore {
	s := &ResultStore{
		cold:   cold,
		hot:    hot,
		hotTTL: defaultHotTTL,
		now:    time.Now,
	}
	if logger != nil {
		s.logger = logger.With("module", "storage")
	}
	return s
}

func resultKey(executionID string) string {
	return resultKeyPrefix + executionID
}

func envIndexKey(environmentID string, storedAt uint64, executionID string) string {
	return fmt.Sprintf("%s%s:%020d:%s", envIndexPrefix, environmentID, storedAt, executionID)
}

// Save 保存一次执行的结果
func (s *ResultStore) Save(ctx context.Context, environmentID string, result *types.ExecutionResult) error {
	if result == nil || result.ExecutionID == "" {
		return fmt.Errorf("save result: missing execution id")
	}
	record := StoredResult{
		EnvironmentID: environmentID,
		Result:        result,
		StoredAt:      uint64(s.now().Unix()),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", result.ExecutionID, err)
	}
	encoded := snappy.Encode(nil, raw)

	key := resultKey(result.ExecutionID)
	err = s.cold.RunInTransaction(ctx, func(tx storage.BadgerTransaction) error {
		if err := s.dropIndex(tx, key); err != nil {
			return err
		}
		if err := tx.Set([]byte(key), encoded); err != nil {
			return err
		}
		return tx.Set([]byte(envIndexKey(environmentID, record.StoredAt, result.ExecutionID)), []byte{})
	})
	if err != nil {
		return fmt.Errorf("persist result %s: %w", result.ExecutionID, err)
	}
	if s.hot != nil {
		if err := s.hot.Set(ctx, key, encoded, s.hotTTL); err != nil && s.logger != nil {
			s.logger.Warnf("cache result %s failed: %v", result.ExecutionID, err)
		}
	}
	return nil
}

// Load 读取执行记录；不存在时返回 ErrReportNotFound
func (s *ResultStore) Load(ctx context.Context, executionID string) (*StoredResult, error) {
	key := resultKey(executionID)

	if s.hot != nil {
		if encoded, ok, err := s.hot.Get(ctx, key); err == nil && ok {
			if record, err := decodeRecord(encoded); err == nil {
				return record, nil
			} else if s.logger != nil {
				s.logger.Warnf("drop corrupted cache entry %s: %v", executionID, err)
			}
			_ = s.hot.Delete(ctx, key)
		}
	}

	encoded, err := s.cold.Get(ctx, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", executionID, err)
	}
	if encoded == nil {
		return nil, WrapReportNotFoundError(executionID)
	}
	record, err := decodeRecord(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode result %s: %w", executionID, err)
	}
	if s.hot != nil {
		_ = s.hot.Set(ctx, key, encoded, s.hotTTL)
	}
	return record, nil
}

// Delete 删除执行记录及其环境索引
func (s *ResultStore) Delete(ctx context.Context, executionID string) error {
	key := resultKey(executionID)
	if s.hot != nil {
		_ = s.hot.Delete(ctx, key)
	}
	return s.cold.RunInTransaction(ctx, func(tx storage.BadgerTransaction) error {
		if err := s.dropIndex(tx, key); err != nil {
			return err
		}
		return tx.Delete([]byte(key))
	})
}

// dropIndex 删除已有记录对应的环境索引；记录不存在或无法解码时忽略
func (s *ResultStore) dropIndex(tx storage.BadgerTransaction, key string) error {
	existing, err := tx.Get([]byte(key))
	if err != nil || existing == nil {
		return err
	}
	record, err := decodeRecord(existing)
	if err != nil {
		return nil
	}
	indexKey := envIndexKey(record.EnvironmentID, record.StoredAt, record.Result.ExecutionID)
	return tx.Delete([]byte(indexKey))
}

// ListExecutions 列出某环境的执行ID（按保存时间排序）；environmentID 为空时列出全部
func (s *ResultStore) ListExecutions(ctx context.Context, environmentID string) ([]string, error) {
	if environmentID != "" {
		return s.listByEnvironment(ctx, environmentID)
	}

	entries, err := s.cold.PrefixScan(ctx, []byte(resultKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}

	type item struct {
		id       string
		storedAt uint64
	}
	items := make([]item, 0, len(entries))
	for key, encoded := range entries {
		record, err := decodeRecord(encoded)
		if err != nil {
			if s.logger != nil {
				s.logger.Warnf("skip undecodable result %s: %v", key, err)
			}
			continue
		}
		items = append(items, item{id: strings.TrimPrefix(key, resultKeyPrefix), storedAt: record.StoredAt})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].storedAt != items[j].storedAt {
			return items[i].storedAt < items[j].storedAt
		}
		return items[i].id < items[j].id
	})

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

// listByEnvironment 通过环境索引列出执行ID，索引键本身按保存时间有序
func (s *ResultStore) listByEnvironment(ctx context.Context, environmentID string) ([]string, error) {
	prefix := envIndexPrefix + environmentID + ":"
	entries, err := s.cold.PrefixScan(ctx, []byte(prefix))
	if err != nil {
		return nil, fmt.Errorf("scan environment index %s: %w", environmentID, err)
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		// 去掉前缀与定长时间戳段
		rest := strings.TrimPrefix(key, prefix)
		if _, id, ok := strings.Cut(rest, ":"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func decodeRecord(encoded []byte) (*StoredResult, error) {
	raw, err := snappy.Decode(nil, encoded)
	if err != nil {
		return nil, err
	}
	var record StoredResult
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if record.Result == nil {
		return nil, fmt.Errorf("record without result")
	}
	return &record, nil
}

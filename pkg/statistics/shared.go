package statistics

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/workerpool"
)

// SharedStore 进程级只读百分位存储，可同时供多个会话缓存读取
// 构造后不再修改；扩充时通过 Merge 生成新实例
type SharedStore struct {
	deciles map[string][]string
}

// NewSharedStore 由 列键 -> 百分位 构造存储，长度必须为 0 或 9
func NewSharedStore(deciles map[string][]string) (*SharedStore, error) {
	s := &SharedStore{deciles: make(map[string][]string, len(deciles))}
	for key, raw := range deciles {
		if len(raw) != 0 && len(raw) != PercentileCount {
			return nil, &PercentileError{Column: key, Got: len(raw)}
		}
		s.deciles[key] = append([]string(nil), raw...)
	}
	return s, nil
}

// LoadSharedStore 从来源预取多列的百分位，最多 workers 个请求并发
// 来源需要支持并发调用；workers <= 1 时顺序执行
func LoadSharedStore(ctx context.Context, source Source, columns []*domain.Column, workers int) (*SharedStore, error) {
	var (
		mu      sync.Mutex
		deciles = make(map[string][]string, len(columns))
		seen    = make(map[string]bool, len(columns))
		tasks   []workerpool.Task
	)
	for _, col := range columns {
		if seen[col.Key()] {
			continue
		}
		seen[col.Key()] = true
		col := col
		tasks = append(tasks, func(ctx context.Context) error {
			raw, err := source.GetColumnPercentiles(ctx, col)
			if err != nil {
				return fmt.Errorf("preload percentiles of %s: %w", col, err)
			}
			mu.Lock()
			deciles[col.Key()] = raw
			mu.Unlock()
			return nil
		})
	}

	if workers < 1 {
		workers = 1
	}
	if err := workerpool.RunTasks(ctx, workers, tasks); err != nil {
		return nil, err
	}
	return NewSharedStore(deciles)
}

// Lookup 查找列的百分位；nil 存储总是未命中
func (s *SharedStore) Lookup(key string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	raw, ok := s.deciles[key]
	return raw, ok
}

// Len 已存储的列数
func (s *SharedStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.deciles)
}

// Keys 有序的列键
func (s *SharedStore) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.deciles))
	for k := range s.deciles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge 返回包含本存储与会话缓存中全部百分位的新存储，原存储不变
func (s *SharedStore) Merge(c *Cache) *SharedStore {
	merged := &SharedStore{deciles: make(map[string][]string, s.Len()+len(c.rawDeciles))}
	if s != nil {
		for k, v := range s.deciles {
			merged.deciles[k] = v
		}
	}
	for k, v := range c.rawDeciles {
		if _, ok := merged.deciles[k]; !ok {
			merged.deciles[k] = append([]string(nil), v...)
		}
	}
	return merged
}

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// Key prefixes
const (
	PrefixPlan       = "plan:"
	PrefixPercentile = "pct:"
	PrefixStats      = "stats:"
)

// BadgerOptions Badger 快照配置
type BadgerOptions struct {
	// Dir 数据目录，InMemory 时忽略
	Dir string
	// InMemory 纯内存模式
	InMemory bool
}

// BadgerStore 基于 Badger 的快照存储，值为 JSON
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore 打开 Badger 快照
func OpenBadgerStore(opts BadgerOptions, log logger.Logger) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("badger snapshot needs a directory")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(badgerLogger{log: logger.OrNoOp(log).WithPrefix("[badger]")})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger snapshot: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) get(key string, v any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return found, nil
}

func (s *BadgerStore) PutPlan(_ context.Context, queryID string, plan *domain.QueryPlan) error {
	return s.put(PrefixPlan+queryID, plan)
}

func (s *BadgerStore) GetPlan(_ context.Context, queryID string) (*domain.QueryPlan, bool, error) {
	var plan domain.QueryPlan
	ok, err := s.get(PrefixPlan+queryID, &plan)
	if !ok || err != nil {
		return nil, false, err
	}
	return &plan, true, nil
}

func (s *BadgerStore) PutPercentiles(_ context.Context, columnKey string, values []string) error {
	if values == nil {
		values = []string{}
	}
	return s.put(PrefixPercentile+columnKey, values)
}

func (s *BadgerStore) GetPercentiles(_ context.Context, columnKey string) ([]string, bool, error) {
	var values []string
	ok, err := s.get(PrefixPercentile+columnKey, &values)
	return values, ok, err
}

func (s *BadgerStore) PutColumnStats(_ context.Context, columnKey string, stats *domain.ColumnStats) error {
	if stats == nil {
		stats = &domain.ColumnStats{}
	}
	return s.put(PrefixStats+columnKey, stats)
}

func (s *BadgerStore) GetColumnStats(_ context.Context, columnKey string) (*domain.ColumnStats, bool, error) {
	var stats domain.ColumnStats
	ok, err := s.get(PrefixStats+columnKey, &stats)
	if !ok || err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

// Percentiles 扫描全部百分位条目，空表不返回
func (s *BadgerStore) Percentiles(_ context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(PrefixPercentile)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), PrefixPercentile)
			var values []string
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &values)
			}); err != nil {
				return fmt.Errorf("failed to decode percentiles of %s: %w", key, err)
			}
			if len(values) > 0 {
				out[key] = values
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger snapshot: %w", err)
	}
	return nil
}

// badgerLogger 把 Badger 的日志接到 logger.Logger
type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimRight(format, "\n"), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimRight(format, "\n"), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimRight(format, "\n"), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimRight(format, "\n"), args...)
}

package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// Store 计划与列统计的快照存储
// 计划按查询 ID 保存，百分位与列统计按列的 Key() 保存
type Store interface {
	PutPlan(ctx context.Context, queryID string, plan *domain.QueryPlan) error
	GetPlan(ctx context.Context, queryID string) (*domain.QueryPlan, bool, error)

	PutPercentiles(ctx context.Context, columnKey string, values []string) error
	GetPercentiles(ctx context.Context, columnKey string) ([]string, bool, error)

	PutColumnStats(ctx context.Context, columnKey string, stats *domain.ColumnStats) error
	GetColumnStats(ctx context.Context, columnKey string) (*domain.ColumnStats, bool, error)

	// Percentiles 返回全部已记录的百分位表
	Percentiles(ctx context.Context) (map[string][]string, error)

	Close() error
}

// ErrNotRecorded 回放时快照中没有对应条目
type ErrNotRecorded struct {
	Kind string
	Key  string
}

func (e *ErrNotRecorded) Error() string {
	return fmt.Sprintf("%s %q is not recorded in snapshot", e.Kind, e.Key)
}

// Open 按配置打开快照存储
func Open(cfg config.SnapshotConfig, log logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "badger", "":
		return OpenBadgerStore(BadgerOptions{Dir: cfg.Path}, log)
	case "sqlite":
		return OpenSQLiteStore(cfg.Path)
	}
	return nil, fmt.Errorf("unsupported snapshot backend: %q", cfg.Backend)
}

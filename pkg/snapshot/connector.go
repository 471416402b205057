package snapshot

import (
	"context"
	"fmt"

	"github.com/kasuganosora/partadvisor/pkg/connector"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// RecordingConnector 透传到真实连接器，并把计划与统计写入快照
type RecordingConnector struct {
	connector.Connector
	store Store
	log   logger.Logger
}

// NewRecordingConnector 创建记录连接器
func NewRecordingConnector(inner connector.Connector, store Store, log logger.Logger) *RecordingConnector {
	return &RecordingConnector{Connector: inner, store: store, log: logger.OrNoOp(log)}
}

func (r *RecordingConnector) GetPlan(ctx context.Context, query *domain.Query) (*domain.QueryPlan, error) {
	plan, err := r.Connector.GetPlan(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutPlan(ctx, query.ID, plan); err != nil {
		return nil, fmt.Errorf("record plan: %w", err)
	}
	return plan, nil
}

func (r *RecordingConnector) GetColumnPercentiles(ctx context.Context, column *domain.Column) ([]string, error) {
	values, err := r.Connector.GetColumnPercentiles(ctx, column)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutPercentiles(ctx, column.Key(), values); err != nil {
		return nil, fmt.Errorf("record percentiles: %w", err)
	}
	return values, nil
}

func (r *RecordingConnector) GetColumnStatistics(ctx context.Context, column *domain.Column) (*domain.ColumnStats, error) {
	stats, err := r.Connector.GetColumnStatistics(ctx, column)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutColumnStats(ctx, column.Key(), stats); err != nil {
		return nil, fmt.Errorf("record column statistics: %w", err)
	}
	return stats, nil
}

// Close 关闭真实连接器与快照
func (r *RecordingConnector) Close() error {
	err := r.Connector.Close()
	if serr := r.store.Close(); err == nil {
		err = serr
	}
	return err
}

// ReplayConnector 只从快照应答，用于离线估算
// 没有记录的计划返回 ErrNotRecorded；没有记录的统计视为不可用
type ReplayConnector struct {
	store Store
	log   logger.Logger
}

// NewReplayConnector 创建回放连接器
func NewReplayConnector(store Store, log logger.Logger) *ReplayConnector {
	return &ReplayConnector{store: store, log: logger.OrNoOp(log)}
}

func (r *ReplayConnector) GetPlan(ctx context.Context, query *domain.Query) (*domain.QueryPlan, error) {
	plan, ok, err := r.store.GetPlan(ctx, query.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ErrNotRecorded{Kind: "plan", Key: query.ID}
	}
	return plan, nil
}

func (r *ReplayConnector) GetColumnPercentiles(ctx context.Context, column *domain.Column) ([]string, error) {
	values, ok, err := r.store.GetPercentiles(ctx, column.Key())
	if err != nil {
		return nil, err
	}
	if !ok {
		r.log.Warn("percentiles of %s are not recorded", column)
	}
	return values, nil
}

func (r *ReplayConnector) GetColumnStatistics(ctx context.Context, column *domain.Column) (*domain.ColumnStats, error) {
	stats, ok, err := r.store.GetColumnStats(ctx, column.Key())
	if err != nil {
		return nil, err
	}
	if !ok {
		r.log.Warn("statistics of %s are not recorded", column)
		return &domain.ColumnStats{}, nil
	}
	return stats, nil
}

// SimulatePartition 回放时不存在数据库，假设分区为空操作
func (r *ReplayConnector) SimulatePartition(context.Context, *domain.Partition) error {
	return nil
}

func (r *ReplayConnector) DropSimulatedPartition(context.Context, string, *domain.Partition) error {
	return nil
}

func (r *ReplayConnector) SimulatedTables(context.Context) ([]string, error) {
	return nil, nil
}

func (r *ReplayConnector) Close() error {
	return r.store.Close()
}

var (
	_ connector.Connector = (*RecordingConnector)(nil)
	_ connector.Connector = (*ReplayConnector)(nil)
)

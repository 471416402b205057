package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kasuganosora/partadvisor/pkg/connector"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
)

// WhatIfPartitionCreation 假设分区的生命周期与有效性检查
// 只用于判断分区是否有效，不参与代价计算
type WhatIfPartitionCreation struct {
	conn     connector.Connector
	stats    *statistics.Cache
	simulate bool
	log      logger.Logger

	// 数据库侧已创建假设分区的表 -> 分区
	simulated map[string]*domain.Partition
	// 连接器不支持模拟时只记一次日志
	unsupported bool
}

// NewWhatIfPartitionCreation 创建假设分区管理器
// simulate 为 false 时只做方差检查
func NewWhatIfPartitionCreation(conn connector.Connector, stats *statistics.Cache, simulate bool, log logger.Logger) *WhatIfPartitionCreation {
	return &WhatIfPartitionCreation{
		conn:      conn,
		stats:     stats,
		simulate:  simulate,
		log:       logger.OrNoOp(log),
		simulated: make(map[string]*domain.Partition),
	}
}

// SimulatePartition 检查列的方差并创建假设分区
// 缺少 min/max/median，或 median 等于 min 或 max 时分区标记为无效
func (w *WhatIfPartitionCreation) SimulatePartition(ctx context.Context, p *domain.Partition) error {
	stats, err := w.stats.ColumnStats(ctx, p.Column)
	if err != nil {
		return fmt.Errorf("column statistics of %s: %w", p.Column, err)
	}

	if !HasVariance(stats) {
		w.log.Info("partition has no variance: %s", p)
		p.Invalid = true
		return nil
	}
	p.Invalid = false

	if !w.simulate || w.unsupported {
		return nil
	}

	// 同一张表只保留一个假设分区方案
	table := p.TableName()
	if prev, ok := w.simulated[table]; ok {
		if err := w.drop(ctx, prev); err != nil {
			return err
		}
	}

	err = w.conn.SimulatePartition(ctx, p)
	var unsupported *domain.ErrUnsupportedOperation
	if errors.As(err, &unsupported) {
		w.log.Warn("%v; partitions are only checked for variance", err)
		w.unsupported = true
		return nil
	}
	if err != nil {
		return err
	}
	w.simulated[table] = p
	return nil
}

// DropSimulatedPartition 删除假设分区；无效分区从未创建，直接忽略
func (w *WhatIfPartitionCreation) DropSimulatedPartition(ctx context.Context, p *domain.Partition) error {
	if p.Invalid {
		return nil
	}
	prev, ok := w.simulated[p.TableName()]
	if !ok || !prev.Equal(p) {
		return nil
	}
	return w.drop(ctx, prev)
}

func (w *WhatIfPartitionCreation) drop(ctx context.Context, p *domain.Partition) error {
	table := p.TableName()
	if err := w.conn.DropSimulatedPartition(ctx, table, p); err != nil {
		return err
	}
	delete(w.simulated, table)
	return nil
}

// AllSimulatedPartitions 数据库侧仍存在的假设分区表
func (w *WhatIfPartitionCreation) AllSimulatedPartitions(ctx context.Context) ([]string, error) {
	tables, err := w.conn.SimulatedTables(ctx)
	if err != nil {
		return nil, err
	}
	for table := range w.simulated {
		if !contains(tables, table) {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// HasVariance 列统计是否足以切分
func HasVariance(stats *domain.ColumnStats) bool {
	if stats == nil || stats.Minimum == nil || stats.Maximum == nil || stats.Median == nil {
		return false
	}
	return *stats.Minimum != *stats.Median && *stats.Maximum != *stats.Median
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

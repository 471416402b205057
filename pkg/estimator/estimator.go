package estimator

import (
	"context"
	"sort"
	"strings"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/interval"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
)

// Estimator 分区代价估算器
// 自底向上遍历执行计划，用过滤条件区间与候选分区边界的关系缩放叶子节点的基准代价
type Estimator struct {
	stats *statistics.Cache
	log   logger.Logger
}

// New 创建估算器
func New(stats *statistics.Cache, log logger.Logger) *Estimator {
	return &Estimator{stats: stats, log: logger.OrNoOp(log)}
}

// EstimateCost 估算计划树在候选分区下的代价
//
// 规则按顺序匹配：
//  1. 没有（有效的）候选分区：返回节点代价
//  2. 非叶子节点：返回子节点估算之和，忽略节点自身代价
//  3. 叶子节点无过滤条件：返回节点代价
//  4. 过滤条件涉及的列上没有候选分区：返回节点代价
//  5. 只使用第一个匹配到的列分组
//  6. 该列没有百分位：返回节点代价；否则按日期或十分位规则缩放
func (e *Estimator) EstimateCost(ctx context.Context, plan *domain.QueryPlan, candidates []*domain.Partition) (float64, error) {
	return e.estimate(ctx, plan, usable(candidates))
}

func (e *Estimator) estimate(ctx context.Context, plan *domain.QueryPlan, candidates []*domain.Partition) (float64, error) {
	if len(candidates) == 0 {
		return plan.TotalCost, nil
	}

	if !plan.IsLeaf() {
		var sum float64
		for _, child := range plan.Plans {
			cost, err := e.estimate(ctx, child, candidates)
			if err != nil {
				return 0, err
			}
			sum += cost
		}
		return sum, nil
	}

	if !plan.HasFilter() {
		return plan.TotalCost, nil
	}

	intervals, err := e.stats.Intervals(*plan.Filter)
	if err != nil {
		return 0, err
	}

	group, iv, ok := firstColumnGroup(candidates, intervals)
	if !ok {
		return plan.TotalCost, nil
	}

	column := group[0].Column
	percentiles, err := e.stats.Percentiles(ctx, column)
	if err != nil {
		return 0, err
	}
	if len(percentiles) == 0 {
		return plan.TotalCost, nil
	}

	sort.SliceStable(group, func(i, j int) bool {
		return domain.CompareBoundaries(group[i], group[j]) < 0
	})

	var cost float64
	if column.Kind == domain.ColumnKindDate {
		cost, ok = calendarCost(plan.TotalCost, iv, group[0].Rate)
	} else {
		cost, ok = decileCost(plan.TotalCost, iv, group, percentiles, column.Kind)
	}
	if !ok {
		e.log.Debug("cannot prune %s on %s with %s, keeping baseline cost", column, *plan.Filter, iv)
		return plan.TotalCost, nil
	}
	e.log.Debug("pruned %s: %.2f -> %.2f", column, plan.TotalCost, cost)
	return cost, nil
}

// usable 去掉无效分区
func usable(candidates []*domain.Partition) []*domain.Partition {
	out := make([]*domain.Partition, 0, len(candidates))
	for _, p := range candidates {
		if p != nil && !p.Invalid {
			out = append(out, p)
		}
	}
	return out
}

// firstColumnGroup 按候选顺序找到第一个在区间表中出现的列，返回该列的全部分区及其区间
func firstColumnGroup(candidates []*domain.Partition, intervals map[string]interval.Interval) ([]*domain.Partition, interval.Interval, bool) {
	if len(intervals) == 0 {
		return nil, interval.Interval{}, false
	}
	keys := make([]string, 0, len(intervals))
	for k := range intervals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, p := range candidates {
		key, ok := matchColumn(keys, p.Column.Name)
		if !ok {
			continue
		}
		var group []*domain.Partition
		for _, q := range candidates {
			if q.Column.Key() == p.Column.Key() {
				group = append(group, q)
			}
		}
		return group, intervals[key], true
	}
	return nil, interval.Interval{}, false
}

// MatchColumn 判断区间表中的列名（可能带表名或别名限定）是否指向 name
func MatchColumn(key, name string) bool {
	name = strings.ToLower(name)
	return key == name || strings.HasSuffix(key, "."+name)
}

func matchColumn(keys []string, name string) (string, bool) {
	for _, k := range keys {
		if MatchColumn(k, name) {
			return k, true
		}
	}
	return "", false
}

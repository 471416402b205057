package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/partadvisor/pkg/connector"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/estimator"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
)

// CostEvaluation 一次代价估算会话
// 绑定一个连接器；缓存与计数器在每次调用时原地修改，非并发安全
type CostEvaluation struct {
	id        string
	conn      connector.Connector
	stats     *statistics.Cache
	estimator *estimator.Estimator
	whatIf    *WhatIfPartitionCreation
	log       logger.Logger

	frequencyWeighted bool
	simulate          bool
	shared            *statistics.SharedStore

	current  map[string]*domain.Partition
	plans    map[string]*domain.QueryPlan
	relevant map[relevantKey][]*domain.Partition

	costRequests int64
	cacheHits    int64
	costingTime  time.Duration
	completed    bool
}

type relevantKey struct {
	queryID    string
	partitions string
}

// Result 一次估算的结果，Plans/Costs/BaselineCosts 与工作负载中的查询一一对应
type Result struct {
	TotalCost     float64             `json:"total_cost"`
	Plans         []*domain.QueryPlan `json:"plans"`
	Costs         []float64           `json:"costs"`
	BaselineCosts []float64           `json:"baseline_costs"`
}

// CacheInfo 会话计数器
type CacheInfo struct {
	SessionID     string           `json:"session_id"`
	CostRequests  int64            `json:"cost_requests"`
	CacheHits     int64            `json:"cache_hits"`
	CostingTime   time.Duration    `json:"costing_time"`
	CachedPlans   int              `json:"cached_plans"`
	Simulated     int              `json:"simulated_partitions"`
	Statistics    statistics.Stats `json:"statistics"`
	FrequencyMode string           `json:"frequency_mode"`
}

// Option 会话选项
type Option func(*CostEvaluation)

// WithLogger 设置日志，会话 ID 作为前缀
func WithLogger(log logger.Logger) Option {
	return func(ce *CostEvaluation) { ce.log = log }
}

// WithFrequencyWeighting 总代价是否按查询频率加权（默认开启）
func WithFrequencyWeighting(enabled bool) Option {
	return func(ce *CostEvaluation) { ce.frequencyWeighted = enabled }
}

// WithSimulation 是否在数据库侧创建假设分区（默认开启）
// 关闭后仍做方差检查
func WithSimulation(enabled bool) Option {
	return func(ce *CostEvaluation) { ce.simulate = enabled }
}

// WithSharedStore 使用进程级只读百分位存储
func WithSharedStore(store *statistics.SharedStore) Option {
	return func(ce *CostEvaluation) { ce.shared = store }
}

// NewCostEvaluation 创建估算会话
func NewCostEvaluation(conn connector.Connector, opts ...Option) *CostEvaluation {
	ce := &CostEvaluation{
		id:                uuid.New().String(),
		conn:              conn,
		frequencyWeighted: true,
		simulate:          true,
		current:           make(map[string]*domain.Partition),
		plans:             make(map[string]*domain.QueryPlan),
		relevant:          make(map[relevantKey][]*domain.Partition),
	}
	for _, opt := range opts {
		opt(ce)
	}
	ce.log = logger.OrNoOp(ce.log).WithPrefix(fmt.Sprintf("[%s]", ce.id[:8]))

	statOpts := []statistics.Option{statistics.WithLogger(ce.log)}
	if ce.shared != nil {
		statOpts = append(statOpts, statistics.WithSharedStore(ce.shared))
	}
	ce.stats = statistics.NewCache(conn, statOpts...)
	ce.estimator = estimator.New(ce.stats, ce.log)
	ce.whatIf = NewWhatIfPartitionCreation(conn, ce.stats, ce.simulate, ce.log)

	ce.log.Debug("cost evaluation created, frequency weighted: %v, simulate: %v", ce.frequencyWeighted, ce.simulate)
	return ce
}

// ID 会话 ID
func (ce *CostEvaluation) ID() string {
	return ce.id
}

// Statistics 会话统计缓存
func (ce *CostEvaluation) Statistics() *statistics.Cache {
	return ce.stats
}

// CalculateCostAndPlans 估算工作负载在候选分区下的总代价
// 计划按查询缓存；调整后的代价每次都重新计算
func (ce *CostEvaluation) CalculateCostAndPlans(ctx context.Context, workload *domain.Workload, candidates []*domain.Partition) (*Result, error) {
	if ce.completed {
		return nil, &domain.StateError{Operation: "CalculateCostAndPlans"}
	}

	start := time.Now()
	defer func() {
		ce.costingTime += time.Since(start)
	}()

	if err := ce.prepare(ctx, candidates); err != nil {
		return nil, err
	}

	setKey := partitionSetKey(candidates)
	result := &Result{
		Plans:         make([]*domain.QueryPlan, 0, len(workload.Queries)),
		Costs:         make([]float64, 0, len(workload.Queries)),
		BaselineCosts: make([]float64, 0, len(workload.Queries)),
	}

	for _, query := range workload.Queries {
		ce.costRequests++

		relevant := ce.relevantPartitions(query, candidates, setKey)
		plan, err := ce.plan(ctx, query)
		if err != nil {
			return nil, err
		}

		cost, err := ce.estimator.EstimateCost(ctx, plan, relevant)
		if err != nil {
			return nil, fmt.Errorf("estimate query %s: %w", query.ID, err)
		}

		if ce.frequencyWeighted {
			result.TotalCost += cost * query.Frequency
		} else {
			result.TotalCost += cost
		}
		result.Plans = append(result.Plans, plan)
		result.Costs = append(result.Costs, cost)
		result.BaselineCosts = append(result.BaselineCosts, plan.TotalCost)
	}

	ce.log.Debug("evaluated %d queries with %d partitions, total cost %.2f", len(workload.Queries), len(candidates), result.TotalCost)
	return result, nil
}

// prepare 让已模拟的分区集合与候选集合一致：模拟新增的，删除移除的
func (ce *CostEvaluation) prepare(ctx context.Context, candidates []*domain.Partition) error {
	wanted := make(map[string]*domain.Partition, len(candidates))
	for _, p := range candidates {
		if err := p.Validate(); err != nil {
			return err
		}
		wanted[p.Key()] = p
	}

	for _, key := range sortedKeys(wanted) {
		if _, ok := ce.current[key]; ok {
			continue
		}
		p := wanted[key]
		if err := ce.whatIf.SimulatePartition(ctx, p); err != nil {
			return err
		}
		ce.current[key] = p
	}

	for _, key := range sortedKeys(ce.current) {
		if _, ok := wanted[key]; ok {
			continue
		}
		if err := ce.whatIf.DropSimulatedPartition(ctx, ce.current[key]); err != nil {
			return err
		}
		delete(ce.current, key)
	}

	// 同一分区的其他实例沿用已有的有效性结论
	for _, p := range candidates {
		p.Invalid = ce.current[p.Key()].Invalid
	}
	return nil
}

func (ce *CostEvaluation) plan(ctx context.Context, query *domain.Query) (*domain.QueryPlan, error) {
	if plan, ok := ce.plans[query.ID]; ok {
		ce.cacheHits++
		return plan, nil
	}
	plan, err := ce.conn.GetPlan(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get plan of query %s: %w", query.ID, err)
	}
	ce.plans[query.ID] = plan
	return plan, nil
}

// relevantPartitions 查询引用的列上的候选分区；查询未记录引用列时全部候选都相关
func (ce *CostEvaluation) relevantPartitions(query *domain.Query, candidates []*domain.Partition, setKey string) []*domain.Partition {
	key := relevantKey{queryID: query.ID, partitions: setKey}
	if cached, ok := ce.relevant[key]; ok {
		return cached
	}

	var relevant []*domain.Partition
	if len(query.Columns) == 0 {
		relevant = candidates
	} else {
		for _, p := range candidates {
			for _, col := range query.Columns {
				if estimator.MatchColumn(strings.ToLower(col), p.Column.Name) {
					relevant = append(relevant, p)
					break
				}
			}
		}
	}
	ce.relevant[key] = relevant
	return relevant
}

// CacheInfo 返回会话计数器
func (ce *CostEvaluation) CacheInfo() CacheInfo {
	mode := "unweighted"
	if ce.frequencyWeighted {
		mode = "frequency"
	}
	return CacheInfo{
		SessionID:     ce.id,
		CostRequests:  ce.costRequests,
		CacheHits:     ce.cacheHits,
		CostingTime:   ce.costingTime,
		CachedPlans:   len(ce.plans),
		Simulated:     len(ce.current),
		Statistics:    ce.stats.Stats(),
		FrequencyMode: mode,
	}
}

// Complete 结束会话：删除剩余的假设分区并标记为已完成
// 之后数据库侧仍存在假设分区时返回 InvariantError
func (ce *CostEvaluation) Complete(ctx context.Context) error {
	if ce.completed {
		return &domain.StateError{Operation: "Complete"}
	}

	// 删除失败的分区留在 current 中，会话保持未完成，可再次调用 Complete 重试
	var dropErrs []error
	for _, key := range sortedKeys(ce.current) {
		if err := ce.whatIf.DropSimulatedPartition(ctx, ce.current[key]); err != nil {
			dropErrs = append(dropErrs, err)
			continue
		}
		delete(ce.current, key)
	}
	if len(dropErrs) > 0 {
		return errors.Join(dropErrs...)
	}
	ce.completed = true

	outstanding, err := ce.whatIf.AllSimulatedPartitions(ctx)
	if err != nil {
		return err
	}
	if len(outstanding) > 0 {
		return &domain.InvariantError{Outstanding: outstanding}
	}
	ce.log.Debug("cost evaluation completed: %d requests, %d cache hits, %s", ce.costRequests, ce.cacheHits, ce.costingTime)
	return nil
}

// Completed 会话是否已结束
func (ce *CostEvaluation) Completed() bool {
	return ce.completed
}

// partitionSetKey 候选集合的顺序无关标识
func partitionSetKey(candidates []*domain.Partition) string {
	keys := make([]string, 0, len(candidates))
	for _, p := range candidates {
		keys = append(keys, p.Key())
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

func sortedKeys(m map[string]*domain.Partition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

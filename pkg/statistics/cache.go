package statistics

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/filter"
	"github.com/kasuganosora/partadvisor/pkg/interval"
	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// PercentileCount 百分位表长度（第 10 至第 90 百分位）
const PercentileCount = 9

// Source 统计信息来源（数据库连接器）
type Source interface {
	GetColumnPercentiles(ctx context.Context, column *domain.Column) ([]string, error)
	GetColumnStatistics(ctx context.Context, column *domain.Column) (*domain.ColumnStats, error)
}

// Cache 会话级统计信息缓存
// 会话内统计信息视为不变，条目只增不删；非并发安全，由会话独占
type Cache struct {
	source Source
	shared *SharedStore
	parser *filter.Parser
	log    logger.Logger

	percentiles map[string][]interval.Value
	rawDeciles  map[string][]string
	intervals   map[string]map[string]interval.Interval
	columnStats map[string]*domain.ColumnStats

	percentileCounter counter
	intervalCounter   counter
	statsCounter      counter
	parses            int64
}

type counter struct {
	hits   int64
	misses int64
}

func (c *counter) hit()  { c.hits++ }
func (c *counter) miss() { c.misses++ }

func (c counter) stats(size int) CacheStats {
	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{Size: size, Hits: c.hits, Misses: c.misses, HitRate: hitRate}
}

// CacheStats 单个缓存的命中统计
type CacheStats struct {
	Size    int     // 条目数
	Hits    int64   // 命中次数
	Misses  int64   // 未命中次数
	HitRate float64 // 命中率
}

// Stats 各缓存的统计
type Stats struct {
	Percentiles CacheStats
	Intervals   CacheStats
	ColumnStats CacheStats
	Parses      int64 // 过滤条件实际解析次数
}

// Option 缓存选项
type Option func(*Cache)

// WithSharedStore 使用进程级只读百分位存储作为一级来源
func WithSharedStore(store *SharedStore) Option {
	return func(c *Cache) { c.shared = store }
}

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// NewCache 创建统计信息缓存
func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:      source,
		parser:      filter.NewParser(),
		percentiles: make(map[string][]interval.Value),
		rawDeciles:  make(map[string][]string),
		intervals:   make(map[string]map[string]interval.Interval),
		columnStats: make(map[string]*domain.ColumnStats),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNoOp(c.log)
	return c
}

// Percentiles 返回列的 9 个十分位值（升序）
// 空结果同样缓存，表示该列无法裁剪
func (c *Cache) Percentiles(ctx context.Context, column *domain.Column) ([]interval.Value, error) {
	key := column.Key()
	if values, ok := c.percentiles[key]; ok {
		c.percentileCounter.hit()
		return values, nil
	}
	c.percentileCounter.miss()

	raw, ok := c.shared.Lookup(key)
	if !ok {
		var err error
		raw, err = c.source.GetColumnPercentiles(ctx, column)
		if err != nil {
			return nil, fmt.Errorf("percentiles of %s: %w", column, err)
		}
	}
	if len(raw) != 0 && len(raw) != PercentileCount {
		return nil, &PercentileError{Column: column.String(), Got: len(raw)}
	}

	values := ToValues(column.Kind, raw)
	c.percentiles[key] = values
	c.rawDeciles[key] = raw
	if len(values) == 0 {
		c.log.Debug("no percentiles for %s, pruning disabled", column)
	}
	return values, nil
}

// Intervals 返回过滤条件解析出的 列 -> 区间
// 语法错误缓存为 nil（视为没有已知谓词）；不支持的运算符直接返回错误且不缓存
func (c *Cache) Intervals(filterText string) (map[string]interval.Interval, error) {
	if cached, ok := c.intervals[filterText]; ok {
		c.intervalCounter.hit()
		return cached, nil
	}
	c.intervalCounter.miss()

	c.parses++
	expr, err := c.parser.Parse(filterText)
	if err != nil {
		var perr *filter.ParseError
		if !errors.As(err, &perr) {
			return nil, err
		}
		c.log.Warn("cannot parse filter, assuming no predicate: %v", perr)
		c.intervals[filterText] = nil
		return nil, nil
	}

	resolved, err := interval.Resolve(expr)
	if err != nil {
		return nil, err
	}
	c.intervals[filterText] = resolved
	return resolved, nil
}

// ColumnStats 返回列的 min/max/median，用于有效性检查
func (c *Cache) ColumnStats(ctx context.Context, column *domain.Column) (*domain.ColumnStats, error) {
	key := column.Key()
	if stats, ok := c.columnStats[key]; ok {
		c.statsCounter.hit()
		return stats, nil
	}
	c.statsCounter.miss()

	if column.Stats != nil {
		c.columnStats[key] = column.Stats
		return column.Stats, nil
	}
	stats, err := c.source.GetColumnStatistics(ctx, column)
	if err != nil {
		return nil, fmt.Errorf("statistics of %s: %w", column, err)
	}
	if stats == nil {
		stats = &domain.ColumnStats{}
	}
	c.columnStats[key] = stats
	return stats, nil
}

// Stats 返回缓存统计信息
func (c *Cache) Stats() Stats {
	return Stats{
		Percentiles: c.percentileCounter.stats(len(c.percentiles)),
		Intervals:   c.intervalCounter.stats(len(c.intervals)),
		ColumnStats: c.statsCounter.stats(len(c.columnStats)),
		Parses:      c.parses,
	}
}

// ToValues 按列类型把原始百分位文本转为可比较的端点
// 数值列无法解析的值保留为字符串，比较时视为不可比较
func ToValues(kind domain.ColumnKind, raw []string) []interval.Value {
	values := make([]interval.Value, len(raw))
	for i, s := range raw {
		if kind == domain.ColumnKindNumeric {
			if v, err := interval.NumberValue(s); err == nil {
				values[i] = v
				continue
			}
		}
		values[i] = interval.StringValue(s)
	}
	return values
}

// BoundaryValue 把分区的十分位切点映射为具体值 percentiles[round(f*10)-1]
// 分区没有分数或下标越界时 ok 为 false
func BoundaryValue(p *domain.Partition, percentiles []interval.Value) (interval.Value, bool) {
	if !p.HasFraction() {
		return interval.Value{}, false
	}
	idx := p.DecileIndex()
	if idx < 0 || idx >= len(percentiles) {
		return interval.Value{}, false
	}
	return percentiles[idx], true
}

// PercentileError 百分位表长度不正确
type PercentileError struct {
	Column string
	Got    int
}

func (e *PercentileError) Error() string {
	return fmt.Sprintf("percentile table of %s has %d values, want %d", e.Column, e.Got, PercentileCount)
}

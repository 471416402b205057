package estimator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/interval"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deciles map[string][]string

func (d deciles) GetColumnPercentiles(_ context.Context, col *domain.Column) ([]string, error) {
	return d[col.Key()], nil
}

func (d deciles) GetColumnStatistics(context.Context, *domain.Column) (*domain.ColumnStats, error) {
	return nil, nil
}

var (
	colA = &domain.Column{Table: "t", Name: "a", Kind: domain.ColumnKindNumeric}
	colB = &domain.Column{Table: "t", Name: "b", Kind: domain.ColumnKindNumeric}
	colC = &domain.Column{Table: "t", Name: "c", Kind: domain.ColumnKindNumeric}
	colS = &domain.Column{Table: "t", Name: "s", Kind: domain.ColumnKindText}
	colD = &domain.Column{Table: "t", Name: "d", Kind: domain.ColumnKindDate}
)

func testSource() deciles {
	return deciles{
		"t.a": {"10", "20", "30", "40", "50", "60", "70", "80", "90"},
		"t.b": {"10", "20", "30", "40", "50", "60", "70", "80", "90"},
		"t.s": {"b", "c", "d", "e", "f", "g", "h", "i", "j"},
		"t.d": {
			"2020-01-01", "2020-02-01", "2020-03-01", "2020-04-01", "2020-05-01",
			"2020-06-01", "2020-07-01", "2020-08-01", "2020-09-01",
		},
	}
}

func newEstimator() (*Estimator, *statistics.Cache) {
	cache := statistics.NewCache(testSource())
	return New(cache, nil), cache
}

func leaf(cost float64, filter string) *domain.QueryPlan {
	p := &domain.QueryPlan{NodeType: "Seq Scan", TotalCost: cost}
	if filter != "" {
		p.Filter = &filter
	}
	return p
}

func part(t *testing.T, col *domain.Column, fraction float64) *domain.Partition {
	t.Helper()
	p, err := domain.NewPartition(col, "", fraction)
	require.NoError(t, err)
	return p
}

func datePart(t *testing.T, rate domain.PartitionRate) *domain.Partition {
	t.Helper()
	p, err := domain.NewPartition(colD, rate, 0)
	require.NoError(t, err)
	return p
}

func TestEstimateCost_Scenarios(t *testing.T) {
	ctx := context.Background()
	e, _ := newEstimator()

	tests := []struct {
		name       string
		plan       *domain.QueryPlan
		candidates []*domain.Partition
		want       float64
	}{
		{"A upper bound", leaf(100, "a < 50"), []*domain.Partition{part(t, colA, 0.5)}, 50},
		{"B lower bound", leaf(100, "a > 50"), []*domain.Partition{part(t, colA, 0.5)}, 50},
		{"C no filter", leaf(100, ""), []*domain.Partition{part(t, colA, 0.5)}, 100},
		{"D unmatched column", leaf(100, "b < 50"), []*domain.Partition{part(t, colA, 0.5)}, 100},
		{"no candidates", leaf(100, "a < 50"), nil, 100},
		{"qualified column", leaf(100, "(t.a < 50)"), []*domain.Partition{part(t, colA, 0.5)}, 50},
		{"cast column", leaf(100, "((a)::numeric <= 50::numeric)"), []*domain.Partition{part(t, colA, 0.5)}, 50},
		{"quoted numeric cast", leaf(100, "(a < '50'::numeric)"), []*domain.Partition{part(t, colA, 0.5)}, 50},
		{"quoted numeric with other columns", leaf(100, "((s >= 'c'::text) AND (b < '24'::numeric))"), []*domain.Partition{part(t, colB, 0.5)}, 50},
		{"quoted numeric lower bound", leaf(100, "(a > '50'::numeric)"), []*domain.Partition{part(t, colA, 0.5)}, 50},
		{"quoted non-numeric on numeric column", leaf(100, "(a < 'abc'::text)"), []*domain.Partition{part(t, colA, 0.5)}, 100},
		{"no percentiles", leaf(100, "c < 50"), []*domain.Partition{part(t, colC, 0.5)}, 100},
		{"unparsable filter", leaf(100, "a ~~ 'x%'"), []*domain.Partition{part(t, colA, 0.5)}, 100},
		{"column reference", leaf(100, "a < b"), []*domain.Partition{part(t, colA, 0.5)}, 100},
		{"text column", leaf(100, "s < 'f'"), []*domain.Partition{part(t, colS, 0.5)}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EstimateCost(ctx, tt.plan, tt.candidates)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEstimateCost_EmptyCandidatesKeepsAnyPlan(t *testing.T) {
	e, _ := newEstimator()
	plan := &domain.QueryPlan{TotalCost: 42, Plans: []*domain.QueryPlan{leaf(1, "a < 5"), leaf(2, "")}}

	got, err := e.EstimateCost(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}

func TestEstimateCost_ChildrenSum(t *testing.T) {
	ctx := context.Background()
	e, _ := newEstimator()
	candidates := []*domain.Partition{part(t, colA, 0.5)}

	children := []*domain.QueryPlan{
		leaf(100, "a < 50"),
		leaf(30, ""),
		{TotalCost: 1000, Plans: []*domain.QueryPlan{leaf(100, "a > 50"), leaf(7, "b = 1")}},
	}

	var want float64
	for _, child := range children {
		cost, err := e.EstimateCost(ctx, child, candidates)
		require.NoError(t, err)
		want += cost
	}

	for _, parentCost := range []float64{0, 12345} {
		plan := &domain.QueryPlan{TotalCost: parentCost, Plans: children}
		got, err := e.EstimateCost(ctx, plan, candidates)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9)
		assert.InDelta(t, 50+30+50+7, got, 1e-9)
	}
}

func TestEstimateCost_DecileScan(t *testing.T) {
	ctx := context.Background()
	e, _ := newEstimator()
	// 故意打乱顺序，估算前按边界排序
	candidates := []*domain.Partition{part(t, colA, 0.8), part(t, colA, 0.2), part(t, colA, 0.5)}

	tests := []struct {
		filter string
		want   float64
	}{
		// 上界：60 > 20, 60 > 50, 60 <= 80
		{"a < 60", 100 * 0.8 * 3},
		// 上界落在第一个切点之内
		{"a <= 15", 100 * 0.2 * 1},
		// 上界超出所有切点
		{"a < 95", 100 * 1.0 * 4},
		// 下界：10 <= 所有切点，minBound 推进到最后一个
		{"a > 10", 100 * (1 - 0.8) * 1},
		// 下界：60 > 20，剩余 3 个分区
		{"a > 60", 100 * 1.0 * 3},
		// 下界：30 > 20 同样在第一个切点处停止
		{"a >= 30", 100 * 1.0 * 3},
		// 双边界：[30, 40] 落在 (20, 50]
		{"a >= 30 AND a <= 40", 100 * (0.5 - 0.2) * 1},
		// 双边界：[10, 15] 落在第一个切点之内
		{"a > 10 AND a < 15", 100 * 0.2 * 1},
		// 双边界：[85, 88] 超出所有切点
		{"a > 85 AND a < 88", 100 * (1 - 0.8) * 1},
		// 等值
		{"a = 45", 100 * (0.5 - 0.2) * 1},
		// OR 合并为无界区间
		{"a < 10 OR a > 90", 100},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			got, err := e.EstimateCost(ctx, leaf(100, tt.filter), candidates)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEstimateCost_FirstColumnGroupOnly(t *testing.T) {
	ctx := context.Background()
	e, _ := newEstimator()
	plan := leaf(100, "a < 50 AND b < 60")

	// b 先出现：b < 60 超出唯一切点 50，得到 100 * 1 * 2
	got, err := e.EstimateCost(ctx, plan, []*domain.Partition{part(t, colB, 0.5), part(t, colA, 0.5)})
	require.NoError(t, err)
	assert.InDelta(t, 200, got, 1e-9)

	// a 先出现：a < 50 得到 50
	got, err = e.EstimateCost(ctx, plan, []*domain.Partition{part(t, colA, 0.5), part(t, colB, 0.5)})
	require.NoError(t, err)
	assert.InDelta(t, 50, got, 1e-9)
}

func TestEstimateCost_InvalidPartitionsIgnored(t *testing.T) {
	ctx := context.Background()
	e, _ := newEstimator()

	invalid := part(t, colA, 0.5)
	invalid.Invalid = true
	got, err := e.EstimateCost(ctx, leaf(100, "a < 50"), []*domain.Partition{invalid})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)

	valid := part(t, colA, 0.2)
	got, err = e.EstimateCost(ctx, leaf(100, "a < 50"), []*domain.Partition{invalid, valid})
	require.NoError(t, err)
	// 只剩 0.2 切点：50 > 20，maxBound 保持 1，两个分区
	assert.InDelta(t, 200, got, 1e-9)
}

func TestEstimateCost_UnsupportedOperator(t *testing.T) {
	e, _ := newEstimator()
	_, err := e.EstimateCost(context.Background(), leaf(100, "a != 5"), []*domain.Partition{part(t, colA, 0.5)})
	var uerr *interval.UnsupportedOperatorError
	assert.True(t, errors.As(err, &uerr))
}

func TestEstimateCost_FilterResolvedOnce(t *testing.T) {
	ctx := context.Background()
	e, cache := newEstimator()
	candidates := []*domain.Partition{part(t, colA, 0.5)}

	first, err := e.EstimateCost(ctx, leaf(100, "a < 50"), candidates)
	require.NoError(t, err)
	second, err := e.EstimateCost(ctx, leaf(100, "a < 50"), candidates)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cache.Stats().Parses)
	assert.Equal(t, int64(1), cache.Stats().Intervals.Hits)
}

func TestEstimateCost_Calendar(t *testing.T) {
	ctx := context.Background()
	e, _ := newEstimator()

	tests := []struct {
		name   string
		rate   domain.PartitionRate
		filter string
		want   float64
	}{
		{"daily zero span", domain.RateDaily, "d >= '2020-01-01' AND d <= '2020-01-01'", 100.0 / 30},
		{"daily ten days", domain.RateDaily, "d >= '2020-01-01'::date AND d < '2020-01-11'::date", 100.0 * 10 / 30},
		{"daily timestamps", domain.RateDaily, "d >= '2020-01-01 00:00:00'::timestamp without time zone AND d < '2020-01-04 12:00:00'::timestamp without time zone", 100.0 * 3 / 30},
		{"daily equality", domain.RateDaily, "d = '2020-03-15'", 100.0 / 30},
		{"weekly zero span", domain.RateWeekly, "d >= '2020-01-06' AND d <= '2020-01-12'", 100.0 / 10},
		{"weekly two weeks", domain.RateWeekly, "d >= '2020-01-01' AND d <= '2020-01-15'", 100.0 * 2 / 10},
		{"monthly zero span", domain.RateMonthly, "d >= '2020-01-15' AND d <= '2020-02-10'", 100.0 / 5},
		{"monthly three months", domain.RateMonthly, "d >= '2020-01-15' AND d <= '2020-04-20'", 100.0 * 3 / 5},
		{"yearly zero span", domain.RateYearly, "d >= '2019-06-01' AND d <= '2020-05-31'", 100.0 / 2},
		{"yearly two years", domain.RateYearly, "d >= '2018-03-01' AND d <= '2020-03-01'", 100.0 * 2 / 2},
		{"missing upper bound", domain.RateDaily, "d > '2020-01-01'", 100},
		{"unparsable date", domain.RateDaily, "d >= 'yesterday' AND d <= '2020-01-01'", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EstimateCost(ctx, leaf(100, tt.filter), []*domain.Partition{datePart(t, tt.rate)})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEstimateCost_CalendarUsesFinestRate(t *testing.T) {
	e, _ := newEstimator()
	candidates := []*domain.Partition{datePart(t, domain.RateYearly), datePart(t, domain.RateDaily)}

	got, err := e.EstimateCost(context.Background(), leaf(100, "d >= '2020-01-01' AND d <= '2020-01-11'"), candidates)
	require.NoError(t, err)
	assert.InDelta(t, 100.0*10/30, got, 1e-9)
}

func TestSpan(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		from, to string
		rate     domain.PartitionRate
		want     int
	}{
		{"2020-01-01", "2020-01-11", domain.RateDaily, 10},
		{"2020-01-11", "2020-01-01", domain.RateDaily, 10},
		{"2020-02-28", "2020-03-01", domain.RateDaily, 2},
		{"2020-01-05", "2020-01-06", domain.RateWeekly, 1},
		{"2020-01-06", "2020-01-12", domain.RateWeekly, 0},
		{"2019-12-30", "2021-01-04", domain.RateWeekly, 53},
		{"2020-01-31", "2020-02-29", domain.RateMonthly, 0},
		{"2020-01-31", "2020-03-31", domain.RateMonthly, 2},
		{"2019-11-15", "2020-01-15", domain.RateMonthly, 2},
		{"2020-02-29", "2021-02-28", domain.RateYearly, 0},
		{"2020-02-29", "2021-03-01", domain.RateYearly, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Span(day(tt.from), day(tt.to), tt.rate), "%s..%s %s", tt.from, tt.to, tt.rate)
	}
}

func TestMatchColumn(t *testing.T) {
	assert.True(t, MatchColumn("a", "A"))
	assert.True(t, MatchColumn("lineitem.l_shipdate", "l_shipdate"))
	assert.False(t, MatchColumn("xa", "a"))
	assert.False(t, MatchColumn("a.b", "a"))
}

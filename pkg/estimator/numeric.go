package estimator

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/interval"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
)

var decimalCtx = apd.BaseContext.WithPrecision(34)

// compareAs 按列类型比较：数值列用精确十进制，文本列用字典序
// 无法比较（列引用、数值列上的非数值）时 ok 为 false
func compareAs(kind domain.ColumnKind, a, b interval.Value) (int, bool) {
	if a.Kind == interval.KindColumn || b.Kind == interval.KindColumn {
		return 0, false
	}
	if kind == domain.ColumnKindNumeric {
		da, okA := numericOf(a)
		db, okB := numericOf(b)
		if !okA || !okB {
			return 0, false
		}
		return da.Cmp(db), true
	}
	return strings.Compare(a.Text, b.Text), true
}

// numericOf 数值列上的端点转为十进制，带引号的数字（如 '24'::numeric）按数值处理
func numericOf(v interval.Value) (*apd.Decimal, bool) {
	if d, ok := v.Decimal(); ok {
		return d, true
	}
	if v.Kind != interval.KindString {
		return nil, false
	}
	n, err := interval.NumberValue(v.Text)
	if err != nil {
		return nil, false
	}
	return n.Decimal()
}

// decileCost 数值/文本列的十分位扫描
// partitions 已按分数升序排列
func decileCost(totalCost float64, iv interval.Interval, partitions []*domain.Partition, percentiles []interval.Value, kind domain.ColumnKind) (float64, bool) {
	maxBound, minBound := 1.0, 0.0
	partitionCount := 1

	switch {
	case iv.HasMax() && !iv.HasMin():
		for _, p := range partitions {
			bv, ok := statistics.BoundaryValue(p, percentiles)
			if !ok {
				return 0, false
			}
			c, ok := compareAs(kind, *iv.Max, bv)
			if !ok {
				return 0, false
			}
			if c <= 0 {
				maxBound = p.Fraction
				break
			}
			partitionCount++
		}

	case iv.HasMin() && !iv.HasMax():
		for i, p := range partitions {
			bv, ok := statistics.BoundaryValue(p, percentiles)
			if !ok {
				return 0, false
			}
			c, ok := compareAs(kind, *iv.Min, bv)
			if !ok {
				return 0, false
			}
			if c <= 0 {
				minBound = p.Fraction
				continue
			}
			partitionCount = len(partitions) - i
			break
		}

	case iv.HasMin() && iv.HasMax():
		for _, p := range partitions {
			bv, ok := statistics.BoundaryValue(p, percentiles)
			if !ok {
				return 0, false
			}
			cMin, okMin := compareAs(kind, *iv.Min, bv)
			cMax, okMax := compareAs(kind, *iv.Max, bv)
			if !okMin || !okMax {
				return 0, false
			}
			if cMin <= 0 && cMax <= 0 {
				maxBound = p.Fraction
				break
			}
			minBound = p.Fraction
		}
	}

	return scale(totalCost, maxBound, minBound, partitionCount)
}

// scale 计算 totalCost * (maxBound - minBound) * partitionCount，分数差使用十进制避免浮点误差
func scale(totalCost, maxBound, minBound float64, partitionCount int) (float64, bool) {
	var cost, hi, lo, width, result apd.Decimal
	if _, err := cost.SetFloat64(totalCost); err != nil {
		return 0, false
	}
	if _, _, err := hi.SetString(strconv.FormatFloat(maxBound, 'f', -1, 64)); err != nil {
		return 0, false
	}
	if _, _, err := lo.SetString(strconv.FormatFloat(minBound, 'f', -1, 64)); err != nil {
		return 0, false
	}
	if _, err := decimalCtx.Sub(&width, &hi, &lo); err != nil {
		return 0, false
	}
	if _, err := decimalCtx.Mul(&result, &cost, &width); err != nil {
		return 0, false
	}
	if _, err := decimalCtx.Mul(&result, &result, apd.New(int64(partitionCount), 0)); err != nil {
		return 0, false
	}
	f, err := result.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

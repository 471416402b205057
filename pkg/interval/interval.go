package interval

import "fmt"

// Interval 单列取值范围 [Min, Max]，nil 端点表示无界
type Interval struct {
	Min *Value `json:"min,omitempty"`
	Max *Value `json:"max,omitempty"`
}

// Point 等值区间 [v, v]
func Point(v Value) Interval {
	return Interval{Min: &v, Max: &v}
}

// AtMost 上界区间 (-inf, v]
func AtMost(v Value) Interval {
	return Interval{Max: &v}
}

// AtLeast 下界区间 [v, +inf)
func AtLeast(v Value) Interval {
	return Interval{Min: &v}
}

// HasMin 是否有下界
func (i Interval) HasMin() bool { return i.Min != nil }

// HasMax 是否有上界
func (i Interval) HasMax() bool { return i.Max != nil }

// Unbounded 两端都无界
func (i Interval) Unbounded() bool { return i.Min == nil && i.Max == nil }

// Equal 端点逐一相等
func (i Interval) Equal(other Interval) bool {
	return endpointEqual(i.Min, other.Min) && endpointEqual(i.Max, other.Max)
}

func endpointEqual(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (i Interval) String() string {
	lo, hi := "-inf", "+inf"
	if i.Min != nil {
		lo = i.Min.String()
	}
	if i.Max != nil {
		hi = i.Max.String()
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

// Intersect AND 合并：下界取较大者，上界取较小者（nil 视为无穷）
func Intersect(a, b Interval) Interval {
	return Interval{
		Min: pick(a.Min, b.Min, 1),
		Max: pick(a.Max, b.Max, -1),
	}
}

// Union OR 合并：任一侧无界则结果无界，否则下界取较小者，上界取较大者
func Union(a, b Interval) Interval {
	var out Interval
	if a.Min != nil && b.Min != nil {
		out.Min = pick(a.Min, b.Min, -1)
	}
	if a.Max != nil && b.Max != nil {
		out.Max = pick(a.Max, b.Max, 1)
	}
	return out
}

// pick 返回两端点中按 sign 方向更大（1）或更小（-1）的一个，nil 让位给非 nil
func pick(a, b *Value, sign int) *Value {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	if Compare(*a, *b)*sign >= 0 {
		return a
	}
	return b
}

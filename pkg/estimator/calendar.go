package estimator

import (
	"time"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/interval"
)

// 各粒度下通常保留的分区数，用于把时间跨度折算为代价比例
const (
	DailyRetainedPartitions   = 30
	WeeklyRetainedPartitions  = 10
	MonthlyRetainedPartitions = 5
	YearlyRetainedPartitions  = 2
)

const dateLayout = "2006-01-02"

// retainedPartitions 粒度对应的归一化分母
func retainedPartitions(rate domain.PartitionRate) (float64, bool) {
	switch rate {
	case domain.RateDaily:
		return DailyRetainedPartitions, true
	case domain.RateWeekly:
		return WeeklyRetainedPartitions, true
	case domain.RateMonthly:
		return MonthlyRetainedPartitions, true
	case domain.RateYearly:
		return YearlyRetainedPartitions, true
	}
	return 0, false
}

// calendarCost 日期列的按粒度裁剪
// 跨度为 0 时按一个分区计算；区间缺少任一端或日期无法解析时 ok 为 false
func calendarCost(totalCost float64, iv interval.Interval, rate domain.PartitionRate) (float64, bool) {
	denom, ok := retainedPartitions(rate)
	if !ok || !iv.HasMin() || !iv.HasMax() {
		return 0, false
	}
	from, err := parseDate(iv.Min.Text)
	if err != nil {
		return 0, false
	}
	to, err := parseDate(iv.Max.Text)
	if err != nil {
		return 0, false
	}

	span := Span(from, to, rate)
	if span == 0 {
		return totalCost / denom, true
	}
	return totalCost * float64(span) / denom, true
}

// parseDate 解析 YYYY-MM-DD，忽略第 10 个字符之后的时间部分
func parseDate(s string) (time.Time, error) {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}

// Span 两个日期之间按粒度计算的跨度（绝对值）
//   - daily：相差天数
//   - weekly：两者所在 ISO 周的周一相差的周数
//   - monthly：完整日历月数
//   - yearly：完整日历年数
func Span(from, to time.Time, rate domain.PartitionRate) int {
	if to.Before(from) {
		from, to = to, from
	}
	switch rate {
	case domain.RateDaily:
		return daysBetween(from, to)
	case domain.RateWeekly:
		return daysBetween(isoMonday(from), isoMonday(to)) / 7
	case domain.RateMonthly:
		months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
		if to.Day() < from.Day() {
			months--
		}
		return months
	case domain.RateYearly:
		years := to.Year() - from.Year()
		if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
			years--
		}
		return years
	}
	return 0
}

func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// isoMonday 所在 ISO 周的周一
func isoMonday(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

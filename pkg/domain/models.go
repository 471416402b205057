package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnKind 列的声明类型
type ColumnKind string

const (
	// ColumnKindNumeric 数值列
	ColumnKindNumeric ColumnKind = "numeric"
	// ColumnKindText 文本列
	ColumnKindText ColumnKind = "text"
	// ColumnKindDate 日期列
	ColumnKindDate ColumnKind = "date"
)

// ParseColumnKind 解析列类型，大小写不敏感
func ParseColumnKind(s string) (ColumnKind, error) {
	switch ColumnKind(strings.ToLower(strings.TrimSpace(s))) {
	case ColumnKindNumeric:
		return ColumnKindNumeric, nil
	case ColumnKindText:
		return ColumnKindText, nil
	case ColumnKindDate:
		return ColumnKindDate, nil
	}
	return "", fmt.Errorf("unknown column kind: %q", s)
}

// ColumnStats 列摘要统计，仅用于分区有效性（方差）检查
// 任意字段为 nil 表示数据库没有该统计
type ColumnStats struct {
	Minimum *string `json:"minimum,omitempty"`
	Maximum *string `json:"maximum,omitempty"`
	Median  *string `json:"median,omitempty"`
}

// Column 列标识与统计
type Column struct {
	Table string       `json:"table"`
	Name  string       `json:"name"`
	Kind  ColumnKind   `json:"kind"`
	Stats *ColumnStats `json:"stats,omitempty"`
}

// Key 返回列的规范标识（小写的 table.column）
func (c *Column) Key() string {
	return strings.ToLower(c.Table) + "." + strings.ToLower(c.Name)
}

func (c *Column) String() string {
	return c.Table + "." + c.Name
}

// PartitionRate 日期分区粒度
type PartitionRate string

const (
	RateDaily   PartitionRate = "daily"
	RateWeekly  PartitionRate = "weekly"
	RateMonthly PartitionRate = "monthly"
	RateYearly  PartitionRate = "yearly"
)

// rateOrder 粒度排序：daily < weekly < monthly < yearly
var rateOrder = map[PartitionRate]int{
	RateDaily:   1,
	RateWeekly:  2,
	RateMonthly: 3,
	RateYearly:  4,
}

// ParsePartitionRate 解析分区粒度
func ParsePartitionRate(s string) (PartitionRate, error) {
	r := PartitionRate(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rateOrder[r]; !ok {
		return "", fmt.Errorf("unknown partition rate: %q", s)
	}
	return r, nil
}

// Partition 候选分区，绑定唯一一列
// 日期列使用 Rate，数值/文本列使用 Fraction（十分位切点）
type Partition struct {
	Column   *Column       `json:"column"`
	Rate     PartitionRate `json:"rate,omitempty"`
	Fraction float64       `json:"fraction,omitempty"`

	// Invalid 列没有可用方差时置位，估算与清理时忽略
	Invalid bool `json:"invalid,omitempty"`
}

// NewPartition 创建候选分区并校验边界描述
func NewPartition(column *Column, rate PartitionRate, fraction float64) (*Partition, error) {
	if column == nil {
		return nil, &ErrInvalidPartition{Reason: "partition needs exactly one column"}
	}
	p := &Partition{Column: column, Rate: rate, Fraction: fraction}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 校验分区的边界描述与列类型是否匹配
func (p *Partition) Validate() error {
	if p.Column == nil {
		return &ErrInvalidPartition{Reason: "partition needs exactly one column"}
	}
	switch p.Column.Kind {
	case ColumnKindDate:
		if _, ok := rateOrder[p.Rate]; !ok {
			return &ErrInvalidPartition{Partition: p.String(), Reason: "date partition needs a rate"}
		}
		if p.Fraction != 0 {
			return &ErrInvalidPartition{Partition: p.String(), Reason: "date partition cannot carry a fraction"}
		}
	case ColumnKindNumeric, ColumnKindText:
		if p.Rate != "" {
			return &ErrInvalidPartition{Partition: p.String(), Reason: "rate is only valid for date columns"}
		}
		if !(p.Fraction > 0 && p.Fraction < 1) {
			return &ErrInvalidPartition{Partition: p.String(), Reason: "fraction must be in (0, 1)"}
		}
		// 切点取第 round(f*10) 个十分位，只有 1..9 有对应的值
		if idx := p.DecileIndex(); idx < 0 || idx > 8 {
			return &ErrInvalidPartition{Partition: p.String(), Reason: "fraction must round to a decile between 0.1 and 0.9"}
		}
	default:
		return &ErrInvalidPartition{Partition: p.String(), Reason: fmt.Sprintf("unknown column kind %q", p.Column.Kind)}
	}
	return nil
}

// HasFraction 是否是按十分位切分的分区
func (p *Partition) HasFraction() bool {
	return p.Rate == "" && p.Fraction > 0
}

// TableName 分区所属表
func (p *Partition) TableName() string {
	return p.Column.Table
}

// Key 分区身份：列、类型、边界均相同才相等
func (p *Partition) Key() string {
	return p.Column.Key() + "|" + string(p.Column.Kind) + "|" + p.boundary()
}

func (p *Partition) boundary() string {
	if p.Rate != "" {
		return string(p.Rate)
	}
	return strconv.FormatFloat(p.Fraction, 'f', -1, 64)
}

// Equal 判断两个分区是否相同
func (p *Partition) Equal(other *Partition) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Key() == other.Key()
}

func (p *Partition) String() string {
	if p.Column == nil {
		return "P(?)"
	}
	return fmt.Sprintf("P(%s.%s@%s)", p.Column.Table, p.Column.Name, p.boundary())
}

// ComparePartitions 分区全序：表、列、再按边界（分数或粒度）
func ComparePartitions(a, b *Partition) int {
	if c := strings.Compare(strings.ToLower(a.Column.Table), strings.ToLower(b.Column.Table)); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.Column.Name), strings.ToLower(b.Column.Name)); c != 0 {
		return c
	}
	return CompareBoundaries(a, b)
}

// CompareBoundaries 仅按边界比较：分数升序，粒度 daily < weekly < monthly < yearly
func CompareBoundaries(a, b *Partition) int {
	ra, rb := rateOrder[a.Rate], rateOrder[b.Rate]
	if ra != rb {
		return ra - rb
	}
	switch {
	case a.Fraction < b.Fraction:
		return -1
	case a.Fraction > b.Fraction:
		return 1
	}
	return 0
}

// DecileIndex 分数对应的百分位表下标 round(f*10)-1
func (p *Partition) DecileIndex() int {
	return int(math.Round(p.Fraction*10)) - 1
}

// Query 工作负载中的一条查询
type Query struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Filter    *string  `json:"filter,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	Frequency float64  `json:"frequency"`
}

// QueryClass 一组等价查询文本，下标 0 为代表文本
type QueryClass struct {
	ID        string   `json:"id"`
	Texts     []string `json:"texts"`
	Frequency float64  `json:"frequency"`
	Filter    *string  `json:"filter,omitempty"`
}

// Representative 返回代表文本
func (qc *QueryClass) Representative() (string, bool) {
	if len(qc.Texts) == 0 {
		return "", false
	}
	return qc.Texts[0], true
}

// Workload 有序的查询集合
type Workload struct {
	Name    string   `json:"name,omitempty"`
	Queries []*Query `json:"queries"`
}

// QueryPlan 执行计划树节点
type QueryPlan struct {
	NodeType     string       `json:"node_type,omitempty"`
	RelationName string       `json:"relation_name,omitempty"`
	TotalCost    float64      `json:"total_cost"`
	Filter       *string      `json:"filter,omitempty"`
	Plans        []*QueryPlan `json:"plans,omitempty"`
}

// IsLeaf 是否叶子节点
func (p *QueryPlan) IsLeaf() bool {
	return len(p.Plans) == 0
}

// HasFilter 是否带过滤条件
func (p *QueryPlan) HasFilter() bool {
	return p.Filter != nil && strings.TrimSpace(*p.Filter) != ""
}

package workload

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// fileQuery 工作负载文件中的一个查询类
type fileQuery struct {
	ID        string   `json:"id"`
	Texts     []string `json:"texts"`
	Frequency *float64 `json:"frequency,omitempty"`
	Filter    *string  `json:"filter,omitempty"`
}

type fileWorkload struct {
	Name    string      `json:"name,omitempty"`
	Queries []fileQuery `json:"queries"`
}

// Loader 读取工作负载与候选分区
type Loader struct {
	extractor *Extractor
	log       logger.Logger
}

// NewLoader 创建加载器
func NewLoader(log logger.Logger) *Loader {
	return &Loader{extractor: NewExtractor(), log: logger.OrNoOp(log)}
}

// LoadWorkload 从文件读取工作负载
func (l *Loader) LoadWorkload(path string) (*domain.Workload, []*domain.QueryClass, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("打开工作负载文件失败: %w", err)
	}
	defer f.Close()
	return l.DecodeWorkload(f)
}

// DecodeWorkload 解析工作负载 JSON
// 每个查询类取下标 0 的文本作为代表；频率缺省为 1
// 引用列总是由 SQL 提取，filter 缺省时取 WHERE 条件
func (l *Loader) DecodeWorkload(r io.Reader) (*domain.Workload, []*domain.QueryClass, error) {
	var raw fileWorkload
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("解析工作负载失败: %w", err)
	}

	workload := &domain.Workload{Name: raw.Name, Queries: make([]*domain.Query, 0, len(raw.Queries))}
	classes := make([]*domain.QueryClass, 0, len(raw.Queries))
	seen := make(map[string]bool, len(raw.Queries))

	for i, fq := range raw.Queries {
		id := fq.ID
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		if seen[id] {
			return nil, nil, fmt.Errorf("重复的查询 ID: %s", id)
		}
		seen[id] = true

		frequency := 1.0
		if fq.Frequency != nil {
			frequency = *fq.Frequency
		}
		if frequency < 0 {
			return nil, nil, fmt.Errorf("查询 %s 的频率不能为负数", id)
		}

		class := &domain.QueryClass{ID: id, Texts: fq.Texts, Frequency: frequency, Filter: fq.Filter}
		text, ok := class.Representative()
		if !ok || strings.TrimSpace(text) == "" {
			return nil, nil, fmt.Errorf("查询 %s 没有文本", id)
		}

		query := &domain.Query{ID: id, Text: text, Filter: fq.Filter, Frequency: frequency}
		l.annotate(query)

		classes = append(classes, class)
		workload.Queries = append(workload.Queries, query)
	}
	return workload, classes, nil
}

// annotate 补充引用列与过滤条件；解析失败时保留查询，只是没有引用列
func (l *Loader) annotate(query *domain.Query) {
	info, err := l.extractor.Extract(query.Text)
	if err != nil {
		l.log.Warn("query %s: %v", query.ID, err)
		return
	}
	query.Columns = info.Columns
	if query.Filter == nil && info.Where != "" {
		where := info.Where
		query.Filter = &where
	}
}

// filePartition 候选分区文件中的一项
// fraction 接受数字或字符串形式的十进制小数
type filePartition struct {
	Table    string              `json:"table"`
	Column   string              `json:"column"`
	Kind     string              `json:"kind"`
	Fraction json.Number         `json:"fraction,omitempty"`
	Rate     string              `json:"rate,omitempty"`
	Stats    *domain.ColumnStats `json:"stats,omitempty"`
}

// LoadPartitions 从文件读取候选分区
func LoadPartitions(path string) ([]*domain.Partition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开候选分区文件失败: %w", err)
	}
	defer f.Close()
	return DecodePartitions(f)
}

// DecodePartitions 解析候选分区 JSON，同一列的分区共享同一个 Column
func DecodePartitions(r io.Reader) ([]*domain.Partition, error) {
	var raw []filePartition
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("解析候选分区失败: %w", err)
	}
	return buildPartitions(raw)
}

// buildPartitions 把解析后的分区描述转成候选分区
func buildPartitions(raw []filePartition) ([]*domain.Partition, error) {
	columns := make(map[string]*domain.Column)
	partitions := make([]*domain.Partition, 0, len(raw))

	for i, fp := range raw {
		if fp.Table == "" || fp.Column == "" {
			return nil, fmt.Errorf("第 %d 个分区缺少表名或列名", i+1)
		}
		kind, err := domain.ParseColumnKind(fp.Kind)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个分区: %w", i+1, err)
		}

		col := &domain.Column{Table: fp.Table, Name: fp.Column, Kind: kind, Stats: fp.Stats}
		if existing, ok := columns[col.Key()]; ok {
			if existing.Kind != kind {
				return nil, fmt.Errorf("列 %s 的类型不一致: %s / %s", col, existing.Kind, kind)
			}
			if existing.Stats == nil {
				existing.Stats = fp.Stats
			}
			col = existing
		} else {
			columns[col.Key()] = col
		}

		var rate domain.PartitionRate
		if fp.Rate != "" {
			if rate, err = domain.ParsePartitionRate(fp.Rate); err != nil {
				return nil, fmt.Errorf("第 %d 个分区: %w", i+1, err)
			}
		}

		fraction, err := parseFraction(fp.Fraction)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个分区: %w", i+1, err)
		}

		p, err := domain.NewPartition(col, rate, fraction)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

// parseFraction 以十进制精确解析分数，再转为 float64
func parseFraction(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	d, _, err := apd.NewFromString(string(n))
	if err != nil {
		return 0, fmt.Errorf("无效的分数 %q: %w", n, err)
	}
	if d.Form != apd.Finite {
		return 0, fmt.Errorf("无效的分数 %q", n)
	}
	return d.Float64()
}

// DistinctColumns 候选分区涉及的列，按首次出现顺序
func DistinctColumns(partitions []*domain.Partition) []*domain.Column {
	seen := make(map[string]bool)
	var out []*domain.Column
	for _, p := range partitions {
		key := p.Column.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.Column)
	}
	return out
}

package report

import (
	"fmt"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/evaluation"
	"github.com/xuri/excelize/v2"
)

// 工作表名
const (
	SheetSummary    = "Summary"
	SheetQueries    = "Queries"
	SheetPartitions = "Partitions"
)

// Report 一次估算的完整输出
type Report struct {
	Workload   *domain.Workload
	Partitions []*domain.Partition
	Result     *evaluation.Result
	CacheInfo  evaluation.CacheInfo
}

// BaselineTotal 未分区时的总代价，与 TotalCost 使用相同的加权方式
func (r *Report) BaselineTotal() float64 {
	weighted := r.CacheInfo.FrequencyMode == "frequency"
	var total float64
	for i, cost := range r.Result.BaselineCosts {
		if weighted && i < len(r.Workload.Queries) {
			cost *= r.Workload.Queries[i].Frequency
		}
		total += cost
	}
	return total
}

// Build 生成工作簿
func Build(r *Report) (*excelize.File, error) {
	if r.Result == nil || r.Workload == nil {
		return nil, fmt.Errorf("report needs a workload and a result")
	}
	if len(r.Result.Costs) != len(r.Workload.Queries) {
		return nil, fmt.Errorf("result has %d costs for %d queries", len(r.Result.Costs), len(r.Workload.Queries))
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, sheet := range []string{SheetQueries, SheetPartitions} {
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, err
		}
	}

	writers := []func(*excelize.File, *Report) error{writeSummary, writeQueries, writePartitions}
	for _, write := range writers {
		if err := write(f, r); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteWorkbook 生成工作簿并保存到 path
func WriteWorkbook(path string, r *Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func writeSummary(f *excelize.File, r *Report) error {
	baseline := r.BaselineTotal()
	reduction := 0.0
	if baseline > 0 {
		reduction = (baseline - r.Result.TotalCost) / baseline
	}

	rows := [][]interface{}{
		{"metric", "value"},
		{"session", r.CacheInfo.SessionID},
		{"workload", r.Workload.Name},
		{"queries", len(r.Workload.Queries)},
		{"partitions", len(r.Partitions)},
		{"total cost", r.Result.TotalCost},
		{"baseline cost", baseline},
		{"reduction", reduction},
		{"frequency mode", r.CacheInfo.FrequencyMode},
		{"cost requests", r.CacheInfo.CostRequests},
		{"cache hits", r.CacheInfo.CacheHits},
		{"costing time (ms)", r.CacheInfo.CostingTime.Milliseconds()},
		{"filter parses", r.CacheInfo.Statistics.Parses},
	}
	return writeRows(f, SheetSummary, rows)
}

func writeQueries(f *excelize.File, r *Report) error {
	rows := [][]interface{}{
		{"id", "frequency", "baseline cost", "estimated cost", "saving", "filter", "text"},
	}
	for i, q := range r.Workload.Queries {
		baseline := r.Result.BaselineCosts[i]
		cost := r.Result.Costs[i]
		filterText := ""
		if q.Filter != nil {
			filterText = *q.Filter
		}
		rows = append(rows, []interface{}{q.ID, q.Frequency, baseline, cost, baseline - cost, filterText, q.Text})
	}
	return writeRows(f, SheetQueries, rows)
}

func writePartitions(f *excelize.File, r *Report) error {
	rows := [][]interface{}{
		{"table", "column", "kind", "boundary", "valid"},
	}
	for _, p := range r.Partitions {
		var boundary interface{} = p.Fraction
		if p.Rate != "" {
			boundary = string(p.Rate)
		}
		rows = append(rows, []interface{}{p.Column.Table, p.Column.Name, string(p.Column.Kind), boundary, !p.Invalid})
	}
	return writeRows(f, SheetPartitions, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// writeFixture 写入工作负载、候选分区、配置与一份 sqlite 快照
func writeFixture(t *testing.T) (dir string, opts *globalOptions) {
	t.Helper()
	dir = t.TempDir()

	files := map[string]string{
		"workload.json": `{"name": "demo", "queries": [
  {"id": "q1", "texts": ["SELECT * FROM t WHERE a < 50"], "frequency": 2},
  {"id": "q2", "texts": ["SELECT * FROM u"], "frequency": 3}
]}`,
		"partitions.json": `[{"table": "t", "column": "a", "kind": "numeric", "fraction": 0.5}]`,
		"config.json":     `{"log": {"level": "error"}, "snapshot": {"backend": "sqlite"}}`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}

	ctx := context.Background()
	store, err := snapshot.OpenSQLiteStore(filepath.Join(dir, "snap.db"))
	require.NoError(t, err)
	require.NoError(t, store.PutPlan(ctx, "q1", &domain.QueryPlan{NodeType: "Seq Scan", RelationName: "t", TotalCost: 100, Filter: strPtr("a < 50")}))
	require.NoError(t, store.PutPlan(ctx, "q2", &domain.QueryPlan{NodeType: "Seq Scan", RelationName: "u", TotalCost: 40}))
	require.NoError(t, store.PutPercentiles(ctx, "t.a", []string{"10", "20", "30", "40", "50", "60", "70", "80", "90"}))
	require.NoError(t, store.PutColumnStats(ctx, "t.a", &domain.ColumnStats{Minimum: strPtr("1"), Median: strPtr("50"), Maximum: strPtr("100")}))
	require.NoError(t, store.Close())

	return dir, &globalOptions{configPath: filepath.Join(dir, "config.json"), logOutput: io.Discard}
}

func TestRunEvaluate_Replay(t *testing.T) {
	dir, opts := writeFixture(t)
	reportPath := filepath.Join(dir, "report.xlsx")

	var out bytes.Buffer
	err := runEvaluate(context.Background(), opts, evaluateConfig{
		workloadPath:   filepath.Join(dir, "workload.json"),
		partitionsPath: filepath.Join(dir, "partitions.json"),
		reportPath:     reportPath,
		snapshot:       snapshotFlags{replay: filepath.Join(dir, "snap.db")},
	}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "total cost: 220.00 (baseline 320.00, frequency)")
	assert.Contains(t, text, "q1")
	assert.NotContains(t, text, "invalid partition")
	assert.FileExists(t, reportPath)
}

func TestRunEvaluate_ReplayUnweighted(t *testing.T) {
	dir, opts := writeFixture(t)

	var out bytes.Buffer
	err := runEvaluate(context.Background(), opts, evaluateConfig{
		workloadPath:   filepath.Join(dir, "workload.json"),
		partitionsPath: filepath.Join(dir, "partitions.json"),
		snapshot:       snapshotFlags{replay: filepath.Join(dir, "snap.db")},
		unweighted:     true,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "total cost: 90.00 (baseline 140.00, unweighted)")
}

func TestRunEvaluate_Errors(t *testing.T) {
	dir, opts := writeFixture(t)
	base := evaluateConfig{
		workloadPath:   filepath.Join(dir, "workload.json"),
		partitionsPath: filepath.Join(dir, "partitions.json"),
		snapshot:       snapshotFlags{replay: filepath.Join(dir, "snap.db")},
	}

	tests := []struct {
		name   string
		mutate func(*evaluateConfig)
	}{
		{"missing workload", func(ec *evaluateConfig) { ec.workloadPath = filepath.Join(dir, "none.json") }},
		{"missing partitions", func(ec *evaluateConfig) { ec.partitionsPath = filepath.Join(dir, "none.json") }},
		{"record and replay", func(ec *evaluateConfig) { ec.snapshot.record = filepath.Join(dir, "other.db") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := base
			tt.mutate(&ec)
			err := runEvaluate(context.Background(), opts, ec, io.Discard)
			assert.Error(t, err)
		})
	}

	// 快照中没有 q3 的计划
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.json"),
		[]byte(`{"queries": [{"id": "q3", "texts": ["SELECT * FROM v"]}]}`), 0644))
	ec := base
	ec.workloadPath = filepath.Join(dir, "extra.json")
	err := runEvaluate(context.Background(), opts, ec, io.Discard)
	var notRecorded *snapshot.ErrNotRecorded
	assert.ErrorAs(t, err, &notRecorded)
}

func TestParseCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"parse", "b > 5 AND a >= 1 AND a <= 3"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "a\t[1, 3]\nb\t[5, +inf]\n", out.String())

	cmd = newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"parse", "a IN (1, 2)"})
	assert.Error(t, cmd.Execute())
}

func TestEvaluateCommand_RequiredFlags(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"evaluate", "--workload", "w.json"})
	assert.Error(t, cmd.Execute())
}

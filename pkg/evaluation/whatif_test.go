package evaluation

import (
	"context"
	"testing"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasVariance(t *testing.T) {
	tests := []struct {
		name  string
		stats *domain.ColumnStats
		want  bool
	}{
		{"nil stats", nil, false},
		{"missing median", &domain.ColumnStats{Minimum: strPtr("1"), Maximum: strPtr("9")}, false},
		{"missing minimum", &domain.ColumnStats{Median: strPtr("5"), Maximum: strPtr("9")}, false},
		{"median equals minimum", &domain.ColumnStats{Minimum: strPtr("1"), Median: strPtr("1"), Maximum: strPtr("9")}, false},
		{"median equals maximum", &domain.ColumnStats{Minimum: strPtr("1"), Median: strPtr("9"), Maximum: strPtr("9")}, false},
		{"spread", &domain.ColumnStats{Minimum: strPtr("1"), Median: strPtr("5"), Maximum: strPtr("9")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasVariance(tt.stats))
		})
	}
}

func newWhatIf(conn *fakeConnector, simulate bool) *WhatIfPartitionCreation {
	return NewWhatIfPartitionCreation(conn, statistics.NewCache(conn), simulate, nil)
}

func TestWhatIf_MissingStatisticsInvalid(t *testing.T) {
	conn := newFakeConnector()
	w := newWhatIf(conn, true)

	p := numericPartition("t", "a", 0.5)
	require.NoError(t, w.SimulatePartition(context.Background(), p))
	assert.True(t, p.Invalid)
	assert.Empty(t, conn.calls)

	// 无效分区的删除是空操作
	require.NoError(t, w.DropSimulatedPartition(context.Background(), p))
	assert.Empty(t, conn.calls)
}

func TestWhatIf_ColumnStatsFromColumn(t *testing.T) {
	conn := newFakeConnector()
	w := newWhatIf(conn, true)

	p := numericPartition("t", "a", 0.5)
	p.Column.Stats = &domain.ColumnStats{Minimum: strPtr("1"), Median: strPtr("5"), Maximum: strPtr("9")}
	require.NoError(t, w.SimulatePartition(context.Background(), p))
	assert.False(t, p.Invalid)
	assert.Equal(t, []string{"simulate P(t.a@0.5)"}, conn.calls)
}

func TestWhatIf_OneSchemePerTable(t *testing.T) {
	conn := newFakeConnector().withColumn("t.a", deciles, "1", "50", "100")
	w := newWhatIf(conn, true)
	ctx := context.Background()

	first := numericPartition("t", "a", 0.3)
	second := numericPartition("t", "a", 0.7)
	require.NoError(t, w.SimulatePartition(ctx, first))
	require.NoError(t, w.SimulatePartition(ctx, second))

	// 已被替换的方案不再重复删除
	require.NoError(t, w.DropSimulatedPartition(ctx, first))
	require.NoError(t, w.DropSimulatedPartition(ctx, second))

	assert.Equal(t, []string{
		"simulate P(t.a@0.3)",
		"drop P(t.a@0.3)",
		"simulate P(t.a@0.7)",
		"drop P(t.a@0.7)",
	}, conn.calls)

	tables, err := w.AllSimulatedPartitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestWhatIf_AllSimulatedPartitions(t *testing.T) {
	conn := newFakeConnector().
		withColumn("t.a", deciles, "1", "50", "100").
		withColumn("s.b", deciles, "1", "50", "100")
	w := newWhatIf(conn, true)
	ctx := context.Background()

	require.NoError(t, w.SimulatePartition(ctx, numericPartition("t", "a", 0.5)))
	require.NoError(t, w.SimulatePartition(ctx, numericPartition("s", "b", 0.5)))

	tables, err := w.AllSimulatedPartitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "t"}, tables)
}

func TestWhatIf_SimulationDisabled(t *testing.T) {
	conn := newFakeConnector().withColumn("t.a", deciles, "1", "50", "100")
	w := newWhatIf(conn, false)

	p := numericPartition("t", "a", 0.5)
	require.NoError(t, w.SimulatePartition(context.Background(), p))
	assert.False(t, p.Invalid)
	assert.Empty(t, conn.calls)
}

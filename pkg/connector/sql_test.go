package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const samplePlan = `{"query_block": {"cost_info": {"query_cost": "42.00"}, "table": {"table_name": "orders", "access_type": "ALL", "cost_info": {"read_cost": "40.00", "eval_cost": "2.00"}, "attached_condition": "amount > 10"}}}`

// sqliteDialect 复用 MySQL 的统计查询（SQLite 同样支持窗口函数与反引号）
type sqliteDialect struct {
	MySQLDialect
	path string
}

func (d *sqliteDialect) Name() string { return "sqlite" }

func (d *sqliteDialect) DriverName() string { return "sqlite" }

func (d *sqliteDialect) BuildDSN(config.DatabaseConfig) (string, error) { return d.path, nil }

func (d *sqliteDialect) ExplainQuery(string) string {
	return "SELECT " + quoteLiteral(samplePlan)
}

func seedOrders(t *testing.T, path string, rows int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY, amount INTEGER, note TEXT)")
	require.NoError(t, err)
	for i := 1; i <= rows; i++ {
		_, err = db.Exec("INSERT INTO orders (amount, note) VALUES (?, NULL)", i)
		require.NoError(t, err)
	}
}

func newSQLiteConnector(t *testing.T, rows int) *SQLConnector {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.db")
	seedOrders(t, path, rows)

	c := NewSQLConnector(config.DatabaseConfig{MaxOpenConns: 1, QueryTimeout: 5}, &sqliteDialect{path: path}, nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLConnector_Percentiles(t *testing.T) {
	c := newSQLiteConnector(t, 100)
	col := &domain.Column{Table: "orders", Name: "amount", Kind: domain.ColumnKindNumeric}

	values, err := c.GetColumnPercentiles(context.Background(), col)
	require.NoError(t, err)

	want := make([]string, 0, 9)
	for i := 1; i <= 9; i++ {
		want = append(want, fmt.Sprintf("%d", i*10))
	}
	assert.Equal(t, want, values)
}

func TestSQLConnector_PercentilesTooFewRows(t *testing.T) {
	c := newSQLiteConnector(t, 5)
	col := &domain.Column{Table: "orders", Name: "amount", Kind: domain.ColumnKindNumeric}

	values, err := c.GetColumnPercentiles(context.Background(), col)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestSQLConnector_Statistics(t *testing.T) {
	c := newSQLiteConnector(t, 100)

	stats, err := c.GetColumnStatistics(context.Background(), &domain.Column{Table: "orders", Name: "amount"})
	require.NoError(t, err)
	require.NotNil(t, stats.Minimum)
	require.NotNil(t, stats.Maximum)
	require.NotNil(t, stats.Median)
	assert.Equal(t, "1", *stats.Minimum)
	assert.Equal(t, "100", *stats.Maximum)
	assert.Equal(t, "50", *stats.Median)

	// 全为 NULL 的列没有统计
	stats, err = c.GetColumnStatistics(context.Background(), &domain.Column{Table: "orders", Name: "note"})
	require.NoError(t, err)
	assert.Nil(t, stats.Minimum)
	assert.Nil(t, stats.Median)
}

func TestSQLConnector_GetPlan(t *testing.T) {
	c := newSQLiteConnector(t, 1)

	plan, err := c.GetPlan(context.Background(), &domain.Query{ID: "q1", Text: "SELECT * FROM orders WHERE amount > 10"})
	require.NoError(t, err)
	assert.Equal(t, 42.0, plan.TotalCost)
	require.Len(t, plan.Plans, 1)
	assert.Equal(t, "orders", plan.Plans[0].RelationName)
	assert.Equal(t, 42.0, plan.Plans[0].TotalCost)
	require.True(t, plan.Plans[0].HasFilter())
	assert.Equal(t, "amount > 10", *plan.Plans[0].Filter)
}

func TestSQLConnector_SimulateUnsupported(t *testing.T) {
	c := newSQLiteConnector(t, 20)
	p := &domain.Partition{Column: &domain.Column{Table: "orders", Name: "amount", Kind: domain.ColumnKindNumeric}, Fraction: 0.5}

	err := c.SimulatePartition(context.Background(), p)
	var unsupported *domain.ErrUnsupportedOperation
	assert.True(t, errors.As(err, &unsupported))

	tables, err := c.SimulatedTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestSQLConnector_SimulateWithoutMedian(t *testing.T) {
	c := newSQLiteConnector(t, 3)
	p := &domain.Partition{Column: &domain.Column{Table: "orders", Name: "note", Kind: domain.ColumnKindText}, Fraction: 0.5}

	err := c.SimulatePartition(context.Background(), p)
	var invalid *domain.ErrInvalidPartition
	assert.True(t, errors.As(err, &invalid))
}

func TestSQLConnector_NotConnected(t *testing.T) {
	c := NewSQLConnector(config.DatabaseConfig{}, &MySQLDialect{}, nil)
	assert.False(t, c.IsConnected())

	_, err := c.GetPlan(context.Background(), &domain.Query{ID: "q"})
	var notConnected *ErrNotConnected
	assert.True(t, errors.As(err, &notConnected))

	_, err = c.GetColumnPercentiles(context.Background(), &domain.Column{Table: "t", Name: "a"})
	assert.True(t, errors.As(err, &notConnected))
}

func TestSQLConnector_ConnectFailure(t *testing.T) {
	c := NewSQLConnector(config.DatabaseConfig{}, &PostgreSQLDialect{}, nil)
	err := c.Connect(context.Background())

	var failed *ErrConnectionFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "postgresql", failed.Driver)
	assert.False(t, c.IsConnected())
}

func TestSQLConnector_CloseDisconnects(t *testing.T) {
	c := newSQLiteConnector(t, 1)
	require.True(t, c.IsConnected())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

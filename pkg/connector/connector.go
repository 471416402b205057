package connector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kasuganosora/partadvisor/pkg/domain"
)

// Connector 数据库协作方：基准计划、列统计与假设分区生命周期
type Connector interface {
	// GetPlan 返回查询的基准（未分区）执行计划
	GetPlan(ctx context.Context, query *domain.Query) (*domain.QueryPlan, error)
	// GetColumnPercentiles 返回第 10 至第 90 百分位（升序），列没有统计时返回空
	GetColumnPercentiles(ctx context.Context, column *domain.Column) ([]string, error)
	// GetColumnStatistics 返回 min/max/median
	GetColumnStatistics(ctx context.Context, column *domain.Column) (*domain.ColumnStats, error)
	// SimulatePartition 创建假设分区
	SimulatePartition(ctx context.Context, partition *domain.Partition) error
	// DropSimulatedPartition 删除表上的假设分区
	DropSimulatedPartition(ctx context.Context, table string, partition *domain.Partition) error
	// SimulatedTables 数据库侧仍存在的假设分区表
	SimulatedTables(ctx context.Context) ([]string, error)
	Close() error
}

// Queryer *sql.DB / *sql.Conn / *sql.Tx 的公共子集
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ErrConnectionFailed 连接数据库失败
type ErrConnectionFailed struct {
	Driver string
	Reason string
}

func (e *ErrConnectionFailed) Error() string {
	return fmt.Sprintf("connect %s: %s", e.Driver, e.Reason)
}

// ErrNotConnected 连接已关闭或尚未建立
type ErrNotConnected struct {
	Driver string
}

func (e *ErrNotConnected) Error() string {
	return fmt.Sprintf("%s connector is not connected", e.Driver)
}

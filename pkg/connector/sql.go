package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// SQLConnector implements Connector on top of database/sql.
// PostgreSQL and MySQL differ only in their Dialect.
type SQLConnector struct {
	mu        sync.RWMutex
	cfg       config.DatabaseConfig
	dialect   Dialect
	db        *sql.DB
	log       logger.Logger
	connected bool
}

// NewSQLConnector creates a connector; call Connect before use.
func NewSQLConnector(cfg config.DatabaseConfig, dialect Dialect, log logger.Logger) *SQLConnector {
	return &SQLConnector{
		cfg:     cfg,
		dialect: dialect,
		log:     logger.OrNoOp(log),
	}
}

// Open builds the dialect from cfg.Driver and connects.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*SQLConnector, error) {
	dialect, err := NewDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	c := NewSQLConnector(cfg, dialect, log)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect opens the database connection and configures the pool.
func (c *SQLConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dsn, err := c.dialect.BuildDSN(c.cfg)
	if err != nil {
		return &ErrConnectionFailed{Driver: c.dialect.Name(), Reason: fmt.Sprintf("build DSN: %v", err)}
	}

	db, err := sql.Open(c.dialect.DriverName(), dsn)
	if err != nil {
		return &ErrConnectionFailed{Driver: c.dialect.Name(), Reason: err.Error()}
	}

	// Configure pool
	if c.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	}
	if c.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	}
	if c.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(c.cfg.ConnMaxLifetime) * time.Second)
	}

	// Verify connectivity
	pingCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.ConnectTimeout)*time.Second)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return &ErrConnectionFailed{Driver: c.dialect.Name(), Reason: err.Error()}
	}

	c.db = db
	c.connected = true
	c.log.Debug("connected to %s %s:%d/%s", c.dialect.Name(), c.cfg.Host, c.cfg.Port, c.cfg.Name)
	return nil
}

// Close closes the database connection.
func (c *SQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// IsConnected returns whether the connector is connected.
func (c *SQLConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Dialect returns the connector's dialect.
func (c *SQLConnector) Dialect() Dialect {
	return c.dialect
}

func (c *SQLConnector) conn() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, &ErrNotConnected{Driver: c.dialect.Name()}
	}
	return c.db, nil
}

// withTimeout applies the configured per-request timeout
func (c *SQLConnector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := c.cfg.QueryTimeoutDuration(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

// GetPlan runs EXPLAIN in JSON format and decodes the plan tree.
func (c *SQLConnector) GetPlan(ctx context.Context, query *domain.Query) (*domain.QueryPlan, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var raw []byte
	if err := db.QueryRowContext(ctx, c.dialect.ExplainQuery(query.Text)).Scan(&raw); err != nil {
		return nil, fmt.Errorf("explain query %s: %w", query.ID, err)
	}
	plan, err := c.dialect.DecodePlan(raw)
	if err != nil {
		return nil, fmt.Errorf("decode plan of query %s: %w", query.ID, err)
	}
	return plan, nil
}

// GetColumnPercentiles returns the column's deciles.
func (c *SQLConnector) GetColumnPercentiles(ctx context.Context, column *domain.Column) ([]string, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	values, err := c.dialect.Percentiles(ctx, db, column)
	if err != nil {
		return nil, fmt.Errorf("percentiles of %s: %w", column, err)
	}
	return values, nil
}

// GetColumnStatistics returns min, max and median as text.
func (c *SQLConnector) GetColumnStatistics(ctx context.Context, column *domain.Column) (*domain.ColumnStats, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var minimum, maximum, median sql.NullString
	err = db.QueryRowContext(ctx, c.dialect.StatisticsQuery(column)).Scan(&minimum, &maximum, &median)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ColumnStats{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statistics of %s: %w", column, err)
	}
	return &domain.ColumnStats{
		Minimum: nullableString(minimum),
		Maximum: nullableString(maximum),
		Median:  nullableString(median),
	}, nil
}

// SimulatePartition creates a hypothetical partitioning split at the column's median.
func (c *SQLConnector) SimulatePartition(ctx context.Context, partition *domain.Partition) error {
	db, err := c.conn()
	if err != nil {
		return err
	}
	stats, err := c.GetColumnStatistics(ctx, partition.Column)
	if err != nil {
		return err
	}
	if stats.Median == nil {
		return &domain.ErrInvalidPartition{Partition: partition.String(), Reason: "column has no median"}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.dialect.SimulatePartition(ctx, db, partition, *stats.Median)
}

// DropSimulatedPartition removes the hypothetical partitioning of table.
func (c *SQLConnector) DropSimulatedPartition(ctx context.Context, table string, partition *domain.Partition) error {
	db, err := c.conn()
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.dialect.DropSimulatedPartition(ctx, db, table); err != nil {
		return fmt.Errorf("drop simulated %s: %w", partition, err)
	}
	return nil
}

// SimulatedTables lists tables with hypothetical partitions.
func (c *SQLConnector) SimulatedTables(ctx context.Context) ([]string, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.dialect.SimulatedTables(ctx, db)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

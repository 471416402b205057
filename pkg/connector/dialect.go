package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/domain"
)

// Dialect encapsulates database-engine-specific behavior.
type Dialect interface {
	// Name returns a human readable engine name used in errors and logs
	Name() string

	// DriverName returns the database/sql driver name
	DriverName() string

	// BuildDSN constructs the driver-specific connection string
	BuildDSN(cfg config.DatabaseConfig) (string, error)

	// QuoteIdentifier wraps a table/column name in dialect-specific quoting
	QuoteIdentifier(name string) string

	// ExplainQuery wraps a query so that it returns one row holding the JSON plan
	ExplainQuery(query string) string

	// DecodePlan converts the JSON plan into a plan tree
	DecodePlan(raw []byte) (*domain.QueryPlan, error)

	// Percentiles fetches the 10th..90th percentiles of a column, or nil when unavailable
	Percentiles(ctx context.Context, q Queryer, column *domain.Column) ([]string, error)

	// StatisticsQuery returns SQL producing one row of (min, max, median) as text
	StatisticsQuery(column *domain.Column) string

	// SimulatePartition creates a hypothetical partitioning of the column's table split at median
	SimulatePartition(ctx context.Context, q Queryer, partition *domain.Partition, median string) error

	// DropSimulatedPartition removes the hypothetical partitioning of table
	DropSimulatedPartition(ctx context.Context, q Queryer, table string) error

	// SimulatedTables lists tables that still carry hypothetical partitions
	SimulatedTables(ctx context.Context, q Queryer) ([]string, error)
}

// NewDialect returns the dialect for a configured driver
func NewDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return &PostgreSQLDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported driver: %q", driver)
}

// quoteQualified quotes every dot-separated part of a possibly schema-qualified name
func quoteQualified(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// quoteLiteral renders a SQL string literal
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

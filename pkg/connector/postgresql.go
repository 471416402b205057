package connector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/lib/pq"
)

// PostgreSQLDialect implements Dialect for PostgreSQL.
// Hypothetical partitions rely on the HypoPG extension.
type PostgreSQLDialect struct{}

func (d *PostgreSQLDialect) Name() string { return "postgresql" }

func (d *PostgreSQLDialect) DriverName() string { return "postgres" }

func (d *PostgreSQLDialect) BuildDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("user=%s", cfg.User),
		fmt.Sprintf("password=%s", cfg.Password),
		fmt.Sprintf("dbname=%s", cfg.Name),
		fmt.Sprintf("sslmode=%s", sslMode),
	}
	if cfg.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", cfg.Schema))
	}
	if cfg.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", cfg.ConnectTimeout))
	}

	return strings.Join(parts, " "), nil
}

func (d *PostgreSQLDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgreSQLDialect) ExplainQuery(query string) string {
	return "EXPLAIN (FORMAT JSON) " + query
}

type pgPlanNode struct {
	NodeType     string       `json:"Node Type"`
	RelationName string       `json:"Relation Name"`
	TotalCost    float64      `json:"Total Cost"`
	Filter       *string      `json:"Filter"`
	Plans        []pgPlanNode `json:"Plans"`
}

func (n *pgPlanNode) toDomain() *domain.QueryPlan {
	plan := &domain.QueryPlan{
		NodeType:     n.NodeType,
		RelationName: n.RelationName,
		TotalCost:    n.TotalCost,
		Filter:       n.Filter,
	}
	for i := range n.Plans {
		plan.Plans = append(plan.Plans, n.Plans[i].toDomain())
	}
	return plan
}

// DecodePlan decodes the output of EXPLAIN (FORMAT JSON): [{"Plan": {...}}]
func (d *PostgreSQLDialect) DecodePlan(raw []byte) (*domain.QueryPlan, error) {
	var explained []struct {
		Plan *pgPlanNode `json:"Plan"`
	}
	if err := json.Unmarshal(raw, &explained); err != nil {
		return nil, err
	}
	if len(explained) == 0 || explained[0].Plan == nil {
		return nil, fmt.Errorf("explain output has no plan")
	}
	return explained[0].Plan.toDomain(), nil
}

func (d *PostgreSQLDialect) Percentiles(ctx context.Context, q Queryer, column *domain.Column) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT (percentile_disc(ARRAY[0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8,0.9]) WITHIN GROUP (ORDER BY %s))::text[] FROM %s",
		d.QuoteIdentifier(column.Name), quoteQualified(d, column.Table))

	var values []sql.NullString
	if err := q.QueryRowContext(ctx, query).Scan(pq.Array(&values)); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		// 空表或全为 NULL 的列：无法裁剪
		if !v.Valid {
			return nil, nil
		}
		out = append(out, v.String)
	}
	return out, nil
}

func (d *PostgreSQLDialect) StatisticsQuery(column *domain.Column) string {
	col := d.QuoteIdentifier(column.Name)
	return fmt.Sprintf(
		"SELECT MIN(%[1]s)::text, MAX(%[1]s)::text, (percentile_disc(0.5) WITHIN GROUP (ORDER BY %[1]s))::text FROM %[2]s",
		col, quoteQualified(d, column.Table))
}

// SimulatePartition range-partitions the table in two halves around median.
func (d *PostgreSQLDialect) SimulatePartition(ctx context.Context, q Queryer, partition *domain.Partition, median string) error {
	table := partition.TableName()
	col := d.QuoteIdentifier(partition.Column.Name)

	statements := []string{
		fmt.Sprintf("SELECT hypopg_partition_table(%s, %s)",
			quoteLiteral(table), quoteLiteral(fmt.Sprintf("PARTITION BY RANGE (%s)", col))),
		fmt.Sprintf("SELECT hypopg_add_partition(%s, %s)",
			quoteLiteral(table+"_hypo_lo"),
			quoteLiteral(fmt.Sprintf("PARTITION OF %s FOR VALUES FROM (MINVALUE) TO (%s)", quoteQualified(d, table), quoteLiteral(median)))),
		fmt.Sprintf("SELECT hypopg_add_partition(%s, %s)",
			quoteLiteral(table+"_hypo_hi"),
			quoteLiteral(fmt.Sprintf("PARTITION OF %s FOR VALUES FROM (%s) TO (MAXVALUE)", quoteQualified(d, table), quoteLiteral(median)))),
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("simulate %s: %w", partition, err)
		}
	}
	return nil
}

func (d *PostgreSQLDialect) DropSimulatedPartition(ctx context.Context, q Queryer, table string) error {
	_, err := q.ExecContext(ctx, "SELECT hypopg_drop_table(relid) FROM hypopg_table() WHERE tablename = $1 OR tablename LIKE $2",
		table, table+"_hypo_%")
	return err
}

func (d *PostgreSQLDialect) SimulatedTables(ctx context.Context, q Queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT tablename FROM hypopg_table()")
	if err != nil {
		return nil, fmt.Errorf("list simulated tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan simulated table: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/domain"
)

// MySQLDialect implements Dialect for MySQL 8.
// MySQL has no hypothetical partitions; simulation reports ErrUnsupportedOperation.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) BuildDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 3306
	}
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}

	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.Name
	mc.AllowNativePasswords = true
	mc.Params = map[string]string{
		"charset": charset,
	}
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = time.Duration(cfg.ConnectTimeout) * time.Second
	}

	switch strings.ToLower(cfg.SSLMode) {
	case "true", "required", "require":
		mc.TLSConfig = "true"
	case "skip-verify", "preferred":
		mc.TLSConfig = "skip-verify"
	case "false", "disable", "":
		mc.TLSConfig = "false"
	default:
		mc.TLSConfig = cfg.SSLMode
	}

	return mc.FormatDSN(), nil
}

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *MySQLDialect) ExplainQuery(query string) string {
	return "EXPLAIN FORMAT=JSON " + query
}

// 包含子计划的 MySQL 计划节点
var mysqlOperations = []string{
	"ordering_operation",
	"grouping_operation",
	"duplicates_removal",
	"windowing",
	"materialized_from_subquery",
}

// DecodePlan decodes EXPLAIN FORMAT=JSON: {"query_block": {...}}
// query_block becomes the root; every "table" becomes a leaf whose cost is read_cost+eval_cost
// and whose filter is attached_condition.
func (d *MySQLDialect) DecodePlan(raw []byte) (*domain.QueryPlan, error) {
	block, _, _, err := jsonparser.Get(raw, "query_block")
	if err != nil {
		return nil, fmt.Errorf("explain output has no query_block: %w", err)
	}
	root := &domain.QueryPlan{NodeType: "query_block"}
	if cost, err := jsonparser.GetString(block, "cost_info", "query_cost"); err == nil {
		root.TotalCost, _ = strconv.ParseFloat(cost, 64)
	}
	if err := decodeMySQLChildren(block, root); err != nil {
		return nil, err
	}
	return root, nil
}

func decodeMySQLChildren(node []byte, parent *domain.QueryPlan) error {
	if table, dt, _, err := jsonparser.Get(node, "table"); err == nil && dt == jsonparser.Object {
		leaf, err := decodeMySQLTable(table)
		if err != nil {
			return err
		}
		parent.Plans = append(parent.Plans, leaf)
	}

	if loop, dt, _, err := jsonparser.Get(node, "nested_loop"); err == nil && dt == jsonparser.Array {
		var walkErr error
		_, err := jsonparser.ArrayEach(loop, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
			if walkErr == nil {
				walkErr = decodeMySQLChildren(value, parent)
			}
		})
		if err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
	}

	for _, op := range mysqlOperations {
		sub, dt, _, err := jsonparser.Get(node, op)
		if err != nil || dt != jsonparser.Object {
			continue
		}
		child := &domain.QueryPlan{NodeType: op}
		if cost, err := jsonparser.GetString(sub, "cost_info", "sort_cost"); err == nil {
			child.TotalCost, _ = strconv.ParseFloat(cost, 64)
		}
		if err := decodeMySQLChildren(sub, child); err != nil {
			return err
		}
		if block, dt, _, err := jsonparser.Get(sub, "query_block"); err == nil && dt == jsonparser.Object {
			if err := decodeMySQLChildren(block, child); err != nil {
				return err
			}
		}
		parent.Plans = append(parent.Plans, child)
	}
	return nil
}

func decodeMySQLTable(table []byte) (*domain.QueryPlan, error) {
	leaf := &domain.QueryPlan{}
	leaf.RelationName, _ = jsonparser.GetString(table, "table_name")
	leaf.NodeType, _ = jsonparser.GetString(table, "access_type")

	var cost float64
	for _, key := range []string{"read_cost", "eval_cost"} {
		s, err := jsonparser.GetString(table, "cost_info", key)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("table %s: bad %s %q", leaf.RelationName, key, s)
		}
		cost += v
	}
	leaf.TotalCost = cost

	if cond, err := jsonparser.GetString(table, "attached_condition"); err == nil && cond != "" {
		leaf.Filter = &cond
	}

	// 派生表
	if sub, dt, _, err := jsonparser.Get(table, "materialized_from_subquery", "query_block"); err == nil && dt == jsonparser.Object {
		child := &domain.QueryPlan{NodeType: "materialized_from_subquery"}
		if err := decodeMySQLChildren(sub, child); err != nil {
			return nil, err
		}
		leaf.Plans = append(leaf.Plans, child)
	}
	return leaf, nil
}

// Percentiles uses NTILE(10): the maximum of each of the first nine buckets.
func (d *MySQLDialect) Percentiles(ctx context.Context, q Queryer, column *domain.Column) ([]string, error) {
	col := d.QuoteIdentifier(column.Name)
	query := fmt.Sprintf(
		"SELECT CAST(MAX(v) AS CHAR) FROM (SELECT %[1]s AS v, NTILE(10) OVER (ORDER BY %[1]s) AS bucket FROM %[2]s WHERE %[1]s IS NOT NULL) AS deciles GROUP BY bucket ORDER BY bucket LIMIT 9",
		col, quoteQualified(d, column.Table))

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if !v.Valid {
			return nil, nil
		}
		out = append(out, v.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// 少于 10 行的表无法分出完整的十分位
	if len(out) != 9 {
		return nil, nil
	}
	return out, nil
}

func (d *MySQLDialect) StatisticsQuery(column *domain.Column) string {
	col := d.QuoteIdentifier(column.Name)
	table := quoteQualified(d, column.Table)
	return fmt.Sprintf(
		"SELECT CAST(MIN(%[1]s) AS CHAR), CAST(MAX(%[1]s) AS CHAR), "+
			"(SELECT CAST(v AS CHAR) FROM (SELECT %[1]s AS v, ROW_NUMBER() OVER (ORDER BY %[1]s) AS rn, COUNT(*) OVER () AS cnt FROM %[2]s WHERE %[1]s IS NOT NULL) AS ranked "+
			"WHERE rn * 2 >= cnt AND rn * 2 <= cnt + 1) FROM %[2]s",
		col, table)
}

func (d *MySQLDialect) SimulatePartition(context.Context, Queryer, *domain.Partition, string) error {
	return &domain.ErrUnsupportedOperation{Connector: d.Name(), Operation: "SimulatePartition"}
}

func (d *MySQLDialect) DropSimulatedPartition(context.Context, Queryer, string) error {
	return &domain.ErrUnsupportedOperation{Connector: d.Name(), Operation: "DropSimulatedPartition"}
}

func (d *MySQLDialect) SimulatedTables(context.Context, Queryer) ([]string, error) {
	return nil, nil
}

package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// 三张表结构相同：键 + JSON 正文
type planRow struct {
	QueryID string `gorm:"column:query_id;primaryKey"`
	Body    string `gorm:"column:body;not null"`
}

func (planRow) TableName() string { return "plans" }

type percentileRow struct {
	ColumnKey string `gorm:"column:column_key;primaryKey"`
	Body      string `gorm:"column:body;not null"`
}

func (percentileRow) TableName() string { return "percentiles" }

type columnStatsRow struct {
	ColumnKey string `gorm:"column:column_key;primaryKey"`
	Body      string `gorm:"column:body;not null"`
}

func (columnStatsRow) TableName() string { return "column_stats" }

// SQLiteStore 基于 SQLite 的快照存储，一个文件即一份快照
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore 打开（必要时创建）SQLite 快照，path 为 ":memory:" 时使用内存库
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite snapshot needs a path")
	}
	// 连接由纯 Go 的 modernc 驱动提供，gorm 只负责方言
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite snapshot: %w", err)
	}
	// 内存库每个连接各自独立
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", Conn: sqlDB}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open sqlite snapshot: %w", err)
	}
	if err := db.AutoMigrate(&planRow{}, &percentileRow{}, &columnStatsRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func encodeBody(kind, key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s %s: %w", kind, key, err)
	}
	return string(data), nil
}

// upsert 同键覆盖
func (s *SQLiteStore) upsert(ctx context.Context, kind, key string, row any) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("write %s %s: %w", kind, key, err)
	}
	return nil
}

// find 读取一行，不存在时 ok 为 false
func (s *SQLiteStore) find(ctx context.Context, kind, keyColumn, key string, row any) (bool, error) {
	err := s.db.WithContext(ctx).Where(keyColumn+" = ?", key).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s %s: %w", kind, key, err)
	}
	return true, nil
}

func decodeBody(kind, key, body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, key, err)
	}
	return nil
}

func (s *SQLiteStore) PutPlan(ctx context.Context, queryID string, plan *domain.QueryPlan) error {
	body, err := encodeBody("plans", queryID, plan)
	if err != nil {
		return err
	}
	return s.upsert(ctx, "plans", queryID, &planRow{QueryID: queryID, Body: body})
}

func (s *SQLiteStore) GetPlan(ctx context.Context, queryID string) (*domain.QueryPlan, bool, error) {
	var row planRow
	ok, err := s.find(ctx, "plans", "query_id", queryID, &row)
	if !ok || err != nil {
		return nil, false, err
	}
	var plan domain.QueryPlan
	if err := decodeBody("plans", queryID, row.Body, &plan); err != nil {
		return nil, false, err
	}
	return &plan, true, nil
}

func (s *SQLiteStore) PutPercentiles(ctx context.Context, columnKey string, values []string) error {
	if values == nil {
		values = []string{}
	}
	body, err := encodeBody("percentiles", columnKey, values)
	if err != nil {
		return err
	}
	return s.upsert(ctx, "percentiles", columnKey, &percentileRow{ColumnKey: columnKey, Body: body})
}

func (s *SQLiteStore) GetPercentiles(ctx context.Context, columnKey string) ([]string, bool, error) {
	var row percentileRow
	ok, err := s.find(ctx, "percentiles", "column_key", columnKey, &row)
	if !ok || err != nil {
		return nil, false, err
	}
	var values []string
	if err := decodeBody("percentiles", columnKey, row.Body, &values); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

func (s *SQLiteStore) PutColumnStats(ctx context.Context, columnKey string, stats *domain.ColumnStats) error {
	if stats == nil {
		stats = &domain.ColumnStats{}
	}
	body, err := encodeBody("column_stats", columnKey, stats)
	if err != nil {
		return err
	}
	return s.upsert(ctx, "column_stats", columnKey, &columnStatsRow{ColumnKey: columnKey, Body: body})
}

func (s *SQLiteStore) GetColumnStats(ctx context.Context, columnKey string) (*domain.ColumnStats, bool, error) {
	var row columnStatsRow
	ok, err := s.find(ctx, "column_stats", "column_key", columnKey, &row)
	if !ok || err != nil {
		return nil, false, err
	}
	var stats domain.ColumnStats
	if err := decodeBody("column_stats", columnKey, row.Body, &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (s *SQLiteStore) Percentiles(ctx context.Context) (map[string][]string, error) {
	var rows []percentileRow
	if err := s.db.WithContext(ctx).Order("column_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list percentiles: %w", err)
	}

	out := make(map[string][]string, len(rows))
	for _, row := range rows {
		var values []string
		if err := decodeBody("percentiles", row.ColumnKey, row.Body, &values); err != nil {
			return nil, err
		}
		if len(values) > 0 {
			out[row.ColumnKey] = values
		}
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kasuganosora/partadvisor/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "PARTADVISOR_CONFIG"

// Config 应用程序配置
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Log       LogConfig       `json:"log"`
	Estimator EstimatorConfig `json:"estimator"`
	Snapshot  SnapshotConfig  `json:"snapshot"`
	Report    ReportConfig    `json:"report"`
	MCP       MCPConfig       `json:"mcp"`
}

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Driver   string `json:"driver"` // postgres 或 mysql
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`

	SSLMode string `json:"ssl_mode,omitempty"`
	Schema  string `json:"schema,omitempty"`  // PostgreSQL search_path
	Charset string `json:"charset,omitempty"` // MySQL

	// 假设分区只在创建它的连接上可见，模拟分区时应保持单连接且不回收
	MaxOpenConns    int `json:"max_open_conns"`
	MaxIdleConns    int `json:"max_idle_conns"`
	ConnMaxLifetime int `json:"conn_max_lifetime"` // seconds
	ConnectTimeout  int `json:"connect_timeout"`   // seconds
	QueryTimeout    int `json:"query_timeout"`     // seconds，单次计划/统计请求
}

// QueryTimeoutDuration 单次请求超时
func (c DatabaseConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `json:"level"`
}

// EstimatorConfig 估算配置
type EstimatorConfig struct {
	// FrequencyWeighted 总代价按查询频率加权
	FrequencyWeighted bool `json:"frequency_weighted"`
	// SimulatePartitions 是否通过数据库模拟分区检查有效性
	SimulatePartitions bool `json:"simulate_partitions"`
	// PreloadStatistics 评估前一次性预取候选列的百分位
	PreloadStatistics bool `json:"preload_statistics"`
}

// SnapshotConfig 计划与统计快照配置
type SnapshotConfig struct {
	Backend string `json:"backend"` // badger 或 sqlite
	Path    string `json:"path"`
	Mode    string `json:"mode"` // off / record / replay
}

// 快照模式
const (
	SnapshotOff    = "off"
	SnapshotRecord = "record"
	SnapshotReplay = "replay"
)

// ReportConfig 报表配置
type ReportConfig struct {
	Path string `json:"path"`
}

// MCPConfig MCP 服务配置
type MCPConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	EndpointPath string `json:"endpoint_path"`
	WorkloadPath string `json:"workload_path"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "postgres",
			SSLMode:         "disable",
			Schema:          "public",
			Charset:         "utf8mb4",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 0,
			ConnectTimeout:  10,
			QueryTimeout:    60,
		},
		Log: LogConfig{
			Level: "info",
		},
		Estimator: EstimatorConfig{
			FrequencyWeighted:  true,
			SimulatePartitions: true,
		},
		Snapshot: SnapshotConfig{
			Backend: "badger",
			Mode:    SnapshotOff,
		},
		MCP: MCPConfig{
			Host:         "127.0.0.1",
			Port:         8765,
			EndpointPath: "/mcp",
		},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	// 如果没有指定配置文件，使用默认配置
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigOrDefault 尝试从环境变量与常见位置加载配置文件
func LoadConfigOrDefault() *Config {
	possiblePaths := []string{
		"partadvisor.json",
		"./config/partadvisor.json",
		"/etc/partadvisor/config.json",
	}

	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	return DefaultConfig()
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", config.Database.Driver)
	}

	if config.Database.Port < 1 || config.Database.Port > 65535 {
		return fmt.Errorf("无效的数据库端口号: %d", config.Database.Port)
	}

	if config.Database.MaxOpenConns < 1 {
		return fmt.Errorf("最大连接数必须大于0")
	}

	if config.Database.MaxIdleConns < 0 {
		return fmt.Errorf("最大空闲连接数不能为负数")
	}

	if config.Database.QueryTimeout < 0 {
		return fmt.Errorf("查询超时不能为负数")
	}

	if _, err := logger.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("无效的日志级别: %w", err)
	}

	switch config.Snapshot.Backend {
	case "badger", "sqlite":
	default:
		return fmt.Errorf("不支持的快照存储: %q", config.Snapshot.Backend)
	}

	switch strings.ToLower(config.Snapshot.Mode) {
	case "", SnapshotOff:
	case SnapshotRecord, SnapshotReplay:
		if config.Snapshot.Path == "" {
			return fmt.Errorf("快照模式 %s 需要设置 snapshot.path", config.Snapshot.Mode)
		}
	default:
		return fmt.Errorf("无效的快照模式: %q", config.Snapshot.Mode)
	}

	if config.MCP.Port < 1 || config.MCP.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", config.MCP.Port)
	}

	return nil
}

// Validate 验证配置（命令行参数覆盖后再次校验）
func (c *Config) Validate() error {
	return validateConfig(c)
}

// Address 监听地址 host:port
func (c MCPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetListenAddress 返回 MCP 服务监听地址
func (c *Config) GetListenAddress() string {
	return c.MCP.Address()
}

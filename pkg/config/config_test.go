package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data map[string]interface{}) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.json")
	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, jsonData, 0644))
	return configPath
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	// 验证数据库配置
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, 5432, config.Database.Port)
	assert.Equal(t, "disable", config.Database.SSLMode)
	assert.Equal(t, 1, config.Database.MaxOpenConns)
	assert.Equal(t, 60*time.Second, config.Database.QueryTimeoutDuration())

	// 验证日志配置
	assert.Equal(t, "info", config.Log.Level)

	// 验证估算配置
	assert.True(t, config.Estimator.FrequencyWeighted)
	assert.True(t, config.Estimator.SimulatePartitions)
	assert.False(t, config.Estimator.PreloadStatistics)

	// 验证快照配置
	assert.Equal(t, "badger", config.Snapshot.Backend)
	assert.Equal(t, SnapshotOff, config.Snapshot.Mode)

	// 验证 MCP 配置
	assert.Equal(t, "/mcp", config.MCP.EndpointPath)
	assert.Equal(t, "127.0.0.1:8765", config.GetListenAddress())

	assert.NoError(t, config.Validate())
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	config, err := LoadConfig("")

	assert.NoError(t, err)
	assert.NotNil(t, config)
	assert.Equal(t, 5432, config.Database.Port)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("non_existent_config.json")

	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "配置文件不存在")
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid json"), 0644))

	config, err := LoadConfig(configPath)

	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "解析配置文件失败")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		configKey string
		configVal map[string]interface{}
		errMsg    string
	}{
		{
			name:      "unknown driver",
			configKey: "database",
			configVal: map[string]interface{}{"driver": "oracle"},
			errMsg:    "不支持的数据库驱动",
		},
		{
			name:      "invalid database port",
			configKey: "database",
			configVal: map[string]interface{}{"port": 70000},
			errMsg:    "无效的数据库端口号",
		},
		{
			name:      "invalid max open",
			configKey: "database",
			configVal: map[string]interface{}{"max_open_conns": 0},
			errMsg:    "最大连接数必须大于0",
		},
		{
			name:      "negative query timeout",
			configKey: "database",
			configVal: map[string]interface{}{"query_timeout": -1},
			errMsg:    "查询超时不能为负数",
		},
		{
			name:      "invalid log level",
			configKey: "log",
			configVal: map[string]interface{}{"level": "loud"},
			errMsg:    "无效的日志级别",
		},
		{
			name:      "unknown snapshot backend",
			configKey: "snapshot",
			configVal: map[string]interface{}{"backend": "redis"},
			errMsg:    "不支持的快照存储",
		},
		{
			name:      "replay without path",
			configKey: "snapshot",
			configVal: map[string]interface{}{"mode": "replay"},
			errMsg:    "需要设置 snapshot.path",
		},
		{
			name:      "unknown snapshot mode",
			configKey: "snapshot",
			configVal: map[string]interface{}{"mode": "mirror", "path": "x"},
			errMsg:    "无效的快照模式",
		},
		{
			name:      "invalid mcp port",
			configKey: "mcp",
			configVal: map[string]interface{}{"port": 0},
			errMsg:    "无效的端口号",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, map[string]interface{}{tt.configKey: tt.configVal})

			config, err := LoadConfig(configPath)

			assert.Error(t, err)
			assert.Nil(t, config)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, map[string]interface{}{
		"database": map[string]interface{}{
			"driver": "mysql",
			"port":   3306,
			"name":   "tpch",
		},
		"estimator": map[string]interface{}{
			"frequency_weighted": false,
		},
		"snapshot": map[string]interface{}{
			"backend": "sqlite",
			"mode":    "record",
			"path":    "snap.db",
		},
	})

	config, err := LoadConfig(configPath)

	require.NoError(t, err)
	assert.Equal(t, "mysql", config.Database.Driver)
	assert.Equal(t, 3306, config.Database.Port)
	assert.Equal(t, "tpch", config.Database.Name)
	assert.False(t, config.Estimator.FrequencyWeighted)
	assert.Equal(t, SnapshotRecord, config.Snapshot.Mode)
	// 其他字段应该使用默认值
	assert.Equal(t, "localhost", config.Database.Host)
	assert.True(t, config.Estimator.SimulatePartitions)
}

func TestLoadConfigOrDefault_WithEnvVar(t *testing.T) {
	configPath := writeConfig(t, map[string]interface{}{
		"mcp": map[string]interface{}{"port": 8080},
	})
	t.Setenv(EnvConfigPath, configPath)

	config := LoadConfigOrDefault()

	assert.NotNil(t, config)
	assert.Equal(t, 8080, config.MCP.Port)
}

func TestLoadConfigOrDefault_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvConfigPath, "")

	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() {
		os.Chdir(oldWd)
	})

	config := LoadConfigOrDefault()

	assert.NotNil(t, config)
	assert.Equal(t, 5432, config.Database.Port) // 使用默认值
}

package main

import (
	"io"
	"os"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/spf13/cobra"
)

// globalOptions 所有子命令共享的参数
type globalOptions struct {
	configPath string
	logLevel   string
	logOutput  io.Writer
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{logOutput: os.Stderr}
	cmd := &cobra.Command{
		Use:   "partadvisor [command] (flags)",
		Short: "partadvisor estimates workload cost under candidate partitions without creating them.",
		Long: `partadvisor estimates the cost of a SQL workload under candidate horizontal
partitions. Baseline plans come from the database optimizer; partitioned costs
are derived from column percentiles, so no partition is ever materialised.

Typical usage:
    partadvisor evaluate --workload workload.json --partitions partitions.json
    partadvisor evaluate --workload workload.json --partitions partitions.json --record snap.db
    partadvisor evaluate --workload workload.json --partitions partitions.json --replay snap.db
    partadvisor parse "created_at >= '2024-01-01' AND amount < 100"
    partadvisor serve --workload workload.json
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (defaults to $"+config.EnvConfigPath+" or partadvisor.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: error, warn, info or debug")

	cmd.AddCommand(newEvaluateCommand(opts))
	cmd.AddCommand(newParseCommand())
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// load 读取配置并创建日志，命令行参数覆盖配置文件
func (o *globalOptions) load() (*config.Config, logger.Logger, error) {
	var cfg *config.Config
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(o.configPath); err != nil {
			return nil, nil, err
		}
	} else {
		cfg = config.LoadConfigOrDefault()
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithOutput(level, o.logOutput), nil
}

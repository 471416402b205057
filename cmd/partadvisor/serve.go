package main

import (
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/workload"
	mcpserver "github.com/kasuganosora/partadvisor/server/mcp"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		workloadPath string
		snap         snapshotFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the estimator as MCP tools over streamable HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if workloadPath != "" {
				cfg.MCP.WorkloadPath = workloadPath
			}
			if err := snap.apply(cfg); err != nil {
				return err
			}

			var wl *domain.Workload
			if cfg.MCP.WorkloadPath != "" {
				if wl, _, err = workload.NewLoader(log).LoadWorkload(cfg.MCP.WorkloadPath); err != nil {
					return err
				}
				log.Info("加载工作负载 %s: %d 条查询", cfg.MCP.WorkloadPath, len(wl.Queries))
			} else {
				log.Warn("未设置 mcp.workload_path，evaluate_workload 不可用")
			}

			b, err := openBackend(cmd.Context(), cfg, nil, log)
			if err != nil {
				return err
			}
			defer b.conn.Close()

			return mcpserver.NewServer(b.conn, wl, cfg, b.shared, log).Start()
		},
	}
	cmd.Flags().StringVar(&workloadPath, "workload", "", "workload JSON file (overrides mcp.workload_path)")
	cmd.Flags().StringVar(&snap.record, "record", "", "record plans and statistics into this snapshot")
	cmd.Flags().StringVar(&snap.replay, "replay", "", "answer from this snapshot instead of a database")
	return cmd
}

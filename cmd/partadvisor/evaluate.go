package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kasuganosora/partadvisor/pkg/evaluation"
	"github.com/kasuganosora/partadvisor/pkg/report"
	"github.com/kasuganosora/partadvisor/pkg/workload"
	"github.com/spf13/cobra"
)

type evaluateConfig struct {
	workloadPath   string
	partitionsPath string
	reportPath     string
	snapshot       snapshotFlags
	unweighted     bool
	noSimulate     bool
}

func newEvaluateCommand(opts *globalOptions) *cobra.Command {
	var ec evaluateConfig
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		return runEvaluate(cmd.Context(), opts, ec, cmd.OutOrStdout())
	}

	cmd := &cobra.Command{
		Use:   "evaluate --workload <file> --partitions <file>",
		Short: "Estimate the workload cost under a set of candidate partitions.",
		Long: `Estimate the workload cost under a set of candidate partitions.

Baseline plans are requested once per query. Candidate partitions are simulated
on the database when the connector supports it, and dropped again before exit.`,
		Args: cobra.NoArgs,
		RunE: runCmdFunc,
	}
	cmd.Flags().StringVar(&ec.workloadPath, "workload", "", "workload JSON file")
	cmd.Flags().StringVar(&ec.partitionsPath, "partitions", "", "candidate partitions JSON file")
	cmd.Flags().StringVar(&ec.reportPath, "report", "", "write an xlsx report to this path (defaults to report.path)")
	cmd.Flags().StringVar(&ec.snapshot.record, "record", "", "record plans and statistics into this snapshot")
	cmd.Flags().StringVar(&ec.snapshot.replay, "replay", "", "answer from this snapshot instead of a database")
	cmd.Flags().BoolVar(&ec.unweighted, "unweighted", false, "sum query costs without frequency weighting")
	cmd.Flags().BoolVar(&ec.noSimulate, "no-simulate", false, "skip hypothetical partitions on the database")
	_ = cmd.MarkFlagRequired("workload")
	_ = cmd.MarkFlagRequired("partitions")
	return cmd
}

func runEvaluate(ctx context.Context, opts *globalOptions, ec evaluateConfig, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	if err := ec.snapshot.apply(cfg); err != nil {
		return err
	}
	if ec.unweighted {
		cfg.Estimator.FrequencyWeighted = false
	}
	if ec.noSimulate {
		cfg.Estimator.SimulatePartitions = false
	}

	wl, _, err := workload.NewLoader(log).LoadWorkload(ec.workloadPath)
	if err != nil {
		return err
	}
	partitions, err := workload.LoadPartitions(ec.partitionsPath)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, partitions, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ce := evaluation.NewCostEvaluation(b.conn,
		evaluation.WithLogger(log),
		evaluation.WithFrequencyWeighting(cfg.Estimator.FrequencyWeighted),
		evaluation.WithSimulation(cfg.Estimator.SimulatePartitions),
		evaluation.WithSharedStore(b.shared),
	)
	result, evalErr := ce.CalculateCostAndPlans(ctx, wl, partitions)
	if cerr := ce.Complete(ctx); cerr != nil {
		if evalErr == nil {
			return cerr
		}
		log.Error("结束估算会话失败: %v", cerr)
	}
	if evalErr != nil {
		return evalErr
	}

	r := &report.Report{Workload: wl, Partitions: partitions, Result: result, CacheInfo: ce.CacheInfo()}
	if err := printResult(out, r); err != nil {
		return err
	}

	reportPath := ec.reportPath
	if reportPath == "" {
		reportPath = cfg.Report.Path
	}
	if reportPath != "" {
		if err := report.WriteWorkbook(reportPath, r); err != nil {
			return err
		}
		log.Info("报表已写入 %s", reportPath)
	}
	return nil
}

func printResult(out io.Writer, r *report.Report) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tFREQUENCY\tBASELINE\tESTIMATED")
	for i, q := range r.Workload.Queries {
		fmt.Fprintf(tw, "%s\t%g\t%.2f\t%.2f\n", q.ID, q.Frequency, r.Result.BaselineCosts[i], r.Result.Costs[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, p := range r.Partitions {
		if p.Invalid {
			fmt.Fprintf(out, "invalid partition: %s\n", p)
		}
	}
	fmt.Fprintf(out, "total cost: %.2f (baseline %.2f, %s)\n", r.Result.TotalCost, r.BaselineTotal(), r.CacheInfo.FrequencyMode)
	fmt.Fprintf(out, "cost requests: %d, plan cache hits: %d, costing time: %s\n",
		r.CacheInfo.CostRequests, r.CacheInfo.CacheHits, r.CacheInfo.CostingTime)
	return nil
}

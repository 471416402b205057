package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/connector"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/evaluation"
	"github.com/kasuganosora/partadvisor/pkg/filter"
	"github.com/kasuganosora/partadvisor/pkg/interval"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/kasuganosora/partadvisor/pkg/report"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
	"github.com/kasuganosora/partadvisor/pkg/workload"
	"github.com/mark3labs/mcp-go/mcp"
)

type contextKey string

const ctxKeyMCPRequest contextKey = "mcp_request"

// ToolDeps holds shared dependencies for MCP tool handlers
// 估算会话非并发安全，同一时刻只运行一个 evaluate_workload
type ToolDeps struct {
	Conn      connector.Connector
	Workload  *domain.Workload
	Estimator config.EstimatorConfig
	Log       logger.Logger

	mu          sync.Mutex
	shared      *statistics.SharedStore
	last        *evaluation.CacheInfo
	evaluations int64
}

type intervalView struct {
	Min      *string `json:"min,omitempty"`
	Max      *string `json:"max,omitempty"`
	Interval string  `json:"interval"`
}

type queryCost struct {
	ID       string  `json:"id"`
	Cost     float64 `json:"cost"`
	Baseline float64 `json:"baseline"`
}

type evaluationView struct {
	SessionID         string      `json:"session_id"`
	TotalCost         float64     `json:"total_cost"`
	BaselineCost      float64     `json:"baseline_cost"`
	FrequencyMode     string      `json:"frequency_mode"`
	Queries           []queryCost `json:"queries"`
	InvalidPartitions []string    `json:"invalid_partitions,omitempty"`
	CostingTimeMS     int64       `json:"costing_time_ms"`
}

type cacheInfoView struct {
	Evaluations   int64                 `json:"evaluations"`
	SharedColumns []string              `json:"shared_columns"`
	Last          *evaluation.CacheInfo `json:"last,omitempty"`
}

// HandleParseFilter resolves a filter condition into per-column intervals
func (d *ToolDeps) HandleParseFilter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := request.GetString("filter", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("filter parameter is required"), nil
	}
	d.logger().Debug("parse_filter from %q: %s", clientAddr(ctx), text)

	expr, err := filter.Parse(text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse failed: %v", err)), nil
	}
	intervals, err := interval.Resolve(expr)
	if err != nil {
		var unsupported *interval.UnsupportedOperatorError
		if errors.As(err, &unsupported) {
			return mcp.NewToolResultError(fmt.Sprintf("unsupported operator %s", unsupported.Operator)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
	}

	out := make(map[string]intervalView, len(intervals))
	for col, iv := range intervals {
		view := intervalView{Interval: iv.String()}
		if iv.Min != nil {
			s := iv.Min.String()
			view.Min = &s
		}
		if iv.Max != nil {
			s := iv.Max.String()
			view.Max = &s
		}
		out[col] = view
	}
	return jsonResult(out)
}

// HandleEvaluateWorkload estimates the configured workload under candidate partitions
// 每次调用使用新的估算会话，结束后把会话取到的百分位并入共享存储
func (d *ToolDeps) HandleEvaluateWorkload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if d.Workload == nil || len(d.Workload.Queries) == 0 {
		return mcp.NewToolResultError("no workload configured, set mcp.workload_path"), nil
	}
	raw := request.GetString("partitions", "")
	if strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("partitions parameter is required"), nil
	}
	partitions, err := workload.DecodePartitions(strings.NewReader(raw))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid partitions: %v", err)), nil
	}
	weighted := request.GetBool("frequency_weighted", d.Estimator.FrequencyWeighted)

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ce := evaluation.NewCostEvaluation(d.Conn,
		evaluation.WithLogger(d.logger()),
		evaluation.WithFrequencyWeighting(weighted),
		evaluation.WithSimulation(d.Estimator.SimulatePartitions),
		evaluation.WithSharedStore(d.shared),
	)
	result, evalErr := ce.CalculateCostAndPlans(ctx, d.Workload, partitions)
	completeErr := ce.Complete(ctx)

	d.shared = d.shared.Merge(ce.Statistics())
	info := ce.CacheInfo()
	d.last = &info
	d.evaluations++

	if evalErr != nil {
		d.logger().Warn("evaluate_workload failed after %s: %v", time.Since(start), evalErr)
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", evalErr)), nil
	}
	if completeErr != nil {
		d.logger().Error("cleanup of session %s failed: %v", ce.ID(), completeErr)
		return mcp.NewToolResultError(fmt.Sprintf("cleanup failed: %v", completeErr)), nil
	}

	r := &report.Report{Workload: d.Workload, Partitions: partitions, Result: result, CacheInfo: info}
	view := evaluationView{
		SessionID:     info.SessionID,
		TotalCost:     result.TotalCost,
		BaselineCost:  r.BaselineTotal(),
		FrequencyMode: info.FrequencyMode,
		Queries:       make([]queryCost, 0, len(d.Workload.Queries)),
		CostingTimeMS: info.CostingTime.Milliseconds(),
	}
	for i, q := range d.Workload.Queries {
		view.Queries = append(view.Queries, queryCost{ID: q.ID, Cost: result.Costs[i], Baseline: result.BaselineCosts[i]})
	}
	for _, p := range partitions {
		if p.Invalid {
			view.InvalidPartitions = append(view.InvalidPartitions, p.String())
		}
	}
	sort.Strings(view.InvalidPartitions)

	d.logger().Info("evaluate_workload %s: %d partitions, total %.2f (baseline %.2f)", info.SessionID[:8], len(partitions), view.TotalCost, view.BaselineCost)
	return jsonResult(view)
}

// HandleCacheInfo reports counters of the last evaluation
func (d *ToolDeps) HandleCacheInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	view := cacheInfoView{
		Evaluations:   d.evaluations,
		SharedColumns: d.shared.Keys(),
		Last:          d.last,
	}
	if view.SharedColumns == nil {
		view.SharedColumns = []string{}
	}
	return jsonResult(view)
}

func (d *ToolDeps) logger() logger.Logger {
	return logger.OrNoOp(d.Log)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

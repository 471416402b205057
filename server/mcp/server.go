package mcp

import (
	"context"
	"net/http"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/connector"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server is the MCP protocol server
type Server struct {
	cfg  *config.MCPConfig
	deps *ToolDeps
	log  logger.Logger
}

// NewServer creates a new MCP server
// workload 为 nil 时 evaluate_workload 返回错误，其余工具照常可用
func NewServer(conn connector.Connector, workload *domain.Workload, cfg *config.Config, shared *statistics.SharedStore, log logger.Logger) *Server {
	log = logger.OrNoOp(log).WithPrefix("[MCP]")
	return &Server{
		cfg: &cfg.MCP,
		deps: &ToolDeps{
			Conn:      conn,
			Workload:  workload,
			Estimator: cfg.Estimator,
			Log:       log,
			shared:    shared,
		},
		log: log,
	}
}

// Deps 工具处理器共享的依赖
func (s *Server) Deps() *ToolDeps {
	return s.deps
}

// MCPServer 创建并注册全部工具
func (s *Server) MCPServer() *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer(
		"partadvisor",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	parseFilterTool := mcp.NewTool("parse_filter",
		mcp.WithDescription("Parse a SQL filter condition and return the value interval of every column it constrains"),
		mcp.WithString("filter", mcp.Description("The filter text, e.g. \"a >= 10 AND a < 20\""), mcp.Required()),
	)

	evaluateTool := mcp.NewTool("evaluate_workload",
		mcp.WithDescription("Estimate the cost of the configured workload under a set of candidate partitions, without creating them"),
		mcp.WithString("partitions", mcp.Description("JSON array of candidate partitions: [{\"table\",\"column\",\"kind\",\"fraction\"|\"rate\"}]"), mcp.Required()),
		mcp.WithBoolean("frequency_weighted", mcp.Description("Weight query costs by frequency (defaults to the server setting)")),
	)

	cacheInfoTool := mcp.NewTool("cache_info",
		mcp.WithDescription("Report counters of the last evaluation and the columns held in the shared percentile store"),
	)

	mcpSrv.AddTool(parseFilterTool, s.deps.HandleParseFilter)
	mcpSrv.AddTool(evaluateTool, s.deps.HandleEvaluateWorkload)
	mcpSrv.AddTool(cacheInfoTool, s.deps.HandleCacheInfo)
	return mcpSrv
}

// Start starts the MCP server (blocking)
func (s *Server) Start() error {
	endpoint := s.cfg.EndpointPath
	if endpoint == "" {
		endpoint = "/mcp"
	}

	httpServer := mcpserver.NewStreamableHTTPServer(
		s.MCPServer(),
		mcpserver.WithEndpointPath(endpoint),
		mcpserver.WithHTTPContextFunc(requestContextFunc),
	)

	addr := s.cfg.Address()
	s.log.Info("启动 MCP 服务器: %s%s", addr, endpoint)
	return httpServer.Start(addr)
}

// requestContextFunc 把 HTTP 请求放进上下文，工具处理器据此记录客户端地址
func requestContextFunc(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, ctxKeyMCPRequest, r)
}

// clientAddr 返回调用方地址，非 HTTP 调用时为空
func clientAddr(ctx context.Context) string {
	if r, ok := ctx.Value(ctxKeyMCPRequest).(*http.Request); ok && r != nil {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return fwd
		}
		return r.RemoteAddr
	}
	return ""
}

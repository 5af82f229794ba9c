// Package mcp exposes the coordinator to MCP clients, so agents can
// browse the cluster listing, request long-form detail summaries and
// inspect failure memory over stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/shousai/internal/build"
	"github.com/roasbeef/shousai/internal/coordinator"
)

// Server wraps the MCP server around the coordinator.
type Server struct {
	server *mcp.Server
	coord  *coordinator.Coordinator
	log    *slog.Logger
}

// NewServer creates a new MCP server with all cluster tools registered.
func NewServer(coord *coordinator.Coordinator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "shousai",
		Version: build.Version(),
	}, nil)

	s := &Server{
		server: mcpServer,
		coord:  coord,
		log:    log.With("component", "mcp"),
	}

	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// registerTools registers all cluster tools.
func (s *Server) registerTools() {
	// Listing tools.
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_clusters",
		Description: "List known content clusters with their detail summary state",
	}, s.handleListClusters)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_cluster",
		Description: "Get one cluster with its detail summary state",
	}, s.handleGetCluster)

	// Detail generation tools.
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "request_detail",
		Description: "Request generation of the long-form detail summary for a cluster",
	}, s.handleRequestDetail)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_detail_state",
		Description: "Get the current detail summary state for a cluster",
	}, s.handleGetDetailState)

	// Failure memory tools.
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_failures",
		Description: "List remembered generation failures",
	}, s.handleListFailures)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_failure",
		Description: "Clear the remembered failure for a cluster so it can be retried",
	}, s.handleClearFailure)
}

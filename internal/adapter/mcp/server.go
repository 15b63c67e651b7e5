package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/sounder/internal/core/port"
	"github.com/guillermoBallester/sounder/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with the analysis tools and logging hooks.
func NewServer(version string, explorer *service.ExplorerService, analysis *service.AnalysisService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, explorer, analysis, logger)

	return s
}

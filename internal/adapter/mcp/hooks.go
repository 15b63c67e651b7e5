package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errToolResult = errors.New("tool returned error")

type inflightCall struct {
	tool  string
	start time.Time
	span  trace.Span
}

// callTracker pairs before/after hook invocations by request id.
type callTracker struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map // request id -> *inflightCall
}

func (t *callTracker) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := &inflightCall{tool: req.Params.Name, start: time.Now()}
	if t.tracer != nil {
		attrs := []attribute.KeyValue{attribute.String("mcp.tool", call.tool)}
		if mode := req.GetString("mode", ""); mode != "" {
			attrs = append(attrs, attribute.String("analysis.mode", mode))
		}
		_, call.span = t.tracer.Start(ctx, "mcp.tool.call", trace.WithAttributes(attrs...))
	}
	t.calls.Store(id, call)
}

// end logs and closes the call. A nil err with units < 0 means the result
// never reached the client.
func (t *callTracker) end(ctx context.Context, id any, tool string, units int, err error) {
	call := &inflightCall{tool: tool}
	if v, ok := t.calls.LoadAndDelete(id); ok {
		call = v.(*inflightCall)
	}
	if call.tool == "" {
		return
	}
	var duration time.Duration
	if !call.start.IsZero() {
		duration = time.Since(call.start)
	}

	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", call.tool),
		slog.Duration("duration", duration),
		slog.Bool("error", err != nil),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		if !errors.Is(err, errToolResult) {
			attrs = append(attrs, slog.String("error.message", err.Error()))
		}
	}
	if units >= 0 {
		attrs = append(attrs, slog.Int("mcp.response.units", units))
	}
	t.logger.LogAttrs(ctx, level, "tool call", attrs...)

	if t.inst != nil && !call.start.IsZero() {
		t.inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
	}

	if call.span != nil {
		if units >= 0 {
			call.span.SetAttributes(attribute.Int("mcp.response.units", units))
		}
		if err != nil {
			call.span.RecordError(err)
			call.span.SetStatus(codes.Error, err.Error())
		}
		call.span.End()
	}
}

// ToolCallHooks logs every tool call with its duration and response size in
// budget units, and records a span per call when tracer is set.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	tracker := &callTracker{logger: logger, tracer: tracer, inst: inst}
	hooks := &server.Hooks{}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		tracker.begin(ctx, id, req)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		units := -1
		var err error
		if r, ok := result.(*mcp.CallToolResult); ok {
			units = responseUnits(r)
			if r.IsError {
				err = errToolResult
			}
		}
		tracker.end(ctx, id, req.Params.Name, units, err)
	})

	hooks.AddOnError(func(ctx context.Context, id any, _ mcp.MCPMethod, message any, err error) {
		tool := ""
		if req, ok := message.(*mcp.CallToolRequest); ok {
			tool = req.Params.Name
		}
		tracker.end(ctx, id, tool, -1, err)
	})

	return hooks
}

func responseUnits(r *mcp.CallToolResult) int {
	n := 0
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			n += domain.CountText(tc.Text)
		}
	}
	return n
}

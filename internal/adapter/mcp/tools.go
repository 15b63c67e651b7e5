package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "sounder"

// Tool descriptions
const (
	descListDatabases = "List the databases that can be analyzed. System databases are hidden. " +
		"Call this first to discover what exists before listing collections."

	descListCollections = "List the collections of a database with their document counts. " +
		"Counts tell you which collections are large; analysis always works on a bounded sample."

	descDescribeCollection = "Describe a collection's inferred structure from a bounded sample: every field with its " +
		"observed types, presence and null rates, distinct count, cardinality class and most frequent values, " +
		"plus a few sample documents. The schema is cached; use refresh_schema after the data changes shape."

	descAnalyzeCollection = "Analyze a collection with an adaptive strategy and return a size-bounded result " +
		"with a data display block, numerical insights and a textual summary. Modes: " +
		"overview (sample documents and field table), " +
		"recent (newest documents, sorted by a detected timestamp or identifier field), " +
		"aggregation (document counts grouped by a categorical field), " +
		"field_analysis (per-field types, null rates and top values), " +
		"time_series (daily document counts over a detected datetime field). " +
		"When the result is too large it is truncated and the truncation block says what was omitted."

	descRefreshSchema = "Discard the cached schema of a collection and infer it again from a fresh sample."

	descDatabaseParam   = "Database name (optional, uses the configured default if omitted)"
	descCollectionParam = "Name of the collection"
	descModeParam       = "Analysis mode"
	descLimitParam      = "Maximum number of documents, groups or days to return (1-100, mode default if omitted)"
	descFieldParam      = "Field to group by (aggregation) or to restrict field_analysis to (optional)"
)

func RegisterTools(s *server.MCPServer, explorer *service.ExplorerService, analysis *service.AnalysisService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("list_databases",
			mcp.WithDescription(descListDatabases),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		listDatabasesHandler(explorer, logger),
	)

	s.AddTool(
		mcp.NewTool("list_collections",
			mcp.WithDescription(descListCollections),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
		),
		listCollectionsHandler(explorer, logger),
	)

	s.AddTool(
		mcp.NewTool("describe_collection",
			mcp.WithDescription(descDescribeCollection),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("collection", mcp.Required(), mcp.Description(descCollectionParam)),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
		),
		describeCollectionHandler(explorer, logger),
	)

	modes := make([]string, len(domain.Modes))
	for i, m := range domain.Modes {
		modes[i] = string(m)
	}
	s.AddTool(
		mcp.NewTool("analyze_collection",
			mcp.WithDescription(descAnalyzeCollection),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("collection", mcp.Required(), mcp.Description(descCollectionParam)),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
			mcp.WithString("mode",
				mcp.Description(descModeParam),
				mcp.Enum(modes...),
				mcp.DefaultString(string(domain.ModeOverview)),
			),
			mcp.WithNumber("limit", mcp.Description(descLimitParam), mcp.Min(1), mcp.Max(domain.MaxLimit)),
			mcp.WithString("field", mcp.Description(descFieldParam)),
		),
		analyzeCollectionHandler(analysis, logger),
	)

	s.AddTool(
		mcp.NewTool("refresh_schema",
			mcp.WithDescription(descRefreshSchema),
			mcp.WithString("collection", mcp.Required(), mcp.Description(descCollectionParam)),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
		),
		refreshSchemaHandler(explorer, logger),
	)
}

func listDatabasesHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbs, err := explorer.ListDatabases(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list databases")), nil
		}
		return jsonResult(dbs)
	}
}

func listCollectionsHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		database := request.GetString("database", "")

		colls, err := explorer.ListCollections(ctx, database)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list collections")), nil
		}
		return jsonResult(colls)
	}
}

func describeCollectionHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, ok := refFromRequest(request)
		if !ok {
			return mcp.NewToolResultError("collection is required"), nil
		}

		desc, err := explorer.DescribeCollection(ctx, ref)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe collection")), nil
		}
		return jsonResult(desc)
	}
}

func refreshSchemaHandler(explorer *service.ExplorerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, ok := refFromRequest(request)
		if !ok {
			return mcp.NewToolResultError("collection is required"), nil
		}

		desc, err := explorer.RefreshSchema(ctx, ref)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "refresh schema")), nil
		}
		return jsonResult(desc)
	}
}

func analyzeCollectionHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, ok := refFromRequest(request)
		if !ok {
			return mcp.NewToolResultError("collection is required"), nil
		}

		// Unknown modes are rejected by Analyze so they are audited too.
		req := domain.AnalysisRequest{
			Ref:   ref,
			Mode:  domain.Mode(request.GetString("mode", string(domain.ModeOverview))),
			Limit: request.GetInt("limit", 0),
			Field: request.GetString("field", ""),
		}

		ctx = service.WithToolName(ctx, "analyze_collection")
		outcome, err := analysis.Analyze(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "analyze collection")), nil
		}
		return jsonResult(outcome)
	}
}

func refFromRequest(request mcp.CallToolRequest) (domain.CollectionRef, bool) {
	coll := request.GetString("collection", "")
	if coll == "" {
		return domain.CollectionRef{}, false
	}
	return domain.CollectionRef{Database: request.GetString("database", ""), Collection: coll}, true
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// sanitizeError turns err into a message that is safe to hand to the client.
// Caller mistakes are echoed back; store failures are logged and summarized.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	kind := domain.ErrorKind(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("tool timed out", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Sprintf("%s failed: query timed out, try a smaller limit or a narrower mode", op)
	case kind == "invalid_request", kind == "unsupported_mode", kind == "invalid_sample_size", kind == "not_found":
		return fmt.Sprintf("%s failed (%s): %v", op, kind, err)
	case kind == "source_unavailable":
		logger.Error("data source unavailable", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Sprintf("%s failed (%s): the data source cannot be reached, try again later", op, kind)
	}
	logger.Error("tool failed", slog.String("op", op), slog.String("error.type", kind), slog.String("error", err.Error()))
	return fmt.Sprintf("%s failed: internal error (%s), check server logs", op, kind)
}

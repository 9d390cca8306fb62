package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/validate"
)

// NewMCPServer assembles the MCP tool server over a service. Framing,
// transport and capability negotiation all belong to mcp-go; muninn only
// contributes handlers.
func NewMCPServer(sv *Service, version string) *server.MCPServer {
	srv := server.NewMCPServer("muninn", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool("muninn_query",
		mcp.WithDescription("Search project memory: decisions, learnings, issues and files."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Free-text query")),
		mcp.WithBoolean("smart"),
		mcp.WithBoolean("vector"),
		mcp.WithBoolean("fts"),
	), handle(sv, func(ctx context.Context, req *validate.QueryRequest) (any, error) {
		return sv.Query(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_check",
		mcp.WithDescription("Pre-edit check: warnings, decisions and learnings for a file set."),
		mcp.WithArray("files", mcp.Required(), mcp.Description("Files about to be edited")),
	), handle(sv, func(ctx context.Context, req *validate.CheckRequest) (any, error) {
		return sv.Check(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_file_add",
		mcp.WithDescription("Register a file with its purpose and optional manual fragility."),
		mcp.WithString("path", mcp.Required()),
		mcp.WithString("purpose"),
		mcp.WithNumber("fragility"),
		mcp.WithString("fragility_reason"),
		mcp.WithString("type"),
	), handle(sv, func(ctx context.Context, req *validate.FileAddRequest) (any, error) {
		return sv.FileAdd(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_decision_add",
		mcp.WithDescription("Record a decision with reasoning and affected files."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("decision", mcp.Required()),
		mcp.WithString("reasoning"),
		mcp.WithArray("affects"),
	), handle(sv, func(ctx context.Context, req *validate.DecisionAddRequest) (any, error) {
		id, err := sv.DecisionAdd(req)
		return map[string]int64{"id": id}, err
	}))

	srv.AddTool(mcp.NewTool("muninn_learn_add",
		mcp.WithDescription("Record a learning."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
		mcp.WithString("category"),
		mcp.WithString("context"),
		mcp.WithBoolean("global"),
		mcp.WithArray("files"),
		mcp.WithBoolean("foundational"),
		mcp.WithString("reviewAfter"),
	), handle(sv, func(ctx context.Context, req *validate.LearnAddRequest) (any, error) {
		id, err := sv.LearnAdd(req)
		return map[string]int64{"id": id}, err
	}))

	srv.AddTool(mcp.NewTool("muninn_issue",
		mcp.WithDescription("Add or resolve an issue."),
		mcp.WithString("action", mcp.Required(), mcp.Enum("add", "resolve")),
		mcp.WithNumber("id"),
		mcp.WithString("title"),
		mcp.WithString("description"),
		mcp.WithString("type"),
		mcp.WithNumber("severity"),
		mcp.WithString("workaround"),
		mcp.WithString("resolution"),
	), handle(sv, func(ctx context.Context, req *validate.IssueRequest) (any, error) {
		id, err := sv.Issue(req)
		return map[string]int64{"id": id}, err
	}))

	srv.AddTool(mcp.NewTool("muninn_session",
		mcp.WithDescription("Start or end a working session."),
		mcp.WithString("action", mcp.Required(), mcp.Enum("start", "end")),
		mcp.WithNumber("id"),
		mcp.WithString("goal"),
		mcp.WithString("outcome"),
		mcp.WithNumber("success"),
	), handle(sv, func(ctx context.Context, req *validate.SessionRequest) (any, error) {
		return sv.Session(ctx, req)
	}))

	srv.AddTool(mcp.NewTool("muninn_predict",
		mcp.WithDescription("Predict relevant context for an upcoming task."),
		mcp.WithString("task"),
		mcp.WithArray("files"),
		mcp.WithBoolean("advise"),
	), handle(sv, func(ctx context.Context, req *validate.PredictRequest) (any, error) {
		return sv.Predict(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_suggest",
		mcp.WithDescription("Suggest files for a task."),
		mcp.WithString("task", mcp.Required()),
		mcp.WithNumber("limit"),
		mcp.WithBoolean("includeSymbols"),
	), handle(sv, func(ctx context.Context, req *validate.SuggestRequest) (any, error) {
		return sv.Suggest(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_enrich",
		mcp.WithDescription("Enrich another tool's input with remembered context and strategies."),
		mcp.WithString("tool", mcp.Required()),
		mcp.WithString("input"),
	), handle(sv, func(ctx context.Context, req *validate.EnrichRequest) (any, error) {
		return sv.Enrich(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_approve",
		mcp.WithDescription("Approve a parked destructive operation."),
		mcp.WithString("operationId", mcp.Required()),
	), handle(sv, func(ctx context.Context, req *validate.ApproveRequest) (any, error) {
		return sv.Approve(req)
	}))

	srv.AddTool(mcp.NewTool("muninn_passthrough",
		mcp.WithDescription("Forward a raw statement to the store adapter."),
		mcp.WithString("command", mcp.Required()),
	), handle(sv, func(ctx context.Context, req *validate.PassthroughRequest) (any, error) {
		return sv.Passthrough(req)
	}))

	return srv
}

// ServeStdio blocks serving the tool protocol on stdio.
func ServeStdio(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

// handle adapts a typed service method into an mcp-go handler: decode the
// arguments into the request struct, run, and render JSON. Validation errors
// come back as tool errors, not protocol errors.
func handle[T any](sv *Service, fn func(context.Context, *T) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req T
		if err := request.BindArguments(&req); err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		out, err := fn(ctx, &req)
		if err != nil {
			logging.Get(logging.CategoryTools).Debug("tool failed: %v", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

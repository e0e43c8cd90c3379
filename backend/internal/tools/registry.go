package tools

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// ServerName is the implementation name announced to MCP clients
const ServerName = "memory-mcp"

type requestIDKey struct{}

// RequestID returns the id assigned to the tool call running under ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// handlers maps each unprefixed tool name to its implementation
func (e *Executor) handlers() map[string]server.ToolHandlerFunc {
	return map[string]server.ToolHandlerFunc{
		ToolReadGraph:          e.executeReadGraph,
		ToolCreateEntities:     e.executeCreateEntities,
		ToolCreateRelations:    e.executeCreateRelations,
		ToolAddObservations:    e.executeAddObservations,
		ToolDeleteEntities:     e.executeDeleteEntities,
		ToolDeleteObservations: e.executeDeleteObservations,
		ToolDeleteRelations:    e.executeDeleteRelations,
		ToolSearchMemories:     e.executeSearchMemories,
		ToolFindMemoriesByName: e.executeFindMemoriesByName,
	}
}

// ServerTools returns every tool definition paired with its handler
func (e *Executor) ServerTools() []server.ServerTool {
	handlers := e.handlers()
	tools := make([]server.ServerTool, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		tools = append(tools, server.ServerTool{
			Tool:    spec.tool(e.prefix),
			Handler: handlers[spec.name],
		})
	}
	return tools
}

// LoggingMiddleware tags each tool call with a request id and logs its outcome
func (e *Executor) LoggingMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requestID := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		log := e.logger.With(
			zap.String("request_id", requestID),
			zap.String("tool", req.Params.Name),
		)

		start := time.Now()
		log.Info("MCP tool call")
		result, err := next(ctx, req)

		fields := []zap.Field{zap.Duration("duration", time.Since(start))}
		switch {
		case err != nil:
			log.Error("MCP tool call errored", append(fields, zap.Error(err))...)
		case result != nil && result.IsError:
			log.Warn("MCP tool call returned an error result", fields...)
		default:
			log.Info("MCP tool call completed", fields...)
		}
		return result, err
	}
}

// NewServer builds an MCP server exposing every tool of the executor
func NewServer(e *Executor, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(e.LoggingMiddleware),
	)
	s.AddTools(e.ServerTools()...)

	e.logger.Info("MCP tools registered",
		zap.Int("count", len(toolSpecs)),
		zap.String("prefix", e.prefix),
	)
	return s
}

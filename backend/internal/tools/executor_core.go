package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"memory-mcp/backend/internal/graph"
	apperrors "memory-mcp/backend/pkg/errors"
	"memory-mcp/backend/pkg/logger"
)

// Executor turns tool calls into knowledge store operations
type Executor struct {
	store    graph.Store
	prefix   string
	validate *validator.Validate
	logger   *zap.Logger
}

// NewExecutor creates a tool executor. Tool names are prefixed with the
// formatted namespace.
func NewExecutor(store graph.Store, namespace string) *Executor {
	return &Executor{
		store:    store,
		prefix:   FormatNamespace(namespace),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Get(),
	}
}

// ToolName returns the externally visible name of a tool
func (e *Executor) ToolName(name string) string {
	return e.prefix + name
}

// bind decodes the call arguments into target and validates them
func (e *Executor) bind(req mcp.CallToolRequest, target any) error {
	if err := req.BindArguments(target); err != nil {
		return apperrors.NewInvalidArguments(req.Params.Name, err)
	}
	if err := e.validate.Struct(target); err != nil {
		return apperrors.NewInvalidArguments(req.Params.Name, err)
	}
	return nil
}

// errorMessage renders err as the caller-facing message for tool. The three
// failure kinds get distinct wording so callers can tell them apart.
func errorMessage(tool string, err error) string {
	cause := err
	if inner := errors.Unwrap(err); inner != nil {
		cause = inner
	}
	switch {
	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		return fmt.Sprintf("invalid arguments for %s: %v", tool, cause)
	case apperrors.IsBackendUnavailable(err):
		return fmt.Sprintf("graph backend unavailable during %s: %v", tool, cause)
	default:
		return fmt.Sprintf("%s failed: %v", tool, cause)
	}
}

// errorResult logs err and wraps it in a tool error result
func (e *Executor) errorResult(tool string, err error) *mcp.CallToolResult {
	msg := errorMessage(tool, err)
	kind, _ := apperrors.TypeOf(err)
	e.logger.Error("Tool call failed",
		zap.String("tool", tool),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return mcp.NewToolResultError(msg)
}

// partialErrorResult reports a failed batch call. The items the store applied
// before failing are listed in the structured content.
func partialErrorResult[T any](e *Executor, tool string, err error, applied []T) *mcp.CallToolResult {
	result := e.errorResult(tool, err)
	if len(applied) > 0 {
		result.StructuredContent = map[string]any{"result": applied}
	}
	return result
}

// jsonResult returns payload as JSON text alongside structured content
func (e *Executor) jsonResult(tool string, structured, payload any) *mcp.CallToolResult {
	text, err := json.Marshal(payload)
	if err != nil {
		return e.errorResult(tool, apperrors.NewOperationFailed(tool, err))
	}
	return mcp.NewToolResultStructured(structured, string(text))
}

// graphResult returns a knowledge graph as both text and structured content
func (e *Executor) graphResult(tool string, kg *graph.KnowledgeGraph) *mcp.CallToolResult {
	return e.jsonResult(tool, kg, kg)
}

// listResult wraps a list result as {"result": list}
func (e *Executor) listResult(tool string, list any) *mcp.CallToolResult {
	return e.jsonResult(tool, map[string]any{"result": list}, list)
}

// messageResult returns a plain confirmation message
func messageResult(message string) *mcp.CallToolResult {
	return mcp.NewToolResultStructured(map[string]any{"result": message}, message)
}

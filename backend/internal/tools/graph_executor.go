package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"memory-mcp/backend/internal/graph"
)

// ============================================================================
// Knowledge Graph Tool Implementations
// ============================================================================

type createEntitiesArgs struct {
	Entities []graph.Entity `json:"entities" validate:"required,dive"`
}

type createRelationsArgs struct {
	Relations []graph.Relation `json:"relations" validate:"required,dive"`
}

type addObservationsArgs struct {
	Observations []graph.ObservationAddition `json:"observations" validate:"required,dive"`
}

type deleteEntitiesArgs struct {
	EntityNames []string `json:"entityNames" validate:"required"`
}

type deleteObservationsArgs struct {
	Deletions []graph.ObservationDeletion `json:"deletions" validate:"required,dive"`
}

type deleteRelationsArgs struct {
	Relations []graph.Relation `json:"relations" validate:"required,dive"`
}

type searchMemoriesArgs struct {
	Query string `json:"query"`
}

type findMemoriesByNameArgs struct {
	Names []string `json:"names" validate:"required"`
}

func (e *Executor) executeReadGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kg, err := e.store.ReadGraph(ctx)
	if err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}
	return e.graphResult(req.Params.Name, kg), nil
}

// executeCreateEntities lists the entities written before a failure next to
// the error
func (e *Executor) executeCreateEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createEntitiesArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	entities, err := e.store.CreateEntities(ctx, args.Entities)
	if err != nil {
		return partialErrorResult(e, req.Params.Name, err, entities), nil
	}
	return e.listResult(req.Params.Name, entities), nil
}

func (e *Executor) executeCreateRelations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createRelationsArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	relations, err := e.store.CreateRelations(ctx, args.Relations)
	if err != nil {
		return partialErrorResult(e, req.Params.Name, err, relations), nil
	}
	return e.listResult(req.Params.Name, relations), nil
}

// executeAddObservations reports per-item outcomes. When the backend drops
// out mid-batch the call is an error, but the items already applied are still
// listed in the structured content.
func (e *Executor) executeAddObservations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args addObservationsArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	results, err := e.store.AddObservations(ctx, args.Observations)
	if err != nil {
		return partialErrorResult(e, req.Params.Name, err, results), nil
	}
	return e.listResult(req.Params.Name, results), nil
}

func (e *Executor) executeDeleteEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteEntitiesArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	if err := e.store.DeleteEntities(ctx, args.EntityNames); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}
	return messageResult("Entities deleted successfully"), nil
}

func (e *Executor) executeDeleteObservations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteObservationsArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	if err := e.store.DeleteObservations(ctx, args.Deletions); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}
	return messageResult("Observations deleted successfully"), nil
}

func (e *Executor) executeDeleteRelations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteRelationsArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	if err := e.store.DeleteRelations(ctx, args.Relations); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}
	return messageResult("Relations deleted successfully"), nil
}

func (e *Executor) executeSearchMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args searchMemoriesArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	kg, err := e.store.SearchMemories(ctx, args.Query)
	if err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}
	return e.graphResult(req.Params.Name, kg), nil
}

func (e *Executor) executeFindMemoriesByName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args findMemoriesByNameArgs
	if err := e.bind(req, &args); err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}

	kg, err := e.store.FindMemoriesByName(ctx, args.Names)
	if err != nil {
		return e.errorResult(req.Params.Name, err), nil
	}
	return e.graphResult(req.Params.Name, kg), nil
}

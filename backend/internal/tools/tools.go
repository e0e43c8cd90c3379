package tools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names - Read Tools
const (
	ToolReadGraph          = "read_graph"
	ToolSearchMemories     = "search_memories"
	ToolFindMemoriesByName = "find_memories_by_name"
)

// Tool names - Write Tools
const (
	ToolCreateEntities  = "create_entities"
	ToolCreateRelations = "create_relations"
	ToolAddObservations = "add_observations"
)

// Tool names - Delete Tools
const (
	ToolDeleteEntities     = "delete_entities"
	ToolDeleteObservations = "delete_observations"
	ToolDeleteRelations    = "delete_relations"
)

// toolSpec is the static metadata attached to one tool
type toolSpec struct {
	name        string
	title       string
	description string
	readOnly    bool
	destructive bool
	params      []mcp.ToolOption
}

var entitySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":         map[string]any{"type": "string", "description": "Unique entity name"},
		"type":         map[string]any{"type": "string", "description": "Entity category, e.g. person or company"},
		"observations": stringArraySchema("Facts about the entity"),
	},
	"required": []string{"name", "type", "observations"},
}

var relationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"source":       map[string]any{"type": "string", "description": "Name of the source entity"},
		"target":       map[string]any{"type": "string", "description": "Name of the target entity"},
		"relationType": map[string]any{"type": "string", "description": "Relationship type, e.g. WORKS_AT"},
	},
	"required": []string{"source", "target", "relationType"},
}

func observationsSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entityName":   map[string]any{"type": "string", "description": "Name of an existing entity"},
			"observations": stringArraySchema(description),
		},
		"required": []string{"entityName", "observations"},
	}
}

func stringArraySchema(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": "string"},
	}
}

// toolSpecs lists every tool in registration order
var toolSpecs = []toolSpec{
	{
		name:        ToolReadGraph,
		title:       "Read Graph",
		description: "Read the whole knowledge graph: every entity with its observations and every relation.",
		readOnly:    true,
	},
	{
		name:  ToolCreateEntities,
		title: "Create Entities",
		description: "Create entities in the knowledge graph. An entity whose name already exists keeps its type " +
			"and gains the observations it does not have yet.",
		params: []mcp.ToolOption{
			mcp.WithArray("entities",
				mcp.Required(),
				mcp.Description("Entities to create with name, type and observations"),
				mcp.Items(entitySchema),
			),
		},
	},
	{
		name:  ToolCreateRelations,
		title: "Create Relations",
		description: "Create directed relations between existing entities. A relation is identified by source, " +
			"target and type; relations whose endpoints do not exist are skipped.",
		params: []mcp.ToolOption{
			mcp.WithArray("relations",
				mcp.Required(),
				mcp.Description("Relations to create between existing entities"),
				mcp.Items(relationSchema),
			),
		},
	},
	{
		name:  ToolAddObservations,
		title: "Add Observations",
		description: "Add observations to existing entities. Observations already present are ignored; " +
			"a missing entity is reported on its own item without failing the others.",
		params: []mcp.ToolOption{
			mcp.WithArray("observations",
				mcp.Required(),
				mcp.Description("Observations to add to existing entities"),
				mcp.Items(observationsSchema("Observations to add")),
			),
		},
	},
	{
		name:        ToolDeleteEntities,
		title:       "Delete Entities",
		description: "Delete entities by exact name together with every relation they take part in. Unknown names are ignored.",
		destructive: true,
		params: []mcp.ToolOption{
			mcp.WithArray("entityNames",
				mcp.Required(),
				mcp.Description("Exact names of the entities to delete"),
				mcp.Items(map[string]any{"type": "string"}),
			),
		},
	},
	{
		name:        ToolDeleteObservations,
		title:       "Delete Observations",
		description: "Remove specific observations from entities. Matching is exact and case-sensitive.",
		destructive: true,
		params: []mcp.ToolOption{
			mcp.WithArray("deletions",
				mcp.Required(),
				mcp.Description("Observations to remove from entities"),
				mcp.Items(observationsSchema("Observations to remove")),
			),
		},
	},
	{
		name:        ToolDeleteRelations,
		title:       "Delete Relations",
		description: "Delete relations matching source, target and type exactly. Unknown relations are ignored.",
		destructive: true,
		params: []mcp.ToolOption{
			mcp.WithArray("relations",
				mcp.Required(),
				mcp.Description("Relations to delete"),
				mcp.Items(relationSchema),
			),
		},
	},
	{
		name:  ToolSearchMemories,
		title: "Search Memories",
		description: "Full-text search over entity names, types and observations. Returns the matching entities, " +
			"their relations and the entities at the other end of those relations.",
		readOnly: true,
		params: []mcp.ToolOption{
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search terms; any term may match"),
			),
		},
	},
	{
		name:  ToolFindMemoriesByName,
		title: "Find Memories by Name",
		description: "Fetch entities by exact name, with their relations and the entities at the other end of " +
			"those relations. Unknown names are left out of the result.",
		readOnly: true,
		params: []mcp.ToolOption{
			mcp.WithArray("names",
				mcp.Required(),
				mcp.Description("Exact entity names to fetch"),
				mcp.Items(map[string]any{"type": "string"}),
			),
		},
	},
}

// FormatNamespace turns a namespace into a tool name prefix. An empty
// namespace yields no prefix and a trailing "-" is not doubled.
func FormatNamespace(namespace string) string {
	if namespace == "" {
		return ""
	}
	if strings.HasSuffix(namespace, "-") {
		return namespace
	}
	return namespace + "-"
}

// tool builds the MCP definition under the given name prefix
func (s toolSpec) tool(prefix string) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(s.description),
		mcp.WithTitleAnnotation(s.title),
		mcp.WithReadOnlyHintAnnotation(s.readOnly),
		mcp.WithDestructiveHintAnnotation(s.destructive),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	}
	opts = append(opts, s.params...)
	return mcp.NewTool(prefix+s.name, opts...)
}

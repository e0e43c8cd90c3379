package graph

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ============================================================================
// Search Operations
// ============================================================================

const fulltextSearchQuery = `
	CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
	RETURN node.name AS name
	ORDER BY score DESC
`

const neighbourRelationsQuery = `
	MATCH (source:Memory)-[r]->(target:Memory)
	WHERE source.name IN $names OR target.name IN $names
	RETURN source.name AS source, type(r) AS relationType, target.name AS target
`

const entitiesByNameQuery = `
	MATCH (e:Memory)
	WHERE e.name IN $names
	RETURN e.name AS name, e.type AS type, e.observations AS observations
`

// SearchMemories runs a full-text query over entity names, types and
// observations. The result holds the matches, ranked by score, together with
// every relation touching a match and the entity at its other end.
// A blank query returns an empty graph without touching the backend.
func (r *Repository) SearchMemories(ctx context.Context, query string) (*KnowledgeGraph, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return NewKnowledgeGraph(), nil
	}

	var kg *KnowledgeGraph
	err := r.read(ctx, OpSearchMemories, func(tx neo4j.ExplicitTransaction) error {
		records, err := collect(ctx, tx, fulltextSearchQuery, map[string]interface{}{
			"index": fulltextIndexName,
			"query": query,
		})
		if err != nil {
			return err
		}
		matched := make([]string, 0, len(records))
		for _, record := range records {
			matched = append(matched, getStringFromRecord(record, "name"))
		}
		kg, err = loadNeighbourhood(ctx, tx, lo.Uniq(matched))
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Memories searched",
		zap.String("operation", OpSearchMemories),
		zap.String("query", query),
		zap.Strings("entities", kg.EntityNames()),
		zap.Int("relations", len(kg.Relations)),
	)
	return kg, nil
}

// FindMemoriesByName looks entities up by exact name. It applies the same
// neighbourhood rule as SearchMemories; unknown names are simply absent.
func (r *Repository) FindMemoriesByName(ctx context.Context, names []string) (*KnowledgeGraph, error) {
	names = lo.Uniq(names)
	if len(names) == 0 {
		return NewKnowledgeGraph(), nil
	}

	var kg *KnowledgeGraph
	err := r.read(ctx, OpFindMemoriesByName, func(tx neo4j.ExplicitTransaction) error {
		var err error
		kg, err = loadNeighbourhood(ctx, tx, names)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Memories found by name",
		zap.String("operation", OpFindMemoriesByName),
		zap.Int("requested", len(names)),
		zap.Strings("entities", kg.EntityNames()),
	)
	return kg, nil
}

// loadNeighbourhood returns the named entities, every relation incident to one
// of them, and the far-end entities of those relations. Entities follow the
// order of names, then first appearance among the relations.
func loadNeighbourhood(ctx context.Context, tx neo4j.ExplicitTransaction, names []string) (*KnowledgeGraph, error) {
	kg := NewKnowledgeGraph()
	if len(names) == 0 {
		return kg, nil
	}

	records, err := collect(ctx, tx, neighbourRelationsQuery, map[string]interface{}{
		"names": names,
	})
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		kg.Relations = append(kg.Relations, relationFromRecord(record))
	}
	kg.Relations = UniqueRelations(kg.Relations)

	expanded := ExpandNames(names, kg.Relations)
	records, err = collect(ctx, tx, entitiesByNameQuery, map[string]interface{}{
		"names": expanded,
	})
	if err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(records))
	for _, record := range records {
		entities = append(entities, entityFromRecord(record))
	}
	kg.Entities = SortByNames(entities, expanded)
	return kg, nil
}

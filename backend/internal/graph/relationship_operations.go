package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "memory-mcp/backend/pkg/errors"
)

// ============================================================================
// Relationship Operations
// ============================================================================

// mergeRelationQuery builds the per-triple MERGE. Relationship types cannot be
// bound as parameters, so the type is spliced in as a quoted identifier.
// Both endpoints must already exist: MATCH yields no row otherwise and the
// triple is skipped.
func mergeRelationQuery(relationType string) string {
	return fmt.Sprintf(`
		MATCH (source:Memory {name: $source})
		MATCH (target:Memory {name: $target})
		MERGE (source)-[r:%s]->(target)
		RETURN source.name AS source, type(r) AS relationType, target.name AS target
	`, quoteIdentifier(relationType))
}

// CreateRelations creates each missing (source, target, relationType) edge.
// Triples whose endpoints do not exist are skipped and repeated triples are
// written once. The returned relations exist after the call and follow input
// order. If a write fails, the relations already written are returned with the
// error.
//
// MERGE on a relationship takes no lock that a constraint could enforce, so
// two concurrent calls creating the same triple can each add an edge.
func (r *Repository) CreateRelations(ctx context.Context, relations []Relation) ([]Relation, error) {
	for _, rel := range relations {
		if err := ValidateRelation(rel); err != nil {
			return nil, apperrors.NewOperationFailed(OpCreateRelations, err)
		}
	}

	relations = UniqueRelations(relations)

	created := make([]Relation, len(relations))
	present := make([]bool, len(relations))
	err := RunBatch(ctx, len(relations), r.writeLimit, func(ctx context.Context, i int) error {
		rel := relations[i]
		records, err := r.write(ctx, OpCreateRelations, mergeRelationQuery(rel.RelationType), map[string]interface{}{
			"source": rel.Source,
			"target": rel.Target,
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			r.logger.Debug("Relation skipped, endpoint missing",
				zap.String("relation", rel.String()),
			)
			return nil
		}
		created[i] = relationFromRecord(records[0])
		present[i] = true
		return nil
	})
	results := Applied(created, present)
	if err != nil {
		return results, classify(OpCreateRelations, err)
	}

	r.logger.Info("Relations created",
		zap.String("operation", OpCreateRelations),
		zap.Int("requested", len(relations)),
		zap.Int("count", len(results)),
	)
	return results, nil
}

// DeleteRelations removes the edges matching each triple exactly. The type is
// compared with type(r) so no identifier splicing is needed here.
func (r *Repository) DeleteRelations(ctx context.Context, relations []Relation) error {
	if len(relations) == 0 {
		return nil
	}

	params := make([]map[string]interface{}, 0, len(relations))
	for _, rel := range relations {
		params = append(params, map[string]interface{}{
			"source":       rel.Source,
			"target":       rel.Target,
			"relationType": rel.RelationType,
		})
	}

	_, err := r.write(ctx, OpDeleteRelations, `
		UNWIND $relations AS rel
		MATCH (source:Memory {name: rel.source})-[r]->(target:Memory {name: rel.target})
		WHERE type(r) = rel.relationType
		DELETE r
	`, map[string]interface{}{
		"relations": params,
	})
	if err != nil {
		return err
	}

	r.logger.Info("Relations deleted",
		zap.String("operation", OpDeleteRelations),
		zap.Int("count", len(relations)),
	)
	return nil
}

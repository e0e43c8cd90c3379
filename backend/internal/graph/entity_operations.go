package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "memory-mcp/backend/pkg/errors"
)

// ============================================================================
// Entity Operations
// ============================================================================

// mergeEntityQuery finds or creates the entity and appends the observations it
// lacks in one statement. The type is only set on creation.
const mergeEntityQuery = `
	MERGE (e:Memory {name: $name})
	ON CREATE SET e.type = $type, e.observations = []
	WITH e, coalesce(e.observations, []) AS existing
	SET e.observations = existing + [o IN $observations WHERE NOT o IN existing]
	RETURN e.name AS name, e.type AS type, e.observations AS observations
`

// CreateEntities creates each entity or merges its observations into the
// existing one. Results are returned one per input, in input order. If a write
// fails, the entities already written are returned with the error.
func (r *Repository) CreateEntities(ctx context.Context, entities []Entity) ([]Entity, error) {
	for _, e := range entities {
		if err := ValidateEntity(e); err != nil {
			return nil, apperrors.NewOperationFailed(OpCreateEntities, err)
		}
	}

	results := make([]Entity, len(entities))
	done := make([]bool, len(entities))
	err := RunBatch(ctx, len(entities), r.writeLimit, func(ctx context.Context, i int) error {
		e := entities[i]
		records, err := r.write(ctx, OpCreateEntities, mergeEntityQuery, map[string]interface{}{
			"name":         e.Name,
			"type":         e.Type,
			"observations": UniqueObservations(e.Observations),
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewOperationFailed(OpCreateEntities, fmt.Errorf("merge of %q returned no row", e.Name))
		}
		results[i] = entityFromRecord(records[0])
		done[i] = true
		return nil
	})
	if err != nil {
		return Applied(results, done), classify(OpCreateEntities, err)
	}

	r.logger.Info("Entities created",
		zap.String("operation", OpCreateEntities),
		zap.Int("count", len(results)),
	)
	return results, nil
}

// DeleteEntities removes the named entities and every relation touching them
// in a single write. Unknown names are ignored.
func (r *Repository) DeleteEntities(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	_, err := r.write(ctx, OpDeleteEntities, `
		UNWIND $names AS name
		MATCH (e:Memory {name: name})
		DETACH DELETE e
	`, map[string]interface{}{
		"names": names,
	})
	if err != nil {
		return err
	}

	r.logger.Info("Entities deleted",
		zap.String("operation", OpDeleteEntities),
		zap.Strings("names", names),
	)
	return nil
}

package graph

import (
	"context"

	"go.uber.org/zap"

	apperrors "memory-mcp/backend/pkg/errors"
)

// ============================================================================
// Observation Operations
// ============================================================================

const addObservationsQuery = `
	MATCH (e:Memory {name: $name})
	WITH e, coalesce(e.observations, []) AS existing
	WITH e, existing, [o IN $observations WHERE NOT o IN existing] AS added
	SET e.observations = existing + added
	RETURN e.name AS name, added
`

// AddObservations appends observations to existing entities. Each item is
// applied on its own: a missing entity or a failing write is reported on that
// item's result while the other items proceed. Only a backend outage aborts the
// call; results for items already applied are still returned with the error.
func (r *Repository) AddObservations(ctx context.Context, additions []ObservationAddition) ([]ObservationResult, error) {
	results := NewObservationResults(additions)
	done := make([]bool, len(additions))

	err := RunBatch(ctx, len(additions), r.writeLimit, func(ctx context.Context, i int) error {
		a := additions[i]
		records, err := r.write(ctx, OpAddObservations, addObservationsQuery, map[string]interface{}{
			"name":         a.EntityName,
			"observations": UniqueObservations(a.Observations),
		})
		switch {
		case apperrors.IsBackendUnavailable(err):
			return err
		case err != nil:
			results[i].Fail(err)
		case len(records) == 0:
			results[i].Fail(apperrors.NewEntityNotFound(a.EntityName))
		default:
			results[i].AddedObservations = getStringSliceFromRecord(records[0], "added")
		}
		done[i] = true
		return nil
	})
	if err != nil {
		err = classify(OpAddObservations, err)
		MarkUnapplied(results, done, err)
		return results, err
	}

	r.logger.Info("Observations added",
		zap.String("operation", OpAddObservations),
		zap.Int("count", len(additions)),
	)
	return results, nil
}

// DeleteObservations removes exact-match observations from the named entities
// in a single write. Unknown entities or observations are ignored.
func (r *Repository) DeleteObservations(ctx context.Context, deletions []ObservationDeletion) error {
	if len(deletions) == 0 {
		return nil
	}

	params := make([]map[string]interface{}, 0, len(deletions))
	for _, d := range deletions {
		params = append(params, map[string]interface{}{
			"entityName":   d.EntityName,
			"observations": UniqueObservations(d.Observations),
		})
	}

	_, err := r.write(ctx, OpDeleteObservations, `
		UNWIND $deletions AS d
		MATCH (e:Memory {name: d.entityName})
		SET e.observations = [o IN coalesce(e.observations, []) WHERE NOT o IN d.observations]
	`, map[string]interface{}{
		"deletions": params,
	})
	if err != nil {
		return err
	}

	r.logger.Info("Observations deleted",
		zap.String("operation", OpDeleteObservations),
		zap.Int("count", len(deletions)),
	)
	return nil
}

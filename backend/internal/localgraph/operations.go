package localgraph

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"memory-mcp/backend/internal/graph"
	apperrors "memory-mcp/backend/pkg/errors"
)

// ============================================================================
// Read
// ============================================================================

// ReadGraph returns every entity and relation, in insertion order
func (s *Store) ReadGraph(ctx context.Context) (*graph.KnowledgeGraph, error) {
	kg := graph.NewKnowledgeGraph()

	err := s.withTx(ctx, graph.OpReadGraph, func(tx *sql.Tx) error {
		entities, err := loadEntities(ctx, tx, "", "")
		if err != nil {
			return err
		}
		relations, err := loadRelations(ctx, tx, "", "")
		if err != nil {
			return err
		}
		kg.Entities = entities
		kg.Relations = relations
		return nil
	})
	if err != nil {
		return nil, err
	}
	return kg, nil
}

// loadEntities reads entities with their observations. A non-empty filter is a
// WHERE clause on entities aliased e, bound to arg.
func loadEntities(ctx context.Context, q queryer, filter string, arg any) ([]graph.Entity, error) {
	query := `SELECT e.name, e.type FROM entities e`
	obsQuery := `SELECT o.entity_name, o.content FROM observations o JOIN entities e ON e.name = o.entity_name`
	var args []any
	if filter != "" {
		query += " WHERE " + filter
		obsQuery += " WHERE " + filter
		args = append(args, arg)
	}
	query += " ORDER BY e.rowid"
	obsQuery += " ORDER BY o.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	entities := []graph.Entity{}
	position := map[string]int{}
	for rows.Next() {
		e := graph.Entity{Observations: []string{}}
		if err := rows.Scan(&e.Name, &e.Type); err != nil {
			rows.Close()
			return nil, err
		}
		position[e.Name] = len(entities)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, obsQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name, content string
		if err := rows.Scan(&name, &content); err != nil {
			return nil, err
		}
		if i, ok := position[name]; ok {
			entities[i].Observations = append(entities[i].Observations, content)
		}
	}
	return entities, rows.Err()
}

// loadRelations reads relations. A non-empty filter is a WHERE clause on
// relations aliased r, bound to arg.
func loadRelations(ctx context.Context, q queryer, filter string, arg any) ([]graph.Relation, error) {
	query := `SELECT r.source, r.target, r.relation_type FROM relations r`
	var args []any
	if filter != "" {
		query += " WHERE " + filter
		args = append(args, arg)
	}
	query += " ORDER BY r.rowid"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	relations := []graph.Relation{}
	for rows.Next() {
		var r graph.Relation
		if err := rows.Scan(&r.Source, &r.Target, &r.RelationType); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

func loadEntity(ctx context.Context, q queryer, name string) (graph.Entity, error) {
	entities, err := loadEntities(ctx, q, "e.name = ?", name)
	if err != nil {
		return graph.Entity{}, err
	}
	if len(entities) == 0 {
		return graph.Entity{}, apperrors.NewEntityNotFound(name)
	}
	return entities[0], nil
}

func entityExists(ctx context.Context, q queryer, name string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM entities WHERE name = ?)`, name).Scan(&exists)
	return exists, err
}

// ============================================================================
// Entities
// ============================================================================

// CreateEntities creates each entity or merges its observations into the
// existing one, one transaction per entity. Results follow input order. If a
// transaction fails, the entities already committed are returned with the error.
func (s *Store) CreateEntities(ctx context.Context, entities []graph.Entity) ([]graph.Entity, error) {
	for _, e := range entities {
		if err := graph.ValidateEntity(e); err != nil {
			return nil, apperrors.NewOperationFailed(graph.OpCreateEntities, err)
		}
	}

	results := make([]graph.Entity, len(entities))
	done := make([]bool, len(entities))
	err := graph.RunBatch(ctx, len(entities), s.writeLimit, func(ctx context.Context, i int) error {
		err := s.withTx(ctx, graph.OpCreateEntities, func(tx *sql.Tx) error {
			e := entities[i]
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entities (name, type) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
				e.Name, e.Type,
			); err != nil {
				return err
			}
			if _, err := insertObservations(ctx, tx, e.Name, e.Observations); err != nil {
				return err
			}
			if err := s.reindex(ctx, tx, e.Name); err != nil {
				return err
			}
			merged, err := loadEntity(ctx, tx, e.Name)
			if err != nil {
				return err
			}
			results[i] = merged
			return nil
		})
		done[i] = err == nil
		return err
	})
	if err != nil {
		return graph.Applied(results, done), classify(graph.OpCreateEntities, err)
	}

	s.logger.Info("Entities created",
		zap.String("operation", graph.OpCreateEntities),
		zap.Int("count", len(results)),
	)
	return results, nil
}

// insertObservations appends the observations the entity lacks and returns
// them in input order
func insertObservations(ctx context.Context, tx *sql.Tx, name string, observations []string) ([]string, error) {
	added := []string{}
	for _, o := range graph.UniqueObservations(observations) {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO observations (entity_name, content) VALUES (?, ?) ON CONFLICT(entity_name, content) DO NOTHING`,
			name, o,
		)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added = append(added, o)
		}
	}
	return added, nil
}

// DeleteEntities removes the named entities, their observations and every
// incident relation in one transaction
func (s *Store) DeleteEntities(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	list, err := jsonList(names)
	if err != nil {
		return apperrors.NewOperationFailed(graph.OpDeleteEntities, err)
	}

	err = s.withTx(ctx, graph.OpDeleteEntities, func(tx *sql.Tx) error {
		statements := []string{
			`DELETE FROM relations WHERE source IN (SELECT value FROM json_each(?1)) OR target IN (SELECT value FROM json_each(?1))`,
			`DELETE FROM observations WHERE entity_name IN (SELECT value FROM json_each(?1))`,
			`DELETE FROM entities WHERE name IN (SELECT value FROM json_each(?1))`,
		}
		if s.indexed.Load() {
			statements = append(statements, `DELETE FROM `+searchTable+` WHERE name IN (SELECT value FROM json_each(?1))`)
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt, list); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Entities deleted",
		zap.String("operation", graph.OpDeleteEntities),
		zap.Strings("names", names),
	)
	return nil
}

// ============================================================================
// Observations
// ============================================================================

// AddObservations appends observations to existing entities, one transaction
// per item. A missing entity fails only its own item; a backend outage aborts
// the remaining items.
func (s *Store) AddObservations(ctx context.Context, additions []graph.ObservationAddition) ([]graph.ObservationResult, error) {
	results := graph.NewObservationResults(additions)
	done := make([]bool, len(additions))

	err := graph.RunBatch(ctx, len(additions), s.writeLimit, func(ctx context.Context, i int) error {
		a := additions[i]
		var added []string
		err := s.withTx(ctx, graph.OpAddObservations, func(tx *sql.Tx) error {
			exists, err := entityExists(ctx, tx, a.EntityName)
			if err != nil {
				return err
			}
			if !exists {
				return apperrors.NewEntityNotFound(a.EntityName)
			}
			added, err = insertObservations(ctx, tx, a.EntityName, a.Observations)
			if err != nil {
				return err
			}
			return s.reindex(ctx, tx, a.EntityName)
		})
		switch {
		case apperrors.IsBackendUnavailable(err):
			return err
		case err != nil:
			results[i].Fail(err)
		default:
			results[i].AddedObservations = added
		}
		done[i] = true
		return nil
	})
	if err != nil {
		err = classify(graph.OpAddObservations, err)
		graph.MarkUnapplied(results, done, err)
		return results, err
	}

	s.logger.Info("Observations added",
		zap.String("operation", graph.OpAddObservations),
		zap.Int("count", len(additions)),
	)
	return results, nil
}

// DeleteObservations removes exact-match observations in one transaction
func (s *Store) DeleteObservations(ctx context.Context, deletions []graph.ObservationDeletion) error {
	if len(deletions) == 0 {
		return nil
	}

	err := s.withTx(ctx, graph.OpDeleteObservations, func(tx *sql.Tx) error {
		for _, d := range deletions {
			for _, o := range graph.UniqueObservations(d.Observations) {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM observations WHERE entity_name = ? AND content = ?`,
					d.EntityName, o,
				); err != nil {
					return err
				}
			}
			if err := s.reindex(ctx, tx, d.EntityName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Observations deleted",
		zap.String("operation", graph.OpDeleteObservations),
		zap.Int("count", len(deletions)),
	)
	return nil
}

// ============================================================================
// Relations
// ============================================================================

// CreateRelations inserts each missing triple whose endpoints exist. Triples
// with a missing endpoint are skipped. Results follow input order. If a
// transaction fails, the relations already committed are returned with the error.
func (s *Store) CreateRelations(ctx context.Context, relations []graph.Relation) ([]graph.Relation, error) {
	for _, rel := range relations {
		if err := graph.ValidateRelation(rel); err != nil {
			return nil, apperrors.NewOperationFailed(graph.OpCreateRelations, err)
		}
	}

	relations = graph.UniqueRelations(relations)

	present := make([]bool, len(relations))
	err := graph.RunBatch(ctx, len(relations), s.writeLimit, func(ctx context.Context, i int) error {
		rel := relations[i]
		var inserted bool
		err := s.withTx(ctx, graph.OpCreateRelations, func(tx *sql.Tx) error {
			var ok bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM entities WHERE name = ?) AND EXISTS(SELECT 1 FROM entities WHERE name = ?)`,
				rel.Source, rel.Target,
			).Scan(&ok)
			if err != nil {
				return err
			}
			if !ok {
				s.logger.Debug("Relation skipped, endpoint missing",
					zap.String("relation", rel.String()),
				)
				return nil
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO relations (source, target, relation_type) VALUES (?, ?, ?)
				 ON CONFLICT(source, target, relation_type) DO NOTHING`,
				rel.Source, rel.Target, rel.RelationType,
			); err != nil {
				return err
			}
			inserted = true
			return nil
		})
		present[i] = err == nil && inserted
		return err
	})
	results := graph.Applied(relations, present)
	if err != nil {
		return results, classify(graph.OpCreateRelations, err)
	}

	s.logger.Info("Relations created",
		zap.String("operation", graph.OpCreateRelations),
		zap.Int("requested", len(relations)),
		zap.Int("count", len(results)),
	)
	return results, nil
}

// DeleteRelations removes each exactly matching triple in one transaction
func (s *Store) DeleteRelations(ctx context.Context, relations []graph.Relation) error {
	if len(relations) == 0 {
		return nil
	}

	err := s.withTx(ctx, graph.OpDeleteRelations, func(tx *sql.Tx) error {
		for _, rel := range relations {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM relations WHERE source = ? AND target = ? AND relation_type = ?`,
				rel.Source, rel.Target, rel.RelationType,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Relations deleted",
		zap.String("operation", graph.OpDeleteRelations),
		zap.Int("count", len(relations)),
	)
	return nil
}

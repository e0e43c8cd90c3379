package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "memory-mcp/backend/pkg/errors"
	"memory-mcp/backend/pkg/logger"
)

const (
	// fulltextIndexName is the full-text index queried by SearchMemories
	fulltextIndexName = "search"
	// nameConstraintName is the uniqueness constraint on entity names
	nameConstraintName = "memory_name_unique"
)

// Repository is the Neo4j-backed knowledge store. Entities are nodes labelled
// Memory keyed by name; relations are relationships whose type is the relation type.
type Repository struct {
	driver     neo4j.DriverWithContext
	database   string
	writeLimit int
	logger     *zap.Logger
}

var _ Backend = (*Repository)(nil)

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, opts Options) *Repository {
	return &Repository{
		driver:     driver,
		database:   opts.Database,
		writeLimit: opts.WriteLimit(),
		logger:     logger.Get().With(zap.String("backend", "neo4j")),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// VerifyConnectivity checks that the driver can reach the server
func (r *Repository) VerifyConnectivity(ctx context.Context) error {
	if err := r.driver.VerifyConnectivity(ctx); err != nil {
		return apperrors.NewBackendUnavailable("verify_connectivity", err)
	}
	return nil
}

func (r *Repository) sessionConfig(mode neo4j.AccessMode) neo4j.SessionConfig {
	return neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database}
}

// write runs one auto-commit query, which the server applies atomically.
// The session is released on every exit path.
func (r *Repository) write(ctx context.Context, operation, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeWrite))
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, classify(operation, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classify(operation, err)
	}
	return records, nil
}

// read runs fn inside one explicit read transaction so multi-query reads see
// a single snapshot. Transient failures are not retried here.
func (r *Repository) read(ctx context.Context, operation string, fn func(tx neo4j.ExplicitTransaction) error) error {
	session := r.driver.NewSession(ctx, r.sessionConfig(neo4j.AccessModeRead))
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return classify(operation, err)
	}
	defer tx.Close(ctx)

	if err := fn(tx); err != nil {
		return classify(operation, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(operation, err)
	}
	return nil
}

func collect(ctx context.Context, tx neo4j.ExplicitTransaction, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

// ReadGraph returns every entity and relation in the store
func (r *Repository) ReadGraph(ctx context.Context) (*KnowledgeGraph, error) {
	kg := NewKnowledgeGraph()

	err := r.read(ctx, OpReadGraph, func(tx neo4j.ExplicitTransaction) error {
		records, err := collect(ctx, tx, `
			MATCH (e:Memory)
			RETURN e.name AS name, e.type AS type, e.observations AS observations
		`, nil)
		if err != nil {
			return err
		}
		for _, record := range records {
			kg.Entities = append(kg.Entities, entityFromRecord(record))
		}

		records, err = collect(ctx, tx, `
			MATCH (source:Memory)-[r]->(target:Memory)
			RETURN source.name AS source, type(r) AS relationType, target.name AS target
		`, nil)
		if err != nil {
			return err
		}
		for _, record := range records {
			kg.Relations = append(kg.Relations, relationFromRecord(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Graph read",
		zap.Int("entities", len(kg.Entities)),
		zap.Int("relations", len(kg.Relations)),
	)
	return kg, nil
}
